package policy

import (
	"fmt"
	"time"

	"github.com/SkySingh04/DreamOps-sub000/internal/models"
)

// Gate turns a planned action list into per-action execution decisions for
// the run's autonomy mode. Decisions are immutable once produced; runtime
// outcomes (approval timeouts, skips) are recorded in the execution log, not
// here.
type Gate struct {
	now func() time.Time
}

// NewGate creates a policy gate using the wall clock.
func NewGate() *Gate {
	return &Gate{now: time.Now}
}

// Decide maps every action to a decision, in plan order.
//
// YOLO executes the whole plan whenever it is non-empty. Confidence is
// deliberately not consulted: it stays audit metadata, and gating on it here
// would be a product behavior change rather than a fix.
func (g *Gate) Decide(mode models.AutonomyMode, actions []models.ResolutionAction) []models.DecisionRecord {
	decisions := make([]models.DecisionRecord, 0, len(actions))
	for _, action := range actions {
		record := models.DecisionRecord{Action: action, DecidedAt: g.now().UTC()}

		switch mode {
		case models.ModeYOLO:
			record.Decision = models.DecisionExecute
			record.Reason = "yolo mode executes the full plan"
		case models.ModeApproval:
			if action.Risk == models.RiskLow {
				record.Decision = models.DecisionExecute
				record.Reason = "low risk auto-approved"
			} else {
				record.Decision = models.DecisionRequireApproval
				record.Reason = fmt.Sprintf("%s risk requires human approval", action.Risk)
			}
		case models.ModePlan:
			record.Decision = models.DecisionPreviewOnly
			record.Reason = "plan mode previews without executing"
		default:
			// Unknown modes never touch the cluster.
			record.Decision = models.DecisionPreviewOnly
			record.Reason = fmt.Sprintf("unknown autonomy mode %q, preview only", mode)
		}

		decisions = append(decisions, record)
	}
	return decisions
}
