package approval

import (
	"context"
	"time"

	"github.com/SkySingh04/DreamOps-sub000/internal/models"
)

// Decision is a human verdict on one held action.
type Decision string

const (
	DecisionApproved Decision = "approved"
	DecisionDenied   Decision = "denied"
	// DecisionTimeout means nobody answered within the wait window. The
	// executor records it as a skip, never as an implicit approval.
	DecisionTimeout Decision = "timeout"
)

// ApprovalRequest describes the action an operator is asked to release.
type ApprovalRequest struct {
	RunID   string            `json:"run_id"`
	Action  string            `json:"action"`
	Kind    models.ActionKind `json:"kind"`
	Risk    models.RiskLevel  `json:"risk"`
	Summary string            `json:"summary,omitempty"`
}

// Broker blocks a run until an approval decision lands or the wait elapses.
type Broker interface {
	Await(ctx context.Context, req ApprovalRequest, wait time.Duration) (Decision, error)
}

func requestKey(runID, action string) string {
	return runID + "/" + action
}
