// Package executor turns gated remediation decisions into cluster operations.
// It walks the decision list in order, enforces approvals, prerequisites and
// timeouts, and appends one execution log entry per attempted or skipped
// action. The log is append-only; nothing here retries or reorders.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/SkySingh04/DreamOps-sub000/internal/approval"
	"github.com/SkySingh04/DreamOps-sub000/internal/metrics"
	"github.com/SkySingh04/DreamOps-sub000/internal/models"
)

// ClusterClient is the slice of cluster operations the executor needs.
type ClusterClient interface {
	Execute(ctx context.Context, req models.ActionRequest) (models.ActionResult, error)
}

// Executor runs a decided plan against the cluster, one action at a time.
type Executor struct {
	cluster       ClusterClient
	guard         *Guard
	broker        approval.Broker
	approvalWait  time.Duration
	actionTimeout time.Duration
	logger        *slog.Logger
	now           func() time.Time
}

// NewExecutor builds an Executor. A nil broker makes every held action time
// out immediately, which keeps plan-heavy deployments honest instead of
// silently approving.
func NewExecutor(cluster ClusterClient, guard *Guard, broker approval.Broker, approvalWait, actionTimeout time.Duration, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	if approvalWait <= 0 {
		approvalWait = 2 * time.Minute
	}
	if actionTimeout <= 0 {
		actionTimeout = 30 * time.Second
	}
	return &Executor{
		cluster:       cluster,
		guard:         guard,
		broker:        broker,
		approvalWait:  approvalWait,
		actionTimeout: actionTimeout,
		logger:        logger,
		now:           time.Now,
	}
}

// Run executes the decided plan sequentially and returns the execution log.
// Preview-only decisions produce no log entry. Failures are recorded and the
// walk continues so independent actions still get their chance; dependent
// actions are skipped through the prerequisite gate instead. Cancellation of
// ctx lands between actions: the action in flight finishes inside its own
// timeout and every remaining action is logged as skipped.
func (e *Executor) Run(ctx context.Context, runID string, decisions []models.DecisionRecord) []models.ExecutionResult {
	log := make([]models.ExecutionResult, 0, len(decisions))
	outcomes := make(map[string]models.ActionOutcome, len(decisions))
	findings := make(map[string]int, len(decisions))

	for _, rec := range decisions {
		if rec.Decision == models.DecisionPreviewOnly || rec.Decision == models.DecisionSkip {
			continue
		}
		action := rec.Action

		if err := ctx.Err(); err != nil {
			entry := e.skip(action, ctxSkipReason(ctx), "run ended before this action started")
			log = appendEntry(log, entry)
			outcomes[action.Name] = entry.Outcome
			continue
		}

		if reason, detail, blocked := prerequisiteBlock(action, outcomes, findings); blocked {
			e.logger.Warn("action skipped",
				slog.String("run_id", runID),
				slog.String("action", action.Name),
				slog.String("reason", string(reason)),
				slog.String("detail", detail))
			entry := e.skip(action, reason, detail)
			log = appendEntry(log, entry)
			outcomes[action.Name] = entry.Outcome
			continue
		}

		if rec.Decision == models.DecisionRequireApproval {
			if entry, held := e.awaitApproval(ctx, runID, action); held {
				log = appendEntry(log, entry)
				outcomes[action.Name] = entry.Outcome
				continue
			}
		}

		entry := e.executeOne(ctx, runID, action)
		log = appendEntry(log, entry)
		outcomes[action.Name] = entry.Outcome
		if entry.Outcome == models.OutcomeSuccess {
			findings[action.Name] = len(entry.Targets)
		}
	}
	return log
}

// awaitApproval blocks until the broker answers or the wait elapses. The
// second return is true when the action must not run; the entry explains why.
func (e *Executor) awaitApproval(ctx context.Context, runID string, action models.ResolutionAction) (models.ExecutionResult, bool) {
	req := approval.ApprovalRequest{
		RunID:   runID,
		Action:  action.Name,
		Kind:    action.Kind,
		Risk:    action.Risk,
		Summary: action.Description,
	}

	if e.broker == nil {
		e.logger.Warn("no approval broker configured, skipping held action",
			slog.String("run_id", runID), slog.String("action", action.Name))
		return e.skip(action, models.SkipApprovalTimeout, "no approval broker configured"), true
	}

	e.logger.Info("action held for approval",
		slog.String("run_id", runID),
		slog.String("action", action.Name),
		slog.String("risk", string(action.Risk)),
		slog.Duration("wait", e.approvalWait))

	started := e.now()
	decision, err := e.broker.Await(ctx, req, e.approvalWait)
	waited := e.now().Sub(started)
	metrics.ObserveApprovalWait(waited, string(decision))

	switch decision {
	case approval.DecisionApproved:
		e.logger.Info("action approved",
			slog.String("run_id", runID),
			slog.String("action", action.Name),
			slog.Duration("waited", waited))
		return models.ExecutionResult{}, false
	case approval.DecisionDenied:
		return e.skip(action, models.SkipApprovalDenied, "operator denied the action"), true
	default:
		if ctx.Err() != nil {
			return e.skip(action, ctxSkipReason(ctx), "run ended while waiting for approval"), true
		}
		if err != nil {
			e.logger.Warn("approval wait ended with error",
				slog.String("run_id", runID),
				slog.String("action", action.Name),
				slog.Any("error", err))
		}
		return e.skip(action, models.SkipApprovalTimeout,
			fmt.Sprintf("no decision within %s", e.approvalWait)), true
	}
}

// executeOne performs a single cluster operation under the guard and the
// per-action timeout. The per-action context deliberately does not inherit
// cancellation from ctx so an in-flight action can finish cleanly.
func (e *Executor) executeOne(ctx context.Context, runID string, action models.ResolutionAction) models.ExecutionResult {
	started := e.now().UTC()
	entry := models.ExecutionResult{
		Action:    action.Name,
		Kind:      action.Kind,
		StartedAt: started,
	}

	if err := e.guard.Acquire(ctx); err != nil {
		entry.FinishedAt = e.now().UTC()
		entry.Duration = entry.FinishedAt.Sub(entry.StartedAt)
		if ctx.Err() != nil && !errors.Is(err, ErrBreakerOpen) {
			entry.Outcome = models.OutcomeSkipped
			entry.SkipReason = ctxSkipReason(ctx)
			entry.Output = "run ended while waiting for a cluster slot"
		} else {
			entry.Outcome = models.OutcomeFailure
			entry.Error = err.Error()
			e.logger.Warn("action rejected by guard",
				slog.String("run_id", runID),
				slog.String("action", action.Name),
				slog.Any("error", err))
		}
		return entry
	}

	actionCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.actionTimeout)
	defer cancel()

	res, err := e.cluster.Execute(actionCtx, models.ActionRequest{
		RunID:  runID,
		Action: action.Name,
		Kind:   action.Kind,
		Params: action.Params,
	})
	e.guard.Observe(err)

	entry.FinishedAt = e.now().UTC()
	entry.Duration = entry.FinishedAt.Sub(entry.StartedAt)
	entry.Output = res.Output
	entry.Targets = res.Targets

	switch {
	case err != nil && errors.Is(err, context.DeadlineExceeded):
		entry.Outcome = models.OutcomeTimeout
		entry.Error = fmt.Sprintf("action timed out after %s", e.actionTimeout)
		e.logger.Warn("action timed out",
			slog.String("run_id", runID),
			slog.String("action", action.Name),
			slog.Duration("timeout", e.actionTimeout))
	case err != nil:
		entry.Outcome = models.OutcomeFailure
		entry.Error = err.Error()
		e.logger.Warn("action failed",
			slog.String("run_id", runID),
			slog.String("action", action.Name),
			slog.Any("error", err))
	case !res.Success:
		entry.Outcome = models.OutcomeFailure
		entry.Error = "agent reported failure"
		e.logger.Warn("action refused by agent",
			slog.String("run_id", runID),
			slog.String("action", action.Name),
			slog.String("output", res.Output))
	default:
		entry.Outcome = models.OutcomeSuccess
		e.logger.Info("action executed",
			slog.String("run_id", runID),
			slog.String("action", action.Name),
			slog.String("kind", string(action.Kind)),
			slog.Int("targets", len(res.Targets)),
			slog.Duration("duration", entry.Duration))
	}
	return entry
}

// prerequisiteBlock decides whether an action may run given what already
// happened. An action whose prerequisite did not succeed is skipped; a
// corrective action whose diagnostics found nothing left to fix is skipped as
// already done.
func prerequisiteBlock(action models.ResolutionAction, outcomes map[string]models.ActionOutcome, findings map[string]int) (models.SkipReason, string, bool) {
	for _, name := range action.Prerequisites {
		outcome, ran := outcomes[name]
		if !ran || outcome != models.OutcomeSuccess {
			return models.SkipPrerequisiteFailed,
				fmt.Sprintf("prerequisite %s did not succeed", name), true
		}
	}

	if action.RequiresFindings {
		total := 0
		seen := false
		for _, name := range action.Prerequisites {
			if n, ok := findings[name]; ok {
				seen = true
				total += n
			}
		}
		if seen && total == 0 {
			return models.SkipNoRemainingTargets, "diagnostics found no remaining targets", true
		}
	}
	return "", "", false
}

func (e *Executor) skip(action models.ResolutionAction, reason models.SkipReason, detail string) models.ExecutionResult {
	now := e.now().UTC()
	return models.ExecutionResult{
		Action:     action.Name,
		Kind:       action.Kind,
		Outcome:    models.OutcomeSkipped,
		SkipReason: reason,
		Output:     detail,
		StartedAt:  now,
		FinishedAt: now,
	}
}

// appendEntry is the single choke point where log entries land and get
// counted.
func appendEntry(log []models.ExecutionResult, entry models.ExecutionResult) []models.ExecutionResult {
	metrics.ObserveAction(entry.Duration, string(entry.Kind), string(entry.Outcome))
	return append(log, entry)
}

func ctxSkipReason(ctx context.Context) models.SkipReason {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return models.SkipRunTimeout
	}
	return models.SkipCancelled
}
