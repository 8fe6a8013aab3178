// Package engine drives one incident remediation run end to end: classify the
// signal, plan category-specific actions, gate them by autonomy mode, execute
// the survivors, verify the cluster afterwards and reconcile the upstream
// incident. Whatever breaks along the way, a run always ends in a complete
// execution report.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/SkySingh04/DreamOps-sub000/internal/metrics"
	"github.com/SkySingh04/DreamOps-sub000/internal/models"
	"github.com/SkySingh04/DreamOps-sub000/internal/policy"
	"github.com/SkySingh04/DreamOps-sub000/internal/strategy"
)

// ActionRunner executes a gated plan and returns the append-only execution
// log.
type ActionRunner interface {
	Run(ctx context.Context, runID string, decisions []models.DecisionRecord) []models.ExecutionResult
}

// IncidentLifecycle is the slice of the alerting bridge the pipeline drives.
// Calls are best effort; failures become report warnings, never run failures.
type IncidentLifecycle interface {
	Acknowledge(ctx context.Context, incidentID string) error
	AddNote(ctx context.Context, incidentID, note string) error
	Resolve(ctx context.Context, incidentID, note string) error
	Escalate(ctx context.Context, incidentID, reason string) error
}

// ReportSink persists finished execution reports.
type ReportSink interface {
	Append(ctx context.Context, report models.ExecutionReport) error
}

// RunRequest is one normalized incident handed to the pipeline.
type RunRequest struct {
	Signal         models.IncidentSignal
	Mode           models.AutonomyMode
	CorrelationKey string
}

// Settings carries the orchestration knobs for a pipeline.
type Settings struct {
	Runtime             strategy.RuntimeContext
	RunTimeout          time.Duration
	VerificationDelay   time.Duration
	VerificationTimeout time.Duration
	EscalateUnresolved  bool
}

// Pipeline orchestrates remediation runs.
type Pipeline struct {
	logger     *slog.Logger
	classifier *Classifier
	library    *strategy.Library
	gate       *policy.Gate
	runner     ActionRunner
	verifier   *Verifier
	lifecycle  IncidentLifecycle
	journal    ReportSink

	runtime            strategy.RuntimeContext
	runTimeout         time.Duration
	verificationDelay  time.Duration
	escalateUnresolved bool

	now      func() time.Time
	newRunID func() string
}

// NewPipeline constructs a remediation pipeline. lifecycle and journal may be
// nil; runs then skip incident reconciliation and report persistence.
func NewPipeline(
	logger *slog.Logger,
	classifier *Classifier,
	library *strategy.Library,
	gate *policy.Gate,
	runner ActionRunner,
	querier ClusterQuerier,
	lifecycle IncidentLifecycle,
	journal ReportSink,
	settings Settings,
) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if library == nil {
		library = strategy.DefaultLibrary()
	}
	if gate == nil {
		gate = policy.NewGate()
	}
	if settings.RunTimeout <= 0 {
		settings.RunTimeout = 5 * time.Minute
	}

	return &Pipeline{
		logger:             logger,
		classifier:         classifier,
		library:            library,
		gate:               gate,
		runner:             runner,
		verifier:           NewVerifier(querier, settings.VerificationTimeout, logger),
		lifecycle:          lifecycle,
		journal:            journal,
		runtime:            settings.Runtime,
		runTimeout:         settings.RunTimeout,
		verificationDelay:  settings.VerificationDelay,
		escalateUnresolved: settings.EscalateUnresolved,
		now:                time.Now,
		newRunID:           func() string { return "run-" + uuid.NewString() },
	}
}

// Run drives one incident through the full remediation flow and returns its
// report. Only the gate decides whether the cluster is touched; everything
// that goes wrong downstream is recorded instead of raised.
func (p *Pipeline) Run(ctx context.Context, req RunRequest) models.ExecutionReport {
	report := models.ExecutionReport{
		RunID:          p.newRunID(),
		CorrelationKey: req.CorrelationKey,
		Mode:           req.Mode,
		Signal:         req.Signal,
		StartedAt:      p.now().UTC(),
	}

	logger := p.logger.With(
		slog.String("run_id", report.RunID),
		slog.String("signal_id", req.Signal.ID),
		slog.String("mode", string(req.Mode)))

	runCtx, cancel := context.WithTimeout(ctx, p.runTimeout)
	defer cancel()

	report.Category = p.classifier.Classify(req.Signal)
	actions := p.library.ActionsFor(report.Category, req.Signal, p.runtime)
	report.Decisions = p.gate.Decide(req.Mode, actions)

	logger.Info("run planned",
		slog.String("category", string(report.Category)),
		slog.Int("actions", len(actions)))

	if len(actions) == 0 {
		// Nothing applicable. The incident stays open and the report says so;
		// there is no cluster state worth verifying.
		report.State = models.StateNoApplicableAction
		p.reconcileIncident(ctx, logger, &report)
		return p.finish(ctx, logger, report)
	}

	p.acknowledge(runCtx, logger, &report)

	report.ExecutionLog = p.runner.Run(runCtx, report.RunID, report.Decisions)

	p.settle(runCtx, report.ExecutedActions())
	outcome := p.verifier.Check(runCtx, ConditionFor(report.Category, req.Signal, p.runtime.Namespace))
	report.Verification = &outcome
	metrics.ObserveVerification(string(outcome.Status))

	report.State = decideState(req.Mode, outcome.Status)
	p.reconcileIncident(ctx, logger, &report)
	return p.finish(ctx, logger, report)
}

// acknowledge marks the upstream incident as being worked on. Preview runs
// leave it untouched.
func (p *Pipeline) acknowledge(ctx context.Context, logger *slog.Logger, report *models.ExecutionReport) {
	if p.lifecycle == nil || report.Mode == models.ModePlan {
		return
	}
	if err := p.lifecycle.Acknowledge(ctx, report.Signal.ID); err != nil {
		logger.Warn("incident acknowledge failed", slog.Any("error", err))
		report.LifecycleCallFailed = true
		metrics.IncLifecycleFailure()
	}
}

// settle gives the cluster a moment to converge before verification. The wait
// only applies when something actually ran.
func (p *Pipeline) settle(ctx context.Context, executed int) {
	if p.verificationDelay <= 0 || executed == 0 {
		return
	}
	timer := time.NewTimer(p.verificationDelay)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

func decideState(mode models.AutonomyMode, status models.VerificationStatus) models.RunState {
	if mode == models.ModePlan {
		return models.StatePlanned
	}
	if status == models.VerificationVerified {
		return models.StateResolved
	}
	return models.StateUnresolved
}

// reconcileIncident closes the loop with the alerting system. A verified run
// resolves the incident; anything else leaves it open with a note or an
// escalation. Failures are recorded on the report and never change the run
// outcome.
func (p *Pipeline) reconcileIncident(ctx context.Context, logger *slog.Logger, report *models.ExecutionReport) {
	if p.lifecycle == nil {
		return
	}

	note := lifecycleNote(report)
	report.LifecycleNote = note

	// The bridge call still goes out when the run context is spent.
	callCtx := context.WithoutCancel(ctx)

	var err error
	switch {
	case report.State == models.StateResolved:
		report.Lifecycle = models.LifecycleResolved
		err = p.lifecycle.Resolve(callCtx, report.Signal.ID, note)
	case report.State == models.StateUnresolved && p.shouldEscalate(report):
		report.Lifecycle = models.LifecycleEscalated
		err = p.lifecycle.Escalate(callCtx, report.Signal.ID, note)
	default:
		report.Lifecycle = models.LifecycleAcknowledged
		err = p.lifecycle.AddNote(callCtx, report.Signal.ID, note)
	}
	if err != nil {
		logger.Warn("incident lifecycle call failed",
			slog.String("outcome", string(report.Lifecycle)), slog.Any("error", err))
		report.LifecycleCallFailed = true
		metrics.IncLifecycleFailure()
	}
}

func (p *Pipeline) shouldEscalate(report *models.ExecutionReport) bool {
	return p.escalateUnresolved || report.Signal.Severity == models.SeverityCritical
}

func lifecycleNote(report *models.ExecutionReport) string {
	switch report.State {
	case models.StateNoApplicableAction:
		return "no applicable remediation for this incident"
	case models.StatePlanned:
		return fmt.Sprintf("remediation plan prepared: %d actions, none executed", len(report.Decisions))
	case models.StateResolved:
		note := fmt.Sprintf("remediation verified: %d of %d actions executed",
			report.ExecutedActions(), len(report.Decisions))
		if hints := rollbackHints(report); len(hints) > 0 {
			note += "; rollback available via " + strings.Join(hints, ", ")
		}
		return note
	default:
		status := models.VerificationInconclusive
		if report.Verification != nil {
			status = report.Verification.Status
		}
		return fmt.Sprintf("remediation incomplete: %d of %d actions executed, verification %s",
			report.ExecutedActions(), len(report.Decisions), status)
	}
}

// rollbackHints names the inverse operations for successfully executed
// rollback-possible actions, so operators know how to undo the run.
func rollbackHints(report *models.ExecutionReport) []string {
	executed := make(map[string]bool, len(report.ExecutionLog))
	for _, entry := range report.ExecutionLog {
		if entry.Outcome == models.OutcomeSuccess {
			executed[entry.Action] = true
		}
	}

	var hints []string
	seen := make(map[string]bool)
	for _, rec := range report.Decisions {
		if !executed[rec.Action.Name] {
			continue
		}
		inverse, ok := strategy.Inverse(rec.Action)
		if !ok || seen[inverse.Name] {
			continue
		}
		seen[inverse.Name] = true
		hints = append(hints, inverse.Name)
	}
	return hints
}

func (p *Pipeline) finish(ctx context.Context, logger *slog.Logger, report models.ExecutionReport) models.ExecutionReport {
	report.FinishedAt = p.now().UTC()
	report.TotalDuration = report.FinishedAt.Sub(report.StartedAt)

	if p.journal != nil {
		if err := p.journal.Append(context.WithoutCancel(ctx), report); err != nil {
			logger.Warn("failed to journal report", slog.Any("error", err))
		}
	}

	metrics.ObserveRun(report.TotalDuration, string(report.Category), string(report.State))
	logger.Info("run finished",
		slog.String("state", string(report.State)),
		slog.Int("executed", report.ExecutedActions()),
		slog.Duration("duration", report.TotalDuration))
	return report
}
