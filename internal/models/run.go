package models

import (
	"fmt"
	"strings"
	"time"
)

// AutonomyMode fixes how much the engine may do on its own for one run.
type AutonomyMode string

const (
	// ModeYOLO executes every planned action without gating on confidence.
	// Confidence stays audit metadata here; that is deliberate product
	// behavior, not a missing check.
	ModeYOLO AutonomyMode = "yolo"
	// ModeApproval executes low-risk actions and holds the rest for a human.
	ModeApproval AutonomyMode = "approval"
	// ModePlan previews the plan without touching the cluster.
	ModePlan AutonomyMode = "plan"
)

// ParseAutonomyMode maps user input onto an AutonomyMode.
func ParseAutonomyMode(s string) (AutonomyMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yolo":
		return ModeYOLO, nil
	case "approval":
		return ModeApproval, nil
	case "plan", "plan-only", "plan_only":
		return ModePlan, nil
	}
	return "", fmt.Errorf("unknown autonomy mode %q", s)
}

// ExecutionDecision is the policy verdict for a single action.
type ExecutionDecision string

const (
	DecisionExecute         ExecutionDecision = "execute"
	DecisionRequireApproval ExecutionDecision = "require_approval"
	DecisionPreviewOnly     ExecutionDecision = "preview_only"
	DecisionSkip            ExecutionDecision = "skip"
)

// DecisionRecord pairs an action with the policy verdict that gated it.
// Records are append-only; runtime outcomes land in the execution log instead
// of mutating the decision.
type DecisionRecord struct {
	Action    ResolutionAction  `json:"action"`
	Decision  ExecutionDecision `json:"decision"`
	Reason    string            `json:"reason,omitempty"`
	DecidedAt time.Time         `json:"decided_at"`
}

// ActionOutcome classifies what happened when an action ran (or did not).
type ActionOutcome string

const (
	OutcomeSuccess ActionOutcome = "success"
	OutcomeFailure ActionOutcome = "failure"
	OutcomeTimeout ActionOutcome = "timeout"
	OutcomeSkipped ActionOutcome = "skipped"
)

// SkipReason says why a planned action never reached the cluster.
type SkipReason string

const (
	SkipPrerequisiteFailed SkipReason = "prerequisite_failed"
	SkipApprovalTimeout    SkipReason = "approval_timeout"
	SkipApprovalDenied     SkipReason = "approval_denied"
	SkipCancelled          SkipReason = "cancelled"
	SkipRunTimeout         SkipReason = "run_timeout"
	SkipNoRemainingTargets SkipReason = "no_remaining_targets"
)

// ExecutionResult is one append-only entry of a run's execution log.
type ExecutionResult struct {
	Action     string        `json:"action"`
	Kind       ActionKind    `json:"kind"`
	Outcome    ActionOutcome `json:"outcome"`
	SkipReason SkipReason    `json:"skip_reason,omitempty"`
	Output     string        `json:"output,omitempty"`
	Targets    []string      `json:"targets,omitempty"`
	Error      string        `json:"error,omitempty"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Duration   time.Duration `json:"duration"`
}

// VerificationStatus is the verifier's verdict for a run.
type VerificationStatus string

const (
	VerificationVerified VerificationStatus = "verified"
	VerificationFailed   VerificationStatus = "failed"
	// VerificationInconclusive means the verification query itself errored.
	// It is never promoted to verified.
	VerificationInconclusive VerificationStatus = "inconclusive"
)

// VerificationOutcome records the single post-run condition check.
type VerificationOutcome struct {
	Condition ConditionQuery     `json:"condition"`
	Status    VerificationStatus `json:"status"`
	Matches   []string           `json:"matches,omitempty"`
	Evidence  string             `json:"evidence,omitempty"`
	CheckedAt time.Time          `json:"checked_at"`
}

// LifecycleOutcome is what the incident lifecycle bridge did with the
// upstream incident.
type LifecycleOutcome string

const (
	// LifecycleAcknowledged means the incident was left open, at most
	// acknowledged and annotated with a progress note.
	LifecycleAcknowledged LifecycleOutcome = "acknowledged"
	LifecycleResolved     LifecycleOutcome = "resolved"
	LifecycleEscalated    LifecycleOutcome = "escalated_unresolved"
)

// RunState is the terminal disposition of a run.
type RunState string

const (
	StateResolved           RunState = "resolved"
	StateUnresolved         RunState = "unresolved"
	StateNoApplicableAction RunState = "unresolved_no_applicable_action"
	StatePlanned            RunState = "planned"
)

// ExecutionReport is the canonical audit artifact of one incident run. It is
// plain data: JSON round-trips carry everything an operator needs to
// reconstruct what the engine saw, decided, did and concluded.
type ExecutionReport struct {
	RunID          string               `json:"run_id"`
	CorrelationKey string               `json:"correlation_key,omitempty"`
	Mode           AutonomyMode         `json:"mode"`
	State          RunState             `json:"state"`
	Category       IncidentCategory     `json:"category"`
	Signal         IncidentSignal       `json:"signal"`
	Decisions      []DecisionRecord     `json:"decisions"`
	ExecutionLog   []ExecutionResult    `json:"execution_log"`
	Verification   *VerificationOutcome `json:"verification,omitempty"`
	Lifecycle      LifecycleOutcome     `json:"lifecycle,omitempty"`
	LifecycleNote  string               `json:"lifecycle_note,omitempty"`
	// LifecycleCallFailed flags that a lifecycle call errored. The warning is
	// secondary: it never changes State or Verification.
	LifecycleCallFailed bool          `json:"lifecycle_call_failed,omitempty"`
	StartedAt           time.Time     `json:"started_at"`
	FinishedAt          time.Time     `json:"finished_at"`
	TotalDuration       time.Duration `json:"total_duration"`
}

// ExecutedActions counts log entries that actually reached the cluster.
func (r ExecutionReport) ExecutedActions() int {
	n := 0
	for _, e := range r.ExecutionLog {
		if e.Outcome != OutcomeSkipped {
			n++
		}
	}
	return n
}
