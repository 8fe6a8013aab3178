package policy

import (
	"testing"

	"github.com/SkySingh04/DreamOps-sub000/internal/models"
)

func planOfThree() []models.ResolutionAction {
	return []models.ResolutionAction{
		{Name: "diagnose", Risk: models.RiskLow, Confidence: 0.95},
		{Name: "mutate", Risk: models.RiskMedium, Confidence: 0.6},
		{Name: "rebuild", Risk: models.RiskHigh, Confidence: 0.0},
	}
}

func TestDecideYOLOExecutesEverything(t *testing.T) {
	decisions := NewGate().Decide(models.ModeYOLO, planOfThree())
	if len(decisions) != 3 {
		t.Fatalf("expected 3 decisions, got %d", len(decisions))
	}
	for _, d := range decisions {
		if d.Decision != models.DecisionExecute {
			t.Fatalf("yolo should execute %s, got %s", d.Action.Name, d.Decision)
		}
	}
	// The zero-confidence action still executes: confidence is metadata only.
	if decisions[2].Action.Confidence != 0.0 {
		t.Fatalf("fixture drift: expected zero confidence, got %v", decisions[2].Action.Confidence)
	}
}

func TestDecideApprovalSplitsByRisk(t *testing.T) {
	decisions := NewGate().Decide(models.ModeApproval, planOfThree())
	want := []models.ExecutionDecision{
		models.DecisionExecute,
		models.DecisionRequireApproval,
		models.DecisionRequireApproval,
	}
	for i, d := range decisions {
		if d.Decision != want[i] {
			t.Fatalf("action %s: expected %s, got %s", d.Action.Name, want[i], d.Decision)
		}
	}
}

func TestDecidePlanPreviewsEverything(t *testing.T) {
	decisions := NewGate().Decide(models.ModePlan, planOfThree())
	for _, d := range decisions {
		if d.Decision != models.DecisionPreviewOnly {
			t.Fatalf("plan mode should preview %s, got %s", d.Action.Name, d.Decision)
		}
	}
}

func TestDecideUnknownModeNeverExecutes(t *testing.T) {
	decisions := NewGate().Decide(models.AutonomyMode("chaotic"), planOfThree())
	for _, d := range decisions {
		if d.Decision != models.DecisionPreviewOnly {
			t.Fatalf("unknown mode should preview %s, got %s", d.Action.Name, d.Decision)
		}
	}
}

func TestDecideEmptyPlan(t *testing.T) {
	if decisions := NewGate().Decide(models.ModeYOLO, nil); len(decisions) != 0 {
		t.Fatalf("expected no decisions for empty plan, got %d", len(decisions))
	}
}
