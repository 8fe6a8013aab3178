package strategy

import (
	"testing"

	"github.com/SkySingh04/DreamOps-sub000/internal/models"
)

var testCtx = RuntimeContext{Namespace: "default", MemoryLimit: "1Gi", CPULimit: "1"}

func richSignal() models.IncidentSignal {
	return models.IncidentSignal{
		ID:    "sig-1",
		Title: "payments degraded",
		Source: map[string]string{
			"namespace":  "prod",
			"deployment": "payments",
			"node":       "ip-10-0-3-17",
			"endpoint":   "http://payments.prod.svc/healthz",
			"image":      "registry.local/payments:v1.4.2",
		},
	}
}

func allCategories() []models.IncidentCategory {
	return []models.IncidentCategory{
		models.CategoryPodCrash,
		models.CategoryImagePullError,
		models.CategoryOOMKill,
		models.CategoryCPUThrottle,
		models.CategoryServiceDown,
		models.CategoryDeploymentFailed,
		models.CategoryNodeIssue,
		models.CategoryGeneric,
	}
}

func TestDefaultLibraryCoversAllCategories(t *testing.T) {
	lib := DefaultLibrary()
	sig := richSignal()

	for _, category := range allCategories() {
		actions := lib.ActionsFor(category, sig, testCtx)
		if len(actions) == 0 {
			t.Fatalf("category %s produced an empty plan", category)
		}

		positions := make(map[string]int, len(actions))
		for i, action := range actions {
			if err := action.Params.Validate(action.Kind); err != nil {
				t.Fatalf("category %s action %s invalid: %v", category, action.Name, err)
			}
			if _, dup := positions[action.Name]; dup {
				t.Fatalf("category %s has duplicate action name %s", category, action.Name)
			}
			positions[action.Name] = i
		}
		for i, action := range actions {
			for _, prereq := range action.Prerequisites {
				at, ok := positions[prereq]
				if !ok {
					t.Fatalf("category %s action %s references unknown prerequisite %s", category, action.Name, prereq)
				}
				if at >= i {
					t.Fatalf("category %s action %s lists %s as prerequisite but it comes later", category, action.Name, prereq)
				}
			}
		}
	}
}

func TestGenericStrategyNeverEmpty(t *testing.T) {
	lib := DefaultLibrary()
	bare := models.IncidentSignal{ID: "sig-2", Title: "something odd happened"}

	actions := lib.ActionsFor(models.CategoryGeneric, bare, testCtx)
	if len(actions) != 2 {
		t.Fatalf("expected 2 generic actions, got %d", len(actions))
	}
	if actions[0].Name != "identify_error_pods" || actions[1].Name != "restart_error_pods" {
		t.Fatalf("unexpected generic plan: %s, %s", actions[0].Name, actions[1].Name)
	}
	if actions[0].Risk != models.RiskLow || actions[1].Risk != models.RiskMedium {
		t.Fatalf("unexpected generic risks: %s, %s", actions[0].Risk, actions[1].Risk)
	}
	if !actions[1].RequiresFindings {
		t.Fatal("restart_error_pods must require findings from the diagnostic")
	}
}

func TestOOMKillStrategyShape(t *testing.T) {
	lib := DefaultLibrary()
	actions := lib.ActionsFor(models.CategoryOOMKill, richSignal(), testCtx)

	if len(actions) != 2 {
		t.Fatalf("expected 2 oom actions, got %d", len(actions))
	}
	identify, raise := actions[0], actions[1]
	if identify.Name != "identify_oom_pods" || identify.Confidence != 0.95 || identify.Risk != models.RiskLow {
		t.Fatalf("unexpected diagnostic action: %+v", identify)
	}
	if raise.Name != "increase_memory_limits" || raise.Confidence != 0.85 || raise.Risk != models.RiskMedium {
		t.Fatalf("unexpected corrective action: %+v", raise)
	}
	if !raise.RollbackPossible {
		t.Fatal("increase_memory_limits must be rollback-possible")
	}
	if raise.Params.MemoryLimit != "1Gi" {
		t.Fatalf("expected runtime context memory limit, got %q", raise.Params.MemoryLimit)
	}
}

func TestInverseExistsForRollbackActions(t *testing.T) {
	lib := DefaultLibrary()
	sig := richSignal()

	covered := 0
	for _, category := range allCategories() {
		for _, action := range lib.ActionsFor(category, sig, testCtx) {
			if !action.RollbackPossible {
				continue
			}
			covered++
			inverse, ok := Inverse(action)
			if !ok {
				t.Fatalf("no inverse for rollback-possible action %s", action.Name)
			}
			if err := inverse.Params.Validate(inverse.Kind); err != nil {
				t.Fatalf("inverse of %s invalid: %v", action.Name, err)
			}
			if inverse.Kind == action.Kind {
				t.Fatalf("inverse of %s shares its kind", action.Name)
			}
		}
	}
	if covered == 0 {
		t.Fatal("expected at least one rollback-possible action in the catalog")
	}
}

func TestInverseRefusesNonRollbackActions(t *testing.T) {
	if _, ok := Inverse(models.ResolutionAction{Kind: models.ActionRestartPods}); ok {
		t.Fatal("restart action should have no inverse")
	}
}

func TestActionsForUnknownCategoryFallsBack(t *testing.T) {
	lib := DefaultLibrary()
	actions := lib.ActionsFor(models.IncidentCategory("mystery"), richSignal(), testCtx)
	if len(actions) == 0 || actions[0].Name != "identify_error_pods" {
		t.Fatalf("expected generic fallback for unknown category, got %+v", actions)
	}
}

func TestActionsForPrunesInvalidAndDependents(t *testing.T) {
	lib := NewLibrary()
	lib.Register(models.CategoryGeneric, func(models.IncidentSignal, RuntimeContext) []models.ResolutionAction {
		return []models.ResolutionAction{
			{Name: "broken", Kind: models.ActionRestartPods, Params: models.ActionParams{}},
			{Name: "dependent", Kind: models.ActionRestartPods,
				Params:        models.ActionParams{Namespace: "default", Reason: "Error"},
				Prerequisites: []string{"broken"}},
			{Name: "standalone", Kind: models.ActionIdentifyPods,
				Params: models.ActionParams{Namespace: "default", Reason: "Error"}},
		}
	})

	actions := lib.ActionsFor(models.CategoryGeneric, models.IncidentSignal{ID: "s"}, testCtx)
	if len(actions) != 1 || actions[0].Name != "standalone" {
		t.Fatalf("expected only standalone action to survive pruning, got %+v", actions)
	}
}
