package patterns

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/SkySingh04/DreamOps-sub000/internal/models"
)

func report(category models.IncidentCategory, state models.RunState, startedAt time.Time, actions ...string) models.ExecutionReport {
	log := make([]models.ExecutionResult, 0, len(actions))
	for _, name := range actions {
		log = append(log, models.ExecutionResult{Action: name, Outcome: models.OutcomeSuccess})
	}
	return models.ExecutionReport{
		Category:     category,
		State:        state,
		StartedAt:    startedAt,
		ExecutionLog: log,
	}
}

func TestMineAggregatesByCategory(t *testing.T) {
	base := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	history := HistoryFunc(func(ctx context.Context, req models.ListReportsRequest) ([]models.ExecutionReport, error) {
		return []models.ExecutionReport{
			report(models.CategoryOOMKill, models.StateResolved, base, "restart_pods", "increase_memory_limit"),
			report(models.CategoryOOMKill, models.StateResolved, base.Add(time.Hour), "restart_pods"),
			report(models.CategoryOOMKill, models.StateUnresolved, base.Add(30*time.Minute), "restart_pods"),
			report(models.CategoryPodCrash, models.StateResolved, base, "restart_pods"),
		}, nil
	})

	miner := NewMiner(nil, history)
	stats, err := miner.Mine(context.Background(), time.Time{}, 0)
	if err != nil {
		t.Fatalf("Mine failed: %v", err)
	}
	if len(stats) != 2 {
		t.Fatalf("expected 2 categories, got %d", len(stats))
	}

	oom := stats[0]
	if oom.Category != models.CategoryOOMKill {
		t.Fatalf("expected oom_kill first, got %s", oom.Category)
	}
	if oom.Runs != 3 || oom.Resolved != 2 {
		t.Errorf("oom runs/resolved = %d/%d, want 3/2", oom.Runs, oom.Resolved)
	}
	if oom.SuccessRate < 0.66 || oom.SuccessRate > 0.67 {
		t.Errorf("oom success rate = %f, want ~0.667", oom.SuccessRate)
	}
	if !oom.LastSeen.Equal(base.Add(time.Hour)) {
		t.Errorf("oom last seen = %s, want %s", oom.LastSeen, base.Add(time.Hour))
	}
	if len(oom.TopActions) == 0 || oom.TopActions[0] != "restart_pods" {
		t.Errorf("expected restart_pods as top action, got %v", oom.TopActions)
	}
}

func TestMineSkipsSkippedActions(t *testing.T) {
	history := HistoryFunc(func(ctx context.Context, req models.ListReportsRequest) ([]models.ExecutionReport, error) {
		rep := models.ExecutionReport{
			Category:  models.CategoryNodeIssue,
			State:     models.StateUnresolved,
			StartedAt: time.Now(),
			ExecutionLog: []models.ExecutionResult{
				{Action: "cordon_node", Outcome: models.OutcomeSkipped},
				{Action: "identify_pods", Outcome: models.OutcomeSuccess},
			},
		}
		return []models.ExecutionReport{rep}, nil
	})

	stats, err := NewMiner(nil, history).Mine(context.Background(), time.Time{}, 10)
	if err != nil {
		t.Fatalf("Mine failed: %v", err)
	}
	if len(stats) != 1 {
		t.Fatalf("expected 1 category, got %d", len(stats))
	}
	for _, action := range stats[0].TopActions {
		if action == "cordon_node" {
			t.Errorf("skipped action should not be counted: %v", stats[0].TopActions)
		}
	}
}

func TestMineEmptyHistory(t *testing.T) {
	history := HistoryFunc(func(ctx context.Context, req models.ListReportsRequest) ([]models.ExecutionReport, error) {
		return nil, nil
	})
	stats, err := NewMiner(nil, history).Mine(context.Background(), time.Time{}, 10)
	if err != nil {
		t.Fatalf("Mine failed: %v", err)
	}
	if stats != nil {
		t.Fatalf("expected nil stats for empty history, got %v", stats)
	}
}

func TestMinePropagatesHistoryErrors(t *testing.T) {
	history := HistoryFunc(func(ctx context.Context, req models.ListReportsRequest) ([]models.ExecutionReport, error) {
		return nil, errors.New("journal unavailable")
	})
	if _, err := NewMiner(nil, history).Mine(context.Background(), time.Time{}, 10); err == nil {
		t.Fatal("expected history error to propagate")
	}
}
