package journal

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/SkySingh04/DreamOps-sub000/internal/models"
	"github.com/SkySingh04/DreamOps-sub000/internal/utils"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "journal.db"), nil)
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleReport(runID string, category models.IncidentCategory, state models.RunState, started time.Time) models.ExecutionReport {
	return models.ExecutionReport{
		RunID:    runID,
		Mode:     models.ModeYOLO,
		State:    state,
		Category: category,
		Signal: models.IncidentSignal{
			ID:       "inc-" + runID,
			Title:    "incident",
			Severity: models.SeverityHigh,
		},
		Decisions: []models.DecisionRecord{
			{
				Action:   models.ResolutionAction{Name: "identify_oom_pods", Kind: models.ActionIdentifyPods},
				Decision: models.DecisionExecute,
			},
		},
		ExecutionLog: []models.ExecutionResult{
			{Action: "identify_oom_pods", Kind: models.ActionIdentifyPods, Outcome: models.OutcomeSuccess, Targets: []string{"pod-1"}},
		},
		Verification: &models.VerificationOutcome{
			Condition: models.ConditionQuery{Check: models.CheckPodsInState, Reason: "OOMKilled"},
			Status:    models.VerificationVerified,
		},
		StartedAt:     started,
		FinishedAt:    started.Add(3 * time.Second),
		TotalDuration: 3 * time.Second,
	}
}

func TestAppendAndGetRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	want := sampleReport("run-1", models.CategoryOOMKill, models.StateResolved, time.Now().UTC().Truncate(time.Second))
	want.CorrelationKey = "corr-1"
	if err := store.Append(ctx, want); err != nil {
		t.Fatalf("append: %v", err)
	}

	got, err := store.Get(ctx, "run-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.RunID != want.RunID || got.Category != want.Category || got.State != want.State {
		t.Fatalf("report mismatch: got %+v", got)
	}
	if len(got.Decisions) != 1 || got.Decisions[0].Action.Name != "identify_oom_pods" {
		t.Fatalf("decisions lost in round trip: %+v", got.Decisions)
	}
	if len(got.ExecutionLog) != 1 || got.ExecutionLog[0].Outcome != models.OutcomeSuccess {
		t.Fatalf("execution log lost in round trip: %+v", got.ExecutionLog)
	}
	if got.Verification == nil || got.Verification.Status != models.VerificationVerified {
		t.Fatalf("verification lost in round trip: %+v", got.Verification)
	}
	if got.CorrelationKey != "corr-1" {
		t.Fatalf("correlation key lost: %+v", got)
	}
}

func TestOpenFailureWrapsAppError(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "not-a-dir")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatalf("writing blocker file: %v", err)
	}

	_, err := Open(filepath.Join(blocker, "journal.db"), nil)
	if err == nil {
		t.Fatal("expected open to fail under a file path")
	}
	var appErr *utils.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected AppError, got %T: %v", err, err)
	}
	if appErr.Op != "journal.open" {
		t.Fatalf("unexpected op %q", appErr.Op)
	}
}

func TestGetMissingReport(t *testing.T) {
	store := openTestStore(t)
	if _, err := store.Get(context.Background(), "run-nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAppendRejectsDuplicateRunID(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	report := sampleReport("run-1", models.CategoryGeneric, models.StateUnresolved, time.Now().UTC())

	if err := store.Append(ctx, report); err != nil {
		t.Fatalf("first append: %v", err)
	}
	if err := store.Append(ctx, report); err == nil {
		t.Fatalf("expected duplicate run id to fail")
	}
}

func TestListFiltersAndOrders(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour).Truncate(time.Second)

	oldOOM := sampleReport("run-1", models.CategoryOOMKill, models.StateResolved, base)
	newOOM := sampleReport("run-2", models.CategoryOOMKill, models.StateUnresolved, base.Add(10*time.Minute))
	crash := sampleReport("run-3", models.CategoryPodCrash, models.StateResolved, base.Add(20*time.Minute))
	crash.CorrelationKey = "corr-x"

	for _, r := range []models.ExecutionReport{oldOOM, newOOM, crash} {
		if err := store.Append(ctx, r); err != nil {
			t.Fatalf("append %s: %v", r.RunID, err)
		}
	}

	all, err := store.List(ctx, models.ListReportsRequest{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 3 || all[0].RunID != "run-3" || all[2].RunID != "run-1" {
		t.Fatalf("expected newest first, got %v", runIDs(all))
	}

	oom, err := store.List(ctx, models.ListReportsRequest{Category: models.CategoryOOMKill})
	if err != nil {
		t.Fatalf("list by category: %v", err)
	}
	if len(oom) != 2 {
		t.Fatalf("expected 2 oom reports, got %v", runIDs(oom))
	}

	resolved, err := store.List(ctx, models.ListReportsRequest{State: models.StateResolved})
	if err != nil {
		t.Fatalf("list by state: %v", err)
	}
	if len(resolved) != 2 {
		t.Fatalf("expected 2 resolved reports, got %v", runIDs(resolved))
	}

	byCorr, err := store.List(ctx, models.ListReportsRequest{CorrelationKey: "corr-x"})
	if err != nil {
		t.Fatalf("list by correlation: %v", err)
	}
	if len(byCorr) != 1 || byCorr[0].RunID != "run-3" {
		t.Fatalf("expected correlated report, got %v", runIDs(byCorr))
	}

	recent, err := store.List(ctx, models.ListReportsRequest{Since: base.Add(5 * time.Minute)})
	if err != nil {
		t.Fatalf("list since: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("expected 2 recent reports, got %v", runIDs(recent))
	}

	limited, err := store.List(ctx, models.ListReportsRequest{Limit: 1})
	if err != nil {
		t.Fatalf("list limited: %v", err)
	}
	if len(limited) != 1 || limited[0].RunID != "run-3" {
		t.Fatalf("expected only the newest report, got %v", runIDs(limited))
	}
}

func runIDs(reports []models.ExecutionReport) []string {
	ids := make([]string, len(reports))
	for i, r := range reports {
		ids[i] = r.RunID
	}
	return ids
}
