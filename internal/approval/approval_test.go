package approval

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/SkySingh04/DreamOps-sub000/internal/models"
)

func testRequest() ApprovalRequest {
	return ApprovalRequest{
		RunID:  "run-1",
		Action: "increase_memory_limits",
		Kind:   models.ActionIncreaseMemoryLimits,
		Risk:   models.RiskMedium,
	}
}

func TestMemoryBrokerPreGrant(t *testing.T) {
	broker := NewMemoryBroker()
	broker.Resolve("run-1", "increase_memory_limits", DecisionApproved, 0)

	decision, err := broker.Await(context.Background(), testRequest(), 50*time.Millisecond)
	if err != nil {
		t.Fatalf("await: %v", err)
	}
	if decision != DecisionApproved {
		t.Fatalf("expected approved, got %s", decision)
	}
}

func TestMemoryBrokerWakesWaiter(t *testing.T) {
	broker := NewMemoryBroker()
	go func() {
		time.Sleep(20 * time.Millisecond)
		broker.Resolve("run-1", "increase_memory_limits", DecisionDenied, 0)
	}()

	decision, err := broker.Await(context.Background(), testRequest(), 2*time.Second)
	if err != nil {
		t.Fatalf("await: %v", err)
	}
	if decision != DecisionDenied {
		t.Fatalf("expected denied, got %s", decision)
	}
}

func TestMemoryBrokerTimeoutIsNotAnError(t *testing.T) {
	broker := NewMemoryBroker()
	decision, err := broker.Await(context.Background(), testRequest(), 30*time.Millisecond)
	if err != nil {
		t.Fatalf("timeout should not be an error, got %v", err)
	}
	if decision != DecisionTimeout {
		t.Fatalf("expected timeout, got %s", decision)
	}
}

func TestMemoryBrokerContextCancel(t *testing.T) {
	broker := NewMemoryBroker()
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	decision, err := broker.Await(ctx, testRequest(), 5*time.Second)
	if decision != DecisionTimeout {
		t.Fatalf("expected timeout decision, got %s", decision)
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestMemoryBrokerExpiredDecisionIgnored(t *testing.T) {
	broker := NewMemoryBroker()
	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	broker.now = func() time.Time { return current }

	broker.Resolve("run-1", "increase_memory_limits", DecisionApproved, time.Minute)
	current = current.Add(2 * time.Minute)

	decision, err := broker.Await(context.Background(), testRequest(), 20*time.Millisecond)
	if err != nil {
		t.Fatalf("await: %v", err)
	}
	if decision != DecisionTimeout {
		t.Fatalf("expected expired grant to be ignored, got %s", decision)
	}
}

type fakeStore struct {
	mu       sync.Mutex
	pending  map[string][]byte
	verdicts map[string]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		pending:  make(map[string][]byte),
		verdicts: make(map[string]string),
	}
}

func (f *fakeStore) PublishPending(_ context.Context, key string, payload []byte, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending[key] = payload
	return nil
}

func (f *fakeStore) ClearPending(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.pending, key)
	return nil
}

func (f *fakeStore) ReadVerdict(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	verdict, ok := f.verdicts[key]
	if !ok {
		return "", ErrNotFound
	}
	return verdict, nil
}

func (f *fakeStore) WriteVerdict(_ context.Context, key, verdict string, _ time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.verdicts[key]; exists {
		return false, nil
	}
	f.verdicts[key] = verdict
	return true, nil
}

func (f *fakeStore) Close() error { return nil }

func (f *fakeStore) hasPending(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.pending[key]
	return ok
}

func TestValkeyBrokerFindsSeededDecision(t *testing.T) {
	store := newFakeStore()
	broker := NewValkeyBroker(store, 5*time.Millisecond, nil)
	store.verdicts["run-1/increase_memory_limits"] = "approved"

	decision, err := broker.Await(context.Background(), testRequest(), time.Second)
	if err != nil {
		t.Fatalf("await: %v", err)
	}
	if decision != DecisionApproved {
		t.Fatalf("expected approved, got %s", decision)
	}
	if store.hasPending("run-1/increase_memory_limits") {
		t.Fatal("expected pending marker to be cleared")
	}
}

func TestValkeyBrokerPollsForLateDecision(t *testing.T) {
	store := newFakeStore()
	broker := NewValkeyBroker(store, 5*time.Millisecond, nil)
	go func() {
		time.Sleep(20 * time.Millisecond)
		if err := broker.Resolve(context.Background(), "run-1", "increase_memory_limits", DecisionApproved, time.Minute); err != nil {
			t.Errorf("resolve: %v", err)
		}
	}()

	decision, err := broker.Await(context.Background(), testRequest(), 2*time.Second)
	if err != nil {
		t.Fatalf("await: %v", err)
	}
	if decision != DecisionApproved {
		t.Fatalf("expected approved, got %s", decision)
	}
}

func TestValkeyBrokerTimesOut(t *testing.T) {
	broker := NewValkeyBroker(newFakeStore(), 5*time.Millisecond, nil)
	decision, err := broker.Await(context.Background(), testRequest(), 30*time.Millisecond)
	if err != nil {
		t.Fatalf("timeout should not be an error, got %v", err)
	}
	if decision != DecisionTimeout {
		t.Fatalf("expected timeout, got %s", decision)
	}
}

func TestValkeyBrokerResolveFirstVerdictWins(t *testing.T) {
	broker := NewValkeyBroker(newFakeStore(), 5*time.Millisecond, nil)
	ctx := context.Background()

	if err := broker.Resolve(ctx, "run-1", "a", DecisionApproved, time.Minute); err != nil {
		t.Fatalf("first resolve: %v", err)
	}
	if err := broker.Resolve(ctx, "run-1", "a", DecisionDenied, time.Minute); !errors.Is(err, ErrAlreadyDecided) {
		t.Fatalf("expected ErrAlreadyDecided, got %v", err)
	}
}

func TestValkeyBrokerUnknownVerdictDenies(t *testing.T) {
	store := newFakeStore()
	broker := NewValkeyBroker(store, 5*time.Millisecond, nil)
	store.verdicts["run-1/increase_memory_limits"] = "shrug"

	decision, err := broker.Await(context.Background(), testRequest(), time.Second)
	if err != nil {
		t.Fatalf("await: %v", err)
	}
	if decision != DecisionDenied {
		t.Fatalf("unknown verdict must deny, got %s", decision)
	}
}

func TestValkeyBrokerResolveRejectsBadVerdict(t *testing.T) {
	broker := NewValkeyBroker(newFakeStore(), 5*time.Millisecond, nil)
	if err := broker.Resolve(context.Background(), "run-1", "a", DecisionTimeout, 0); err == nil {
		t.Fatal("expected error for timeout verdict")
	}
}

func TestValkeyBrokerPublishesPendingRequest(t *testing.T) {
	store := newFakeStore()
	broker := NewValkeyBroker(store, 5*time.Millisecond, nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		broker.Await(context.Background(), testRequest(), 100*time.Millisecond)
	}()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if store.hasPending("run-1/increase_memory_limits") {
			<-done
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("pending request was never published")
}
