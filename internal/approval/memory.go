package approval

import (
	"context"
	"sync"
	"time"
)

// MemoryBroker keeps approval decisions in process memory. It serves tests
// and single-process deployments; replicas that must share approvals use the
// valkey broker instead.
type MemoryBroker struct {
	mu        sync.Mutex
	decisions map[string]memoryDecision
	waiters   map[string][]chan Decision
	now       func() time.Time
}

type memoryDecision struct {
	decision  Decision
	expiresAt time.Time
}

// NewMemoryBroker creates an empty in-memory broker.
func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{
		decisions: make(map[string]memoryDecision),
		waiters:   make(map[string][]chan Decision),
		now:       time.Now,
	}
}

// Resolve records a decision for a run action and wakes any waiter. A zero
// ttl keeps the decision until consumed.
func (b *MemoryBroker) Resolve(runID, action string, decision Decision, ttl time.Duration) {
	key := requestKey(runID, action)

	b.mu.Lock()
	var expires time.Time
	if ttl > 0 {
		expires = b.now().Add(ttl)
	}
	b.decisions[key] = memoryDecision{decision: decision, expiresAt: expires}
	waiting := b.waiters[key]
	delete(b.waiters, key)
	b.mu.Unlock()

	for _, ch := range waiting {
		ch <- decision
	}
}

// Await blocks until a decision lands, the wait elapses, or ctx ends.
// Elapsing is not an error: it returns DecisionTimeout with a nil error so
// the caller records an ordinary approval-timeout skip.
func (b *MemoryBroker) Await(ctx context.Context, req ApprovalRequest, wait time.Duration) (Decision, error) {
	key := requestKey(req.RunID, req.Action)

	b.mu.Lock()
	if existing, ok := b.decisions[key]; ok {
		if existing.expiresAt.IsZero() || b.now().Before(existing.expiresAt) {
			delete(b.decisions, key)
			b.mu.Unlock()
			return existing.decision, nil
		}
		delete(b.decisions, key)
	}
	ch := make(chan Decision, 1)
	b.waiters[key] = append(b.waiters[key], ch)
	b.mu.Unlock()

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case decision := <-ch:
		return decision, nil
	case <-timer.C:
		b.dropWaiter(key, ch)
		return DecisionTimeout, nil
	case <-ctx.Done():
		b.dropWaiter(key, ch)
		return DecisionTimeout, ctx.Err()
	}
}

func (b *MemoryBroker) dropWaiter(key string, ch chan Decision) {
	b.mu.Lock()
	defer b.mu.Unlock()

	remaining := b.waiters[key][:0]
	for _, w := range b.waiters[key] {
		if w != ch {
			remaining = append(remaining, w)
		}
	}
	if len(remaining) == 0 {
		delete(b.waiters, key)
	} else {
		b.waiters[key] = remaining
	}
}
