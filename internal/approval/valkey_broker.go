package approval

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// ErrAlreadyDecided signals that an action already carries a verdict.
var ErrAlreadyDecided = errors.New("approval already decided")

// ValkeyBroker shares approval state through a Store. The engine publishes a
// pending marker per held action and polls for the verdict an approver
// writes; any replica (or the CLI approve command) can supply it.
type ValkeyBroker struct {
	store        Store
	pollInterval time.Duration
	logger       *slog.Logger
}

// NewValkeyBroker wraps a Store as an approval broker.
func NewValkeyBroker(store Store, pollInterval time.Duration, logger *slog.Logger) *ValkeyBroker {
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ValkeyBroker{store: store, pollInterval: pollInterval, logger: logger}
}

// Await publishes the pending request and polls for a verdict until wait
// elapses. Store hiccups are logged and polled through; they never promote
// to an approval.
func (b *ValkeyBroker) Await(ctx context.Context, req ApprovalRequest, wait time.Duration) (Decision, error) {
	key := requestKey(req.RunID, req.Action)

	if payload, err := json.Marshal(req); err == nil {
		if err := b.store.PublishPending(ctx, key, payload, wait); err != nil {
			b.logger.Warn("publish pending approval failed",
				slog.String("run_id", req.RunID),
				slog.String("action", req.Action),
				slog.Any("error", err))
		}
	}

	if decision, ok := b.lookup(ctx, key); ok {
		return decision, nil
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	ticker := time.NewTicker(b.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			b.cleanup(key)
			return DecisionTimeout, ctx.Err()
		case <-timer.C:
			b.cleanup(key)
			return DecisionTimeout, nil
		case <-ticker.C:
			if decision, ok := b.lookup(ctx, key); ok {
				return decision, nil
			}
		}
	}
}

// Resolve writes a verdict for a held action. The first verdict wins;
// subsequent ones fail with ErrAlreadyDecided.
func (b *ValkeyBroker) Resolve(ctx context.Context, runID, action string, decision Decision, ttl time.Duration) error {
	if decision != DecisionApproved && decision != DecisionDenied {
		return fmt.Errorf("decision must be approved or denied, got %q", decision)
	}
	key := requestKey(runID, action)

	wrote, err := b.store.WriteVerdict(ctx, key, string(decision), ttl)
	if err != nil {
		return fmt.Errorf("write approval decision: %w", err)
	}
	if !wrote {
		return ErrAlreadyDecided
	}
	if err := b.store.ClearPending(ctx, key); err != nil {
		b.logger.Debug("clear pending approval failed", slog.String("key", key), slog.Any("error", err))
	}
	return nil
}

func (b *ValkeyBroker) lookup(ctx context.Context, key string) (Decision, bool) {
	verdict, err := b.store.ReadVerdict(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			b.logger.Warn("approval lookup failed", slog.String("key", key), slog.Any("error", err))
		}
		return "", false
	}

	b.cleanup(key)
	switch Decision(strings.ToLower(strings.TrimSpace(verdict))) {
	case DecisionApproved:
		return DecisionApproved, true
	case DecisionDenied:
		return DecisionDenied, true
	default:
		// An unrecognised verdict never releases an action.
		b.logger.Warn("unrecognised approval verdict", slog.String("key", key), slog.String("value", verdict))
		return DecisionDenied, true
	}
}

func (b *ValkeyBroker) cleanup(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := b.store.ClearPending(ctx, key); err != nil {
		b.logger.Debug("clear pending approval failed", slog.String("key", key), slog.Any("error", err))
	}
}
