package executor

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ErrBreakerOpen is returned by Acquire while the circuit breaker is open.
var ErrBreakerOpen = errors.New("cluster operations suspended: circuit breaker open")

type breakerState int

const (
	breakerClosed breakerState = iota
	breakerOpen
	breakerHalfOpen
)

// Guard bounds how hard the engine leans on the cluster agent. It combines a
// token-bucket rate limit with a consecutive-failure circuit breaker and is
// safe for use from concurrent runs; it is the only state runs share.
type Guard struct {
	limiter *rate.Limiter

	mu        sync.Mutex
	state     breakerState
	failures  int
	openUntil time.Time

	threshold int
	cooldown  time.Duration
	now       func() time.Time
}

// NewGuard builds a Guard allowing ratePerSecond sustained operations with the
// given burst. The breaker opens after threshold consecutive failures and
// half-opens once cooldown has passed. Non-positive arguments fall back to
// conservative defaults.
func NewGuard(ratePerSecond float64, burst, threshold int, cooldown time.Duration) *Guard {
	if ratePerSecond <= 0 {
		ratePerSecond = 2
	}
	if burst <= 0 {
		burst = 1
	}
	if threshold <= 0 {
		threshold = 5
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &Guard{
		limiter:   rate.NewLimiter(rate.Limit(ratePerSecond), burst),
		threshold: threshold,
		cooldown:  cooldown,
		now:       time.Now,
	}
}

// Acquire reserves permission for one cluster operation. It fails fast with
// ErrBreakerOpen while the breaker is open, otherwise blocks on the rate
// limiter until a token is available or ctx ends.
func (g *Guard) Acquire(ctx context.Context) error {
	if err := g.allow(); err != nil {
		return err
	}
	if err := g.limiter.Wait(ctx); err != nil {
		return err
	}
	return nil
}

// Observe feeds the outcome of a cluster operation into the breaker. Only
// transport-level errors count as failures; an agent that answered, even with
// a refusal, proves the path is healthy.
func (g *Guard) Observe(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err == nil {
		g.state = breakerClosed
		g.failures = 0
		return
	}

	if g.state == breakerHalfOpen {
		// The probe failed; reopen for another cooldown.
		g.state = breakerOpen
		g.openUntil = g.now().Add(g.cooldown)
		g.failures = 0
		return
	}

	g.failures++
	if g.failures >= g.threshold {
		g.state = breakerOpen
		g.openUntil = g.now().Add(g.cooldown)
		g.failures = 0
	}
}

func (g *Guard) allow() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state == breakerOpen {
		if g.now().Before(g.openUntil) {
			return ErrBreakerOpen
		}
		// Cooldown elapsed; let probes through until one settles the state.
		g.state = breakerHalfOpen
	}
	return nil
}
