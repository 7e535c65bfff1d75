// Package ratelimit implements the request admission gate: a fixed-window
// budget per client key, atomic per-key increment-and-compare, and a
// fail-closed posture when the counter store is unreachable.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

var (
	errMissingStore  = errors.New("ratelimit: counter store required")
	errMissingBudget = errors.New("ratelimit: at least one budget required")
)

// Budget is a request allowance of Requests per Window.
type Budget struct {
	Requests int
	Window   time.Duration
}

func (b Budget) validate() error {
	if b.Requests <= 0 {
		return fmt.Errorf("ratelimit: budget requests must be positive, got %d", b.Requests)
	}
	if b.Window <= 0 {
		return fmt.Errorf("ratelimit: budget window must be positive, got %s", b.Window)
	}
	return nil
}

// CounterStore is the shared counter behind the gate. Incr atomically
// increments the fixed-window counter for key and reports the count within
// the current window together with the window's reset instant. Counting for
// the same key must be a single logical operation with respect to concurrent
// increments.
type CounterStore interface {
	Incr(ctx context.Context, key string, window time.Duration) (count int64, resetAt time.Time, err error)
}

// Decision is the outcome of an admission check.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// GateConfig describes an admission gate. Multiple budgets are enforced
// simultaneously; a request is admitted only when every budget has headroom.
type GateConfig struct {
	Budgets []Budget
	Store   CounterStore
	Clock   func() time.Time
	Logger  *zap.Logger
}

// Gate decides per key whether to admit or throttle a request.
type Gate struct {
	budgets []Budget
	store   CounterStore
	clock   func() time.Time
	logger  *zap.Logger
}

// NewGate constructs an admission gate.
func NewGate(cfg GateConfig) (*Gate, error) {
	if cfg.Store == nil {
		return nil, errMissingStore
	}
	if len(cfg.Budgets) == 0 {
		return nil, errMissingBudget
	}
	for _, budget := range cfg.Budgets {
		if err := budget.validate(); err != nil {
			return nil, err
		}
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{
		budgets: append([]Budget(nil), cfg.Budgets...),
		store:   cfg.Store,
		clock:   clock,
		logger:  logger,
	}, nil
}

// Admit counts the request against every budget for key and reports the
// combined decision. A store failure denies the request: failing open would
// void the abuse-control guarantee the gate exists to provide.
func (g *Gate) Admit(ctx context.Context, key string) Decision {
	minRemaining := -1
	for index, budget := range g.budgets {
		// Distinct keys per budget keep an hourly and a per-minute window
		// from sharing a counter.
		bucketKey := fmt.Sprintf("%s#%d", key, index)
		count, resetAt, err := g.store.Incr(ctx, bucketKey, budget.Window)
		if err != nil {
			g.logger.Warn("counter store unavailable, denying admission",
				zap.String("key", key), zap.Error(err))
			return Decision{Allowed: false, RetryAfter: budget.Window}
		}

		if int(count) > budget.Requests {
			retryAfter := resetAt.Sub(g.clock())
			if retryAfter < 0 {
				retryAfter = 0
			}
			return Decision{Allowed: false, Remaining: 0, RetryAfter: retryAfter}
		}

		remaining := budget.Requests - int(count)
		if minRemaining < 0 || remaining < minRemaining {
			minRemaining = remaining
		}
	}
	return Decision{Allowed: true, Remaining: minRemaining}
}
