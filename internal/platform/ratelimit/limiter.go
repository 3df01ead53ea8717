// Package ratelimit implements a fixed-window rate limiter on top of
// the store's atomic increment. All counting lives in the store, so
// limits hold across server instances without any in-process state.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/clinnotes/clinnotes/internal/platform/keyspace"
	"github.com/clinnotes/clinnotes/internal/platform/kvstore"
)

const countAttr = "count"

// Policy names one guarded surface and its budget.
type Policy struct {
	Name          string
	MaxRequests   int64
	WindowSeconds int64
}

// Result is the outcome of one Increment.
type Result struct {
	Allowed bool
	Current int64
	Limit   int64
	// RetryAfter is the whole seconds until the window resets; set only
	// when Allowed is false.
	RetryAfter int
}

// LimitExceededError is returned by Enforce when the window budget is
// spent.
type LimitExceededError struct {
	Policy     string
	RetryAfter int
}

func (e *LimitExceededError) Error() string {
	return fmt.Sprintf("rate limit exceeded for policy %s, retry after %ds", e.Policy, e.RetryAfter)
}

// Limiter counts requests per (policy, identifier) in fixed windows.
type Limiter struct {
	store  kvstore.Store
	logger zerolog.Logger
	now    func() time.Time
}

func NewLimiter(store kvstore.Store, logger zerolog.Logger) *Limiter {
	return &Limiter{store: store, logger: logger, now: time.Now}
}

// Increment adds one request to the current window and reports whether
// it fits the budget. The limiter fails open: a store failure is logged
// as a warning and counted as allowed, because availability of the
// guarded endpoint outranks strict enforcement.
func (l *Limiter) Increment(ctx context.Context, policy Policy, identifier string) Result {
	now := l.now().Unix()
	windowStart := now - now%policy.WindowSeconds
	windowEnd := windowStart + policy.WindowSeconds

	key := kvstore.Key{
		Partition: keyspace.RateLimitPartition(policy.Name, identifier),
		Sort:      keyspace.WindowSort(windowStart),
	}
	// The record only needs to outlive its own window; one extra window
	// of slack keeps a clock-skewed reader from resurrecting it.
	ttl := time.Duration(windowEnd-now+policy.WindowSeconds) * time.Second

	count, err := l.store.Increment(ctx, key, countAttr, ttl)
	if err != nil {
		l.logger.Warn().
			Err(err).
			Str("policy", policy.Name).
			Str("identifier", identifier).
			Msg("rate limit store unavailable, failing open")
		return Result{Allowed: true, Current: 0, Limit: policy.MaxRequests}
	}

	res := Result{Current: count, Limit: policy.MaxRequests, Allowed: count <= policy.MaxRequests}
	if !res.Allowed {
		retryAfter := windowEnd - now
		if retryAfter < 1 {
			retryAfter = 1
		}
		res.RetryAfter = int(retryAfter)
	}
	return res
}

// Enforce increments and converts an exhausted budget into a
// LimitExceededError.
func (l *Limiter) Enforce(ctx context.Context, policy Policy, identifier string) error {
	res := l.Increment(ctx, policy, identifier)
	if !res.Allowed {
		return &LimitExceededError{Policy: policy.Name, RetryAfter: res.RetryAfter}
	}
	return nil
}
