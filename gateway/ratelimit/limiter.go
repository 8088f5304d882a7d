// Package ratelimit implements the gateway's rate limiter: a tagged variant
// of fixed-window, concurrency, and no-op limiters, selected by policy, and
// addressed per identity key.
package ratelimit

import "context"

// Lease is returned by a successful Acquire. Release must be called exactly
// once; for fixed-window limiters it is a no-op (the window itself expires
// the permit), for concurrency limiters it frees the in-flight slot.
type Lease interface {
	Release()
}

// Limiter is the tagged-variant interface both concrete limiters and the
// no-op implement: admit a single permit for key, honoring ctx cancellation
// while queued, or report rejection.
type Limiter interface {
	Acquire(ctx context.Context, key string) (Lease, bool)
}

type noopLease struct{}

func (noopLease) Release() {}

// NoOp always admits. Set does not select it: when rate limiting is
// globally disabled, Set.Middleware skips limiting altogether.
type NoOp struct{}

func (NoOp) Acquire(context.Context, string) (Lease, bool) { return noopLease{}, true }
