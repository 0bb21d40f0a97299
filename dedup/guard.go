// Package dedup implements the idempotency guard for meal jobs.
//
// The guard is the sole cross-invocation shared state in the pipeline:
// a durable record per idempotency key with expiring entries. Claiming
// is a single atomic conditional write, which is what turns the
// queue's at-least-once delivery into effectively exactly-once side
// effects. A plain read-then-write would reintroduce duplicates under
// concurrent redelivery.
package dedup

import (
	"context"

	"github.com/platewise/platewise/types"
)

// ClaimResult is the outcome of a claim attempt.
type ClaimResult string

const (
	// Claimed means this attempt now owns the key and must process.
	Claimed ClaimResult = "claimed"
	// AlreadyCompleted means a prior attempt committed; the caller
	// must short-circuit without repeating side effects.
	AlreadyCompleted ClaimResult = "completed"
	// AlreadyInProgress means another attempt holds a fresh claim;
	// the caller must not retry immediately.
	AlreadyInProgress ClaimResult = "in_progress"
)

// Claim is the result of Guard.Claim.
type Claim struct {
	Result ClaimResult
	// Summary is the cached meal summary from the committing attempt.
	// Set best-effort on AlreadyCompleted, nil otherwise.
	Summary *types.MealSummary
}

// Guard gates duplicate processing of one idempotency key.
//
// Record lifecycle: absent → in_progress (Claim) → completed (Commit)
// or absent again (Release / expiry). Expired records are
// indistinguishable from absent ones. A stale in_progress record older
// than the grace period may be reclaimed, bounded externally by the
// queue's maximum receive count.
type Guard interface {
	// Claim atomically creates an in_progress record if the key is
	// absent, expired, or stale. Store unavailability is a transient
	// error; callers must never assume a claim succeeded.
	Claim(ctx context.Context, key string) (Claim, error)

	// Commit marks the key completed and caches the summary for
	// duplicate replays. Must be called before the queue message is
	// acknowledged.
	Commit(ctx context.Context, key string, summary *types.MealSummary) error

	// Release drops an in_progress record after a definitive failure
	// so a redelivery can retry without waiting for expiry. Completed
	// records are never released.
	Release(ctx context.Context, key string) error
}
