// Package types defines core domain types for the platewise pipeline.
//
//nolint:revive // types is a common Go package naming convention
package types

import (
	"errors"
	"fmt"
	"time"
)

// MealJob is one queued "analyze this meal" request.
//
// Jobs are created by the ingress webhook and consumed exactly once by
// the pipeline. The struct is immutable after creation; the
// idempotency key is the sole identity used for dedup.
type MealJob struct {
	// IdempotencyKey is the caller-supplied unique job identity.
	IdempotencyKey string `json:"idempotency_key" validate:"required"`
	// ChatIdentity is the opaque chat-platform recipient id.
	ChatIdentity string `json:"chat_identity" validate:"required"`
	// ImageReference is the opaque chat-platform file token.
	ImageReference string `json:"image_reference" validate:"required"`
	// ReceivedAt is when the ingress accepted the request.
	ReceivedAt time.Time `json:"received_at"`
}

// Validate checks that all required job fields are present.
// A job failing validation is rejected before any claim is taken.
func (j *MealJob) Validate() error {
	if j == nil {
		return errors.New("nil job")
	}
	if j.IdempotencyKey == "" {
		return errors.New("missing idempotency_key")
	}
	if j.ChatIdentity == "" {
		return errors.New("missing chat_identity")
	}
	if j.ImageReference == "" {
		return errors.New("missing image_reference")
	}
	return nil
}

// String returns a log-safe job descriptor.
func (j *MealJob) String() string {
	return fmt.Sprintf("job{key=%s chat=%s}", j.IdempotencyKey, j.ChatIdentity)
}
