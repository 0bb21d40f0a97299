// Error classification for the pipeline.
//
// Each stage returns a classified error rather than an
// undifferentiated failure; the queue consumer is the only component
// that maps classes to retry, dead-letter, or acknowledge decisions.
// Use errors.Is(err, ErrXxx) for typed assertions.
package types

import (
	"errors"
	"fmt"
)

// Sentinel errors for stage failure classification.
var (
	// ErrValidation indicates a malformed job or payload.
	// Non-retryable: routed to manual inspection without spending
	// retry budget.
	ErrValidation = errors.New("validation failed")

	// ErrIdentification indicates the vision model produced no usable
	// food items after the internal retry. Non-retryable.
	ErrIdentification = errors.New("identification failed")

	// ErrFetch indicates the meal image could not be retrieved.
	// Transient.
	ErrFetch = errors.New("image fetch failed")

	// ErrLookup indicates a nutrition database call failed. Transient.
	ErrLookup = errors.New("nutrition lookup failed")

	// ErrModel indicates an AI-assisted call failed at the transport
	// level (network, timeout, rate limit). Transient; distinct from
	// ErrIdentification, which is a content failure.
	ErrModel = errors.New("model call failed")

	// ErrResolution indicates no candidate survived for one item.
	// Per-item condition; the aggregator decides job impact.
	ErrResolution = errors.New("resolution failed")

	// ErrAggregation indicates every item failed resolution.
	// Retryable: lookup APIs are often transiently degraded.
	ErrAggregation = errors.New("aggregation failed")

	// ErrStore indicates the dedup store was unavailable. Transient;
	// never assume a claim succeeded.
	ErrStore = errors.New("dedup store unavailable")
)

// StageError wraps an underlying error with its pipeline stage and
// classification. The original error stays in the chain for errors.As.
type StageError struct {
	// Kind is the sentinel classifying the failure.
	Kind error
	// Stage is the pipeline stage that failed (e.g. "identify").
	Stage string
	// Err is the underlying error.
	Err error
}

func (e *StageError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v: %v", e.Stage, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Stage, e.Kind)
}

// Unwrap returns the underlying error for chain traversal.
func (e *StageError) Unwrap() error {
	return e.Err
}

// Is reports whether the error matches the target sentinel.
func (e *StageError) Is(target error) bool {
	return errors.Is(e.Kind, target)
}

// NewStageError creates a classified stage error.
func NewStageError(kind error, stage string, err error) *StageError {
	return &StageError{Kind: kind, Stage: stage, Err: err}
}

// Retryable reports whether the error class warrants queue redelivery.
// Validation and identification failures are terminal; everything else
// is assumed transient.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, ErrValidation) && !errors.Is(err, ErrIdentification)
}
