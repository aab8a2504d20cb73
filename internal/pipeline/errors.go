package pipeline

import (
	"errors"
	"fmt"

	"github.com/deveshk/invoicescan/internal/store"
)

// TransientExtractionError means the extraction collaborator failed to
// respond or upload. Retryable at the caller's discretion.
type TransientExtractionError struct {
	Err error
}

func (e *TransientExtractionError) Error() string {
	return fmt.Sprintf("extraction failed: %v", e.Err)
}

func (e *TransientExtractionError) Unwrap() error {
	return e.Err
}

// ContentRejectedError means the model explicitly flagged the input as
// unprocessable (e.g. a blurry image). Re-sending the same input will
// not help, so this must never be retried.
type ContentRejectedError struct {
	Reason string
}

func (e *ContentRejectedError) Error() string {
	return fmt.Sprintf("content rejected by model: %s", e.Reason)
}

// MalformedResponseError means the model response could not be parsed
// as the expected payload. Raw carries the full response for diagnosis.
type MalformedResponseError struct {
	Raw string
	Err error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed model response: %v", e.Err)
}

func (e *MalformedResponseError) Unwrap() error {
	return e.Err
}

// ValidationError means a normalized record failed the required-field
// policy. The document is skipped; the batch continues.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s", e.Reason)
}

// FailureKind labels a per-document failure for batch reporting.
type FailureKind string

const (
	FailureTransient FailureKind = "transient"
	FailureRejected  FailureKind = "rejected"
	FailureMalformed FailureKind = "malformed"
	FailureInvalid   FailureKind = "invalid"
	FailureStore     FailureKind = "store"
	FailureUnknown   FailureKind = "unknown"
)

// ClassifyFailure maps an error to its failure kind.
func ClassifyFailure(err error) FailureKind {
	var (
		transient *TransientExtractionError
		rejected  *ContentRejectedError
		malformed *MalformedResponseError
		invalid   *ValidationError
		storeErr  *store.Error
	)
	switch {
	case errors.As(err, &transient):
		return FailureTransient
	case errors.As(err, &rejected):
		return FailureRejected
	case errors.As(err, &malformed):
		return FailureMalformed
	case errors.As(err, &invalid):
		return FailureInvalid
	case errors.As(err, &storeErr):
		return FailureStore
	default:
		return FailureUnknown
	}
}

// Retryable reports whether a failed document is worth re-submitting
// with the same input. Only transient extraction failures are.
func Retryable(err error) bool {
	return ClassifyFailure(err) == FailureTransient
}
