// Package apperr defines the tagged error taxonomy used throughout pdpsync.
//
// Every component returns one of these kinds (wrapped with context via
// fmt.Errorf("...: %w", err)) instead of overloading a generic error with a
// string code, so callers can branch on kind with errors.As.
package apperr

import "fmt"

// ValidationError signals malformed or missing configuration. Fatal to a run.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Msg)
}

// NewValidation builds a ValidationError.
func NewValidation(field, msg string) error {
	return &ValidationError{Field: field, Msg: msg}
}

// CredentialsMissing signals that client_id, client_secret, or ims_org_id is
// empty, or (via Cause) that a supplied credential failed validation.
type CredentialsMissing struct {
	Field string
	Cause error
}

func (e *CredentialsMissing) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("credentials missing: %s: %v", e.Field, e.Cause)
	}
	return fmt.Sprintf("credentials missing: %s", e.Field)
}

func (e *CredentialsMissing) Unwrap() error { return e.Cause }

// IssuerRejected signals a non-2xx response from the identity service.
type IssuerRejected struct {
	Status int
	Body   string
}

func (e *IssuerRejected) Error() string {
	return fmt.Sprintf("issuer rejected credentials: status=%d body=%s", e.Status, e.Body)
}

// BatchError signals that one admin batch's submission failed after
// retries. Recovered locally: the batch's records are marked
// failed, the run continues.
type BatchError struct {
	Queue string
	Cause error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("batch error [%s]: %v", e.Queue, e.Cause)
}

func (e *BatchError) Unwrap() error { return e.Cause }

// GlobalError signals that admin job-status polling failed or an invariant
// was violated. Fatal to the run.
type GlobalError struct {
	Op    string
	Cause error
}

func (e *GlobalError) Error() string {
	return fmt.Sprintf("global error [%s]: %v", e.Op, e.Cause)
}

func (e *GlobalError) Unwrap() error { return e.Cause }

// JobFailed is the orchestrator-level fatal wrapper produced when a step
// cannot safely continue.
type JobFailed struct {
	Stage string
	Cause error
}

func (e *JobFailed) Error() string {
	return fmt.Sprintf("job failed at %s: %v", e.Stage, e.Cause)
}

func (e *JobFailed) Unwrap() error { return e.Cause }

// NotFoundError signals a per-SKU 404 from the catalog service. Ignorable:
// counted as failed for that SKU, the run continues.
type NotFoundError struct {
	SKU string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("not found: sku=%s", e.SKU)
}

// RateLimitedError is produced by the limiter when Acquire times out.
type RateLimitedError struct {
	RetryAfterMs int64
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited: retry_after_ms=%d", e.RetryAfterMs)
}
