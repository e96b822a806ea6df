// Package errors defines the error taxonomy for the ledger reconciler.
package errors

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/ledger-reconciler/internal/types"
)

// Category represents the category of an error
type Category string

const (
	// CategoryConfiguration represents missing credential/config errors,
	// raised before any network call is made
	CategoryConfiguration Category = "configuration"
	// CategoryTransient represents rate-limited or timed-out source calls,
	// retried by the request client before escalation
	CategoryTransient Category = "transient"
	// CategoryPermanent represents non-retryable source failures
	CategoryPermanent Category = "permanent"
	// CategoryStage represents a pipeline stage that could not complete
	CategoryStage Category = "stage"
	// CategoryStorage represents local store errors
	CategoryStorage Category = "storage"
	// CategoryUserInput represents invalid caller input (4xx)
	CategoryUserInput Category = "user_input"
	// CategoryNotFound represents missing records (4xx)
	CategoryNotFound Category = "not_found"
)

// CategorizedError represents an error with category and HTTP status code
type CategorizedError struct {
	Category   Category
	StatusCode int
	Code       string
	Message    string
	Details    map[string]interface{}
	Cause      error
}

// Error implements the error interface
func (e *CategorizedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause
func (e *CategorizedError) Unwrap() error {
	return e.Cause
}

// ToServiceError converts to a ServiceError for API responses
func (e *CategorizedError) ToServiceError() *types.ServiceError {
	return &types.ServiceError{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
	}
}

// NewConfigurationError reports a missing credential or setting.
// Fails fast before any network call.
func NewConfigurationError(setting string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryConfiguration,
		StatusCode: http.StatusPreconditionFailed,
		Code:       "MISSING_CONFIGURATION",
		Message:    fmt.Sprintf("required configuration missing: %s", setting),
		Details: map[string]interface{}{
			"setting": setting,
		},
	}
}

// NewRateLimitedError reports a provider-signaled rate limit (HTTP 429)
func NewRateLimitedError(label string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryTransient,
		StatusCode: http.StatusTooManyRequests,
		Code:       "SOURCE_RATE_LIMITED",
		Message:    fmt.Sprintf("data source rate limited: %s", label),
		Details: map[string]interface{}{
			"label": label,
		},
	}
}

// NewTimeoutError reports a call that produced no response within the window
func NewTimeoutError(label string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryTransient,
		StatusCode: http.StatusGatewayTimeout,
		Code:       "SOURCE_TIMEOUT",
		Message:    fmt.Sprintf("data source timed out: %s", label),
		Cause:      cause,
		Details: map[string]interface{}{
			"label": label,
		},
	}
}

// NewPermanentSourceError reports a non-retryable source failure
func NewPermanentSourceError(label string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryPermanent,
		StatusCode: http.StatusBadGateway,
		Code:       "SOURCE_ERROR",
		Message:    fmt.Sprintf("data source request failed: %s", label),
		Cause:      cause,
		Details: map[string]interface{}{
			"label": label,
		},
	}
}

// NewRetriesExhaustedError escalates a transient failure after the retry budget
func NewRetriesExhaustedError(label string, attempts int, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryTransient,
		StatusCode: http.StatusBadGateway,
		Code:       "SOURCE_RETRIES_EXHAUSTED",
		Message:    fmt.Sprintf("data source failed after %d retries: %s", attempts, label),
		Cause:      cause,
		Details: map[string]interface{}{
			"label":    label,
			"attempts": attempts,
		},
	}
}

// NewStageError reports that an import stage could not complete for a wallet.
// Prior stages' persisted data is kept.
func NewStageError(wallet string, stage types.ImportStage, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryStage,
		StatusCode: http.StatusInternalServerError,
		Code:       "IMPORT_STAGE_FAILED",
		Message:    fmt.Sprintf("import stage %s failed for wallet %s", stage, wallet),
		Cause:      cause,
		Details: map[string]interface{}{
			"wallet": wallet,
			"stage":  string(stage),
		},
	}
}

// NewStorageError reports a local store failure
func NewStorageError(operation string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryStorage,
		StatusCode: http.StatusInternalServerError,
		Code:       "STORAGE_ERROR",
		Message:    fmt.Sprintf("store error during %s", operation),
		Cause:      cause,
		Details: map[string]interface{}{
			"operation": operation,
		},
	}
}

// NewInvalidInputError reports invalid caller input
func NewInvalidInputError(field, reason string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryUserInput,
		StatusCode: http.StatusBadRequest,
		Code:       "INVALID_INPUT",
		Message:    fmt.Sprintf("invalid %s: %s", field, reason),
		Details: map[string]interface{}{
			"field":  field,
			"reason": reason,
		},
	}
}

// NewNotFoundError reports a missing record
func NewNotFoundError(resource, id string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryNotFound,
		StatusCode: http.StatusNotFound,
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found: %s", resource, id),
		Details: map[string]interface{}{
			"resource": resource,
			"id":       id,
		},
	}
}

// Categorize wraps an arbitrary error into a CategorizedError
func Categorize(err error) *CategorizedError {
	if err == nil {
		return nil
	}
	var catErr *CategorizedError
	if errors.As(err, &catErr) {
		return catErr
	}
	return &CategorizedError{
		Category:   CategoryStage,
		StatusCode: http.StatusInternalServerError,
		Code:       "INTERNAL_ERROR",
		Message:    "unexpected error",
		Cause:      err,
	}
}

// IsTransient reports whether the error is a retryable source failure
func IsTransient(err error) bool {
	var catErr *CategorizedError
	return errors.As(err, &catErr) && catErr.Category == CategoryTransient
}

// IsRateLimited reports whether the error is a provider rate limit
func IsRateLimited(err error) bool {
	var catErr *CategorizedError
	return errors.As(err, &catErr) && catErr.Code == "SOURCE_RATE_LIMITED"
}

// IsTimeout reports whether the error is a source timeout
func IsTimeout(err error) bool {
	var catErr *CategorizedError
	return errors.As(err, &catErr) && catErr.Code == "SOURCE_TIMEOUT"
}

// StageOf extracts the wallet and stage from a stage error, if present
func StageOf(err error) (wallet string, stage types.ImportStage, ok bool) {
	var catErr *CategorizedError
	if !errors.As(err, &catErr) || catErr.Category != CategoryStage {
		return "", "", false
	}
	if w, found := catErr.Details["wallet"].(string); found {
		wallet = w
	}
	if s, found := catErr.Details["stage"].(string); found {
		stage = types.ImportStage(s)
	}
	return wallet, stage, true
}

// HTTPStatus returns the HTTP status code for an error
func HTTPStatus(err error) int {
	if catErr := Categorize(err); catErr != nil {
		return catErr.StatusCode
	}
	return http.StatusInternalServerError
}
