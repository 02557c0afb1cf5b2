package errors

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// auth errors
	ErrAuthenticationFailure = errors.New("authentication failure")
	ErrAuthorizationFailure  = errors.New("authorization failure")
	ErrAuthExpired           = errors.New("authorization expired, user re-consent required")

	// resource errors
	ErrNotFound      = errors.New("not found")
	ErrTenantMissing = errors.New("tenant is missing")

	// throttling errors
	ErrQuotaExceeded = errors.New("daily send quota exceeded")
	ErrRateLimited   = errors.New("rate limit exceeded")

	// pipeline errors
	ErrLLMParse        = errors.New("llm returned unparseable output")
	ErrStatusConflict  = errors.New("email status changed concurrently")
	ErrInternal        = errors.New("internal error")
	ErrAccountInactive = errors.New("mail account is not active")
)

// ValidationError carries the offending field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// ExternalServiceError names the failing subsystem. StatusCode is set when
// the failure was an HTTP response from the provider, zero otherwise.
type ExternalServiceError struct {
	Subsystem  string
	StatusCode int
	Err        error
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Subsystem, e.Err)
}

func (e *ExternalServiceError) Unwrap() error {
	return e.Err
}

func NewExternalServiceError(subsystem string, err error) *ExternalServiceError {
	return &ExternalServiceError{Subsystem: subsystem, Err: err}
}

func NewExternalServiceStatusError(subsystem string, statusCode int, err error) *ExternalServiceError {
	return &ExternalServiceError{Subsystem: subsystem, StatusCode: statusCode, Err: err}
}

// MailAccountError wraps fetch/send failures for a specific account.
type MailAccountError struct {
	AccountID string
	Err       error
}

func (e *MailAccountError) Error() string {
	return fmt.Sprintf("mail account %s: %v", e.AccountID, e.Err)
}

func (e *MailAccountError) Unwrap() error {
	return e.Err
}

func NewMailAccountError(accountID string, err error) *MailAccountError {
	return &MailAccountError{AccountID: accountID, Err: err}
}
