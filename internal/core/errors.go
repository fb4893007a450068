package core

import "fmt"

// ValidationError reports malformed or inconsistent user input. It blocks
// submission and is fixed by the user correcting the named field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

// NewValidationError formats a ValidationError for field.
func NewValidationError(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// MissingRateError is returned when no rate (direct or inverse) exists for a
// currency pair. Conversions never fall back to 1:1.
type MissingRateError struct {
	From Currency
	To   Currency
}

func (e *MissingRateError) Error() string {
	return fmt.Sprintf("no exchange rate from %s to %s", e.From, e.To)
}

// ExternalServiceError wraps a failed call to an outside service such as
// receipt upload or extraction. These calls are not retried.
type ExternalServiceError struct {
	Service string
	Op      string
	Err     error
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Service, e.Op, e.Err)
}

func (e *ExternalServiceError) Unwrap() error {
	return e.Err
}
