package types

import (
	"errors"
	"fmt"
)

// ValidationError reports malformed construction input.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("tally: validation failed for %s: %s", e.Field, e.Message)
}

// Invalid builds a ValidationError.
func Invalid(field, format string, args ...any) error {
	return ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is or wraps a ValidationError.
func IsValidation(err error) bool {
	var ve ValidationError
	return errors.As(err, &ve)
}

// RequirePositive validates that an amount is strictly positive and,
// when currency is set, denominated in it.
func RequirePositive(field string, m Money, currency string) error {
	if !m.IsPositive() {
		return Invalid(field, "must be greater than zero, got %s", m.FormatMajor())
	}
	if currency != "" && m.Currency != currency {
		return Invalid(field, "currency %q does not match ledger currency %q", m.Currency, currency)
	}
	return nil
}
