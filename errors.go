package tally

import (
	"errors"

	"github.com/xraph/tally/operation"
	"github.com/xraph/tally/subscription"
	"github.com/xraph/tally/types"
)

// Sentinel errors for common failure scenarios.
var (
	// General errors
	ErrAlreadyExists = errors.New("tally: already exists")

	// Operation errors
	ErrOperationNotFound     = errors.New("tally: operation not found")
	ErrDuplicateReference    = operation.ErrDuplicateReference
	ErrCreditAlreadyReviewed = operation.ErrAlreadyReviewed
	ErrCurrencyMismatch      = errors.New("tally: operation currency does not match ledger currency")

	// Plan errors
	ErrPlanNotFound = errors.New("tally: plan not found")
	ErrPlanInactive = errors.New("tally: plan is inactive")
	ErrPlanInUse    = errors.New("tally: plan is in use by subscriptions")

	// Subscription errors
	ErrSubscriptionNotFound     = errors.New("tally: subscription not found")
	ErrActiveSubscriptionExists = errors.New("tally: user already has an active subscription")
	ErrSubscriptionNotActive    = subscription.ErrNotActive

	// Store errors
	ErrStoreClosed = errors.New("tally: store is closed")
)

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrOperationNotFound) ||
		errors.Is(err, ErrPlanNotFound) ||
		errors.Is(err, ErrSubscriptionNotFound)
}

// IsConflict returns true if the error is a domain rule violation.
func IsConflict(err error) bool {
	return errors.Is(err, ErrActiveSubscriptionExists) ||
		errors.Is(err, ErrPlanInactive) ||
		errors.Is(err, ErrPlanInUse) ||
		errors.Is(err, ErrSubscriptionNotActive) ||
		errors.Is(err, ErrCreditAlreadyReviewed) ||
		errors.As(err, new(conflictError))
}

// IsValidation returns true if the error is a ValidationError.
func IsValidation(err error) bool {
	return types.IsValidation(err)
}

// conflictError marks an otherwise non-conflict error as a domain conflict,
// e.g. an unknown plan during enrollment.
type conflictError struct{ err error }

func (e conflictError) Error() string { return e.err.Error() }
func (e conflictError) Unwrap() error { return e.err }
