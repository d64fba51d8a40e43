package tally

import (
	"github.com/xraph/tally/operation"
	"github.com/xraph/tally/subscription"
	"github.com/xraph/tally/types"
)

// Re-export common types for convenience so users don't have to import types package.

// Money is re-exported from types package.
type Money = types.Money

// Entity is re-exported from types package.
type Entity = types.Entity

// ValidationError is re-exported from types package.
type ValidationError = types.ValidationError

// Re-export Money constructors
var (
	BRL        = types.BRL
	USD        = types.USD
	EUR        = types.EUR
	Zero       = types.Zero
	Sum        = types.Sum
	ParseMajor = types.ParseMajor
)

// Re-export operation statuses and subscription end reasons used in service calls.
const (
	StatusApproved = operation.StatusApproved
	StatusRejected = operation.StatusRejected

	ReasonCancellation = subscription.ReasonCancellation
	ReasonCompletion   = subscription.ReasonCompletion
)
