// Package subscription defines a user's enrollment in a plan and its
// lifecycle.
package subscription

import (
	"errors"
	"time"

	"github.com/xraph/tally/id"
	"github.com/xraph/tally/types"
)

// ErrNotActive is returned when ending a subscription that already ended.
var ErrNotActive = errors.New("tally: subscription is not active")

// Status is the lifecycle state of a subscription.
type Status string

const (
	StatusActive   Status = "active"
	StatusCanceled Status = "canceled"
	StatusFinished Status = "finished"
)

// Reason says why a subscription ends.
type Reason string

const (
	ReasonCancellation Reason = "cancellation"
	ReasonCompletion   Reason = "completion"
)

// Subscription ties a user to a plan from StartedAt until it ends. EndsAt is
// nil for open-ended subscriptions.
type Subscription struct {
	types.Entity
	ID        id.SubscriptionID `json:"id"`
	UserID    string            `json:"user_id"`
	PlanID    id.PlanID         `json:"plan_id"`
	StartedAt time.Time         `json:"started_at"`
	EndsAt    *time.Time        `json:"ends_at,omitempty"`
	Status    Status            `json:"status"`
	EndedAt   *time.Time        `json:"ended_at,omitempty"`
}

// New returns an active subscription starting at now. A positive
// durationMonths bounds it to that many calendar months, counted in now's
// location.
func New(userID string, planID id.PlanID, durationMonths int, now time.Time) (*Subscription, error) {
	if userID == "" {
		return nil, types.Invalid("user_id", "must not be empty")
	}
	if planID.IsNil() {
		return nil, types.Invalid("plan_id", "must not be empty")
	}

	s := &Subscription{
		Entity:    types.NewEntity(now),
		ID:        id.NewSubscriptionID(),
		UserID:    userID,
		PlanID:    planID,
		StartedAt: now.UTC(),
		Status:    StatusActive,
	}
	if durationMonths > 0 {
		// month math runs in now's location, storage is UTC
		end := AddMonths(now, durationMonths).UTC()
		s.EndsAt = &end
	}
	return s, nil
}

// IsActive reports whether the subscription is still billing.
func (s *Subscription) IsActive() bool { return s.Status == StatusActive }

// Expired reports whether a bounded subscription is past its end date.
func (s *Subscription) Expired(now time.Time) bool {
	return s.EndsAt != nil && s.EndsAt.Before(now)
}

// End moves an active subscription to its terminal state.
func (s *Subscription) End(reason Reason, at time.Time) error {
	var next Status
	switch reason {
	case ReasonCancellation:
		next = StatusCanceled
	case ReasonCompletion:
		next = StatusFinished
	default:
		return types.Invalid("reason", "unknown end reason %q", reason)
	}
	if !s.IsActive() {
		return ErrNotActive
	}

	at = at.UTC()
	s.Status = next
	s.EndedAt = &at
	s.Touch(at)
	return nil
}
