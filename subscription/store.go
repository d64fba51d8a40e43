package subscription

import (
	"context"

	"github.com/xraph/tally/id"
)

// Store persists subscriptions.
type Store interface {
	Create(ctx context.Context, s *Subscription) error
	Get(ctx context.Context, subID id.SubscriptionID) (*Subscription, error)
	List(ctx context.Context, opts ListOpts) ([]*Subscription, error)
	Update(ctx context.Context, s *Subscription) error
}

// ListOpts filters subscription listings. Zero fields match everything.
type ListOpts struct {
	UserID string
	PlanID id.PlanID
	Status Status
}
