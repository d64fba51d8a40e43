package plan

import (
	"context"

	"github.com/xraph/tally/id"
)

// Store persists plans. List returns plans in creation order.
type Store interface {
	Create(ctx context.Context, p *Plan) error
	Get(ctx context.Context, planID id.PlanID) (*Plan, error)
	List(ctx context.Context, opts ListOpts) ([]*Plan, error)
	Update(ctx context.Context, p *Plan) error
	Delete(ctx context.Context, planID id.PlanID) error
}

// ListOpts filters plan listings.
type ListOpts struct {
	ActiveOnly bool
}
