// Package store defines the unified persistence contract for Tally and
// adapters that narrow it to the per-entity contracts.
package store

import (
	"context"

	"github.com/xraph/tally/id"
	"github.com/xraph/tally/operation"
	"github.com/xraph/tally/plan"
	"github.com/xraph/tally/subscription"
)

// Store is the unified storage interface for all Tally entities.
// Instead of embedding the sub-interfaces, we explicitly declare all methods
// to avoid naming conflicts.
type Store interface {
	// Operation methods
	CreateOperation(ctx context.Context, op *operation.Operation) error
	GetOperation(ctx context.Context, opID id.OperationID) (*operation.Operation, error)
	ListOperationsByUser(ctx context.Context, userID string) ([]*operation.Operation, error)
	UpdateOperation(ctx context.Context, op *operation.Operation) error
	DeleteOperation(ctx context.Context, opID id.OperationID) error

	// Plan methods
	CreatePlan(ctx context.Context, p *plan.Plan) error
	GetPlan(ctx context.Context, planID id.PlanID) (*plan.Plan, error)
	ListPlans(ctx context.Context, opts plan.ListOpts) ([]*plan.Plan, error)
	UpdatePlan(ctx context.Context, p *plan.Plan) error
	DeletePlan(ctx context.Context, planID id.PlanID) error

	// Subscription methods
	CreateSubscription(ctx context.Context, s *subscription.Subscription) error
	GetSubscription(ctx context.Context, subID id.SubscriptionID) (*subscription.Subscription, error)
	ListSubscriptions(ctx context.Context, opts subscription.ListOpts) ([]*subscription.Subscription, error)
	UpdateSubscription(ctx context.Context, s *subscription.Subscription) error

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// Operations narrows s to the operation contract.
func Operations(s Store) operation.Store { return operations{s} }

// Plans narrows s to the plan contract.
func Plans(s Store) plan.Store { return plans{s} }

// Subscriptions narrows s to the subscription contract.
func Subscriptions(s Store) subscription.Store { return subscriptions{s} }

type operations struct{ s Store }

func (a operations) Create(ctx context.Context, op *operation.Operation) error {
	return a.s.CreateOperation(ctx, op)
}

func (a operations) Get(ctx context.Context, opID id.OperationID) (*operation.Operation, error) {
	return a.s.GetOperation(ctx, opID)
}

func (a operations) ListByUser(ctx context.Context, userID string) ([]*operation.Operation, error) {
	return a.s.ListOperationsByUser(ctx, userID)
}

func (a operations) Update(ctx context.Context, op *operation.Operation) error {
	return a.s.UpdateOperation(ctx, op)
}

func (a operations) Delete(ctx context.Context, opID id.OperationID) error {
	return a.s.DeleteOperation(ctx, opID)
}

type plans struct{ s Store }

func (a plans) Create(ctx context.Context, p *plan.Plan) error { return a.s.CreatePlan(ctx, p) }

func (a plans) Get(ctx context.Context, planID id.PlanID) (*plan.Plan, error) {
	return a.s.GetPlan(ctx, planID)
}

func (a plans) List(ctx context.Context, opts plan.ListOpts) ([]*plan.Plan, error) {
	return a.s.ListPlans(ctx, opts)
}

func (a plans) Update(ctx context.Context, p *plan.Plan) error { return a.s.UpdatePlan(ctx, p) }

func (a plans) Delete(ctx context.Context, planID id.PlanID) error {
	return a.s.DeletePlan(ctx, planID)
}

type subscriptions struct{ s Store }

func (a subscriptions) Create(ctx context.Context, sub *subscription.Subscription) error {
	return a.s.CreateSubscription(ctx, sub)
}

func (a subscriptions) Get(ctx context.Context, subID id.SubscriptionID) (*subscription.Subscription, error) {
	return a.s.GetSubscription(ctx, subID)
}

func (a subscriptions) List(ctx context.Context, opts subscription.ListOpts) ([]*subscription.Subscription, error) {
	return a.s.ListSubscriptions(ctx, opts)
}

func (a subscriptions) Update(ctx context.Context, sub *subscription.Subscription) error {
	return a.s.UpdateSubscription(ctx, sub)
}
