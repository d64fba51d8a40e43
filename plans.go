package tally

import (
	"context"
	"fmt"

	"github.com/xraph/tally/id"
	"github.com/xraph/tally/plan"
	"github.com/xraph/tally/subscription"
)

// PlanService manages the plan catalog.
type PlanService struct {
	serviceEnv
	plans plan.Store
	subs  subscription.Store
}

// List returns active plans in creation order, or every plan when all is set.
func (s *PlanService) List(ctx context.Context, all bool) ([]*plan.Plan, error) {
	return s.plans.List(ctx, plan.ListOpts{ActiveOnly: !all})
}

// Get returns one plan.
func (s *PlanService) Get(ctx context.Context, planID id.PlanID) (*plan.Plan, error) {
	return s.plans.Get(ctx, planID)
}

// Create adds an active plan.
func (s *PlanService) Create(ctx context.Context, in plan.Input) (*plan.Plan, error) {
	p, err := plan.New(in, s.currency, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.plans.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("tally: create plan %q: %w", p.Name, err)
	}

	s.logger.Info("plan created", "plan_id", p.ID.String(), "name", p.Name, "price", p.Price.String())
	s.plugins.EmitPlanCreated(ctx, p)
	return p, nil
}

// Update merges patch into the plan.
func (s *PlanService) Update(ctx context.Context, planID id.PlanID, patch plan.Patch) (*plan.Plan, error) {
	old, err := s.plans.Get(ctx, planID)
	if err != nil {
		return nil, fmt.Errorf("tally: update plan %s: %w", planID, err)
	}

	next, err := old.Apply(patch, s.currency, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.plans.Update(ctx, next); err != nil {
		return nil, fmt.Errorf("tally: update plan %s: %w", planID, err)
	}

	s.logger.Info("plan updated", "plan_id", next.ID.String(), "active", next.Active, "price", next.Price.String())
	s.plugins.EmitPlanUpdated(ctx, old, next)
	return next, nil
}

// Remove deletes a plan that no subscription references.
func (s *PlanService) Remove(ctx context.Context, planID id.PlanID) error {
	if _, err := s.plans.Get(ctx, planID); err != nil {
		return fmt.Errorf("tally: remove plan %s: %w", planID, err)
	}

	subs, err := s.subs.List(ctx, subscription.ListOpts{PlanID: planID})
	if err != nil {
		return fmt.Errorf("tally: remove plan %s: %w", planID, err)
	}
	if len(subs) > 0 {
		return fmt.Errorf("tally: remove plan %s (%d subscriptions): %w", planID, len(subs), ErrPlanInUse)
	}

	if err := s.plans.Delete(ctx, planID); err != nil {
		return fmt.Errorf("tally: remove plan %s: %w", planID, err)
	}

	s.logger.Info("plan removed", "plan_id", planID.String())
	s.plugins.EmitPlanRemoved(ctx, planID)
	return nil
}
