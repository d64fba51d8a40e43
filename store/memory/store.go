// Package memory provides an in-memory Store. Entities are copied on the way
// in and out so callers never share state with the store.
package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/xraph/tally"
	"github.com/xraph/tally/id"
	"github.com/xraph/tally/operation"
	"github.com/xraph/tally/plan"
	"github.com/xraph/tally/store"
	"github.com/xraph/tally/subscription"
)

var _ store.Store = (*Store)(nil)

type Store struct {
	mu     sync.RWMutex
	closed bool

	// Operation storage, plus the (user, reference) uniqueness index
	operations map[string]*operation.Operation
	references map[string]string

	// Plan storage
	plans map[string]*plan.Plan

	// Subscription storage
	subscriptions map[string]*subscription.Subscription
}

func New() *Store {
	return &Store{
		operations:    make(map[string]*operation.Operation),
		references:    make(map[string]string),
		plans:         make(map[string]*plan.Plan),
		subscriptions: make(map[string]*subscription.Subscription),
	}
}

// ==================== Operation Store ====================

func refKey(userID, reference string) string { return userID + "\x00" + reference }

func (s *Store) CreateOperation(_ context.Context, op *operation.Operation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return tally.ErrStoreClosed
	}

	if _, exists := s.operations[op.ID.String()]; exists {
		return tally.ErrAlreadyExists
	}
	key := refKey(op.UserID, op.Reference)
	if _, taken := s.references[key]; taken {
		return fmt.Errorf("%w: %s for user %s", tally.ErrDuplicateReference, op.Reference, op.UserID)
	}

	s.operations[op.ID.String()] = cloneOperation(op)
	s.references[key] = op.ID.String()
	return nil
}

func (s *Store) GetOperation(_ context.Context, opID id.OperationID) (*operation.Operation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, tally.ErrStoreClosed
	}

	if op, ok := s.operations[opID.String()]; ok {
		return cloneOperation(op), nil
	}
	return nil, tally.ErrOperationNotFound
}

func (s *Store) ListOperationsByUser(_ context.Context, userID string) ([]*operation.Operation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, tally.ErrStoreClosed
	}

	result := make([]*operation.Operation, 0)
	for _, op := range s.operations {
		if op.UserID == userID {
			result = append(result, cloneOperation(op))
		}
	}

	slices.SortFunc(result, func(a, b *operation.Operation) int {
		if c := b.IssuedAt.Compare(a.IssuedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID.String(), a.ID.String())
	})
	return result, nil
}

func (s *Store) UpdateOperation(_ context.Context, op *operation.Operation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return tally.ErrStoreClosed
	}

	current, exists := s.operations[op.ID.String()]
	if !exists {
		return tally.ErrOperationNotFound
	}
	oldKey, newKey := refKey(current.UserID, current.Reference), refKey(op.UserID, op.Reference)
	if oldKey != newKey {
		if _, taken := s.references[newKey]; taken {
			return fmt.Errorf("%w: %s for user %s", tally.ErrDuplicateReference, op.Reference, op.UserID)
		}
		delete(s.references, oldKey)
		s.references[newKey] = op.ID.String()
	}
	s.operations[op.ID.String()] = cloneOperation(op)
	return nil
}

func (s *Store) DeleteOperation(_ context.Context, opID id.OperationID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return tally.ErrStoreClosed
	}

	op, exists := s.operations[opID.String()]
	if !exists {
		return tally.ErrOperationNotFound
	}
	delete(s.references, refKey(op.UserID, op.Reference))
	delete(s.operations, opID.String())
	return nil
}

// ==================== Plan Store ====================

func (s *Store) CreatePlan(_ context.Context, p *plan.Plan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return tally.ErrStoreClosed
	}

	if _, exists := s.plans[p.ID.String()]; exists {
		return tally.ErrAlreadyExists
	}
	cp := *p
	s.plans[p.ID.String()] = &cp
	return nil
}

func (s *Store) GetPlan(_ context.Context, planID id.PlanID) (*plan.Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, tally.ErrStoreClosed
	}

	if p, ok := s.plans[planID.String()]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, tally.ErrPlanNotFound
}

func (s *Store) ListPlans(_ context.Context, opts plan.ListOpts) ([]*plan.Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, tally.ErrStoreClosed
	}

	result := make([]*plan.Plan, 0, len(s.plans))
	for _, p := range s.plans {
		if opts.ActiveOnly && !p.Active {
			continue
		}
		cp := *p
		result = append(result, &cp)
	}

	slices.SortFunc(result, func(a, b *plan.Plan) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID.String(), b.ID.String())
	})
	return result, nil
}

func (s *Store) UpdatePlan(_ context.Context, p *plan.Plan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return tally.ErrStoreClosed
	}

	if _, exists := s.plans[p.ID.String()]; !exists {
		return tally.ErrPlanNotFound
	}
	cp := *p
	s.plans[p.ID.String()] = &cp
	return nil
}

func (s *Store) DeletePlan(_ context.Context, planID id.PlanID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return tally.ErrStoreClosed
	}

	if _, exists := s.plans[planID.String()]; !exists {
		return tally.ErrPlanNotFound
	}
	delete(s.plans, planID.String())
	return nil
}

// ==================== Subscription Store ====================

func (s *Store) CreateSubscription(_ context.Context, sub *subscription.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return tally.ErrStoreClosed
	}

	if _, exists := s.subscriptions[sub.ID.String()]; exists {
		return tally.ErrAlreadyExists
	}
	s.subscriptions[sub.ID.String()] = cloneSubscription(sub)
	return nil
}

func (s *Store) GetSubscription(_ context.Context, subID id.SubscriptionID) (*subscription.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, tally.ErrStoreClosed
	}

	if sub, ok := s.subscriptions[subID.String()]; ok {
		return cloneSubscription(sub), nil
	}
	return nil, tally.ErrSubscriptionNotFound
}

func (s *Store) ListSubscriptions(_ context.Context, opts subscription.ListOpts) ([]*subscription.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, tally.ErrStoreClosed
	}

	result := make([]*subscription.Subscription, 0)
	for _, sub := range s.subscriptions {
		if opts.UserID != "" && sub.UserID != opts.UserID {
			continue
		}
		if !opts.PlanID.IsNil() && sub.PlanID.String() != opts.PlanID.String() {
			continue
		}
		if opts.Status != "" && sub.Status != opts.Status {
			continue
		}
		result = append(result, cloneSubscription(sub))
	}

	slices.SortFunc(result, func(a, b *subscription.Subscription) int {
		if c := cmp.Compare(a.UserID, b.UserID); c != 0 {
			return c
		}
		return b.StartedAt.Compare(a.StartedAt)
	})
	return result, nil
}

func (s *Store) UpdateSubscription(_ context.Context, sub *subscription.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return tally.ErrStoreClosed
	}

	if _, exists := s.subscriptions[sub.ID.String()]; !exists {
		return tally.ErrSubscriptionNotFound
	}
	s.subscriptions[sub.ID.String()] = cloneSubscription(sub)
	return nil
}

// ==================== Core ====================

func (s *Store) Migrate(_ context.Context) error {
	return nil
}

func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return tally.ErrStoreClosed
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func cloneOperation(op *operation.Operation) *operation.Operation {
	cp := *op
	if op.Credit != nil {
		credit := *op.Credit
		if op.Credit.ReviewedAt != nil {
			at := *op.Credit.ReviewedAt
			credit.ReviewedAt = &at
		}
		cp.Credit = &credit
	}
	return &cp
}

func cloneSubscription(sub *subscription.Subscription) *subscription.Subscription {
	cp := *sub
	if sub.EndsAt != nil {
		at := *sub.EndsAt
		cp.EndsAt = &at
	}
	if sub.EndedAt != nil {
		at := *sub.EndedAt
		cp.EndedAt = &at
	}
	return &cp
}
