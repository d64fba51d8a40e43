// Package storetest is a behavioral test suite shared by every store.Store
// backend.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/tally"
	"github.com/xraph/tally/id"
	"github.com/xraph/tally/operation"
	"github.com/xraph/tally/plan"
	"github.com/xraph/tally/store"
	"github.com/xraph/tally/subscription"
	"github.com/xraph/tally/types"
)

// Factory returns an empty, migrated store. The suite closes nothing; the
// factory should register its own cleanup.
type Factory func(t *testing.T) store.Store

// base is truncated to the microsecond so every backend round-trips it.
var base = time.Date(2026, 3, 10, 12, 30, 0, 0, time.UTC)

// Run executes the suite against stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("Operations", func(t *testing.T) { testOperations(t, newStore) })
	t.Run("Plans", func(t *testing.T) { testPlans(t, newStore) })
	t.Run("Subscriptions", func(t *testing.T) { testSubscriptions(t, newStore) })
}

func input(userID, ref string, cents int64) operation.Input {
	return operation.Input{
		Reference:   ref,
		Amount:      types.BRL(cents),
		UserID:      userID,
		IssuerID:    "issuer",
		Description: "deposit " + ref,
	}
}

func testOperations(t *testing.T, newStore Factory) {
	ctx := context.Background()

	t.Run("round trip", func(t *testing.T) {
		s := newStore(t)

		credit, err := operation.NewCredit(input("u1", "DEP-1", 5000), "proof.png", base)
		require.NoError(t, err)
		require.NoError(t, s.CreateOperation(ctx, credit))

		got, err := s.GetOperation(ctx, credit.ID)
		require.NoError(t, err)
		assert.Equal(t, credit.ID.String(), got.ID.String())
		assert.Equal(t, operation.KindCredit, got.Kind)
		assert.Equal(t, "DEP-1", got.Reference)
		assert.Equal(t, types.BRL(5000), got.Amount)
		assert.Equal(t, "u1", got.UserID)
		assert.Equal(t, "issuer", got.IssuerID)
		assert.Equal(t, "deposit DEP-1", got.Description)
		assert.True(t, got.IssuedAt.Equal(base))
		require.NotNil(t, got.Credit)
		assert.Equal(t, "proof.png", got.Credit.Proof)
		assert.Equal(t, operation.StatusPending, got.Credit.Status)
		assert.Nil(t, got.Credit.ReviewedAt)

		debit, err := operation.NewDebit(input("u1", "DEB-1", 1200), base)
		require.NoError(t, err)
		require.NoError(t, s.CreateOperation(ctx, debit))

		got, err = s.GetOperation(ctx, debit.ID)
		require.NoError(t, err)
		assert.Equal(t, operation.KindDebit, got.Kind)
		assert.Nil(t, got.Credit)
	})

	t.Run("not found", func(t *testing.T) {
		s := newStore(t)
		_, err := s.GetOperation(ctx, id.NewOperationID())
		assert.ErrorIs(t, err, tally.ErrOperationNotFound)

		op, _ := operation.NewDebit(input("u1", "DEB-1", 100), base)
		assert.ErrorIs(t, s.UpdateOperation(ctx, op), tally.ErrOperationNotFound)
		assert.ErrorIs(t, s.DeleteOperation(ctx, op.ID), tally.ErrOperationNotFound)
	})

	t.Run("reference unique per user", func(t *testing.T) {
		s := newStore(t)

		first, _ := operation.NewDebit(input("u1", "DEB-1", 100), base)
		require.NoError(t, s.CreateOperation(ctx, first))

		again, _ := operation.NewCredit(input("u1", "DEB-1", 100), "p", base)
		err := s.CreateOperation(ctx, again)
		require.ErrorIs(t, err, tally.ErrDuplicateReference)
		_, err = s.GetOperation(ctx, again.ID)
		assert.ErrorIs(t, err, tally.ErrOperationNotFound)

		other, _ := operation.NewDebit(input("u2", "DEB-1", 100), base)
		require.NoError(t, s.CreateOperation(ctx, other))
	})

	t.Run("list by user newest first", func(t *testing.T) {
		s := newStore(t)

		var want []id.OperationID
		for i, ref := range []string{"A", "B", "C"} {
			op, _ := operation.NewDebit(input("u1", ref, 100), base.Add(time.Duration(i)*time.Hour))
			require.NoError(t, s.CreateOperation(ctx, op))
			want = append([]id.OperationID{op.ID}, want...)
		}
		stranger, _ := operation.NewDebit(input("u2", "A", 100), base)
		require.NoError(t, s.CreateOperation(ctx, stranger))

		ops, err := s.ListOperationsByUser(ctx, "u1")
		require.NoError(t, err)
		require.Len(t, ops, 3)
		for i := range ops {
			assert.Equal(t, want[i].String(), ops[i].ID.String())
		}

		none, err := s.ListOperationsByUser(ctx, "nobody")
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("update review", func(t *testing.T) {
		s := newStore(t)

		op, _ := operation.NewCredit(input("u1", "DEP-1", 100), "p", base)
		require.NoError(t, s.CreateOperation(ctx, op))

		reviewedAt := base.Add(time.Hour)
		require.NoError(t, op.Review(operation.StatusApproved, "admin", reviewedAt))
		require.NoError(t, s.UpdateOperation(ctx, op))

		got, err := s.GetOperation(ctx, op.ID)
		require.NoError(t, err)
		assert.Equal(t, operation.StatusApproved, got.Credit.Status)
		assert.Equal(t, "admin", got.Credit.ReviewedBy)
		require.NotNil(t, got.Credit.ReviewedAt)
		assert.True(t, got.Credit.ReviewedAt.Equal(reviewedAt))
	})

	t.Run("delete", func(t *testing.T) {
		s := newStore(t)

		op, _ := operation.NewCredit(input("u1", "DEP-1", 100), "p", base)
		require.NoError(t, s.CreateOperation(ctx, op))
		require.NoError(t, s.DeleteOperation(ctx, op.ID))

		_, err := s.GetOperation(ctx, op.ID)
		assert.ErrorIs(t, err, tally.ErrOperationNotFound)

		// the reference can be reused once deleted
		again, _ := operation.NewCredit(input("u1", "DEP-1", 100), "p", base)
		require.NoError(t, s.CreateOperation(ctx, again))
	})
}

func newPlan(t *testing.T, name string, at time.Time) *plan.Plan {
	t.Helper()
	p, err := plan.New(plan.Input{Name: name, Description: name + " plan", Price: types.BRL(9900)}, "brl", at)
	require.NoError(t, err)
	return p
}

func testPlans(t *testing.T, newStore Factory) {
	ctx := context.Background()

	t.Run("round trip", func(t *testing.T) {
		s := newStore(t)
		p := newPlan(t, "Gold", base)
		require.NoError(t, s.CreatePlan(ctx, p))

		got, err := s.GetPlan(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, p.ID.String(), got.ID.String())
		assert.Equal(t, "Gold", got.Name)
		assert.Equal(t, "Gold plan", got.Description)
		assert.Equal(t, types.BRL(9900), got.Price)
		assert.True(t, got.Active)
		assert.True(t, got.CreatedAt.Equal(base))
	})

	t.Run("not found", func(t *testing.T) {
		s := newStore(t)
		_, err := s.GetPlan(ctx, id.NewPlanID())
		assert.ErrorIs(t, err, tally.ErrPlanNotFound)

		p := newPlan(t, "Gold", base)
		assert.ErrorIs(t, s.UpdatePlan(ctx, p), tally.ErrPlanNotFound)
		assert.ErrorIs(t, s.DeletePlan(ctx, p.ID), tally.ErrPlanNotFound)
	})

	t.Run("list", func(t *testing.T) {
		s := newStore(t)
		gold := newPlan(t, "Gold", base)
		silver := newPlan(t, "Silver", base.Add(time.Minute))
		bronze := newPlan(t, "Bronze", base.Add(2*time.Minute))
		silver.Active = false
		for _, p := range []*plan.Plan{gold, silver, bronze} {
			require.NoError(t, s.CreatePlan(ctx, p))
		}

		all, err := s.ListPlans(ctx, plan.ListOpts{})
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, []string{"Gold", "Silver", "Bronze"}, []string{all[0].Name, all[1].Name, all[2].Name})

		active, err := s.ListPlans(ctx, plan.ListOpts{ActiveOnly: true})
		require.NoError(t, err)
		require.Len(t, active, 2)
		assert.Equal(t, gold.ID.String(), active[0].ID.String())
		assert.Equal(t, bronze.ID.String(), active[1].ID.String())
	})

	t.Run("update and delete", func(t *testing.T) {
		s := newStore(t)
		p := newPlan(t, "Gold", base)
		require.NoError(t, s.CreatePlan(ctx, p))

		next, err := p.Apply(plan.Patch{Price: ptr(types.BRL(12900)), Active: ptr(false)}, "brl", base.Add(time.Hour))
		require.NoError(t, err)
		require.NoError(t, s.UpdatePlan(ctx, next))

		got, err := s.GetPlan(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, types.BRL(12900), got.Price)
		assert.False(t, got.Active)

		require.NoError(t, s.DeletePlan(ctx, p.ID))
		_, err = s.GetPlan(ctx, p.ID)
		assert.ErrorIs(t, err, tally.ErrPlanNotFound)
	})
}

func ptr[T any](v T) *T { return &v }

func testSubscriptions(t *testing.T, newStore Factory) {
	ctx := context.Background()

	t.Run("round trip", func(t *testing.T) {
		s := newStore(t)
		planID := id.NewPlanID()

		open, err := subscription.New("u1", planID, 0, base)
		require.NoError(t, err)
		require.NoError(t, s.CreateSubscription(ctx, open))

		got, err := s.GetSubscription(ctx, open.ID)
		require.NoError(t, err)
		assert.Equal(t, open.ID.String(), got.ID.String())
		assert.Equal(t, "u1", got.UserID)
		assert.Equal(t, planID.String(), got.PlanID.String())
		assert.True(t, got.StartedAt.Equal(base))
		assert.Nil(t, got.EndsAt)
		assert.Nil(t, got.EndedAt)
		assert.Equal(t, subscription.StatusActive, got.Status)

		bounded, err := subscription.New("u2", planID, 3, base)
		require.NoError(t, err)
		require.NoError(t, s.CreateSubscription(ctx, bounded))

		got, err = s.GetSubscription(ctx, bounded.ID)
		require.NoError(t, err)
		require.NotNil(t, got.EndsAt)
		assert.True(t, got.EndsAt.Equal(base.AddDate(0, 3, 0)))
	})

	t.Run("not found", func(t *testing.T) {
		s := newStore(t)
		_, err := s.GetSubscription(ctx, id.NewSubscriptionID())
		assert.ErrorIs(t, err, tally.ErrSubscriptionNotFound)

		sub, _ := subscription.New("u1", id.NewPlanID(), 0, base)
		assert.ErrorIs(t, s.UpdateSubscription(ctx, sub), tally.ErrSubscriptionNotFound)
	})

	t.Run("list filters", func(t *testing.T) {
		s := newStore(t)
		gold, silver := id.NewPlanID(), id.NewPlanID()

		a1, _ := subscription.New("alice", gold, 0, base)
		a2, _ := subscription.New("alice", silver, 0, base.Add(time.Hour))
		b1, _ := subscription.New("bob", gold, 0, base)
		require.NoError(t, a1.End(subscription.ReasonCancellation, base.Add(time.Minute)))
		for _, sub := range []*subscription.Subscription{b1, a1, a2} {
			require.NoError(t, s.CreateSubscription(ctx, sub))
		}

		all, err := s.ListSubscriptions(ctx, subscription.ListOpts{})
		require.NoError(t, err)
		require.Len(t, all, 3)

		byUser, err := s.ListSubscriptions(ctx, subscription.ListOpts{UserID: "alice"})
		require.NoError(t, err)
		require.Len(t, byUser, 2)
		assert.Equal(t, a2.ID.String(), byUser[0].ID.String(), "newest first")
		assert.Equal(t, a1.ID.String(), byUser[1].ID.String())

		byPlan, err := s.ListSubscriptions(ctx, subscription.ListOpts{PlanID: gold})
		require.NoError(t, err)
		assert.Len(t, byPlan, 2)

		active, err := s.ListSubscriptions(ctx, subscription.ListOpts{UserID: "alice", Status: subscription.StatusActive})
		require.NoError(t, err)
		require.Len(t, active, 1)
		assert.Equal(t, a2.ID.String(), active[0].ID.String())
	})

	t.Run("update", func(t *testing.T) {
		s := newStore(t)
		sub, _ := subscription.New("u1", id.NewPlanID(), 0, base)
		require.NoError(t, s.CreateSubscription(ctx, sub))

		endedAt := base.Add(48 * time.Hour)
		require.NoError(t, sub.End(subscription.ReasonCompletion, endedAt))
		require.NoError(t, s.UpdateSubscription(ctx, sub))

		got, err := s.GetSubscription(ctx, sub.ID)
		require.NoError(t, err)
		assert.Equal(t, subscription.StatusFinished, got.Status)
		require.NotNil(t, got.EndedAt)
		assert.True(t, got.EndedAt.Equal(endedAt))
	})
}
