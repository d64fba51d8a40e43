package tally_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/tally"
	"github.com/xraph/tally/id"
	"github.com/xraph/tally/plan"
)

func ptr[T any](v T) *T { return &v }

func TestPlanCreate(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	p, err := h.engine.Plans().Create(ctx, plan.Input{Name: "  Gold ", Description: "all access", Price: tally.BRL(9900)})
	require.NoError(t, err)
	assert.Equal(t, "Gold", p.Name)
	assert.True(t, p.Active)

	got, err := h.engine.Plans().Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.Price, got.Price)
	assert.Equal(t, "all access", got.Description)
}

func TestPlanCreateValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	for name, in := range map[string]plan.Input{
		"empty name":       {Name: " ", Price: tally.BRL(100)},
		"zero price":       {Name: "Gold", Price: tally.BRL(0)},
		"foreign currency": {Name: "Gold", Price: tally.EUR(100)},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := h.engine.Plans().Create(ctx, in)
			assert.True(t, tally.IsValidation(err), "got %v", err)
		})
	}
}

func TestPlanList(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	gold := h.createPlan(t, "Gold", 9900)
	silver := h.createPlan(t, "Silver", 4900)
	_, err := h.engine.Plans().Update(ctx, silver.ID, plan.Patch{Active: ptr(false)})
	require.NoError(t, err)

	active, err := h.engine.Plans().List(ctx, false)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, gold.ID, active[0].ID)

	all, err := h.engine.Plans().List(ctx, true)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestPlanUpdate(t *testing.T) {
	rec := &recorder{}
	h := newHarness(t, tally.WithPlugin(rec))
	ctx := context.Background()

	p := h.createPlan(t, "Gold", 9900)

	updated, err := h.engine.Plans().Update(ctx, p.ID, plan.Patch{
		Name:  ptr("Platinum"),
		Price: ptr(tally.BRL(12900)),
	})
	require.NoError(t, err)
	assert.Equal(t, "Platinum", updated.Name)
	assert.Equal(t, tally.BRL(12900), updated.Price)
	assert.True(t, updated.Active)

	got, err := h.engine.Plans().Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Platinum", got.Name)

	_, err = h.engine.Plans().Update(ctx, p.ID, plan.Patch{Price: ptr(tally.BRL(-1))})
	assert.True(t, tally.IsValidation(err))

	_, err = h.engine.Plans().Update(ctx, id.NewPlanID(), plan.Patch{Name: ptr("x")})
	assert.ErrorIs(t, err, tally.ErrPlanNotFound)

	assert.Equal(t, 1, rec.Count("plan.updated"))
}

func TestPlanRemove(t *testing.T) {
	rec := &recorder{}
	h := newHarness(t, tally.WithPlugin(rec))
	ctx := context.Background()

	unused := h.createPlan(t, "Unused", 100)
	require.NoError(t, h.engine.Plans().Remove(ctx, unused.ID))
	_, err := h.engine.Plans().Get(ctx, unused.ID)
	assert.ErrorIs(t, err, tally.ErrPlanNotFound)

	err = h.engine.Plans().Remove(ctx, unused.ID)
	assert.True(t, tally.IsNotFound(err))

	assert.Equal(t, 1, rec.Count("plan.removed"))
}

// A plan referenced by any subscription, active or ended, cannot be removed.
func TestPlanRemoveInUse(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	p := h.createPlan(t, "Gold", 9900)
	sub, err := h.engine.Subscriptions().Enroll(ctx, "u1", p.ID, tally.EnrollOptions{})
	require.NoError(t, err)

	err = h.engine.Plans().Remove(ctx, p.ID)
	require.ErrorIs(t, err, tally.ErrPlanInUse)
	assert.True(t, tally.IsConflict(err))

	_, err = h.engine.Subscriptions().End(ctx, sub.ID, tally.ReasonCancellation)
	require.NoError(t, err)

	err = h.engine.Plans().Remove(ctx, p.ID)
	require.ErrorIs(t, err, tally.ErrPlanInUse)

	_, err = h.engine.Plans().Get(ctx, p.ID)
	require.NoError(t, err)
}
