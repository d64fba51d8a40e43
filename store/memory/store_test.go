package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/tally"
	"github.com/xraph/tally/id"
	"github.com/xraph/tally/operation"
	"github.com/xraph/tally/store"
	"github.com/xraph/tally/store/storetest"
	"github.com/xraph/tally/types"
)

func TestStore(t *testing.T) {
	storetest.Run(t, func(*testing.T) store.Store { return New() })
}

func TestReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := New()

	op, err := operation.NewCredit(operation.Input{
		Reference: "DEP-1", Amount: types.BRL(100), UserID: "u1", IssuerID: "u1",
	}, "p", time.Now())
	require.NoError(t, err)
	require.NoError(t, s.CreateOperation(ctx, op))

	got, err := s.GetOperation(ctx, op.ID)
	require.NoError(t, err)
	got.Credit.Status = operation.StatusApproved

	again, err := s.GetOperation(ctx, op.ID)
	require.NoError(t, err)
	assert.Equal(t, operation.StatusPending, again.Credit.Status)
}

func TestClosed(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.Ping(ctx))
	require.NoError(t, s.Close())

	assert.ErrorIs(t, s.Ping(ctx), tally.ErrStoreClosed)
	_, err := s.GetPlan(ctx, id.NewPlanID())
	assert.ErrorIs(t, err, tally.ErrStoreClosed)
	_, err = s.ListOperationsByUser(ctx, "u1")
	assert.ErrorIs(t, err, tally.ErrStoreClosed)
}
