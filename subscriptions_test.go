package tally_test

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
	"github.com/xraph/tally/proof"
	"github.com/xraph/tally/subscription"
)

func references(ops []*operation.Operation) []string {
	refs := make([]string, len(ops))
	for i, op := range ops {
		refs[i] = op.Reference
	}
	return refs
}

func TestEnrollBillsFirstPeriod(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	p := h.createPlan(t, "Gold", 10000)

	sub, err := h.engine.Subscriptions().Enroll(ctx, "u1", p.ID, tally.EnrollOptions{})
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusActive, sub.Status)
	assert.Nil(t, sub.EndsAt)
	assert.True(t, sub.StartedAt.Equal(start))

	debits := h.operationsOf(t, "u1", operation.KindDebit)
	require.Len(t, debits, 1)
	d := debits[0]
	assert.Equal(t, tally.DebitReference(start), d.Reference)
	assert.Equal(t, tally.BRL(10000), d.Amount)
	assert.Equal(t, tally.SystemIssuer, d.IssuerID)
	assert.Equal(t, "Debit for the Gold plan subscription on 10/01/2026 10:00:00", d.Description)
}

func TestEnrollValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	p := h.createPlan(t, "Gold", 10000)

	_, err := h.engine.Subscriptions().Enroll(ctx, " ", p.ID, tally.EnrollOptions{})
	assert.True(t, tally.IsValidation(err))

	_, err = h.engine.Subscriptions().Enroll(ctx, "u1", id.NewPlanID(), tally.EnrollOptions{})
	require.ErrorIs(t, err, tally.ErrPlanNotFound)
	assert.True(t, tally.IsConflict(err))

	_, err = h.engine.Plans().Update(ctx, p.ID, plan.Patch{Active: ptr(false)})
	require.NoError(t, err)
	_, err = h.engine.Subscriptions().Enroll(ctx, "u1", p.ID, tally.EnrollOptions{})
	require.ErrorIs(t, err, tally.ErrPlanInactive)
	assert.True(t, tally.IsConflict(err))

	subs, err := h.engine.Subscriptions().ListByUser(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, subs)
}

// At most one active subscription per user.
func TestEnrollSingleActive(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	gold := h.createPlan(t, "Gold", 10000)
	silver := h.createPlan(t, "Silver", 5000)

	first, err := h.engine.Subscriptions().Enroll(ctx, "u1", gold.ID, tally.EnrollOptions{})
	require.NoError(t, err)

	_, err = h.engine.Subscriptions().Enroll(ctx, "u1", silver.ID, tally.EnrollOptions{})
	require.ErrorIs(t, err, tally.ErrActiveSubscriptionExists)
	assert.True(t, tally.IsConflict(err))

	_, err = h.engine.Subscriptions().Enroll(ctx, "u2", gold.ID, tally.EnrollOptions{})
	require.NoError(t, err)

	_, err = h.engine.Subscriptions().End(ctx, first.ID, tally.ReasonCompletion)
	require.NoError(t, err)

	h.clock.Advance(time.Hour)
	second, err := h.engine.Subscriptions().Enroll(ctx, "u1", silver.ID, tally.EnrollOptions{})
	require.NoError(t, err)

	subs, err := h.engine.Subscriptions().ListByUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, subs, 2)
	assert.Equal(t, second.ID, subs[0].ID, "newest first")
	assert.Equal(t, first.ID, subs[1].ID)
}

func TestEnrollReturnsSubscriptionWhenSettlementFails(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	p := h.createPlan(t, "Gold", 10000)
	h.store.FailDebitsOf("u1", errBoom)

	sub, err := h.engine.Subscriptions().Enroll(ctx, "u1", p.ID, tally.EnrollOptions{})
	require.ErrorIs(t, err, errBoom)
	require.NotNil(t, sub)

	stored, err := h.engine.Subscriptions().Get(ctx, sub.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsActive())

	// the next settlement bills the missed period
	h.store.FailDebitsOf("u1", nil)
	ops, err := h.engine.Subscriptions().Settle(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{tally.DebitReference(start)}, references(ops))
}

// Ending is terminal: a second End fails and keeps the first outcome.
func TestEndIsTerminal(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	p := h.createPlan(t, "Gold", 10000)

	sub, err := h.engine.Subscriptions().Enroll(ctx, "u1", p.ID, tally.EnrollOptions{})
	require.NoError(t, err)

	ended, err := h.engine.Subscriptions().End(ctx, sub.ID, tally.ReasonCancellation)
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusCanceled, ended.Status)
	require.NotNil(t, ended.EndedAt)
	endedAt := *ended.EndedAt

	h.clock.Advance(time.Hour)
	_, err = h.engine.Subscriptions().End(ctx, sub.ID, tally.ReasonCompletion)
	require.ErrorIs(t, err, tally.ErrSubscriptionNotActive)
	assert.True(t, tally.IsConflict(err))

	stored, err := h.engine.Subscriptions().Get(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusCanceled, stored.Status)
	assert.True(t, stored.EndedAt.Equal(endedAt))
}

func TestEndErrors(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	p := h.createPlan(t, "Gold", 10000)
	sub, err := h.engine.Subscriptions().Enroll(ctx, "u1", p.ID, tally.EnrollOptions{})
	require.NoError(t, err)

	_, err = h.engine.Subscriptions().End(ctx, sub.ID, subscription.Reason("paused"))
	assert.True(t, tally.IsValidation(err))

	_, err = h.engine.Subscriptions().End(ctx, id.NewSubscriptionID(), tally.ReasonCancellation)
	assert.True(t, tally.IsNotFound(err))
}

func TestEndDefaultsToCompletion(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	p := h.createPlan(t, "Gold", 10000)
	sub, err := h.engine.Subscriptions().Enroll(ctx, "u1", p.ID, tally.EnrollOptions{})
	require.NoError(t, err)

	ended, err := h.engine.Subscriptions().End(ctx, sub.ID, "")
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusFinished, ended.Status)
	assert.Empty(t, h.operationsOf(t, "u1", operation.KindCredit), "completion never refunds")
}

// Settling twice with the clock unchanged creates nothing the second time.
func TestSettleIsIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	p := h.createPlan(t, "Gold", 10000)
	sub := h.backdated(t, "u1", p.ID, start.AddDate(0, -3, 0), 0)

	ops, err := h.engine.Subscriptions().Settle(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{
		tally.DebitReference(time.Date(2025, 10, 10, 10, 0, 0, 0, time.UTC)),
		tally.DebitReference(time.Date(2025, 11, 10, 10, 0, 0, 0, time.UTC)),
		tally.DebitReference(time.Date(2025, 12, 10, 10, 0, 0, 0, time.UTC)),
		tally.DebitReference(start),
	}, references(ops))

	again, err := h.engine.Subscriptions().Settle(ctx, sub.ID)
	require.NoError(t, err)
	assert.Empty(t, again)
	assert.Len(t, h.operationsOf(t, "u1", operation.KindDebit), 4)

	// the next period is billed once it starts
	h.clock.Set(time.Date(2026, 2, 10, 9, 59, 0, 0, time.UTC))
	ops, err = h.engine.Subscriptions().Settle(ctx, sub.ID)
	require.NoError(t, err)
	assert.Empty(t, ops)

	h.clock.Set(time.Date(2026, 2, 10, 10, 0, 0, 0, time.UTC))
	ops, err = h.engine.Subscriptions().Settle(ctx, sub.ID)
	require.NoError(t, err)
	assert.Len(t, ops, 1)
}

// A bounded subscription bills its whole duration upfront and finishes once
// its end date passes.
func TestSettleBoundedSubscription(t *testing.T) {
	rec := &recorder{}
	h := newHarness(t, tally.WithPlugin(rec))
	ctx := context.Background()
	p := h.createPlan(t, "Gold", 10000)

	enrolledAt := start.AddDate(0, -3, 0)
	h.clock.Set(enrolledAt)
	sub, err := h.engine.Subscriptions().Enroll(ctx, "u1", p.ID, tally.EnrollOptions{DurationMonths: 2})
	require.NoError(t, err)
	require.NotNil(t, sub.EndsAt)
	assert.True(t, sub.EndsAt.Equal(time.Date(2025, 12, 10, 10, 0, 0, 0, time.UTC)))

	assert.ElementsMatch(t, []string{
		tally.DebitReference(enrolledAt),
		tally.DebitReference(time.Date(2025, 11, 10, 10, 0, 0, 0, time.UTC)),
	}, references(h.operationsOf(t, "u1", operation.KindDebit)))

	h.clock.Set(start)
	ops, err := h.engine.Subscriptions().Settle(ctx, sub.ID)
	require.NoError(t, err)
	assert.Empty(t, ops)

	stored, err := h.engine.Subscriptions().Get(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusFinished, stored.Status)
	require.NotNil(t, stored.EndedAt)
	assert.True(t, stored.EndedAt.Equal(start))
	assert.Len(t, h.operationsOf(t, "u1", operation.KindDebit), 2)
	assert.Empty(t, h.operationsOf(t, "u1", operation.KindCredit))
	assert.Equal(t, 1, rec.Count("subscription.finished"))
	assert.Equal(t, 2, rec.Count("settled"), "one per Enroll and Settle call")
}

// Finishing an expired subscription whose update keeps failing reports the
// error once and settles once.
func TestSettleFinishUpdateFails(t *testing.T) {
	rec := &recorder{}
	h := newHarness(t, tally.WithPlugin(rec))
	ctx := context.Background()
	p := h.createPlan(t, "Gold", 10000)

	sub := h.backdated(t, "u1", p.ID, start.AddDate(0, -3, 0), 2)
	h.store.FailSubscriptionUpdates(errBoom)

	ops, err := h.engine.Subscriptions().Settle(ctx, sub.ID)
	require.ErrorIs(t, err, errBoom)
	assert.Len(t, ops, 2)
	assert.Equal(t, 1, h.store.SubscriptionUpdates())
	assert.Equal(t, 1, rec.Count("settlement.failed"))
	assert.Zero(t, rec.Count("settled"))
	assert.Zero(t, rec.Count("subscription.finished"))

	stored, err := h.engine.Subscriptions().Get(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusActive, stored.Status)

	// once the store recovers the next pass finishes it without billing again
	h.store.FailSubscriptionUpdates(nil)
	ops, err = h.engine.Subscriptions().Settle(ctx, sub.ID)
	require.NoError(t, err)
	assert.Empty(t, ops)
	stored, err = h.engine.Subscriptions().Get(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusFinished, stored.Status)
	assert.Len(t, h.operationsOf(t, "u1", operation.KindDebit), 2)
}

func TestEndUpdateFailsOnExpired(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	p := h.createPlan(t, "Gold", 10000)

	sub := h.backdated(t, "u1", p.ID, start.AddDate(0, -3, 0), 2)
	h.store.FailSubscriptionUpdates(errBoom)

	_, err := h.engine.Subscriptions().End(ctx, sub.ID, tally.ReasonCancellation)
	require.ErrorIs(t, err, errBoom)
	assert.Equal(t, 2, h.store.SubscriptionUpdates(), "End once, then the finish inside its settlement")
}

// Back-dated three months: four periods have started, including today's.
func TestSettleCatchUp(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	p := h.createPlan(t, "Gold", 10000)

	h.clock.Set(time.Date(2026, 5, 15, 10, 0, 0, 0, time.UTC))
	sub := h.backdated(t, "u1", p.ID, time.Date(2026, 2, 15, 10, 0, 0, 0, time.UTC), 0)

	ops, err := h.engine.Subscriptions().Settle(ctx, sub.ID)
	require.NoError(t, err)
	require.Len(t, ops, 4)
	for _, op := range ops {
		assert.Equal(t, tally.BRL(10000), op.Amount)
	}

	sum, err := h.engine.Operations().Summary(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, tally.BRL(-40000), sum.Balance)

	again, err := h.engine.Subscriptions().Settle(ctx, sub.ID)
	require.NoError(t, err)
	assert.Empty(t, again)
}

// Each period starts one calendar month after the previous one, clamped to
// the end of short months.
func TestSettleMonthEnd(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	p := h.createPlan(t, "Gold", 10000)

	h.clock.Set(time.Date(2026, 4, 30, 12, 0, 0, 0, time.UTC))
	sub := h.backdated(t, "u1", p.ID, time.Date(2026, 1, 31, 12, 0, 0, 0, time.UTC), 0)

	ops, err := h.engine.Subscriptions().Settle(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{
		tally.DebitReference(time.Date(2026, 1, 31, 12, 0, 0, 0, time.UTC)),
		tally.DebitReference(time.Date(2026, 2, 28, 12, 0, 0, 0, time.UTC)),
		tally.DebitReference(time.Date(2026, 3, 28, 12, 0, 0, 0, time.UTC)),
		tally.DebitReference(time.Date(2026, 4, 28, 12, 0, 0, 0, time.UTC)),
	}, references(ops))
}

func TestSettleUsesLocation(t *testing.T) {
	brt := time.FixedZone("BRT", -3*3600)
	h := newHarness(t, tally.WithLocation(brt))
	ctx := context.Background()
	p := h.createPlan(t, "Gold", 10000)

	_, err := h.engine.Subscriptions().Enroll(ctx, "u1", p.ID, tally.EnrollOptions{})
	require.NoError(t, err)

	debits := h.operationsOf(t, "u1", operation.KindDebit)
	require.Len(t, debits, 1)
	assert.Equal(t, "Debit for the Gold plan subscription on 10/01/2026 07:00:00", debits[0].Description)
	assert.Equal(t, tally.DebitReference(start), debits[0].Reference)
}

func TestCancellationRefund(t *testing.T) {
	tests := []struct {
		name   string
		after  time.Duration
		refund int64
	}{
		{"same day", 0, 10000},
		{"after 29 days", 29 * 24 * time.Hour, 333},
		{"after 30 days", 30 * 24 * time.Hour, 0},
		{"into the second month", (31 + 5) * 24 * time.Hour, 8333},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			ctx := context.Background()
			p := h.createPlan(t, "Gold", 10000)

			sub, err := h.engine.Subscriptions().Enroll(ctx, "u1", p.ID, tally.EnrollOptions{})
			require.NoError(t, err)

			h.clock.Advance(tt.after)
			_, err = h.engine.Subscriptions().End(ctx, sub.ID, tally.ReasonCancellation)
			require.NoError(t, err)

			credits := h.operationsOf(t, "u1", operation.KindCredit)
			if tt.refund == 0 {
				assert.Empty(t, credits)
				return
			}
			require.Len(t, credits, 1)
			refund := credits[0]
			assert.Equal(t, tally.BRL(tt.refund), refund.Amount)
			assert.Equal(t, tally.RefundReference(start.Add(tt.after)), refund.Reference)
			assert.Equal(t, tally.SystemIssuer, refund.IssuerID)
			assert.Equal(t, operation.StatusApproved, refund.Credit.Status)
			assert.Equal(t, tally.SystemIssuer, refund.Credit.ReviewedBy)
			assert.Equal(t, proof.Key(refund.ID, tally.RefundProofName), refund.Credit.Proof)

			data, ok := h.proofs.Get(refund.Credit.Proof)
			require.True(t, ok)
			assert.Empty(t, data)

			// settling the ended subscription again refunds nothing new
			ops, err := h.engine.Subscriptions().Settle(ctx, sub.ID)
			require.NoError(t, err)
			assert.Empty(t, ops)
		})
	}
}

// Canceling on the day of enrollment leaves the user where they started.
func TestCancelSameDayNetsToZero(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	p := h.createPlan(t, "Gold", 10000)

	sub, err := h.engine.Subscriptions().Enroll(ctx, "u1", p.ID, tally.EnrollOptions{})
	require.NoError(t, err)
	_, err = h.engine.Subscriptions().End(ctx, sub.ID, tally.ReasonCancellation)
	require.NoError(t, err)

	sum, err := h.engine.Operations().Summary(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, sum.Balance.IsZero(), "balance: %s", sum.Balance)
	assert.True(t, sum.Pending.IsZero())
}

// A subscription stops billing when it ends, however late it is settled.
func TestSettleEndedSubscription(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	p := h.createPlan(t, "Gold", 10000)

	sub, err := h.engine.Subscriptions().Enroll(ctx, "u1", p.ID, tally.EnrollOptions{})
	require.NoError(t, err)
	h.clock.Advance(10 * 24 * time.Hour)
	_, err = h.engine.Subscriptions().End(ctx, sub.ID, tally.ReasonCancellation)
	require.NoError(t, err)

	h.clock.Set(start.AddDate(0, 3, 0))
	ops, err := h.engine.Subscriptions().Settle(ctx, sub.ID)
	require.NoError(t, err)
	assert.Empty(t, ops)
	assert.Len(t, h.operationsOf(t, "u1", operation.KindDebit), 1)

	credits := h.operationsOf(t, "u1", operation.KindCredit)
	require.Len(t, credits, 1)
	assert.Equal(t, tally.BRL(6667), credits[0].Amount)
}

func TestRefundRetriedAfterProofFailure(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	p := h.createPlan(t, "Gold", 10000)

	sub, err := h.engine.Subscriptions().Enroll(ctx, "u1", p.ID, tally.EnrollOptions{})
	require.NoError(t, err)

	h.proofs.FailWith(errBoom)
	ended, err := h.engine.Subscriptions().End(ctx, sub.ID, tally.ReasonCancellation)
	require.ErrorIs(t, err, errBoom)
	assert.Equal(t, subscription.StatusCanceled, ended.Status)
	assert.Empty(t, h.operationsOf(t, "u1", operation.KindCredit))

	h.proofs.FailWith(nil)
	ops, err := h.engine.Subscriptions().Settle(ctx, sub.ID)
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, tally.RefundReference(start), ops[0].Reference)
}

func TestProrateRefund(t *testing.T) {
	price := tally.BRL(10000)
	startedAt := time.Date(2026, 1, 31, 8, 0, 0, 0, time.UTC)

	tests := []struct {
		now  time.Time
		want int64
	}{
		{startedAt, 10000},
		{startedAt.Add(23 * time.Hour), 10000},
		{startedAt.Add(24 * time.Hour), 9667},
		{startedAt.Add(15 * 24 * time.Hour), 5000},
		{time.Date(2026, 2, 28, 8, 0, 0, 0, time.UTC), 10000},
		{time.Date(2026, 3, 5, 8, 0, 0, 0, time.UTC), 8333},
		{time.Date(2026, 3, 30, 8, 0, 0, 0, time.UTC), 0},
	}
	for _, tt := range tests {
		got := tally.ProrateRefund(price, startedAt, tt.now)
		assert.Equal(t, tally.BRL(tt.want), got, "now=%s", tt.now)
	}
}

func TestReferences(t *testing.T) {
	at := time.UnixMilli(1767607200123)
	assert.Equal(t, "DEB1767607200123", tally.DebitReference(at))
	assert.Equal(t, "DEP1767607200123", tally.RefundReference(at))
}

func TestSettleActive(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	p := h.createPlan(t, "Gold", 10000)

	ok := h.backdated(t, "u1", p.ID, start.AddDate(0, -1, 0), 0)
	bad := h.backdated(t, "u2", p.ID, start.AddDate(0, -1, 0), 0)
	ended := h.backdated(t, "u3", p.ID, start.AddDate(0, -1, 0), 0)
	require.NoError(t, ended.End(subscription.ReasonCompletion, start))
	require.NoError(t, h.store.UpdateSubscription(ctx, ended))

	h.store.FailDebitsOf("u2", errBoom)

	report, err := h.engine.Subscriptions().SettleActive(ctx)
	require.ErrorIs(t, err, errBoom)
	assert.Equal(t, 2, report.Processed)
	assert.Equal(t, 2, report.Operations)
	require.Len(t, report.Failed, 1)
	assert.Equal(t, bad.ID, report.Failed[0].SubscriptionID)
	assert.ErrorIs(t, report.Failed[0].Err, errBoom)

	assert.Len(t, h.operationsOf(t, ok.UserID, operation.KindDebit), 2)
	assert.Empty(t, h.operationsOf(t, "u3", operation.KindDebit))
}

func TestListSubscriptions(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	p := h.createPlan(t, "Gold", 10000)

	b, err := h.engine.Subscriptions().Enroll(ctx, "bob", p.ID, tally.EnrollOptions{})
	require.NoError(t, err)
	h.clock.Advance(time.Minute)
	a, err := h.engine.Subscriptions().Enroll(ctx, "alice", p.ID, tally.EnrollOptions{})
	require.NoError(t, err)
	_, err = h.engine.Subscriptions().End(ctx, b.ID, tally.ReasonCompletion)
	require.NoError(t, err)

	all, err := h.engine.Subscriptions().List(ctx, tally.ListFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, a.ID, all[0].ID)
	assert.Equal(t, b.ID, all[1].ID)

	active, err := h.engine.Subscriptions().List(ctx, tally.ListFilter{Status: subscription.StatusActive})
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "alice", active[0].UserID)
}

func TestSubscriptionEvents(t *testing.T) {
	rec := &recorder{}
	h := newHarness(t, tally.WithPlugin(rec))
	ctx := context.Background()
	p := h.createPlan(t, "Gold", 10000)

	sub, err := h.engine.Subscriptions().Enroll(ctx, "u1", p.ID, tally.EnrollOptions{})
	require.NoError(t, err)
	_, err = h.engine.Subscriptions().End(ctx, sub.ID, tally.ReasonCancellation)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"plan.created",
		"subscription.created",
		"debit.created",
		"settled",
		"subscription.canceled",
		"credit.created",
		"credit.reviewed",
		"settled",
	}, rec.Events())
}
