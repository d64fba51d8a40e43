package tally_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xraph/tally"
	"github.com/xraph/tally/id"
	"github.com/xraph/tally/operation"
	"github.com/xraph/tally/plan"
	proofmem "github.com/xraph/tally/proof/memory"
	"github.com/xraph/tally/store/memory"
	"github.com/xraph/tally/subscription"
)

var errBoom = errors.New("boom")

// clock is a settable time source.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock(t time.Time) *clock { return &clock{now: t} }

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func (c *clock) Advance(d time.Duration) { c.Set(c.Now().Add(d)) }

// faultyStore wraps the memory store with injectable failures.
type faultyStore struct {
	*memory.Store

	mu          sync.Mutex
	failDelete  error
	failDebitOf map[string]error
	failSubUpd  error
	subUpdates  int
}

func newFaultyStore() *faultyStore {
	return &faultyStore{Store: memory.New(), failDebitOf: make(map[string]error)}
}

func (s *faultyStore) CreateOperation(ctx context.Context, op *operation.Operation) error {
	s.mu.Lock()
	err := s.failDebitOf[op.UserID]
	s.mu.Unlock()
	if err != nil && op.Kind == operation.KindDebit {
		return err
	}
	return s.Store.CreateOperation(ctx, op)
}

func (s *faultyStore) DeleteOperation(ctx context.Context, opID id.OperationID) error {
	s.mu.Lock()
	err := s.failDelete
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return s.Store.DeleteOperation(ctx, opID)
}

func (s *faultyStore) UpdateSubscription(ctx context.Context, sub *subscription.Subscription) error {
	s.mu.Lock()
	s.subUpdates++
	err := s.failSubUpd
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return s.Store.UpdateSubscription(ctx, sub)
}

// FailSubscriptionUpdates makes every UpdateSubscription return err.
func (s *faultyStore) FailSubscriptionUpdates(err error) {
	s.mu.Lock()
	s.failSubUpd = err
	s.mu.Unlock()
}

func (s *faultyStore) SubscriptionUpdates() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subUpdates
}

func (s *faultyStore) FailDebitsOf(userID string, err error) {
	s.mu.Lock()
	s.failDebitOf[userID] = err
	s.mu.Unlock()
}

func (s *faultyStore) FailDelete(err error) {
	s.mu.Lock()
	s.failDelete = err
	s.mu.Unlock()
}

type harness struct {
	engine *tally.Engine
	store  *faultyStore
	proofs *proofmem.Store
	clock  *clock
}

// start is the default instant for tests: mid-month, mid-morning UTC.
var start = time.Date(2026, 1, 10, 10, 0, 0, 0, time.UTC)

func newHarness(t *testing.T, opts ...tally.Option) *harness {
	t.Helper()

	h := &harness{
		store:  newFaultyStore(),
		proofs: proofmem.New(),
		clock:  newClock(start),
	}
	base := []tally.Option{
		tally.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		tally.WithClock(h.clock.Now),
		tally.WithProofStore(h.proofs),
		tally.WithoutScheduler(),
	}
	h.engine = tally.New(h.store, append(base, opts...)...)
	return h
}

func (h *harness) createPlan(t *testing.T, name string, price int64) *plan.Plan {
	t.Helper()
	p, err := h.engine.Plans().Create(context.Background(), plan.Input{Name: name, Price: tally.BRL(price)})
	require.NoError(t, err)
	return p
}

func (h *harness) credit(t *testing.T, userID, ref string, amount int64) *operation.Operation {
	t.Helper()
	op, err := h.engine.Operations().Credit(context.Background(), tally.CreditInput{
		Reference: ref,
		Amount:    tally.BRL(amount),
		UserID:    userID,
		IssuerID:  userID,
		Proof:     tally.Proof{Name: "receipt.png", Data: []byte("png")},
	})
	require.NoError(t, err)
	return op
}

func (h *harness) debit(t *testing.T, userID, ref string, amount int64) *operation.Operation {
	t.Helper()
	op, err := h.engine.Operations().Debit(context.Background(), tally.DebitInput{
		Reference: ref,
		Amount:    tally.BRL(amount),
		UserID:    userID,
		IssuerID:  "admin",
	})
	require.NoError(t, err)
	return op
}

func (h *harness) operationsOf(t *testing.T, userID string, kind operation.Kind) []*operation.Operation {
	t.Helper()
	ops, err := h.engine.Operations().ListByUser(context.Background(), userID)
	require.NoError(t, err)

	var out []*operation.Operation
	for _, op := range ops {
		if op.Kind == kind {
			out = append(out, op)
		}
	}
	return out
}

// backdated stores an active subscription that started at startedAt.
func (h *harness) backdated(t *testing.T, userID string, planID id.PlanID, startedAt time.Time, months int) *subscription.Subscription {
	t.Helper()
	sub, err := subscription.New(userID, planID, months, startedAt)
	require.NoError(t, err)
	require.NoError(t, h.store.CreateSubscription(context.Background(), sub))
	return sub
}

// recorder is a plugin that records every hook it receives.
type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) Name() string { return "recorder" }

func (r *recorder) add(e string) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recorder) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func (r *recorder) Count(e string) int {
	n := 0
	for _, got := range r.Events() {
		if got == e {
			n++
		}
	}
	return n
}

func (r *recorder) OnInit(context.Context, any) error { r.add("init"); return nil }
func (r *recorder) OnShutdown(context.Context) error  { r.add("shutdown"); return nil }
func (r *recorder) OnPlanCreated(context.Context, *plan.Plan) error {
	r.add("plan.created")
	return nil
}
func (r *recorder) OnPlanUpdated(context.Context, *plan.Plan, *plan.Plan) error {
	r.add("plan.updated")
	return nil
}
func (r *recorder) OnPlanRemoved(context.Context, id.PlanID) error {
	r.add("plan.removed")
	return nil
}
func (r *recorder) OnSubscriptionCreated(context.Context, *subscription.Subscription) error {
	r.add("subscription.created")
	return nil
}
func (r *recorder) OnSubscriptionCanceled(context.Context, *subscription.Subscription) error {
	r.add("subscription.canceled")
	return nil
}
func (r *recorder) OnSubscriptionFinished(context.Context, *subscription.Subscription) error {
	r.add("subscription.finished")
	return nil
}
func (r *recorder) OnCreditCreated(context.Context, *operation.Operation) error {
	r.add("credit.created")
	return nil
}
func (r *recorder) OnDebitCreated(context.Context, *operation.Operation) error {
	r.add("debit.created")
	return nil
}
func (r *recorder) OnCreditReviewed(context.Context, *operation.Operation) error {
	r.add("credit.reviewed")
	return nil
}
func (r *recorder) OnSettled(context.Context, *subscription.Subscription, []*operation.Operation, time.Duration) error {
	r.add("settled")
	return nil
}
func (r *recorder) OnSettlementFailed(context.Context, id.SubscriptionID, error) error {
	r.add("settlement.failed")
	return nil
}
