package plugin

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/tally/id"
	"github.com/xraph/tally/operation"
	"github.com/xraph/tally/plan"
	"github.com/xraph/tally/subscription"
)

type planWatcher struct {
	name string

	mu      sync.Mutex
	created []string
	removed []string
	err     error
}

func (p *planWatcher) Name() string { return p.name }

func (p *planWatcher) OnPlanCreated(_ context.Context, pl *plan.Plan) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.created = append(p.created, pl.Name)
	return p.err
}

func (p *planWatcher) OnPlanRemoved(_ context.Context, planID id.PlanID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.removed = append(p.removed, planID.String())
	return nil
}

type slowSettler struct{ delay time.Duration }

func (s slowSettler) Name() string { return "slow" }

func (s slowSettler) OnSettled(ctx context.Context, _ *subscription.Subscription, _ []*operation.Operation, _ time.Duration) error {
	select {
	case <-time.After(s.delay):
	case <-ctx.Done():
	}
	return nil
}

type bare struct{}

func (bare) Name() string { return "bare" }

func newTestRegistry() *Registry {
	return NewRegistry().WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestRegisterRejectsDuplicateNames(t *testing.T) {
	r := newTestRegistry()
	require.NoError(t, r.Register(&planWatcher{name: "watcher"}))

	err := r.Register(&planWatcher{name: "watcher"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate registration")
	assert.Equal(t, 1, r.Count())
}

func TestGetAndList(t *testing.T) {
	r := newTestRegistry()
	w := &planWatcher{name: "watcher"}
	require.NoError(t, r.Register(w))
	require.NoError(t, r.Register(bare{}))

	assert.Same(t, w, r.Get("watcher"))
	assert.Nil(t, r.Get("missing"))
	assert.Len(t, r.List(), 2)
}

func TestEmitDispatchesOnlyToImplementers(t *testing.T) {
	r := newTestRegistry()
	w := &planWatcher{name: "watcher"}
	require.NoError(t, r.Register(w))
	require.NoError(t, r.Register(bare{}))

	ctx := context.Background()
	p := &plan.Plan{ID: id.NewPlanID(), Name: "Gold"}

	r.EmitPlanCreated(ctx, p)
	r.EmitPlanRemoved(ctx, p.ID)
	r.EmitPlanUpdated(ctx, p, p) // no implementer

	assert.Equal(t, []string{"Gold"}, w.created)
	assert.Equal(t, []string{p.ID.String()}, w.removed)
}

func TestEmitSwallowsHookErrors(t *testing.T) {
	r := newTestRegistry()
	failing := &planWatcher{name: "failing", err: errors.New("boom")}
	ok := &planWatcher{name: "ok"}
	require.NoError(t, r.Register(failing))
	require.NoError(t, r.Register(ok))

	r.EmitPlanCreated(context.Background(), &plan.Plan{ID: id.NewPlanID(), Name: "Gold"})
	assert.Len(t, failing.created, 1)
	assert.Len(t, ok.created, 1, "a failing hook does not stop the others")
}

func TestEmitTimesOut(t *testing.T) {
	r := newTestRegistry().WithTimeout(20 * time.Millisecond)
	require.NoError(t, r.Register(slowSettler{delay: time.Second}))

	begin := time.Now()
	r.EmitSettled(context.Background(), &subscription.Subscription{ID: id.NewSubscriptionID()}, nil, 0)
	assert.Less(t, time.Since(begin), 500*time.Millisecond)
}

func TestWithTimeoutIgnoresNonPositive(t *testing.T) {
	r := NewRegistry().WithTimeout(0)
	assert.Equal(t, DefaultTimeout, r.timeout)
}
