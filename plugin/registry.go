package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/tally/id"
	"github.com/xraph/tally/operation"
	"github.com/xraph/tally/plan"
	"github.com/xraph/tally/subscription"
)

// DefaultTimeout bounds each hook call.
const DefaultTimeout = 5 * time.Second

// Registry manages all registered plugins and provides efficient dispatch.
// It uses type-cached discovery so dispatch never type-asserts.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger
	timeout time.Duration

	// Type-cached plugin lists for efficient dispatch
	onInit                 []OnInit
	onShutdown             []OnShutdown
	onPlanCreated          []OnPlanCreated
	onPlanUpdated          []OnPlanUpdated
	onPlanRemoved          []OnPlanRemoved
	onSubscriptionCreated  []OnSubscriptionCreated
	onSubscriptionCanceled []OnSubscriptionCanceled
	onSubscriptionFinished []OnSubscriptionFinished
	onCreditCreated        []OnCreditCreated
	onDebitCreated         []OnDebitCreated
	onCreditReviewed       []OnCreditReviewed
	onSettled              []OnSettled
	onSettlementFailed     []OnSettlementFailed
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger:  slog.Default(),
		timeout: DefaultTimeout,
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// WithTimeout sets the per-hook timeout.
func (r *Registry) WithTimeout(d time.Duration) *Registry {
	if d > 0 {
		r.timeout = d
	}
	return r
}

// Register adds a plugin to the registry and caches its interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	var hooks []string
	cache := func(ok bool, name string, add func()) {
		if ok {
			add()
			hooks = append(hooks, name)
		}
	}

	v1, ok := p.(OnInit)
	cache(ok, "OnInit", func() { r.onInit = append(r.onInit, v1) })
	v2, ok := p.(OnShutdown)
	cache(ok, "OnShutdown", func() { r.onShutdown = append(r.onShutdown, v2) })
	v3, ok := p.(OnPlanCreated)
	cache(ok, "OnPlanCreated", func() { r.onPlanCreated = append(r.onPlanCreated, v3) })
	v4, ok := p.(OnPlanUpdated)
	cache(ok, "OnPlanUpdated", func() { r.onPlanUpdated = append(r.onPlanUpdated, v4) })
	v5, ok := p.(OnPlanRemoved)
	cache(ok, "OnPlanRemoved", func() { r.onPlanRemoved = append(r.onPlanRemoved, v5) })
	v6, ok := p.(OnSubscriptionCreated)
	cache(ok, "OnSubscriptionCreated", func() { r.onSubscriptionCreated = append(r.onSubscriptionCreated, v6) })
	v7, ok := p.(OnSubscriptionCanceled)
	cache(ok, "OnSubscriptionCanceled", func() { r.onSubscriptionCanceled = append(r.onSubscriptionCanceled, v7) })
	v8, ok := p.(OnSubscriptionFinished)
	cache(ok, "OnSubscriptionFinished", func() { r.onSubscriptionFinished = append(r.onSubscriptionFinished, v8) })
	v9, ok := p.(OnCreditCreated)
	cache(ok, "OnCreditCreated", func() { r.onCreditCreated = append(r.onCreditCreated, v9) })
	v10, ok := p.(OnDebitCreated)
	cache(ok, "OnDebitCreated", func() { r.onDebitCreated = append(r.onDebitCreated, v10) })
	v11, ok := p.(OnCreditReviewed)
	cache(ok, "OnCreditReviewed", func() { r.onCreditReviewed = append(r.onCreditReviewed, v11) })
	v12, ok := p.(OnSettled)
	cache(ok, "OnSettled", func() { r.onSettled = append(r.onSettled, v12) })
	v13, ok := p.(OnSettlementFailed)
	cache(ok, "OnSettlementFailed", func() { r.onSettlementFailed = append(r.onSettlementFailed, v13) })

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"interfaces", hooks,
	)

	return nil
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// emit calls fn for every plugin in list, bounded by the registry timeout.
// Failures are logged and never returned.
func emit[T Plugin](ctx context.Context, r *Registry, hook string, list func() []T, fn func(T) error) {
	r.mu.RLock()
	plugins := list()
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return fn(p)
		}); err != nil {
			r.logger.Warn("plugin "+hook+" failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, engine any) {
	emit(ctx, r, "OnInit", func() []OnInit { return r.onInit }, func(p OnInit) error {
		return p.OnInit(ctx, engine)
	})
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	emit(ctx, r, "OnShutdown", func() []OnShutdown { return r.onShutdown }, func(p OnShutdown) error {
		return p.OnShutdown(ctx)
	})
}

// EmitPlanCreated emits a plan created event.
func (r *Registry) EmitPlanCreated(ctx context.Context, pl *plan.Plan) {
	emit(ctx, r, "OnPlanCreated", func() []OnPlanCreated { return r.onPlanCreated }, func(p OnPlanCreated) error {
		return p.OnPlanCreated(ctx, pl)
	})
}

// EmitPlanUpdated emits a plan updated event.
func (r *Registry) EmitPlanUpdated(ctx context.Context, oldPlan, newPlan *plan.Plan) {
	emit(ctx, r, "OnPlanUpdated", func() []OnPlanUpdated { return r.onPlanUpdated }, func(p OnPlanUpdated) error {
		return p.OnPlanUpdated(ctx, oldPlan, newPlan)
	})
}

// EmitPlanRemoved emits a plan removed event.
func (r *Registry) EmitPlanRemoved(ctx context.Context, planID id.PlanID) {
	emit(ctx, r, "OnPlanRemoved", func() []OnPlanRemoved { return r.onPlanRemoved }, func(p OnPlanRemoved) error {
		return p.OnPlanRemoved(ctx, planID)
	})
}

// EmitSubscriptionCreated emits a subscription created event.
func (r *Registry) EmitSubscriptionCreated(ctx context.Context, sub *subscription.Subscription) {
	emit(ctx, r, "OnSubscriptionCreated", func() []OnSubscriptionCreated { return r.onSubscriptionCreated }, func(p OnSubscriptionCreated) error {
		return p.OnSubscriptionCreated(ctx, sub)
	})
}

// EmitSubscriptionCanceled emits a subscription canceled event.
func (r *Registry) EmitSubscriptionCanceled(ctx context.Context, sub *subscription.Subscription) {
	emit(ctx, r, "OnSubscriptionCanceled", func() []OnSubscriptionCanceled { return r.onSubscriptionCanceled }, func(p OnSubscriptionCanceled) error {
		return p.OnSubscriptionCanceled(ctx, sub)
	})
}

// EmitSubscriptionFinished emits a subscription finished event.
func (r *Registry) EmitSubscriptionFinished(ctx context.Context, sub *subscription.Subscription) {
	emit(ctx, r, "OnSubscriptionFinished", func() []OnSubscriptionFinished { return r.onSubscriptionFinished }, func(p OnSubscriptionFinished) error {
		return p.OnSubscriptionFinished(ctx, sub)
	})
}

// EmitCreditCreated emits a credit created event.
func (r *Registry) EmitCreditCreated(ctx context.Context, op *operation.Operation) {
	emit(ctx, r, "OnCreditCreated", func() []OnCreditCreated { return r.onCreditCreated }, func(p OnCreditCreated) error {
		return p.OnCreditCreated(ctx, op)
	})
}

// EmitDebitCreated emits a debit created event.
func (r *Registry) EmitDebitCreated(ctx context.Context, op *operation.Operation) {
	emit(ctx, r, "OnDebitCreated", func() []OnDebitCreated { return r.onDebitCreated }, func(p OnDebitCreated) error {
		return p.OnDebitCreated(ctx, op)
	})
}

// EmitCreditReviewed emits a credit reviewed event.
func (r *Registry) EmitCreditReviewed(ctx context.Context, op *operation.Operation) {
	emit(ctx, r, "OnCreditReviewed", func() []OnCreditReviewed { return r.onCreditReviewed }, func(p OnCreditReviewed) error {
		return p.OnCreditReviewed(ctx, op)
	})
}

// EmitSettled emits a settlement completed event.
func (r *Registry) EmitSettled(ctx context.Context, sub *subscription.Subscription, ops []*operation.Operation, elapsed time.Duration) {
	emit(ctx, r, "OnSettled", func() []OnSettled { return r.onSettled }, func(p OnSettled) error {
		return p.OnSettled(ctx, sub, ops, elapsed)
	})
}

// EmitSettlementFailed emits a settlement failure event.
func (r *Registry) EmitSettlementFailed(ctx context.Context, subID id.SubscriptionID, err error) {
	emit(ctx, r, "OnSettlementFailed", func() []OnSettlementFailed { return r.onSettlementFailed }, func(p OnSettlementFailed) error {
		return p.OnSettlementFailed(ctx, subID, err)
	})
}

// callWithTimeout calls a plugin function with a timeout.
// Plugins should never block the billing pipeline.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
