// Package plugin provides an extensible plugin system for Tally.
// Plugins can hook into various lifecycle events to extend functionality.
package plugin

import (
	"context"
	"time"

	"github.com/xraph/tally/id"
	"github.com/xraph/tally/operation"
	"github.com/xraph/tally/plan"
	"github.com/xraph/tally/subscription"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the engine starts. engine is the *tally.Engine.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, engine any) error
}

// OnShutdown is called when the engine stops.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Plan hooks
// ──────────────────────────────────────────────────

// OnPlanCreated is called when a new plan is created.
type OnPlanCreated interface {
	Plugin
	OnPlanCreated(ctx context.Context, p *plan.Plan) error
}

// OnPlanUpdated is called when a plan is updated.
type OnPlanUpdated interface {
	Plugin
	OnPlanUpdated(ctx context.Context, oldPlan, newPlan *plan.Plan) error
}

// OnPlanRemoved is called after a plan is deleted.
type OnPlanRemoved interface {
	Plugin
	OnPlanRemoved(ctx context.Context, planID id.PlanID) error
}

// ──────────────────────────────────────────────────
// Subscription hooks
// ──────────────────────────────────────────────────

// OnSubscriptionCreated is called when a user enrolls in a plan.
type OnSubscriptionCreated interface {
	Plugin
	OnSubscriptionCreated(ctx context.Context, sub *subscription.Subscription) error
}

// OnSubscriptionCanceled is called when a subscription is canceled.
type OnSubscriptionCanceled interface {
	Plugin
	OnSubscriptionCanceled(ctx context.Context, sub *subscription.Subscription) error
}

// OnSubscriptionFinished is called when a subscription completes.
type OnSubscriptionFinished interface {
	Plugin
	OnSubscriptionFinished(ctx context.Context, sub *subscription.Subscription) error
}

// ──────────────────────────────────────────────────
// Operation hooks
// ──────────────────────────────────────────────────

// OnCreditCreated is called after a credit and its proof are stored.
type OnCreditCreated interface {
	Plugin
	OnCreditCreated(ctx context.Context, op *operation.Operation) error
}

// OnDebitCreated is called after a debit is stored, including settlement debits.
type OnDebitCreated interface {
	Plugin
	OnDebitCreated(ctx context.Context, op *operation.Operation) error
}

// OnCreditReviewed is called after a credit is approved or rejected.
type OnCreditReviewed interface {
	Plugin
	OnCreditReviewed(ctx context.Context, op *operation.Operation) error
}

// ──────────────────────────────────────────────────
// Settlement hooks
// ──────────────────────────────────────────────────

// OnSettled is called after a subscription is settled. ops holds only the
// operations created by that pass.
type OnSettled interface {
	Plugin
	OnSettled(ctx context.Context, sub *subscription.Subscription, ops []*operation.Operation, elapsed time.Duration) error
}

// OnSettlementFailed is called when settling a subscription fails.
type OnSettlementFailed interface {
	Plugin
	OnSettlementFailed(ctx context.Context, subID id.SubscriptionID, err error) error
}
