// Package observability provides a metrics extension for Tally that records
// lifecycle event counts through a MetricFactory.
package observability

import (
	"context"
	"time"

	"github.com/xraph/tally/id"
	"github.com/xraph/tally/operation"
	"github.com/xraph/tally/plan"
	"github.com/xraph/tally/plugin"
	"github.com/xraph/tally/subscription"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin                 = (*MetricsExtension)(nil)
	_ plugin.OnPlanCreated          = (*MetricsExtension)(nil)
	_ plugin.OnPlanUpdated          = (*MetricsExtension)(nil)
	_ plugin.OnPlanRemoved          = (*MetricsExtension)(nil)
	_ plugin.OnSubscriptionCreated  = (*MetricsExtension)(nil)
	_ plugin.OnSubscriptionCanceled = (*MetricsExtension)(nil)
	_ plugin.OnSubscriptionFinished = (*MetricsExtension)(nil)
	_ plugin.OnCreditCreated        = (*MetricsExtension)(nil)
	_ plugin.OnDebitCreated         = (*MetricsExtension)(nil)
	_ plugin.OnCreditReviewed       = (*MetricsExtension)(nil)
	_ plugin.OnSettled              = (*MetricsExtension)(nil)
	_ plugin.OnSettlementFailed     = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records system-wide lifecycle metrics.
// Register it as a Tally plugin to automatically track billing metrics.
type MetricsExtension struct {
	// Plan metrics
	PlanCreated Counter
	PlanUpdated Counter
	PlanRemoved Counter

	// Subscription metrics
	SubscriptionCreated  Counter
	SubscriptionCanceled Counter
	SubscriptionFinished Counter

	// Operation metrics
	CreditCreated  Counter
	DebitCreated   Counter
	CreditApproved Counter
	CreditRejected Counter
	CreditAmount   Histogram
	DebitAmount    Histogram

	// Settlement metrics
	Settlements         Counter
	SettlementFailures  Counter
	SettlementLatency   Histogram
	SettlementOperation Histogram
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		PlanCreated: factory.Counter("tally.plan.created"),
		PlanUpdated: factory.Counter("tally.plan.updated"),
		PlanRemoved: factory.Counter("tally.plan.removed"),

		SubscriptionCreated:  factory.Counter("tally.subscription.created"),
		SubscriptionCanceled: factory.Counter("tally.subscription.canceled"),
		SubscriptionFinished: factory.Counter("tally.subscription.finished"),

		CreditCreated:  factory.Counter("tally.credit.created"),
		DebitCreated:   factory.Counter("tally.debit.created"),
		CreditApproved: factory.Counter("tally.credit.approved"),
		CreditRejected: factory.Counter("tally.credit.rejected"),
		CreditAmount:   factory.Histogram("tally.credit.amount_cents"),
		DebitAmount:    factory.Histogram("tally.debit.amount_cents"),

		Settlements:         factory.Counter("tally.settlement.completed"),
		SettlementFailures:  factory.Counter("tally.settlement.failed"),
		SettlementLatency:   factory.Histogram("tally.settlement.latency_ms"),
		SettlementOperation: factory.Histogram("tally.settlement.operations"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// ──────────────────────────────────────────────────
// Plan lifecycle hooks
// ──────────────────────────────────────────────────

// OnPlanCreated implements plugin.OnPlanCreated.
func (m *MetricsExtension) OnPlanCreated(_ context.Context, _ *plan.Plan) error {
	m.PlanCreated.Inc()
	return nil
}

// OnPlanUpdated implements plugin.OnPlanUpdated.
func (m *MetricsExtension) OnPlanUpdated(_ context.Context, _, _ *plan.Plan) error {
	m.PlanUpdated.Inc()
	return nil
}

// OnPlanRemoved implements plugin.OnPlanRemoved.
func (m *MetricsExtension) OnPlanRemoved(_ context.Context, _ id.PlanID) error {
	m.PlanRemoved.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Subscription lifecycle hooks
// ──────────────────────────────────────────────────

// OnSubscriptionCreated implements plugin.OnSubscriptionCreated.
func (m *MetricsExtension) OnSubscriptionCreated(_ context.Context, _ *subscription.Subscription) error {
	m.SubscriptionCreated.Inc()
	return nil
}

// OnSubscriptionCanceled implements plugin.OnSubscriptionCanceled.
func (m *MetricsExtension) OnSubscriptionCanceled(_ context.Context, _ *subscription.Subscription) error {
	m.SubscriptionCanceled.Inc()
	return nil
}

// OnSubscriptionFinished implements plugin.OnSubscriptionFinished.
func (m *MetricsExtension) OnSubscriptionFinished(_ context.Context, _ *subscription.Subscription) error {
	m.SubscriptionFinished.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Operation lifecycle hooks
// ──────────────────────────────────────────────────

// OnCreditCreated implements plugin.OnCreditCreated.
func (m *MetricsExtension) OnCreditCreated(_ context.Context, op *operation.Operation) error {
	m.CreditCreated.Inc()
	m.CreditAmount.Observe(float64(op.Amount.Amount))
	return nil
}

// OnDebitCreated implements plugin.OnDebitCreated.
func (m *MetricsExtension) OnDebitCreated(_ context.Context, op *operation.Operation) error {
	m.DebitCreated.Inc()
	m.DebitAmount.Observe(float64(op.Amount.Amount))
	return nil
}

// OnCreditReviewed implements plugin.OnCreditReviewed.
func (m *MetricsExtension) OnCreditReviewed(_ context.Context, op *operation.Operation) error {
	if op.Credit == nil {
		return nil
	}
	switch op.Credit.Status {
	case operation.StatusApproved:
		m.CreditApproved.Inc()
	case operation.StatusRejected:
		m.CreditRejected.Inc()
	}
	return nil
}

// ──────────────────────────────────────────────────
// Settlement hooks
// ──────────────────────────────────────────────────

// OnSettled implements plugin.OnSettled.
func (m *MetricsExtension) OnSettled(_ context.Context, _ *subscription.Subscription, ops []*operation.Operation, elapsed time.Duration) error {
	m.Settlements.Inc()
	m.SettlementLatency.Observe(float64(elapsed.Milliseconds()))
	m.SettlementOperation.Observe(float64(len(ops)))
	return nil
}

// OnSettlementFailed implements plugin.OnSettlementFailed.
func (m *MetricsExtension) OnSettlementFailed(_ context.Context, _ id.SubscriptionID, _ error) error {
	m.SettlementFailures.Inc()
	return nil
}
