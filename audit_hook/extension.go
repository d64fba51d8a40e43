// Package audithook bridges Tally lifecycle events to an audit trail backend.
//
// It defines a local Recorder interface so the package does not depend on
// any particular audit store. Callers inject a RecorderFunc adapter at
// wiring time.
package audithook

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/tally/id"
	"github.com/xraph/tally/operation"
	"github.com/xraph/tally/plan"
	"github.com/xraph/tally/plugin"
	"github.com/xraph/tally/subscription"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin                 = (*Extension)(nil)
	_ plugin.OnPlanCreated          = (*Extension)(nil)
	_ plugin.OnPlanUpdated          = (*Extension)(nil)
	_ plugin.OnPlanRemoved          = (*Extension)(nil)
	_ plugin.OnSubscriptionCreated  = (*Extension)(nil)
	_ plugin.OnSubscriptionCanceled = (*Extension)(nil)
	_ plugin.OnSubscriptionFinished = (*Extension)(nil)
	_ plugin.OnCreditCreated        = (*Extension)(nil)
	_ plugin.OnDebitCreated         = (*Extension)(nil)
	_ plugin.OnCreditReviewed       = (*Extension)(nil)
	_ plugin.OnSettled              = (*Extension)(nil)
	_ plugin.OnSettlementFailed     = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a local representation of an audit event.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges Tally lifecycle events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Plan lifecycle hooks
// ──────────────────────────────────────────────────

// OnPlanCreated implements plugin.OnPlanCreated.
func (e *Extension) OnPlanCreated(ctx context.Context, p *plan.Plan) error {
	return e.record(ctx, ActionPlanCreated, SeverityInfo, OutcomeSuccess,
		ResourcePlan, p.ID.String(), CategoryBilling, nil,
		"name", p.Name,
		"price", p.Price.String(),
	)
}

// OnPlanUpdated implements plugin.OnPlanUpdated.
func (e *Extension) OnPlanUpdated(ctx context.Context, oldPlan, newPlan *plan.Plan) error {
	return e.record(ctx, ActionPlanUpdated, SeverityInfo, OutcomeSuccess,
		ResourcePlan, newPlan.ID.String(), CategoryBilling, nil,
		"old_price", oldPlan.Price.String(),
		"new_price", newPlan.Price.String(),
		"active", newPlan.Active,
	)
}

// OnPlanRemoved implements plugin.OnPlanRemoved.
func (e *Extension) OnPlanRemoved(ctx context.Context, planID id.PlanID) error {
	return e.record(ctx, ActionPlanRemoved, SeverityWarning, OutcomeSuccess,
		ResourcePlan, planID.String(), CategoryBilling, nil,
	)
}

// ──────────────────────────────────────────────────
// Subscription lifecycle hooks
// ──────────────────────────────────────────────────

// OnSubscriptionCreated implements plugin.OnSubscriptionCreated.
func (e *Extension) OnSubscriptionCreated(ctx context.Context, sub *subscription.Subscription) error {
	kv := []any{
		"user_id", sub.UserID,
		"plan_id", sub.PlanID.String(),
		"started_at", sub.StartedAt.Format(time.RFC3339),
	}
	if sub.EndsAt != nil {
		kv = append(kv, "ends_at", sub.EndsAt.Format(time.RFC3339))
	}
	return e.record(ctx, ActionSubscriptionCreated, SeverityInfo, OutcomeSuccess,
		ResourceSubscription, sub.ID.String(), CategorySubscription, nil,
		kv...,
	)
}

// OnSubscriptionCanceled implements plugin.OnSubscriptionCanceled.
func (e *Extension) OnSubscriptionCanceled(ctx context.Context, sub *subscription.Subscription) error {
	return e.record(ctx, ActionSubscriptionCanceled, SeverityInfo, OutcomeSuccess,
		ResourceSubscription, sub.ID.String(), CategorySubscription, nil,
		"user_id", sub.UserID,
		"plan_id", sub.PlanID.String(),
	)
}

// OnSubscriptionFinished implements plugin.OnSubscriptionFinished.
func (e *Extension) OnSubscriptionFinished(ctx context.Context, sub *subscription.Subscription) error {
	return e.record(ctx, ActionSubscriptionFinished, SeverityInfo, OutcomeSuccess,
		ResourceSubscription, sub.ID.String(), CategorySubscription, nil,
		"user_id", sub.UserID,
		"plan_id", sub.PlanID.String(),
	)
}

// ──────────────────────────────────────────────────
// Operation lifecycle hooks
// ──────────────────────────────────────────────────

// OnCreditCreated implements plugin.OnCreditCreated.
func (e *Extension) OnCreditCreated(ctx context.Context, op *operation.Operation) error {
	return e.recordOperation(ctx, ActionCreditCreated, SeverityInfo, op)
}

// OnDebitCreated implements plugin.OnDebitCreated.
func (e *Extension) OnDebitCreated(ctx context.Context, op *operation.Operation) error {
	return e.recordOperation(ctx, ActionDebitCreated, SeverityInfo, op)
}

// OnCreditReviewed implements plugin.OnCreditReviewed.
func (e *Extension) OnCreditReviewed(ctx context.Context, op *operation.Operation) error {
	if op.Credit == nil {
		return nil
	}
	action, severity := ActionCreditApproved, SeverityInfo
	if op.Credit.Status == operation.StatusRejected {
		action, severity = ActionCreditRejected, SeverityWarning
	}
	return e.recordOperation(ctx, action, severity, op,
		"reviewed_by", op.Credit.ReviewedBy,
	)
}

// ──────────────────────────────────────────────────
// Settlement hooks
// ──────────────────────────────────────────────────

// OnSettled implements plugin.OnSettled. Passes that created nothing are
// not audited.
func (e *Extension) OnSettled(ctx context.Context, sub *subscription.Subscription, ops []*operation.Operation, elapsed time.Duration) error {
	if len(ops) == 0 {
		return nil
	}
	refs := make([]string, len(ops))
	for i, op := range ops {
		refs[i] = op.Reference
	}
	return e.record(ctx, ActionSettled, SeverityInfo, OutcomeSuccess,
		ResourceSubscription, sub.ID.String(), CategoryBilling, nil,
		"user_id", sub.UserID,
		"references", refs,
		"elapsed_ms", elapsed.Milliseconds(),
	)
}

// OnSettlementFailed implements plugin.OnSettlementFailed.
func (e *Extension) OnSettlementFailed(ctx context.Context, subID id.SubscriptionID, err error) error {
	return e.record(ctx, ActionSettlementFailed, SeverityCritical, OutcomeFailure,
		ResourceSubscription, subID.String(), CategoryBilling, err,
	)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

func (e *Extension) recordOperation(ctx context.Context, action, severity string, op *operation.Operation, kvPairs ...any) error {
	kv := append([]any{
		"user_id", op.UserID,
		"issuer_id", op.IssuerID,
		"reference", op.Reference,
		"amount", op.Amount.String(),
	}, kvPairs...)
	return e.record(ctx, action, severity, OutcomeSuccess,
		ResourceOperation, op.ID.String(), CategoryLedger, nil,
		kv...,
	)
}

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
