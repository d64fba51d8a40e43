package audithook

// Action constants for audit events.
const (
	// Plan actions
	ActionPlanCreated = "plan.created"
	ActionPlanUpdated = "plan.updated"
	ActionPlanRemoved = "plan.removed"

	// Subscription actions
	ActionSubscriptionCreated  = "subscription.created"
	ActionSubscriptionCanceled = "subscription.canceled"
	ActionSubscriptionFinished = "subscription.finished"

	// Operation actions
	ActionCreditCreated  = "credit.created"
	ActionCreditApproved = "credit.approved"
	ActionCreditRejected = "credit.rejected"
	ActionDebitCreated   = "debit.created"

	// Settlement actions
	ActionSettled          = "settlement.completed"
	ActionSettlementFailed = "settlement.failed"
)

// Resource constants for audit events.
const (
	ResourcePlan         = "plan"
	ResourceSubscription = "subscription"
	ResourceOperation    = "operation"
)

// Category constants for audit events.
const (
	CategoryBilling      = "billing"
	CategorySubscription = "subscription"
	CategoryLedger       = "ledger"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)
