package tally

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/xraph/tally/id"
	"github.com/xraph/tally/operation"
	"github.com/xraph/tally/plan"
	"github.com/xraph/tally/subscription"
	"github.com/xraph/tally/types"
)

const (
	// RefundProofName is the placeholder receipt attached to refund credits.
	RefundProofName = "receipt.txt"

	// ProrationDays is the fixed month length used for refunds.
	ProrationDays = 30

	descriptionLayout = "02/01/2006 15:04:05"
)

// DebitReference is the reference of the debit billing the period that
// starts at cursor.
func DebitReference(cursor time.Time) string {
	return "DEB" + strconv.FormatInt(cursor.UnixMilli(), 10)
}

// RefundReference is the reference of the refund issued for a subscription
// that ended at endedAt.
func RefundReference(endedAt time.Time) string {
	return "DEP" + strconv.FormatInt(endedAt.UnixMilli(), 10)
}

// ProrateRefund returns the unused share of the current period's price.
// The current period starts at the last whole month since startedAt and is
// always ProrationDays long.
func ProrateRefund(price types.Money, startedAt, now time.Time) types.Money {
	months := subscription.MonthsBetween(startedAt, now)
	days := subscription.DaysBetween(subscription.AddMonths(startedAt, months), now)
	return price.Prorate(int64(max(ProrationDays-days, 0)), ProrationDays)
}

// SubscriptionService enrolls users in plans and settles their billing.
type SubscriptionService struct {
	serviceEnv
	subs        subscription.Store
	plans       plan.Store
	operations  *OperationService
	concurrency int
}

// EnrollOptions tunes a new subscription. Zero DurationMonths means
// open-ended.
type EnrollOptions struct {
	DurationMonths int
}

// ListFilter selects subscriptions. Empty fields match everything.
type ListFilter struct {
	UserID string
	Status subscription.Status
}

// SettleFailure is one subscription that could not be settled.
type SettleFailure struct {
	SubscriptionID id.SubscriptionID
	Err            error
}

// SettleReport summarizes a SettleActive pass.
type SettleReport struct {
	Processed  int
	Operations int
	Failed     []SettleFailure
}

// Enroll subscribes userID to planID and settles the new subscription right
// away. When settlement fails the subscription is still returned, together
// with the error.
func (s *SubscriptionService) Enroll(ctx context.Context, userID string, planID id.PlanID, opts EnrollOptions) (*subscription.Subscription, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, types.Invalid("user_id", "must not be empty")
	}

	active, err := s.subs.List(ctx, subscription.ListOpts{UserID: userID, Status: subscription.StatusActive})
	if err != nil {
		return nil, fmt.Errorf("tally: enroll %s: %w", userID, err)
	}
	if len(active) > 0 {
		return nil, fmt.Errorf("tally: enroll %s: %w", userID, ErrActiveSubscriptionExists)
	}

	p, err := s.plans.Get(ctx, planID)
	if err != nil {
		err = fmt.Errorf("tally: enroll %s: %w", userID, err)
		if errors.Is(err, ErrPlanNotFound) {
			return nil, conflictError{err}
		}
		return nil, err
	}
	if !p.Active {
		return nil, fmt.Errorf("tally: enroll %s in %s: %w", userID, planID, ErrPlanInactive)
	}

	sub, err := subscription.New(userID, planID, opts.DurationMonths, s.now().In(s.location))
	if err != nil {
		return nil, err
	}
	if err := s.subs.Create(ctx, sub); err != nil {
		return nil, fmt.Errorf("tally: enroll %s: %w", userID, err)
	}

	s.logger.Info("subscription created",
		"subscription_id", sub.ID.String(),
		"user_id", sub.UserID,
		"plan_id", sub.PlanID.String(),
		"duration_months", opts.DurationMonths,
	)
	s.plugins.EmitSubscriptionCreated(ctx, sub)

	if _, err := s.Settle(ctx, sub.ID); err != nil {
		return sub, err
	}
	return sub, nil
}

// End terminates an active subscription and settles it. An empty reason
// means completion. Settlement runs even when persisting the new state
// fails; both errors are returned joined.
func (s *SubscriptionService) End(ctx context.Context, subID id.SubscriptionID, reason subscription.Reason) (*subscription.Subscription, error) {
	if reason == "" {
		reason = subscription.ReasonCompletion
	}

	sub, err := s.subs.Get(ctx, subID)
	if err != nil {
		return nil, fmt.Errorf("tally: end %s: %w", subID, err)
	}
	if err := sub.End(reason, s.now()); err != nil {
		return nil, fmt.Errorf("tally: end %s: %w", subID, err)
	}

	var errs []error
	if err := s.persistEnd(ctx, sub); err != nil {
		errs = append(errs, err)
	}
	if _, err := s.Settle(ctx, subID); err != nil {
		errs = append(errs, err)
	}
	return sub, errors.Join(errs...)
}

// persistEnd stores an ended subscription and emits its hook. It never
// settles.
func (s *SubscriptionService) persistEnd(ctx context.Context, sub *subscription.Subscription) error {
	if err := s.subs.Update(ctx, sub); err != nil {
		return fmt.Errorf("tally: end %s: %w", sub.ID, err)
	}
	s.logger.Info("subscription ended",
		"subscription_id", sub.ID.String(),
		"user_id", sub.UserID,
		"status", string(sub.Status),
	)
	switch sub.Status {
	case subscription.StatusCanceled:
		s.plugins.EmitSubscriptionCanceled(ctx, sub)
	case subscription.StatusFinished:
		s.plugins.EmitSubscriptionFinished(ctx, sub)
	}
	return nil
}

// Get returns one subscription.
func (s *SubscriptionService) Get(ctx context.Context, subID id.SubscriptionID) (*subscription.Subscription, error) {
	return s.subs.Get(ctx, subID)
}

// ListByUser returns the user's subscriptions, newest first.
func (s *SubscriptionService) ListByUser(ctx context.Context, userID string) ([]*subscription.Subscription, error) {
	return s.List(ctx, ListFilter{UserID: userID})
}

// List returns subscriptions ordered by user, then newest first.
func (s *SubscriptionService) List(ctx context.Context, f ListFilter) ([]*subscription.Subscription, error) {
	subs, err := s.subs.List(ctx, subscription.ListOpts{UserID: f.UserID, Status: f.Status})
	if err != nil {
		return nil, fmt.Errorf("tally: list subscriptions: %w", err)
	}
	slices.SortStableFunc(subs, func(a, b *subscription.Subscription) int {
		if c := strings.Compare(a.UserID, b.UserID); c != 0 {
			return c
		}
		return b.StartedAt.Compare(a.StartedAt)
	})
	return subs, nil
}

// ──────────────────────────────────────────────────
// Settlement
// ──────────────────────────────────────────────────

// Settle bills every period of the subscription that is due and not yet
// billed, refunds the unused share of a canceled subscription and finishes
// a bounded subscription past its end. It returns only the operations it
// created, so an empty result means there was nothing left to bill.
func (s *SubscriptionService) Settle(ctx context.Context, subID id.SubscriptionID) ([]*operation.Operation, error) {
	start := time.Now()

	sub, ops, err := s.settle(ctx, subID)
	if err != nil {
		s.logger.Warn("settlement failed",
			"subscription_id", subID.String(),
			"operations", len(ops),
			"error", err,
		)
		s.plugins.EmitSettlementFailed(ctx, subID, err)
		return ops, err
	}

	elapsed := time.Since(start)
	s.logger.Debug("subscription settled",
		"subscription_id", subID.String(),
		"user_id", sub.UserID,
		"operations", len(ops),
		"elapsed_ms", elapsed.Milliseconds(),
	)
	s.plugins.EmitSettled(ctx, sub, ops, elapsed)
	return ops, nil
}

func (s *SubscriptionService) settle(ctx context.Context, subID id.SubscriptionID) (*subscription.Subscription, []*operation.Operation, error) {
	sub, err := s.subs.Get(ctx, subID)
	if err != nil {
		return nil, nil, fmt.Errorf("tally: settle %s: %w", subID, err)
	}
	p, err := s.plans.Get(ctx, sub.PlanID)
	if err != nil {
		return sub, nil, fmt.Errorf("tally: settle %s: %w", subID, err)
	}

	now := s.now().In(s.location)
	// an ended subscription is settled as of the moment it ended
	horizon := now
	if sub.EndedAt != nil {
		horizon = sub.EndedAt.In(s.location)
	}
	ops := make([]*operation.Operation, 0)

	for cursor := sub.StartedAt.In(s.location); s.due(sub, cursor, horizon); cursor = subscription.AddMonths(cursor, 1) {
		if err := ctx.Err(); err != nil {
			return sub, ops, fmt.Errorf("tally: settle %s: %w", subID, err)
		}

		debit, err := s.operations.Debit(ctx, DebitInput{
			Reference:   DebitReference(cursor),
			Amount:      p.Price,
			UserID:      sub.UserID,
			IssuerID:    SystemIssuer,
			Description: fmt.Sprintf("Debit for the %s plan subscription on %s", p.Name, cursor.Format(descriptionLayout)),
		})
		if errors.Is(err, ErrDuplicateReference) {
			continue
		}
		if err != nil {
			return sub, ops, fmt.Errorf("tally: settle %s: %w", subID, err)
		}
		ops = append(ops, debit)
	}

	if sub.Status == subscription.StatusCanceled {
		refund, err := s.refund(ctx, sub, p, horizon)
		if err != nil {
			return sub, ops, fmt.Errorf("tally: settle %s: %w", subID, err)
		}
		if refund != nil {
			ops = append(ops, refund)
		}
	}

	// every period is billed by now, so finishing needs no second pass
	if sub.IsActive() && sub.Expired(now) {
		if err := sub.End(subscription.ReasonCompletion, s.now()); err != nil {
			return sub, ops, fmt.Errorf("tally: settle %s: finish: %w", subID, err)
		}
		if err := s.persistEnd(ctx, sub); err != nil {
			return sub, ops, fmt.Errorf("tally: settle %s: finish: %w", subID, err)
		}
	}

	return sub, ops, nil
}

// due reports whether the period starting at cursor is billable. Bounded
// subscriptions bill every period that starts on a calendar day before
// EndsAt; open-ended ones bill every period started by horizon.
func (s *SubscriptionService) due(sub *subscription.Subscription, cursor, horizon time.Time) bool {
	if sub.EndsAt != nil {
		return subscription.DayBefore(cursor, *sub.EndsAt, s.location)
	}
	return !cursor.After(horizon)
}

// refund issues the auto-approved proration credit for a subscription
// canceled at endedAt. It returns nil when nothing is owed or the refund
// exists.
func (s *SubscriptionService) refund(ctx context.Context, sub *subscription.Subscription, p *plan.Plan, endedAt time.Time) (*operation.Operation, error) {
	amount := ProrateRefund(p.Price, sub.StartedAt.In(s.location), endedAt)
	if !amount.IsPositive() {
		s.logger.Debug("no refund owed", "subscription_id", sub.ID.String())
		return nil, nil
	}

	credit, err := s.operations.Credit(ctx, CreditInput{
		Reference:   RefundReference(endedAt),
		Amount:      amount,
		UserID:      sub.UserID,
		IssuerID:    SystemIssuer,
		Description: fmt.Sprintf("Credit for canceling the %s plan on %s", p.Name, endedAt.Format(descriptionLayout)),
		Proof:       Proof{Name: RefundProofName, Data: []byte{}},
	})
	if errors.Is(err, ErrDuplicateReference) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return s.operations.Review(ctx, credit.ID, ReviewInput{
		Status:     operation.StatusApproved,
		ReviewerID: SystemIssuer,
	})
}

// SettleActive settles every active subscription, at most concurrency at a
// time. A failing subscription does not stop the others; all failures are
// listed in the report and returned joined.
func (s *SubscriptionService) SettleActive(ctx context.Context) (SettleReport, error) {
	active, err := s.subs.List(ctx, subscription.ListOpts{Status: subscription.StatusActive})
	if err != nil {
		return SettleReport{}, fmt.Errorf("tally: list active subscriptions: %w", err)
	}

	var (
		mu     sync.Mutex
		report SettleReport
		errs   []error
	)

	g := new(errgroup.Group)
	g.SetLimit(max(s.concurrency, 1))

	for _, sub := range active {
		g.Go(func() error {
			ops, err := s.Settle(ctx, sub.ID)

			mu.Lock()
			defer mu.Unlock()
			report.Processed++
			report.Operations += len(ops)
			if err != nil {
				report.Failed = append(report.Failed, SettleFailure{SubscriptionID: sub.ID, Err: err})
				errs = append(errs, err)
			}
			return nil
		})
	}
	_ = g.Wait()

	s.logger.Info("settlement pass complete",
		"processed", report.Processed,
		"operations", report.Operations,
		"failed", len(report.Failed),
	)
	return report, errors.Join(errs...)
}
