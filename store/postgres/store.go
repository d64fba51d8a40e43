// Package postgres implements store.Store on PostgreSQL through the grove ORM.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/xraph/grove"
	"github.com/xraph/grove/driver"
	"github.com/xraph/grove/drivers/pgdriver"
	_ "github.com/xraph/grove/drivers/pgdriver/pgmigrate"
	"github.com/xraph/grove/migrate"

	"github.com/xraph/tally"
	"github.com/xraph/tally/id"
	"github.com/xraph/tally/operation"
	"github.com/xraph/tally/plan"
	tallystore "github.com/xraph/tally/store"
	"github.com/xraph/tally/subscription"
)

// compile-time interface check
var _ tallystore.Store = (*Store)(nil)

// uniqueReference is the index guarding (user_id, reference).
const uniqueReference = "idx_tally_operations_user_reference"

// Store implements store.Store using PostgreSQL via Grove ORM.
type Store struct {
	db *grove.DB
	pg *pgdriver.PgDB
}

// New creates a new PostgreSQL store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db: db,
		pg: pgdriver.Unwrap(db),
	}
}

// Open connects to the PostgreSQL database at dsn.
func Open(ctx context.Context, dsn string, opts ...driver.Option) (*Store, error) {
	drv := pgdriver.New()
	if err := drv.Open(ctx, dsn, opts...); err != nil {
		return nil, fmt.Errorf("tally/postgres: open: %w", err)
	}
	db, err := grove.Open(drv)
	if err != nil {
		_ = drv.Close()
		return nil, fmt.Errorf("tally/postgres: open: %w", err)
	}
	return New(db), nil
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.pg)
	if err != nil {
		return fmt.Errorf("tally/postgres: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("tally/postgres: migration failed: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== Operation Store ====================

func (s *Store) CreateOperation(ctx context.Context, op *operation.Operation) error {
	_, err := s.pg.NewInsert(toOperationModel(op)).Exec(ctx)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s for user %s", tally.ErrDuplicateReference, op.Reference, op.UserID)
		}
		if isPrimaryKeyViolation(err) {
			return tally.ErrAlreadyExists
		}
		return fmt.Errorf("tally/postgres: create operation: %w", err)
	}
	return nil
}

func (s *Store) GetOperation(ctx context.Context, opID id.OperationID) (*operation.Operation, error) {
	m := new(operationModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", opID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, tally.ErrOperationNotFound
		}
		return nil, fmt.Errorf("tally/postgres: get operation: %w", err)
	}
	return fromOperationModel(m)
}

func (s *Store) ListOperationsByUser(ctx context.Context, userID string) ([]*operation.Operation, error) {
	var models []operationModel
	err := s.pg.NewSelect(&models).
		Where("user_id = $1", userID).
		OrderExpr("issued_at DESC, id DESC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("tally/postgres: list operations: %w", err)
	}

	result := make([]*operation.Operation, len(models))
	for i := range models {
		op, err := fromOperationModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = op
	}
	return result, nil
}

func (s *Store) UpdateOperation(ctx context.Context, op *operation.Operation) error {
	res, err := s.pg.NewUpdate(toOperationModel(op)).WherePK().Exec(ctx)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s for user %s", tally.ErrDuplicateReference, op.Reference, op.UserID)
		}
		return fmt.Errorf("tally/postgres: update operation: %w", err)
	}
	return affected(res, tally.ErrOperationNotFound)
}

func (s *Store) DeleteOperation(ctx context.Context, opID id.OperationID) error {
	res, err := s.pg.NewDelete((*operationModel)(nil)).
		Where("id = $1", opID.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("tally/postgres: delete operation: %w", err)
	}
	return affected(res, tally.ErrOperationNotFound)
}

// ==================== Plan Store ====================

func (s *Store) CreatePlan(ctx context.Context, p *plan.Plan) error {
	_, err := s.pg.NewInsert(toPlanModel(p)).Exec(ctx)
	if err != nil {
		if isPrimaryKeyViolation(err) {
			return tally.ErrAlreadyExists
		}
		return fmt.Errorf("tally/postgres: create plan: %w", err)
	}
	return nil
}

func (s *Store) GetPlan(ctx context.Context, planID id.PlanID) (*plan.Plan, error) {
	m := new(planModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", planID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, tally.ErrPlanNotFound
		}
		return nil, fmt.Errorf("tally/postgres: get plan: %w", err)
	}
	return fromPlanModel(m)
}

func (s *Store) ListPlans(ctx context.Context, opts plan.ListOpts) ([]*plan.Plan, error) {
	var models []planModel
	q := s.pg.NewSelect(&models)
	if opts.ActiveOnly {
		q = q.Where("active = $1", true)
	}
	q = q.OrderExpr("created_at ASC, id ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("tally/postgres: list plans: %w", err)
	}

	result := make([]*plan.Plan, len(models))
	for i := range models {
		p, err := fromPlanModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = p
	}
	return result, nil
}

func (s *Store) UpdatePlan(ctx context.Context, p *plan.Plan) error {
	res, err := s.pg.NewUpdate(toPlanModel(p)).WherePK().Exec(ctx)
	if err != nil {
		return fmt.Errorf("tally/postgres: update plan: %w", err)
	}
	return affected(res, tally.ErrPlanNotFound)
}

func (s *Store) DeletePlan(ctx context.Context, planID id.PlanID) error {
	res, err := s.pg.NewDelete((*planModel)(nil)).
		Where("id = $1", planID.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("tally/postgres: delete plan: %w", err)
	}
	return affected(res, tally.ErrPlanNotFound)
}

// ==================== Subscription Store ====================

func (s *Store) CreateSubscription(ctx context.Context, sub *subscription.Subscription) error {
	_, err := s.pg.NewInsert(toSubscriptionModel(sub)).Exec(ctx)
	if err != nil {
		if isPrimaryKeyViolation(err) {
			return tally.ErrAlreadyExists
		}
		return fmt.Errorf("tally/postgres: create subscription: %w", err)
	}
	return nil
}

func (s *Store) GetSubscription(ctx context.Context, subID id.SubscriptionID) (*subscription.Subscription, error) {
	m := new(subscriptionModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", subID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, tally.ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("tally/postgres: get subscription: %w", err)
	}
	return fromSubscriptionModel(m)
}

func (s *Store) ListSubscriptions(ctx context.Context, opts subscription.ListOpts) ([]*subscription.Subscription, error) {
	var models []subscriptionModel
	q := s.pg.NewSelect(&models)

	argIdx := 1
	if opts.UserID != "" {
		q = q.Where(fmt.Sprintf("user_id = $%d", argIdx), opts.UserID)
		argIdx++
	}
	if !opts.PlanID.IsNil() {
		q = q.Where(fmt.Sprintf("plan_id = $%d", argIdx), opts.PlanID.String())
		argIdx++
	}
	if opts.Status != "" {
		q = q.Where(fmt.Sprintf("status = $%d", argIdx), string(opts.Status))
	}
	q = q.OrderExpr("user_id ASC, started_at DESC")

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("tally/postgres: list subscriptions: %w", err)
	}

	result := make([]*subscription.Subscription, len(models))
	for i := range models {
		sub, err := fromSubscriptionModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = sub
	}
	return result, nil
}

func (s *Store) UpdateSubscription(ctx context.Context, sub *subscription.Subscription) error {
	res, err := s.pg.NewUpdate(toSubscriptionModel(sub)).WherePK().Exec(ctx)
	if err != nil {
		return fmt.Errorf("tally/postgres: update subscription: %w", err)
	}
	return affected(res, tally.ErrSubscriptionNotFound)
}

// ==================== Helpers ====================

type rowsAffecter interface {
	RowsAffected() (int64, error)
}

// affected returns notFound when res touched no row.
func affected(res rowsAffecter, notFound error) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return notFound
	}
	return nil
}

// isNoRows checks for both pgx.ErrNoRows and the standard sql.ErrNoRows.
func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows)
}

// isUniqueViolation reports a duplicate (user_id, reference).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == uniqueReference
}

func isPrimaryKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName != uniqueReference
}
