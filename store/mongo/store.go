// Package mongo implements store.Store on MongoDB through the grove ORM.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	"github.com/xraph/tally"
	"github.com/xraph/tally/id"
	"github.com/xraph/tally/operation"
	"github.com/xraph/tally/plan"
	tallystore "github.com/xraph/tally/store"
	"github.com/xraph/tally/subscription"
)

// Collection name constants.
const (
	colOperations    = "tally_operations"
	colPlans         = "tally_plans"
	colSubscriptions = "tally_subscriptions"
)

// compile-time interface check
var _ tallystore.Store = (*Store)(nil)

// Store implements store.Store using MongoDB via Grove ORM.
type Store struct {
	db  *grove.DB
	mdb *mongodriver.MongoDB
}

// New creates a new MongoDB store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		mdb: mongodriver.Unwrap(db),
	}
}

// Open connects to uri and uses database. An empty database falls back to
// the one named in the URI.
func Open(ctx context.Context, uri, database string) (*Store, error) {
	drv := mongodriver.New()
	var opts []mongodriver.MongoOption
	if database != "" {
		opts = append(opts, mongodriver.WithDatabase(database))
	}
	if err := drv.Open(ctx, uri, opts...); err != nil {
		return nil, fmt.Errorf("tally/mongo: open: %w", err)
	}
	db, err := grove.Open(drv)
	if err != nil {
		_ = drv.Close()
		return nil, fmt.Errorf("tally/mongo: open: %w", err)
	}
	return New(db), nil
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates indexes for all tally collections.
func (s *Store) Migrate(ctx context.Context) error {
	for col, models := range migrationIndexes() {
		if _, err := s.mdb.Collection(col).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("tally/mongo: migrate %s indexes: %w", col, err)
		}
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
	_, err := s.mdb.NewInsert(toOperationModel(op)).Exec(ctx)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			if isIDConflict(err) {
				return tally.ErrAlreadyExists
			}
			return fmt.Errorf("%w: %s for user %s", tally.ErrDuplicateReference, op.Reference, op.UserID)
		}
		return fmt.Errorf("tally/mongo: create operation: %w", err)
	}
	return nil
}

func (s *Store) GetOperation(ctx context.Context, opID id.OperationID) (*operation.Operation, error) {
	var m operationModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": opID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, tally.ErrOperationNotFound
		}
		return nil, fmt.Errorf("tally/mongo: get operation: %w", err)
	}
	return fromOperationModel(&m)
}

func (s *Store) ListOperationsByUser(ctx context.Context, userID string) ([]*operation.Operation, error) {
	var models []operationModel
	err := s.mdb.NewFind(&models).
		Filter(bson.M{"user_id": userID}).
		Sort(bson.D{{Key: "issued_at", Value: -1}, {Key: "_id", Value: -1}}).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("tally/mongo: list operations: %w", err)
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
	m := toOperationModel(op)
	res, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.ID}).
		Exec(ctx)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: %s for user %s", tally.ErrDuplicateReference, op.Reference, op.UserID)
		}
		return fmt.Errorf("tally/mongo: update operation: %w", err)
	}
	if res.MatchedCount() == 0 {
		return tally.ErrOperationNotFound
	}
	return nil
}

func (s *Store) DeleteOperation(ctx context.Context, opID id.OperationID) error {
	res, err := s.mdb.NewDelete((*operationModel)(nil)).
		Filter(bson.M{"_id": opID.String()}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("tally/mongo: delete operation: %w", err)
	}
	if res.DeletedCount() == 0 {
		return tally.ErrOperationNotFound
	}
	return nil
}

// ==================== Plan Store ====================

func (s *Store) CreatePlan(ctx context.Context, p *plan.Plan) error {
	_, err := s.mdb.NewInsert(toPlanModel(p)).Exec(ctx)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return tally.ErrAlreadyExists
		}
		return fmt.Errorf("tally/mongo: create plan: %w", err)
	}
	return nil
}

func (s *Store) GetPlan(ctx context.Context, planID id.PlanID) (*plan.Plan, error) {
	var m planModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": planID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, tally.ErrPlanNotFound
		}
		return nil, fmt.Errorf("tally/mongo: get plan: %w", err)
	}
	return fromPlanModel(&m)
}

func (s *Store) ListPlans(ctx context.Context, opts plan.ListOpts) ([]*plan.Plan, error) {
	var models []planModel

	filter := bson.M{}
	if opts.ActiveOnly {
		filter["active"] = true
	}

	err := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("tally/mongo: list plans: %w", err)
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
	m := toPlanModel(p)
	res, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.ID}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("tally/mongo: update plan: %w", err)
	}
	if res.MatchedCount() == 0 {
		return tally.ErrPlanNotFound
	}
	return nil
}

func (s *Store) DeletePlan(ctx context.Context, planID id.PlanID) error {
	res, err := s.mdb.NewDelete((*planModel)(nil)).
		Filter(bson.M{"_id": planID.String()}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("tally/mongo: delete plan: %w", err)
	}
	if res.DeletedCount() == 0 {
		return tally.ErrPlanNotFound
	}
	return nil
}

// ==================== Subscription Store ====================

func (s *Store) CreateSubscription(ctx context.Context, sub *subscription.Subscription) error {
	_, err := s.mdb.NewInsert(toSubscriptionModel(sub)).Exec(ctx)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return tally.ErrAlreadyExists
		}
		return fmt.Errorf("tally/mongo: create subscription: %w", err)
	}
	return nil
}

func (s *Store) GetSubscription(ctx context.Context, subID id.SubscriptionID) (*subscription.Subscription, error) {
	var m subscriptionModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": subID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, tally.ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("tally/mongo: get subscription: %w", err)
	}
	return fromSubscriptionModel(&m)
}

func (s *Store) ListSubscriptions(ctx context.Context, opts subscription.ListOpts) ([]*subscription.Subscription, error) {
	var models []subscriptionModel

	filter := bson.M{}
	if opts.UserID != "" {
		filter["user_id"] = opts.UserID
	}
	if !opts.PlanID.IsNil() {
		filter["plan_id"] = opts.PlanID.String()
	}
	if opts.Status != "" {
		filter["status"] = string(opts.Status)
	}

	err := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "user_id", Value: 1}, {Key: "started_at", Value: -1}}).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("tally/mongo: list subscriptions: %w", err)
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
	m := toSubscriptionModel(sub)
	res, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.ID}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("tally/mongo: update subscription: %w", err)
	}
	if res.MatchedCount() == 0 {
		return tally.ErrSubscriptionNotFound
	}
	return nil
}

// ==================== Helpers ====================

// isNoDocuments checks if the error is a "no documents" error.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// isIDConflict reports a duplicate key on _id rather than a secondary index.
func isIDConflict(err error) bool {
	var we mongo.WriteException
	if !errors.As(err, &we) {
		return false
	}
	for _, e := range we.WriteErrors {
		if e.Code == 11000 && strings.Contains(e.Message, "_id_") {
			return true
		}
	}
	return false
}

// migrationIndexes returns the index definitions for all tally collections.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colOperations: {
			{
				Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "reference", Value: 1}},
				Options: options.Index().SetUnique(true).SetName("idx_tally_operations_user_reference"),
			},
			{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "issued_at", Value: -1}}},
		},
		colPlans: {
			{Keys: bson.D{{Key: "active", Value: 1}, {Key: "created_at", Value: 1}}},
		},
		colSubscriptions: {
			{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "status", Value: 1}}},
			{Keys: bson.D{{Key: "plan_id", Value: 1}}},
		},
	}
}
