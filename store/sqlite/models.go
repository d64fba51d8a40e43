package sqlite

import (
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/tally/id"
	"github.com/xraph/tally/operation"
	"github.com/xraph/tally/plan"
	"github.com/xraph/tally/subscription"
	"github.com/xraph/tally/types"
)

// ==================== Operation models ====================

type operationModel struct {
	grove.BaseModel `grove:"table:tally_operations"`

	ID          string     `grove:"id,pk"`
	Kind        string     `grove:"kind"`
	Reference   string     `grove:"reference"`
	Amount      int64      `grove:"amount"`
	Currency    string     `grove:"currency"`
	IssuedAt    time.Time  `grove:"issued_at"`
	UserID      string     `grove:"user_id"`
	IssuerID    string     `grove:"issuer_id"`
	Description string     `grove:"description"`
	Proof       string     `grove:"proof"`
	Status      string     `grove:"status"`
	ReviewedAt  *time.Time `grove:"reviewed_at"`
	ReviewedBy  string     `grove:"reviewed_by"`
	CreatedAt   time.Time  `grove:"created_at"`
	UpdatedAt   time.Time  `grove:"updated_at"`
}

func toOperationModel(op *operation.Operation) *operationModel {
	m := &operationModel{
		ID:          op.ID.String(),
		Kind:        string(op.Kind),
		Reference:   op.Reference,
		Amount:      op.Amount.Amount,
		Currency:    op.Amount.Currency,
		IssuedAt:    op.IssuedAt.UTC(),
		UserID:      op.UserID,
		IssuerID:    op.IssuerID,
		Description: op.Description,
		CreatedAt:   op.CreatedAt.UTC(),
		UpdatedAt:   op.UpdatedAt.UTC(),
	}
	if op.Credit != nil {
		m.Proof = op.Credit.Proof
		m.Status = string(op.Credit.Status)
		m.ReviewedAt = utcPtr(op.Credit.ReviewedAt)
		m.ReviewedBy = op.Credit.ReviewedBy
	}
	return m
}

func fromOperationModel(m *operationModel) (*operation.Operation, error) {
	opID, err := id.ParseOperationID(m.ID)
	if err != nil {
		return nil, err
	}

	op := &operation.Operation{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt.UTC(),
			UpdatedAt: m.UpdatedAt.UTC(),
		},
		ID:          opID,
		Kind:        operation.Kind(m.Kind),
		Reference:   m.Reference,
		Amount:      types.Money{Amount: m.Amount, Currency: m.Currency},
		IssuedAt:    m.IssuedAt.UTC(),
		UserID:      m.UserID,
		IssuerID:    m.IssuerID,
		Description: m.Description,
	}
	if op.Kind == operation.KindCredit {
		op.Credit = &operation.CreditDetails{
			Proof:      m.Proof,
			Status:     operation.Status(m.Status),
			ReviewedAt: utcPtr(m.ReviewedAt),
			ReviewedBy: m.ReviewedBy,
		}
	}
	return op, nil
}

// ==================== Plan models ====================

type planModel struct {
	grove.BaseModel `grove:"table:tally_plans"`

	ID          string    `grove:"id,pk"`
	Name        string    `grove:"name"`
	Description string    `grove:"description"`
	Price       int64     `grove:"price"`
	Currency    string    `grove:"currency"`
	Active      bool      `grove:"active"`
	CreatedAt   time.Time `grove:"created_at"`
	UpdatedAt   time.Time `grove:"updated_at"`
}

func toPlanModel(p *plan.Plan) *planModel {
	return &planModel{
		ID:          p.ID.String(),
		Name:        p.Name,
		Description: p.Description,
		Price:       p.Price.Amount,
		Currency:    p.Price.Currency,
		Active:      p.Active,
		CreatedAt:   p.CreatedAt.UTC(),
		UpdatedAt:   p.UpdatedAt.UTC(),
	}
}

func fromPlanModel(m *planModel) (*plan.Plan, error) {
	planID, err := id.ParsePlanID(m.ID)
	if err != nil {
		return nil, err
	}

	return &plan.Plan{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt.UTC(),
			UpdatedAt: m.UpdatedAt.UTC(),
		},
		ID:          planID,
		Name:        m.Name,
		Description: m.Description,
		Price:       types.Money{Amount: m.Price, Currency: m.Currency},
		Active:      m.Active,
	}, nil
}

// ==================== Subscription models ====================

type subscriptionModel struct {
	grove.BaseModel `grove:"table:tally_subscriptions"`

	ID        string     `grove:"id,pk"`
	UserID    string     `grove:"user_id"`
	PlanID    string     `grove:"plan_id"`
	StartedAt time.Time  `grove:"started_at"`
	EndsAt    *time.Time `grove:"ends_at"`
	Status    string     `grove:"status"`
	EndedAt   *time.Time `grove:"ended_at"`
	CreatedAt time.Time  `grove:"created_at"`
	UpdatedAt time.Time  `grove:"updated_at"`
}

func toSubscriptionModel(s *subscription.Subscription) *subscriptionModel {
	return &subscriptionModel{
		ID:        s.ID.String(),
		UserID:    s.UserID,
		PlanID:    s.PlanID.String(),
		StartedAt: s.StartedAt.UTC(),
		EndsAt:    utcPtr(s.EndsAt),
		Status:    string(s.Status),
		EndedAt:   utcPtr(s.EndedAt),
		CreatedAt: s.CreatedAt.UTC(),
		UpdatedAt: s.UpdatedAt.UTC(),
	}
}

func fromSubscriptionModel(m *subscriptionModel) (*subscription.Subscription, error) {
	subID, err := id.ParseSubscriptionID(m.ID)
	if err != nil {
		return nil, err
	}
	planID, err := id.ParsePlanID(m.PlanID)
	if err != nil {
		return nil, err
	}

	return &subscription.Subscription{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt.UTC(),
			UpdatedAt: m.UpdatedAt.UTC(),
		},
		ID:        subID,
		UserID:    m.UserID,
		PlanID:    planID,
		StartedAt: m.StartedAt.UTC(),
		EndsAt:    utcPtr(m.EndsAt),
		Status:    subscription.Status(m.Status),
		EndedAt:   utcPtr(m.EndedAt),
	}, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
