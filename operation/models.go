// Package operation defines ledger operations: user-submitted credits that
// require review and system or admin issued debits.
package operation

import (
	"errors"
	"strings"
	"time"

	"github.com/xraph/tally/id"
	"github.com/xraph/tally/types"
)

var (
	// ErrDuplicateReference is returned by stores when (UserID, Reference)
	// already exists.
	ErrDuplicateReference = errors.New("tally: duplicate operation reference")

	// ErrNotCredit is returned when a credit-only action targets a debit.
	ErrNotCredit = errors.New("tally: operation is not a credit")

	// ErrAlreadyReviewed is returned when reviewing a credit that already left pending.
	ErrAlreadyReviewed = errors.New("tally: credit already reviewed")
)

// Kind discriminates the operation variants.
type Kind string

const (
	KindCredit Kind = "credit"
	KindDebit  Kind = "debit"
)

// Status is the review state of a credit.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Operation is a single monetary ledger entry. Credit is non-nil iff
// Kind == KindCredit.
type Operation struct {
	types.Entity
	ID          id.OperationID `json:"id"`
	Kind        Kind           `json:"kind"`
	Reference   string         `json:"reference"`
	Amount      types.Money    `json:"amount"`
	IssuedAt    time.Time      `json:"issued_at"`
	UserID      string         `json:"user_id"`
	IssuerID    string         `json:"issuer_id"`
	Description string         `json:"description,omitempty"`
	Credit      *CreditDetails `json:"credit,omitempty"`
}

// CreditDetails holds the credit-only fields.
type CreditDetails struct {
	Proof      string     `json:"proof"`
	Status     Status     `json:"status"`
	ReviewedAt *time.Time `json:"reviewed_at,omitempty"`
	ReviewedBy string     `json:"reviewed_by,omitempty"`
}

// Input carries the fields shared by both variants.
type Input struct {
	Reference   string
	Amount      types.Money
	UserID      string
	IssuerID    string
	Description string
}

func (in Input) validate() error {
	if err := types.RequirePositive("amount", in.Amount, ""); err != nil {
		return err
	}
	if strings.TrimSpace(in.Reference) == "" {
		return types.Invalid("reference", "must not be empty")
	}
	if in.UserID == "" {
		return types.Invalid("user_id", "must not be empty")
	}
	if in.IssuerID == "" {
		return types.Invalid("issuer_id", "must not be empty")
	}
	return nil
}

func newOperation(kind Kind, in Input, now time.Time) *Operation {
	return &Operation{
		Entity:      types.NewEntity(now),
		ID:          id.NewOperationID(),
		Kind:        kind,
		Reference:   in.Reference,
		Amount:      in.Amount,
		IssuedAt:    now.UTC(),
		UserID:      in.UserID,
		IssuerID:    in.IssuerID,
		Description: in.Description,
	}
}

// NewCredit builds a pending credit backed by the named proof.
func NewCredit(in Input, proof string, now time.Time) (*Operation, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	if proof == "" {
		return nil, types.Invalid("proof", "must not be empty")
	}
	op := newOperation(KindCredit, in, now)
	op.Credit = &CreditDetails{Proof: proof, Status: StatusPending}
	return op, nil
}

// NewDebit builds a debit. Debits count against the balance immediately.
func NewDebit(in Input, now time.Time) (*Operation, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	return newOperation(KindDebit, in, now), nil
}

// IsCredit reports whether the operation is a credit.
func (o *Operation) IsCredit() bool { return o.Kind == KindCredit && o.Credit != nil }

// Review moves a pending credit to approved or rejected. Review is final.
func (o *Operation) Review(status Status, reviewer string, at time.Time) error {
	if !o.IsCredit() {
		return ErrNotCredit
	}
	if status != StatusApproved && status != StatusRejected {
		return types.Invalid("status", "must be %q or %q, got %q", StatusApproved, StatusRejected, status)
	}
	if reviewer == "" {
		return types.Invalid("reviewed_by", "must not be empty")
	}
	if o.Credit.Status != StatusPending {
		return ErrAlreadyReviewed
	}

	at = at.UTC()
	o.Credit.Status = status
	o.Credit.ReviewedBy = reviewer
	o.Credit.ReviewedAt = &at
	o.Touch(at)
	return nil
}
