package tally

import (
	"context"
	"errors"
	"fmt"

	"github.com/xraph/tally/id"
	"github.com/xraph/tally/operation"
	"github.com/xraph/tally/proof"
	"github.com/xraph/tally/types"
)

// OperationService records credits and debits and folds them into balances.
type OperationService struct {
	serviceEnv
	ops    operation.Store
	proofs proof.Store
}

// Proof is an uploaded receipt.
type Proof struct {
	Name string
	Data []byte
}

// CreditInput describes a user-submitted deposit.
type CreditInput struct {
	Reference   string
	Amount      types.Money
	UserID      string
	IssuerID    string
	Description string
	Proof       Proof
}

// DebitInput describes a charge against a user's balance.
type DebitInput struct {
	Reference   string
	Amount      types.Money
	UserID      string
	IssuerID    string
	Description string
}

// ReviewInput is an admin decision on a pending credit.
type ReviewInput struct {
	Status     operation.Status
	ReviewerID string
}

// Summary is a user's balance. Pending holds credits awaiting review.
type Summary struct {
	Balance types.Money `json:"balance"`
	Pending types.Money `json:"pending"`
}

// Credit records a pending credit and stores its proof under
// proof.Key(id, name). If the proof cannot be stored the credit is removed.
func (s *OperationService) Credit(ctx context.Context, in CreditInput) (*operation.Operation, error) {
	if err := types.RequirePositive("amount", in.Amount, s.currency); err != nil {
		return nil, err
	}
	proofName, err := proof.CleanName(in.Proof.Name)
	if err != nil {
		return nil, types.Invalid("proof", "invalid file name %q", in.Proof.Name)
	}

	op, err := operation.NewCredit(operation.Input{
		Reference:   in.Reference,
		Amount:      in.Amount,
		UserID:      in.UserID,
		IssuerID:    in.IssuerID,
		Description: in.Description,
	}, proofName, s.now())
	if err != nil {
		return nil, err
	}
	op.Credit.Proof = proof.Key(op.ID, proofName)

	if err := s.ops.Create(ctx, op); err != nil {
		return nil, fmt.Errorf("tally: create credit %s: %w", in.Reference, err)
	}

	if err := s.proofs.Save(ctx, op.Credit.Proof, in.Proof.Data); err != nil {
		saveErr := fmt.Errorf("tally: save proof for credit %s: %w", op.ID, err)
		if delErr := s.ops.Delete(ctx, op.ID); delErr != nil {
			s.logger.Error("credit left without proof",
				"operation_id", op.ID.String(),
				"user_id", op.UserID,
				"proof_error", err,
				"error", delErr,
			)
			return nil, errors.Join(saveErr, fmt.Errorf("tally: remove credit %s: %w", op.ID, delErr))
		}
		return nil, saveErr
	}

	s.logger.Info("credit created",
		"operation_id", op.ID.String(),
		"user_id", op.UserID,
		"reference", op.Reference,
		"amount", op.Amount.String(),
	)
	s.plugins.EmitCreditCreated(ctx, op)
	return op, nil
}

// Debit records a debit.
func (s *OperationService) Debit(ctx context.Context, in DebitInput) (*operation.Operation, error) {
	if err := types.RequirePositive("amount", in.Amount, s.currency); err != nil {
		return nil, err
	}

	op, err := operation.NewDebit(operation.Input(in), s.now())
	if err != nil {
		return nil, err
	}

	if err := s.ops.Create(ctx, op); err != nil {
		return nil, fmt.Errorf("tally: create debit %s: %w", in.Reference, err)
	}

	s.logger.Debug("debit created",
		"operation_id", op.ID.String(),
		"user_id", op.UserID,
		"reference", op.Reference,
		"amount", op.Amount.String(),
	)
	s.plugins.EmitDebitCreated(ctx, op)
	return op, nil
}

// Review approves or rejects a pending credit. A credit can only be reviewed
// once; debits are reported as not found.
func (s *OperationService) Review(ctx context.Context, opID id.OperationID, in ReviewInput) (*operation.Operation, error) {
	op, err := s.ops.Get(ctx, opID)
	if err != nil {
		return nil, fmt.Errorf("tally: review %s: %w", opID, err)
	}
	if !op.IsCredit() {
		return nil, fmt.Errorf("tally: review %s: %w", opID, ErrOperationNotFound)
	}

	if err := op.Review(in.Status, in.ReviewerID, s.now()); err != nil {
		return nil, fmt.Errorf("tally: review %s: %w", opID, err)
	}
	if err := s.ops.Update(ctx, op); err != nil {
		return nil, fmt.Errorf("tally: review %s: %w", opID, err)
	}

	s.logger.Info("credit reviewed",
		"operation_id", op.ID.String(),
		"user_id", op.UserID,
		"status", string(op.Credit.Status),
		"reviewed_by", op.Credit.ReviewedBy,
	)
	s.plugins.EmitCreditReviewed(ctx, op)
	return op, nil
}

// Get returns one operation.
func (s *OperationService) Get(ctx context.Context, opID id.OperationID) (*operation.Operation, error) {
	return s.ops.Get(ctx, opID)
}

// ListByUser returns the user's operations, newest first.
func (s *OperationService) ListByUser(ctx context.Context, userID string) ([]*operation.Operation, error) {
	return s.ops.ListByUser(ctx, userID)
}

// Summary folds the user's operations into a balance. Operations in a
// currency other than the ledger's are left out and reported through
// ErrCurrencyMismatch alongside the partial summary.
func (s *OperationService) Summary(ctx context.Context, userID string) (Summary, error) {
	ops, err := s.ops.ListByUser(ctx, userID)
	if err != nil {
		return Summary{}, fmt.Errorf("tally: summary for %s: %w", userID, err)
	}
	sum, err := Summarize(s.currency, ops)
	if err != nil {
		s.logger.Warn("summary skipped operations", "user_id", userID, "error", err)
		return sum, fmt.Errorf("tally: summary for %s: %w", userID, err)
	}
	return sum, nil
}

// Summarize computes balance and pending amounts. Approved credits add to
// the balance, pending credits to pending, debits subtract, rejected
// credits are ignored. Operations not in currency are skipped and counted
// in the returned ErrCurrencyMismatch.
func Summarize(currency string, ops []*operation.Operation) (Summary, error) {
	sum := Summary{Balance: types.Zero(currency), Pending: types.Zero(currency)}
	foreign := 0
	for _, op := range ops {
		if op.Amount.Currency != currency {
			foreign++
			continue
		}
		switch op.Kind {
		case operation.KindDebit:
			sum.Balance = sum.Balance.Subtract(op.Amount)
		case operation.KindCredit:
			if op.Credit == nil {
				continue
			}
			switch op.Credit.Status {
			case operation.StatusApproved:
				sum.Balance = sum.Balance.Add(op.Amount)
			case operation.StatusPending:
				sum.Pending = sum.Pending.Add(op.Amount)
			}
		}
	}
	if foreign > 0 {
		return sum, fmt.Errorf("%w: %d operations not in %q", ErrCurrencyMismatch, foreign, currency)
	}
	return sum, nil
}
