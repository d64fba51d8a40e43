package operation

import (
	"context"

	"github.com/xraph/tally/id"
)

// Store persists operations. Create must reject a second operation with the
// same (UserID, Reference) with an error wrapping ErrDuplicateReference.
type Store interface {
	Create(ctx context.Context, op *Operation) error
	Get(ctx context.Context, opID id.OperationID) (*Operation, error)
	ListByUser(ctx context.Context, userID string) ([]*Operation, error)
	Update(ctx context.Context, op *Operation) error
	Delete(ctx context.Context, opID id.OperationID) error
}
