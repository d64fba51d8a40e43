// Package proof stores the deposit receipts attached to credits.
package proof

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/xraph/tally/id"
)

// ErrInvalidName is returned for names that are empty or escape the store root.
var ErrInvalidName = errors.New("tally: invalid proof name")

// Store saves proof bytes under a name. Saving an existing name overwrites it.
type Store interface {
	Save(ctx context.Context, name string, data []byte) error
}

// Key derives the storage name of a credit's proof: "{id}-{name}".
func Key(opID id.OperationID, name string) string {
	return opID.String() + "-" + name
}

// CleanName validates a storage name. Only the base name is kept so callers
// cannot write outside the store root.
func CleanName(name string) (string, error) {
	base := path.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "" || base == "." || base == "/" || base == ".." {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return base, nil
}
