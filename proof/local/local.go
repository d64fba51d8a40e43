// Package local stores proofs on the local filesystem.
package local

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/xraph/tally/proof"
)

// DefaultDir is used when neither a directory nor DATA_DIR is set.
const DefaultDir = "./data/uploads"

var _ proof.Store = (*Store)(nil)

// Store writes each proof to its own file under a root directory.
type Store struct {
	dir string
}

// New returns a store rooted at dir. An empty dir falls back to $DATA_DIR,
// then DefaultDir. The directory is created on first save.
func New(dir string) *Store {
	if dir == "" {
		dir = os.Getenv("DATA_DIR")
	}
	if dir == "" {
		dir = DefaultDir
	}
	return &Store{dir: dir}
}

// Dir returns the root directory.
func (s *Store) Dir() string { return s.dir }

// Save writes data to dir/name.
func (s *Store) Save(ctx context.Context, name string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	name, err := proof.CleanName(name)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("tally/proof/local: create dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(s.dir, name), data, 0o644); err != nil {
		return fmt.Errorf("tally/proof/local: write %s: %w", name, err)
	}
	return nil
}
