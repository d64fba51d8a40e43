// Package memory provides an in-memory proof store.
package memory

import (
	"context"
	"sync"

	"github.com/xraph/tally/proof"
)

var _ proof.Store = (*Store)(nil)

// Store keeps proofs in a map. Safe for concurrent use.
type Store struct {
	mu    sync.RWMutex
	files map[string][]byte
	err   error
}

// New returns an empty store.
func New() *Store {
	return &Store{files: make(map[string][]byte)}
}

// Save copies data under name.
func (s *Store) Save(_ context.Context, name string, data []byte) error {
	name, err := proof.CleanName(name)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.files[name] = append([]byte(nil), data...)
	return nil
}

// Get returns the bytes stored under name.
func (s *Store) Get(name string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.files[name]
	return data, ok
}

// Len returns the number of stored proofs.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.files)
}

// FailWith makes every subsequent Save return err. Pass nil to recover.
func (s *Store) FailWith(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}
