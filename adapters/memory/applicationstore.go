// Package memory provides in-memory implementations of storage ports.
package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/artpar/traits/ports"
)

// ApplicationStore is an in-memory implementation of ports.ApplicationStore.
type ApplicationStore struct {
	mu      sync.RWMutex
	records []ports.ApplicationRecord
}

// NewApplicationStore creates a new in-memory application store.
func NewApplicationStore() *ApplicationStore {
	return &ApplicationStore{
		records: make([]ports.ApplicationRecord, 0),
	}
}

// Record stores a new record.
func (s *ApplicationStore) Record(ctx context.Context, rec ports.ApplicationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = append(s.records, rec)
	return nil
}

// List returns the most recent records, newest first.
func (s *ApplicationStore) List(ctx context.Context, limit int) ([]ports.ApplicationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ports.ApplicationRecord, 0, len(s.records))
	for i := len(s.records) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, s.records[i])
	}
	return out, nil
}

// ByRole returns records whose applied closure contains role.
func (s *ApplicationStore) ByRole(ctx context.Context, role string) ([]ports.ApplicationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []ports.ApplicationRecord
	for _, rec := range s.records {
		if slices.Contains(rec.Applied, role) {
			out = append(out, rec)
		}
	}
	return out, nil
}

var _ ports.ApplicationStore = (*ApplicationStore)(nil)
