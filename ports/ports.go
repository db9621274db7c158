// Package ports defines interfaces (contracts) between layers.
// These interfaces enable dependency injection and testability.
// Implementations live in adapters/.
package ports

import (
	"context"
	"time"
)

// -----------------------------------------------------------------------------
// Infrastructure Ports
// -----------------------------------------------------------------------------

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// IDGenerator generates unique identifiers.
type IDGenerator interface {
	New() string
}

// -----------------------------------------------------------------------------
// Data Store Ports
// -----------------------------------------------------------------------------

// ApplicationRecord is the audit entry for one successful role application.
type ApplicationRecord struct {
	ID       string
	Base     string   // consumer class name
	Result   string   // derived class name
	Roles    []string // roles given, in argument order
	Applied  []string // applied closure
	Modified []string // advised method names
	At       time.Time
}

// ApplicationStore persists role application audit records.
type ApplicationStore interface {
	// Record stores a new record.
	Record(ctx context.Context, rec ApplicationRecord) error

	// List returns the most recent records, newest first. limit <= 0 means all.
	List(ctx context.Context, limit int) ([]ApplicationRecord, error)

	// ByRole returns records whose applied closure contains role, oldest first.
	ByRole(ctx context.Context, role string) ([]ApplicationRecord, error)
}
