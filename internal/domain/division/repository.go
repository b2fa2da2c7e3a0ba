package division

import (
	"context"

	"registra/internal/core/id"
)

// Repository defines division persistence.
//
// The backing table carries a partial unique index over the default flag
// (one row with is_default = true), which is what makes the concurrent
// get-or-create-default path safe.
type Repository interface {
	// GetByID retrieves a division regardless of soft-delete state.
	GetByID(ctx context.Context, divisionID id.ID) (*Division, error)

	// GetByCode retrieves an active division by code.
	GetByCode(ctx context.Context, code string) (*Division, error)

	// GetDefault retrieves the division carrying the default flag.
	// Returns NOT_FOUND if none is marked default yet.
	GetDefault(ctx context.Context) (*Division, error)

	// Create inserts a new division. Inserting a second default
	// violates the is_default unique index and surfaces as CONFLICT.
	Create(ctx context.Context, d *Division) error

	// Update persists changes with optimistic locking on Version.
	Update(ctx context.Context, d *Division) error

	// SetDefault atomically moves the default flag: clears the current
	// holder and sets divisionID in one statement pair under the
	// ambient transaction.
	SetDefault(ctx context.Context, divisionID id.ID) error

	// SoftDelete marks the division deleted. Callers must run the
	// referential check first; see Service.SoftDelete.
	SoftDelete(ctx context.Context, divisionID id.ID, actingUser id.ID, reason string) error

	// CountEntityReferences counts active entities still scoped to the
	// division across all registered entity tables.
	CountEntityReferences(ctx context.Context, divisionID id.ID) (int64, error)

	// Exists checks presence of an active division.
	Exists(ctx context.Context, divisionID id.ID) (bool, error)
}
