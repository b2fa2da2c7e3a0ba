package entity

import (
	"context"
	"time"

	"registra/internal/core/apperror"
	"registra/internal/core/id"
)

// Validatable is implemented by entities that support self-validation.
// Validation checks internal invariants (without database access).
type Validatable interface {
	// Validate checks entity invariants.
	// Returns nil if valid, AppError with details otherwise.
	Validate(ctx context.Context) error
}

// Persistable is the minimal capability set the generic repository needs:
// has id, has version, has division. Concrete entity types satisfy it by
// embedding Base.
type Persistable interface {
	Validatable

	// EntityBase returns the embedded Base for repository bookkeeping.
	EntityBase() *Base
}

///////////////////
// Base Entity   //
///////////////////

// Base contains common fields for all persisted entities: identity,
// temporal audit fields, division scoping, the soft-delete marker pair
// and the optimistic-locking version counter.
//
// Rows are never physically removed; "deletion" is the Active/DeletedAt
// state transition.
type Base struct {
	// ID is the primary key (UUIDv7), immutable once assigned
	ID id.ID `db:"id" json:"id"`

	// CreatedAt is the creation instant normalized to UTC
	CreatedAt time.Time `db:"created_at" json:"createdAt"`

	// CreatedAtOffset is the originating timezone offset in minutes,
	// recorded separately for display purposes
	CreatedAtOffset int `db:"created_at_offset" json:"createdAtOffset"`

	// UpdatedAt is refreshed on every persisted mutation
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`

	// ValidityEnd marks the record as logically deprecated when set.
	// Independent of soft delete.
	ValidityEnd *time.Time `db:"validity_end" json:"validityEnd,omitempty"`

	// DivisionID scopes the entity to an organizational partition.
	// Never nil after creation; immutable afterwards.
	DivisionID id.ID `db:"division_id" json:"divisionId"`

	// Active is false exactly when DeletedAt is set
	Active bool `db:"active" json:"active"`

	// DeletedAt is the soft-delete instant (nil while active)
	DeletedAt *time.Time `db:"deleted_at" json:"deletedAt,omitempty"`

	// DeletedBy is the acting user of the soft delete (nil while active)
	DeletedBy *id.ID `db:"deleted_by" json:"deletedBy,omitempty"`

	// DeletionReason is an optional free-text explanation
	DeletionReason *string `db:"deletion_reason" json:"deletionReason,omitempty"`

	// Version for optimistic locking (incremented on each update)
	Version int `db:"version" json:"version"`
}

// NewBase creates a new Base with generated ID and timestamps taken from now,
// preserving the originating zone offset.
func NewBase(now time.Time) Base {
	_, offset := now.Zone()
	utc := now.UTC()
	return Base{
		ID:              id.New(),
		CreatedAt:       utc,
		CreatedAtOffset: offset / 60,
		UpdatedAt:       utc,
		Active:          true,
		Version:         1,
	}
}

// EntityBase implements Persistable.
func (b *Base) EntityBase() *Base {
	return b
}

// IsActive reports whether the entity is visible under the default scope.
func (b *Base) IsActive() bool {
	return b.Active
}

// IsDeleted is derived solely from the soft-delete marker.
func (b *Base) IsDeleted() bool {
	return b.DeletedAt != nil
}

// MarkDeleted performs the soft-delete transition.
// Fails with ALREADY_DELETED if the entity is already inactive.
func (b *Base) MarkDeleted(actingUser id.ID, reason string) error {
	if b.IsDeleted() {
		return apperror.NewAlreadyDeleted("entity", b.ID.String())
	}
	now := time.Now().UTC()
	b.Active = false
	b.DeletedAt = &now
	b.DeletedBy = &actingUser
	if reason != "" {
		b.DeletionReason = &reason
	}
	return nil
}

// Restore is the inverse transition.
// Fails with NOT_DELETED if the entity is already active.
// The restore reason belongs to the audit trail, not the row: an active
// entity never carries a deletion reason.
func (b *Base) Restore(actingUser id.ID, reason string) error {
	if !b.IsDeleted() {
		return apperror.NewNotDeleted("entity", b.ID.String())
	}
	b.Active = true
	b.DeletedAt = nil
	b.DeletedBy = nil
	b.DeletionReason = nil
	return nil
}

// Touch bumps UpdatedAt and the version counter.
// Called by the repository on every persisted write, never by user code.
func (b *Base) Touch() {
	b.UpdatedAt = time.Now().UTC()
	b.Version++
}

// SetVersion updates the version number (used by repository after sync).
func (b *Base) SetVersion(v int) {
	b.Version = v
}

// Validate checks Base invariants.
func (b *Base) Validate(ctx context.Context) error {
	if b.Active == b.IsDeleted() {
		return apperror.NewValidation("active flag and deleted_at marker disagree").
			WithDetail("field", "active")
	}
	if b.DeletedAt != nil && b.DeletedBy == nil {
		return apperror.NewValidation("deleted_by is required for deleted entities").
			WithDetail("field", "deletedBy")
	}
	if b.ValidityEnd != nil && b.ValidityEnd.Before(b.CreatedAt) {
		return apperror.NewValidation("validity_end must not precede created_at").
			WithDetail("field", "validityEnd")
	}
	if b.Version < 1 {
		return apperror.NewValidation("version must be positive").
			WithDetail("field", "version")
	}
	return nil
}
