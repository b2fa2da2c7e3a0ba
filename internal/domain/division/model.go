// Package division provides the organizational partition entities are
// scoped to, and the resolver that assigns one to every new entity.
package division

import (
	"context"
	"time"

	"registra/internal/core/apperror"
	"registra/internal/core/id"
)

// Division is a tenant/organizational partition. Divisions form a tree
// via ParentID; exactly one division carries the default flag at any time.
//
// Division deliberately does not embed entity.Base: a division is not
// itself scoped to a division.
type Division struct {
	ID        id.ID      `db:"id" json:"id"`
	Name      string     `db:"name" json:"name"`
	Code      string     `db:"code" json:"code"`
	IsDefault bool       `db:"is_default" json:"isDefault"`
	ParentID  *id.ID     `db:"parent_id" json:"parentId,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time  `db:"updated_at" json:"updatedAt"`
	Active    bool       `db:"active" json:"active"`
	DeletedAt *time.Time `db:"deleted_at" json:"deletedAt,omitempty"`

	// DeletedBy is the acting user of the soft delete (nil while active)
	DeletedBy *id.ID `db:"deleted_by" json:"deletedBy,omitempty"`

	// DeletionReason is an optional free-text explanation
	DeletionReason *string `db:"deletion_reason" json:"deletionReason,omitempty"`

	Version int `db:"version" json:"version"`
}

// New creates a Division with generated ID.
func New(code, name string) *Division {
	now := time.Now().UTC()
	return &Division{
		ID:        id.New(),
		Name:      name,
		Code:      code,
		CreatedAt: now,
		UpdatedAt: now,
		Active:    true,
		Version:   1,
	}
}

// Validate implements entity.Validatable.
func (d *Division) Validate(ctx context.Context) error {
	if d.Name == "" {
		return apperror.NewValidation("name is required").
			WithDetail("field", "name")
	}
	if d.Code == "" {
		return apperror.NewValidation("code is required").
			WithDetail("field", "code")
	}
	if d.ParentID != nil && *d.ParentID == d.ID {
		return apperror.NewValidation("division cannot be its own parent").
			WithDetail("field", "parentId")
	}
	return nil
}

// IsRoot returns true if the division has no parent.
func (d *Division) IsRoot() bool {
	return d.ParentID == nil
}
