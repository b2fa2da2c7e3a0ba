package entity

import (
	"context"
	"time"

	"registra/internal/core/apperror"
	"registra/internal/core/id"
)

// Key is the business uniqueness triple. Uniqueness is enforced among
// active rows only, so a code can be reused after soft deletion.
type Key struct {
	Code        string
	Description string
	DivisionID  id.ID
}

// Unique is implemented by entities carrying a business uniqueness key.
// The repository checks the key before insert and before any update that
// changes code, description or division.
type Unique interface {
	UniquenessKey() Key
}

// Business is the base type for business entities: Base plus a business
// code and a display description, unique per division among active rows.
type Business struct {
	Base

	// Code is the business identifier (unique with description within division)
	Code string `db:"code" json:"code"`

	// Description is the display text
	Description string `db:"description" json:"description"`
}

// NewBusiness creates a new Business entity with generated ID.
// DivisionID may be left nil; the division resolver assigns the default
// at create time.
func NewBusiness(code, description string, now time.Time) Business {
	return Business{
		Base:        NewBase(now),
		Code:        code,
		Description: description,
	}
}

// UniquenessKey implements Unique.
func (b *Business) UniquenessKey() Key {
	return Key{
		Code:        b.Code,
		Description: b.Description,
		DivisionID:  b.DivisionID,
	}
}

// Validate implements Validatable.
func (b *Business) Validate(ctx context.Context) error {
	if b.Code == "" {
		return apperror.NewValidation("code is required").
			WithDetail("field", "code")
	}
	if b.Description == "" {
		return apperror.NewValidation("description is required").
			WithDetail("field", "description")
	}
	return b.Base.Validate(ctx)
}
