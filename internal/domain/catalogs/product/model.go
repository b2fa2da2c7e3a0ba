// Package product provides the Product business entity, the reference
// consumer of the generic repository.
package product

import (
	"context"
	"time"

	"registra/internal/core/apperror"
	"registra/internal/core/entity"
	"registra/internal/core/types"
)

// Product is a sellable item. The (code, description, division) triple
// is unique among active products.
type Product struct {
	entity.Business

	// Price per unit
	Price types.Money `db:"price" json:"price"`

	// Unit is the unit of measure label
	Unit string `db:"unit" json:"unit"`
}

// New creates a Product with required fields.
func New(code, description string, price types.Money) *Product {
	return &Product{
		Business: entity.NewBusiness(code, description, time.Now()),
		Price:    price,
	}
}

// Validate implements entity.Validatable.
func (p *Product) Validate(ctx context.Context) error {
	if p.Price.IsNegative() {
		return apperror.NewValidation("price must not be negative").
			WithDetail("field", "price")
	}
	return p.Business.Validate(ctx)
}
