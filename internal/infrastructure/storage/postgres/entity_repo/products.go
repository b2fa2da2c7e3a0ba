package entity_repo

import (
	"registra/internal/domain"
	"registra/internal/domain/catalogs/product"
	"registra/internal/domain/division"
	"registra/internal/infrastructure/storage/postgres"
)

// Compile-time check that the generic repository satisfies the domain
// contract for a concrete entity type.
var _ domain.Repository[*product.Product] = (*Repo[*product.Product])(nil)

// NewProductRepo creates a repository for the products catalog.
func NewProductRepo(txManager *postgres.TxManager, resolver *division.Resolver, cursorKey []byte) (*Repo[*product.Product], error) {
	return NewRepo(RepoConfig[*product.Product]{
		TxManager:  txManager,
		Resolver:   resolver,
		EntityName: "product",
		TableName:  "cat_products",
		NewFn:      func() *product.Product { return &product.Product{} },
		CursorKey:  cursorKey,
	})
}
