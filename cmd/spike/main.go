// Command spike wires the full storage stack against a live database
// and exercises the entity lifecycle end to end. Intended for manual
// verification, not production use.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"

	appctx "registra/internal/core/context"
	"registra/internal/core/id"
	"registra/internal/core/types"
	"registra/internal/domain"
	"registra/internal/domain/catalogs/product"
	"registra/internal/domain/division"
	"registra/internal/domain/scope"
	"registra/internal/infrastructure/config"
	"registra/internal/infrastructure/metrics"
	"registra/internal/infrastructure/storage/postgres"
	"registra/internal/infrastructure/storage/postgres/division_repo"
	"registra/internal/infrastructure/storage/postgres/entity_repo"
	"registra/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "spike failed: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.Log.Level,
		Development: cfg.Log.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	ctx := logger.WithLogger(context.Background(), log)
	ctx = appctx.WithUser(ctx, &appctx.UserContext{
		UserID:    id.New(),
		IsAdmin:   true,
		SessionID: "spike",
	})

	pool, err := postgres.NewPool(ctx, cfg.PoolConfig())
	if err != nil {
		return err
	}
	defer pool.Close()

	txMetrics := metrics.NewTxMetrics(prometheus.DefaultRegisterer)
	txManager := postgres.NewTxManager(pool, txMetrics)

	audit, err := postgres.NewAuditTrail(txManager, log)
	if err != nil {
		return err
	}

	divRepo := division_repo.NewRepo(txManager, []string{"cat_products"})
	resolver := division.NewResolver(division.ResolverConfig{
		Repo:      divRepo,
		TxManager: txManager,
	})
	divService := division.NewService(divRepo, txManager)

	productRepo, err := entity_repo.NewProductRepo(txManager, resolver, []byte(cfg.CursorKey))
	if err != nil {
		return err
	}

	products := domain.NewEntityService(domain.EntityServiceConfig[*product.Product]{
		Repo:       productRepo,
		TxManager:  txManager,
		Audit:      audit,
		EntityName: "product",
	})

	// Default division materializes lazily on first use.
	def, err := resolver.GetOrCreateDefault(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("default division: %s (%s)\n", def.Code, def.ID)

	// Create, mutate, delete, restore one product.
	p := product.New("WIDGET-001", "Standard widget", types.MustMoney("9.90"))
	p.Unit = "pcs"
	if err := products.Create(ctx, p); err != nil {
		return err
	}
	fmt.Printf("created product %s v%d in division %s\n", p.ID, p.Version, p.DivisionID)

	p.Price = types.MustMoney("10.50")
	if err := products.Update(ctx, p); err != nil {
		return err
	}
	fmt.Printf("updated product %s to v%d\n", p.ID, p.Version)

	actingUser := appctx.GetUserID(ctx)
	if err := products.SoftDelete(ctx, p.ID, actingUser, "spike cleanup"); err != nil {
		return err
	}
	if _, err := products.Get(ctx, p.ID, scope.ActiveOnly); err != nil {
		fmt.Printf("deleted product invisible to active scope: %v\n", err)
	}
	if err := products.Restore(ctx, p.ID, actingUser, ""); err != nil {
		return err
	}

	// Page through the catalog with a cursor.
	q := domain.DefaultQuery()
	q.Page = domain.PageRequest{Mode: domain.PageCursor, Limit: 10}
	for {
		page, err := products.List(ctx, q)
		if err != nil {
			return err
		}
		for _, item := range page.Items {
			fmt.Printf("  %s %s %s\n", item.ID, item.Code, item.Price)
		}
		if !page.HasNext {
			break
		}
		q.Page.Cursor = page.NextCursor
	}

	// Division tree maintenance.
	branch := division.New("BRANCH-01", "First branch")
	branch.ParentID = &def.ID
	if err := divService.Create(ctx, branch); err != nil {
		return err
	}
	if err := divService.Reparent(ctx, branch.ID, nil); err != nil {
		return err
	}
	fmt.Printf("division %s reparented to root\n", branch.Code)

	history, err := audit.EntityHistory(ctx, "product", p.ID, 10)
	if err != nil {
		return err
	}
	fmt.Printf("audit trail entries for product: %d\n", len(history))

	postgres.LogPoolStats(ctx, pool.Unwrap())
	return nil
}
