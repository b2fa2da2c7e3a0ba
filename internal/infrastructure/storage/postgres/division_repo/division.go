// Package division_repo provides the PostgreSQL implementation of
// division persistence, including the atomic default-flag swap and the
// cross-table referential check that guards division deletion.
package division_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"

	"registra/internal/core/apperror"
	"registra/internal/core/id"
	"registra/internal/domain/division"
	"registra/internal/infrastructure/storage/postgres"
)

const tableName = "divisions"

var selectCols = postgres.ExtractDBColumns[division.Division]()

// Repo implements division.Repository on PostgreSQL.
//
// The divisions table carries a partial unique index
// (UNIQUE (is_default) WHERE is_default) so at most one row holds the
// default flag; concurrent default creation surfaces as a unique
// violation, which the resolver absorbs by re-reading.
type Repo struct {
	txManager *postgres.TxManager

	// entityTables lists every table whose rows reference divisions;
	// CountEntityReferences scans them before a division soft delete.
	entityTables []string
}

var _ division.Repository = (*Repo)(nil)

// NewRepo creates a division repository. entityTables enumerate the
// tables checked by CountEntityReferences.
func NewRepo(txManager *postgres.TxManager, entityTables []string) *Repo {
	return &Repo{
		txManager:    txManager,
		entityTables: entityTables,
	}
}

func (r *Repo) builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

func (r *Repo) baseSelect() squirrel.SelectBuilder {
	return r.builder().
		Select(selectCols...).
		From(tableName)
}

// GetByID retrieves a division regardless of soft-delete state.
func (r *Repo) GetByID(ctx context.Context, divisionID id.ID) (*division.Division, error) {
	q := r.baseSelect().
		Where(squirrel.Eq{"id": divisionID}).
		Limit(1)
	return r.getOne(ctx, q, divisionID.String())
}

// GetByCode retrieves an active division by code.
func (r *Repo) GetByCode(ctx context.Context, code string) (*division.Division, error) {
	q := r.baseSelect().
		Where(squirrel.Eq{"code": code}).
		Where(squirrel.Eq{"active": true}).
		Limit(1)
	return r.getOne(ctx, q, code)
}

// GetDefault retrieves the division carrying the default flag.
func (r *Repo) GetDefault(ctx context.Context) (*division.Division, error) {
	q := r.baseSelect().
		Where(squirrel.Eq{"is_default": true}).
		Where(squirrel.Eq{"active": true}).
		Limit(1)
	return r.getOne(ctx, q, "default")
}

func (r *Repo) getOne(ctx context.Context, q squirrel.SelectBuilder, key string) (*division.Division, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var d division.Division
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Get(ctx, querier, &d, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("division", key)
		}
		return nil, fmt.Errorf("get division: %w", err)
	}

	return &d, nil
}

// Create inserts a new division. A second default row violates the
// partial unique index and surfaces as CONFLICT for the resolver to
// absorb.
func (r *Repo) Create(ctx context.Context, d *division.Division) error {
	if id.IsNil(d.ID) {
		d.ID = id.New()
	}
	now := time.Now().UTC()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
		d.UpdatedAt = now
		d.Active = true
	}
	if d.Version == 0 {
		d.Version = 1
	}

	sql, args, err := r.builder().
		Insert(tableName).
		SetMap(postgres.StructToMap(d)).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	querier := r.txManager.GetQuerier(ctx)
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		return postgres.TranslateError(fmt.Errorf("insert division: %w", err), "division", d.ID.String())
	}

	return nil
}

// Update persists changes with optimistic locking on Version.
func (r *Repo) Update(ctx context.Context, d *division.Division) error {
	expected := d.Version
	now := time.Now().UTC()

	sql, args, err := r.builder().
		Update(tableName).
		Set("name", d.Name).
		Set("code", d.Code).
		Set("parent_id", d.ParentID).
		Set("updated_at", now).
		Set("version", squirrel.Expr("version + 1")).
		Where(squirrel.Eq{"id": d.ID}).
		Where(squirrel.Eq{"version": expected}).
		Where(squirrel.Eq{"active": true}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	querier := r.txManager.GetQuerier(ctx)
	result, err := querier.Exec(ctx, sql, args...)
	if err != nil {
		return postgres.TranslateError(fmt.Errorf("update division: %w", err), "division", d.ID.String())
	}

	if result.RowsAffected() == 0 {
		visible, exErr := r.Exists(ctx, d.ID)
		if exErr != nil {
			return exErr
		}
		if !visible {
			return apperror.NewNotFound("division", d.ID.String())
		}
		return apperror.NewStaleVersion("division", d.ID.String(), expected)
	}

	d.Version++
	d.UpdatedAt = now
	return nil
}

// SetDefault atomically moves the default flag. Both statements run on
// the ambient querier; the service wraps them in one transaction so the
// index never observes two defaults.
func (r *Repo) SetDefault(ctx context.Context, divisionID id.ID) error {
	querier := r.txManager.GetQuerier(ctx)

	clearSQL, clearArgs, err := r.builder().
		Update(tableName).
		Set("is_default", false).
		Set("updated_at", time.Now().UTC()).
		Where(squirrel.Eq{"is_default": true}).
		Where(squirrel.NotEq{"id": divisionID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build clear default: %w", err)
	}
	if _, err := querier.Exec(ctx, clearSQL, clearArgs...); err != nil {
		return postgres.TranslateError(fmt.Errorf("clear default: %w", err), "division", divisionID.String())
	}

	setSQL, setArgs, err := r.builder().
		Update(tableName).
		Set("is_default", true).
		Set("updated_at", time.Now().UTC()).
		Where(squirrel.Eq{"id": divisionID}).
		Where(squirrel.Eq{"active": true}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build set default: %w", err)
	}

	result, err := querier.Exec(ctx, setSQL, setArgs...)
	if err != nil {
		return postgres.TranslateError(fmt.Errorf("set default: %w", err), "division", divisionID.String())
	}
	if result.RowsAffected() == 0 {
		return apperror.NewNotFound("division", divisionID.String())
	}

	return nil
}

// SoftDelete marks the division deleted. The referential check is the
// service's responsibility; the default flag is cleared so GetDefault
// never returns a deleted division.
func (r *Repo) SoftDelete(ctx context.Context, divisionID id.ID, actingUser id.ID, reason string) error {
	now := time.Now().UTC()

	upd := r.builder().
		Update(tableName).
		Set("active", false).
		Set("is_default", false).
		Set("deleted_at", now).
		Set("deleted_by", actingUser).
		Set("updated_at", now).
		Set("version", squirrel.Expr("version + 1")).
		Where(squirrel.Eq{"id": divisionID}).
		Where(squirrel.Eq{"active": true})
	if reason != "" {
		upd = upd.Set("deletion_reason", reason)
	}

	sql, args, err := upd.ToSql()
	if err != nil {
		return fmt.Errorf("build soft delete: %w", err)
	}

	querier := r.txManager.GetQuerier(ctx)
	result, err := querier.Exec(ctx, sql, args...)
	if err != nil {
		return postgres.TranslateError(fmt.Errorf("soft delete division: %w", err), "division", divisionID.String())
	}

	if result.RowsAffected() == 0 {
		// Absent vs already deleted.
		d, gErr := r.GetByID(ctx, divisionID)
		if gErr != nil {
			return gErr
		}
		if !d.Active {
			return nil
		}
		return apperror.NewNotFound("division", divisionID.String())
	}

	return nil
}

// CountEntityReferences counts active entities still scoped to the
// division across all registered entity tables.
func (r *Repo) CountEntityReferences(ctx context.Context, divisionID id.ID) (int64, error) {
	querier := r.txManager.GetQuerier(ctx)

	var total int64
	for _, table := range r.entityTables {
		sql, args, err := r.builder().
			Select("COUNT(*)").
			From(table).
			Where(squirrel.Eq{"division_id": divisionID}).
			Where(squirrel.Eq{"active": true}).
			ToSql()
		if err != nil {
			return 0, fmt.Errorf("build reference count for %s: %w", table, err)
		}

		var n int64
		if err := querier.QueryRow(ctx, sql, args...).Scan(&n); err != nil {
			return 0, fmt.Errorf("count references in %s: %w", table, err)
		}
		total += n
	}

	return total, nil
}

// Exists checks presence of an active division.
func (r *Repo) Exists(ctx context.Context, divisionID id.ID) (bool, error) {
	sql, args, err := r.builder().
		Select("1").
		From(tableName).
		Where(squirrel.Eq{"id": divisionID}).
		Where(squirrel.Eq{"active": true}).
		Limit(1).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build query: %w", err)
	}

	querier := r.txManager.GetQuerier(ctx)
	var one int
	err = querier.QueryRow(ctx, sql, args...).Scan(&one)
	if err == pgx.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("exists: %w", err)
	}

	return true, nil
}
