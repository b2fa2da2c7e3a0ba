// Package entity_repo provides the PostgreSQL implementation of the
// generic entity repository: type-parameterized CRUD, soft-delete
// scoping, filtering and offset/cursor pagination.
package entity_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"

	"registra/internal/core/apperror"
	"registra/internal/core/entity"
	"registra/internal/core/id"
	"registra/internal/domain/division"
	"registra/internal/domain/scope"
	"registra/internal/infrastructure/storage/postgres"
)

// Repo provides common persistence operations for entity types.
// Type parameter T must be a pointer type embedding entity.Base.
//
// Physical deletion is not part of the contract: Delete exists only to
// fail fast for callers expecting one.
type Repo[T entity.Persistable] struct {
	txManager  *postgres.TxManager
	resolver   *division.Resolver
	entityName string
	tableName  string
	selectCols []string
	newFn      func() T
	cursors    *CursorCodec
}

// RepoConfig configures a generic entity repository.
type RepoConfig[T entity.Persistable] struct {
	TxManager  *postgres.TxManager
	Resolver   *division.Resolver
	EntityName string
	TableName  string
	NewFn      func() T

	// CursorKey signs pagination cursors; must be stable across
	// processes serving the same clients.
	CursorKey []byte
}

// NewRepo creates a generic entity repository. Column set is derived
// from T's db tags once at construction.
func NewRepo[T entity.Persistable](cfg RepoConfig[T]) (*Repo[T], error) {
	cols := postgres.ExtractDBColumns[T]()
	if len(cols) == 0 {
		return nil, fmt.Errorf("entity %s has no db-mapped fields", cfg.EntityName)
	}

	codec, err := NewCursorCodec(cfg.CursorKey)
	if err != nil {
		return nil, err
	}

	return &Repo[T]{
		txManager:  cfg.TxManager,
		resolver:   cfg.Resolver,
		entityName: cfg.EntityName,
		tableName:  cfg.TableName,
		selectCols: cols,
		newFn:      cfg.NewFn,
		cursors:    codec,
	}, nil
}

// Builder returns a new squirrel builder with PostgreSQL placeholder format.
func (r *Repo[T]) Builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

func (r *Repo[T]) baseSelect() squirrel.SelectBuilder {
	return r.Builder().
		Select(r.selectCols...).
		From(r.tableName)
}

// Create inserts a new entity. Assigns id, division (via the resolver
// when unset), timestamps and version=1; business entities are checked
// for uniqueness first. Runs under the ambient transaction.
func (r *Repo[T]) Create(ctx context.Context, e T) error {
	base := e.EntityBase()

	if id.IsNil(base.ID) {
		base.ID = id.New()
	}
	if base.CreatedAt.IsZero() {
		now := time.Now()
		_, offset := now.Zone()
		base.CreatedAt = now.UTC()
		base.CreatedAtOffset = offset / 60
		base.UpdatedAt = base.CreatedAt
		base.Active = true
	}
	if base.Version == 0 {
		base.Version = 1
	}

	d, err := r.resolver.Assign(ctx, divisionArg(base.DivisionID))
	if err != nil {
		return fmt.Errorf("assign division: %w", err)
	}
	base.DivisionID = d.ID

	if err := r.validateUniqueness(ctx, e, id.Nil()); err != nil {
		return err
	}

	data := postgres.StructToMap(e)
	filtered := make(map[string]any, len(r.selectCols))
	for _, col := range r.selectCols {
		if val, ok := data[col]; ok {
			filtered[col] = val
		}
	}

	sql, args, err := r.Builder().
		Insert(r.tableName).
		SetMap(filtered).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	querier := r.txManager.GetQuerier(ctx)
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		// Pre-check passed but a concurrent writer got there first.
		if postgres.IsUniqueViolation(err) {
			if u, ok := any(e).(entity.Unique); ok {
				key := u.UniquenessKey()
				return apperror.NewDuplicateEntity(r.entityName, key.Code, key.Description, key.DivisionID.String()).WithCause(err)
			}
		}
		return postgres.TranslateError(fmt.Errorf("insert %s: %w", r.tableName, err), r.entityName, base.ID.String())
	}

	return nil
}

// FindByID retrieves an entity visible under the given scope mode.
func (r *Repo[T]) FindByID(ctx context.Context, entityID id.ID, mode scope.Mode) (T, error) {
	e := r.newFn()

	if !mode.Normalize().Valid() {
		return e, apperror.NewValidation("unknown scope mode").WithDetail("mode", string(mode))
	}

	q := ApplyScope(r.baseSelect(), mode).
		Where(squirrel.Eq{"id": entityID}).
		Limit(1)

	sql, args, err := q.ToSql()
	if err != nil {
		return e, fmt.Errorf("build query: %w", err)
	}

	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Get(ctx, querier, e, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return e, apperror.NewNotFound(r.entityName, entityID.String())
		}
		return e, fmt.Errorf("get by id: %w", err)
	}

	return e, nil
}

// Update persists changes with optimistic locking: the entity's Version
// is the expected stored version. Only active rows are updatable;
// division, identity, audit and soft-delete columns are immutable here.
func (r *Repo[T]) Update(ctx context.Context, e T) error {
	base := e.EntityBase()
	expected := base.Version

	if err := r.validateUniqueness(ctx, e, base.ID); err != nil {
		return err
	}

	data := postgres.StructToMap(e)
	filtered := make(map[string]any, len(r.selectCols))
	for _, col := range r.selectCols {
		if immutableColumns[col] {
			continue
		}
		if val, ok := data[col]; ok {
			filtered[col] = val
		}
	}
	filtered["updated_at"] = time.Now().UTC()

	sql, args, err := r.Builder().
		Update(r.tableName).
		SetMap(filtered).
		Set("version", squirrel.Expr("version + 1")).
		Where(squirrel.Eq{"id": base.ID}).
		Where(squirrel.Eq{"version": expected}).
		Where(squirrel.Eq{"active": true}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	querier := r.txManager.GetQuerier(ctx)
	result, err := querier.Exec(ctx, sql, args...)
	if err != nil {
		return postgres.TranslateError(fmt.Errorf("update %s: %w", r.tableName, err), r.entityName, base.ID.String())
	}

	if result.RowsAffected() == 0 {
		// Disambiguate: invisible row vs concurrent modification.
		visible, exErr := r.Exists(ctx, base.ID, scope.ActiveOnly)
		if exErr != nil {
			return exErr
		}
		if !visible {
			return apperror.NewNotFound(r.entityName, base.ID.String())
		}
		return apperror.NewStaleVersion(r.entityName, base.ID.String(), expected)
	}

	base.Touch()
	return nil
}

// SoftDelete marks the row deleted. Idempotent at this boundary:
// deleting an already-deleted row returns success without state change.
func (r *Repo[T]) SoftDelete(ctx context.Context, entityID id.ID, actingUser id.ID, reason string) error {
	now := time.Now().UTC()

	upd := r.Builder().
		Update(r.tableName).
		Set("active", false).
		Set("deleted_at", now).
		Set("deleted_by", actingUser).
		Set("updated_at", now).
		Set("version", squirrel.Expr("version + 1")).
		Where(squirrel.Eq{"id": entityID}).
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
		return postgres.TranslateError(fmt.Errorf("soft delete %s: %w", r.tableName, err), r.entityName, entityID.String())
	}

	if result.RowsAffected() == 0 {
		present, exErr := r.Exists(ctx, entityID, scope.All)
		if exErr != nil {
			return exErr
		}
		if !present {
			return apperror.NewNotFound(r.entityName, entityID.String())
		}
		// Already deleted: absorb to a no-op.
		return nil
	}

	return nil
}

// Restore reverses a soft delete. Idempotent like SoftDelete. The
// soft-delete marker triple is cleared entirely; the restore reason is
// captured by the audit trail, not stored on the row.
func (r *Repo[T]) Restore(ctx context.Context, entityID id.ID, actingUser id.ID, reason string) error {
	upd := r.Builder().
		Update(r.tableName).
		Set("active", true).
		Set("deleted_at", nil).
		Set("deleted_by", nil).
		Set("deletion_reason", nil).
		Set("updated_at", time.Now().UTC()).
		Set("version", squirrel.Expr("version + 1")).
		Where(squirrel.Eq{"id": entityID}).
		Where(squirrel.Eq{"active": false})

	sql, args, err := upd.ToSql()
	if err != nil {
		return fmt.Errorf("build restore: %w", err)
	}

	querier := r.txManager.GetQuerier(ctx)
	result, err := querier.Exec(ctx, sql, args...)
	if err != nil {
		return postgres.TranslateError(fmt.Errorf("restore %s: %w", r.tableName, err), r.entityName, entityID.String())
	}

	if result.RowsAffected() == 0 {
		present, exErr := r.Exists(ctx, entityID, scope.All)
		if exErr != nil {
			return exErr
		}
		if !present {
			return apperror.NewNotFound(r.entityName, entityID.String())
		}
		// Already active: absorb to a no-op.
		return nil
	}

	return nil
}

// Delete fails fast: physical removal would break the audit trail.
func (r *Repo[T]) Delete(ctx context.Context, entityID id.ID) error {
	return apperror.NewUnsupported("hard_delete").
		WithDetail("entity", r.entityName).
		WithDetail("id", entityID.String())
}

// Exists checks presence under the given scope mode.
func (r *Repo[T]) Exists(ctx context.Context, entityID id.ID, mode scope.Mode) (bool, error) {
	q := ApplyScope(
		r.Builder().Select("1").From(r.tableName),
		mode,
	).
		Where(squirrel.Eq{"id": entityID}).
		Limit(1)

	sql, args, err := q.ToSql()
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

// validateUniqueness enforces the (code, description, division) business
// key among active rows. Soft-deleted rows are excluded so a code can be
// reused after logical deletion. No-op for entities without the key.
func (r *Repo[T]) validateUniqueness(ctx context.Context, e T, excludeID id.ID) error {
	u, ok := any(e).(entity.Unique)
	if !ok {
		return nil
	}
	key := u.UniquenessKey()

	q := r.Builder().
		Select("1").
		From(r.tableName).
		Where(squirrel.Eq{
			"code":        key.Code,
			"description": key.Description,
			"division_id": key.DivisionID,
			"active":      true,
		}).
		Limit(1)
	if !id.IsNil(excludeID) {
		q = q.Where(squirrel.NotEq{"id": excludeID})
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build uniqueness query: %w", err)
	}

	querier := r.txManager.GetQuerier(ctx)
	var one int
	err = querier.QueryRow(ctx, sql, args...).Scan(&one)
	if err == pgx.ErrNoRows {
		return nil
	}
	if err != nil {
		return fmt.Errorf("check uniqueness: %w", err)
	}

	return apperror.NewDuplicateEntity(r.entityName, key.Code, key.Description, key.DivisionID.String())
}

// immutableColumns are managed by the repository, never written through
// a plain update.
var immutableColumns = map[string]bool{
	"id":                true,
	"version":           true, // optimistic locking
	"created_at":        true,
	"created_at_offset": true,
	"division_id":       true, // immutable after creation
	"active":            true, // soft-delete transitions only
	"deleted_at":        true,
	"deleted_by":        true,
	"deletion_reason":   true,
	"updated_at":        true, // set explicitly by the repository
}

func divisionArg(divisionID id.ID) *id.ID {
	if id.IsNil(divisionID) {
		return nil
	}
	return &divisionID
}
