package entity_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"registra/internal/core/apperror"
	"registra/internal/domain"
	"registra/internal/domain/filter"
	"registra/internal/infrastructure/storage/postgres"
)

// defaultLimit applies when the caller leaves the page size unset;
// maxLimit caps it.
const (
	defaultLimit = 50
	maxLimit     = 1000
)

// sortKey is a validated sort column with direction.
type sortKey struct {
	column string
	desc   bool
}

// List retrieves entities with filtering, sorting and pagination.
func (r *Repo[T]) List(ctx context.Context, q domain.Query) (domain.Page[T], error) {
	var page domain.Page[T]

	mode := q.Scope.Normalize()
	if !mode.Valid() {
		return page, apperror.NewValidation("unknown scope mode").WithDetail("mode", string(q.Scope))
	}

	sel := ApplyScope(r.baseSelect(), mode)

	sel, err := r.applyFilters(sel, q.Filters)
	if err != nil {
		return page, err
	}

	sorts, err := r.resolveSort(q.Sort)
	if err != nil {
		return page, err
	}

	req := q.Page
	if req.Limit <= 0 {
		req.Limit = defaultLimit
	}
	if req.Limit > maxLimit {
		req.Limit = maxLimit
	}
	if req.Mode == "" {
		req.Mode = domain.PageOffset
	}

	switch req.Mode {
	case domain.PageOffset:
		return r.listOffset(ctx, sel, sorts, req)
	case domain.PageCursor:
		return r.listCursor(ctx, sel, sorts, req)
	}
	return page, apperror.NewValidation("unknown pagination mode").WithDetail("mode", string(req.Mode))
}

// listOffset pages by numeric offset. The count query shares the data
// query's filter and scope predicates.
func (r *Repo[T]) listOffset(ctx context.Context, sel squirrel.SelectBuilder, sorts []sortKey, req domain.PageRequest) (domain.Page[T], error) {
	var page domain.Page[T]

	if req.Page < 1 {
		req.Page = 1
	}
	offset := (req.Page - 1) * req.Limit

	countSQL, countArgs, err := r.Builder().
		Select("COUNT(*)").
		FromSelect(sel, "sub").
		ToSql()
	if err != nil {
		return page, fmt.Errorf("build count query: %w", err)
	}

	querier := r.txManager.GetQuerier(ctx)
	var total int64
	if err := querier.QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return page, fmt.Errorf("count: %w", err)
	}

	sql, args, err := applySort(sel, sorts).
		Limit(uint64(req.Limit)).
		Offset(uint64(offset)).
		ToSql()
	if err != nil {
		return page, fmt.Errorf("build query: %w", err)
	}

	if err := pgxscan.Select(ctx, querier, &page.Items, sql, args...); err != nil {
		return page, fmt.Errorf("list: %w", err)
	}

	page.Total = &total
	page.HasNext = int64(offset+req.Limit) < total
	page.HasPrevious = req.Page > 1
	return page, nil
}

// listCursor pages by opaque position token. Fetches limit+1 rows to
// learn whether a next page exists without a count query; the position
// predicate keeps already-returned rows stable under concurrent inserts.
func (r *Repo[T]) listCursor(ctx context.Context, sel squirrel.SelectBuilder, sorts []sortKey, req domain.PageRequest) (domain.Page[T], error) {
	var page domain.Page[T]

	if req.Cursor != "" {
		cur, err := r.cursors.Decode(req.Cursor)
		if err != nil {
			return page, err
		}
		pred, err := cursorPredicate(sorts, cur)
		if err != nil {
			return page, err
		}
		sel = sel.Where(pred)
	}

	sql, args, err := applySort(sel, sorts).
		Limit(uint64(req.Limit + 1)).
		ToSql()
	if err != nil {
		return page, fmt.Errorf("build query: %w", err)
	}

	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &page.Items, sql, args...); err != nil {
		return page, fmt.Errorf("list: %w", err)
	}

	page.HasPrevious = req.Cursor != ""
	if len(page.Items) > req.Limit {
		page.Items = page.Items[:req.Limit]
		page.HasNext = true
	}

	if page.HasNext && len(page.Items) > 0 {
		token, err := r.encodeNextCursor(page.Items[len(page.Items)-1], sorts)
		if err != nil {
			return page, err
		}
		page.NextCursor = token
	}

	return page, nil
}

// applyFilters composes caller criteria as a conjunction. Unknown field
// names fail fast with INVALID_FILTER instead of being silently dropped.
func (r *Repo[T]) applyFilters(q squirrel.SelectBuilder, items []filter.Item) (squirrel.SelectBuilder, error) {
	if len(items) == 0 {
		return q, nil
	}

	validCols := make(map[string]bool, len(r.selectCols))
	for _, col := range r.selectCols {
		validCols[col] = true
	}

	for _, item := range items {
		if !validCols[item.Field] {
			return q, apperror.NewInvalidFilter(item.Field)
		}

		switch item.Operator {
		case filter.Equal:
			q = q.Where(squirrel.Eq{item.Field: item.Value})
		case filter.NotEqual:
			q = q.Where(squirrel.NotEq{item.Field: item.Value})
		case filter.Less:
			q = q.Where(squirrel.Lt{item.Field: item.Value})
		case filter.LessOrEqual:
			q = q.Where(squirrel.LtOrEq{item.Field: item.Value})
		case filter.Greater:
			q = q.Where(squirrel.Gt{item.Field: item.Value})
		case filter.GreaterOrEqual:
			q = q.Where(squirrel.GtOrEq{item.Field: item.Value})
		case filter.InList:
			q = q.Where(squirrel.Eq{item.Field: item.Value})
		case filter.NotInList:
			q = q.Where(squirrel.NotEq{item.Field: item.Value})
		case filter.IsNull:
			q = q.Where(squirrel.Eq{item.Field: nil})
		case filter.IsNotNull:
			q = q.Where(squirrel.NotEq{item.Field: nil})
		case filter.Contains:
			q = q.Where(squirrel.ILike{item.Field: fmt.Sprintf("%%%v%%", item.Value)})
		case filter.NotContains:
			q = q.Where(squirrel.NotILike{item.Field: fmt.Sprintf("%%%v%%", item.Value)})
		default:
			return q, apperror.NewValidation("unknown filter operator").
				WithDetail("operator", string(item.Operator)).
				WithDetail("field", item.Field)
		}
	}

	return q, nil
}

// resolveSort validates the sort specification and appends id ascending
// as the final tie-break so ordering is total and pagination deterministic.
func (r *Repo[T]) resolveSort(sorts []filter.Sort) ([]sortKey, error) {
	validCols := make(map[string]bool, len(r.selectCols))
	for _, col := range r.selectCols {
		validCols[col] = true
	}

	keys := make([]sortKey, 0, len(sorts)+1)
	for _, s := range sorts {
		if s.Field == "id" {
			continue // id is always appended below
		}
		if !validCols[s.Field] {
			return nil, apperror.NewInvalidFilter(s.Field)
		}
		keys = append(keys, sortKey{column: s.Field, desc: s.Desc})
	}

	return append(keys, sortKey{column: "id"}), nil
}

func applySort(q squirrel.SelectBuilder, sorts []sortKey) squirrel.SelectBuilder {
	for _, s := range sorts {
		dir := " ASC"
		if s.desc {
			dir = " DESC"
		}
		q = q.OrderBy(s.column + dir)
	}
	return q
}

// cursorPredicate builds the lexicographic position predicate
// (k1..kn, id) > (v1..vn, cursorID), honoring per-key direction, so the
// next page starts strictly after the cursor row.
func cursorPredicate(sorts []sortKey, cur Cursor) (squirrel.Sqlizer, error) {
	// cur.Keys align with the non-id sort keys; id travels separately.
	if len(cur.Keys) != len(sorts)-1 {
		return nil, apperror.NewInvalidCursor()
	}

	vals := make([]any, len(sorts))
	copy(vals, cur.Keys)
	vals[len(sorts)-1] = cur.ID

	var or squirrel.Or
	for i, s := range sorts {
		and := make(squirrel.And, 0, i+1)
		for j := 0; j < i; j++ {
			and = append(and, squirrel.Eq{sorts[j].column: vals[j]})
		}
		if s.desc {
			and = append(and, squirrel.Lt{s.column: vals[i]})
		} else {
			and = append(and, squirrel.Gt{s.column: vals[i]})
		}
		or = append(or, and)
	}

	return or, nil
}

// encodeNextCursor derives the next-page token from the last returned row.
func (r *Repo[T]) encodeNextCursor(last T, sorts []sortKey) (string, error) {
	data := postgres.StructToMap(last)

	keys := make([]any, 0, len(sorts)-1)
	for _, s := range sorts[:len(sorts)-1] {
		keys = append(keys, data[s.column])
	}

	return r.cursors.Encode(Cursor{Keys: keys, ID: last.EntityBase().ID})
}
