// Package domain provides core business logic interfaces and types.
package domain

import (
	"context"

	"registra/internal/core/entity"
	"registra/internal/core/id"
	"registra/internal/domain/filter"
	"registra/internal/domain/scope"
)

// --- Pagination ---

// PageMode selects the pagination strategy.
type PageMode string

const (
	// PageOffset computes a total via a count query sharing the data
	// query's predicates. Simple default; degrades on large tables.
	PageOffset PageMode = "offset"

	// PageCursor pages by an opaque position token. Stable under
	// concurrent inserts; required for result sets beyond a few
	// thousand rows.
	PageCursor PageMode = "cursor"
)

// PageRequest describes the requested page.
// Offset mode uses Page (1-based) and Limit; cursor mode uses Cursor
// (empty for the first page) and Limit.
type PageRequest struct {
	Mode   PageMode `json:"mode"`
	Page   int      `json:"page,omitempty"`
	Limit  int      `json:"limit"`
	Cursor string   `json:"cursor,omitempty"`
}

// DefaultPageRequest returns sensible defaults.
func DefaultPageRequest() PageRequest {
	return PageRequest{Mode: PageOffset, Page: 1, Limit: 50}
}

// Page contains one page of results.
// Total is set in offset mode only; NextCursor in cursor mode only.
type Page[T any] struct {
	Items       []T    `json:"items"`
	Total       *int64 `json:"total,omitempty"`
	HasNext     bool   `json:"hasNext"`
	HasPrevious bool   `json:"hasPrevious"`
	NextCursor  string `json:"nextCursor,omitempty"`
}

// Query combines filtering, sorting, pagination and soft-delete scoping
// for list operations.
type Query struct {
	// Filters compose as a conjunction. Unknown fields are rejected
	// with INVALID_FILTER, never silently ignored.
	Filters []filter.Item

	// Sort is applied in order; id ascending is always appended as the
	// final tie-break.
	Sort []filter.Sort

	Page PageRequest

	// Scope defaults to ActiveOnly when unset.
	Scope scope.Mode
}

// DefaultQuery returns a query with default pagination and scope.
func DefaultQuery() Query {
	return Query{Page: DefaultPageRequest(), Scope: scope.ActiveOnly}
}

// --- Repository Interface ---

// Repository defines the persistence contract for entity types.
//
// Physical deletion is intentionally absent: the audit trail requires
// rows to survive, so only the soft-delete transition is exposed.
type Repository[T entity.Persistable] interface {
	// Create inserts a new entity. Assigns id, division (via the
	// division resolver when unset), timestamps and version=1.
	// Business entities are checked for uniqueness first.
	Create(ctx context.Context, e T) error

	// FindByID retrieves an entity visible under the given scope mode.
	FindByID(ctx context.Context, entityID id.ID, mode scope.Mode) (T, error)

	// Update persists changes with optimistic locking: the entity's
	// current Version field is the expected stored version. Fails with
	// NOT_FOUND when no active row matches, STALE_VERSION on a version
	// mismatch. Bumps version and updated_at on success.
	Update(ctx context.Context, e T) error

	// SoftDelete marks the row deleted. Idempotent: deleting an
	// already-deleted row succeeds without state change.
	SoftDelete(ctx context.Context, entityID id.ID, actingUser id.ID, reason string) error

	// Restore reverses a soft delete. Idempotent like SoftDelete.
	Restore(ctx context.Context, entityID id.ID, actingUser id.ID, reason string) error

	// List retrieves entities with filtering, sorting and pagination.
	List(ctx context.Context, q Query) (Page[T], error)

	// Exists checks presence under the given scope mode.
	Exists(ctx context.Context, entityID id.ID, mode scope.Mode) (bool, error)
}

// --- Audit sink ---

// AuditAction labels an audited mutation.
type AuditAction string

const (
	AuditCreate     AuditAction = "create"
	AuditUpdate     AuditAction = "update"
	AuditSoftDelete AuditAction = "soft_delete"
	AuditRestore    AuditAction = "restore"
)

// AuditSink records entity mutations. Fire-and-forget from the caller's
// perspective: a failing sink must not abort the business operation.
type AuditSink interface {
	Record(ctx context.Context, action AuditAction, entityName string, entityID id.ID, changes any)
}

// NopAuditSink discards all records.
type NopAuditSink struct{}

func (NopAuditSink) Record(context.Context, AuditAction, string, id.ID, any) {}

// --- Hooks ---

// HookEvent represents lifecycle event type.
type HookEvent string

const (
	BeforeCreate HookEvent = "before_create"
	AfterCreate  HookEvent = "after_create"
	BeforeUpdate HookEvent = "before_update"
	AfterUpdate  HookEvent = "after_update"
	BeforeDelete HookEvent = "before_delete"
	AfterDelete  HookEvent = "after_delete"
)

// Hook is a function that runs at specific lifecycle points.
type Hook[T any] func(ctx context.Context, entity T) error

// HookRegistry stores lifecycle hooks for an entity type.
type HookRegistry[T any] struct {
	hooks map[HookEvent][]Hook[T]
}

// NewHookRegistry creates an empty hook registry.
func NewHookRegistry[T any]() *HookRegistry[T] {
	return &HookRegistry[T]{
		hooks: make(map[HookEvent][]Hook[T]),
	}
}

// On registers a hook for the specified event.
func (r *HookRegistry[T]) On(event HookEvent, hook Hook[T]) {
	r.hooks[event] = append(r.hooks[event], hook)
}

// Run executes all hooks for the specified event.
func (r *HookRegistry[T]) Run(ctx context.Context, event HookEvent, entity T) error {
	for _, hook := range r.hooks[event] {
		if err := hook(ctx, entity); err != nil {
			return err
		}
	}
	return nil
}
