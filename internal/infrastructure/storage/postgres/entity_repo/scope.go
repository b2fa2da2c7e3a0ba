package entity_repo

import (
	"github.com/Masterminds/squirrel"

	"registra/internal/domain/scope"
)

// ApplyScope augments a query with the soft-delete predicate for the
// given mode. Purely additive: caller-supplied predicates are preserved,
// never replaced.
func ApplyScope(q squirrel.SelectBuilder, m scope.Mode) squirrel.SelectBuilder {
	switch m.Normalize() {
	case scope.ActiveOnly:
		return q.Where(squirrel.Eq{"active": true})
	case scope.DeletedOnly:
		return q.Where(squirrel.Eq{"active": false})
	case scope.All:
		return q
	}
	return q
}
