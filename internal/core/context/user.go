// Package context provides request-scoped values extraction.
package context

import (
	"context"

	"registra/internal/core/id"
)

// UserContext carries the acting user for audit attribution and
// division access checks.
type UserContext struct {
	UserID      id.ID
	DivisionIDs []id.ID // Divisions the user has access to
	IsAdmin     bool    // Admins may request DeletedOnly/All scopes
	SessionID   string
}

type userContextKey struct{}

// WithUser adds UserContext to context.
func WithUser(ctx context.Context, user *UserContext) context.Context {
	return context.WithValue(ctx, userContextKey{}, user)
}

// GetUser returns UserContext from context.
func GetUser(ctx context.Context) *UserContext {
	if v, ok := ctx.Value(userContextKey{}).(*UserContext); ok {
		return v
	}
	return nil
}

// GetUserID returns acting user ID from context or the nil ID.
func GetUserID(ctx context.Context) id.ID {
	if u := GetUser(ctx); u != nil {
		return u.UserID
	}
	return id.Nil()
}

// IsAdmin reports whether the context user may use elevated scopes.
func IsAdmin(ctx context.Context) bool {
	if u := GetUser(ctx); u != nil {
		return u.IsAdmin
	}
	return false
}

// HasDivisionAccess checks if user has access to the division.
func HasDivisionAccess(ctx context.Context, divisionID id.ID) bool {
	u := GetUser(ctx)
	if u == nil {
		return false
	}
	if u.IsAdmin {
		return true
	}
	for _, d := range u.DivisionIDs {
		if d == divisionID {
			return true
		}
	}
	return false
}
