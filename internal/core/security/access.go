// Package security provides division access policies.
// Access control itself is a collaborator injected into the division
// resolver; this package ships a default expression-based implementation.
package security

import (
	"context"
	"fmt"

	"github.com/google/cel-go/cel"

	appctx "registra/internal/core/context"
	"registra/internal/core/id"
)

// AccessPolicy decides whether a user may operate within a division.
// Different deployments plug in different policies (expression-based,
// RBAC service, allow-all for single-tenant installs).
type AccessPolicy interface {
	// ValidateAccess reports whether userID may access divisionID.
	ValidateAccess(ctx context.Context, userID, divisionID id.ID) (bool, error)
}

// AllowAll grants access unconditionally. Default for single-tenant installs.
type AllowAll struct{}

func (AllowAll) ValidateAccess(ctx context.Context, userID, divisionID id.ID) (bool, error) {
	return true, nil
}

// ContextPolicy grants access based on the division list carried in the
// request context (admins pass unconditionally).
type ContextPolicy struct{}

func (ContextPolicy) ValidateAccess(ctx context.Context, userID, divisionID id.ID) (bool, error) {
	return appctx.HasDivisionAccess(ctx, divisionID), nil
}

// ExpressionPolicy evaluates a CEL expression against the access request.
// Available variables:
//
//	user_id        string
//	division_id    string
//	is_admin       bool
//	user_divisions list(string)
//
// Example: `is_admin || division_id in user_divisions`.
type ExpressionPolicy struct {
	program cel.Program
}

// NewExpressionPolicy compiles the expression once; evaluation is cheap.
func NewExpressionPolicy(expr string) (*ExpressionPolicy, error) {
	env, err := cel.NewEnv(
		cel.Variable("user_id", cel.StringType),
		cel.Variable("division_id", cel.StringType),
		cel.Variable("is_admin", cel.BoolType),
		cel.Variable("user_divisions", cel.ListType(cel.StringType)),
	)
	if err != nil {
		return nil, fmt.Errorf("create cel env: %w", err)
	}

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile access expression: %w", issues.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("access expression must evaluate to bool, got %v", ast.OutputType())
	}

	program, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("build access program: %w", err)
	}

	return &ExpressionPolicy{program: program}, nil
}

// ValidateAccess implements AccessPolicy.
func (p *ExpressionPolicy) ValidateAccess(ctx context.Context, userID, divisionID id.ID) (bool, error) {
	divisions := []string{}
	isAdmin := false
	if u := appctx.GetUser(ctx); u != nil {
		isAdmin = u.IsAdmin
		for _, d := range u.DivisionIDs {
			divisions = append(divisions, d.String())
		}
	}

	out, _, err := p.program.Eval(map[string]any{
		"user_id":        userID.String(),
		"division_id":    divisionID.String(),
		"is_admin":       isAdmin,
		"user_divisions": divisions,
	})
	if err != nil {
		return false, fmt.Errorf("evaluate access expression: %w", err)
	}

	allowed, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("access expression returned %T, want bool", out.Value())
	}
	return allowed, nil
}
