package security

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appctx "registra/internal/core/context"
	"registra/internal/core/id"
)

func userCtx(user *appctx.UserContext) context.Context {
	return appctx.WithUser(context.Background(), user)
}

func TestAllowAll(t *testing.T) {
	ok, err := AllowAll{}.ValidateAccess(context.Background(), id.New(), id.New())
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestContextPolicy(t *testing.T) {
	division := id.New()
	other := id.New()
	user := id.New()

	p := ContextPolicy{}

	t.Run("member division", func(t *testing.T) {
		ctx := userCtx(&appctx.UserContext{UserID: user, DivisionIDs: []id.ID{division}})
		ok, err := p.ValidateAccess(ctx, user, division)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("foreign division", func(t *testing.T) {
		ctx := userCtx(&appctx.UserContext{UserID: user, DivisionIDs: []id.ID{division}})
		ok, err := p.ValidateAccess(ctx, user, other)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("admin bypasses membership", func(t *testing.T) {
		ctx := userCtx(&appctx.UserContext{UserID: user, IsAdmin: true})
		ok, err := p.ValidateAccess(ctx, user, other)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("anonymous context denied", func(t *testing.T) {
		ok, err := p.ValidateAccess(context.Background(), user, division)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestExpressionPolicy(t *testing.T) {
	p, err := NewExpressionPolicy(`is_admin || division_id in user_divisions`)
	require.NoError(t, err)

	user := id.New()
	division := id.New()

	t.Run("member allowed", func(t *testing.T) {
		ctx := userCtx(&appctx.UserContext{UserID: user, DivisionIDs: []id.ID{division}})
		ok, err := p.ValidateAccess(ctx, user, division)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("non-member denied", func(t *testing.T) {
		ctx := userCtx(&appctx.UserContext{UserID: user})
		ok, err := p.ValidateAccess(ctx, user, division)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("admin allowed", func(t *testing.T) {
		ctx := userCtx(&appctx.UserContext{UserID: user, IsAdmin: true})
		ok, err := p.ValidateAccess(ctx, user, division)
		require.NoError(t, err)
		assert.True(t, ok)
	})
}

func TestNewExpressionPolicy_Rejections(t *testing.T) {
	t.Run("syntax error", func(t *testing.T) {
		_, err := NewExpressionPolicy(`is_admin ||`)
		assert.Error(t, err)
	})

	t.Run("unknown variable", func(t *testing.T) {
		_, err := NewExpressionPolicy(`is_superuser`)
		assert.Error(t, err)
	})

	t.Run("non-bool result", func(t *testing.T) {
		_, err := NewExpressionPolicy(`user_id`)
		assert.Error(t, err)
	})
}
