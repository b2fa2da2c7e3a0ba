package entity

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"registra/internal/core/apperror"
	"registra/internal/core/id"
)

func TestNewBase_Defaults(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*60*60)
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, loc)

	b := NewBase(now)

	assert.False(t, id.IsNil(b.ID))
	assert.Equal(t, now.UTC(), b.CreatedAt)
	assert.Equal(t, 180, b.CreatedAtOffset)
	assert.Equal(t, b.CreatedAt, b.UpdatedAt)
	assert.True(t, b.Active)
	assert.Nil(t, b.DeletedAt)
	assert.Equal(t, 1, b.Version)
}

func TestBase_DeleteRestoreTransitions(t *testing.T) {
	b := NewBase(time.Now())
	user := id.New()

	require.NoError(t, b.MarkDeleted(user, "duplicate record"))
	assert.False(t, b.Active)
	require.NotNil(t, b.DeletedAt)
	require.NotNil(t, b.DeletedBy)
	assert.Equal(t, user, *b.DeletedBy)
	require.NotNil(t, b.DeletionReason)
	assert.Equal(t, "duplicate record", *b.DeletionReason)

	// Second delete must fail, not silently re-stamp.
	err := b.MarkDeleted(user, "")
	assert.True(t, apperror.IsAlreadyDeleted(err))

	// The restore reason must not linger as a deletion reason on the
	// now-active row.
	require.NoError(t, b.Restore(user, "deleted by mistake"))
	assert.True(t, b.Active)
	assert.Nil(t, b.DeletedAt)
	assert.Nil(t, b.DeletedBy)
	assert.Nil(t, b.DeletionReason)

	err = b.Restore(user, "")
	assert.True(t, apperror.IsNotDeleted(err))
}

func TestBase_Touch(t *testing.T) {
	b := NewBase(time.Now())
	before := b.UpdatedAt

	b.Touch()

	assert.Equal(t, 2, b.Version)
	assert.False(t, b.UpdatedAt.Before(before))
}

func TestBase_Validate(t *testing.T) {
	ctx := context.Background()
	user := id.New()

	t.Run("fresh base is valid", func(t *testing.T) {
		b := NewBase(time.Now())
		assert.NoError(t, b.Validate(ctx))
	})

	t.Run("active contradicts deleted_at", func(t *testing.T) {
		b := NewBase(time.Now())
		now := time.Now().UTC()
		b.DeletedAt = &now // Active still true
		assert.Error(t, b.Validate(ctx))
	})

	t.Run("deleted without deleted_by", func(t *testing.T) {
		b := NewBase(time.Now())
		require.NoError(t, b.MarkDeleted(user, ""))
		b.DeletedBy = nil
		assert.Error(t, b.Validate(ctx))
	})

	t.Run("validity_end before created_at", func(t *testing.T) {
		b := NewBase(time.Now())
		past := b.CreatedAt.Add(-time.Hour)
		b.ValidityEnd = &past
		assert.Error(t, b.Validate(ctx))
	})

	t.Run("validity_end is orthogonal to active", func(t *testing.T) {
		b := NewBase(time.Now())
		future := b.CreatedAt.Add(time.Hour)
		b.ValidityEnd = &future
		assert.NoError(t, b.Validate(ctx))
		assert.True(t, b.IsActive())
	})

	t.Run("version below one", func(t *testing.T) {
		b := NewBase(time.Now())
		b.Version = 0
		assert.Error(t, b.Validate(ctx))
	})
}

func TestBusiness_Validate(t *testing.T) {
	ctx := context.Background()

	b := NewBusiness("CODE-1", "First entity", time.Now())
	assert.NoError(t, b.Validate(ctx))

	b.Code = ""
	assert.Error(t, b.Validate(ctx))
}

func TestBusiness_UniquenessKey(t *testing.T) {
	b := NewBusiness("CODE-1", "First entity", time.Now())
	b.DivisionID = id.New()

	key := b.UniquenessKey()
	assert.Equal(t, "CODE-1", key.Code)
	assert.Equal(t, "First entity", key.Description)
	assert.Equal(t, b.DivisionID, key.DivisionID)
}
