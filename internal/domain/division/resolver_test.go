package division

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"registra/internal/core/apperror"
	"registra/internal/core/id"
)

// passthroughTxManager runs units of work inline, without a store.
type passthroughTxManager struct{}

func (passthroughTxManager) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (passthroughTxManager) WithSavepoint(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// mockRepo implements Repository with overridable behavior per test.
type mockRepo struct {
	getByID    func(ctx context.Context, divisionID id.ID) (*Division, error)
	getByCode  func(ctx context.Context, code string) (*Division, error)
	getDefault func(ctx context.Context) (*Division, error)
	create     func(ctx context.Context, d *Division) error
	update     func(ctx context.Context, d *Division) error
	setDefault func(ctx context.Context, divisionID id.ID) error
	softDelete func(ctx context.Context, divisionID id.ID, actingUser id.ID, reason string) error
	countRefs  func(ctx context.Context, divisionID id.ID) (int64, error)
	exists     func(ctx context.Context, divisionID id.ID) (bool, error)
}

func (m *mockRepo) GetByID(ctx context.Context, divisionID id.ID) (*Division, error) {
	return m.getByID(ctx, divisionID)
}
func (m *mockRepo) GetByCode(ctx context.Context, code string) (*Division, error) {
	return m.getByCode(ctx, code)
}
func (m *mockRepo) GetDefault(ctx context.Context) (*Division, error) {
	return m.getDefault(ctx)
}
func (m *mockRepo) Create(ctx context.Context, d *Division) error {
	return m.create(ctx, d)
}
func (m *mockRepo) Update(ctx context.Context, d *Division) error {
	return m.update(ctx, d)
}
func (m *mockRepo) SetDefault(ctx context.Context, divisionID id.ID) error {
	return m.setDefault(ctx, divisionID)
}
func (m *mockRepo) SoftDelete(ctx context.Context, divisionID id.ID, actingUser id.ID, reason string) error {
	return m.softDelete(ctx, divisionID, actingUser, reason)
}
func (m *mockRepo) CountEntityReferences(ctx context.Context, divisionID id.ID) (int64, error) {
	return m.countRefs(ctx, divisionID)
}
func (m *mockRepo) Exists(ctx context.Context, divisionID id.ID) (bool, error) {
	return m.exists(ctx, divisionID)
}

func newResolver(repo *mockRepo) *Resolver {
	return NewResolver(ResolverConfig{
		Repo:      repo,
		TxManager: passthroughTxManager{},
	})
}

func TestResolver_GetOrCreateDefault_Existing(t *testing.T) {
	existing := New("MAIN", "Main division")
	existing.IsDefault = true

	repo := &mockRepo{
		getDefault: func(ctx context.Context) (*Division, error) { return existing, nil },
		create: func(ctx context.Context, d *Division) error {
			t.Fatal("must not create when a default exists")
			return nil
		},
	}

	got, err := newResolver(repo).GetOrCreateDefault(context.Background())
	require.NoError(t, err)
	assert.Equal(t, existing.ID, got.ID)
}

func TestResolver_GetOrCreateDefault_LazyCreate(t *testing.T) {
	var created *Division
	repo := &mockRepo{
		getDefault: func(ctx context.Context) (*Division, error) {
			if created != nil {
				return created, nil
			}
			return nil, apperror.NewNotFound("division", "default")
		},
		create: func(ctx context.Context, d *Division) error {
			created = d
			return nil
		},
	}

	got, err := newResolver(repo).GetOrCreateDefault(context.Background())
	require.NoError(t, err)
	require.NotNil(t, created)
	assert.True(t, got.IsDefault)
	assert.Equal(t, DefaultFallbackCode, got.Code)
	assert.Equal(t, DefaultFallbackName, got.Name)
}

func TestResolver_GetOrCreateDefault_LosesRace(t *testing.T) {
	// A concurrent caller inserts the default between our read and write.
	winner := New("MAIN", "Main division")
	winner.IsDefault = true

	calls := 0
	repo := &mockRepo{
		getDefault: func(ctx context.Context) (*Division, error) {
			calls++
			if calls == 1 {
				return nil, apperror.NewNotFound("division", "default")
			}
			return winner, nil
		},
		create: func(ctx context.Context, d *Division) error {
			// unique index over is_default rejects the second default
			return apperror.NewConflict("unique constraint violated")
		},
	}

	got, err := newResolver(repo).GetOrCreateDefault(context.Background())
	require.NoError(t, err)
	assert.Equal(t, winner.ID, got.ID)
	assert.Equal(t, 2, calls)
}

func TestResolver_Assign(t *testing.T) {
	def := New("MAIN", "Main division")
	def.IsDefault = true

	active := New("BR-1", "Branch one")
	deleted := New("BR-2", "Branch two")
	deleted.Active = false

	repo := &mockRepo{
		getDefault: func(ctx context.Context) (*Division, error) { return def, nil },
		getByID: func(ctx context.Context, divisionID id.ID) (*Division, error) {
			switch divisionID {
			case active.ID:
				return active, nil
			case deleted.ID:
				return deleted, nil
			}
			return nil, apperror.NewNotFound("division", divisionID.String())
		},
	}
	r := newResolver(repo)
	ctx := context.Background()

	t.Run("nil falls back to default", func(t *testing.T) {
		got, err := r.Assign(ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, def.ID, got.ID)
	})

	t.Run("nil id falls back to default", func(t *testing.T) {
		nilID := id.Nil()
		got, err := r.Assign(ctx, &nilID)
		require.NoError(t, err)
		assert.Equal(t, def.ID, got.ID)
	})

	t.Run("explicit active division", func(t *testing.T) {
		got, err := r.Assign(ctx, &active.ID)
		require.NoError(t, err)
		assert.Equal(t, active.ID, got.ID)
	})

	t.Run("deleted division rejected", func(t *testing.T) {
		_, err := r.Assign(ctx, &deleted.ID)
		require.Error(t, err)
		appErr, ok := apperror.AsAppError(err)
		require.True(t, ok)
		assert.Equal(t, apperror.CodeValidation, appErr.Code)
	})

	t.Run("unknown division propagates not found", func(t *testing.T) {
		unknown := id.New()
		_, err := r.Assign(ctx, &unknown)
		assert.True(t, apperror.IsNotFound(err))
	})
}
