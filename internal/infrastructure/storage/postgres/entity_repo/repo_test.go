package entity_repo

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"registra/internal/core/apperror"
	"registra/internal/core/entity"
	"registra/internal/core/id"
	"registra/internal/domain/scope"
	"registra/internal/infrastructure/storage/postgres"
)

// testEntity exercises the generic repository without a concrete
// business type.
type testEntity struct {
	entity.Business
	Qty int `db:"qty"`
}

func newTestEntity() *testEntity {
	return &testEntity{}
}

func newTestRepo(t *testing.T) *Repo[*testEntity] {
	t.Helper()
	repo, err := NewRepo(RepoConfig[*testEntity]{
		TxManager:  postgres.NewTxManagerFromRawPool(nil, nil),
		EntityName: "test_entity",
		TableName:  "test_entities",
		NewFn:      newTestEntity,
		CursorKey:  []byte("0123456789abcdef"),
	})
	if err != nil {
		t.Fatalf("NewRepo failed: %v", err)
	}
	return repo
}

// fakeTx satisfies pgx.Tx for the statement surface the repository
// touches; everything else panics via the embedded nil interface.
type fakeTx struct {
	pgx.Tx
	exec     func(sql string, args []any) (pgconn.CommandTag, error)
	queryRow func(sql string, args []any) pgx.Row
}

func (f *fakeTx) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return f.exec(sql, args)
}

func (f *fakeTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return f.queryRow(sql, args)
}

type fakeRow struct {
	val int
	err error
}

func (r *fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if len(dest) > 0 {
		if ptr, ok := dest[0].(*int); ok {
			*ptr = r.val
		}
	}
	return nil
}

func txContext(tx pgx.Tx) context.Context {
	return postgres.ContextWithTx(context.Background(), tx)
}

func activeEntity(version int) *testEntity {
	e := &testEntity{Business: entity.NewBusiness("CODE-1", "Test entity", time.Now())}
	e.DivisionID = id.New()
	e.Version = version
	return e
}

func TestRepo_Delete_Unsupported(t *testing.T) {
	repo := newTestRepo(t)

	err := repo.Delete(context.Background(), id.New())
	appErr, ok := apperror.AsAppError(err)
	if !ok || appErr.Code != apperror.CodeUnsupported {
		t.Fatalf("want UNSUPPORTED_OPERATION, got %v", err)
	}
	if appErr.Details["operation"] != "hard_delete" {
		t.Errorf("operation detail = %v", appErr.Details["operation"])
	}
}

func TestRepo_Update_StaleVersion(t *testing.T) {
	repo := newTestRepo(t)
	e := activeEntity(3)

	tx := &fakeTx{
		exec: func(sql string, args []any) (pgconn.CommandTag, error) {
			if !strings.HasPrefix(sql, "UPDATE test_entities") {
				t.Fatalf("unexpected exec: %s", sql)
			}
			return pgconn.NewCommandTag("UPDATE 0"), nil
		},
		queryRow: func(sql string, args []any) pgx.Row {
			if strings.Contains(sql, "description") {
				// uniqueness pre-check: no duplicate
				return &fakeRow{err: pgx.ErrNoRows}
			}
			// exists check: row is visible, so the version was stale
			return &fakeRow{val: 1}
		},
	}

	err := repo.Update(txContext(tx), e)
	if !apperror.IsStaleVersion(err) {
		t.Fatalf("want STALE_VERSION, got %v", err)
	}
	appErr, _ := apperror.AsAppError(err)
	if appErr.Details["expected_version"] != 3 {
		t.Errorf("expected_version detail = %v", appErr.Details["expected_version"])
	}
	if e.Version != 3 {
		t.Errorf("version must not change on failure, got %d", e.Version)
	}
}

func TestRepo_Update_NotFound(t *testing.T) {
	repo := newTestRepo(t)
	e := activeEntity(1)

	tx := &fakeTx{
		exec: func(sql string, args []any) (pgconn.CommandTag, error) {
			return pgconn.NewCommandTag("UPDATE 0"), nil
		},
		queryRow: func(sql string, args []any) pgx.Row {
			return &fakeRow{err: pgx.ErrNoRows}
		},
	}

	err := repo.Update(txContext(tx), e)
	if !apperror.IsNotFound(err) {
		t.Fatalf("want NOT_FOUND, got %v", err)
	}
}

func TestRepo_Update_Success_BumpsVersion(t *testing.T) {
	repo := newTestRepo(t)
	e := activeEntity(2)

	var gotSQL string
	tx := &fakeTx{
		exec: func(sql string, args []any) (pgconn.CommandTag, error) {
			gotSQL = sql
			return pgconn.NewCommandTag("UPDATE 1"), nil
		},
		queryRow: func(sql string, args []any) pgx.Row {
			return &fakeRow{err: pgx.ErrNoRows}
		},
	}

	if err := repo.Update(txContext(tx), e); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if e.Version != 3 {
		t.Errorf("version = %d, want 3", e.Version)
	}
	for _, fragment := range []string{"version = version + 1", "version = $", "active = $"} {
		if !strings.Contains(gotSQL, fragment) {
			t.Errorf("update SQL missing %q:\n%s", fragment, gotSQL)
		}
	}
	for _, immutable := range []string{"division_id =", "created_at =", "deleted_at ="} {
		if strings.Contains(gotSQL, immutable) {
			t.Errorf("update SQL writes immutable column %q:\n%s", immutable, gotSQL)
		}
	}
}

func TestRepo_Update_DuplicateKeyRejected(t *testing.T) {
	repo := newTestRepo(t)
	e := activeEntity(1)

	tx := &fakeTx{
		exec: func(sql string, args []any) (pgconn.CommandTag, error) {
			t.Fatal("update must not run when the uniqueness pre-check fails")
			return pgconn.CommandTag{}, nil
		},
		queryRow: func(sql string, args []any) pgx.Row {
			// another active row already holds the business key
			return &fakeRow{val: 1}
		},
	}

	err := repo.Update(txContext(tx), e)
	if !apperror.IsDuplicateEntity(err) {
		t.Fatalf("want DUPLICATE_ENTITY, got %v", err)
	}
}

func TestRepo_SoftDelete_AbsorbsRepeatedDelete(t *testing.T) {
	repo := newTestRepo(t)

	tx := &fakeTx{
		exec: func(sql string, args []any) (pgconn.CommandTag, error) {
			// no active row matched
			return pgconn.NewCommandTag("UPDATE 0"), nil
		},
		queryRow: func(sql string, args []any) pgx.Row {
			// the row exists (deleted), so this is a repeat delete
			return &fakeRow{val: 1}
		},
	}

	if err := repo.SoftDelete(txContext(tx), id.New(), id.New(), "cleanup"); err != nil {
		t.Fatalf("repeat soft delete must be a no-op, got %v", err)
	}
}

func TestRepo_SoftDelete_NotFound(t *testing.T) {
	repo := newTestRepo(t)

	tx := &fakeTx{
		exec: func(sql string, args []any) (pgconn.CommandTag, error) {
			return pgconn.NewCommandTag("UPDATE 0"), nil
		},
		queryRow: func(sql string, args []any) pgx.Row {
			return &fakeRow{err: pgx.ErrNoRows}
		},
	}

	err := repo.SoftDelete(txContext(tx), id.New(), id.New(), "")
	if !apperror.IsNotFound(err) {
		t.Fatalf("want NOT_FOUND, got %v", err)
	}
}

func TestRepo_Restore_AbsorbsRepeatedRestore(t *testing.T) {
	repo := newTestRepo(t)

	tx := &fakeTx{
		exec: func(sql string, args []any) (pgconn.CommandTag, error) {
			return pgconn.NewCommandTag("UPDATE 0"), nil
		},
		queryRow: func(sql string, args []any) pgx.Row {
			return &fakeRow{val: 1}
		},
	}

	if err := repo.Restore(txContext(tx), id.New(), id.New(), ""); err != nil {
		t.Fatalf("repeat restore must be a no-op, got %v", err)
	}
}

func TestRepo_Restore_ClearsDeletionMarkers(t *testing.T) {
	repo := newTestRepo(t)

	var gotSQL string
	var gotArgs []any
	tx := &fakeTx{
		exec: func(sql string, args []any) (pgconn.CommandTag, error) {
			gotSQL = sql
			gotArgs = args
			return pgconn.NewCommandTag("UPDATE 1"), nil
		},
	}

	if err := repo.Restore(txContext(tx), id.New(), id.New(), "deleted by mistake"); err != nil {
		t.Fatalf("Restore failed: %v", err)
	}
	for _, fragment := range []string{"active = $", "deleted_at = $", "deleted_by = $", "deletion_reason = $"} {
		if !strings.Contains(gotSQL, fragment) {
			t.Errorf("restore SQL missing %q:\n%s", fragment, gotSQL)
		}
	}

	// SET clauses bind in call order: active, deleted_at, deleted_by,
	// deletion_reason, updated_at. The marker triple must come back nil
	// regardless of the restore reason.
	if len(gotArgs) < 4 {
		t.Fatalf("args = %v, want at least 4", gotArgs)
	}
	for i := 1; i <= 3; i++ {
		if gotArgs[i] != nil {
			t.Errorf("arg[%d] = %v, want nil", i, gotArgs[i])
		}
	}
}

func TestRepo_Exists(t *testing.T) {
	repo := newTestRepo(t)

	tx := &fakeTx{
		queryRow: func(sql string, args []any) pgx.Row {
			return &fakeRow{err: pgx.ErrNoRows}
		},
	}

	ok, err := repo.Exists(txContext(tx), id.New(), scope.ActiveOnly)
	if err != nil {
		t.Fatalf("Exists failed: %v", err)
	}
	if ok {
		t.Error("Exists = true for absent row")
	}
}
