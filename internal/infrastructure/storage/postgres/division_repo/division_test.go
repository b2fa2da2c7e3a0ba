package division_repo

import (
	"context"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"registra/internal/core/apperror"
	"registra/internal/core/id"
	"registra/internal/infrastructure/storage/postgres"
)

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
	vals []int64
	err  error
}

func (r *fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	for i := range dest {
		if i >= len(r.vals) {
			break
		}
		if ptr, ok := dest[i].(*int64); ok {
			*ptr = r.vals[i]
		}
	}
	return nil
}

func newRepo(tables ...string) *Repo {
	return NewRepo(postgres.NewTxManagerFromRawPool(nil, nil), tables)
}

func txContext(tx pgx.Tx) context.Context {
	return postgres.ContextWithTx(context.Background(), tx)
}

func TestSetDefault_ClearsThenSets(t *testing.T) {
	repo := newRepo()
	target := id.New()

	var statements []string
	tx := &fakeTx{
		exec: func(sql string, args []any) (pgconn.CommandTag, error) {
			statements = append(statements, sql)
			return pgconn.NewCommandTag("UPDATE 1"), nil
		},
	}

	if err := repo.SetDefault(txContext(tx), target); err != nil {
		t.Fatalf("SetDefault failed: %v", err)
	}

	if len(statements) != 2 {
		t.Fatalf("statements = %d, want clear + set", len(statements))
	}
	if !strings.Contains(statements[0], "is_default = $1") || !strings.Contains(statements[0], "id <> $") {
		t.Errorf("first statement must clear the previous holder:\n%s", statements[0])
	}
	if !strings.Contains(statements[1], "is_default = $1") || !strings.Contains(statements[1], "active = $") {
		t.Errorf("second statement must flag the active target:\n%s", statements[1])
	}
}

func TestSetDefault_MissingTarget(t *testing.T) {
	repo := newRepo()

	calls := 0
	tx := &fakeTx{
		exec: func(sql string, args []any) (pgconn.CommandTag, error) {
			calls++
			if calls == 1 {
				return pgconn.NewCommandTag("UPDATE 1"), nil
			}
			// target row absent or deleted
			return pgconn.NewCommandTag("UPDATE 0"), nil
		},
	}

	err := repo.SetDefault(txContext(tx), id.New())
	if !apperror.IsNotFound(err) {
		t.Fatalf("want NOT_FOUND, got %v", err)
	}
}

func TestCountEntityReferences_SumsAcrossTables(t *testing.T) {
	repo := newRepo("cat_products", "cat_warehouses")

	var queried []string
	tx := &fakeTx{
		queryRow: func(sql string, args []any) pgx.Row {
			queried = append(queried, sql)
			return &fakeRow{vals: []int64{3}}
		},
	}

	total, err := repo.CountEntityReferences(txContext(tx), id.New())
	if err != nil {
		t.Fatalf("CountEntityReferences failed: %v", err)
	}
	if total != 6 {
		t.Errorf("total = %d, want 6", total)
	}
	if len(queried) != 2 {
		t.Fatalf("queries = %d, want one per table", len(queried))
	}
	for i, table := range []string{"cat_products", "cat_warehouses"} {
		if !strings.Contains(queried[i], "FROM "+table) {
			t.Errorf("query %d targets wrong table:\n%s", i, queried[i])
		}
		if !strings.Contains(queried[i], "division_id = $") || !strings.Contains(queried[i], "active = $") {
			t.Errorf("query %d missing scoping predicates:\n%s", i, queried[i])
		}
	}
}

func TestCountEntityReferences_NoTables(t *testing.T) {
	repo := newRepo()

	tx := &fakeTx{
		queryRow: func(sql string, args []any) pgx.Row {
			t.Fatal("no tables registered, no queries expected")
			return nil
		},
	}

	total, err := repo.CountEntityReferences(txContext(tx), id.New())
	if err != nil || total != 0 {
		t.Fatalf("total = %d, err = %v; want 0, nil", total, err)
	}
}

func TestSoftDelete_ClearsDefaultFlag(t *testing.T) {
	repo := newRepo()
	actingUser := id.New()

	var gotSQL string
	var gotArgs []any
	tx := &fakeTx{
		exec: func(sql string, args []any) (pgconn.CommandTag, error) {
			gotSQL = sql
			gotArgs = args
			return pgconn.NewCommandTag("UPDATE 1"), nil
		},
	}

	if err := repo.SoftDelete(txContext(tx), id.New(), actingUser, "restructuring"); err != nil {
		t.Fatalf("SoftDelete failed: %v", err)
	}
	for _, fragment := range []string{"active = $", "is_default = $", "deleted_at = $", "deleted_by = $", "deletion_reason = $", "version = version + 1"} {
		if !strings.Contains(gotSQL, fragment) {
			t.Errorf("soft delete SQL missing %q:\n%s", fragment, gotSQL)
		}
	}

	// The acting user and reason must survive into the row.
	foundUser, foundReason := false, false
	for _, arg := range gotArgs {
		if arg == actingUser || arg == actingUser.String() {
			foundUser = true
		}
		if arg == "restructuring" {
			foundReason = true
		}
	}
	if !foundUser || !foundReason {
		t.Errorf("acting user / reason missing from args: %v", gotArgs)
	}
}
