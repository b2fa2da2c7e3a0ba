package entity_repo

import (
	"testing"

	"github.com/Masterminds/squirrel"

	"registra/internal/domain/scope"
)

func TestApplyScope(t *testing.T) {
	base := squirrel.StatementBuilder.
		PlaceholderFormat(squirrel.Dollar).
		Select("id").
		From("test_entities")

	tests := []struct {
		name     string
		mode     scope.Mode
		wantSQL  string
		wantArgs int
	}{
		{
			name:     "active only",
			mode:     scope.ActiveOnly,
			wantSQL:  "SELECT id FROM test_entities WHERE active = $1",
			wantArgs: 1,
		},
		{
			name:     "deleted only",
			mode:     scope.DeletedOnly,
			wantSQL:  "SELECT id FROM test_entities WHERE active = $1",
			wantArgs: 1,
		},
		{
			name:     "all",
			mode:     scope.All,
			wantSQL:  "SELECT id FROM test_entities",
			wantArgs: 0,
		},
		{
			name:     "zero mode defaults to active",
			mode:     "",
			wantSQL:  "SELECT id FROM test_entities WHERE active = $1",
			wantArgs: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, args, err := ApplyScope(base, tt.mode).ToSql()
			if err != nil {
				t.Fatalf("ToSql failed: %v", err)
			}
			if sql != tt.wantSQL {
				t.Errorf("SQL mismatch\nwant: %s\ngot:  %s", tt.wantSQL, sql)
			}
			if len(args) != tt.wantArgs {
				t.Errorf("args count = %d, want %d", len(args), tt.wantArgs)
			}
		})
	}
}

func TestApplyScope_PreservesExistingPredicates(t *testing.T) {
	base := squirrel.StatementBuilder.
		PlaceholderFormat(squirrel.Dollar).
		Select("id").
		From("test_entities").
		Where(squirrel.Eq{"code": "X"})

	sql, args, err := ApplyScope(base, scope.ActiveOnly).ToSql()
	if err != nil {
		t.Fatalf("ToSql failed: %v", err)
	}

	want := "SELECT id FROM test_entities WHERE code = $1 AND active = $2"
	if sql != want {
		t.Errorf("SQL mismatch\nwant: %s\ngot:  %s", want, sql)
	}
	if len(args) != 2 {
		t.Errorf("args count = %d, want 2", len(args))
	}
}

func TestApplyScope_DeletedOnlyArg(t *testing.T) {
	base := squirrel.StatementBuilder.
		PlaceholderFormat(squirrel.Dollar).
		Select("id").
		From("test_entities")

	_, args, err := ApplyScope(base, scope.DeletedOnly).ToSql()
	if err != nil {
		t.Fatalf("ToSql failed: %v", err)
	}
	if len(args) != 1 || args[0] != false {
		t.Errorf("DeletedOnly must bind active=false, got %v", args)
	}
}
