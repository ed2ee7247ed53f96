package query

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rescale/livelist/internal/models"
)

func seededSQLite(t *testing.T) *SQLite {
	t.Helper()

	db, err := OpenSQLite(filepath.Join(t.TempDir(), "music.db"))
	if err != nil {
		t.Fatalf("OpenSQLite failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	stmts := []string{
		`CREATE TABLE albums (id TEXT PRIMARY KEY, artist TEXT, title TEXT, year INTEGER, done REAL)`,
		`INSERT INTO albums VALUES ('1', 'Miles Davis', 'Kind of Blue', 1959, 100)`,
		`INSERT INTO albums VALUES ('2', 'John Coltrane', 'Blue Train', 1957, 40.5)`,
		`INSERT INTO albums VALUES ('3', 'Miles Davis', 'Bitches Brew', 1970, NULL)`,
	}
	for _, stmt := range stmts {
		if _, err := db.DB().Exec(stmt); err != nil {
			t.Fatalf("failed to seed database: %v", err)
		}
	}
	return db
}

func TestSQLite_Query(t *testing.T) {
	db := seededSQLite(t)
	ctx := context.Background()

	tests := []struct {
		name string
		req  Request
		want []string
	}{
		{"all", Request{Expr: models.All(), Kinds: []string{"albums"}}, []string{"1", "2", "3"}},
		{"eq", Request{Expr: models.Eq("artist", "Miles Davis"), Kinds: []string{"albums"}}, []string{"1", "3"}},
		{"and", Request{Expr: models.And(models.Eq("artist", "Miles Davis"), models.Eq("year", 1970)), Kinds: []string{"albums"}}, []string{"3"}},
		{"is null", Request{Expr: models.Eq("done", nil), Kinds: []string{"albums"}}, []string{"3"}},
		{"false", Request{Expr: models.False(), Kinds: []string{"albums"}}, []string{}},
		{"order by", Request{Expr: models.All(), Kinds: []string{"albums"}, OrderBy: "year"}, []string{"2", "1", "3"}},
		{"limit", Request{Expr: models.All(), Kinds: []string{"albums"}, Limit: 2}, []string{"1", "2"}},
		{"offset only", Request{Expr: models.All(), Kinds: []string{"albums"}, Offset: 2}, []string{"3"}},
		{"offset and limit", Request{Expr: models.All(), Kinds: []string{"albums"}, Offset: 1, Limit: 1}, []string{"2"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records, err := db.Query(ctx, tt.req)
			if err != nil {
				t.Fatalf("Query failed: %v", err)
			}
			if got := ids(records); !equalStrings(got, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestSQLite_RecordShape(t *testing.T) {
	db := seededSQLite(t)

	records, err := db.Query(context.Background(), Request{
		Expr:   models.Eq("id", "2"),
		Kinds:  []string{"albums"},
		Detail: "id, title",
	})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}

	r := records[0]
	if !strings.HasPrefix(r.Ref, "sqlite://albums/") {
		t.Errorf("unexpected ref %s", r.Ref)
	}
	if len(r.Fields) != 2 || r.Fields["title"] != "Blue Train" {
		t.Errorf("expected only id and title, got %v", r.Fields)
	}
	if id, err := r.Identity("id"); err != nil || id != "2" {
		t.Errorf("expected identity 2, got %q %v", id, err)
	}
}

func TestSQLite_RejectsBadRequests(t *testing.T) {
	db := seededSQLite(t)
	ctx := context.Background()

	if _, err := db.Query(ctx, Request{Expr: models.All()}); !errors.Is(err, ErrMissingKind) {
		t.Errorf("expected ErrMissingKind, got %v", err)
	}

	bad := []Request{
		{Expr: models.All(), Kinds: []string{"albums; DROP TABLE albums"}},
		{Expr: models.Eq("title = title OR 1", 1), Kinds: []string{"albums"}},
		{Expr: models.All(), Kinds: []string{"albums"}, OrderBy: "year DESC"},
		{Expr: models.All(), Kinds: []string{"albums"}, Detail: "id, *"},
	}
	for _, req := range bad {
		if _, err := db.Query(ctx, req); !errors.Is(err, ErrInvalidIdentifier) {
			t.Errorf("expected ErrInvalidIdentifier for %+v, got %v", req, err)
		}
	}
}

func TestCompileExpr(t *testing.T) {
	where, args, err := compileExpr(models.And(models.Eq("a", 1), models.Eq("b", nil)))
	if err != nil {
		t.Fatalf("compileExpr failed: %v", err)
	}
	if where != `("a" = ?) AND ("b" IS NULL)` {
		t.Errorf("unexpected clause %s", where)
	}
	if len(args) != 1 || args[0] != 1 {
		t.Errorf("unexpected args %v", args)
	}
}
