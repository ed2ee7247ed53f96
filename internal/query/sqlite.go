package query

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/rescale/livelist/internal/models"
)

var (
	// ErrMissingKind is returned when a SQLite request names no table.
	ErrMissingKind = errors.New("request names no record kind")
	// ErrInvalidIdentifier is returned for table or column names that are
	// not plain identifiers.
	ErrInvalidIdentifier = errors.New("invalid identifier")
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SQLite reads records from tables of a SQLite database. The first request
// kind names the table; Detail is an optional comma list of columns.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens the database at path.
func OpenSQLite(path string) (*SQLite, error) {
	// modernc.org/sqlite driver name is "sqlite".
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to configure sqlite database: %w", err)
	}
	return &SQLite{db: db}, nil
}

// DB returns the underlying database handle.
func (s *SQLite) DB() *sql.DB {
	return s.db
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// Query selects the matching rows of the requested table. Rows keep rowid
// order unless OrderBy names a column. Each record's ref is
// sqlite://table/rowid.
func (s *SQLite) Query(ctx context.Context, req Request) ([]models.Record, error) {
	if req.Expr.IsFalse() {
		return nil, nil
	}

	stmt, args, err := buildSelect(req)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", req.Kinds[0], err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}

	var records []models.Record
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		fields := make(map[string]any, len(cols)-1)
		for i := 1; i < len(cols); i++ {
			v := values[i]
			if b, ok := v.([]byte); ok {
				v = string(b)
			}
			fields[cols[i]] = v
		}
		ref := fmt.Sprintf("sqlite://%s/%s", req.Kinds[0], models.ValueString(values[0]))
		records = append(records, models.NewRecord(ref, fields))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}
	return records, nil
}

// buildSelect renders the request as a SELECT whose first column is the
// rowid.
func buildSelect(req Request) (string, []any, error) {
	if len(req.Kinds) == 0 || req.Kinds[0] == "" {
		return "", nil, ErrMissingKind
	}
	table := req.Kinds[0]
	if err := checkIdentifier(table); err != nil {
		return "", nil, err
	}

	cols := "*"
	if detail := strings.TrimSpace(req.Detail); detail != "" && detail != "*" {
		var quoted []string
		for _, c := range strings.Split(detail, ",") {
			c = strings.TrimSpace(c)
			if err := checkIdentifier(c); err != nil {
				return "", nil, err
			}
			quoted = append(quoted, quote(c))
		}
		cols = strings.Join(quoted, ", ")
	}

	where, args, err := compileExpr(req.Expr)
	if err != nil {
		return "", nil, err
	}

	order := "rowid"
	if req.OrderBy != "" {
		if err := checkIdentifier(req.OrderBy); err != nil {
			return "", nil, err
		}
		order = quote(req.OrderBy) + ", rowid"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT rowid, %s FROM %s WHERE %s ORDER BY %s", cols, quote(table), where, order)
	switch {
	case req.Limit > 0:
		b.WriteString(" LIMIT ?")
		args = append(args, req.Limit)
	case req.Offset > 0:
		b.WriteString(" LIMIT -1")
	}
	if req.Offset > 0 {
		b.WriteString(" OFFSET ?")
		args = append(args, req.Offset)
	}
	return b.String(), args, nil
}

// compileExpr renders a filter expression as a WHERE clause.
func compileExpr(e models.Expr) (string, []any, error) {
	switch e.Op() {
	case models.OpAll:
		return "1=1", nil, nil
	case models.OpFalse:
		return "1=0", nil, nil
	case models.OpEq:
		if err := checkIdentifier(e.Field()); err != nil {
			return "", nil, err
		}
		if e.Value() == nil {
			return quote(e.Field()) + " IS NULL", nil, nil
		}
		return quote(e.Field()) + " = ?", []any{e.Value()}, nil
	case models.OpAnd:
		var parts []string
		var args []any
		for _, arg := range e.Args() {
			clause, a, err := compileExpr(arg)
			if err != nil {
				return "", nil, err
			}
			parts = append(parts, "("+clause+")")
			args = append(args, a...)
		}
		return strings.Join(parts, " AND "), args, nil
	default:
		return "", nil, fmt.Errorf("unsupported expression op %q", e.Op())
	}
}

func checkIdentifier(name string) error {
	if !identifierPattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidIdentifier, name)
	}
	return nil
}

func quote(name string) string {
	return `"` + name + `"`
}
