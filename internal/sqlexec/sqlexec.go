// Package sqlexec runs compiled Pine queries against a local database
// instead of the compiler server's connection. Expressions are still built
// remotely; only execution happens here.
package sqlexec

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/bawdo/pine/client"
	"github.com/bawdo/pine/expr"
	"github.com/bawdo/pine/plugins"
)

var driverName = map[string]string{
	"postgres": "pgx",
	"mysql":    "mysql",
	"sqlite":   "sqlite",
}

// MaxRows caps the rows read from one query.
const MaxRows = 1000

// Engines returns the supported engine names.
func Engines() []string {
	out := make([]string, 0, len(driverName))
	for e := range driverName {
		out = append(out, e)
	}
	slices.Sort(out)
	return out
}

// DB is an open local database.
type DB struct {
	db     *sql.DB
	dsn    string
	engine string
}

// Open connects to the database at dsn using engine ("postgres", "mysql" or
// "sqlite").
func Open(ctx context.Context, engine, dsn string) (*DB, error) {
	driver, ok := driverName[engine]
	if !ok {
		return nil, fmt.Errorf("sqlexec: no driver for engine %q", engine)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlexec: open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlexec: ping: %w", err)
	}
	return &DB{db: db, dsn: dsn, engine: engine}, nil
}

// Close closes the connection pool.
func (d *DB) Close() error {
	return d.db.Close()
}

// Engine returns the engine name.
func (d *DB) Engine() string { return d.engine }

// String describes the connection with any password masked.
func (d *DB) String() string {
	return d.engine + " " + SanitizeDSN(d.dsn)
}

// Exec runs a statement that returns no rows.
func (d *DB) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := d.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("sqlexec: exec: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return n, nil
}

// Query runs query and returns header-first rows. NULL values are nil; all
// other values are returned as strings. truncated reports that more than
// MaxRows rows were available.
func (d *DB) Query(ctx context.Context, query string, args ...any) (rows client.Rows, truncated bool, err error) {
	r, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, false, fmt.Errorf("sqlexec: query: %w", err)
	}
	defer func() { _ = r.Close() }()

	columns, err := r.Columns()
	if err != nil {
		return nil, false, fmt.Errorf("sqlexec: columns: %w", err)
	}
	header := make([]any, len(columns))
	for i, c := range columns {
		header[i] = c
	}
	rows = append(rows, header)

	for r.Next() {
		if len(rows)-1 >= MaxRows {
			truncated = true
			break
		}
		vals := make([]sql.NullString, len(columns))
		ptrs := make([]any, len(columns))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := r.Scan(ptrs...); err != nil {
			return nil, false, fmt.Errorf("sqlexec: scan: %w", err)
		}
		row := make([]any, len(columns))
		for i, v := range vals {
			if v.Valid {
				row[i] = v.String
			}
		}
		rows = append(rows, row)
	}
	if err := r.Err(); err != nil {
		return nil, false, fmt.Errorf("sqlexec: rows: %w", err)
	}
	return rows, truncated, nil
}

// Tables lists the user tables of the connected database.
func (d *DB) Tables(ctx context.Context) ([]string, error) {
	var query string
	switch d.engine {
	case "postgres":
		query = "SELECT table_name FROM information_schema.tables WHERE table_schema = 'public' ORDER BY table_name"
	case "mysql":
		query = "SELECT table_name FROM information_schema.tables WHERE table_schema = DATABASE() ORDER BY table_name"
	case "sqlite":
		query = "SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name"
	default:
		return nil, fmt.Errorf("sqlexec: unsupported engine: %s", d.engine)
	}
	rows, _, err := d.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(rows)-1)
	for _, r := range rows[1:] {
		out = append(out, fmt.Sprint(r[0]))
	}
	return out, nil
}

// Builder is the part of the compiler the evaluator needs.
type Builder interface {
	Build(ctx context.Context, e string) (*client.BuildResult, error)
	ChildExpressions(ctx context.Context, e string) (*client.Children, error)
	DeleteQuery(ctx context.Context, e string, limit int) (string, error)
}

// Evaluator builds expressions with the compiler and runs the resulting SQL
// on a local database. It satisfies plugins.Backend.
type Evaluator struct {
	Builder
	DB *DB
}

var _ plugins.Backend = (*Evaluator)(nil)

// NewEvaluator returns an evaluator executing on db.
func NewEvaluator(b Builder, db *DB) *Evaluator {
	return &Evaluator{Builder: b, DB: db}
}

// Evaluate builds e and executes its SQL locally. Database errors are
// reported as *client.EvalFailure with the driver's message.
func (ev *Evaluator) Evaluate(ctx context.Context, e string) (client.Rows, error) {
	res, err := ev.Build(ctx, e)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(res.Query) == "" {
		return nil, &client.EvalFailure{Message: "expression compiled to an empty query", Type: client.TypeEval}
	}
	rows, _, err := ev.DB.Query(ctx, res.Query)
	if err != nil {
		return nil, &client.EvalFailure{Message: unwrapMessage(err), Type: client.TypeEval}
	}
	return rows, nil
}

// Count returns the number of rows e selects, counted locally.
func (ev *Evaluator) Count(ctx context.Context, e string) (int, error) {
	rows, err := ev.Evaluate(ctx, expr.CountOf(e))
	if err != nil {
		return 0, err
	}
	return client.CountCell(rows)
}

// unwrapMessage returns the driver's own message without this package's prefix.
func unwrapMessage(err error) string {
	if inner := errors.Unwrap(err); inner != nil {
		return inner.Error()
	}
	return err.Error()
}

// SanitizeDSN masks the password in a DSN for display.
func SanitizeDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err == nil && u.Scheme != "" && u.User != nil {
		if _, hasPass := u.User.Password(); hasPass {
			masked := u.Scheme + "://" + u.User.Username() + ":****@" + u.Host + u.Path
			if u.RawQuery != "" {
				masked += "?" + u.RawQuery
			}
			return masked
		}
		return dsn
	}

	// MySQL style: user:pass@tcp(host)/db
	if at := strings.Index(dsn, "@"); at > 0 {
		userPass := dsn[:at]
		if colon := strings.Index(userPass, ":"); colon >= 0 {
			return userPass[:colon+1] + "****" + dsn[at:]
		}
	}
	return dsn
}
