package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // Register pgx as database/sql driver
	_ "modernc.org/sqlite"             // Register sqlite as database/sql driver

	"panel-runtime/internal/config"
)

var ErrNotFound = errors.New("not found")
var ErrUniqueViolation = errors.New("unique constraint violation")

// Querier is implemented by both *sql.DB and *sql.Tx.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Store is the runtime's own database. It holds page definitions, operators,
// saved table state and event traces, plus the tables that store-backed
// pages list and update.
type Store struct {
	DB      *sql.DB
	Dialect Dialect
}

// New opens the configured database and applies the per-driver connection
// settings.
func New(ctx context.Context, cfg config.DatabaseConfig) (*Store, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = "postgres"
	}
	dialect := NewDialect(driver)

	db, err := sql.Open(dialect.DriverName(), cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", dialect.Name(), err)
	}

	switch dialect.Name() {
	case "sqlite":
		err = configureSQLite(ctx, db, cfg.Name == ":memory:")
	default:
		configurePostgres(db, cfg.PoolSize)
	}
	if err == nil {
		err = db.PingContext(ctx)
	}
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("connect %s: %w", dialect.Name(), err)
	}
	return &Store{DB: db, Dialect: dialect}, nil
}

func configurePostgres(db *sql.DB, poolSize int) {
	if poolSize > 0 {
		db.SetMaxOpenConns(poolSize)
		db.SetMaxIdleConns(poolSize)
	}
}

// configureSQLite pins a single connection. Table state writes and store
// operation updates share it, and an in-memory database only lives as long
// as that connection.
func configureSQLite(ctx context.Context, db *sql.DB, inMemory bool) error {
	db.SetMaxOpenConns(1)
	if !inMemory {
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			return fmt.Errorf("enable WAL: %w", err)
		}
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys=ON"); err != nil {
		return fmt.Errorf("enable foreign keys: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() {
	if err := s.DB.Close(); err != nil {
		log.Printf("WARN: close %s store: %v", s.Dialect.Name(), err)
	}
}

// QueryRows executes a query and returns results as []map[string]any.
func QueryRows(ctx context.Context, q Querier, sqlStr string, args ...any) ([]map[string]any, error) {
	rows, err := q.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("get columns: %w", err)
	}

	var results []map[string]any
	values := make([]any, len(columns))
	ptrs := make([]any, len(columns))
	for i := range values {
		ptrs[i] = &values[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col] = normalizeValue(values[i])
		}
		results = append(results, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return results, nil
}

// QueryRow executes a query and returns a single row as map[string]any.
func QueryRow(ctx context.Context, q Querier, sqlStr string, args ...any) (map[string]any, error) {
	rows, err := QueryRows(ctx, q, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return rows[0], nil
}

// Exec executes a statement and returns the number of rows affected.
func Exec(ctx context.Context, q Querier, sqlStr string, args ...any) (int64, error) {
	result, err := q.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return 0, fmt.Errorf("exec: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

// MapError maps a database error to a well-known sentinel error using the store's dialect.
func MapError(dialect Dialect, err error) error {
	if err == nil {
		return nil
	}
	return dialect.MapError(err)
}

// textTimeLayouts are tried in order on byte-valued columns. The first is
// the layout date filters bind on SQLite; it also accepts a fractional part.
var textTimeLayouts = []string{
	"2006-01-02 15:04:05",
	time.RFC3339Nano,
}

// normalizeValue turns driver values into the plain values rows carry
// through the resolver, the evaluator and the JSON response.
func normalizeValue(v any) any {
	switch val := v.(type) {
	case []byte:
		s := string(val)
		for _, layout := range textTimeLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t
			}
		}
		return s
	case int32:
		return int64(val)
	case float32:
		return float64(val)
	default:
		return val
	}
}

// NormalizeRows applies the dialect's boolean fix to boolFields. On SQLite
// a BOOLEAN column comes back as 0/1, which row switches and boolean grid
// columns would otherwise render as numbers.
func NormalizeRows(d Dialect, rows []map[string]any, boolFields []string) {
	if d.NeedsBoolFix() {
		NormalizeBooleans(rows, boolFields)
	}
}

// NormalizeBooleans converts integer 0/1 values to bool for specified fields.
func NormalizeBooleans(rows []map[string]any, boolFields []string) {
	if len(boolFields) == 0 || len(rows) == 0 {
		return
	}
	boolSet := make(map[string]bool, len(boolFields))
	for _, f := range boolFields {
		boolSet[f] = true
	}
	for _, row := range rows {
		for k, v := range row {
			if !boolSet[k] {
				continue
			}
			switch val := v.(type) {
			case int64:
				row[k] = val != 0
			case int:
				row[k] = val != 0
			case float64:
				row[k] = val != 0
			}
		}
	}
}

func init() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
}
