// Package sqlitedb reads and writes valuation records in a SQLite database.
package sqlitedb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/esvd-explorer/server/internal/data/table"
)

// DefaultTable is the table name used when none is configured.
const DefaultTable = "esvd_records"

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ErrInvalidIdentifier is returned for table or column names that cannot be quoted safely.
var ErrInvalidIdentifier = errors.New("invalid identifier")

// Options configures the record table.
type Options struct {
	Table   string
	Columns table.Columns
	// ReadOnly opens an existing database without creating or changing it.
	ReadOnly bool
}

// Store provides access to a records table in SQLite.
type Store struct {
	db    *sql.DB
	mu    sync.Mutex
	path  string
	table string
	cols  table.Columns
}

// NewStore opens (or creates) the SQLite database at dbPath. With
// Options.ReadOnly the file must already exist.
func NewStore(dbPath string, opts Options) (*Store, error) {
	name := opts.Table
	if name == "" {
		name = DefaultTable
	}
	cols := opts.Columns.WithDefaults()
	for _, ident := range append([]string{name}, cols.Names()...) {
		if !identPattern.MatchString(ident) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidIdentifier, ident)
		}
	}

	if opts.ReadOnly {
		if _, err := os.Stat(dbPath); err != nil {
			return nil, fmt.Errorf("failed to open sqlite: %w", err)
		}
		db, err := sql.Open("sqlite", "file:"+dbPath+"?mode=ro")
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite: %w", err)
		}
		return &Store{db: db, path: dbPath, table: name, cols: cols}, nil
	}

	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory for sqlite: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	return &Store{db: db, path: dbPath, table: name, cols: cols}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) columnList() string {
	names := s.cols.Names()
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = `"` + n + `"`
	}
	return strings.Join(quoted, ", ")
}

// Migrate creates the records table if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	c := s.cols
	schema := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS "%s" (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		"%s" TEXT,
		"%s" TEXT,
		"%s" TEXT,
		"%s" TEXT,
		"%s" REAL,
		"%s" TEXT,
		"%s" REAL,
		"%s" REAL,
		"%s" TEXT,
		"%s" TEXT
	);
	CREATE INDEX IF NOT EXISTS "idx_%s_biome" ON "%s"("%s");
	`, s.table,
		c.Biome, c.Ecozone, c.Ecosystem, c.Service, c.Value,
		c.StudyID, c.Latitude, c.Longitude, c.Country, c.ValuationMethod,
		s.table, s.table, c.Biome)

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Load reads every row of the records table and returns the cleaned table.
// Numeric columns stored as text are coerced the same way as flat files.
func (s *Store) Load(ctx context.Context) (*table.Table, error) {
	query := fmt.Sprintf(`SELECT %s FROM "%s"`, s.columnList(), s.table)
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", s.table, err)
	}
	defer rows.Close()

	n := len(s.cols.Names())
	values := make([]any, n)
	dest := make([]any, n)
	for i := range values {
		dest[i] = &values[i]
	}
	cells := make([]string, n)

	var raws []table.RawRecord
	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		for i, v := range values {
			cells[i] = cellString(v)
		}
		raws = append(raws, table.RawFromCells(cells))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return table.FromRaw(s.path+"#"+s.table, raws), nil
}

// Import inserts records into the table in a single transaction.
func (s *Store) Import(ctx context.Context, records []table.Record) error {
	if err := s.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to migrate: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		`INSERT INTO "%s" (%s) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, s.table, s.columnList()))
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range records {
		if _, err := stmt.ExecContext(ctx,
			r.Biome, r.Ecozone, r.Ecosystem, r.Service, r.Value,
			r.StudyID, r.Latitude, r.Longitude, r.Country, r.ValuationMethod,
		); err != nil {
			return fmt.Errorf("failed to insert study %s: %w", r.StudyID, err)
		}
	}
	return tx.Commit()
}

func cellString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		if x {
			return "1"
		}
		return "0"
	default:
		return fmt.Sprint(x)
	}
}
