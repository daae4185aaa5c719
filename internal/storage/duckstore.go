package storage

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/marcboeker/go-duckdb"
	"github.com/pid-editor/backend/internal/models"
	"go.uber.org/zap"
)

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// DuckOptions tunes the DuckDB connection.
type DuckOptions struct {
	Threads     int
	MemoryLimit string
	Logger      *zap.Logger
}

// DuckDB is one DuckDB database file. Each table in it is exposed as a DuckStore.
type DuckDB struct {
	db     *sql.DB
	path   string
	logger *zap.Logger

	mu     sync.Mutex
	tables map[string]*DuckStore
}

// OpenDuckDB opens (or creates) a DuckDB file at path.
func OpenDuckDB(path string, opts DuckOptions) (*DuckDB, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	pragmas := []string{"PRAGMA enable_progress_bar=false"}
	if opts.MemoryLimit != "" {
		pragmas = append(pragmas, fmt.Sprintf("PRAGMA memory_limit='%s'", strings.ReplaceAll(opts.MemoryLimit, "'", "")))
	}
	if opts.Threads > 0 {
		pragmas = append(pragmas, fmt.Sprintf("PRAGMA threads=%d", opts.Threads))
	}

	connector, err := duckdb.NewConnector(path, func(execer driver.ExecerContext) error {
		for _, pragma := range pragmas {
			if _, err := execer.ExecContext(context.Background(), pragma, nil); err != nil {
				logger.Warn("duckdb pragma failed", zap.String("pragma", pragma), zap.Error(err))
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create DuckDB connector: %w", err)
	}

	logger.Info("duckdb opened", zap.String("path", path))
	return &DuckDB{
		db:     sql.OpenDB(connector),
		path:   path,
		logger: logger,
		tables: make(map[string]*DuckStore),
	}, nil
}

// Path returns the database file path.
func (d *DuckDB) Path() string {
	return d.path
}

// Table returns the store for a table, creating the table on first use.
func (d *DuckDB) Table(ctx context.Context, name string) (*DuckStore, error) {
	if !tableNamePattern.MatchString(name) {
		return nil, fmt.Errorf("invalid table name %q", name)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if s, ok := d.tables[name]; ok {
		return s, nil
	}

	stmts := []string{
		fmt.Sprintf(`CREATE SEQUENCE IF NOT EXISTS %s_seq`, name),
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				id           VARCHAR PRIMARY KEY,
				fields       VARCHAR NOT NULL,
				created_time VARCHAR NOT NULL,
				ord          BIGINT DEFAULT nextval('%s_seq')
			)`, name, name),
	}
	for _, stmt := range stmts {
		if _, err := d.db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("creating table %s: %w", name, err)
		}
	}

	s := &DuckStore{db: d.db, table: name, now: time.Now}
	d.tables[name] = s
	return s, nil
}

// Close closes the database.
func (d *DuckDB) Close() error {
	return d.db.Close()
}

// DuckStore implements Store over one DuckDB table with the field bag stored as JSON.
type DuckStore struct {
	db    *sql.DB
	table string
	now   func() time.Time
}

// List returns all records in insertion order.
func (s *DuckStore) List(ctx context.Context) ([]models.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT id, fields, created_time FROM %s ORDER BY ord`, s.table))
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", s.table, err)
	}
	defer rows.Close()

	var records []models.Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing %s: %w", s.table, err)
	}
	return records, nil
}

// Get retrieves a record by id.
func (s *DuckStore) Get(ctx context.Context, id string) (models.Record, error) {
	row := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT id, fields, created_time FROM %s WHERE id = ?`, s.table), id)
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Record{}, fmt.Errorf("get %s: %w", id, ErrNotFound)
	}
	return r, err
}

// Create inserts a new record under a fresh id.
func (s *DuckStore) Create(ctx context.Context, fields map[string]any) (models.Record, error) {
	rec := models.Record{
		ID:          uuid.New().String(),
		Fields:      mergeFields(nil, fields),
		CreatedTime: s.now().UTC().Format(time.RFC3339Nano),
	}
	data, err := json.Marshal(rec.Fields)
	if err != nil {
		return models.Record{}, fmt.Errorf("encoding fields: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %s (id, fields, created_time) VALUES (?, ?, ?)`, s.table),
		rec.ID, string(data), rec.CreatedTime)
	if err != nil {
		return models.Record{}, fmt.Errorf("inserting into %s: %w", s.table, err)
	}
	return rec, nil
}

// Update merges fields into an existing record.
func (s *DuckStore) Update(ctx context.Context, id string, fields map[string]any) (models.Record, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return models.Record{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT id, fields, created_time FROM %s WHERE id = ?`, s.table), id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Record{}, fmt.Errorf("update %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return models.Record{}, err
	}

	rec.Fields = mergeFields(rec.Fields, fields)
	data, err := json.Marshal(rec.Fields)
	if err != nil {
		return models.Record{}, fmt.Errorf("encoding fields: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf(`UPDATE %s SET fields = ? WHERE id = ?`, s.table), string(data), id); err != nil {
		return models.Record{}, fmt.Errorf("updating %s: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return models.Record{}, fmt.Errorf("commit: %w", err)
	}
	return rec, nil
}

// Delete removes a record.
func (s *DuckStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, s.table), id)
	if err != nil {
		return fmt.Errorf("deleting %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("delete %s: %w", id, ErrNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (models.Record, error) {
	var (
		rec  models.Record
		data string
	)
	if err := row.Scan(&rec.ID, &data, &rec.CreatedTime); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Record{}, err
		}
		return models.Record{}, fmt.Errorf("scanning record: %w", err)
	}

	dec := json.NewDecoder(strings.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&rec.Fields); err != nil {
		return models.Record{}, fmt.Errorf("decoding fields of %s: %w", rec.ID, err)
	}
	if rec.Fields == nil {
		rec.Fields = make(map[string]any)
	}
	return rec, nil
}

var _ Store = (*DuckStore)(nil)
