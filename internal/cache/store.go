// Package cache keeps offline snapshots of tabular reads and stored JSON
// documents in an embedded SQLite database. The gateway itself stays
// cache-free; this layer is populated explicitly (the CLI's pull command)
// and read explicitly (--offline).
package cache

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // Pure Go SQLite driver, registers as "sqlite".
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Snapshot is one cached result: the payload as fetched, with its fetch time.
type Snapshot struct {
	Payload   json.RawMessage
	RowCount  int
	FetchedAt time.Time
}

// Store is the SQLite-backed snapshot store. Safe for concurrent use; the
// driver serializes writes and WAL mode keeps readers unblocked.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time

	saveTable  *sql.Stmt
	loadTable  *sql.Stmt
	saveObject *sql.Stmt
	loadObject *sql.Stmt
}

// Open opens (creating if needed) the snapshot database at dbPath, applies
// migrations, and prepares the repeated statements. Use ":memory:" in tests.
func Open(dbPath string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("cache: open sqlite: %w", err)
	}

	ctx := context.Background()

	if err := setPragmas(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	if err := runMigrations(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}

	s := &Store{db: db, logger: logger, now: time.Now}

	if err := s.prepareStatements(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("cache: prepare statements: %w", err)
	}

	logger.Debug("snapshot cache ready", slog.String("path", dbPath))

	return s, nil
}

// setPragmas configures SQLite for WAL mode and safety.
func setPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}

	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("cache: %s: %w", p, err)
		}
	}

	return nil
}

// runMigrations applies all pending schema migrations.
// Uses the goose v3 Provider API (no global state, context-aware).
func runMigrations(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	subFS, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("cache: creating migration sub-filesystem: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, db, subFS)
	if err != nil {
		return fmt.Errorf("cache: creating migration provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("cache: running migrations: %w", err)
	}

	for _, r := range results {
		logger.Debug("applied migration",
			slog.String("source", r.Source.Path),
			slog.Int64("duration_ms", r.Duration.Milliseconds()),
		)
	}

	return nil
}

func (s *Store) prepareStatements(ctx context.Context) error {
	var err error

	if s.saveTable, err = s.db.PrepareContext(ctx, `
		INSERT INTO table_snapshots (tbl, query, payload, row_count, fetched_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (tbl, query) DO UPDATE SET
			payload = excluded.payload,
			row_count = excluded.row_count,
			fetched_at = excluded.fetched_at`); err != nil {
		return err
	}

	if s.loadTable, err = s.db.PrepareContext(ctx, `
		SELECT payload, row_count, fetched_at FROM table_snapshots
		WHERE tbl = ? AND query = ?`); err != nil {
		return err
	}

	if s.saveObject, err = s.db.PrepareContext(ctx, `
		INSERT INTO object_snapshots (bucket, path, payload, fetched_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (bucket, path) DO UPDATE SET
			payload = excluded.payload,
			fetched_at = excluded.fetched_at`); err != nil {
		return err
	}

	if s.loadObject, err = s.db.PrepareContext(ctx, `
		SELECT payload, fetched_at FROM object_snapshots
		WHERE bucket = ? AND path = ?`); err != nil {
		return err
	}

	return nil
}

// SaveTable stores the snapshot of one tabular read, keyed by table name
// and the rendered querystring. Overwrites any previous snapshot for the
// same key.
func (s *Store) SaveTable(ctx context.Context, table, query string, payload json.RawMessage, rowCount int) error {
	if _, err := s.saveTable.ExecContext(ctx, table, query, string(payload), rowCount, s.now().Unix()); err != nil {
		return fmt.Errorf("cache: saving snapshot for %s: %w", table, err)
	}

	return nil
}

// LoadTable returns the last snapshot for the table/query key, if any.
func (s *Store) LoadTable(ctx context.Context, table, query string) (Snapshot, bool, error) {
	var (
		payload   string
		rowCount  int
		fetchedAt int64
	)

	err := s.loadTable.QueryRowContext(ctx, table, query).Scan(&payload, &rowCount, &fetchedAt)
	if err == sql.ErrNoRows {
		return Snapshot{}, false, nil
	}

	if err != nil {
		return Snapshot{}, false, fmt.Errorf("cache: loading snapshot for %s: %w", table, err)
	}

	return Snapshot{
		Payload:   json.RawMessage(payload),
		RowCount:  rowCount,
		FetchedAt: time.Unix(fetchedAt, 0),
	}, true, nil
}

// SaveObject stores the snapshot of one stored JSON document.
func (s *Store) SaveObject(ctx context.Context, bucket, path string, payload json.RawMessage) error {
	if _, err := s.saveObject.ExecContext(ctx, bucket, path, string(payload), s.now().Unix()); err != nil {
		return fmt.Errorf("cache: saving object %s/%s: %w", bucket, path, err)
	}

	return nil
}

// LoadObject returns the last snapshot of bucket/path, if any.
func (s *Store) LoadObject(ctx context.Context, bucket, path string) (Snapshot, bool, error) {
	var (
		payload   string
		fetchedAt int64
	)

	err := s.loadObject.QueryRowContext(ctx, bucket, path).Scan(&payload, &fetchedAt)
	if err == sql.ErrNoRows {
		return Snapshot{}, false, nil
	}

	if err != nil {
		return Snapshot{}, false, fmt.Errorf("cache: loading object %s/%s: %w", bucket, path, err)
	}

	return Snapshot{
		Payload:   json.RawMessage(payload),
		FetchedAt: time.Unix(fetchedAt, 0),
	}, true, nil
}

// Close releases the prepared statements and the database handle.
func (s *Store) Close() error {
	for _, stmt := range []*sql.Stmt{s.saveTable, s.loadTable, s.saveObject, s.loadObject} {
		if stmt != nil {
			_ = stmt.Close()
		}
	}

	return s.db.Close()
}
