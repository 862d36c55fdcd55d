package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/torcheck/internal/model"
)

// FileName is the database file created inside the data directory.
const FileName = "torcheck.db"

// timeLayout is fixed width so that text ordering matches time ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// CheckDB stores check results.
type CheckDB struct {
	db     *sql.DB
	dbPath string
}

// Options configures Open.
type Options struct {
	// CreateIfNotExists creates the directory and database file when
	// missing. When false, Open fails with ErrDatabaseNotFound instead.
	CreateIfNotExists bool

	// EnableWAL switches the journal to write-ahead logging.
	EnableWAL bool
}

// DefaultOptions returns the options used by the CLI when saving.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens the database in dbDir.
func Open(dbDir string, opts Options) (*CheckDB, error) {
	dbPath := filepath.Join(dbDir, FileName)

	dsn := dbPath + "?mode=rw"
	if opts.CreateIfNotExists {
		if err := os.MkdirAll(dbDir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		dsn = dbPath + "?mode=rwc"
	} else if _, err := os.Stat(dbPath); errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrDatabaseNotFound, dbPath)
	} else if err != nil {
		return nil, fmt.Errorf("failed to check database path: %w", err)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	cdb := &CheckDB{db: db, dbPath: dbPath}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := cdb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return cdb, nil
}

// Path returns the database file path.
func (cdb *CheckDB) Path() string {
	return cdb.dbPath
}

// Close closes the database.
func (cdb *CheckDB) Close() error {
	return cdb.db.Close()
}

func (cdb *CheckDB) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS checks (
		id TEXT PRIMARY KEY,
		method TEXT NOT NULL,
		endpoint TEXT NOT NULL,
		proxy TEXT,
		checked_at TEXT NOT NULL,
		duration_ns INTEGER NOT NULL,
		using_tor INTEGER NOT NULL,
		outcome TEXT NOT NULL,
		ip TEXT,
		attempts INTEGER NOT NULL DEFAULT 1,
		error TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_checks_checked_at ON checks(checked_at);
	CREATE INDEX IF NOT EXISTS idx_checks_method ON checks(method, checked_at);
	`
	_, err := cdb.db.ExecContext(context.Background(), schema)
	return err
}

// SaveResult stores r. Saving a result with an existing ID replaces it.
func (cdb *CheckDB) SaveResult(ctx context.Context, r *model.CheckResult) error {
	query := `
		INSERT OR REPLACE INTO checks
			(id, method, endpoint, proxy, checked_at, duration_ns, using_tor, outcome, ip, attempts, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := cdb.db.ExecContext(ctx, query,
		r.ID,
		r.Method,
		r.Endpoint,
		r.Proxy,
		r.CheckedAt.UTC().Format(timeLayout),
		int64(r.Duration),
		r.UsingTor,
		r.Outcome.String(),
		r.IP,
		r.Attempts,
		r.Error,
	)
	if err != nil {
		return fmt.Errorf("failed to save check %s: %w", r.ID, err)
	}
	return nil
}

// History returns up to limit results, newest first. A limit of zero or
// less returns every stored result.
func (cdb *CheckDB) History(ctx context.Context, limit int) ([]*model.CheckResult, error) {
	query := selectColumns + ` ORDER BY checked_at DESC, id`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := cdb.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var results []*model.CheckResult
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// Latest returns the newest result for method, or ErrNotFound.
func (cdb *CheckDB) Latest(ctx context.Context, method string) (*model.CheckResult, error) {
	query := selectColumns + ` WHERE method = ? ORDER BY checked_at DESC LIMIT 1`

	r, err := scanResult(cdb.db.QueryRowContext(ctx, query, method))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w for method %q", ErrNotFound, method)
	}
	return r, err
}

const selectColumns = `
	SELECT id, method, endpoint, proxy, checked_at, duration_ns, using_tor, outcome, ip, attempts, error
	FROM checks`

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanResult(row rowScanner) (*model.CheckResult, error) {
	var (
		r          model.CheckResult
		proxy      sql.NullString
		checkedAt  string
		durationNs int64
		outcome    string
		ip         sql.NullString
		errText    sql.NullString
	)
	err := row.Scan(
		&r.ID,
		&r.Method,
		&r.Endpoint,
		&proxy,
		&checkedAt,
		&durationNs,
		&r.UsingTor,
		&outcome,
		&ip,
		&r.Attempts,
		&errText,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan check: %w", err)
	}

	r.CheckedAt, err = time.Parse(timeLayout, checkedAt)
	if err != nil {
		return nil, fmt.Errorf("invalid checked_at %q: %w", checkedAt, err)
	}
	if err := r.Outcome.UnmarshalText([]byte(outcome)); err != nil {
		return nil, err
	}
	r.Duration = time.Duration(durationNs)
	r.Proxy = proxy.String
	r.IP = ip.String
	r.Error = errText.String
	return &r, nil
}
