package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	_ "embed"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/sheetmyself/internal/sheet"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Initial schema (pre-migration)
// 1 - Added index on revisions.digest
const currentSchemaVersion = 1

// DefaultKeep is how many revisions a SQLiteBackend retains.
const DefaultKeep = 10

// Revision describes one saved copy of the document.
type Revision struct {
	Rev     int64
	Digest  string
	Size    int
	SavedAt time.Time
}

// SQLiteBackend stores every save as a new revision row and prunes all but
// the newest Keep revisions in the same transaction.
type SQLiteBackend struct {
	db   *sql.DB
	keep int
	now  func() time.Time
}

// SQLiteOption configures a SQLiteBackend.
type SQLiteOption func(*SQLiteBackend)

// WithKeep sets how many revisions are retained (minimum 1).
func WithKeep(n int) SQLiteOption {
	return func(b *SQLiteBackend) {
		if n > 0 {
			b.keep = n
		}
	}
}

// withNow overrides the save timestamp source.
func withNow(now func() time.Time) SQLiteOption {
	return func(b *SQLiteBackend) { b.now = now }
}

// OpenSQLite creates or opens a SQLite database at the given path.
// Applies required pragmas and migrations automatically.
//
// This function is idempotent - safe to call multiple times.
func OpenSQLite(path string, opts ...SQLiteOption) (*SQLiteBackend, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	b := &SQLiteBackend{db: db, keep: DefaultKeep, now: time.Now}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Close closes the database connection.
func (b *SQLiteBackend) Close() error {
	if b.db == nil {
		return nil
	}
	return b.db.Close()
}

// Load returns the body of the newest revision.
// A body whose digest no longer matches is reported as a parse error
// wrapping ErrCorrupt.
func (b *SQLiteBackend) Load(ctx context.Context) ([]byte, error) {
	var (
		rev    int64
		body   []byte
		digest string
	)
	err := b.db.QueryRowContext(ctx, `
		SELECT rev, body, digest FROM revisions
		ORDER BY rev DESC
		LIMIT 1
	`).Scan(&rev, &body, &digest)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: no saved revisions", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read revision: %w", err)
	}

	if got := digestOf(body); got != digest {
		return nil, &sheet.ParseError{
			Message: fmt.Sprintf("revision %d digest mismatch: stored %s, computed %s", rev, digest, got),
			Err:     ErrCorrupt,
		}
	}
	return body, nil
}

// Save inserts a new revision and prunes old ones in one transaction.
func (b *SQLiteBackend) Save(ctx context.Context, data []byte) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save revision: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	_, err = tx.ExecContext(ctx, `
		INSERT INTO revisions (body, digest, size, saved_at)
		VALUES (?, ?, ?, ?)
	`,
		data,
		digestOf(data),
		len(data),
		b.now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("save revision: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		DELETE FROM revisions
		WHERE rev NOT IN (SELECT rev FROM revisions ORDER BY rev DESC LIMIT ?)
	`, b.keep)
	if err != nil {
		return fmt.Errorf("prune revisions: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("save revision: %w", err)
	}
	return nil
}

// Revisions lists retained revisions, newest first.
func (b *SQLiteBackend) Revisions(ctx context.Context) ([]Revision, error) {
	rows, err := b.db.QueryContext(ctx, `
		SELECT rev, digest, size, saved_at FROM revisions
		ORDER BY rev DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list revisions: %w", err)
	}
	defer rows.Close()

	var revs []Revision
	for rows.Next() {
		var (
			r       Revision
			savedAt string
		)
		if err := rows.Scan(&r.Rev, &r.Digest, &r.Size, &savedAt); err != nil {
			return nil, fmt.Errorf("scan revision: %w", err)
		}
		r.SavedAt, err = time.Parse(time.RFC3339Nano, savedAt)
		if err != nil {
			return nil, fmt.Errorf("revision %d: bad saved_at %q: %w", r.Rev, savedAt, err)
		}
		revs = append(revs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list revisions: %w", err)
	}
	return revs, nil
}

func digestOf(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema creates tables if they don't exist and runs migrations.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	if err := runMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// runMigrations applies incremental schema migrations based on user_version.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < 1 {
		if err := migrateToV1(db); err != nil {
			return err
		}
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}

	return nil
}

// migrateToV1 indexes revision digests so duplicate saves can be spotted.
func migrateToV1(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_revisions_digest
		ON revisions(digest)
	`)
	if err != nil {
		return fmt.Errorf("migrate to v1: %w", err)
	}
	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (b *SQLiteBackend) verifyPragma(name, expected string) error {
	var value string
	if err := b.db.QueryRow(fmt.Sprintf("PRAGMA %s", name)).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
