// Package ledger provides the SQLite implementation of the publish
// history port.
package ledger

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"sort"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/courseops/mimeo/ports"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store implements ports.Ledger using SQLite.
type Store struct {
	db *sql.DB
}

// Open creates a new SQLite-backed ledger at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}

	// Set pragmas for performance
	pragmas := []string{
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("set pragma: %w", err)
		}
	}

	return &Store{db: db}, nil
}

// Migrate runs all pending migrations.
func (s *Store) Migrate() error {
	// Create migrations table if not exists
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	// Get applied migrations
	applied := make(map[string]bool)
	rows, err := s.db.Query("SELECT version FROM schema_migrations")
	if err != nil {
		return fmt.Errorf("query migrations: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return fmt.Errorf("scan migration: %w", err)
		}
		applied[version] = true
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	var migrations []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			migrations = append(migrations, entry.Name())
		}
	}
	sort.Strings(migrations)

	for _, name := range migrations {
		version := strings.TrimSuffix(name, ".sql")
		if applied[version] {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}

		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("execute migration %s: %w", name, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %s: %w", name, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", name, err)
		}
	}

	return nil
}

// BeginRun stores a new run with only its start fields set.
func (s *Store) BeginRun(ctx context.Context, run ports.Run) error {
	// Timestamps are stored in UTC for consistent querying.
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO runs (id, started_at) VALUES (?, ?)",
		run.ID, run.StartedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("begin run: %w", err)
	}
	return nil
}

// FinishRun fills in the outcome of a previously begun run.
func (s *Store) FinishRun(ctx context.Context, run ports.Run) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE runs
		SET finished_at = ?, succeeded = ?, collections = ?, publications = ?, artifacts = ?, error = ?
		WHERE id = ?
	`, run.FinishedAt.UTC(), run.Succeeded, run.Collections, run.Publications, run.Artifacts, run.Error, run.ID)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("finish run: run %q was never begun", run.ID)
	}
	return nil
}

// RecordArtifact stores a published artifact.
func (s *Store) RecordArtifact(ctx context.Context, rec ports.ArtifactRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO published_artifacts (run_id, collection, publication, artifact, path, digest, bytes, published_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.RunID, rec.Collection, rec.Publication, rec.Artifact, rec.Path, rec.Digest, rec.Bytes, rec.PublishedAt.UTC())
	if err != nil {
		return fmt.Errorf("record artifact: %w", err)
	}
	return nil
}

// LastDigest returns the digest the artifact carried the last time it
// was published, or "" if it never was.
func (s *Store) LastDigest(ctx context.Context, collection, publication, artifact string) (string, error) {
	var digest string
	err := s.db.QueryRowContext(ctx, `
		SELECT digest FROM published_artifacts
		WHERE collection = ? AND publication = ? AND artifact = ?
		ORDER BY published_at DESC, rowid DESC
		LIMIT 1
	`, collection, publication, artifact).Scan(&digest)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("last digest: %w", err)
	}
	return digest, nil
}

// Runs returns the most recent runs, newest first.
func (s *Store) Runs(ctx context.Context, limit int) ([]ports.Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, started_at, finished_at, succeeded, collections, publications, artifacts, error
		FROM runs
		ORDER BY started_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []ports.Run
	for rows.Next() {
		var run ports.Run
		var finished sql.NullTime
		err := rows.Scan(
			&run.ID, &run.StartedAt, &finished, &run.Succeeded,
			&run.Collections, &run.Publications, &run.Artifacts, &run.Error,
		)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if finished.Valid {
			run.FinishedAt = finished.Time
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ensure interface compliance.
var _ ports.Ledger = (*Store)(nil)
