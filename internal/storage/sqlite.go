package storage

import (
	"bytes"
	"database/sql"
	"embed"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps a SQLite database holding the result cache and the query log.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database in dataDir and runs pending
// migrations. Pass ":memory:" as dataDir for an in-memory database (used by
// tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "parlq.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	// Set busy timeout so concurrent access waits briefly instead of failing immediately.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate reads embedded SQL migration files and applies any that haven't been run yet.
func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}

		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}

	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// AppliedMigrations returns the list of applied migration versions in ascending order.
func (s *Store) AppliedMigrations() ([]int, error) {
	rows, err := s.db.Query("SELECT version FROM schema_version ORDER BY version ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// --- Result cache ---

// CacheGet returns the payload for key if present and fresh. Immutable
// entries never expire; mutable entries older than ttl are treated as
// misses.
func (s *Store) CacheGet(key string, ttl time.Duration) ([]byte, bool, error) {
	var payload []byte
	var immutable bool
	var fetchedAt string
	err := s.db.QueryRow(
		"SELECT payload, immutable, fetched_at FROM cache_entries WHERE key = ?", key,
	).Scan(&payload, &immutable, &fetchedAt)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	if !immutable {
		t, err := time.Parse(time.RFC3339, fetchedAt)
		if err != nil {
			return nil, false, fmt.Errorf("parsing fetched_at: %w", err)
		}
		if ttl > 0 && time.Since(t) > ttl {
			return nil, false, nil
		}
	}
	return payload, true, nil
}

// CachePut stores a payload under key. For an immutable key that already
// holds a different payload the write is refused and the mismatch logged as
// a consistency fault; a write with identical payload is a no-op.
func (s *Store) CachePut(key string, payload []byte, immutable bool) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning cache transaction: %w", err)
	}
	defer tx.Rollback()

	var existing []byte
	var existingImmutable bool
	err = tx.QueryRow("SELECT payload, immutable FROM cache_entries WHERE key = ?", key).
		Scan(&existing, &existingImmutable)
	switch {
	case err == sql.ErrNoRows:
		// fall through to insert
	case err != nil:
		return err
	case existingImmutable:
		if !bytes.Equal(existing, payload) {
			slog.Error("cache consistency fault: immutable entry payload mismatch",
				"key", key, "stored_bytes", len(existing), "new_bytes", len(payload))
		}
		// Idempotent re-write or refused overwrite; the stored value stands.
		return nil
	}

	now := time.Now().UTC().Format(time.RFC3339)
	if _, err := tx.Exec(`
		INSERT INTO cache_entries (key, payload, immutable, fetched_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET payload = excluded.payload, immutable = excluded.immutable, fetched_at = excluded.fetched_at`,
		key, payload, immutable, now,
	); err != nil {
		return err
	}
	return tx.Commit()
}

// CachePrune deletes mutable entries older than ttl and returns the count.
func (s *Store) CachePrune(ttl time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-ttl).Format(time.RFC3339)
	res, err := s.db.Exec("DELETE FROM cache_entries WHERE immutable = 0 AND fetched_at < ?", cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// --- Query log ---

func (s *Store) SaveQuery(q QueryRecord) error {
	createdAt := q.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	results := q.ResultsJSON
	if results == "" {
		results = "[]"
	}
	_, err := s.db.Exec(`
		INSERT INTO queries (id, created_at, query_text, intent, confidence, quality_score, guidance, state, results_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		q.ID, createdAt.UTC().Format(time.RFC3339), q.QueryText, q.Intent,
		q.Confidence, q.QualityScore, q.Guidance, q.State, results,
	)
	return err
}

func (s *Store) GetQuery(id string) (QueryRecord, error) {
	var q QueryRecord
	var createdAt string
	err := s.db.QueryRow(`
		SELECT id, created_at, query_text, intent, confidence, quality_score, guidance, state, results_json
		FROM queries WHERE id = ?`, id,
	).Scan(&q.ID, &createdAt, &q.QueryText, &q.Intent, &q.Confidence, &q.QualityScore, &q.Guidance, &q.State, &q.ResultsJSON)
	if err == sql.ErrNoRows {
		return QueryRecord{}, ErrNotFound
	}
	if err != nil {
		return QueryRecord{}, err
	}
	t, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return QueryRecord{}, fmt.Errorf("parsing created_at: %w", err)
	}
	q.CreatedAt = t
	return q, nil
}

func (s *Store) RecentQueries(limit int) ([]QueryRecord, error) {
	rows, err := s.db.Query(`
		SELECT id, created_at, query_text, intent, confidence, quality_score, guidance, state, results_json
		FROM queries ORDER BY created_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []QueryRecord
	for rows.Next() {
		var q QueryRecord
		var createdAt string
		if err := rows.Scan(&q.ID, &createdAt, &q.QueryText, &q.Intent, &q.Confidence, &q.QualityScore, &q.Guidance, &q.State, &q.ResultsJSON); err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		q.CreatedAt = t
		results = append(results, q)
	}
	return results, rows.Err()
}
