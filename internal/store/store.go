package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// PersistentStore journals download and segment state so an interrupted
// download can resume without refetching retired segments. SQLite is the
// default; a Postgres DSN switches the backend for shared deployments.
type PersistentStore struct {
	db     *sql.DB
	driver string
}

func NewSQLiteStore(dbPath string) (*PersistentStore, error) {
	dbDir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dbDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	return newStore(db, "sqlite")
}

func NewPostgresStore(dsn string) (*PersistentStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	return newStore(db, "postgres")
}

func newStore(db *sql.DB, driver string) (*PersistentStore, error) {
	// Ping makes sure the DSN is valid and the backend reachable
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", driver, err)
	}

	s := &PersistentStore{db: db, driver: driver}

	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("could not migrate database: %w", err)
	}

	return s, nil
}

func (s *PersistentStore) Close() error {
	return s.db.Close()
}

// rebind rewrites ? placeholders into $n for the Postgres backend.
func (s *PersistentStore) rebind(query string) string {
	if s.driver != "postgres" {
		return query
	}

	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *PersistentStore) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS downloads (
			id            TEXT PRIMARY KEY,
			name          TEXT NOT NULL,
			url           TEXT NOT NULL,
			total_bytes   BIGINT NOT NULL,
			status        TEXT NOT NULL,
			created_at    TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS segments (
			download_id   TEXT NOT NULL,
			idx           INTEGER NOT NULL,
			position      BIGINT NOT NULL,
			length        BIGINT NOT NULL,
			written       BIGINT NOT NULL DEFAULT 0,
			complete      BOOLEAN NOT NULL DEFAULT FALSE,
			PRIMARY KEY (download_id, idx)
		)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}
