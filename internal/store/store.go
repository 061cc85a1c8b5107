// Package store provides durable event storage with per-kind write policy,
// indexed filter queries, and expiration deletes.
//
// Two engines are supported behind one implementation: sqlite (the
// default, an embedded file-backed database) and postgres. Queries are
// written with `?` placeholders and rebound for postgres.
//
// The store owns an approximate duplicate filter as a write-path
// accelerator: a "definitely absent" answer skips the exact existence
// lookup on the common case of a brand-new event id. The database remains
// the source of truth; a false positive only costs one extra SELECT, and
// inserts additionally use ON CONFLICT(id) DO NOTHING so the filter can
// never corrupt state.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/murmur/internal/bloom"
)

//go:embed schema_sqlite.sql
var schemaSQLite string

//go:embed schema_postgres.sql
var schemaPostgres string

// Supported engine selectors.
const (
	EngineSQLite   = "sqlite"
	EnginePostgres = "postgres"
)

// Default duplicate-filter sizing: ~1.2 MB of bits for a million events at
// a 1% false-positive target.
const (
	DefaultExpectedEvents    = 1_000_000
	DefaultFalsePositiveRate = 0.01
)

// Config selects and sizes a store. DSN is a file path for sqlite or a
// connection string for postgres. DetectLanguage, when non-nil, is called
// with event content at index time and its result stored alongside the
// event; it must be a pure function.
type Config struct {
	Engine            string
	DSN               string
	ExpectedEvents    int
	FalsePositiveRate float64
	DetectLanguage    func(string) string
}

// Store is a durable keyed event store. Safe for concurrent use; writes
// racing for the same replacement key are serialized internally so the
// replace rule always reads a consistent current row.
type Store struct {
	db     *sql.DB
	engine string
	detect func(string) string
	seen   *bloom.Filter
	keys   keyedMutex
}

// Open creates or opens a store. Applies engine pragmas and the schema,
// then primes the duplicate filter from stored ids so a restart cannot
// produce a false "definitely absent" answer.
func Open(cfg Config) (*Store, error) {
	if cfg.ExpectedEvents <= 0 {
		cfg.ExpectedEvents = DefaultExpectedEvents
	}
	if cfg.FalsePositiveRate <= 0 || cfg.FalsePositiveRate >= 1 {
		cfg.FalsePositiveRate = DefaultFalsePositiveRate
	}
	if cfg.Engine == "" {
		cfg.Engine = EngineSQLite
	}

	var (
		db  *sql.DB
		err error
	)
	switch cfg.Engine {
	case EngineSQLite:
		db, err = sql.Open("sqlite3", cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("open sqlite database: %w", err)
		}
		// sqlite supports one writer at a time; a single connection avoids
		// SQLITE_BUSY under concurrent submits.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	case EnginePostgres:
		db, err = sql.Open("pgx", cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres database: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown storage engine %q", cfg.Engine)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	s := &Store{
		db:     db,
		engine: cfg.Engine,
		detect: cfg.DetectLanguage,
		seen:   bloom.New(cfg.ExpectedEvents, cfg.FalsePositiveRate),
	}

	if s.engine == EngineSQLite {
		if err := applyPragmas(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply pragmas: %w", err)
		}
	}
	if err := s.applySchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	if err := s.primeSeen(); err != nil {
		db.Close()
		return nil, fmt.Errorf("prime duplicate filter: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// applyPragmas sets required sqlite configuration: WAL for concurrent
// reads during writes, NORMAL sync, a busy timeout for lock contention,
// and foreign keys so tag rows cascade with their event.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %q: %w", pragma, err)
		}
	}
	return nil
}

// applySchema creates tables and indexes if they don't exist. Idempotent.
func (s *Store) applySchema() error {
	schema := schemaSQLite
	if s.engine == EnginePostgres {
		schema = schemaPostgres
	}
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}
	return nil
}

// primeSeen replays stored event ids into the duplicate filter.
func (s *Store) primeSeen() error {
	rows, err := s.db.Query("SELECT id FROM events")
	if err != nil {
		return fmt.Errorf("scan ids: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return fmt.Errorf("scan id: %w", err)
		}
		s.seen.Add([]byte(id))
	}
	return rows.Err()
}

// rebind converts `?` placeholders to `$n` for postgres. Queries in this
// package never contain a literal question mark.
func (s *Store) rebind(query string) string {
	if s.engine != EnginePostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, c := range query {
		if c == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(c)
	}
	return b.String()
}

// HasEvent reports whether an event id is stored, consulting the duplicate
// filter before the exact lookup.
func (s *Store) HasEvent(ctx context.Context, id string) (bool, error) {
	if !s.seen.Test([]byte(id)) {
		return false, nil
	}
	return s.hasEventExact(ctx, id)
}

func (s *Store) hasEventExact(ctx context.Context, id string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, s.rebind("SELECT 1 FROM events WHERE id = ?"), id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check event %s: %w", id, err)
	}
	return true, nil
}
