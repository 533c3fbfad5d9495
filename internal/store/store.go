// Package store is the dbutil-backed persistence layer for the Function
// Store and Metadata Store described in spec.md §4.2/§4.3, plus the
// per-engine index tables each concrete engine owns.
//
// It follows the teacher's (beeper-ai-bridge) convention of wrapping
// *dbutil.Database and issuing hand-written SQL with $N placeholders
// through db.Query/db.QueryRow/db.Exec (see pkg/connector/memory_manager.go
// and pkg/connector/memory_sessions.go in the teacher for the same shapes).
package store

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"go.mau.fi/util/dbutil"

	"github.com/saferwall/first-go/internal/store/migrations"
)

// Store wraps the SQL handle shared by the Function Store, the Metadata
// Store, and every engine's private index tables.
type Store struct {
	DB     *dbutil.Database
	driver string
	log    zerolog.Logger
}

// Open connects to the configured database, applies any pending schema
// migrations, and returns a ready-to-use Store. driver is "sqlite3" or
// "postgres"; dsn is the driver-specific connection string.
func Open(ctx context.Context, driver, dsn string, log zerolog.Logger) (*Store, error) {
	db, err := dbutil.NewWithDialect(dsn, driver)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", driver, err)
	}
	s := &Store{DB: db, driver: driver, log: log.With().Str("component", "store").Logger()}
	if err := s.migrate(ctx); err != nil {
		return nil, fmt.Errorf("store: migrate: %w", err)
	}
	return s, nil
}

// OpenWithDB wraps an already-open *sql.DB (e.g. an in-memory sqlite handle
// in a test, or a pool built by an external connection manager) and applies
// migrations the same way Open does.
func OpenWithDB(ctx context.Context, raw *sql.DB, driver string, log zerolog.Logger) (*Store, error) {
	db, err := dbutil.NewWithDB(raw, driver)
	if err != nil {
		return nil, fmt.Errorf("store: wrap db: %w", err)
	}
	s := &Store{DB: db, driver: driver, log: log.With().Str("component", "store").Logger()}
	if err := s.migrate(ctx); err != nil {
		return nil, fmt.Errorf("store: migrate: %w", err)
	}
	return s, nil
}

// migrate applies every embedded SQL file whose numeric prefix is greater
// than the schema's current version, in order. We track the applied
// version ourselves rather than relying on an unverified upgrade-table API,
// but the migration *content* (embedded numbered .sql files) follows the
// same convention the teacher's pkg/memory/migrations package uses.
//
// The embedded .sql files are written against sqlite3's dialect (the
// default, embedded-store driver); each statement is adapted in-flight for
// postgres via adaptStatementForDialect before being executed. This covers
// the two sqlite-isms the schema actually uses (AUTOINCREMENT, integer
// boolean defaults) but has not been exercised against a live postgres
// server — treat the postgres path as best-effort until that's done.
func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.DB.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
		return err
	}

	current := 0
	row := s.DB.QueryRow(ctx, `SELECT version FROM schema_version LIMIT 1`)
	_ = row.Scan(&current) // no rows yet => current stays 0

	entries, err := migrations.Files.ReadDir(".")
	if err != nil {
		return err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	applied := current
	for _, name := range names {
		version, ok := versionFromFilename(name)
		if !ok || version <= current {
			continue
		}
		contents, err := migrations.Files.ReadFile(name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		for _, stmt := range splitStatements(string(contents)) {
			if stmt == "" {
				continue
			}
			if _, err := s.DB.Exec(ctx, adaptStatementForDialect(stmt, s.driver)); err != nil {
				return fmt.Errorf("apply migration %s: %w", name, err)
			}
		}
		applied = version
		s.log.Info().Str("migration", name).Int("version", version).Msg("applied schema migration")
	}

	if applied != current {
		if _, err := s.DB.Exec(ctx, `DELETE FROM schema_version`); err != nil {
			return err
		}
		if _, err := s.DB.Exec(ctx, `INSERT INTO schema_version (version) VALUES ($1)`, applied); err != nil {
			return err
		}
	}
	return nil
}

// Stats is a point-in-time summary of the store's size, used by the
// maintenance sweep's log line.
type Stats struct {
	Samples   int
	Functions int
	Metadata  int
}

// Stats reports row counts across the Sample, Function and Metadata stores.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	if err := s.DB.QueryRow(ctx, `SELECT COUNT(*) FROM samples`).Scan(&st.Samples); err != nil {
		return Stats{}, err
	}
	if err := s.DB.QueryRow(ctx, `SELECT COUNT(*) FROM functions`).Scan(&st.Functions); err != nil {
		return Stats{}, err
	}
	if err := s.DB.QueryRow(ctx, `SELECT COUNT(*) FROM metadata`).Scan(&st.Metadata); err != nil {
		return Stats{}, err
	}
	return st, nil
}

func versionFromFilename(name string) (int, bool) {
	idx := strings.IndexByte(name, '_')
	if idx <= 0 {
		return 0, false
	}
	var version int
	if _, err := fmt.Sscanf(name[:idx], "%d", &version); err != nil {
		return 0, false
	}
	return version, true
}

var (
	reAutoIncrement      = regexp.MustCompile(`(?i)INTEGER\s+PRIMARY\s+KEY\s+AUTOINCREMENT`)
	reBooleanDefaultZero = regexp.MustCompile(`(?i)BOOLEAN\s+NOT\s+NULL\s+DEFAULT\s+0\b`)
	reBooleanDefaultOne  = regexp.MustCompile(`(?i)BOOLEAN\s+NOT\s+NULL\s+DEFAULT\s+1\b`)
)

// adaptStatementForDialect rewrites the sqlite-specific DDL the embedded
// migrations are written in for postgres: AUTOINCREMENT has no postgres
// equivalent (SERIAL is the closest analog), and postgres's boolean type
// rejects integer literals/defaults outright.
func adaptStatementForDialect(stmt, driver string) string {
	if driver != "postgres" {
		return stmt
	}
	stmt = reAutoIncrement.ReplaceAllString(stmt, "SERIAL PRIMARY KEY")
	stmt = reBooleanDefaultZero.ReplaceAllString(stmt, "BOOLEAN NOT NULL DEFAULT FALSE")
	stmt = reBooleanDefaultOne.ReplaceAllString(stmt, "BOOLEAN NOT NULL DEFAULT TRUE")
	return stmt
}

// splitStatements splits a .sql file's contents on statement-terminating
// semicolons, dropping "--" comment lines. The migrations here never embed a
// semicolon inside a string literal, so a naive split is sufficient.
func splitStatements(sql string) []string {
	parts := strings.Split(sql, ";")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		var lines []string
		for _, line := range strings.Split(p, "\n") {
			if !strings.HasPrefix(strings.TrimSpace(line), "--") {
				lines = append(lines, line)
			}
		}
		if t := strings.TrimSpace(strings.Join(lines, "\n")); t != "" {
			out = append(out, t)
		}
	}
	return out
}
