package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"aiboost/internal/core"

	_ "github.com/lib/pq"  // postgres driver
	_ "modernc.org/sqlite" // sqlite driver
)

const (
	dialectSQLite   = "sqlite"
	dialectPostgres = "postgres"
)

// SQLStore is the conversation and user store backed by database/sql.
// It speaks SQLite by default and PostgreSQL when a DATABASE_URL is given.
type SQLStore struct {
	db      *sql.DB
	dialect string
	logger  core.Logger
}

// StoreConfig store configuration
type StoreConfig struct {
	DatabaseURL string
	SQLitePath  string
	Logger      core.Logger
}

// OpenStore opens the backing database and ensures the schema exists.
func OpenStore(cfg StoreConfig) (*SQLStore, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = &core.NopLogger{}
	}

	var (
		db      *sql.DB
		dialect string
		err     error
	)

	if cfg.DatabaseURL != "" {
		dialect = dialectPostgres
		db, err = sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
	} else {
		dialect = dialectSQLite
		path := cfg.SQLitePath
		if path == "" {
			path = core.DefaultSQLitePath
		}
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, core.DirPermission); err != nil {
				return nil, fmt.Errorf("create db dir: %w", err)
			}
		}
		dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
		db, err = sql.Open("sqlite", dsn)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", dialect, err)
	}

	store := &SQLStore{db: db, dialect: dialect, logger: logger}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}

	logger.Info("Conversation store ready (%s)", dialect)
	return store, nil
}

func (s *SQLStore) initSchema() error {
	schema := schemaSQLite
	if s.dialect == dialectPostgres {
		schema = schemaPostgres
	}
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

// rebind converts ? placeholders to $n for postgres. Queries are written with
// ? throughout so both dialects share the same statements.
func (s *SQLStore) rebind(query string) string {
	if s.dialect != dialectPostgres {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
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

// Close closes the underlying database.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// fmtTime renders a timestamp as RFC3339 UTC text. The fixed width keeps
// lexicographic comparisons in SQL consistent with chronological order.
func fmtTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// parseTime reads an RFC3339 timestamp, tolerating empty columns.
func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
