package sqldb

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib" // postgres driver
	_ "modernc.org/sqlite"             // sqlite driver
)

// Dialect identifies the SQL dialect behind a storage URI.
type Dialect string

// Supported dialects
const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// ErrUnsupportedStorage is returned for storage URIs with an unknown scheme.
var ErrUnsupportedStorage = errors.New("unsupported storage URI")

// ParseStorageURI determines the dialect and driver DSN for a storage URI.
//
// Accepted forms:
//
//	sqlite:results/tuning.db
//	sqlite:///abs/path/tuning.db
//	results/tuning.db            (bare path ending in .db)
//	postgres://user:pw@host/db
//	postgresql://user:pw@host/db
func ParseStorageURI(uri string) (Dialect, string, error) {
	switch {
	case strings.HasPrefix(uri, "sqlite:///"):
		return DialectSQLite, strings.TrimPrefix(uri, "sqlite://"), nil
	case strings.HasPrefix(uri, "sqlite:"):
		return DialectSQLite, strings.TrimPrefix(uri, "sqlite:"), nil
	case strings.HasPrefix(uri, "postgres://"), strings.HasPrefix(uri, "postgresql://"):
		return DialectPostgres, uri, nil
	case strings.HasSuffix(uri, ".db") && !strings.Contains(uri, "://"):
		return DialectSQLite, uri, nil
	default:
		return "", "", fmt.Errorf("%w: %q", ErrUnsupportedStorage, uri)
	}
}

// Open opens the database behind the given storage URI and verifies the
// connection. For SQLite the parent directory is created if missing and
// the pool is limited to a single connection so concurrent trial workers
// never contend for the file lock.
func Open(uri string) (*sql.DB, Dialect, error) {
	dialect, dsn, err := ParseStorageURI(uri)
	if err != nil {
		return nil, "", err
	}

	var db *sql.DB
	switch dialect {
	case DialectSQLite:
		if dir := filepath.Dir(dsn); dir != "." && dir != "/" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, "", fmt.Errorf("failed to create storage directory: %w", err)
			}
		}
		db, err = sql.Open("sqlite", dsn)
		if err != nil {
			return nil, "", fmt.Errorf("failed to open sqlite storage: %w", err)
		}
		db.SetMaxOpenConns(1)
	case DialectPostgres:
		db, err = sql.Open("pgx", dsn)
		if err != nil {
			return nil, "", fmt.Errorf("failed to open postgres storage: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, "", fmt.Errorf("failed to connect to study storage: %w", err)
	}

	return db, dialect, nil
}

// rebind rewrites ? placeholders into the $N form postgres expects.
// SQLite queries are passed through unchanged.
func rebind(dialect Dialect, query string) string {
	if dialect != DialectPostgres {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}
