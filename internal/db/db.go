// Package db is the run ledger: a SQLite database recording every inversion
// with its parameters, quality scores and the compressed outputs.
package db

import (
	"database/sql"
	"fmt"
	"net/url"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/banshee-data/inverseflow/internal/monitoring"
)

// DB wraps the ledger connection.
type DB struct {
	*sql.DB
	path string
}

var pragmas = []string{
	"journal_mode(WAL)",
	"busy_timeout(5000)",
	"foreign_keys(1)",
	"synchronous(NORMAL)",
}

// OpenDB opens the database at path and applies the connection pragmas
// without touching the schema.
func OpenDB(path string) (*DB, error) {
	if path == ":memory:" {
		sqlDB, err := sql.Open("sqlite", path)
		if err != nil {
			return nil, err
		}
		// Every connection to :memory: is a separate database.
		sqlDB.SetMaxOpenConns(1)
		for _, p := range pragmas[1:] {
			if _, err := sqlDB.Exec("PRAGMA " + strings.Replace(strings.TrimSuffix(p, ")"), "(", "=", 1)); err != nil {
				sqlDB.Close()
				return nil, fmt.Errorf("failed to apply %q: %w", p, err)
			}
		}
		return &DB{DB: sqlDB, path: path}, nil
	}

	// _pragma parameters are applied to every pooled connection.
	q := url.Values{}
	for _, p := range pragmas {
		q.Add("_pragma", p)
	}
	sqlDB, err := sql.Open("sqlite", "file:"+path+"?"+q.Encode())
	if err != nil {
		return nil, err
	}
	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	return &DB{DB: sqlDB, path: path}, nil
}

// NewDB opens the database at path and migrates it to the latest schema.
func NewDB(path string) (*DB, error) {
	db, err := OpenDB(path)
	if err != nil {
		return nil, err
	}
	if err := db.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	version, _, err := db.MigrateVersion()
	if err != nil {
		db.Close()
		return nil, err
	}
	monitoring.Debugf("[db] opened %s at schema version %d", path, version)
	return db, nil
}

// Path returns the path the database was opened with.
func (db *DB) Path() string { return db.path }

// Runs returns a RunStore backed by this database.
func (db *DB) Runs() *RunStore { return NewRunStore(db.DB) }
