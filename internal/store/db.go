// Package store is the SQLite-backed cache of conversations and messages.
package store

import (
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/matheus3301/chatfetch/internal/domain"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps the session's cache.db connection.
type DB struct {
	*sqlx.DB
}

var _ domain.Store = (*DB)(nil)

// Open creates a new SQLite connection with WAL mode and recommended pragmas.
func Open(path string) (*DB, error) {
	db, err := sqlx.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return &DB{db}, nil
}

// likePattern builds a LIKE pattern matching s as a literal substring.
// Callers must pair it with ESCAPE '\'.
func likePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(s) + "%"
}
