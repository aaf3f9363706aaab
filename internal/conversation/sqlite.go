package conversation

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/user/crmassist/internal/conversation/migrations"
)

// NewSQLiteStore opens (creating if needed) a SQLite database at path
func NewSQLiteStore(path string) (Store, error) {
	if path == "" {
		path = "data/crmassist.db"
	}

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("create data directory: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer at a time, and a single shared connection for :memory:
	db.SetMaxOpenConns(1)

	if err := runMigration(db, migrations.SQLite, "sqlite/001_init.sql"); err != nil {
		db.Close()
		return nil, err
	}
	return &sqlStore{db: db}, nil
}
