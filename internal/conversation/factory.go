package conversation

import (
	"strings"

	"github.com/user/crmassist/internal/errors"
)

// Open creates a store from a DSN:
//   - "memory": in-process store
//   - postgres:// or postgresql://: PostgreSQL
//   - sqlite:<path> or any other value: SQLite at that path
//
// Failures carry the store exit code.
func Open(dsn string) (Store, error) {
	switch {
	case dsn == "" || dsn == "memory":
		return NewMemoryStore(), nil
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		s, err := NewPostgresStore(dsn)
		if err != nil {
			return nil, errors.Wrap(err, "cannot open postgres conversation store", errors.ExitStoreError)
		}
		return s, nil
	default:
		s, err := NewSQLiteStore(strings.TrimPrefix(dsn, "sqlite:"))
		if err != nil {
			return nil, errors.Wrap(err, "cannot open sqlite conversation store", errors.ExitStoreError)
		}
		return s, nil
	}
}
