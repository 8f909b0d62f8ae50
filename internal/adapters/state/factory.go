package state

import (
	"path/filepath"
	"strings"

	"github.com/hugo-lorenzo-mato/quorum-dx/internal/core"
)

// DefaultPath is the run database location relative to the project.
const DefaultPath = ".quorum-dx/state/runs.db"

// NewRunStore creates a RunStore (SQLite) at the specified path.
// An empty path uses DefaultPath; any other extension is replaced by .db.
func NewRunStore(path string) (*SQLiteRunStore, error) {
	if strings.TrimSpace(path) == "" {
		path = DefaultPath
	}
	if !strings.HasSuffix(path, ".db") {
		path = strings.TrimSuffix(path, filepath.Ext(path)) + ".db"
	}
	return NewSQLiteRunStore(path)
}

// CloseRunStore closes s, tolerating nil.
func CloseRunStore(s core.RunStore) error {
	if s == nil {
		return nil
	}
	return s.Close()
}
