package config

import (
	"os"

	"github.com/hugo-lorenzo-mato/quorum-dx/internal/fsutil"
)

// AtomicWrite writes data to a file atomically, keeping the permissions of
// an existing file.
func AtomicWrite(path string, data []byte) error {
	perm := os.FileMode(0o600)
	if info, err := os.Stat(path); err == nil {
		perm = info.Mode().Perm()
	}

	return fsutil.WriteFileAtomic(path, data, perm)
}
