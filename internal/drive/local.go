package drive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// Local implements Store on a local directory. Useful for development
// and as a storage backend when no OneDrive tenant is configured.
type Local struct {
	basePath string
}

// NewLocal creates a Local store rooted at basePath.
func NewLocal(basePath string) (*Local, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("creating storage directory: %w", err)
	}
	return &Local{basePath: basePath}, nil
}

// Download reads the document, or ErrNotExist if it was never published.
func (l *Local) Download(_ context.Context, name string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(l.basePath, name))
	if os.IsNotExist(err) {
		return nil, ErrNotExist
	}
	if err != nil {
		return nil, &SyncError{Op: "download", Err: err}
	}
	return data, nil
}

// Upload replaces the document atomically via a temp file rename so a
// crash mid-write never leaves a truncated ledger behind.
func (l *Local) Upload(_ context.Context, name string, data []byte) error {
	target := filepath.Join(l.basePath, name)
	tmp, err := os.CreateTemp(l.basePath, name+".tmp-*")
	if err != nil {
		return &SyncError{Op: "upload", Err: fmt.Errorf("creating temp file: %w", err)}
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return &SyncError{Op: "upload", Err: fmt.Errorf("writing temp file: %w", err)}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return &SyncError{Op: "upload", Err: fmt.Errorf("closing temp file: %w", err)}
	}
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return &SyncError{Op: "upload", Err: fmt.Errorf("replacing document: %w", err)}
	}
	return nil
}
