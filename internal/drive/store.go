// Package drive persists the serialized ledger document on a remote
// store. The pipeline is parameterized by the Store interface so the
// same code publishes to OneDrive or to a local directory.
package drive

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotExist is returned by Download when no document has been
// published yet. The pipeline starts a fresh ledger in that case.
var ErrNotExist = errors.New("remote document does not exist")

// SyncError indicates an upload or download failed after the one
// allowed session-refresh retry.
type SyncError struct {
	Op  string
	Err error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("syncing ledger (%s): %v", e.Op, e.Err)
}

func (e *SyncError) Unwrap() error { return e.Err }

// Store is the storage collaborator contract.
type Store interface {
	// Download fetches the current remote document, or ErrNotExist.
	Download(ctx context.Context, name string) ([]byte, error)

	// Upload replaces the remote document at name.
	Upload(ctx context.Context, name string, data []byte) error
}
