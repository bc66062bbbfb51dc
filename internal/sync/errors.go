package sync

import (
	"errors"
	"fmt"
)

// ErrAlreadyPublished is returned by Publish and Link when a personal list
// is already configured.
var ErrAlreadyPublished = errors.New("a personal list is already published; unlink it first")

// ErrNotPublished is returned when an operation needs a personal list.
var ErrNotPublished = errors.New("no personal list published or linked")

// SyncError wraps a failure of one sync step. The underlying error keeps
// its identity, so errors.Is(err, remote.ErrNotFound) still holds.
type SyncError struct {
	Op     string // fetch, store, push, subscription
	ListID string
	Err    error
}

func (e *SyncError) Error() string {
	if e.ListID != "" {
		return fmt.Sprintf("sync %s %s: %v", e.Op, e.ListID, e.Err)
	}
	return fmt.Sprintf("sync %s: %v", e.Op, e.Err)
}

func (e *SyncError) Unwrap() error { return e.Err }
