package store

import (
	"errors"
	"fmt"
)

// ErrProjectExists is returned when creating a project whose name is taken.
var ErrProjectExists = errors.New("project name already exists")

// ConflictError is returned by VersionedStore.Update when the caller's
// expected version does not match the stored version at apply time. It
// carries the authoritative current version so the client can re-read
// and retry.
type ConflictError struct {
	ExpectedVersion int64
	CurrentVersion  int64
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict: expected version %d, but found %d", e.ExpectedVersion, e.CurrentVersion)
}

// StorageError wraps an underlying I/O failure.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
