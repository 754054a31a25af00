package store

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a gene id is absent from every scope.
var ErrNotFound = errors.New("gene not found")

// StorageError wraps an underlying I/O failure with the operation and
// path that produced it. Storage faults are always surfaced, never
// swallowed at this layer.
type StorageError struct {
	Op   string
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("store: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func storageErr(op, path string, err error) error {
	return &StorageError{Op: op, Path: path, Err: err}
}
