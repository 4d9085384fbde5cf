package gist

import (
	"errors"
	"fmt"
)

var (
	ErrNoProvider   = errors.New("gist: provider is required")
	ErrNoManager    = errors.New("gist: manager is required")
	ErrNoCodec      = errors.New("gist: codec is required")
	ErrNoCalculator = errors.New("gist: calculator is required")
	ErrEmptyID      = errors.New("gist: id is required")
	ErrNoContent    = errors.New("gist: file does not expose content")
	ErrClosed       = errors.New("gist: manager is closed")
)

// StorageError describes a failed read or write of a stored entry. It is
// never returned from FileData; it is what Hooks and logs receive.
type StorageError struct {
	Op     string // "read" | "write" | "encode"
	Key    string
	FileID uint32
	Err    error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("gist: %s %q (file %d): %v", e.Op, e.Key, e.FileID, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
