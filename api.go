package gist

import (
	"context"

	"github.com/unkn0wn-root/gist/codec"
	gen "github.com/unkn0wn-root/gist/genstore"
	pr "github.com/unkn0wn-root/gist/provider"
)

// InternalVersion is added to every declared gist version. Bumping it
// invalidates all stored entries of every gist.
const InternalVersion = 2

// File is the host's view of a file.
type File interface {
	// ID returns the stable identity assigned by the host file system.
	// Files without one (ok=false) are never cached.
	ID() (id uint32, ok bool)
	// ModificationCount grows whenever the file's content changes.
	ModificationCount() int32
}

// ContentFile is a File whose bytes can be read.
type ContentFile interface {
	File
	Content() ([]byte, error)
}

// Project scopes stored entries. A nil Project is a valid scope of its own.
type Project interface {
	LocationHash() string
}

// Calculator computes the value of a gist for a file. ok=false means "no
// data" and is cached like any other result. Errors are returned to the
// FileData caller unchanged and nothing is stored.
type Calculator[V any] func(ctx context.Context, project Project, file File) (v V, ok bool, err error)

// ContentCalculator computes a value from the file's bytes.
type ContentCalculator[V any] func(ctx context.Context, project Project, content []byte) (v V, ok bool, err error)

// Gist is a named, versioned, persistently cached value derived from a file.
type Gist[V any] interface {
	ID() string
	Version() int

	// FileData returns the value for file, computing and storing it when the
	// stored entry is missing or stale. Storage failures are logged and never
	// returned; only calculator errors are.
	FileData(ctx context.Context, project Project, file File) (v V, ok bool, err error)
}

// Options configure a Manager. Only Provider is required.
type Options struct {
	Provider pr.Provider
	GenStore gen.GenStore // nil => LocalGenStore (in-process)
	Logger   Logger       // if nil, NopLogger is used
	Hooks    Hooks        // if nil, NopHooks is used

	// SingleFlight collapses concurrent misses for the same file and stamp
	// into one calculator call. The first caller's context governs the call.
	SingleFlight bool

	// Disabled makes every FileData call compute without touching storage.
	Disabled bool
}

// NewVirtualFileGist declares a gist computed from the file handle.
func NewVirtualFileGist[V any](m *Manager, id string, version int, c codec.Codec[V], calc Calculator[V]) (Gist[V], error) {
	switch {
	case m == nil:
		return nil, ErrNoManager
	case id == "":
		return nil, ErrEmptyID
	case c == nil:
		return nil, ErrNoCodec
	case calc == nil:
		return nil, ErrNoCalculator
	}
	m.register(id, version)
	return &fileGist[V]{m: m, id: id, version: version, codec: c, calc: calc}, nil
}

// NewContentGist declares a gist computed from the file's bytes. Files passed
// to FileData must implement ContentFile; others fail with ErrNoContent.
func NewContentGist[V any](m *Manager, id string, version int, c codec.Codec[V], calc ContentCalculator[V]) (Gist[V], error) {
	var fc Calculator[V]
	if calc != nil {
		fc = func(ctx context.Context, project Project, file File) (V, bool, error) {
			cf, ok := file.(ContentFile)
			if !ok {
				var zero V
				return zero, false, ErrNoContent
			}
			b, err := cf.Content()
			if err != nil {
				var zero V
				return zero, false, err
			}
			return calc(ctx, project, b)
		}
	}
	return NewVirtualFileGist(m, id, version, c, fc)
}
