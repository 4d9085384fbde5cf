// Package attr maps named, versioned file attributes onto a provider.Provider.
//
// An attribute is addressed by (name, version); its value for one file lives
// under the provider key attr:<name>:v<version>:<fileID>. Changing either the
// name or the version moves the attribute to fresh keys, leaving older values
// orphaned rather than deleted.
package attr

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"

	"github.com/unkn0wn-root/gist/internal/util"
	pr "github.com/unkn0wn-root/gist/provider"
)

// Attribute is a handle to one (name, version) attribute.
type Attribute struct {
	name    string
	version int
	p       pr.Provider
}

func (a *Attribute) Name() string { return a.name }
func (a *Attribute) Version() int { return a.version }

func (a *Attribute) Key(fileID uint32) string {
	return util.StorageKey(a.name, a.version, fileID)
}

// Read returns the attribute value of fileID; ok=false when nothing is stored.
func (a *Attribute) Read(ctx context.Context, fileID uint32) (r io.Reader, ok bool, err error) {
	b, ok, err := a.ReadBytes(ctx, fileID)
	if err != nil || !ok {
		return nil, false, err
	}
	return bytes.NewReader(b), true, nil
}

func (a *Attribute) ReadBytes(ctx context.Context, fileID uint32) ([]byte, bool, error) {
	return a.p.Get(ctx, a.Key(fileID))
}

// ErrRejected is returned by Write when the provider refused the value.
var ErrRejected = errors.New("attr: write rejected by provider")

var bufPool = sync.Pool{
	New: func() any { return new(bytes.Buffer) },
}

// Write replaces the attribute value of fileID with whatever fn writes.
// Nothing reaches the provider unless fn returns nil, so a failed write never
// leaves a partial value behind.
func (a *Attribute) Write(ctx context.Context, fileID uint32, fn func(w io.Writer) error) error {
	buf := bufPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer bufPool.Put(buf)

	if err := fn(buf); err != nil {
		return err
	}
	// providers may retain the slice; hand over a private copy
	value := append([]byte(nil), buf.Bytes()...)
	ok, err := a.p.Set(ctx, a.Key(fileID), value)
	if err != nil {
		return err
	}
	if !ok {
		return ErrRejected
	}
	return nil
}

type handleKey struct {
	name    string
	version int
}

// Table hands out Attribute handles, creating each one on first request.
// It is populated monotonically: handles are never removed.
type Table struct {
	p pr.Provider

	mu      sync.Mutex
	handles map[handleKey]*Attribute
}

func NewTable(p pr.Provider) *Table {
	return &Table{p: p, handles: make(map[handleKey]*Attribute)}
}

func (t *Table) Get(name string, version int) *Attribute {
	k := handleKey{name: name, version: version}

	t.mu.Lock()
	defer t.mu.Unlock()
	if a, ok := t.handles[k]; ok {
		return a
	}
	a := &Attribute{name: name, version: version, p: t.p}
	t.handles[k] = a
	return a
}

// Len reports how many handles have been created.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.handles)
}
