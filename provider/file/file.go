// Package file stores gist attributes as one file per key under a root
// directory, so cached values survive process restarts.
package file

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/cespare/xxhash/v2"
	"github.com/spf13/afero"

	pr "github.com/unkn0wn-root/gist/provider"
)

// Provider is a directory-backed attribute store.
//
// Layout: <root>/<fan>/<hex(key)> where fan is the low byte of xxhash(key).
// Writes go to a temp file first and are renamed into place, so readers
// observe either the previous value or the new one.
type Provider struct {
	fs   afero.Fs
	root string
}

var _ pr.Provider = (*Provider)(nil)

// Option configures a Provider.
type Option func(*Provider)

// WithFs sets a custom filesystem, e.g. afero.NewMemMapFs() in tests.
func WithFs(fs afero.Fs) Option {
	return func(p *Provider) { p.fs = fs }
}

// Open creates the root directory if needed.
func Open(root string, opts ...Option) (*Provider, error) {
	p := &Provider{fs: afero.NewOsFs(), root: root}
	for _, o := range opts {
		o(p)
	}
	if err := p.fs.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create attribute directory: %w", err)
	}
	return p, nil
}

func (p *Provider) path(key string) string {
	fan := strconv.FormatUint(xxhash.Sum64String(key)&0xff, 16)
	return filepath.Join(p.root, fan, hex.EncodeToString([]byte(key)))
}

func (p *Provider) Get(_ context.Context, key string) ([]byte, bool, error) {
	b, err := afero.ReadFile(p.fs, p.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read attribute: %w", err)
	}
	return b, true, nil
}

func (p *Provider) Set(_ context.Context, key string, value []byte) (bool, error) {
	dst := p.path(key)
	dir := filepath.Dir(dst)
	if err := p.fs.MkdirAll(dir, 0o755); err != nil {
		return false, fmt.Errorf("failed to create fan-out directory: %w", err)
	}

	tmp, err := afero.TempFile(p.fs, dir, ".tmp-*")
	if err != nil {
		return false, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(value); err != nil {
		_ = tmp.Close()
		_ = p.fs.Remove(tmpName)
		return false, fmt.Errorf("failed to write attribute: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = p.fs.Remove(tmpName)
		return false, fmt.Errorf("failed to close attribute: %w", err)
	}
	if err := p.fs.Rename(tmpName, dst); err != nil {
		_ = p.fs.Remove(tmpName)
		return false, fmt.Errorf("failed to commit attribute: %w", err)
	}
	return true, nil
}

func (p *Provider) Del(_ context.Context, key string) error {
	err := p.fs.Remove(p.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func (p *Provider) Close(context.Context) error { return nil }
