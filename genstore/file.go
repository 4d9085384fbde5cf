package genstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/spf13/afero"
)

// FileGenStore persists each generation as a decimal number in its own file
// under dir. Bumps are serialized within the process; the file is replaced
// with a rename so a crash never leaves a half-written counter.
type FileGenStore struct {
	mu  sync.Mutex
	fs  afero.Fs
	dir string
}

var _ GenStore = (*FileGenStore)(nil)

// NewFileGenStore creates dir if needed. A nil fs means the OS filesystem.
func NewFileGenStore(fs afero.Fs, dir string) (*FileGenStore, error) {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create generation directory: %w", err)
	}
	return &FileGenStore{fs: fs, dir: dir}, nil
}

func (s *FileGenStore) path(k string) string {
	return filepath.Join(s.dir, strings.ReplaceAll(k, string(filepath.Separator), "_")+".gen")
}

func (s *FileGenStore) read(k string) (uint64, error) {
	b, err := afero.ReadFile(s.fs, s.path(k))
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	u, err := strconv.ParseUint(strings.TrimSpace(string(b)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("file gen parse: %w", err)
	}
	return u, nil
}

func (s *FileGenStore) Snapshot(_ context.Context, k string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read(k)
}

func (s *FileGenStore) Bump(_ context.Context, k string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, err := s.read(k)
	if err != nil {
		return 0, err
	}
	g++

	tmp := s.path(k) + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, []byte(strconv.FormatUint(g, 10)+"\n"), 0o644); err != nil {
		return 0, fmt.Errorf("failed to write generation: %w", err)
	}
	if err := s.fs.Rename(tmp, s.path(k)); err != nil {
		_ = s.fs.Remove(tmp)
		return 0, fmt.Errorf("failed to commit generation: %w", err)
	}
	return g, nil
}

func (s *FileGenStore) Close(context.Context) error { return nil }
