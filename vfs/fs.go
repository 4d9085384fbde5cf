// Package vfs is a small host file system for gists: it gives every file a
// stable id and a modification counter, and persists both so that stored
// gists stay valid across restarts.
//
// Ids are only meaningful within one epoch. A fresh state, an unreadable
// state file, or a session that ended without Close starts a new epoch, and
// Projects handed out by FS.Project carry it, so gists stored under ids of a
// lost state are never matched again.
package vfs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/unkn0wn-root/gist"
)

var ErrIsDir = errors.New("vfs: path is a directory")

type record struct {
	ID      uint32 `msgpack:"id"`
	Mod     int32  `msgpack:"mod"`
	Size    int64  `msgpack:"size"`
	ModTime int64  `msgpack:"mtime"`
}

type state struct {
	Epoch   string             `msgpack:"epoch"`
	Live    bool               `msgpack:"live"` // set while a session holds the state
	NextID  uint32             `msgpack:"next_id"`
	Records map[string]*record `msgpack:"records"`
}

func freshState() state {
	return state{Epoch: uuid.NewString(), NextID: 1, Records: make(map[string]*record)}
}

// FS tracks files of an afero.Fs. Ids are assigned on first Open and never
// reused. A file's modification count grows whenever FS observes a change:
// a WriteFile or Touch, a differing size or mtime on Open/Refresh, or a
// watcher event.
type FS struct {
	fs        afero.Fs
	statePath string
	log       gist.Logger

	epoch string

	syncMu sync.Mutex // serializes state file writes

	mu    sync.Mutex
	state state
	dirty bool
}

// Option configures an FS.
type Option func(*FS)

// WithFs sets the backing filesystem. The default is the OS filesystem.
func WithFs(fs afero.Fs) Option {
	return func(f *FS) { f.fs = fs }
}

// WithState persists ids and modification counts to path (on the backing fs).
func WithState(path string) Option {
	return func(f *FS) { f.statePath = path }
}

func WithLogger(l gist.Logger) Option {
	return func(f *FS) { f.log = l }
}

// New loads the state file, if any, and marks it as held by this session.
// Without WithState every FS starts its own epoch.
func New(opts ...Option) (*FS, error) {
	f := &FS{
		fs:    afero.NewOsFs(),
		log:   gist.NopLogger{},
		state: freshState(),
	}
	for _, o := range opts {
		o(f)
	}
	if f.statePath != "" {
		if err := f.load(); err != nil {
			return nil, err
		}
		f.state.Live = true
		f.dirty = true
		if err := f.Sync(); err != nil {
			return nil, err
		}
	}
	f.epoch = f.state.Epoch
	return f, nil
}

func (f *FS) load() error {
	b, err := afero.ReadFile(f.fs, f.statePath)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read vfs state: %w", err)
	}
	var st state
	if err := msgpack.Unmarshal(b, &st); err != nil {
		f.log.Warn("vfs state unreadable; starting a new epoch", gist.Fields{"path": f.statePath, "err": err})
		return nil
	}
	if st.Records == nil {
		st.Records = make(map[string]*record)
	}
	if st.NextID == 0 {
		st.NextID = 1
	}
	switch {
	case st.Epoch == "":
		st.Epoch = uuid.NewString()
	case st.Live:
		// ids or counts handed out after the last Sync are lost
		f.log.Warn("vfs state was not closed; starting a new epoch", gist.Fields{"path": f.statePath, "epoch": st.Epoch})
		st.Epoch = uuid.NewString()
	}
	f.state = st
	return nil
}

// Epoch identifies the id space of this FS.
func (f *FS) Epoch() string { return f.epoch }

// Project returns the project rooted at root, scoped to this FS's epoch.
func (f *FS) Project(root string) Project {
	return Project{Root: root, epoch: f.epoch}
}

// Sync writes ids and modification counts to the state file, if configured.
func (f *FS) Sync() error {
	if f.statePath == "" {
		return nil
	}
	f.syncMu.Lock()
	defer f.syncMu.Unlock()

	f.mu.Lock()
	if !f.dirty {
		f.mu.Unlock()
		return nil
	}
	b, err := msgpack.Marshal(&f.state)
	f.dirty = false
	f.mu.Unlock()
	if err != nil {
		err = fmt.Errorf("failed to encode vfs state: %w", err)
	} else {
		err = f.write(b)
	}
	if err != nil {
		f.mu.Lock()
		f.dirty = true
		f.mu.Unlock()
		return err
	}
	return nil
}

func (f *FS) write(b []byte) error {
	if err := f.fs.MkdirAll(filepath.Dir(f.statePath), 0o755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}
	tmp := f.statePath + ".tmp"
	if err := afero.WriteFile(f.fs, tmp, b, 0o644); err != nil {
		return fmt.Errorf("failed to write vfs state: %w", err)
	}
	if err := f.fs.Rename(tmp, f.statePath); err != nil {
		_ = f.fs.Remove(tmp)
		return fmt.Errorf("failed to commit vfs state: %w", err)
	}
	return nil
}

// Close persists state and releases it for the next session.
func (f *FS) Close() error {
	f.mu.Lock()
	f.state.Live = false
	f.dirty = true
	f.mu.Unlock()
	return f.Sync()
}

// Open returns a handle for path, assigning an id on first sight and bumping
// the modification count when size or mtime differ from the last observation.
func (f *FS) Open(path string) (*File, error) {
	p := filepath.Clean(path)
	info, err := f.fs.Stat(p)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrIsDir, p)
	}
	id := f.observe(p, info)
	return &File{fs: f, path: p, id: id}, nil
}

// Refresh re-stats path and bumps its modification count if it changed.
// Unknown paths are ignored.
func (f *FS) Refresh(path string) error {
	p := filepath.Clean(path)
	f.mu.Lock()
	_, known := f.state.Records[p]
	f.mu.Unlock()
	if !known {
		return nil
	}
	info, err := f.fs.Stat(p)
	if errors.Is(err, os.ErrNotExist) {
		f.Touch(p)
		return nil
	}
	if err != nil {
		return err
	}
	f.observe(p, info)
	return nil
}

func (f *FS) observe(p string, info os.FileInfo) uint32 {
	size, mtime := info.Size(), info.ModTime().UnixNano()

	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.state.Records[p]
	if !ok {
		r = &record{ID: f.state.NextID, Size: size, ModTime: mtime}
		f.state.NextID++
		f.state.Records[p] = r
		f.dirty = true
		return r.ID
	}
	if r.Size != size || r.ModTime != mtime {
		r.Mod++
		r.Size, r.ModTime = size, mtime
		f.dirty = true
	}
	return r.ID
}

// WriteFile replaces the content of path and bumps its modification count.
func (f *FS) WriteFile(path string, data []byte) error {
	p := filepath.Clean(path)
	if err := f.fs.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	if err := afero.WriteFile(f.fs, p, data, 0o644); err != nil {
		return err
	}
	info, err := f.fs.Stat(p)
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.state.Records[p]
	if !ok {
		f.state.Records[p] = &record{ID: f.state.NextID, Size: info.Size(), ModTime: info.ModTime().UnixNano()}
		f.state.NextID++
	} else {
		r.Mod++
		r.Size, r.ModTime = info.Size(), info.ModTime().UnixNano()
	}
	f.dirty = true
	return nil
}

// Touch records a change to path. The count is bumped even when size and
// mtime look unchanged; both are re-read so the next Open does not count the
// same change again.
func (f *FS) Touch(path string) {
	p := filepath.Clean(path)
	info, err := f.fs.Stat(p)

	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.state.Records[p]
	if !ok {
		return
	}
	r.Mod++
	if err == nil {
		r.Size, r.ModTime = info.Size(), info.ModTime().UnixNano()
	}
	f.dirty = true
}

func (f *FS) modCount(p string) int32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.state.Records[p]; ok {
		return r.Mod
	}
	return 0
}

// File is a tracked file. Its modification count is read live from the FS.
type File struct {
	fs   *FS
	path string
	id   uint32
}

var _ gist.ContentFile = (*File)(nil)

func (f *File) Path() string             { return f.path }
func (f *File) ID() (uint32, bool)       { return f.id, true }
func (f *File) ModificationCount() int32 { return f.fs.modCount(f.path) }
func (f *File) Content() ([]byte, error) { return afero.ReadFile(f.fs.fs, f.path) }

// detached is a file the host does not track; gists never cache it.
type detached struct {
	name    string
	content []byte
}

// Detached returns a file without identity, e.g. an unsaved buffer.
func Detached(name string, content []byte) gist.ContentFile {
	return &detached{name: name, content: content}
}

func (d *detached) Path() string             { return d.name }
func (d *detached) ID() (uint32, bool)       { return 0, false }
func (d *detached) ModificationCount() int32 { return 0 }
func (d *detached) Content() ([]byte, error) { return d.content, nil }

// Project scopes gists to a root directory. Obtain it from FS.Project: a bare
// Project{Root} has no epoch and suits only providers that do not outlive
// the FS.
type Project struct {
	Root  string
	epoch string
}

var _ gist.Project = Project{}

func (p Project) LocationHash() string {
	if p.epoch == "" {
		return filepath.Clean(p.Root)
	}
	return filepath.Clean(p.Root) + "#" + p.epoch
}
