package vfs

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/unkn0wn-root/gist"
	"github.com/unkn0wn-root/gist/codec"
	gen "github.com/unkn0wn-root/gist/genstore"
	fileprovider "github.com/unkn0wn-root/gist/provider/file"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newMemFS(t *testing.T, opts ...Option) (*FS, afero.Fs) {
	t.Helper()
	mem := afero.NewMemMapFs()
	f, err := New(append([]Option{WithFs(mem)}, opts...)...)
	require.NoError(t, err)
	return f, mem
}

func TestOpenAssignsStableIDs(t *testing.T) {
	f, _ := newMemFS(t)
	require.NoError(t, f.WriteFile("/p/a.txt", []byte("a")))
	require.NoError(t, f.WriteFile("/p/b.txt", []byte("b")))

	a1, err := f.Open("/p/a.txt")
	require.NoError(t, err)
	b, err := f.Open("/p/b.txt")
	require.NoError(t, err)
	a2, err := f.Open("/p/./a.txt")
	require.NoError(t, err)

	id1, ok := a1.ID()
	require.True(t, ok)
	id2, _ := a2.ID()
	idb, _ := b.ID()
	require.Equal(t, id1, id2)
	require.NotEqual(t, id1, idb)
	require.Equal(t, "/p/a.txt", a2.Path())
}

func TestOpenErrors(t *testing.T) {
	f, mem := newMemFS(t)
	_, err := f.Open("/missing")
	require.ErrorIs(t, err, os.ErrNotExist)

	require.NoError(t, mem.MkdirAll("/dir", 0o755))
	_, err = f.Open("/dir")
	require.ErrorIs(t, err, ErrIsDir)
}

func TestWriteFileBumpsModificationCount(t *testing.T) {
	f, _ := newMemFS(t)
	require.NoError(t, f.WriteFile("/a", []byte("one")))
	file, err := f.Open("/a")
	require.NoError(t, err)
	require.Equal(t, int32(0), file.ModificationCount())

	require.NoError(t, f.WriteFile("/a", []byte("two")))
	require.Equal(t, int32(1), file.ModificationCount(), "handle must see live count")

	c, err := file.Content()
	require.NoError(t, err)
	require.Equal(t, "two", string(c))
}

func TestTouchAndRefresh(t *testing.T) {
	f, mem := newMemFS(t)
	require.NoError(t, f.WriteFile("/a", []byte("x")))
	file, err := f.Open("/a")
	require.NoError(t, err)

	f.Touch("/a")
	require.Equal(t, int32(1), file.ModificationCount())

	// unchanged stat: no bump
	require.NoError(t, f.Refresh("/a"))
	require.Equal(t, int32(1), file.ModificationCount())

	// external change with a different size
	require.NoError(t, afero.WriteFile(mem, "/a", []byte("longer"), 0o644))
	require.NoError(t, f.Refresh("/a"))
	require.Equal(t, int32(2), file.ModificationCount())

	// removal counts as a change
	require.NoError(t, mem.Remove("/a"))
	require.NoError(t, f.Refresh("/a"))
	require.Equal(t, int32(3), file.ModificationCount())

	// untracked paths are ignored
	f.Touch("/nope")
	require.NoError(t, f.Refresh("/nope"))
}

func TestOpenDetectsExternalChange(t *testing.T) {
	f, mem := newMemFS(t)
	require.NoError(t, afero.WriteFile(mem, "/a", []byte("x"), 0o644))
	file, err := f.Open("/a")
	require.NoError(t, err)
	require.Equal(t, int32(0), file.ModificationCount())

	require.NoError(t, afero.WriteFile(mem, "/a", []byte("xyz"), 0o644))
	_, err = f.Open("/a")
	require.NoError(t, err)
	require.Equal(t, int32(1), file.ModificationCount())
}

func TestStatePersistsAcrossInstances(t *testing.T) {
	mem := afero.NewMemMapFs()
	f1, err := New(WithFs(mem), WithState("/state/vfs.bin"))
	require.NoError(t, err)
	require.NoError(t, f1.WriteFile("/a", []byte("1")))
	require.NoError(t, f1.WriteFile("/a", []byte("2")))
	require.NoError(t, f1.WriteFile("/b", []byte("b")))
	a1, err := f1.Open("/a")
	require.NoError(t, err)
	id1, _ := a1.ID()
	require.NoError(t, f1.Close())

	f2, err := New(WithFs(mem), WithState("/state/vfs.bin"))
	require.NoError(t, err)
	a2, err := f2.Open("/a")
	require.NoError(t, err)
	id2, _ := a2.ID()
	require.Equal(t, id1, id2)
	require.Equal(t, int32(1), a2.ModificationCount())

	// ids are never reused
	require.NoError(t, f2.WriteFile("/c", []byte("c")))
	c, err := f2.Open("/c")
	require.NoError(t, err)
	idc, _ := c.ID()
	require.Greater(t, idc, id1)
}

func TestUnreadableStateStartsFresh(t *testing.T) {
	mem := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(mem, "/vfs.bin", []byte{0xc1, 0x00}, 0o644))
	f, err := New(WithFs(mem), WithState("/vfs.bin"))
	require.NoError(t, err)
	require.NoError(t, f.WriteFile("/a", []byte("a")))
	a, err := f.Open("/a")
	require.NoError(t, err)
	id, _ := a.ID()
	require.Equal(t, uint32(1), id)
}

func TestSyncWithoutStateIsNoop(t *testing.T) {
	f, mem := newMemFS(t)
	require.NoError(t, f.WriteFile("/a", []byte("a")))
	require.NoError(t, f.Sync())
	ok, err := afero.Exists(mem, "/a.tmp")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestDetachedHasNoIdentity(t *testing.T) {
	d := Detached("scratch", []byte("buf"))
	_, ok := d.ID()
	require.False(t, ok)
	c, err := d.Content()
	require.NoError(t, err)
	require.Equal(t, "buf", string(c))
}

func TestProjectLocationHash(t *testing.T) {
	require.Equal(t, Project{Root: "/w/p"}.LocationHash(), Project{Root: "/w/p/"}.LocationHash())
	require.NotEqual(t, Project{Root: "/w/p"}.LocationHash(), Project{Root: "/w/q"}.LocationHash())

	f, _ := newMemFS(t)
	g, _ := newMemFS(t)
	require.Equal(t, f.Project("/w/p").LocationHash(), f.Project("/w/p/").LocationHash())
	require.NotEqual(t, f.Project("/w/p").LocationHash(), g.Project("/w/p").LocationHash())
	require.NotEqual(t, Project{Root: "/w/p"}.LocationHash(), f.Project("/w/p").LocationHash())
}

func TestTouchThenOpenCountsOnce(t *testing.T) {
	f, mem := newMemFS(t)
	require.NoError(t, afero.WriteFile(mem, "/a", []byte("x"), 0o644))
	file, err := f.Open("/a")
	require.NoError(t, err)

	require.NoError(t, afero.WriteFile(mem, "/a", []byte("longer"), 0o644))
	f.Touch("/a")
	_, err = f.Open("/a")
	require.NoError(t, err)
	require.Equal(t, int32(1), file.ModificationCount())
}

func TestEpochSurvivesOnlyCleanClose(t *testing.T) {
	mem := afero.NewMemMapFs()
	f1, err := New(WithFs(mem), WithState("/vfs.bin"))
	require.NoError(t, err)
	require.NotEmpty(t, f1.Epoch())
	require.NoError(t, f1.Close())

	f2, err := New(WithFs(mem), WithState("/vfs.bin"))
	require.NoError(t, err)
	require.Equal(t, f1.Epoch(), f2.Epoch())

	// f2 never closes, so whatever it handed out may be lost
	f3, err := New(WithFs(mem), WithState("/vfs.bin"))
	require.NoError(t, err)
	require.NotEqual(t, f2.Epoch(), f3.Epoch())
	require.NoError(t, f3.Close())
}

// failingFs fails renames on demand.
type failingFs struct {
	afero.Fs
	failRename bool
}

func (m *failingFs) Rename(oldname, newname string) error {
	if m.failRename {
		return errors.New("mock Rename error")
	}
	return m.Fs.Rename(oldname, newname)
}

func TestFailedSyncKeepsStateDirty(t *testing.T) {
	ffs := &failingFs{Fs: afero.NewMemMapFs()}
	f, err := New(WithFs(ffs), WithState("/vfs.bin"))
	require.NoError(t, err)
	require.NoError(t, f.WriteFile("/a", []byte("a")))

	ffs.failRename = true
	require.Error(t, f.Sync())
	require.Error(t, f.Sync(), "a failed sync must be retried")
	require.Error(t, f.Close())

	ffs.failRename = false
	require.NoError(t, f.Close())

	g, err := New(WithFs(ffs), WithState("/vfs.bin"))
	require.NoError(t, err)
	require.Equal(t, f.Epoch(), g.Epoch())
	a, err := g.Open("/a")
	require.NoError(t, err)
	id, _ := a.ID()
	require.Equal(t, uint32(1), id)
	require.NoError(t, g.Close())
}

// sizeOf runs one size gist over path on a persistent stack sharing mem and
// reports whether the value had to be computed.
func sizeOf(t *testing.T, mem afero.Fs, f *FS, path string) (int, bool) {
	t.Helper()
	ctx := context.Background()
	p, err := fileprovider.Open("/store", fileprovider.WithFs(mem))
	require.NoError(t, err)
	g, err := gen.NewFileGenStore(mem, "/gen")
	require.NoError(t, err)
	m, err := gist.NewManager(gist.Options{Provider: p, GenStore: g})
	require.NoError(t, err)
	defer func() { require.NoError(t, m.Close(ctx)) }()

	computed := false
	size, err := gist.NewContentGist[int](m, "size", 1, codec.Int{}, func(_ context.Context, _ gist.Project, b []byte) (int, bool, error) {
		computed = true
		return len(b), true, nil
	})
	require.NoError(t, err)

	file, err := f.Open(path)
	require.NoError(t, err)
	v, ok, err := size.FileData(ctx, f.Project("/p"), file)
	require.NoError(t, err)
	require.True(t, ok)
	return v, computed
}

func TestCleanRestartReusesStoredGists(t *testing.T) {
	mem := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(mem, "/p/a.txt", []byte("abc"), 0o644))

	f1, err := New(WithFs(mem), WithState("/state/vfs.bin"))
	require.NoError(t, err)
	v, computed := sizeOf(t, mem, f1, "/p/a.txt")
	require.Equal(t, 3, v)
	require.True(t, computed)
	require.NoError(t, f1.Close())

	f2, err := New(WithFs(mem), WithState("/state/vfs.bin"))
	require.NoError(t, err)
	v, computed = sizeOf(t, mem, f2, "/p/a.txt")
	require.Equal(t, 3, v)
	require.False(t, computed)
	require.NoError(t, f2.Close())
}

func TestLostStateNeverServesAnotherFilesValue(t *testing.T) {
	tests := []struct {
		name string
		lose func(t *testing.T, mem afero.Fs, f *FS)
	}{
		{"not closed", func(*testing.T, afero.Fs, *FS) {}},
		{"corrupt state", func(t *testing.T, mem afero.Fs, f *FS) {
			require.NoError(t, f.Close())
			require.NoError(t, afero.WriteFile(mem, "/state/vfs.bin", []byte{0xc1, 0x00}, 0o644))
		}},
		{"deleted state", func(t *testing.T, mem afero.Fs, f *FS) {
			require.NoError(t, f.Close())
			require.NoError(t, mem.Remove("/state/vfs.bin"))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mem := afero.NewMemMapFs()
			require.NoError(t, afero.WriteFile(mem, "/p/a.txt", []byte("abc"), 0o644))
			require.NoError(t, afero.WriteFile(mem, "/p/b.txt", []byte("hello world"), 0o644))

			f1, err := New(WithFs(mem), WithState("/state/vfs.bin"))
			require.NoError(t, err)
			v, computed := sizeOf(t, mem, f1, "/p/a.txt")
			require.Equal(t, 3, v)
			require.True(t, computed)
			tt.lose(t, mem, f1)

			// b.txt gets the id a.txt had, with the same count
			f2, err := New(WithFs(mem), WithState("/state/vfs.bin"))
			require.NoError(t, err)
			b, err := f2.Open("/p/b.txt")
			require.NoError(t, err)
			id, _ := b.ID()
			require.Equal(t, uint32(1), id)

			v, computed = sizeOf(t, mem, f2, "/p/b.txt")
			require.Equal(t, 11, v)
			require.True(t, computed)
			require.NoError(t, f2.Close())
		})
	}
}

func TestWatchBumpsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("one"), 0o644))

	f, err := New()
	require.NoError(t, err)
	file, err := f.Open(path)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	changed := make(chan string, 16)
	done := make(chan error, 1)
	go func() {
		done <- f.Watch(ctx, dir, func(p string) {
			select {
			case changed <- p:
			default:
			}
		})
	}()

	// the watcher registers asynchronously; keep writing until it reports
	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
wait:
	for {
		select {
		case p := <-changed:
			require.Equal(t, path, p)
			break wait
		case <-tick.C:
			require.NoError(t, os.WriteFile(path, []byte("two"), 0o644))
		case <-deadline:
			cancel()
			t.Fatal("no change observed")
		}
	}
	require.Greater(t, file.ModificationCount(), int32(0))

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}
