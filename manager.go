package gist

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/unkn0wn-root/gist/attr"
	gen "github.com/unkn0wn-root/gist/genstore"
	"github.com/unkn0wn-root/gist/internal/util"
	pr "github.com/unkn0wn-root/gist/provider"
)

// ReindexKey is the GenStore key holding the global reindex generation.
const ReindexKey = "gist.reindex.count"

type gistKey struct {
	id      string
	version int
}

// Manager creates gists and owns what they share: the attribute table, the
// reindex generation, logging and hooks. Construct one per application and
// pass it to NewVirtualFileGist / NewContentGist.
type Manager struct {
	provider pr.Provider
	attrs    *attr.Table
	gen      gen.GenStore
	log      Logger
	hooks    Hooks
	enabled  bool
	flight   *singleflight.Group

	mu         sync.Mutex
	registered map[gistKey]struct{}

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

func NewManager(opts Options) (*Manager, error) {
	if opts.Provider == nil {
		return nil, ErrNoProvider
	}
	m := &Manager{
		provider:   opts.Provider,
		attrs:      attr.NewTable(opts.Provider),
		enabled:    !opts.Disabled,
		registered: make(map[gistKey]struct{}),
	}

	// defaults
	m.log = coalesce[Logger](opts.Logger, NopLogger{})
	m.hooks = coalesce[Hooks](opts.Hooks, NopHooks{})
	if opts.GenStore != nil {
		m.gen = opts.GenStore
	} else {
		m.gen = gen.NewLocalGenStore()
	}
	if opts.SingleFlight {
		m.flight = &singleflight.Group{}
	}
	return m, nil
}

func (m *Manager) Enabled() bool { return m.enabled }

// ReindexCount returns the current reindex generation.
func (m *Manager) ReindexCount(ctx context.Context) (int32, error) {
	if m.closed.Load() {
		return 0, ErrClosed
	}
	g, err := m.gen.Snapshot(ctx, ReindexKey)
	if err != nil {
		return 0, err
	}
	return int32(g), nil
}

// InvalidateData bumps the reindex generation. Every entry stored before the
// bump stops matching its file's stamp; nothing is deleted.
func (m *Manager) InvalidateData(ctx context.Context) (int32, error) {
	if m.closed.Load() {
		return 0, ErrClosed
	}
	g, err := m.gen.Bump(ctx, ReindexKey)
	if err != nil {
		m.log.Error("reindex bump failed", Fields{"err": err})
		return 0, err
	}
	m.log.Info("gists invalidated", Fields{"reindexCount": int32(g)})
	m.hooks.Reindexed(int32(g))
	return int32(g), nil
}

// Close releases the generation store and the provider. Gists of a closed
// manager fail with ErrClosed.
func (m *Manager) Close(ctx context.Context) error {
	m.closeOnce.Do(func() {
		m.closed.Store(true)
		m.closeErr = errors.Join(m.gen.Close(ctx), m.provider.Close(ctx))
	})
	return m.closeErr
}

func (m *Manager) register(id string, version int) {
	k := gistKey{id: id, version: version}
	m.mu.Lock()
	_, dup := m.registered[k]
	m.registered[k] = struct{}{}
	m.mu.Unlock()

	if dup {
		m.log.Warn("gist registered more than once", Fields{"id": id, "version": version})
		m.hooks.DuplicateGist(id, version)
	}
}

func (m *Manager) attribute(id string, version int, project Project) *attr.Attribute {
	ph := util.NullProject
	if project != nil {
		ph = util.ProjectHash(project.LocationHash())
	}
	return m.attrs.Get(util.AttributeName(id, ph), version+InternalVersion)
}
