// Package asynchook moves gist hook calls off the FileData path.
//
// usage:
//
//	raw := sloghooks.New(slog.Default(), sloghooks.Options{RejectEvery: 10})
//	hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
//	defer hooks.Close()
//
//	m, _ := gist.NewManager(gist.Options{
//	    Provider: p,
//	    Hooks:    hooks, // or `raw` if you don't want async
//	})
package asynchook

import (
	"sync"
	"sync/atomic"

	"github.com/unkn0wn-root/gist"
)

// Hooks queues events for a pool of workers. When the queue is full, events
// are dropped and counted rather than blocking the caller.
type Hooks struct {
	inner   gist.Hooks
	q       chan func()
	wg      sync.WaitGroup
	once    sync.Once
	mu      sync.RWMutex
	closed  bool
	dropped atomic.Uint64
}

var _ gist.Hooks = (*Hooks)(nil)

func New(inner gist.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

// Close drains queued events and stops the workers. Events arriving after
// Close are dropped.
func (h *Hooks) Close() {
	h.once.Do(func() {
		h.mu.Lock()
		h.closed = true
		close(h.q)
		h.mu.Unlock()
		h.wg.Wait()
	})
}

// Dropped reports how many events were discarded.
func (h *Hooks) Dropped() uint64 { return h.dropped.Load() }

func (h *Hooks) try(f func()) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		h.dropped.Add(1)
		return
	}
	select {
	case h.q <- f:
	default: // drop
		h.dropped.Add(1)
	}
}

func (h *Hooks) EntryRejected(k, r string) { h.try(func() { h.inner.EntryRejected(k, r) }) }
func (h *Hooks) ProviderSetRejected(k string) {
	h.try(func() { h.inner.ProviderSetRejected(k) })
}
func (h *Hooks) StorageReadError(k string, err error) {
	h.try(func() { h.inner.StorageReadError(k, err) })
}
func (h *Hooks) StorageWriteError(k string, err error) {
	h.try(func() { h.inner.StorageWriteError(k, err) })
}
func (h *Hooks) ReindexSnapshotError(err error) {
	h.try(func() { h.inner.ReindexSnapshotError(err) })
}
func (h *Hooks) Reindexed(g int32) { h.try(func() { h.inner.Reindexed(g) }) }
func (h *Hooks) DuplicateGist(id string, v int) {
	h.try(func() { h.inner.DuplicateGist(id, v) })
}
