package sloghooks

import (
	"log/slog"
	"strconv"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"

	"github.com/unkn0wn-root/gist"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	RejectEvery     uint64
	WriteErrorEvery uint64
	// Optional key redactor. Defaults to an xxhash digest of the key.
	Redact func(string) string
}

// Hooks logs gist events to a *slog.Logger.
type Hooks struct {
	l    *slog.Logger
	opts Options

	rejectCtr     atomic.Uint64
	writeErrorCtr atomic.Uint64
}

var _ gist.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(k string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	return strconv.FormatUint(xxhash.Sum64String(k), 16)
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) EntryRejected(storageKey, reason string) {
	if h.l == nil || !sample(h.opts.RejectEvery, &h.rejectCtr) {
		return
	}
	h.l.Debug("gist.entry_rejected",
		"key", h.redact(storageKey),
		"reason", reason)
}

func (h *Hooks) StorageReadError(storageKey string, err error) {
	if h.l == nil {
		return
	}
	h.l.Error("gist.storage_read_error",
		"key", h.redact(storageKey),
		"err", err)
}

func (h *Hooks) StorageWriteError(storageKey string, err error) {
	if h.l == nil || !sample(h.opts.WriteErrorEvery, &h.writeErrorCtr) {
		return
	}
	h.l.Error("gist.storage_write_error",
		"key", h.redact(storageKey),
		"err", err)
}

func (h *Hooks) ProviderSetRejected(storageKey string) {
	if h.l == nil {
		return
	}
	h.l.Warn("gist.provider_set_rejected",
		"key", h.redact(storageKey))
}

func (h *Hooks) ReindexSnapshotError(err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("gist.reindex_snapshot_error", "err", err)
}

func (h *Hooks) Reindexed(gen int32) {
	if h.l == nil {
		return
	}
	h.l.Info("gist.reindexed", "gen", gen)
}

func (h *Hooks) DuplicateGist(id string, version int) {
	if h.l == nil {
		return
	}
	h.l.Warn("gist.duplicate_gist",
		"id", id,
		"version", version)
}
