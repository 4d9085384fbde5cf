package gist

import (
	"context"
	"errors"
	"io"
	"strconv"

	"github.com/unkn0wn-root/gist/attr"
	"github.com/unkn0wn-root/gist/codec"
	"github.com/unkn0wn-root/gist/internal/wire"
)

type fileGist[V any] struct {
	m       *Manager
	id      string
	version int
	codec   codec.Codec[V]
	calc    Calculator[V]
}

type result[V any] struct {
	v  V
	ok bool
}

func (g *fileGist[V]) ID() string   { return g.id }
func (g *fileGist[V]) Version() int { return g.version }

func (g *fileGist[V]) FileData(ctx context.Context, project Project, file File) (V, bool, error) {
	if err := ctx.Err(); err != nil {
		var zero V
		return zero, false, err
	}
	if g.m.closed.Load() {
		var zero V
		return zero, false, ErrClosed
	}
	fileID, hasID := file.ID()
	if !hasID || !g.m.enabled {
		return g.calc(ctx, project, file)
	}

	reindex, err := g.m.ReindexCount(ctx)
	if err != nil {
		// without the generation we cannot tell stale entries apart
		g.m.log.Warn("reindex snapshot failed; bypassing storage", Fields{"id": g.id, "err": err})
		g.m.hooks.ReindexSnapshotError(err)
		return g.calc(ctx, project, file)
	}
	stamp := file.ModificationCount() + reindex

	a := g.m.attribute(g.id, g.version, project)
	if v, ok, hit := g.load(ctx, a, fileID, stamp); hit {
		return v, ok, nil
	}

	if g.m.flight == nil {
		return g.compute(ctx, a, project, file, fileID, stamp)
	}

	fk := a.Key(fileID) + "@" + strconv.FormatInt(int64(stamp), 10)
	r, err, _ := g.m.flight.Do(fk, func() (any, error) {
		v, ok, err := g.compute(ctx, a, project, file, fileID, stamp)
		return result[V]{v: v, ok: ok}, err
	})
	if err != nil {
		var zero V
		return zero, false, err
	}
	res := r.(result[V])
	return res.v, res.ok, nil
}

// load reports hit=true only for a readable entry whose stamp matches.
func (g *fileGist[V]) load(ctx context.Context, a *attr.Attribute, fileID uint32, stamp int32) (v V, ok bool, hit bool) {
	var zero V
	key := a.Key(fileID)

	r, found, err := a.Read(ctx, fileID)
	if err == nil && found {
		var raw []byte
		if raw, err = io.ReadAll(r); err == nil {
			return g.decode(key, raw, stamp)
		}
	}
	if err != nil {
		serr := &StorageError{Op: "read", Key: key, FileID: fileID, Err: err}
		g.m.log.Error("gist read failed", Fields{"id": g.id, "key": key, "err": serr})
		g.m.hooks.StorageReadError(key, serr)
	}
	return zero, false, false
}

func (g *fileGist[V]) decode(key string, raw []byte, stamp int32) (v V, ok bool, hit bool) {
	var zero V

	e, err := wire.Decode(raw)
	if err != nil {
		g.m.log.Error("gist entry corrupt", Fields{"id": g.id, "key": key, "err": err})
		g.m.hooks.EntryRejected(key, "corrupt")
		return zero, false, false
	}
	if e.Stamp != stamp {
		g.m.log.Debug("gist entry stale", Fields{"id": g.id, "key": key, "stored": e.Stamp, "want": stamp})
		return zero, false, false
	}
	if !e.Present {
		return zero, false, true
	}

	v, err = g.codec.Decode(e.Payload)
	if err != nil {
		g.m.log.Error("gist value decode failed", Fields{"id": g.id, "key": key, "err": err})
		g.m.hooks.EntryRejected(key, "value_decode")
		return zero, false, false
	}
	return v, true, true
}

func (g *fileGist[V]) compute(ctx context.Context, a *attr.Attribute, project Project, file File, fileID uint32, stamp int32) (V, bool, error) {
	v, ok, err := g.calc(ctx, project, file)
	if err != nil {
		return v, ok, err
	}
	g.store(ctx, a, fileID, stamp, v, ok)
	return v, ok, nil
}

// store persists a computed value. Failures are reported, never returned.
func (g *fileGist[V]) store(ctx context.Context, a *attr.Attribute, fileID uint32, stamp int32, v V, ok bool) {
	key := a.Key(fileID)
	e := wire.Entry{Stamp: stamp, Present: ok}
	if ok {
		payload, err := g.codec.Encode(v)
		if err != nil {
			serr := &StorageError{Op: "encode", Key: key, FileID: fileID, Err: err}
			g.m.log.Error("gist value encode failed", Fields{"id": g.id, "key": key, "err": serr})
			g.m.hooks.StorageWriteError(key, serr)
			return
		}
		e.Payload = payload
	}

	err := a.Write(ctx, fileID, func(w io.Writer) error {
		_, err := w.Write(wire.Encode(e))
		return err
	})
	switch {
	case err == nil:
	case errors.Is(err, attr.ErrRejected):
		g.m.log.Debug("gist write rejected by provider (pressure)", Fields{"id": g.id, "key": key})
		g.m.hooks.ProviderSetRejected(key)
	default:
		serr := &StorageError{Op: "write", Key: key, FileID: fileID, Err: err}
		g.m.log.Error("gist write failed", Fields{"id": g.id, "key": key, "err": serr})
		g.m.hooks.StorageWriteError(key, serr)
	}
}
