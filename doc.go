// Package gist implements per-file memoization with persistent, versioned,
// invalidation-aware storage.
//
// A Gist binds an id, a version, a codec and a calculator. FileData returns
// the calculator's result for a file, reusing the stored value while the
// file's modification count and the manager's reindex generation are unchanged.
//
// Components:
//   - Provider: byte store holding entries (bigcache, ristretto, redis, file, sqlite).
//   - Codec[V]: (de)serializes V <-> []byte.
//   - GenStore: holds the global reindex generation. Local (in-process) by
//     default; file or redis to persist it across restarts.
//
// Keys:
//
//	attr:gist@<id>@<project>:v<version+InternalVersion>:<fileID>
//
// Entry layout:
//
//	stamp(i32 be) | present(1) | payload
//
// where stamp = file.ModificationCount() + reindex generation. An entry whose
// stamp differs from the current one is ignored and overwritten on recompute.
//
// Usage:
//
//	m, _ := gist.NewManager(gist.Options{Provider: p})
//	size, _ := gist.NewContentGist(m, "size", 1, codec.Int{},
//	    func(_ context.Context, _ gist.Project, b []byte) (int, bool, error) {
//	        return len(b), true, nil
//	    })
//	n, ok, err := size.FileData(ctx, project, file)
package gist
