package main

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/unkn0wn-root/gist"
	"github.com/unkn0wn-root/gist/codec"
)

// Stats is stored with msgpack; bump the gist version when fields change.
type Stats struct {
	Bytes int `msgpack:"b"`
	Lines int `msgpack:"l"`
	Words int `msgpack:"w"`
}

func (s Stats) String() string {
	return fmt.Sprintf("bytes=%d lines=%d words=%d", s.Bytes, s.Lines, s.Words)
}

// runner computes one gist and renders its value.
type runner func(ctx context.Context, project gist.Project, file gist.File) (value string, ok bool, err error)

// tracker wraps a calculator so the caller can tell a computed value from a
// stored one.
type tracker struct{ computed bool }

func (p *tracker) reset() { p.computed = false }

func withTracker[V any](p *tracker, calc gist.ContentCalculator[V]) gist.ContentCalculator[V] {
	return func(ctx context.Context, project gist.Project, content []byte) (V, bool, error) {
		p.computed = true
		return calc(ctx, project, content)
	}
}

func bind[V any](g gist.Gist[V], render func(V) string) runner {
	return func(ctx context.Context, project gist.Project, file gist.File) (string, bool, error) {
		v, ok, err := g.FileData(ctx, project, file)
		if err != nil || !ok {
			return "", ok, err
		}
		return render(v), true, nil
	}
}

func isBinary(b []byte) bool {
	return bytes.IndexByte(b, 0) >= 0
}

func countLines(b []byte) int {
	n := bytes.Count(b, []byte{'\n'})
	if len(b) > 0 && b[len(b)-1] != '\n' {
		n++
	}
	return n
}

func sizeCalc(_ context.Context, _ gist.Project, b []byte) (int, bool, error) {
	return len(b), true, nil
}

// lineCalc has no data for binary files.
func lineCalc(_ context.Context, _ gist.Project, b []byte) (int, bool, error) {
	if isBinary(b) {
		return 0, false, nil
	}
	return countLines(b), true, nil
}

func digestCalc(_ context.Context, _ gist.Project, b []byte) (string, bool, error) {
	return strconv.FormatUint(xxhash.Sum64(b), 16), true, nil
}

func statsCalc(_ context.Context, _ gist.Project, b []byte) (Stats, bool, error) {
	if isBinary(b) {
		return Stats{}, false, nil
	}
	return Stats{Bytes: len(b), Lines: countLines(b), Words: len(bytes.Fields(b))}, true, nil
}

// registry creates every gist the tool knows about on m.
func registry(m *gist.Manager, p *tracker) (map[string]runner, error) {
	size, err := gist.NewContentGist[int](m, "size", 1, codec.Int{}, withTracker[int](p, sizeCalc))
	if err != nil {
		return nil, err
	}
	lines, err := gist.NewContentGist[int](m, "lines", 1, codec.Int{}, withTracker[int](p, lineCalc))
	if err != nil {
		return nil, err
	}
	digest, err := gist.NewContentGist[string](m, "digest", 1, codec.String{}, withTracker[string](p, digestCalc))
	if err != nil {
		return nil, err
	}
	stats, err := gist.NewContentGist[Stats](m, "stats", 1, codec.Msgpack[Stats]{Strict: true}, withTracker[Stats](p, statsCalc))
	if err != nil {
		return nil, err
	}
	return map[string]runner{
		"size":   bind(size, strconv.Itoa),
		"lines":  bind(lines, strconv.Itoa),
		"digest": bind(digest, func(s string) string { return s }),
		"stats":  bind(stats, Stats.String),
	}, nil
}

func gistNames(r map[string]runner) string {
	names := make([]string, 0, len(r))
	for n := range r {
		names = append(names, n)
	}
	sort.Strings(names)
	return strings.Join(names, "|")
}
