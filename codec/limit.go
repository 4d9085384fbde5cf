package codec

import (
	"errors"
	"fmt"
)

var ErrTooLarge = errors.New("codec: payload too large")

// Limited caps payload size in both directions. An oversized value is never
// stored (Encode fails and the gist reports a write error), and an oversized
// stored payload is treated as unreadable, e.g. one written to a shared
// redis by a misbehaving process.
type Limited[V any] struct {
	inner Codec[V]
	max   int
}

var _ Codec[string] = Limited[string]{}

// Limit wraps inner. limit <= 0 disables the check.
func Limit[V any](inner Codec[V], limit int) Limited[V] {
	return Limited[V]{inner: inner, max: limit}
}

func (c Limited[V]) check(n int) error {
	if c.max > 0 && n > c.max {
		return fmt.Errorf("%w: %d > %d bytes", ErrTooLarge, n, c.max)
	}
	return nil
}

func (c Limited[V]) Encode(v V) ([]byte, error) {
	b, err := c.inner.Encode(v)
	if err != nil {
		return nil, err
	}
	if err := c.check(len(b)); err != nil {
		return nil, err
	}
	return b, nil
}

func (c Limited[V]) Decode(b []byte) (V, error) {
	if err := c.check(len(b)); err != nil {
		var zero V
		return zero, err
	}
	return c.inner.Decode(b)
}
