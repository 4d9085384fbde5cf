package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
)

// JSON stores values as encoding/json documents. The zero value is ready to
// use. With Strict set, fields the current V does not know about fail Decode,
// so an entry written by an older shape of V is recomputed instead of being
// silently half-read.
type JSON[V any] struct {
	Strict bool
}

var _ Codec[struct{}] = JSON[struct{}]{}

func (JSON[V]) Encode(v V) ([]byte, error) { return json.Marshal(v) }

func (c JSON[V]) Decode(b []byte) (V, error) {
	var v V
	if !c.Strict {
		err := json.Unmarshal(b, &v)
		return v, err
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&v); err != nil {
		return v, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		var zero V
		return zero, ErrTrailing
	}
	return v, nil
}
