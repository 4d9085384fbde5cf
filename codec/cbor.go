package codec

import (
	"github.com/fxamacker/cbor/v2"
)

// CBOROptions select the encoding and decoding modes of a CBOR codec.
type CBOROptions struct {
	// Deterministic uses RFC 8949 core deterministic encoding: equal values
	// give byte-identical payloads. Otherwise preferred unsorted encoding.
	Deterministic bool
	// Strict fails Decode on unknown struct fields and duplicate map keys.
	Strict bool
}

// CBOR stores values with fxamacker/cbor. Times are encoded as RFC 3339
// strings. Build one with NewCBOR or MustCBOR; the zero value has no modes.
type CBOR[V any] struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

var _ Codec[struct{}] = CBOR[struct{}]{}

func NewCBOR[V any](o CBOROptions) (CBOR[V], error) {
	eo := cbor.PreferredUnsortedEncOptions()
	if o.Deterministic {
		eo = cbor.CoreDetEncOptions()
	}
	eo.Time = cbor.TimeRFC3339Nano
	em, err := eo.EncMode()
	if err != nil {
		return CBOR[V]{}, err
	}

	var do cbor.DecOptions
	if o.Strict {
		do.DupMapKey = cbor.DupMapKeyEnforcedAPF
		do.ExtraReturnErrors = cbor.ExtraDecErrorUnknownField
	}
	dm, err := do.DecMode()
	if err != nil {
		return CBOR[V]{}, err
	}
	return CBOR[V]{enc: em, dec: dm}, nil
}

// MustCBOR panics when NewCBOR fails; meant for package-level codecs.
func MustCBOR[V any](o CBOROptions) CBOR[V] {
	c, err := NewCBOR[V](o)
	if err != nil {
		panic(err)
	}
	return c
}

func (c CBOR[V]) Encode(v V) ([]byte, error) { return c.enc.Marshal(v) }

func (c CBOR[V]) Decode(b []byte) (V, error) {
	var v V
	if rest, err := c.dec.UnmarshalFirst(b, &v); err != nil {
		return v, err
	} else if len(rest) != 0 {
		var zero V
		return zero, ErrTrailing
	}
	return v, nil
}
