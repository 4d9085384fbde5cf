// Package codec provides externalizers: the (de)serializers that turn a gist
// value into the payload bytes of a stored entry and back.
//
// A codec only sees present values. A calculator result of "no data" is
// recorded in the entry header and never reaches Encode or Decode.
package codec

import "errors"

// ErrTrailing is returned when a payload holds more than one value.
var ErrTrailing = errors.New("codec: trailing bytes after value")

// Codec turns a gist value into payload bytes and back. A Decode error makes
// the stored entry a miss, so a codec should fail rather than guess.
// Codecs shared by concurrent FileData calls must be safe for concurrent use.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}
