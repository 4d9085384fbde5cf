package codec

import (
	"encoding/binary"
	"errors"
)

// Bytes is an identity codec for []byte values. Encode/Decode return the
// input unchanged.
type Bytes struct{}

func (Bytes) Encode(b []byte) ([]byte, error) { return b, nil }
func (Bytes) Decode(b []byte) ([]byte, error) { return append([]byte(nil), b...), nil }

// String is a trivial codec for Go string values. By convention this assumes
// UTF-8 and performs no validation.
type String struct{}

func (String) Encode(s string) ([]byte, error) { return []byte(s), nil }
func (String) Decode(b []byte) (string, error) { return string(b), nil }

// Int stores an int as a zig-zag varint.
type Int struct{}

var errVarint = errors.New("codec: malformed varint")

func (Int) Encode(v int) ([]byte, error) {
	return binary.AppendVarint(nil, int64(v)), nil
}
func (Int) Decode(b []byte) (int, error) {
	v, n := binary.Varint(b)
	if n <= 0 || n != len(b) {
		return 0, errVarint
	}
	return int(v), nil
}
