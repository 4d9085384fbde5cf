package wire

import (
	"encoding/binary"
	"errors"
)

var ErrCorrupt = errors.New("gist: corrupt entry")

const headerLen = 4 + 1

const (
	absent  byte = 0
	present byte = 1
)

// Entry: stamp(i32 be) | present(1) | payload(rest, only when present=1)
type Entry struct {
	Stamp   int32
	Present bool
	Payload []byte
}

func Encode(e Entry) []byte {
	n := headerLen
	if e.Present {
		n += len(e.Payload)
	}
	b := make([]byte, headerLen, n)
	binary.BigEndian.PutUint32(b[:4], uint32(e.Stamp))
	if !e.Present {
		b[4] = absent
		return b
	}
	b[4] = present
	return append(b, e.Payload...)
}

func Decode(b []byte) (Entry, error) {
	if len(b) < headerLen {
		return Entry{}, ErrCorrupt
	}
	e := Entry{Stamp: int32(binary.BigEndian.Uint32(b[:4]))}
	switch b[4] {
	case absent:
		if len(b) != headerLen {
			return Entry{}, ErrCorrupt
		}
	case present:
		e.Present = true
		e.Payload = b[headerLen:]
	default:
		return Entry{}, ErrCorrupt
	}
	return e, nil
}
