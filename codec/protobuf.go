package codec

import "google.golang.org/protobuf/proto"

// Protobuf stores proto messages. ctor returns an empty message to decode
// into, e.g. func() *pb.Outline { return new(pb.Outline) }.
type Protobuf[T proto.Message] struct {
	ctor func() T
}

func NewProtobuf[T proto.Message](ctor func() T) Protobuf[T] {
	return Protobuf[T]{ctor: ctor}
}

var marshal = proto.MarshalOptions{Deterministic: true}

// Encode is deterministic so a recomputed, unchanged message is stored with
// the same bytes.
func (c Protobuf[T]) Encode(v T) ([]byte, error) { return marshal.Marshal(v) }

func (c Protobuf[T]) Decode(b []byte) (T, error) {
	m := c.ctor()
	if err := proto.Unmarshal(b, m); err != nil {
		var zero T
		return zero, err
	}
	return m, nil
}
