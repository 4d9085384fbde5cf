package codec

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"google.golang.org/protobuf/types/known/wrapperspb"
)

type outline struct {
	Path    string    `json:"path" cbor:"path" msgpack:"path"`
	Symbols []string  `json:"symbols" cbor:"symbols" msgpack:"symbols"`
	At      time.Time `json:"at" cbor:"at" msgpack:"at"`
}

func sample() outline {
	return outline{
		Path:    "src/main.go",
		Symbols: []string{"main", "run"},
		At:      time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func checkStructCodec(t *testing.T, name string, c Codec[outline]) {
	t.Helper()
	in := sample()
	b, err := c.Encode(in)
	if err != nil {
		t.Fatalf("%s Encode: %v", name, err)
	}
	out, err := c.Decode(b)
	if err != nil {
		t.Fatalf("%s Decode: %v", name, err)
	}
	if out.Path != in.Path || len(out.Symbols) != 2 || out.Symbols[1] != "run" || !out.At.Equal(in.At) {
		t.Fatalf("%s mismatch: got %+v want %+v", name, out, in)
	}
}

func TestStructCodecs(t *testing.T) {
	checkStructCodec(t, "json", JSON[outline]{})
	checkStructCodec(t, "json-strict", JSON[outline]{Strict: true})
	checkStructCodec(t, "msgpack", Msgpack[outline]{})
	checkStructCodec(t, "msgpack-strict", Msgpack[outline]{Strict: true})
	checkStructCodec(t, "cbor", MustCBOR[outline](CBOROptions{}))
	checkStructCodec(t, "cbor-det", MustCBOR[outline](CBOROptions{Deterministic: true, Strict: true}))
}

// outlineV0 is an older shape of outline with a field that was later dropped.
type outlineV0 struct {
	Path  string `json:"path" cbor:"path" msgpack:"path"`
	Lines int    `json:"lines" cbor:"lines" msgpack:"lines"`
}

func TestStrictRejectsOldShapes(t *testing.T) {
	old := outlineV0{Path: "a.go", Lines: 3}

	tests := []struct {
		name   string
		enc    Codec[outlineV0]
		lax    Codec[outline]
		strict Codec[outline]
	}{
		{"json", JSON[outlineV0]{}, JSON[outline]{}, JSON[outline]{Strict: true}},
		{"msgpack", Msgpack[outlineV0]{}, Msgpack[outline]{}, Msgpack[outline]{Strict: true}},
		{"cbor", MustCBOR[outlineV0](CBOROptions{}), MustCBOR[outline](CBOROptions{}), MustCBOR[outline](CBOROptions{Strict: true})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := tt.enc.Encode(old)
			if err != nil {
				t.Fatal(err)
			}
			got, err := tt.lax.Decode(b)
			if err != nil || got.Path != "a.go" {
				t.Fatalf("lax decode: %+v err=%v", got, err)
			}
			if _, err := tt.strict.Decode(b); err == nil {
				t.Fatalf("strict decode accepted an unknown field")
			}
		})
	}
}

func TestTrailingBytesRejected(t *testing.T) {
	j, _ := JSON[outline]{}.Encode(sample())
	if _, err := (JSON[outline]{Strict: true}).Decode(append(j, j...)); !errors.Is(err, ErrTrailing) {
		t.Fatalf("json: %v", err)
	}
	m, _ := Msgpack[int]{}.Encode(7)
	if _, err := (Msgpack[int]{}).Decode(append(m, m...)); !errors.Is(err, ErrTrailing) {
		t.Fatalf("msgpack: %v", err)
	}
	cb := MustCBOR[int](CBOROptions{})
	c, _ := cb.Encode(7)
	if _, err := cb.Decode(append(c, c...)); !errors.Is(err, ErrTrailing) {
		t.Fatalf("cbor: %v", err)
	}
}

func TestMsgpackSortsMapKeys(t *testing.T) {
	m := map[string]int{"b": 2, "a": 1, "c": 3, "d": 4}
	first, err := Msgpack[map[string]int]{}.Encode(m)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 10; i++ {
		again, _ := Msgpack[map[string]int]{}.Encode(m)
		if !bytes.Equal(first, again) {
			t.Fatalf("map encoding changed between calls")
		}
	}
}

func TestDeterministicCBORIsStable(t *testing.T) {
	c := MustCBOR[map[string]int](CBOROptions{Deterministic: true})
	m := map[string]int{"b": 2, "a": 1, "c": 3}
	first, err := c.Encode(m)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 10; i++ {
		again, _ := c.Encode(m)
		if !bytes.Equal(first, again) {
			t.Fatalf("deterministic encoding changed between calls")
		}
	}
}

func TestProtobufCodec(t *testing.T) {
	c := NewProtobuf(func() *wrapperspb.StringValue { return &wrapperspb.StringValue{} })
	b, err := c.Encode(wrapperspb.String("digest"))
	if err != nil {
		t.Fatal(err)
	}
	got, err := c.Decode(b)
	if err != nil {
		t.Fatal(err)
	}
	if got.GetValue() != "digest" {
		t.Fatalf("got %q", got.GetValue())
	}
}

func TestIntCodec(t *testing.T) {
	for _, v := range []int{0, 3, -4, 1 << 40} {
		b, _ := Int{}.Encode(v)
		got, err := Int{}.Decode(b)
		if err != nil || got != v {
			t.Fatalf("Int %d: got %d err=%v", v, got, err)
		}
	}
	if _, err := (Int{}).Decode(nil); err == nil {
		t.Fatalf("expected error on empty input")
	}
	b, _ := Int{}.Encode(5)
	if _, err := (Int{}).Decode(append(b, 0)); err == nil {
		t.Fatalf("expected error on trailing bytes")
	}
}

func TestRawCodecs(t *testing.T) {
	in := []byte("abc")
	enc, _ := Bytes{}.Encode(in)
	dec, _ := Bytes{}.Decode(enc)
	enc[0] = 'x'
	if string(dec) != "abc" {
		t.Fatalf("Bytes.Decode must copy, got %q", dec)
	}

	s, _ := String{}.Decode([]byte("hello"))
	if s != "hello" {
		t.Fatalf("String: %q", s)
	}
}

func TestLimit(t *testing.T) {
	c := Limit[string](String{}, 4)
	if _, err := c.Decode([]byte("12345")); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge on decode, got %v", err)
	}
	if _, err := c.Encode("12345"); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge on encode, got %v", err)
	}
	if v, err := c.Decode([]byte("1234")); err != nil || v != "1234" {
		t.Fatalf("within limit: %q err=%v", v, err)
	}
	unlimited := Limit[string](String{}, 0)
	if _, err := unlimited.Decode(bytes.Repeat([]byte("x"), 1<<16)); err != nil {
		t.Fatalf("limit 0 must disable the check: %v", err)
	}
}
