package codec

import (
	"bytes"
	"strings"
	"testing"
)

func TestLimitCodecRejectsOversized(t *testing.T) {
	c := LimitCodec[string]{Inner: String{}, MaxDecode: 4}
	if _, err := c.Decode([]byte("12345")); err == nil {
		t.Fatalf("expected oversized payload to be rejected")
	}
	if v, err := c.Decode([]byte("1234")); err != nil || v != "1234" {
		t.Fatalf("Decode at limit: v=%q err=%v", v, err)
	}
}

// Deterministic CBOR must produce identical bytes for equal maps.
func TestCBORDeterministic(t *testing.T) {
	c := MustCBOR[map[string]any](true)
	a := map[string]any{"b": 2, "a": 1, "c": []any{"x"}}
	b := map[string]any{"c": []any{"x"}, "a": 1, "b": 2}
	ea, err := c.Encode(a)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	eb, _ := c.Encode(b)
	if !bytes.Equal(ea, eb) {
		t.Fatalf("deterministic encodings differ")
	}
}

func TestStructPBPreloadShape(t *testing.T) {
	in := map[string]any{
		"12": map[string]any{"title": "Post", "views": 3},
		"14": []any{"a", "b"},
	}
	enc, err := StructPB{}.Encode(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := StructPB{}.Decode(enc)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	post, ok := out["12"].(map[string]any)
	if !ok || post["title"] != "Post" || post["views"] != float64(3) {
		t.Fatalf("unexpected decoded value: %#v", out["12"])
	}
}

func TestStructPBRejectsUnsupported(t *testing.T) {
	_, err := StructPB{}.Encode(map[string]any{"fn": func() {}})
	if err == nil || !strings.Contains(err.Error(), "structpb encode") {
		t.Fatalf("expected structpb encode error, got %v", err)
	}
}

func TestMsgpackPreloadMap(t *testing.T) {
	var c Codec[map[string]any] = Msgpack[map[string]any]{}
	enc, err := c.Encode(map[string]any{"1": "x"})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := c.Decode(enc)
	if err != nil || out["1"] != "x" {
		t.Fatalf("decode: out=%v err=%v", out, err)
	}
}

func TestMsgpackNestedMapsAreStringKeyed(t *testing.T) {
	var c Codec[map[string]any] = Msgpack[map[string]any]{}
	enc, err := c.Encode(map[string]any{"1": map[string]any{"n": 3}})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := c.Decode(enc)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	inner, ok := out["1"].(map[string]any)
	if !ok {
		t.Fatalf("nested map decoded as %T", out["1"])
	}
	if n, ok := inner["n"].(int64); !ok || n != 3 {
		t.Fatalf("nested int decoded as %T %v", inner["n"], inner["n"])
	}
}

func TestCBORNestedMapsAreStringKeyed(t *testing.T) {
	c := MustCBOR[map[string]any](false)
	enc, err := c.Encode(map[string]any{"1": map[string]any{"title": "x"}})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := c.Decode(enc)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if inner, ok := out["1"].(map[string]any); !ok || inner["title"] != "x" {
		t.Fatalf("nested map decoded as %T", out["1"])
	}
}
