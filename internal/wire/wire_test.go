package wire

import (
	"bytes"
	"encoding/binary"
	"math"
	"testing"
	"time"
)

func mustDecode(t *testing.T, b []byte, k Kind) Entry {
	t.Helper()
	e, err := Decode(b, k)
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	return e
}

func TestRoundTripEmptyAndNonEmpty(t *testing.T) {
	now := time.Unix(1700000000, 123)
	cases := []Entry{
		{Kind: KindBlock, Stamp: 0, Payload: nil},
		{Kind: KindRegion, Stamp: 42, WrittenAt: now, Payload: []byte("<div>hi</div>")},
		{Kind: KindPreload, Stamp: math.MaxUint64, WrittenAt: now, Payload: []byte{0, 1, 2, 3}},
	}
	for _, tc := range cases {
		got := mustDecode(t, Encode(tc), tc.Kind)
		if got.Stamp != tc.Stamp {
			t.Fatalf("stamp mismatch: got %d want %d", got.Stamp, tc.Stamp)
		}
		if !got.WrittenAt.Equal(tc.WrittenAt) {
			t.Fatalf("written_at mismatch: got %v want %v", got.WrittenAt, tc.WrittenAt)
		}
		if !bytes.Equal(got.Payload, tc.Payload) {
			t.Fatalf("payload mismatch: got %x want %x", got.Payload, tc.Payload)
		}
	}
}

func TestRejectsTrailingBytes(t *testing.T) {
	enc := Encode(Entry{Kind: KindBlock, Stamp: 7, Payload: []byte("x")})
	enc = append(enc, 0xDE, 0xAD)
	if _, err := Decode(enc, KindBlock); err == nil {
		t.Fatalf("expected error on trailing bytes")
	}
}

func TestCorruptHeadersAndLengths(t *testing.T) {
	enc := Encode(Entry{Kind: KindRegion, Stamp: 1, Payload: []byte("abc")})

	badMagic := append([]byte(nil), enc...)
	badMagic[0] = 'X'
	if _, err := Decode(badMagic, KindRegion); err == nil {
		t.Fatalf("expected error on bad magic")
	}

	badVer := append([]byte(nil), enc...)
	badVer[4] = version + 1
	if _, err := Decode(badVer, KindRegion); err == nil {
		t.Fatalf("expected error on bad version")
	}

	// a region frame must not decode as a block frame
	if _, err := Decode(enc, KindBlock); err == nil {
		t.Fatalf("expected error on kind mismatch")
	}

	short := enc[:headerLen-1]
	if _, err := Decode(short, KindRegion); err == nil {
		t.Fatalf("expected error on short header")
	}

	badLen := append([]byte(nil), enc...)
	binary.BigEndian.PutUint32(badLen[headerLen-4:headerLen], 1000)
	if _, err := Decode(badLen, KindRegion); err == nil {
		t.Fatalf("expected error on oversized vlen")
	}

	if _, err := Decode([]byte("plain html"), KindRegion); err == nil {
		t.Fatalf("foreign bytes must be rejected")
	}
}
