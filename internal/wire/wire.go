package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"time"
)

const version byte = 1

// Kind tags which tier wrote an entry.
type Kind byte

const (
	KindBlock   Kind = 1
	KindRegion  Kind = 2
	KindPreload Kind = 3
)

var (
	ErrCorrupt = errors.New("blockcache: corrupt entry")
	magic4     = [...]byte{'B', 'L', 'K', 'C'}
)

const headerLen = 4 + 1 + 1 + 8 + 8 + 4

// Entry is one framed cache value.
type Entry struct {
	Kind      Kind
	Stamp     uint64 // guard generation stamp observed before the value was computed
	WrittenAt time.Time
	Payload   []byte
}

func hasMagic(b []byte) bool {
	return len(b) >= 4 && bytes.Equal(b[:4], magic4[:])
}

// Encode frames e:
//
//	magic(4) | ver(1) | kind(1) | stamp(u64 be) | written_at(unix nanos, i64 be) | vlen(u32 be) | payload(vlen)
func Encode(e Entry) []byte {
	var buf bytes.Buffer
	buf.Grow(headerLen + len(e.Payload))

	buf.Write(magic4[:])
	buf.WriteByte(version)
	buf.WriteByte(byte(e.Kind))

	var u8 [8]byte
	var u4 [4]byte

	binary.BigEndian.PutUint64(u8[:], e.Stamp)
	buf.Write(u8[:])

	var ts int64
	if !e.WrittenAt.IsZero() {
		ts = e.WrittenAt.UnixNano()
	}
	binary.BigEndian.PutUint64(u8[:], uint64(ts))
	buf.Write(u8[:])

	binary.BigEndian.PutUint32(u4[:], uint32(len(e.Payload)))
	buf.Write(u4[:])

	buf.Write(e.Payload)
	return buf.Bytes()
}

// Decode parses a frame written by Encode and checks it carries kind want.
// Trailing bytes are rejected.
func Decode(b []byte, want Kind) (Entry, error) {
	if len(b) < headerLen || !hasMagic(b) || b[4] != version || Kind(b[5]) != want {
		return Entry{}, ErrCorrupt
	}
	off := 6

	stamp := binary.BigEndian.Uint64(b[off : off+8])
	off += 8

	ts := int64(binary.BigEndian.Uint64(b[off : off+8]))
	off += 8

	vlen := int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4
	if vlen < 0 || vlen != len(b)-off {
		return Entry{}, ErrCorrupt
	}

	e := Entry{Kind: want, Stamp: stamp, Payload: b[off : off+vlen]}
	if ts != 0 {
		e.WrittenAt = time.Unix(0, ts)
	}
	return e, nil
}
