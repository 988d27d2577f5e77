package wire

import (
	"encoding/binary"
	"math"
)

// Reader is a little-endian cursor over an immutable byte slice. It never
// reads outside the slice it was created with; any read that would do so
// returns ErrTruncatedData and leaves the cursor where it was.
//
// A Reader is scoped to a single decode call and must not be retained.
type Reader struct {
	buf  []byte
	pos  int
	base int // absolute offset of buf[0] within the datagram, for error reporting
}

// NewReader returns a Reader positioned at the start of buf.
func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

// Len returns the total length of the underlying buffer.
func (r *Reader) Len() int { return len(r.buf) }

// Offset returns the cursor position relative to the start of this reader.
func (r *Reader) Offset() int { return r.pos }

// AbsOffset returns the cursor position relative to the start of the datagram.
func (r *Reader) AbsOffset() int { return r.base + r.pos }

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int { return len(r.buf) - r.pos }

func (r *Reader) need(n int) error {
	if n < 0 || n > r.Remaining() {
		return newDecodeError(ErrTruncatedData, r.AbsOffset(), "need %d bytes, have %d", n, r.Remaining())
	}
	return nil
}

// SeekTo moves the cursor to off, which must lie within [0, Len()].
func (r *Reader) SeekTo(off int) error {
	if off < 0 || off > len(r.buf) {
		return newDecodeError(ErrTruncatedData, r.base+off, "seek outside buffer of %d bytes", len(r.buf))
	}
	r.pos = off
	return nil
}

// Skip advances the cursor by n bytes.
func (r *Reader) Skip(n int) error {
	if err := r.need(n); err != nil {
		return err
	}
	r.pos += n
	return nil
}

// ReadBytes returns the next n bytes. The returned slice aliases the
// underlying buffer.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	if err := r.need(n); err != nil {
		return nil, err
	}
	b := r.buf[r.pos : r.pos+n : r.pos+n]
	r.pos += n
	return b, nil
}

// SliceFor returns a Reader over the next n bytes and advances past them.
// The sub-reader cannot see bytes outside that window.
func (r *Reader) SliceFor(n int) (*Reader, error) {
	start := r.AbsOffset()
	b, err := r.ReadBytes(n)
	if err != nil {
		return nil, err
	}
	return &Reader{buf: b, base: start}, nil
}

func (r *Reader) ReadUint8() (uint8, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	v := r.buf[r.pos]
	r.pos++
	return v, nil
}

func (r *Reader) ReadUint16() (uint16, error) {
	if err := r.need(2); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint16(r.buf[r.pos:])
	r.pos += 2
	return v, nil
}

func (r *Reader) ReadUint32() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(r.buf[r.pos:])
	r.pos += 4
	return v, nil
}

func (r *Reader) ReadUint64() (uint64, error) {
	if err := r.need(8); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint64(r.buf[r.pos:])
	r.pos += 8
	return v, nil
}

func (r *Reader) ReadFloat32() (float32, error) {
	v, err := r.ReadUint32()
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(v), nil
}

func (r *Reader) ReadFloat64() (float64, error) {
	v, err := r.ReadUint64()
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(v), nil
}
