package wire

import "errors"

const (
	ChunkHeaderSize = 4      // id (16 bits) + data_len (15 bits) + has_sub_chunks (1 bit)
	MaxDataLen      = 0x7fff // largest data_len a 15-bit length field can carry
	MaxDepth        = 16     // root chunk is depth 1

	subChunkFlag = 1 << 31
)

// ChunkHeader is the 32-bit header that starts every PSN chunk.
type ChunkHeader struct {
	ID           uint16
	DataLen      uint16
	HasSubChunks bool
}

// Encode packs the header into its wire word.
func (h ChunkHeader) Encode() uint32 {
	w := uint32(h.ID) | uint32(h.DataLen&MaxDataLen)<<16
	if h.HasSubChunks {
		w |= subChunkFlag
	}
	return w
}

// DecodeChunkHeader unpacks a header word.
func DecodeChunkHeader(w uint32) ChunkHeader {
	return ChunkHeader{
		ID:           uint16(w & 0xffff),
		DataLen:      uint16((w >> 16) & MaxDataLen),
		HasSubChunks: w&subChunkFlag != 0,
	}
}

// Chunk is one parsed node of a chunk tree. Leaf chunks carry Payload;
// containers carry Children. Unknown ids are kept so callers decide what to
// ignore.
//
// A container whose body is not a well-formed chunk sequence is kept opaque:
// Children is nil, Payload holds the raw body and Malformed says why. Only
// callers that expect structure at that position treat it as an error.
type Chunk struct {
	Header    ChunkHeader
	Offset    int    // absolute offset of the header within the datagram
	Payload   []byte // leaf payload, aliases the datagram
	Children  []Chunk
	Malformed error // set on opaque containers only
}

// Size is the number of bytes the chunk occupies on the wire.
func (c *Chunk) Size() int { return ChunkHeaderSize + int(c.Header.DataLen) }

// Child returns the first direct child with the given id.
func (c *Chunk) Child(id uint16) (*Chunk, bool) {
	for i := range c.Children {
		if c.Children[i].Header.ID == id {
			return &c.Children[i], true
		}
	}
	return nil, false
}

// ReadHeader reads one chunk header and checks that its declared data_len
// fits within what is left of r.
func ReadHeader(r *Reader) (ChunkHeader, error) {
	at := r.AbsOffset()
	w, err := r.ReadUint32()
	if err != nil {
		return ChunkHeader{}, err
	}
	h := DecodeChunkHeader(w)
	if int(h.DataLen) > r.Remaining() {
		return h, newDecodeError(ErrChunkLengthMismatch, at,
			"chunk 0x%04x declares %d bytes, %d remain", h.ID, h.DataLen, r.Remaining())
	}
	return h, nil
}

// ParseChunk reads one chunk (and its whole subtree) at the cursor. depth is
// the nesting level of the chunk being read, starting at 1 for the root.
func ParseChunk(r *Reader, depth int) (Chunk, error) {
	at := r.AbsOffset()
	if depth > MaxDepth {
		return Chunk{}, newDecodeError(ErrChunkTooDeep, at, "depth %d exceeds %d", depth, MaxDepth)
	}
	h, err := ReadHeader(r)
	if err != nil {
		return Chunk{}, err
	}
	body, err := r.SliceFor(int(h.DataLen))
	if err != nil {
		return Chunk{}, err
	}
	c := Chunk{Header: h, Offset: at}
	if !h.HasSubChunks {
		c.Payload, _ = body.ReadBytes(body.Remaining())
		return c, nil
	}
	c.Children, err = parseChildren(body, depth+1)
	if errors.Is(err, ErrChunkLengthMismatch) {
		_ = body.SeekTo(0)
		c.Children = nil
		c.Payload, _ = body.ReadBytes(body.Remaining())
		c.Malformed = err
		return c, nil
	}
	if err != nil {
		return Chunk{}, err
	}
	return c, nil
}

// parseChildren consumes r completely as a sequence of sibling chunks.
func parseChildren(r *Reader, depth int) ([]Chunk, error) {
	var children []Chunk
	for r.Remaining() > 0 {
		if r.Remaining() < ChunkHeaderSize {
			return nil, newDecodeError(ErrChunkLengthMismatch, r.AbsOffset(),
				"%d trailing bytes cannot hold a chunk header", r.Remaining())
		}
		child, err := ParseChunk(r, depth)
		if err != nil {
			return nil, err
		}
		children = append(children, child)
	}
	return children, nil
}

// Walk visits c and every descendant depth-first. Returning false from fn
// skips the subtree below the visited chunk.
func Walk(c *Chunk, fn func(c *Chunk, depth int) bool) {
	walk(c, 1, fn)
}

func walk(c *Chunk, depth int, fn func(*Chunk, int) bool) {
	if !fn(c, depth) {
		return
	}
	for i := range c.Children {
		walk(&c.Children[i], depth+1, fn)
	}
}
