package wire

import (
	"bytes"
	"fmt"

	"github.com/banshee-data/psn.report/internal/psn/tracker"
)

// Root chunk ids. The root id doubles as the protocol magic.
const (
	DataPacketID   uint16 = 0x6755
	InfoPacketID   uint16 = 0x6756
	V1DataPacketID uint16 = 0x6754
	V1InfoPacketID uint16 = 0x503c

	SupportedVersionHigh = 2
)

// Chunk ids below the root. Ids are scoped to their parent.
const (
	PacketHeaderID uint16 = 0x0000

	DataTrackerListID uint16 = 0x0001

	InfoSystemNameID  uint16 = 0x0001
	InfoTrackerListID uint16 = 0x0002
	InfoTrackerNameID uint16 = 0x0000

	TrackerPosID       uint16 = 0x0000
	TrackerSpeedID     uint16 = 0x0001
	TrackerOriID       uint16 = 0x0002
	TrackerStatusID    uint16 = 0x0003
	TrackerAccelID     uint16 = 0x0004
	TrackerTrgtPosID   uint16 = 0x0005
	TrackerTimestampID uint16 = 0x0006
)

const (
	PacketHeaderSize = 12 // timestamp(8) + version(2) + frame_id(1) + frame_packet_count(1)
	MinPacketSize    = ChunkHeaderSize + ChunkHeaderSize + PacketHeaderSize
	MaxDatagramSize  = 65507

	vec3Size = 12
)

// Kind distinguishes the two PSN packet types.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindInfo
	KindData
)

func (k Kind) String() string {
	switch k {
	case KindInfo:
		return "INFO"
	case KindData:
		return "DATA"
	default:
		return "UNKNOWN"
	}
}

// RootPacket is the fixed part of every PSN packet: the root chunk and its
// packet header chunk.
type RootPacket struct {
	ProtocolID  uint16
	Kind        Kind
	Timestamp   uint64 // microseconds, sender clock
	VersionHigh uint8
	VersionLow  uint8
	FrameID     uint8
	PacketCount uint8 // datagrams making up this frame
}

// Packet is a fully validated datagram. Exactly one of Data and Info is set.
type Packet struct {
	Root RootPacket
	Data *DataPacket
	Info *InfoPacket
	Tree Chunk
}

// DataPacket carries numeric tracker values.
type DataPacket struct {
	Trackers []tracker.Entry
}

// InfoPacket carries naming metadata.
type InfoPacket struct {
	SystemName tracker.Optional[string]
	Trackers   []tracker.Entry // only Update.Name is ever set
}

// Entries returns the tracker updates carried by p in wire order.
func (p *Packet) Entries() []tracker.Entry {
	switch {
	case p.Data != nil:
		return p.Data.Trackers
	case p.Info != nil:
		return p.Info.Trackers
	}
	return nil
}

// DecodeRoot validates the root chunk of buf and returns its header without
// walking the rest of the tree.
func DecodeRoot(buf []byte) (ChunkHeader, Kind, error) {
	if len(buf) < ChunkHeaderSize {
		return ChunkHeader{}, KindUnknown, newDecodeError(ErrTruncatedData, 0,
			"datagram of %d bytes is shorter than a chunk header", len(buf))
	}
	r := NewReader(buf)
	w, _ := r.ReadUint32()
	h := DecodeChunkHeader(w)

	var kind Kind
	switch h.ID {
	case DataPacketID:
		kind = KindData
	case InfoPacketID:
		kind = KindInfo
	case V1DataPacketID, V1InfoPacketID:
		return h, KindUnknown, newDecodeError(ErrUnsupportedVersion, 0, "PSN v1 packet 0x%04x", h.ID)
	default:
		return h, KindUnknown, newDecodeError(ErrInvalidMagic, 0, "root id 0x%04x", h.ID)
	}
	if len(buf) < MinPacketSize {
		return h, kind, newDecodeError(ErrTruncatedData, 0,
			"datagram of %d bytes is shorter than the %d byte packet header", len(buf), MinPacketSize)
	}
	if !h.HasSubChunks {
		return h, kind, newDecodeError(ErrTruncatedData, 0, "root chunk has no sub-chunks")
	}
	if int(h.DataLen) > r.Remaining() {
		return h, kind, newDecodeError(ErrChunkLengthMismatch, 0,
			"root declares %d bytes, %d remain", h.DataLen, r.Remaining())
	}
	return h, kind, nil
}

// DecodePacket parses and validates a whole datagram. It holds no state. The
// root, tracker lists and tracker containers must be well formed; containers
// with unknown ids are skipped whole, even when their body does not parse.
// Bytes after the root chunk are ignored.
func DecodePacket(buf []byte) (*Packet, error) {
	_, kind, err := DecodeRoot(buf)
	if err != nil {
		return nil, err
	}
	return DecodeTree(buf, kind)
}

// DecodeTree is DecodePacket for a datagram whose root DecodeRoot has
// already accepted as kind.
func DecodeTree(buf []byte, kind Kind) (*Packet, error) {
	tree, err := ParseChunk(NewReader(buf), 1)
	if err != nil {
		return nil, err
	}
	if tree.Malformed != nil {
		return nil, tree.Malformed
	}

	p := &Packet{Tree: tree}
	p.Root, err = decodePacketHeader(&tree, kind)
	if err != nil {
		return nil, err
	}

	switch kind {
	case KindData:
		p.Data, err = decodeData(&tree)
	case KindInfo:
		p.Info, err = decodeInfo(&tree)
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func decodePacketHeader(root *Chunk, kind Kind) (RootPacket, error) {
	hc, ok := root.Child(PacketHeaderID)
	if !ok {
		return RootPacket{}, newDecodeError(ErrTruncatedData, root.Offset, "missing packet header chunk")
	}
	if hc.Header.HasSubChunks || len(hc.Payload) != PacketHeaderSize {
		return RootPacket{}, newDecodeError(ErrChunkLengthMismatch, hc.Offset,
			"packet header is %d bytes, want %d", hc.Header.DataLen, PacketHeaderSize)
	}
	r := NewReader(hc.Payload)
	rp := RootPacket{ProtocolID: root.Header.ID, Kind: kind}
	rp.Timestamp, _ = r.ReadUint64()
	rp.VersionHigh, _ = r.ReadUint8()
	rp.VersionLow, _ = r.ReadUint8()
	rp.FrameID, _ = r.ReadUint8()
	rp.PacketCount, _ = r.ReadUint8()
	if rp.VersionHigh != SupportedVersionHigh {
		return rp, newDecodeError(ErrUnsupportedVersion, hc.Offset, "version %d.%d", rp.VersionHigh, rp.VersionLow)
	}
	return rp, nil
}

func decodeData(root *Chunk) (*DataPacket, error) {
	dp := &DataPacket{}
	for i := range root.Children {
		list := &root.Children[i]
		if list.Header.ID != DataTrackerListID || !list.Header.HasSubChunks {
			continue
		}
		if list.Malformed != nil {
			return nil, list.Malformed
		}
		for j := range list.Children {
			tc := &list.Children[j]
			if !tc.Header.HasSubChunks {
				continue
			}
			if tc.Malformed != nil {
				return nil, tc.Malformed
			}
			u, err := decodeTrackerData(tc)
			if err != nil {
				return nil, err
			}
			dp.Trackers = append(dp.Trackers, tracker.Entry{ID: tracker.ID(tc.Header.ID), Update: u})
		}
	}
	return dp, nil
}

func decodeTrackerData(tc *Chunk) (tracker.Update, error) {
	var u tracker.Update
	for i := range tc.Children {
		leaf := &tc.Children[i]
		if leaf.Header.HasSubChunks {
			continue
		}
		var err error
		switch leaf.Header.ID {
		case TrackerPosID:
			u.Position, err = leafVec3(leaf)
		case TrackerSpeedID:
			u.Speed, err = leafVec3(leaf)
		case TrackerOriID:
			u.Orientation, err = leafVec3(leaf)
		case TrackerAccelID:
			u.Acceleration, err = leafVec3(leaf)
		case TrackerTrgtPosID:
			u.TargetPosition, err = leafVec3(leaf)
		case TrackerStatusID:
			if err = leafWidth(leaf, 4); err == nil {
				v, _ := NewReader(leaf.Payload).ReadFloat32()
				u.Status = tracker.Some(v)
			}
		case TrackerTimestampID:
			if err = leafWidth(leaf, 8); err == nil {
				v, _ := NewReader(leaf.Payload).ReadUint64()
				u.TrackerTimestamp = tracker.Some(v)
			}
		}
		if err != nil {
			return tracker.Update{}, err
		}
	}
	return u, nil
}

func decodeInfo(root *Chunk) (*InfoPacket, error) {
	ip := &InfoPacket{}
	for i := range root.Children {
		c := &root.Children[i]
		switch {
		case c.Header.ID == InfoSystemNameID && !c.Header.HasSubChunks:
			ip.SystemName = tracker.Some(leafString(c))
		case c.Header.ID == InfoTrackerListID && c.Header.HasSubChunks:
			if c.Malformed != nil {
				return nil, c.Malformed
			}
			for j := range c.Children {
				tc := &c.Children[j]
				if !tc.Header.HasSubChunks {
					continue
				}
				if tc.Malformed != nil {
					return nil, tc.Malformed
				}
				var u tracker.Update
				if nc, ok := tc.Child(InfoTrackerNameID); ok && !nc.Header.HasSubChunks {
					u.Name = tracker.Some(leafString(nc))
				}
				ip.Trackers = append(ip.Trackers, tracker.Entry{ID: tracker.ID(tc.Header.ID), Update: u})
			}
		}
	}
	return ip, nil
}

func leafWidth(c *Chunk, want int) error {
	if len(c.Payload) != want {
		return newDecodeError(ErrChunkLengthMismatch, c.Offset,
			"chunk 0x%04x is %d bytes, want %d", c.Header.ID, len(c.Payload), want)
	}
	return nil
}

func leafVec3(c *Chunk) (tracker.Optional[tracker.Vec3], error) {
	if err := leafWidth(c, vec3Size); err != nil {
		return tracker.None[tracker.Vec3](), err
	}
	r := NewReader(c.Payload)
	x, _ := r.ReadFloat32()
	y, _ := r.ReadFloat32()
	z, _ := r.ReadFloat32()
	return tracker.Some(tracker.Vec3{X: float64(x), Y: float64(y), Z: float64(z)}), nil
}

// leafString decodes a PSN string leaf. Strings fill data_len; some senders
// NUL-terminate or pad them anyway.
func leafString(c *Chunk) string {
	return string(bytes.TrimRight(c.Payload, "\x00"))
}

func (p *Packet) String() string {
	return fmt.Sprintf("%s frame=%d packets=%d trackers=%d", p.Root.Kind, p.Root.FrameID, p.Root.PacketCount, len(p.Entries()))
}
