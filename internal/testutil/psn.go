package testutil

import (
	"encoding/binary"
	"math"
)

// PSN ids mirrored here so fixtures do not depend on the package under test.
const (
	DataPacketID = 0x6755
	InfoPacketID = 0x6756
)

func header(id uint16, dataLen int, container bool) []byte {
	w := uint32(id) | uint32(dataLen&0x7fff)<<16
	if container {
		w |= 1 << 31
	}
	return binary.LittleEndian.AppendUint32(nil, w)
}

// Leaf encodes a chunk with a raw payload.
func Leaf(id uint16, payload []byte) []byte {
	return append(header(id, len(payload), false), payload...)
}

// Container encodes a chunk whose payload is the concatenated children.
func Container(id uint16, children ...[]byte) []byte {
	var body []byte
	for _, c := range children {
		body = append(body, c...)
	}
	return append(header(id, len(body), true), body...)
}

// RawHeader encodes a header with an arbitrary declared length, for building
// malformed input.
func RawHeader(id uint16, dataLen int, container bool) []byte {
	return header(id, dataLen, container)
}

// Vec3 encodes three float32 values.
func Vec3(x, y, z float32) []byte {
	b := binary.LittleEndian.AppendUint32(nil, math.Float32bits(x))
	b = binary.LittleEndian.AppendUint32(b, math.Float32bits(y))
	return binary.LittleEndian.AppendUint32(b, math.Float32bits(z))
}

// Float32 encodes a single float32.
func Float32(v float32) []byte {
	return binary.LittleEndian.AppendUint32(nil, math.Float32bits(v))
}

// Uint64 encodes a single uint64.
func Uint64(v uint64) []byte {
	return binary.LittleEndian.AppendUint64(nil, v)
}

// PacketHeader encodes the 12-byte packet header chunk.
func PacketHeader(timestamp uint64, versionHigh, versionLow, frameID, packetCount uint8) []byte {
	b := binary.LittleEndian.AppendUint64(nil, timestamp)
	b = append(b, versionHigh, versionLow, frameID, packetCount)
	return Leaf(0x0000, b)
}

// Position, Speed, Orientation and friends encode tracker leaf chunks.
func Position(x, y, z float32) []byte       { return Leaf(0x0000, Vec3(x, y, z)) }
func Speed(x, y, z float32) []byte          { return Leaf(0x0001, Vec3(x, y, z)) }
func Orientation(x, y, z float32) []byte    { return Leaf(0x0002, Vec3(x, y, z)) }
func Status(v float32) []byte               { return Leaf(0x0003, Float32(v)) }
func Acceleration(x, y, z float32) []byte   { return Leaf(0x0004, Vec3(x, y, z)) }
func TargetPosition(x, y, z float32) []byte { return Leaf(0x0005, Vec3(x, y, z)) }
func TrackerTimestamp(v uint64) []byte      { return Leaf(0x0006, Uint64(v)) }

// Tracker encodes a tracker container holding the given leaves.
func Tracker(id uint16, leaves ...[]byte) []byte {
	return Container(id, leaves...)
}

// TrackerName encodes an INFO tracker container carrying only a name.
func TrackerName(id uint16, name string) []byte {
	return Container(id, Leaf(0x0000, []byte(name)))
}

// DataPacket encodes a PSN v2 DATA datagram.
func DataPacket(frameID, packetCount uint8, trackers ...[]byte) []byte {
	return Container(DataPacketID,
		PacketHeader(1_000_000, 2, 0, frameID, packetCount),
		Container(0x0001, trackers...),
	)
}

// InfoPacket encodes a PSN v2 INFO datagram.
func InfoPacket(systemName string, frameID, packetCount uint8, trackers ...[]byte) []byte {
	return Container(InfoPacketID,
		PacketHeader(1_000_000, 2, 0, frameID, packetCount),
		Leaf(0x0001, []byte(systemName)),
		Container(0x0002, trackers...),
	)
}
