// Package publish turns decode results into tracker events and sends them
// to downstream consumers.
package publish

import (
	"time"

	"github.com/banshee-data/psn.report/internal/psn"
	"github.com/banshee-data/psn.report/internal/psn/monitor"
	"github.com/banshee-data/psn.report/internal/psn/tracker"
)

// XYZ is the JSON form of a vector.
type XYZ struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

func xyz(o tracker.Optional[tracker.Vec3]) *XYZ {
	v, ok := o.Get()
	if !ok {
		return nil
	}
	return &XYZ{X: v.X, Y: v.Y, Z: v.Z}
}

// TrackerEvent is emitted for every known tracker after each decoded
// datagram. Topic is the tracker name when known, otherwise its id.
type TrackerEvent struct {
	SessionID      string    `json:"session_id"`
	Topic          string    `json:"topic"`
	TrackerID      uint16    `json:"tracker_id"`
	Name           *string   `json:"name"`
	Position       *XYZ      `json:"position"`
	Speed          *XYZ      `json:"speed,omitempty"`
	Orientation    *XYZ      `json:"orientation,omitempty"`
	Acceleration   *XYZ      `json:"acceleration,omitempty"`
	TargetPosition *XYZ      `json:"target_position,omitempty"`
	Validity       *bool     `json:"validity,omitempty"`
	PacketKind     string    `json:"packet_kind"`
	FrameID        uint8     `json:"frame_id"`
	LastUpdated    time.Time `json:"last_updated"`
}

// NewTrackerEvent builds the event for one record.
func NewTrackerEvent(snap *psn.Snapshot, rec tracker.Record) TrackerEvent {
	return TrackerEvent{
		SessionID:      snap.SessionID.String(),
		Topic:          rec.DisplayName(),
		TrackerID:      uint16(rec.ID),
		Name:           rec.Name.Ptr(),
		Position:       xyz(rec.Position),
		Speed:          xyz(rec.Speed),
		Orientation:    xyz(rec.Orientation),
		Acceleration:   xyz(rec.Acceleration),
		TargetPosition: xyz(rec.TargetPosition),
		Validity:       rec.Validity.Ptr(),
		PacketKind:     snap.Kind().String(),
		FrameID:        snap.Root.FrameID,
		LastUpdated:    rec.LastUpdated,
	}
}

// TrackerEvents builds one event per tracker in snap, ordered by id.
func TrackerEvents(snap *psn.Snapshot) []TrackerEvent {
	out := make([]TrackerEvent, 0, snap.Len())
	for _, rec := range snap.Trackers() {
		out = append(out, NewTrackerEvent(snap, rec))
	}
	return out
}

// MotionEvent reports a threshold crossing ("moved") or the end of movement
// ("settled").
type MotionEvent struct {
	Type      string    `json:"type"`
	TrackerID uint16    `json:"tracker_id"`
	Topic     string    `json:"topic"`
	Position  XYZ       `json:"position"`
	Distance  float64   `json:"distance,omitempty"`
	At        time.Time `json:"at"`
}

const (
	MotionMoved   = "moved"
	MotionSettled = "settled"
)

// NewMovedEvent converts a detector change.
func NewMovedEvent(c monitor.Change) MotionEvent {
	return MotionEvent{
		Type:      MotionMoved,
		TrackerID: uint16(c.ID),
		Topic:     c.Name,
		Position:  XYZ{X: c.Position.X, Y: c.Position.Y, Z: c.Position.Z},
		Distance:  c.Distance,
		At:        c.At,
	}
}

// NewSettledEvent converts a detector settle.
func NewSettledEvent(s monitor.Settle) MotionEvent {
	return MotionEvent{
		Type:      MotionSettled,
		TrackerID: uint16(s.ID),
		Topic:     s.Name,
		Position:  XYZ{X: s.Position.X, Y: s.Position.Y, Z: s.Position.Z},
		At:        s.At,
	}
}
