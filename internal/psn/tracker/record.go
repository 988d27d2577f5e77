package tracker

import (
	"strconv"
	"time"

	"gonum.org/v1/gonum/spatial/r3"
)

// ID identifies a tracker within a PSN stream. Senders assign it; it is not
// checked for uniqueness over time.
type ID uint16

// Vec3 is an x/y/z triple. PSN carries float32 on the wire; values are widened
// on decode.
type Vec3 = r3.Vec

// Update is a partial tracker state as carried by one packet. Only the
// fields that are set are applied by Merge.
type Update struct {
	Name             Optional[string]
	Position         Optional[Vec3]
	Speed            Optional[Vec3]
	Orientation      Optional[Vec3]
	Acceleration     Optional[Vec3]
	TargetPosition   Optional[Vec3]
	Status           Optional[float32] // raw PSN validity value
	TrackerTimestamp Optional[uint64]  // sender-side timestamp, microseconds
}

// IsEmpty reports whether no field is set.
func (u Update) IsEmpty() bool {
	return !u.Name.IsSet() &&
		!u.Position.IsSet() &&
		!u.Speed.IsSet() &&
		!u.Orientation.IsSet() &&
		!u.Acceleration.IsSet() &&
		!u.TargetPosition.IsSet() &&
		!u.Status.IsSet() &&
		!u.TrackerTimestamp.IsSet()
}

// Record is the best known state of one tracker.
type Record struct {
	ID               ID
	Name             Optional[string]
	Position         Optional[Vec3]
	Speed            Optional[Vec3]
	Orientation      Optional[Vec3]
	Acceleration     Optional[Vec3]
	TargetPosition   Optional[Vec3]
	Validity         Optional[bool]
	Status           Optional[float32]
	TrackerTimestamp Optional[uint64]
	LastUpdated      time.Time
}

// Merge applies the set fields of u on top of rec and stamps LastUpdated.
// Absent fields keep their previous value. A set vector replaces the whole
// triple.
func Merge(rec Record, u Update, now time.Time) Record {
	rec.Name = u.Name.merge(rec.Name)
	rec.Position = u.Position.merge(rec.Position)
	rec.Speed = u.Speed.merge(rec.Speed)
	rec.Orientation = u.Orientation.merge(rec.Orientation)
	rec.Acceleration = u.Acceleration.merge(rec.Acceleration)
	rec.TargetPosition = u.TargetPosition.merge(rec.TargetPosition)
	rec.TrackerTimestamp = u.TrackerTimestamp.merge(rec.TrackerTimestamp)
	if s, ok := u.Status.Get(); ok {
		rec.Status = u.Status
		rec.Validity = Some(s > 0)
	}
	rec.LastUpdated = now
	return rec
}

// DisplayName returns the tracker name when known, otherwise the decimal id.
func (r Record) DisplayName() string {
	if n, ok := r.Name.Get(); ok && n != "" {
		return n
	}
	return strconv.Itoa(int(r.ID))
}
