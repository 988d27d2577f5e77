package publish

import (
	"time"

	"github.com/banshee-data/psn.report/internal/monitoring"
	"github.com/banshee-data/psn.report/internal/psn"
	"github.com/banshee-data/psn.report/internal/psn/monitor"
)

// Dispatcher publishes every decoded snapshot and feeds updated trackers
// through a motion detector. It implements network.SnapshotHandler.
type Dispatcher struct {
	pub      Publisher
	detector *monitor.Detector // optional
}

// NewDispatcher returns a Dispatcher. detector may be nil to disable motion
// events.
func NewDispatcher(pub Publisher, detector *monitor.Detector) *Dispatcher {
	return &Dispatcher{pub: pub, detector: detector}
}

// HandleSnapshot emits one TrackerEvent per known tracker, then motion
// events for the trackers the datagram carried.
func (d *Dispatcher) HandleSnapshot(snap *psn.Snapshot) {
	for _, ev := range TrackerEvents(snap) {
		if err := d.pub.PublishTracker(ev); err != nil {
			monitoring.Logger().Warn("tracker event not published", "tracker", ev.TrackerID, "error", err)
		}
	}
	if d.detector == nil {
		return
	}
	for _, id := range snap.Updated() {
		rec, ok := snap.Get(id)
		if !ok {
			continue
		}
		if c, ok := d.detector.Observe(rec); ok {
			if err := d.pub.PublishMotion(NewMovedEvent(c)); err != nil {
				monitoring.Logger().Warn("motion event not published", "tracker", c.ID, "error", err)
			}
		}
	}
}

// Tick emits settled events for trackers that stopped moving.
func (d *Dispatcher) Tick(now time.Time) {
	if d.detector == nil {
		return
	}
	for _, s := range d.detector.Settled(now) {
		if err := d.pub.PublishMotion(NewSettledEvent(s)); err != nil {
			monitoring.Logger().Warn("settle event not published", "tracker", s.ID, "error", err)
		}
	}
}
