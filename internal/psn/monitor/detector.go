// Package monitor watches tracker positions and reports movement beyond a
// threshold, then reports again once a tracker has been still for a debounce
// window.
package monitor

import (
	"iter"
	"math"
	"sync"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/psn.report/internal/psn/tracker"
)

const (
	DefaultThreshold = 1.0
	DefaultDebounce  = time.Second
)

// Change reports a tracker that moved beyond the threshold on at least one
// axis.
type Change struct {
	ID       tracker.ID
	Name     string
	Position tracker.Vec3 // latest reported position
	Previous tracker.Vec3 // reference position before this change
	Distance float64      // euclidean distance between Previous and Position
	First    bool         // first sighting of this tracker
	At       time.Time
}

// Settle reports a tracker that has not changed for the debounce window.
type Settle struct {
	ID       tracker.ID
	Name     string
	Position tracker.Vec3
	At       time.Time
}

type watch struct {
	name       string
	ref        tracker.Vec3
	lastChange time.Time
	settled    bool
}

// Detector tracks a reference position per tracker. Each axis of the
// reference is only moved when that axis drifts by more than Threshold, so
// slow drift below the threshold never accumulates into a report.
type Detector struct {
	threshold float64
	debounce  time.Duration

	mu      sync.Mutex
	watches map[tracker.ID]*watch
}

// NewDetector returns a Detector. Non-positive arguments fall back to the
// defaults.
func NewDetector(threshold float64, debounce time.Duration) *Detector {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Detector{
		threshold: threshold,
		debounce:  debounce,
		watches:   make(map[tracker.ID]*watch),
	}
}

// Threshold returns the per-axis movement threshold.
func (d *Detector) Threshold() float64 { return d.threshold }

// Debounce returns the settle window.
func (d *Detector) Debounce() time.Duration { return d.debounce }

// Observe checks rec against its reference position. Records without a
// position are ignored.
func (d *Detector) Observe(rec tracker.Record) (Change, bool) {
	pos, ok := rec.Position.Get()
	if !ok {
		return Change{}, false
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	w, seen := d.watches[rec.ID]
	if !seen {
		w = &watch{ref: pos, lastChange: rec.LastUpdated, name: rec.DisplayName()}
		d.watches[rec.ID] = w
		return Change{ID: rec.ID, Name: w.name, Position: pos, Previous: pos, First: true, At: rec.LastUpdated}, true
	}
	w.name = rec.DisplayName()

	prev := w.ref
	changed := false
	if math.Abs(w.ref.X-pos.X) > d.threshold {
		w.ref.X, changed = pos.X, true
	}
	if math.Abs(w.ref.Y-pos.Y) > d.threshold {
		w.ref.Y, changed = pos.Y, true
	}
	if math.Abs(w.ref.Z-pos.Z) > d.threshold {
		w.ref.Z, changed = pos.Z, true
	}
	if !changed {
		return Change{}, false
	}
	w.lastChange = rec.LastUpdated
	w.settled = false
	return Change{
		ID:       rec.ID,
		Name:     w.name,
		Position: w.ref,
		Previous: prev,
		Distance: r3.Norm(r3.Sub(w.ref, prev)),
		At:       rec.LastUpdated,
	}, true
}

// ObserveAll runs Observe over a sequence of records and collects changes.
func (d *Detector) ObserveAll(recs iter.Seq2[tracker.ID, tracker.Record]) []Change {
	var out []Change
	for _, rec := range recs {
		if c, ok := d.Observe(rec); ok {
			out = append(out, c)
		}
	}
	return out
}

// Settled returns each tracker whose last change is at least Debounce
// before now and that has not been reported settled since that change.
func (d *Detector) Settled(now time.Time) []Settle {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []Settle
	for id, w := range d.watches {
		if w.settled || now.Sub(w.lastChange) < d.debounce {
			continue
		}
		w.settled = true
		out = append(out, Settle{ID: id, Name: w.name, Position: w.ref, At: now})
	}
	return out
}

// Forget drops the reference for id.
func (d *Detector) Forget(id tracker.ID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.watches, id)
}
