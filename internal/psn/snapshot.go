package psn

import (
	"iter"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/psn.report/internal/psn/tracker"
	"github.com/banshee-data/psn.report/internal/psn/wire"
)

// Snapshot is the read-only result of one successful Decode: the header of
// the datagram plus a copy of every known tracker at the moment the
// datagram was merged.
type Snapshot struct {
	SessionID    uuid.UUID
	Root         wire.RootPacket
	PacketNumber int // index of this datagram within its frame, derived on receipt
	SystemName   string
	DecodedAt    time.Time

	updated []tracker.ID
	records []tracker.Record // ordered by id
}

// Kind returns the packet kind of the decoded datagram.
func (s *Snapshot) Kind() wire.Kind { return s.Root.Kind }

// Trackers returns every known tracker, ordered by id. The sequence may be
// ranged over repeatedly.
func (s *Snapshot) Trackers() iter.Seq2[tracker.ID, tracker.Record] {
	return tracker.Records(s.records)
}

// Get returns the tracker with the given id as of this snapshot.
func (s *Snapshot) Get(id tracker.ID) (tracker.Record, bool) {
	i := sort.Search(len(s.records), func(i int) bool { return s.records[i].ID >= id })
	if i < len(s.records) && s.records[i].ID == id {
		return s.records[i], true
	}
	return tracker.Record{}, false
}

// Len returns the number of known trackers.
func (s *Snapshot) Len() int { return len(s.records) }

// Updated lists the trackers carried by the decoded datagram, in wire
// order. An id may repeat if the sender repeated it.
func (s *Snapshot) Updated() []tracker.ID {
	return append([]tracker.ID(nil), s.updated...)
}
