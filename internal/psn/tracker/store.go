package tracker

import (
	"iter"
	"slices"
	"sync"
	"time"
)

// Entry pairs a tracker id with the partial update decoded for it.
type Entry struct {
	ID     ID
	Update Update
}

// Store holds the current record of every tracker seen so far. Records are
// created on first sighting and never expired; callers can use LastUpdated to
// judge staleness.
//
// Store is safe for concurrent use. Writers that need several upserts to land
// together use UpsertBatch.
type Store struct {
	mu      sync.RWMutex
	records map[ID]Record
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{records: make(map[ID]Record)}
}

// Upsert merges u into the record for id, creating it if needed, and
// returns the merged record.
func (s *Store) Upsert(id ID, u Update, now time.Time) Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upsertLocked(id, u, now)
}

// UpsertBatch applies every entry in order under a single lock, so readers
// never see half of a batch. Returned records are in entry order.
func (s *Store) UpsertBatch(batch []Entry, now time.Time) []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, 0, len(batch))
	for _, e := range batch {
		out = append(out, s.upsertLocked(e.ID, e.Update, now))
	}
	return out
}

func (s *Store) upsertLocked(id ID, u Update, now time.Time) Record {
	rec, ok := s.records[id]
	if !ok {
		rec = Record{ID: id}
	}
	rec = Merge(rec, u, now)
	s.records[id] = rec
	return rec
}

// Get returns the record for id.
func (s *Store) Get(id ID) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	return rec, ok
}

// Len returns the number of known trackers.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Snapshot copies every record, ordered by id.
func (s *Store) Snapshot() []Record {
	s.mu.RLock()
	out := make([]Record, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec)
	}
	s.mu.RUnlock()
	slices.SortFunc(out, func(a, b Record) int { return int(a.ID) - int(b.ID) })
	return out
}

// All returns a sequence over a point-in-time copy of the store taken when
// All is called. The sequence can be ranged over any number of times and is
// unaffected by later upserts.
func (s *Store) All() iter.Seq2[ID, Record] {
	return Records(s.Snapshot())
}

// Records adapts an id-ordered record slice into a restartable sequence.
func Records(recs []Record) iter.Seq2[ID, Record] {
	return func(yield func(ID, Record) bool) {
		for _, rec := range recs {
			if !yield(rec.ID, rec) {
				return
			}
		}
	}
}
