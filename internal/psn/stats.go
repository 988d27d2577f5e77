package psn

import (
	"maps"

	"github.com/banshee-data/psn.report/internal/psn/wire"
)

// Stats counts decode outcomes for a Session.
type Stats struct {
	InfoPackets int64
	DataPackets int64
	Bytes       int64
	Failures    map[string]int64 // keyed by failure kind, e.g. "invalid magic"
}

func newStats() Stats {
	return Stats{Failures: make(map[string]int64)}
}

func (s *Stats) record(kind wire.Kind, size int) {
	switch kind {
	case wire.KindInfo:
		s.InfoPackets++
	case wire.KindData:
		s.DataPackets++
	}
	s.Bytes += int64(size)
}

func (s *Stats) recordFailure(err error) {
	key := "other"
	if k := wire.ErrorKind(err); k != nil {
		key = k.Error()
	}
	s.Failures[key]++
}

// TotalFailures sums Failures.
func (s Stats) TotalFailures() int64 {
	var n int64
	for _, v := range s.Failures {
		n += v
	}
	return n
}

func (s Stats) clone() Stats {
	s.Failures = maps.Clone(s.Failures)
	return s
}
