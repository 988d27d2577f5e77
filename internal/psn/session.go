package psn

import (
	"sync"

	"github.com/google/uuid"

	"github.com/banshee-data/psn.report/internal/psn/tracker"
	"github.com/banshee-data/psn.report/internal/psn/wire"
	"github.com/banshee-data/psn.report/internal/timeutil"
)

// Decode failure kinds, re-exported so callers need not import wire.
var (
	ErrTruncatedData       = wire.ErrTruncatedData
	ErrInvalidMagic        = wire.ErrInvalidMagic
	ErrChunkLengthMismatch = wire.ErrChunkLengthMismatch
	ErrChunkTooDeep        = wire.ErrChunkTooDeep
	ErrUnsupportedVersion  = wire.ErrUnsupportedVersion
)

// State is the position of a Session in its per-datagram state machine.
type State int

const (
	StateIdle State = iota
	StateHeaderParsed
	StateRoutingByKind
	StateInfoDecoded
	StateDataDecoded
	StateComplete
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateHeaderParsed:
		return "header-parsed"
	case StateRoutingByKind:
		return "routing"
	case StateInfoDecoded:
		return "info-decoded"
	case StateDataDecoded:
		return "data-decoded"
	case StateComplete:
		return "complete"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// SessionOptions configures NewSession. The zero value is usable.
type SessionOptions struct {
	Clock timeutil.Clock // defaults to timeutil.RealClock
	Store *tracker.Store // defaults to a new empty store
}

// frameCursor derives packet numbers, which PSN v2 does not put on the wire.
type frameCursor struct {
	seen    bool
	frameID uint8
	next    int
}

func (c *frameCursor) advance(frameID uint8) int {
	if !c.seen || c.frameID != frameID {
		c.seen, c.frameID, c.next = true, frameID, 0
	}
	n := c.next
	c.next++
	return n
}

// Session decodes PSN datagrams into one tracker store.
//
// Decode is serialized internally: concurrent callers are queued on a single
// mutex, so no caller ever sees a half-applied datagram. Each datagram is
// fully parsed and validated before anything is merged, so a failed decode
// leaves the store exactly as it was.
type Session struct {
	id    uuid.UUID
	clock timeutil.Clock
	store *tracker.Store

	mu         sync.Mutex
	state      State
	systemName string
	cursors    [3]frameCursor // indexed by wire.Kind
	stats      Stats
}

// NewSession returns an idle Session.
func NewSession(opts SessionOptions) *Session {
	s := &Session{
		id:    uuid.New(),
		clock: opts.Clock,
		store: opts.Store,
		stats: newStats(),
	}
	if s.clock == nil {
		s.clock = timeutil.RealClock{}
	}
	if s.store == nil {
		s.store = tracker.NewStore()
	}
	return s
}

// ID uniquely identifies this session in logs and published events.
func (s *Session) ID() uuid.UUID { return s.id }

// Store returns the session's tracker store.
func (s *Session) Store() *tracker.Store { return s.store }

// State returns the state the last Decode finished in.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SystemName returns the system name from the latest INFO packet.
func (s *Session) SystemName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.systemName
}

// Stats returns a copy of the decode counters.
func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats.clone()
}

// Decode parses one datagram and merges it into the store. Fragments of a
// multi-packet frame are merged as they arrive; nothing waits for the rest of
// the frame.
func (s *Session) Decode(raw []byte) (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = StateIdle
	_, kind, err := wire.DecodeRoot(raw)
	if err != nil {
		return nil, s.fail(err)
	}
	s.state = StateHeaderParsed

	pkt, err := wire.DecodeTree(raw, kind)
	if err != nil {
		return nil, s.fail(err)
	}
	s.state = StateRoutingByKind

	now := s.clock.Now()
	switch pkt.Root.Kind {
	case wire.KindInfo:
		if name, ok := pkt.Info.SystemName.Get(); ok {
			s.systemName = name
		}
		s.state = StateInfoDecoded
	case wire.KindData:
		s.state = StateDataDecoded
	}
	updated := s.store.UpsertBatch(pkt.Entries(), now)
	packetNumber := s.cursors[pkt.Root.Kind].advance(pkt.Root.FrameID)

	s.stats.record(pkt.Root.Kind, len(raw))
	s.state = StateComplete

	ids := make([]tracker.ID, len(updated))
	for i, rec := range updated {
		ids[i] = rec.ID
	}
	return &Snapshot{
		SessionID:    s.id,
		Root:         pkt.Root,
		PacketNumber: packetNumber,
		SystemName:   s.systemName,
		DecodedAt:    now,
		updated:      ids,
		records:      s.store.Snapshot(),
	}, nil
}

func (s *Session) fail(err error) error {
	s.state = StateFailed
	s.stats.recordFailure(err)
	return err
}
