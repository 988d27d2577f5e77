package psn

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/psn.report/internal/psn/tracker"
	"github.com/banshee-data/psn.report/internal/psn/wire"
	tu "github.com/banshee-data/psn.report/internal/testutil"
	"github.com/banshee-data/psn.report/internal/timeutil"
)

var start = time.Date(2025, 10, 1, 20, 0, 0, 0, time.UTC)

func newTestSession() (*Session, *timeutil.MockClock) {
	clock := timeutil.NewMockClock(start)
	return NewSession(SessionOptions{Clock: clock}), clock
}

func TestSession_DataThenInfo(t *testing.T) {
	s, clock := newTestSession()
	assert.NotEqual(t, uuid.Nil, s.ID())
	assert.Equal(t, StateIdle, s.State())

	snap, err := s.Decode(tu.DataPacket(1, 1, tu.Tracker(3, tu.Position(1, 2, 3))))
	require.NoError(t, err)
	assert.Equal(t, StateComplete, s.State())
	assert.Equal(t, wire.KindData, snap.Kind())
	assert.Equal(t, 0, snap.PacketNumber)
	assert.Equal(t, []tracker.ID{3}, snap.Updated())

	rec, ok := s.Store().Get(3)
	require.True(t, ok)
	assert.Equal(t, tracker.Vec3{X: 1, Y: 2, Z: 3}, rec.Position.Or(tracker.Vec3{}))
	assert.False(t, rec.Name.IsSet())
	assert.Equal(t, start, rec.LastUpdated)

	clock.Advance(time.Second)
	snap, err = s.Decode(tu.InfoPacket("Rig", 1, 1, tu.TrackerName(3, "Arm-Left")))
	require.NoError(t, err)
	assert.Equal(t, wire.KindInfo, snap.Kind())
	assert.Equal(t, "Rig", snap.SystemName)
	assert.Equal(t, "Rig", s.SystemName())

	rec, ok = snap.Get(3)
	require.True(t, ok)
	assert.Equal(t, "Arm-Left", rec.Name.Or(""))
	assert.Equal(t, tracker.Vec3{X: 1, Y: 2, Z: 3}, rec.Position.Or(tracker.Vec3{}))
	assert.Equal(t, start.Add(time.Second), rec.LastUpdated)
}

func TestSession_UnknownChunkAlongsidePosition(t *testing.T) {
	s, _ := newTestSession()
	_, err := s.Decode(tu.DataPacket(1, 1,
		tu.Tracker(3, tu.Leaf(999, []byte{0xca, 0xfe}), tu.Position(1, 2, 3)),
	))
	require.NoError(t, err)
	rec, ok := s.Store().Get(3)
	require.True(t, ok)
	assert.Equal(t, tracker.Vec3{X: 1, Y: 2, Z: 3}, rec.Position.Or(tracker.Vec3{}))
}

func TestSession_MalformedVendorContainerKeepsTracker(t *testing.T) {
	s, _ := newTestSession()
	vendor := append(tu.RawHeader(999, 3, true), 0xde, 0xad, 0xbe)
	snap, err := s.Decode(tu.DataPacket(1, 1, tu.Tracker(3, vendor, tu.Position(1, 2, 3))))
	require.NoError(t, err)
	assert.Equal(t, StateComplete, s.State())
	assert.Equal(t, []tracker.ID{3}, snap.Updated())

	rec, ok := s.Store().Get(3)
	require.True(t, ok)
	assert.Equal(t, tracker.Vec3{X: 1, Y: 2, Z: 3}, rec.Position.Or(tracker.Vec3{}))
}

func TestSession_MalformedRootVendorContainerKeepsTrackers(t *testing.T) {
	s, _ := newTestSession()
	bad := append(tu.RawHeader(0x0001, 200, false), 1, 2)
	buf := tu.Container(tu.DataPacketID,
		tu.PacketHeader(1, 2, 0, 1, 1),
		append(tu.RawHeader(0x4242, len(bad), true), bad...),
		tu.Container(0x0001, tu.Tracker(4, tu.Position(4, 5, 6))),
	)

	snap, err := s.Decode(buf)
	require.NoError(t, err)
	assert.Equal(t, []tracker.ID{4}, snap.Updated())

	rec, ok := s.Store().Get(4)
	require.True(t, ok)
	assert.Equal(t, tracker.Vec3{X: 4, Y: 5, Z: 6}, rec.Position.Or(tracker.Vec3{}))
}

func TestSession_DecodeIsIdempotent(t *testing.T) {
	s, _ := newTestSession()
	buf := tu.DataPacket(9, 1, tu.Tracker(1, tu.Position(5, 6, 7), tu.Speed(1, 0, 0), tu.Status(1)))

	_, err := s.Decode(buf)
	require.NoError(t, err)
	first, _ := s.Store().Get(1)

	_, err = s.Decode(buf)
	require.NoError(t, err)
	second, _ := s.Store().Get(1)
	assert.Equal(t, first, second)
}

func TestSession_FailedDecodeLeavesStoreUntouched(t *testing.T) {
	s, _ := newTestSession()
	_, err := s.Decode(tu.DataPacket(1, 1, tu.Tracker(1, tu.Position(1, 1, 1))))
	require.NoError(t, err)
	before := s.Store().Snapshot()

	// Tracker 1 is valid but tracker 2 is malformed; neither may be applied.
	bad := tu.DataPacket(2, 1,
		tu.Tracker(1, tu.Position(9, 9, 9)),
		tu.Tracker(2, tu.Leaf(0x0000, []byte{1})),
	)
	snap, err := s.Decode(bad)
	assert.Nil(t, snap)
	assert.ErrorIs(t, err, ErrChunkLengthMismatch)
	assert.Equal(t, StateFailed, s.State())
	assert.Equal(t, before, s.Store().Snapshot())
}

func TestSession_FailureKinds(t *testing.T) {
	s, _ := newTestSession()
	_, err := s.Decode([]byte("hello world, not psn at all"))
	assert.ErrorIs(t, err, ErrInvalidMagic)
	_, err = s.Decode([]byte{0x55, 0x67})
	assert.ErrorIs(t, err, ErrTruncatedData)
	_, err = s.Decode(tu.Container(tu.DataPacketID, tu.PacketHeader(0, 1, 0, 0, 1)))
	assert.ErrorIs(t, err, ErrUnsupportedVersion)

	stats := s.Stats()
	assert.Equal(t, int64(3), stats.TotalFailures())
	assert.Equal(t, int64(1), stats.Failures["invalid magic"])
	assert.Equal(t, int64(0), stats.DataPackets)

	// The session recovers for the next datagram.
	_, err = s.Decode(tu.DataPacket(1, 1))
	require.NoError(t, err)
	assert.Equal(t, StateComplete, s.State())
	assert.Equal(t, int64(1), s.Stats().DataPackets)
}

func TestSession_MultiPacketFrameMergesEachFragment(t *testing.T) {
	s, _ := newTestSession()

	snap, err := s.Decode(tu.DataPacket(5, 2, tu.Tracker(1, tu.Position(1, 0, 0))))
	require.NoError(t, err)
	assert.Equal(t, 0, snap.PacketNumber)
	assert.Equal(t, uint8(2), snap.Root.PacketCount)
	assert.Equal(t, 1, snap.Len(), "first fragment is visible before the frame completes")

	snap, err = s.Decode(tu.DataPacket(5, 2, tu.Tracker(2, tu.Position(2, 0, 0))))
	require.NoError(t, err)
	assert.Equal(t, 1, snap.PacketNumber)
	assert.Equal(t, 2, snap.Len())

	snap, err = s.Decode(tu.DataPacket(6, 2, tu.Tracker(1, tu.Position(3, 0, 0))))
	require.NoError(t, err)
	assert.Equal(t, 0, snap.PacketNumber, "new frame restarts numbering")

	// INFO frames are numbered independently of DATA frames.
	snap, err = s.Decode(tu.InfoPacket("sys", 6, 1))
	require.NoError(t, err)
	assert.Equal(t, 0, snap.PacketNumber)
}

func TestSnapshot_IsPointInTime(t *testing.T) {
	s, _ := newTestSession()
	snap, err := s.Decode(tu.DataPacket(1, 1, tu.Tracker(1, tu.Position(1, 1, 1))))
	require.NoError(t, err)

	_, err = s.Decode(tu.DataPacket(2, 1, tu.Tracker(1, tu.Position(2, 2, 2)), tu.Tracker(4)))
	require.NoError(t, err)

	assert.Equal(t, 1, snap.Len())
	rec, _ := snap.Get(1)
	assert.Equal(t, tracker.Vec3{X: 1, Y: 1, Z: 1}, rec.Position.Or(tracker.Vec3{}))
	_, ok := snap.Get(4)
	assert.False(t, ok)

	var ids []tracker.ID
	for id := range snap.Trackers() {
		ids = append(ids, id)
	}
	assert.Equal(t, []tracker.ID{1}, ids)
}

func TestSession_ConcurrentDecode(t *testing.T) {
	s, _ := newTestSession()
	var wg sync.WaitGroup
	for i := range 4 {
		wg.Add(1)
		go func(id uint16) {
			defer wg.Done()
			for j := range 50 {
				buf := tu.DataPacket(uint8(j), 1, tu.Tracker(id, tu.Position(float32(j), 0, 0)))
				_, err := s.Decode(buf)
				assert.NoError(t, err)
			}
		}(uint16(i))
	}
	wg.Wait()
	assert.Equal(t, 4, s.Store().Len())
	assert.Equal(t, int64(200), s.Stats().DataPackets)
}

func TestState_String(t *testing.T) {
	for st, want := range map[State]string{
		StateIdle:          "idle",
		StateHeaderParsed:  "header-parsed",
		StateRoutingByKind: "routing",
		StateInfoDecoded:   "info-decoded",
		StateDataDecoded:   "data-decoded",
		StateComplete:      "complete",
		StateFailed:        "failed",
		State(42):          "unknown",
	} {
		assert.Equal(t, want, st.String())
	}
}
