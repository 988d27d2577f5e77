package tracker

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 10, 1, 12, 0, 0, 0, time.UTC)

func TestOptional(t *testing.T) {
	var none Optional[float32]
	assert.False(t, none.IsSet())
	assert.Equal(t, float32(7), none.Or(7))
	assert.Nil(t, none.Ptr())
	assert.Equal(t, "<unset>", none.String())

	zero := Some(float32(0))
	v, ok := zero.Get()
	assert.True(t, ok)
	assert.Equal(t, float32(0), v)
	require.NotNil(t, zero.Ptr())
	assert.Equal(t, float32(0), *zero.Ptr())
	assert.False(t, None[int]().IsSet())
}

func TestMerge_PreservesAbsentFields(t *testing.T) {
	rec := Record{ID: 3, Name: Some("Arm-Left")}
	rec = Merge(rec, Update{Position: Some(Vec3{X: 1, Y: 2, Z: 3})}, t0)

	assert.Equal(t, "Arm-Left", rec.Name.Or(""))
	assert.Equal(t, Vec3{X: 1, Y: 2, Z: 3}, rec.Position.Or(Vec3{}))
	assert.False(t, rec.Speed.IsSet())
	assert.Equal(t, t0, rec.LastUpdated)
}

func TestMerge_ReplacesWholeVector(t *testing.T) {
	rec := Merge(Record{}, Update{Position: Some(Vec3{X: 1, Y: 2, Z: 3})}, t0)
	rec = Merge(rec, Update{Position: Some(Vec3{X: 9})}, t0)
	assert.Equal(t, Vec3{X: 9}, rec.Position.Or(Vec3{}))
}

func TestMerge_StatusSetsValidity(t *testing.T) {
	tests := []struct {
		status float32
		valid  bool
	}{
		{1, true},
		{0.5, true},
		{0, false},
		{-1, false},
	}
	for _, tt := range tests {
		rec := Merge(Record{}, Update{Status: Some(tt.status)}, t0)
		assert.Equal(t, tt.valid, rec.Validity.Or(!tt.valid), "status %v", tt.status)
		assert.Equal(t, tt.status, rec.Status.Or(99))
	}
}

func TestMerge_EmptyUpdateOnlyTouchesTimestamp(t *testing.T) {
	before := Merge(Record{ID: 1}, Update{
		Name:     Some("a"),
		Position: Some(Vec3{X: 1}),
		Status:   Some(float32(1)),
	}, t0)
	after := Merge(before, Update{}, t0.Add(time.Second))

	assert.True(t, Update{}.IsEmpty())
	assert.Equal(t, t0.Add(time.Second), after.LastUpdated)
	after.LastUpdated = before.LastUpdated
	assert.Equal(t, before, after)
}

func TestStore_UpsertCreatesAndMerges(t *testing.T) {
	s := NewStore()
	_, ok := s.Get(3)
	assert.False(t, ok)

	got := s.Upsert(3, Update{Position: Some(Vec3{X: 1, Y: 2, Z: 3})}, t0)
	assert.Equal(t, ID(3), got.ID)
	assert.False(t, got.Name.IsSet())

	got = s.Upsert(3, Update{Name: Some("Arm-Left")}, t0.Add(time.Millisecond))
	assert.Equal(t, "Arm-Left", got.Name.Or(""))
	assert.Equal(t, Vec3{X: 1, Y: 2, Z: 3}, got.Position.Or(Vec3{}))

	stored, ok := s.Get(3)
	require.True(t, ok)
	assert.Equal(t, got, stored)
	assert.Equal(t, 1, s.Len())
}

func TestStore_UpsertIsIdempotent(t *testing.T) {
	s := NewStore()
	u := Update{Position: Some(Vec3{X: 4, Y: 5, Z: 6}), Status: Some(float32(1))}
	first := s.Upsert(7, u, t0)
	second := s.Upsert(7, u, t0)
	assert.Equal(t, first, second)
}

func TestStore_AllIsPointInTimeAndRestartable(t *testing.T) {
	s := NewStore()
	s.UpsertBatch([]Entry{
		{ID: 2, Update: Update{Name: Some("b")}},
		{ID: 1, Update: Update{Name: Some("a")}},
	}, t0)

	seq := s.All()
	s.Upsert(3, Update{Name: Some("c")}, t0)
	s.Upsert(1, Update{Name: Some("changed")}, t0)

	for range 2 {
		var ids []ID
		var names []string
		for id, rec := range seq {
			ids = append(ids, id)
			names = append(names, rec.Name.Or(""))
		}
		assert.Equal(t, []ID{1, 2}, ids)
		assert.Equal(t, []string{"a", "b"}, names)
	}

	// Early break must be honoured.
	n := 0
	for range s.All() {
		n++
		break
	}
	assert.Equal(t, 1, n)
}

func TestStore_ConcurrentAccess(t *testing.T) {
	s := NewStore()
	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func(id ID) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				s.Upsert(id, Update{Position: Some(Vec3{X: float64(j)})}, t0)
				for range s.All() {
				}
			}
		}(ID(i))
	}
	wg.Wait()
	assert.Equal(t, 8, s.Len())
}

func TestRecord_DisplayName(t *testing.T) {
	assert.Equal(t, "12", Record{ID: 12}.DisplayName())
	assert.Equal(t, "0", Record{}.DisplayName())
	assert.Equal(t, "Arm", Record{ID: 12, Name: Some("Arm")}.DisplayName())
	assert.Equal(t, "12", Record{ID: 12, Name: Some("")}.DisplayName())
}
