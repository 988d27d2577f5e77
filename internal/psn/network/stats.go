package network

import (
	"fmt"
	"sync"
	"time"

	"github.com/banshee-data/psn.report/internal/monitoring"
)

// PacketStatsInterface provides packet statistics management
type PacketStatsInterface interface {
	AddPacket(bytes int)
	AddDropped()
	AddFailure()
	AddTrackers(count int)
	LogStats()
}

// PacketStats accumulates listener counters between log lines.
type PacketStats struct {
	mu           sync.Mutex
	packetCount  int64
	byteCount    int64
	droppedCount int64
	failureCount int64
	trackerCount int64
	lastReset    time.Time
}

// NewPacketStats returns zeroed stats starting now.
func NewPacketStats() *PacketStats {
	return &PacketStats{lastReset: time.Now()}
}

func (ps *PacketStats) AddPacket(bytes int) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.packetCount++
	ps.byteCount += int64(bytes)
}

func (ps *PacketStats) AddDropped() {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.droppedCount++
}

func (ps *PacketStats) AddFailure() {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.failureCount++
}

func (ps *PacketStats) AddTrackers(count int) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.trackerCount += int64(count)
}

// StatsSample is one interval of counters.
type StatsSample struct {
	Packets  int64
	Bytes    int64
	Dropped  int64
	Failures int64
	Trackers int64
	Duration time.Duration
}

// GetAndReset returns the counters since the last reset and zeroes them.
func (ps *PacketStats) GetAndReset() StatsSample {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	now := time.Now()
	s := StatsSample{
		Packets:  ps.packetCount,
		Bytes:    ps.byteCount,
		Dropped:  ps.droppedCount,
		Failures: ps.failureCount,
		Trackers: ps.trackerCount,
		Duration: now.Sub(ps.lastReset),
	}
	ps.packetCount, ps.byteCount, ps.droppedCount, ps.failureCount, ps.trackerCount = 0, 0, 0, 0, 0
	ps.lastReset = now
	return s
}

// LogStats logs per-second rates for the last interval. Silent intervals are
// not logged.
func (ps *PacketStats) LogStats() {
	s := ps.GetAndReset()
	if s.Packets == 0 && s.Dropped == 0 {
		return
	}
	monitoring.Logger().Info("PSN stats", "summary", s.String())
}

func (s StatsSample) String() string {
	secs := s.Duration.Seconds()
	if secs <= 0 {
		secs = 1
	}
	msg := fmt.Sprintf("PSN stats (/sec): %.1f KB, %.1f packets, %s tracker updates",
		float64(s.Bytes)/secs/1024, float64(s.Packets)/secs, formatWithCommas(int64(float64(s.Trackers)/secs)))
	if s.Failures > 0 {
		msg += fmt.Sprintf(", %d decode failures", s.Failures)
	}
	if s.Dropped > 0 {
		msg += fmt.Sprintf(", %d dropped", s.Dropped)
	}
	return msg
}

// formatWithCommas formats a number with thousands separators
func formatWithCommas(n int64) string {
	if n < 0 {
		return "-" + formatWithCommas(-n)
	}
	str := fmt.Sprintf("%d", n)
	if len(str) <= 3 {
		return str
	}

	result := ""
	for i, char := range str {
		if i > 0 && (len(str)-i)%3 == 0 {
			result += ","
		}
		result += string(char)
	}
	return result
}

// noopStats is a PacketStatsInterface implementation that does nothing.
// It is used as a safe default when no stats collector is provided.
type noopStats struct{}

func (noopStats) AddPacket(int)   {}
func (noopStats) AddDropped()     {}
func (noopStats) AddFailure()     {}
func (noopStats) AddTrackers(int) {}
func (noopStats) LogStats()       {}
