package rip2

import (
	"log"
	"sync"
	"time"
)

// PacketStats tracks receive-path statistics with thread-safe operations.
// Decode failures surface here as a dropped count and nowhere else; they
// are never fatal and never retried.
type PacketStats struct {
	mu          sync.Mutex
	packetCount int64
	byteCount   int64
	dropped     int64
	pointCount  int64
	lastReset   time.Time
}

// NewPacketStats creates a new PacketStats instance.
func NewPacketStats() *PacketStats {
	return &PacketStats{lastReset: time.Now()}
}

// AddPacket increments packet count and byte count.
func (ps *PacketStats) AddPacket(bytes int) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.packetCount++
	ps.byteCount += int64(bytes)
}

// AddDropped increments the dropped-packet count.
func (ps *PacketStats) AddDropped() {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.dropped++
}

// AddPoints increments the extracted point count.
func (ps *PacketStats) AddPoints(count int) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.pointCount += int64(count)
}

// Dropped returns the number of packets dropped since the last reset.
func (ps *PacketStats) Dropped() int64 {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return ps.dropped
}

// GetAndReset returns current stats and resets counters.
func (ps *PacketStats) GetAndReset() (packets, bytes, dropped, points int64, duration time.Duration) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	now := time.Now()
	duration = now.Sub(ps.lastReset)
	packets = ps.packetCount
	bytes = ps.byteCount
	dropped = ps.dropped
	points = ps.pointCount

	ps.packetCount = 0
	ps.byteCount = 0
	ps.dropped = 0
	ps.pointCount = 0
	ps.lastReset = now
	return
}

// LogStats logs formatted receive statistics and resets the counters.
func (ps *PacketStats) LogStats() {
	packets, bytes, dropped, points, duration := ps.GetAndReset()
	if packets == 0 && dropped == 0 {
		return
	}
	secs := duration.Seconds()
	if secs <= 0 {
		secs = 1
	}
	log.Printf("Sonar stats (/sec): %.2f KB, %.1f packets, %.0f points, %d dropped",
		float64(bytes)/secs/1024, float64(packets)/secs, float64(points)/secs, dropped)
}
