// ABOUTME: Clock offset estimation with exponential smoothing
// ABOUTME: Timestamps are Unix milliseconds on both sides
package sync

import (
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// maxRTT discards samples taken during network congestion
const maxRTT = 1000 // ms

// ClockSync tracks the server clock offset
type ClockSync struct {
	mu            sync.RWMutex
	offset        int64 // Current offset in milliseconds (server - client)
	rtt           int64 // Latest round-trip time
	quality       Quality
	lastSync      time.Time
	sampleCount   int
	smoothingRate float64
	logger        *log.Logger
}

// Quality represents sync quality
type Quality int

const (
	QualityGood Quality = iota
	QualityDegraded
	QualityLost
)

// String returns the quality name
func (q Quality) String() string {
	switch q {
	case QualityGood:
		return "good"
	case QualityDegraded:
		return "degraded"
	default:
		return "lost"
	}
}

// NewClockSync creates a new clock synchronizer
func NewClockSync() *ClockSync {
	return &ClockSync{
		smoothingRate: 0.1, // 10% weight to new samples
		quality:       QualityLost,
		logger:        log.WithPrefix("clock"),
	}
}

// ProcessSyncResponse folds one exchange into the estimate. t1 and t4 are
// client send/receive times, t2 and t3 server receive/send times, all in
// Unix milliseconds.
func (cs *ClockSync) ProcessSyncResponse(t1, t2, t3, t4 int64) {
	rtt, measuredOffset := calculateOffset(t1, t2, t3, t4)

	cs.mu.Lock()
	defer cs.mu.Unlock()

	cs.rtt = rtt
	cs.lastSync = time.Now()

	if rtt < 0 || rtt > maxRTT {
		cs.logger.Debug("Discarding sync sample", "rtt_ms", rtt)
		return
	}

	if cs.sampleCount == 0 {
		cs.offset = measuredOffset
		cs.logger.Debug("Initial sync", "offset_ms", cs.offset, "rtt_ms", rtt)
	} else {
		cs.offset += int64(cs.smoothingRate * float64(measuredOffset-cs.offset))
	}
	cs.sampleCount++

	if rtt < 250 {
		cs.quality = QualityGood
	} else {
		cs.quality = QualityDegraded
	}
}

// calculateOffset computes RTT and clock offset
func calculateOffset(t1, t2, t3, t4 int64) (rtt, offset int64) {
	// Round-trip time
	rtt = (t4 - t1) - (t3 - t2)

	// Estimated offset (positive = server ahead of client)
	offset = ((t2 - t1) + (t3 - t4)) / 2

	return
}

// Offset returns the current offset
func (cs *ClockSync) Offset() time.Duration {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return time.Duration(cs.offset) * time.Millisecond
}

// Stats returns sync statistics
func (cs *ClockSync) Stats() (offset, rtt int64, quality Quality) {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.offset, cs.rtt, cs.quality
}

// CheckQuality marks the sync lost when no sample arrived recently
func (cs *ClockSync) CheckQuality() Quality {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if time.Since(cs.lastSync) > 30*time.Second {
		cs.quality = QualityLost
	}

	return cs.quality
}

// ServerToLocal converts a server timestamp to local wall clock time
func (cs *ClockSync) ServerToLocal(serverMillis int64) time.Time {
	cs.mu.RLock()
	defer cs.mu.RUnlock()

	// If we haven't synced yet, assume server time = client time
	if cs.sampleCount == 0 {
		return time.UnixMilli(serverMillis)
	}
	return time.UnixMilli(serverMillis - cs.offset)
}

// ClientMillis returns the local Unix time in milliseconds
func ClientMillis() int64 {
	return time.Now().UnixMilli()
}
