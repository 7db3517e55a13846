package fusion

import (
	"context"
	"sync"
	"time"

	"github.com/c360/sensorfusion/messages"
)

// Board holds the latest value received on each input channel. Channels
// write independently and the decision loop reads a consistent copy; there
// is no ordering across channels.
type Board struct {
	mu   sync.RWMutex
	snap Snapshot
	now  func() time.Time
}

// NewBoard returns an empty board.
func NewBoard() *Board {
	return &Board{now: time.Now}
}

// Snapshot is a copy of the board. A zero time means the input has not
// reported yet.
type Snapshot struct {
	TagScan    messages.TagScanStatus
	TagScanAt  time.Time
	Distance   messages.DistanceStatus
	DistanceAt time.Time
	Volume     messages.VolumeStatus
	VolumeAt   time.Time
	Tablet     messages.TabletEnvelope
	TabletAt   time.Time

	TakenAt time.Time
}

// Fresh reports whether an input received at t is younger than maxAge at
// the time the snapshot was taken.
func (s Snapshot) Fresh(at time.Time, maxAge time.Duration) bool {
	return !at.IsZero() && s.TakenAt.Sub(at) <= maxAge
}

// OnTagScan stores a tag scan. It has the codec.Handler signature.
func (b *Board) OnTagScan(_ context.Context, msg messages.TagScanStatus) error {
	b.mu.Lock()
	b.snap.TagScan = msg
	b.snap.TagScanAt = b.now()
	b.mu.Unlock()
	return nil
}

// OnDistance stores a distance sample.
func (b *Board) OnDistance(_ context.Context, msg messages.DistanceStatus) error {
	b.mu.Lock()
	b.snap.Distance = msg
	b.snap.DistanceAt = b.now()
	b.mu.Unlock()
	return nil
}

// OnVolume stores a volume sample.
func (b *Board) OnVolume(_ context.Context, msg messages.VolumeStatus) error {
	b.mu.Lock()
	b.snap.Volume = msg
	b.snap.VolumeAt = b.now()
	b.mu.Unlock()
	return nil
}

// OnTablet stores a tablet frame. It has the framing.Handler signature.
func (b *Board) OnTablet(_ context.Context, env messages.TabletEnvelope) error {
	b.mu.Lock()
	b.snap.Tablet = env
	b.snap.TabletAt = b.now()
	b.mu.Unlock()
	return nil
}

// Snapshot returns a copy of the board. The tag list is copied; other
// reference fields are never mutated after they are stored.
func (b *Board) Snapshot() Snapshot {
	b.mu.RLock()
	s := b.snap
	b.mu.RUnlock()

	if s.TagScan.Payload.Tags != nil {
		s.TagScan.Payload.Tags = append([]messages.TagRead(nil), s.TagScan.Payload.Tags...)
	}
	s.TakenAt = b.now()
	return s
}
