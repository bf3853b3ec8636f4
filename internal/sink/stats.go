package sink

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/zsiec/avdemux/internal/demux"
	"github.com/zsiec/avdemux/internal/es"
)

// Compile-time interface check.
var _ demux.Sink = (*Stats)(nil)

// maxDTSJump is the forward DTS step above which a track counts a gap.
const maxDTSJump = 5 * es.ClockFreq

// TrackStats holds point-in-time counters for one stream.
type TrackStats struct {
	ID          es.StreamID
	Format      es.Format
	Default     bool
	Packets     int64
	KeyFrames   int64
	Bytes       int64
	FirstDTS    es.Tick
	LastDTS     es.Tick
	BackwardDTS int64
	Gaps        int64
	BitrateKbps float64
}

// Snapshot is a consistent view of a Stats collector.
type Snapshot struct {
	Uptime           time.Duration
	Tracks           []TrackStats
	PCR              es.Tick
	PCRUpdates       int64
	Seekpoint        int
	SeekpointChanges int64
	DisplayResets    int64
}

// Stats counts what the demuxer delivers. Sink calls come from the demux
// goroutine; Snapshot may be called from any goroutine.
//
// Fields are organized by the mechanism that guards them:
//   - Atomic counters: session-wide clock and navigation events
//   - mu: the track list and each track's format and default flag
type Stats struct {
	start time.Time

	pcr              atomic.Int64
	pcrUpdates       atomic.Int64
	seekpoint        atomic.Int64
	seekpointChanges atomic.Int64
	displayResets    atomic.Int64

	// mu guards tracks
	mu     sync.RWMutex
	tracks []*trackAccum
}

// trackAccum is a per-stream accumulator updated from the demux goroutine.
type trackAccum struct {
	format    es.Format
	isDefault bool

	packets atomic.Int64
	keys    atomic.Int64
	bytes   atomic.Int64
	first   atomic.Int64
	last    atomic.Int64
	back    atomic.Int64
	gaps    atomic.Int64
}

// NewStats creates an empty collector.
func NewStats() *Stats {
	s := &Stats{start: time.Now()}
	s.pcr.Store(int64(es.TickInvalid))
	s.seekpoint.Store(-1)
	return s
}

func (s *Stats) AddStream(f *es.Format) (es.StreamID, error) {
	acc := &trackAccum{format: *f}
	acc.first.Store(int64(es.TickInvalid))
	acc.last.Store(int64(es.TickInvalid))

	s.mu.Lock()
	s.tracks = append(s.tracks, acc)
	id := es.StreamID(len(s.tracks) - 1)
	s.mu.Unlock()
	return id, nil
}

func (s *Stats) track(id es.StreamID) *trackAccum {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if id < 0 || int(id) >= len(s.tracks) {
		return nil
	}
	return s.tracks[id]
}

// Send updates the packet counters and DTS continuity of the stream.
func (s *Stats) Send(id es.StreamID, b *es.Block) {
	acc := s.track(id)
	if acc == nil {
		return
	}
	acc.packets.Add(1)
	acc.bytes.Add(int64(len(b.Data)))
	if b.Key {
		acc.keys.Add(1)
	}

	if !b.DTS.Valid() {
		return
	}
	dts := int64(b.DTS)
	acc.first.CompareAndSwap(int64(es.TickInvalid), dts)
	last := acc.last.Swap(dts)
	if last == int64(es.TickInvalid) {
		return
	}
	delta := dts - last
	if delta < 0 {
		acc.back.Add(1)
	}
	if delta > maxDTSJump {
		acc.gaps.Add(1)
	}
}

func (s *Stats) SetPCR(t es.Tick) {
	s.pcr.Store(int64(t))
	s.pcrUpdates.Add(1)
}

func (s *Stats) SetDefault(id es.StreamID) {
	s.mu.Lock()
	if id >= 0 && int(id) < len(s.tracks) {
		s.tracks[id].isDefault = true
	}
	s.mu.Unlock()
}

// SetNextDisplayTime counts a clock reset. DTS continuity restarts.
func (s *Stats) SetNextDisplayTime(es.Tick) {
	s.displayResets.Add(1)
	s.mu.RLock()
	for _, acc := range s.tracks {
		acc.last.Store(int64(es.TickInvalid))
	}
	s.mu.RUnlock()
}

func (s *Stats) SeekpointChanged(index int) {
	s.seekpoint.Store(int64(index))
	s.seekpointChanges.Add(1)
}

// Snapshot produces a point-in-time view of all counters. Bitrates are
// computed over the media time spanned by each track's DTS.
func (s *Stats) Snapshot() Snapshot {
	s.mu.RLock()
	tracks := make([]TrackStats, 0, len(s.tracks))
	for i, acc := range s.tracks {
		ts := TrackStats{
			ID:          es.StreamID(i),
			Format:      acc.format,
			Default:     acc.isDefault,
			Packets:     acc.packets.Load(),
			KeyFrames:   acc.keys.Load(),
			Bytes:       acc.bytes.Load(),
			FirstDTS:    es.Tick(acc.first.Load()),
			LastDTS:     es.Tick(acc.last.Load()),
			BackwardDTS: acc.back.Load(),
			Gaps:        acc.gaps.Load(),
		}
		if ts.FirstDTS.Valid() && ts.LastDTS.Valid() && ts.LastDTS > ts.FirstDTS {
			secs := float64(ts.LastDTS-ts.FirstDTS) / es.ClockFreq
			ts.BitrateKbps = float64(ts.Bytes) * 8 / secs / 1000
		}
		tracks = append(tracks, ts)
	}
	s.mu.RUnlock()

	return Snapshot{
		Uptime:           time.Since(s.start),
		Tracks:           tracks,
		PCR:              es.Tick(s.pcr.Load()),
		PCRUpdates:       s.pcrUpdates.Load(),
		Seekpoint:        int(s.seekpoint.Load()),
		SeekpointChanges: s.seekpointChanges.Load(),
		DisplayResets:    s.displayResets.Load(),
	}
}
