package demux

import (
	"context"
	"fmt"

	"github.com/zsiec/avdemux/internal/es"
	"github.com/zsiec/avdemux/internal/lavf"
)

// Title is the single title built from the container's chapters.
type Title struct {
	Length     es.Tick
	Seekpoints []Seekpoint
}

// Seekpoint is a named chapter start relative to the stream start.
type Seekpoint struct {
	Offset es.Tick
	Name   string
}

// startRaw is the container start time in library time base units, or 0
// when unknown.
func (s *Session) startRaw() int64 {
	if st := s.lc.StartTime(); st != lavf.NoPTS {
		return st
	}
	return 0
}

func (s *Session) duration() (int64, bool) {
	d := s.lc.Duration()
	return d, d != lavf.NoPTS && d > 0
}

// Position returns the read position as a fraction of the stream: the
// clock over the duration when both are known, else bytes read over size.
func (s *Session) Position() float64 {
	if d, ok := s.duration(); ok && s.pcr.Valid() && s.pcr > 0 {
		return float64(s.pcr) / float64(rescale(d, lavf.Rational{Num: 1, Den: lavf.TimeBase}))
	}
	if size, ok := s.src.Size(); ok && size > 0 {
		return float64(s.src.Tell()) / float64(size)
	}
	return 0
}

// Time returns the global clock, which may be invalid.
func (s *Session) Time() es.Tick { return s.pcr }

// Length returns the stream duration, or 0 when unknown.
func (s *Session) Length() es.Tick {
	if d, ok := s.duration(); ok {
		return rescale(d, lavf.Rational{Num: 1, Den: lavf.TimeBase})
	}
	return 0
}

// SetPosition seeks to fraction f of the stream. It seeks by time when
// the duration is known and falls back to a byte seek.
func (s *Session) SetPosition(ctx context.Context, f float64) error {
	disarm := s.io.arm(ctx)
	defer disarm()

	start := s.startRaw()
	if d, ok := s.duration(); ok {
		target := int64(float64(d)*f) + start
		err := s.lc.SeekTime(target, true)
		if err == nil {
			s.resetTime(rescale(target-start, lavf.Rational{Num: 1, Den: lavf.TimeBase}))
			return nil
		}
		if ierr := s.io.interrupted(); ierr != nil {
			return ierr
		}
		s.log.Debug("time seek failed, seeking by byte", "target", target, "error", err)
	}

	size, ok := s.src.Size()
	if !ok {
		return fmt.Errorf("%w: unknown stream size", ErrSeekFailed)
	}
	off := int64(float64(size) * f)
	if err := s.lc.SeekByte(off); err != nil {
		if ierr := s.io.interrupted(); ierr != nil {
			return ierr
		}
		return fmt.Errorf("%w: byte seek to %d: %w", ErrSeekFailed, off, err)
	}
	s.resetTime(es.TickInvalid)
	return nil
}

// SetTime seeks to t on the stream clock.
func (s *Session) SetTime(ctx context.Context, t es.Tick) error {
	disarm := s.io.arm(ctx)
	defer disarm()
	return s.seekTime(t)
}

func (s *Session) seekTime(t es.Tick) error {
	target := int64(t)*lavf.TimeBase/es.ClockFreq + s.startRaw()
	if err := s.lc.SeekTime(target, true); err != nil {
		if ierr := s.io.interrupted(); ierr != nil {
			return ierr
		}
		return fmt.Errorf("%w: time seek to %v: %w", ErrSeekFailed, t, err)
	}
	s.resetTime(t)
	return nil
}

// SetSeekpoint seeks to the start of chapter i.
func (s *Session) SetSeekpoint(ctx context.Context, i int) error {
	if s.title == nil || i < 0 || i >= len(s.title.Seekpoints) {
		return fmt.Errorf("%w: no seekpoint %d", ErrSeekFailed, i)
	}
	disarm := s.io.arm(ctx)
	defer disarm()
	if err := s.seekTime(s.title.Seekpoints[i].Offset); err != nil {
		return err
	}
	s.setSeekpoint(i)
	return nil
}

// Seekpoint returns the current chapter index, or -1 before the first.
func (s *Session) Seekpoint() int { return s.seekpoint }

// Title returns a copy of the chapter title, or ErrNoTitle.
func (s *Session) Title() (Title, error) {
	if s.title == nil {
		return Title{}, ErrNoTitle
	}
	t := *s.title
	t.Seekpoints = append([]Seekpoint(nil), s.title.Seekpoints...)
	return t, nil
}

// SetTitle selects title i. Only title 0 exists.
func (s *Session) SetTitle(i int) error {
	if s.title == nil {
		return ErrNoTitle
	}
	if i != 0 {
		return fmt.Errorf("%w: title %d", ErrNoTitle, i)
	}
	return nil
}

// resetTime discards the per-track clocks after a seek and sets the
// global clock to t.
func (s *Session) resetTime(t es.Tick) {
	s.pcr = t
	for i := range s.tracks {
		s.tracks[i].pcr = es.TickInvalid
	}
	if t.Valid() {
		s.out.SetNextDisplayTime(t)
		s.updateSeekpoint(t)
	}
}

// updateSeekpoint moves to the last seekpoint starting at or before t.
func (s *Session) updateSeekpoint(t es.Tick) {
	if s.title == nil {
		return
	}
	i := 0
	for i < len(s.title.Seekpoints) && t >= s.title.Seekpoints[i].Offset {
		i++
	}
	if i--; i >= 0 {
		s.setSeekpoint(i)
	}
}

func (s *Session) setSeekpoint(i int) {
	if i == s.seekpoint {
		return
	}
	s.seekpoint = i
	s.out.SeekpointChanged(i)
}
