package demux

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/zsiec/avdemux/internal/es"
	"github.com/zsiec/avdemux/internal/lavf"
	"github.com/zsiec/avdemux/internal/source"
)

// defaultCachingDelay is reported by PtsDelay when Config.CachingDelay is
// zero.
const defaultCachingDelay = time.Second

// Sink receives the demuxer's output. Implementations are called from the
// goroutine driving the Session.
type Sink interface {
	// AddStream registers an elementary stream and returns its handle. An
	// error leaves the stream unregistered; its packets are dropped.
	AddStream(f *es.Format) (es.StreamID, error)
	// Send delivers one block to a registered stream.
	Send(id es.StreamID, b *es.Block)
	// SetPCR advances the global presentation clock.
	SetPCR(t es.Tick)
	// SetDefault marks a stream as the container's preferred default.
	SetDefault(id es.StreamID)
	// SetNextDisplayTime announces the reference time after a seek.
	SetNextDisplayTime(t es.Tick)
	// SeekpointChanged reports that playback crossed into another chapter.
	SeekpointChanged(index int)
}

// Config controls how a Session is opened. The zero value is usable.
type Config struct {
	// ForcedFormat names a container format to use instead of probing.
	ForcedFormat string

	// Force accepts formats that are otherwise left to other engines.
	Force bool

	// Options are passed to the library when reading stream info.
	Options map[string]string

	// ProbeSize is the number of bytes peeked for probing.
	ProbeSize int

	// CachingDelay is reported by PtsDelay.
	CachingDelay time.Duration

	Logger *slog.Logger
}

func (c Config) withDefaults() Config {
	if c.ProbeSize <= 0 {
		c.ProbeSize = defaultProbeSize
	}
	if c.CachingDelay <= 0 {
		c.CachingDelay = defaultCachingDelay
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// ParseOptions parses "key=value,key=value" into a map. Entries without
// '=' are kept with an empty value.
func ParseOptions(s string) map[string]string {
	opts := make(map[string]string)
	for _, kv := range strings.Split(s, ",") {
		kv = strings.TrimSpace(kv)
		if kv == "" {
			continue
		}
		k, v, _ := strings.Cut(kv, "=")
		opts[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return opts
}

// output is the sink-side state of a track: registered or muted.
type output interface {
	isOutput()
}

type registered struct {
	id es.StreamID
}

type muted struct {
	reason string
}

func (registered) isOutput() {}
func (muted) isOutput()      {}

// track is one entry of the track table, indexed by stream index.
type track struct {
	out output
	pcr es.Tick
}

// Step reports what one call to Demux did.
type Step struct {
	// Delivered is set when a block reached the sink.
	Delivered bool

	// Advanced is set when the global clock moved forward.
	Advanced bool
}

// Session is one opened stream.
type Session struct {
	log *slog.Logger
	cfg Config
	src source.PeekSource
	io  *shim
	lc  lavf.Context
	out Sink

	format  lavf.Format
	quirks  []quirk
	streams []lavf.Stream
	tracks  []track

	// startTime is the container start time on the internal clock, 0 when
	// unknown.
	startTime  es.Tick
	startKnown bool

	pcr         es.Tick
	ssaOrder    uint32
	title       *Title
	seekpoint   int
	attachments []es.Attachment
}

// Open probes src, opens it with lib and registers its tracks with out.
// The caller keeps ownership of src and closes it after the Session.
func Open(ctx context.Context, src source.Source, lib lavf.Library, out Sink, cfg Config) (*Session, error) {
	cfg = cfg.withDefaults()
	log := cfg.Logger.With("component", "demux")

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInterrupted, err)
	}

	ps := source.Peekable(src)
	peek, err := ps.Peek(cfg.ProbeSize)
	if ctx.Err() != nil {
		return nil, fmt.Errorf("%w: %w", ErrInterrupted, ctx.Err())
	}
	if len(peek) == 0 {
		log.Warn("cannot peek", "error", err)
		return nil, ErrUnrecognizedFormat
	}

	var name string
	if n, ok := ps.(source.Named); ok {
		name = n.Name()
	}
	if name != "" {
		log.Debug("trying url", "url", name)
	}
	pd := lavf.ProbeData{Filename: name, Buf: append([]byte(nil), peek...)}

	f, err := negotiate(lib, pd, cfg, log)
	if err != nil {
		return nil, err
	}

	s := &Session{
		log:       log.With("format", f.Name),
		cfg:       cfg,
		src:       ps,
		io:        newShim(ps),
		out:       out,
		format:    f,
		quirks:    quirksFor(f),
		pcr:       es.TickInvalid,
		seekpoint: -1,
	}

	disarm := s.io.arm(ctx)
	defer disarm()

	lc, err := lib.Open(lavf.Input{
		IO:         s.io,
		URL:        name,
		Seekable:   ps.Seekable(),
		BufferSize: ioBufferSize,
	}, f)
	if err != nil {
		if ierr := s.io.interrupted(); ierr != nil {
			return nil, ierr
		}
		s.log.Error("could not open", "error", err)
		return nil, fmt.Errorf("%w: open: %w", ErrUnrecognizedFormat, err)
	}
	s.lc = lc

	if err := s.open(); err != nil {
		s.release()
		if ierr := s.io.interrupted(); ierr != nil {
			return nil, ierr
		}
		return nil, err
	}
	return s, nil
}

func (s *Session) open() error {
	unused, err := s.lc.FindStreamInfo(s.cfg.Options)
	if ierr := s.io.interrupted(); ierr != nil {
		return ierr
	}
	if err != nil {
		s.log.Warn("could not find stream info", "error", err)
	}
	for _, k := range unused {
		s.log.Error("unknown option", "key", k)
	}

	s.streams = s.lc.Streams()
	if len(s.streams) == 0 {
		s.log.Error("no streams found")
		return ErrNoUsableTracks
	}

	if st := s.lc.StartTime(); st != lavf.NoPTS {
		s.startTime = rescale(st, lavf.Rational{Num: 1, Den: lavf.TimeBase})
		s.startKnown = true
	}

	if err := s.mapTracks(); err != nil {
		return err
	}
	s.loadChapters()

	s.log.Debug("stream opened",
		"tracks", len(s.tracks),
		"start_time", s.startTime,
		"length", s.Length(),
	)

	if s.startKnown {
		s.resetTime(0)
	} else {
		s.resetTime(es.TickInvalid)
	}
	return nil
}

// Demux reads and delivers one packet. It returns io.EOF at the end of the
// stream and ErrInterrupted when ctx ends during the read.
func (s *Session) Demux(ctx context.Context) (Step, error) {
	disarm := s.io.arm(ctx)
	defer disarm()

	pkt, err := s.lc.ReadPacket()
	if err != nil {
		if errors.Is(err, lavf.ErrAgain) {
			return Step{}, nil
		}
		if ierr := s.io.interrupted(); ierr != nil {
			return Step{}, ierr
		}
		if errors.Is(err, io.EOF) {
			return Step{}, io.EOF
		}
		return Step{}, fmt.Errorf("demux: read packet: %w", err)
	}
	return s.step(pkt), nil
}

// Close releases the library context and the track table. It does not
// close the source.
func (s *Session) Close() error {
	return s.release()
}

func (s *Session) release() error {
	var err error
	if s.lc != nil {
		err = s.lc.Close()
		s.lc = nil
	}
	s.tracks = nil
	s.streams = nil
	s.attachments = nil
	s.title = nil
	return err
}

// Format returns the negotiated container format.
func (s *Session) Format() lavf.Format { return s.format }

// CanSeek always reports true; seeks may still fail.
func (s *Session) CanSeek() bool { return true }

// CanFastSeek always reports false.
func (s *Session) CanFastSeek() bool { return false }

// Size returns the source size, or false when unknown.
func (s *Session) Size() (int64, bool) { return s.src.Size() }

// PtsDelay returns the configured caching delay.
func (s *Session) PtsDelay() time.Duration { return s.cfg.CachingDelay }

// HasUnsupportedMeta reports that the container may carry metadata Meta
// does not return.
func (s *Session) HasUnsupportedMeta() bool { return true }

// Attachments returns the embedded files, or ErrNoAttachments.
func (s *Session) Attachments() ([]es.Attachment, error) {
	if len(s.attachments) == 0 {
		return nil, ErrNoAttachments
	}
	out := make([]es.Attachment, len(s.attachments))
	copy(out, s.attachments)
	return out, nil
}
