package demux

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/zsiec/avdemux/internal/es"
	"github.com/zsiec/avdemux/internal/lavf"
	"github.com/zsiec/avdemux/internal/source"
)

var errFake = errors.New("fake failure")

type fakeLibrary struct {
	known   map[string]lavf.Format
	probe   lavf.Format
	probeOK bool
	ctx     *fakeContext
	openErr error
	opened  int
}

func (l *fakeLibrary) Probe(lavf.ProbeData) (lavf.Format, bool) { return l.probe, l.probeOK }

func (l *fakeLibrary) FindFormat(name string) (lavf.Format, bool) {
	f, ok := l.known[name]
	return f, ok
}

func (l *fakeLibrary) Open(in lavf.Input, f lavf.Format) (lavf.Context, error) {
	l.opened++
	if l.openErr != nil {
		return nil, l.openErr
	}
	l.ctx.format = f
	l.ctx.io = in.IO
	return l.ctx, nil
}

type seekCall struct {
	ts       int64
	backward bool
}

type fakeContext struct {
	format   lavf.Format
	io       lavf.IO
	streams  []lavf.Stream
	start    int64
	duration int64
	meta     map[string]string
	chapters []lavf.Chapter
	packets  []lavf.Packet
	readErr  error
	seekErr  error
	byteErr  error
	unused   []string
	infoErr  error

	// onInfo runs inside FindStreamInfo; a non-nil error replaces infoErr.
	onInfo func(r lavf.IO) error

	seeks     []seekCall
	byteSeeks []int64
	closed    bool
}

func (c *fakeContext) Format() lavf.Format { return c.format }

func (c *fakeContext) FindStreamInfo(map[string]string) ([]string, error) {
	if c.onInfo != nil {
		if err := c.onInfo(c.io); err != nil {
			return c.unused, err
		}
	}
	return c.unused, c.infoErr
}

func (c *fakeContext) Streams() []lavf.Stream      { return c.streams }
func (c *fakeContext) StartTime() int64            { return c.start }
func (c *fakeContext) Duration() int64             { return c.duration }
func (c *fakeContext) Metadata() map[string]string { return c.meta }
func (c *fakeContext) Chapters() []lavf.Chapter    { return c.chapters }

func (c *fakeContext) ReadPacket() (lavf.Packet, error) {
	if c.readErr != nil {
		return lavf.Packet{}, c.readErr
	}
	if len(c.packets) == 0 {
		return lavf.Packet{}, io.EOF
	}
	p := c.packets[0]
	c.packets = c.packets[1:]
	return p, nil
}

func (c *fakeContext) SeekTime(ts int64, backward bool) error {
	c.seeks = append(c.seeks, seekCall{ts, backward})
	return c.seekErr
}

func (c *fakeContext) SeekByte(offset int64) error {
	c.byteSeeks = append(c.byteSeeks, offset)
	return c.byteErr
}

func (c *fakeContext) Close() error {
	c.closed = true
	return nil
}

type sent struct {
	id es.StreamID
	b  es.Block
}

type fakeSink struct {
	formats   []es.Format
	reject    map[string]bool
	blocks    []sent
	pcrs      []es.Tick
	defaults  []es.StreamID
	displays  []es.Tick
	seekpoint []int
}

func (s *fakeSink) AddStream(f *es.Format) (es.StreamID, error) {
	if s.reject[f.Codec] {
		return 0, errFake
	}
	s.formats = append(s.formats, *f)
	return es.StreamID(len(s.formats) - 1), nil
}

func (s *fakeSink) Send(id es.StreamID, b *es.Block) { s.blocks = append(s.blocks, sent{id, *b}) }
func (s *fakeSink) SetPCR(t es.Tick)                 { s.pcrs = append(s.pcrs, t) }
func (s *fakeSink) SetDefault(id es.StreamID)        { s.defaults = append(s.defaults, id) }
func (s *fakeSink) SetNextDisplayTime(t es.Tick)     { s.displays = append(s.displays, t) }
func (s *fakeSink) SeekpointChanged(i int)           { s.seekpoint = append(s.seekpoint, i) }

var (
	msBase = lavf.Rational{Num: 1, Den: 1000}
	usBase = lavf.Rational{Num: 1, Den: lavf.TimeBase}
)

func videoStream(idx int) lavf.Stream {
	return lavf.Stream{
		Index:    idx,
		TimeBase: msBase,
		Codec: lavf.CodecParameters{
			MediaType: lavf.MediaVideo,
			CodecID:   "h264",
			Width:     1280,
			Height:    720,
			ExtraData: []byte{1, 2, 3},
		},
	}
}

func audioStream(idx int) lavf.Stream {
	return lavf.Stream{
		Index:    idx,
		TimeBase: msBase,
		Codec: lavf.CodecParameters{
			MediaType:  lavf.MediaAudio,
			CodecID:    "aac",
			SampleRate: 48000,
			Channels:   2,
			ExtraData:  []byte{0x11, 0x90},
		},
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFakeLibrary(name string, c *fakeContext) *fakeLibrary {
	return &fakeLibrary{
		probe:   lavf.Format{Name: name, LongName: name},
		probeOK: true,
		ctx:     c,
	}
}

// openFake opens a session over a 1000-byte memory source.
func openFake(t *testing.T, format string, c *fakeContext) (*Session, *fakeSink) {
	t.Helper()
	sink := &fakeSink{}
	src := source.NewMemory(make([]byte, 1000), "test."+format)
	s, err := Open(context.Background(), src, newFakeLibrary(format, c), sink, Config{Logger: discardLogger()})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s, sink
}

func pkt(idx int, dts, pts int64) lavf.Packet {
	return lavf.Packet{StreamIndex: idx, DTS: dts, PTS: pts, Data: []byte{0xAA}}
}
