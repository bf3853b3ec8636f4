//go:build ffmpeg

// Package ffmpeg implements lavf.Library with libavformat through
// go-astiav. It needs cgo and the FFmpeg development libraries and is only
// built with the ffmpeg build tag.
package ffmpeg

import (
	"errors"
	"fmt"
	"io"

	"github.com/asticode/go-astiav"
	"github.com/asticode/go-astikit"

	"github.com/zsiec/avdemux/internal/lavf"
)

// probeBufferSize is the IO buffer used while probing a peeked prefix.
const probeBufferSize = 4096

// Library opens inputs with libavformat.
type Library struct{}

// New returns a Library.
func New() *Library { return &Library{} }

// Probe opens a throwaway format context over the peeked bytes and reports
// the input format libavformat picks.
func (l *Library) Probe(pd lavf.ProbeData) (lavf.Format, bool) {
	if len(pd.Buf) == 0 {
		return lavf.Format{}, false
	}
	c := astikit.NewCloser()
	defer c.Close()

	r := &memReader{b: pd.Buf}
	ioc, err := astiav.AllocIOContext(probeBufferSize, false, r.Read, r.Seek, nil)
	if err != nil {
		return lavf.Format{}, false
	}
	c.Add(ioc.Free)

	fc := astiav.AllocFormatContext()
	if fc == nil {
		return lavf.Format{}, false
	}
	c.Add(fc.Free)
	fc.SetPb(ioc)
	fc.SetFlags(fc.Flags().Add(astiav.FormatContextFlagCustomIo))

	if err := fc.OpenInput(pd.Filename, nil, nil); err != nil {
		return lavf.Format{}, false
	}
	c.Add(fc.CloseInput)

	f := fc.InputFormat()
	if f == nil {
		return lavf.Format{}, false
	}
	return lavf.Format{Name: f.Name(), LongName: f.LongName()}, true
}

func (l *Library) FindFormat(name string) (lavf.Format, bool) {
	f := astiav.FindInputFormat(name)
	if f == nil {
		return lavf.Format{}, false
	}
	return lavf.Format{Name: f.Name(), LongName: f.LongName()}, true
}

func (l *Library) Open(in lavf.Input, f lavf.Format) (lavf.Context, error) {
	c := &Context{closer: astikit.NewCloser(), in: in}

	seek := c.seek
	if !in.Seekable {
		seek = nil
	}
	ioc, err := astiav.AllocIOContext(in.BufferSize, false, c.read, seek, nil)
	if err != nil {
		return nil, fmt.Errorf("ffmpeg: allocating io context: %w", err)
	}
	c.closer.Add(ioc.Free)

	c.fc = astiav.AllocFormatContext()
	if c.fc == nil {
		c.closer.Close()
		return nil, errors.New("ffmpeg: allocating format context failed")
	}
	c.closer.Add(c.fc.Free)
	c.fc.SetPb(ioc)
	c.fc.SetFlags(c.fc.Flags().Add(astiav.FormatContextFlagCustomIo))

	var format *astiav.InputFormat
	if f.Name != "" {
		format = astiav.FindInputFormat(firstAlias(f.Name))
	}
	if err := c.fc.OpenInput(in.URL, format, nil); err != nil {
		c.closer.Close()
		return nil, fmt.Errorf("ffmpeg: opening input: %w", err)
	}
	c.closer.Add(c.fc.CloseInput)

	c.pkt = astiav.AllocPacket()
	c.closer.Add(c.pkt.Free)
	return c, nil
}

func firstAlias(name string) string {
	for i := 0; i < len(name); i++ {
		if name[i] == ',' {
			return name[:i]
		}
	}
	return name
}

// Context is one opened libavformat input.
type Context struct {
	closer *astikit.Closer
	in     lavf.Input
	fc     *astiav.FormatContext
	pkt    *astiav.Packet
}

func (c *Context) read(b []byte) (int, error) {
	n, err := c.in.IO.Read(b)
	if n == 0 && errors.Is(err, io.EOF) {
		return 0, io.EOF
	}
	return n, err
}

func (c *Context) seek(offset int64, whence int) (int64, error) {
	return c.in.IO.Seek(offset, whence)
}

func (c *Context) Format() lavf.Format {
	f := c.fc.InputFormat()
	if f == nil {
		return lavf.Format{}
	}
	return lavf.Format{Name: f.Name(), LongName: f.LongName()}
}

// FindStreamInfo passes opts through a dictionary and returns the keys
// libavformat left in it.
func (c *Context) FindStreamInfo(opts map[string]string) ([]string, error) {
	var d *astiav.Dictionary
	if len(opts) > 0 {
		d = astiav.NewDictionary()
		defer d.Free()
		for k, v := range opts {
			if err := d.Set(k, v, astiav.NewDictionaryFlags()); err != nil {
				return nil, fmt.Errorf("ffmpeg: setting option %s: %w", k, err)
			}
		}
	}
	err := c.fc.FindStreamInfo(d)
	var unused []string
	for k := range dictionary(d) {
		unused = append(unused, k)
	}
	if err != nil {
		return unused, fmt.Errorf("ffmpeg: finding stream info: %w", err)
	}
	return unused, nil
}

func (c *Context) Streams() []lavf.Stream {
	ss := c.fc.Streams()
	out := make([]lavf.Stream, len(ss))
	for i, s := range ss {
		out[i] = stream(s)
	}
	return out
}

func stream(s *astiav.Stream) lavf.Stream {
	cp := s.CodecParameters()
	st := lavf.Stream{
		Index:    s.Index(),
		TimeBase: rational(s.TimeBase()),
		Metadata: dictionary(s.Metadata()),
		Codec: lavf.CodecParameters{
			MediaType:  mediaType(cp.MediaType()),
			CodecID:    cp.CodecID().Name(),
			CodecTag:   uint32(cp.CodecTag()),
			BitRate:    cp.BitRate(),
			SampleRate: cp.SampleRate(),
			Channels:   cp.ChannelLayout().Channels(),
			Width:      cp.Width(),
			Height:     cp.Height(),
			ExtraData:  append([]byte(nil), cp.ExtraData()...),
		},
		FrameRate:         rational(s.AvgFrameRate()),
		SampleAspectRatio: rational(s.SampleAspectRatio()),
	}
	if cp.MediaType() == astiav.MediaTypeVideo {
		st.Codec.PixelFormat = cp.PixelFormat().String()
	}
	flags := s.DispositionFlags()
	if flags.Has(astiav.StreamDispositionFlagDefault) {
		st.Disposition |= lavf.DispositionDefault
	}
	if flags.Has(astiav.StreamDispositionFlagAttachedPic) {
		st.Disposition |= lavf.DispositionAttachedPic
	}
	return st
}

func mediaType(t astiav.MediaType) lavf.MediaType {
	switch t {
	case astiav.MediaTypeVideo:
		return lavf.MediaVideo
	case astiav.MediaTypeAudio:
		return lavf.MediaAudio
	case astiav.MediaTypeData:
		return lavf.MediaData
	case astiav.MediaTypeSubtitle:
		return lavf.MediaSubtitle
	case astiav.MediaTypeAttachment:
		return lavf.MediaAttachment
	}
	return lavf.MediaUnknown
}

func rational(r astiav.Rational) lavf.Rational {
	return lavf.Rational{Num: int64(r.Num()), Den: int64(r.Den())}
}

// dictionary copies every entry of d.
func dictionary(d *astiav.Dictionary) map[string]string {
	m := make(map[string]string)
	if d == nil {
		return m
	}
	flags := astiav.NewDictionaryFlags(astiav.DictionaryFlagIgnoreSuffix)
	var e *astiav.DictionaryEntry
	for {
		if e = d.Get("", e, flags); e == nil {
			return m
		}
		m[e.Key()] = e.Value()
	}
}

func (c *Context) StartTime() int64 {
	if v := c.fc.StartTime(); v != astiav.NoPtsValue {
		return v
	}
	return lavf.NoPTS
}

func (c *Context) Duration() int64 {
	if v := c.fc.Duration(); v != astiav.NoPtsValue {
		return v
	}
	return lavf.NoPTS
}

func (c *Context) Metadata() map[string]string { return dictionary(c.fc.Metadata()) }

// Chapters are not exposed by this backend.
func (c *Context) Chapters() []lavf.Chapter { return nil }

func (c *Context) ReadPacket() (lavf.Packet, error) {
	if err := c.fc.ReadFrame(c.pkt); err != nil {
		switch {
		case errors.Is(err, astiav.ErrEof):
			return lavf.Packet{}, io.EOF
		case errors.Is(err, astiav.ErrEagain):
			return lavf.Packet{}, lavf.ErrAgain
		}
		return lavf.Packet{}, fmt.Errorf("ffmpeg: reading frame: %w", err)
	}
	defer c.pkt.Unref()

	p := lavf.Packet{
		StreamIndex: c.pkt.StreamIndex(),
		Data:        append([]byte(nil), c.pkt.Data()...),
		PTS:         c.pkt.Pts(),
		DTS:         c.pkt.Dts(),
		Duration:    c.pkt.Duration(),
		Key:         c.pkt.Flags().Has(astiav.PacketFlagKey),
	}
	if p.PTS == astiav.NoPtsValue {
		p.PTS = lavf.NoPTS
	}
	if p.DTS == astiav.NoPtsValue {
		p.DTS = lavf.NoPTS
	}
	return p, nil
}

func (c *Context) SeekTime(ts int64, backward bool) error {
	flags := astiav.NewSeekFlags()
	if backward {
		flags = astiav.NewSeekFlags(astiav.SeekFlagBackward)
	}
	if err := c.fc.SeekFrame(-1, ts, flags); err != nil {
		return fmt.Errorf("ffmpeg: seeking to %d: %w", ts, err)
	}
	return nil
}

func (c *Context) SeekByte(offset int64) error {
	if err := c.fc.SeekFrame(-1, offset, astiav.NewSeekFlags(astiav.SeekFlagByte)); err != nil {
		return fmt.Errorf("ffmpeg: seeking to byte %d: %w", offset, err)
	}
	return nil
}

func (c *Context) Close() error {
	return c.closer.Close()
}

// memReader serves the probe prefix to libavformat.
type memReader struct {
	b   []byte
	pos int64
}

func (r *memReader) Read(p []byte) (int, error) {
	if r.pos >= int64(len(r.b)) {
		return 0, io.EOF
	}
	n := copy(p, r.b[r.pos:])
	r.pos += int64(n)
	return n, nil
}

func (r *memReader) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = r.pos + offset
	case io.SeekEnd:
		abs = int64(len(r.b)) + offset
	case lavf.SeekSize:
		return int64(len(r.b)), nil
	default:
		return -1, fmt.Errorf("ffmpeg: invalid whence %d", whence)
	}
	if abs < 0 {
		return -1, errors.New("ffmpeg: negative seek")
	}
	r.pos = abs
	return abs, nil
}
