// Package joy implements lavf.Library on top of the pure Go joy4
// demuxers. It covers MP4, FLV, raw ADTS AAC and MPEG-TS with H.264, AAC
// and the FLV audio codecs.
//
// Timestamps are reported in nanoseconds. Only MP4 supports time seeks
// and reports a duration; only MPEG-TS supports byte seeks.
package joy

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/nareix/joy4/av"
	"github.com/nareix/joy4/av/avutil"
	"github.com/nareix/joy4/codec/aacparser"
	"github.com/nareix/joy4/codec/h264parser"
	"github.com/nareix/joy4/format/aac"
	"github.com/nareix/joy4/format/flv"
	"github.com/nareix/joy4/format/mp4"
	"github.com/nareix/joy4/format/mp4/mp4io"
	"github.com/nareix/joy4/format/ts"

	"github.com/zsiec/avdemux/internal/lavf"
)

// timeBase is the stream time base of every joy4 track.
var timeBase = lavf.Rational{Num: 1, Den: int64(time.Second)}

const tsPacketSize = 188

// container is one registered demuxer.
type container struct {
	format   lavf.Format
	minProbe int
	probe    func([]byte) bool
	demuxer  func(io.ReadSeeker) av.Demuxer

	// needsSeek is set for formats that read their index from anywhere in
	// the file.
	needsSeek bool

	zeroStart bool
	timeSeek  bool
	byteSeek  bool

	// adts restores the frame header joy4 strips from raw AAC.
	adts bool
}

// Library probes and opens the joy4 formats.
type Library struct {
	containers []container
}

// New returns a Library with every supported container registered, in
// probe order.
func New() *Library {
	var mp4h, flvh, aach avutil.RegisterHandler
	mp4.Handler(&mp4h)
	flv.Handler(&flvh)
	aac.Handler(&aach)

	return &Library{containers: []container{
		{
			format:    lavf.Format{Name: "mov,mp4,m4a,3gp,3g2,mj2", LongName: "QuickTime / MOV"},
			minProbe:  8,
			probe:     mp4h.Probe,
			demuxer:   func(r io.ReadSeeker) av.Demuxer { return mp4h.ReaderDemuxer(r) },
			needsSeek: true,
			zeroStart: true,
			timeSeek:  true,
		},
		{
			format:   lavf.Format{Name: "flv", LongName: "FLV (Flash Video)"},
			minProbe: 3,
			probe:    flvh.Probe,
			demuxer:  func(r io.ReadSeeker) av.Demuxer { return flvh.ReaderDemuxer(r) },
		},
		{
			format:   lavf.Format{Name: "aac", LongName: "raw ADTS AAC (Advanced Audio Coding)"},
			minProbe: 9,
			probe:    aach.Probe,
			demuxer:  func(r io.ReadSeeker) av.Demuxer { return aach.ReaderDemuxer(r) },
			adts:     true,
		},
		{
			format:   lavf.Format{Name: "mpegts", LongName: "MPEG-TS (MPEG-2 Transport Stream)"},
			minProbe: tsPacketSize + 1,
			probe:    probeTS,
			demuxer:  func(r io.ReadSeeker) av.Demuxer { return ts.NewDemuxer(r) },
			byteSeek: true,
		},
	}}
}

// probeTS looks for two consecutive sync bytes.
func probeTS(b []byte) bool {
	return b[0] == 0x47 && b[tsPacketSize] == 0x47
}

func (l *Library) Probe(pd lavf.ProbeData) (lavf.Format, bool) {
	for _, c := range l.containers {
		if len(pd.Buf) >= c.minProbe && c.probe(pd.Buf) {
			return c.format, true
		}
	}
	return lavf.Format{}, false
}

func (l *Library) FindFormat(name string) (lavf.Format, bool) {
	if c, ok := l.find(name); ok {
		return c.format, true
	}
	return lavf.Format{}, false
}

func (l *Library) find(name string) (container, bool) {
	for _, c := range l.containers {
		if c.format.Is(name) || c.format.Name == name {
			return c, true
		}
	}
	return container{}, false
}

func (l *Library) Open(in lavf.Input, f lavf.Format) (lavf.Context, error) {
	c, ok := l.find(f.Name)
	if !ok {
		return nil, fmt.Errorf("joy: unknown format %q", f.Name)
	}
	if c.needsSeek && !in.Seekable {
		return nil, fmt.Errorf("joy: %s needs a seekable input", c.format.Name)
	}
	rs := newEOFSeeker(in.IO)
	jc := &Context{c: c, rs: rs, duration: lavf.NoPTS}
	if c.timeSeek && in.Seekable {
		d, err := movieDuration(rs)
		if err != nil {
			return nil, err
		}
		jc.duration = d
	}
	jc.dmx = c.demuxer(rs)
	return jc, nil
}

// movieDuration reads the duration from the mvhd atom and rewinds r. It
// returns NoPTS when the header is missing or unreadable.
func movieDuration(r io.ReadSeeker) (int64, error) {
	atoms, err := mp4io.ReadFileAtoms(r)
	if _, serr := r.Seek(0, io.SeekStart); serr != nil {
		return lavf.NoPTS, fmt.Errorf("joy: rewind: %w", serr)
	}
	if err != nil {
		return lavf.NoPTS, nil
	}
	for _, a := range atoms {
		m, ok := a.(*mp4io.Movie)
		if !ok || m.Header == nil || m.Header.TimeScale <= 0 || m.Header.Duration <= 0 {
			continue
		}
		return int64(m.Header.Duration) * lavf.TimeBase / int64(m.Header.TimeScale), nil
	}
	return lavf.NoPTS, nil
}

// Context is one opened joy4 demuxer.
type Context struct {
	c        container
	rs       io.ReadSeeker
	dmx      av.Demuxer
	codecs   []av.CodecData
	streams  []lavf.Stream
	duration int64
}

func (c *Context) Format() lavf.Format { return c.c.format }

// FindStreamInfo reads the container header. joy4 takes no options, so
// every key comes back unused.
func (c *Context) FindStreamInfo(opts map[string]string) ([]string, error) {
	var unused []string
	for k := range opts {
		unused = append(unused, k)
	}
	if c.codecs != nil {
		return unused, nil
	}
	codecs, err := c.dmx.Streams()
	if err != nil {
		return unused, fmt.Errorf("joy: streams: %w", err)
	}
	c.codecs = codecs
	c.streams = make([]lavf.Stream, len(codecs))
	for i, cd := range codecs {
		c.streams[i] = streamFor(i, cd)
	}
	return unused, nil
}

func (c *Context) Streams() []lavf.Stream { return c.streams }

// StartTime is 0 for MP4, whose sample tables start at zero, and unknown
// for the streaming formats.
func (c *Context) StartTime() int64 {
	if c.c.zeroStart {
		return 0
	}
	return lavf.NoPTS
}

func (c *Context) Duration() int64             { return c.duration }
func (c *Context) Metadata() map[string]string { return nil }
func (c *Context) Chapters() []lavf.Chapter    { return nil }
func (c *Context) Close() error                { return nil }

func (c *Context) ReadPacket() (lavf.Packet, error) {
	if c.codecs == nil {
		if _, err := c.FindStreamInfo(nil); err != nil {
			return lavf.Packet{}, err
		}
	}
	pkt, err := c.dmx.ReadPacket()
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return lavf.Packet{}, io.EOF
		}
		return lavf.Packet{}, fmt.Errorf("joy: read packet: %w", err)
	}

	idx := int(pkt.Idx)
	out := lavf.Packet{
		StreamIndex: idx,
		Data:        pkt.Data,
		DTS:         int64(pkt.Time),
		PTS:         int64(pkt.Time + pkt.CompositionTime),
		Key:         pkt.IsKeyFrame,
	}
	if idx >= 0 && idx < len(c.codecs) {
		if ac, ok := c.codecs[idx].(av.AudioCodecData); ok {
			if d, err := ac.PacketDuration(pkt.Data); err == nil && d > 0 {
				out.Duration = int64(d)
			}
			out.Key = true
		}
		if ac, ok := c.codecs[idx].(aacparser.CodecData); ok && c.c.adts {
			out.Data = withADTS(ac.Config, pkt.Data)
		}
	}
	return out, nil
}

func withADTS(cfg aacparser.MPEG4AudioConfig, frame []byte) []byte {
	b := make([]byte, aacparser.ADTSHeaderLength+len(frame))
	aacparser.FillADTSHeader(b, cfg, 1024, len(frame))
	copy(b[aacparser.ADTSHeaderLength:], frame)
	return b
}

func (c *Context) SeekTime(ts int64, _ bool) error {
	if !c.c.timeSeek {
		return lavf.ErrNotSeekable
	}
	ms, ok := c.dmx.(*mp4.Demuxer)
	if !ok {
		return lavf.ErrNotSeekable
	}
	if ts < 0 {
		ts = 0
	}
	if err := ms.SeekToTime(time.Duration(ts) * (time.Second / lavf.TimeBase)); err != nil {
		return fmt.Errorf("joy: seek: %w", err)
	}
	return nil
}

// SeekByte restarts the demuxer at the packet boundary at or before
// offset. The header is re-read from the new position and must describe
// the same streams in the same order.
func (c *Context) SeekByte(offset int64) error {
	if !c.c.byteSeek {
		return lavf.ErrNotSeekable
	}
	offset -= offset % tsPacketSize
	if _, err := c.rs.Seek(offset, io.SeekStart); err != nil {
		return fmt.Errorf("joy: seek: %w", err)
	}
	c.dmx = c.c.demuxer(c.rs)
	codecs, err := c.dmx.Streams()
	if err != nil {
		return fmt.Errorf("joy: resync: %w", err)
	}
	if c.codecs != nil && !sameLayout(c.codecs, codecs) {
		return fmt.Errorf("joy: resync at %d: stream layout changed", offset)
	}
	c.codecs = codecs
	c.streams = make([]lavf.Stream, len(codecs))
	for i, cd := range codecs {
		c.streams[i] = streamFor(i, cd)
	}
	return nil
}

// sameLayout reports whether b lists the same codecs as a, index by index.
func sameLayout(a, b []av.CodecData) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Type() != b[i].Type() {
			return false
		}
		aa, aok := a[i].(av.AudioCodecData)
		ba, bok := b[i].(av.AudioCodecData)
		if aok != bok || (aok && (aa.SampleRate() != ba.SampleRate() || aa.ChannelLayout() != ba.ChannelLayout())) {
			return false
		}
	}
	return true
}

// streamFor describes a joy4 codec as a library stream.
func streamFor(i int, cd av.CodecData) lavf.Stream {
	st := lavf.Stream{Index: i, TimeBase: timeBase}
	cp := &st.Codec

	switch cd.Type() {
	case av.H264:
		cp.CodecID = "h264"
	case av.AAC:
		cp.CodecID = "aac"
	case av.PCM_MULAW:
		cp.CodecID = "pcm_mulaw"
	case av.PCM_ALAW:
		cp.CodecID = "pcm_alaw"
	case av.SPEEX:
		cp.CodecID = "speex"
	case av.NELLYMOSER:
		cp.CodecID = "nellymoser"
	}

	switch v := cd.(type) {
	case h264parser.CodecData:
		cp.ExtraData = bytes.Clone(v.AVCDecoderConfRecordBytes())
	case aacparser.CodecData:
		cp.ExtraData = bytes.Clone(v.MPEG4AudioConfigBytes())
	}

	switch v := cd.(type) {
	case av.VideoCodecData:
		cp.MediaType = lavf.MediaVideo
		cp.Width = v.Width()
		cp.Height = v.Height()
		if fr, ok := cd.(interface{ Framerate() (int, int) }); ok {
			if num, den := fr.Framerate(); num > 0 && den > 0 {
				st.FrameRate = lavf.Rational{Num: int64(num), Den: int64(den)}
			}
		}
	case av.AudioCodecData:
		cp.MediaType = lavf.MediaAudio
		cp.SampleRate = v.SampleRate()
		cp.Channels = v.ChannelLayout().Count()
		cp.BitsPerCodedSample = v.SampleFormat().BytesPerSample() * 8
	default:
		cp.MediaType = lavf.MediaUnknown
	}
	return st
}

// eofSeeker lets a seek land exactly on the end of a sized input; reads
// then return io.EOF until the next seek. The session I/O rejects such a
// seek, but joy4's MP4 atom walk skips the last top-level atom with one.
type eofSeeker struct {
	r     lavf.IO
	size  int64
	pos   int64
	atEOF bool
}

func newEOFSeeker(r lavf.IO) *eofSeeker {
	e := &eofSeeker{r: r, size: -1}
	if n, err := r.Seek(0, lavf.SeekSize); err == nil && n > 0 {
		e.size = n
		if pos, err := r.Seek(0, io.SeekCurrent); err == nil {
			e.pos = pos
		}
	}
	return e
}

func (e *eofSeeker) Read(p []byte) (int, error) {
	if e.atEOF {
		return 0, io.EOF
	}
	n, err := e.r.Read(p)
	e.pos += int64(n)
	return n, err
}

func (e *eofSeeker) Seek(offset int64, whence int) (int64, error) {
	if e.size < 0 || whence == lavf.SeekSize {
		n, err := e.r.Seek(offset, whence)
		if err == nil && whence != lavf.SeekSize {
			e.pos, e.atEOF = n, false
		}
		return n, err
	}

	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = e.pos + offset
	case io.SeekEnd:
		abs = e.size + offset
	default:
		return -1, fmt.Errorf("joy: invalid whence %d", whence)
	}
	if abs == e.size {
		e.pos, e.atEOF = abs, true
		return abs, nil
	}
	n, err := e.r.Seek(abs, io.SeekStart)
	if err != nil {
		return n, err
	}
	e.pos, e.atEOF = n, false
	return n, nil
}
