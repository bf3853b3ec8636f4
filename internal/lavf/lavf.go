package lavf

import (
	"errors"
	"math"
	"strings"
)

// NoPTS marks a packet or context timestamp that is not available.
const NoPTS int64 = math.MinInt64

// TimeBase is the denominator of context-level timestamps (start time,
// duration, time seeks without a stream): they are expressed in 1/TimeBase
// seconds.
const TimeBase = 1_000_000

// SeekSize is a whence value asking [IO.Seek] for the stream size instead
// of moving the read position.
const SeekSize = 0x10000

// ErrAgain is returned by [Context.ReadPacket] when no packet is available
// yet but the stream has not ended.
var ErrAgain = errors.New("lavf: resource temporarily unavailable")

// ErrNotSeekable is returned by backends that cannot honor a seek request.
var ErrNotSeekable = errors.New("lavf: stream not seekable")

// MediaType classifies a stream.
type MediaType int

// Media types as reported by the library.
const (
	MediaUnknown MediaType = iota
	MediaVideo
	MediaAudio
	MediaData
	MediaSubtitle
	MediaAttachment
)

// Disposition flags of a stream.
type Disposition uint32

// Disposition bits.
const (
	DispositionDefault     Disposition = 1 << 0
	DispositionAttachedPic Disposition = 1 << 10
)

// Rational is a time base or ratio.
type Rational struct {
	Num int64
	Den int64
}

// Format identifies a container format. Name may list several aliases
// separated by commas ("mov,mp4,m4a").
type Format struct {
	Name     string
	LongName string
}

// Is reports whether name is one of the format's aliases.
func (f Format) Is(name string) bool {
	for _, n := range strings.Split(f.Name, ",") {
		if n == name {
			return true
		}
	}
	return false
}

// ProbeData is the input to [Library.Probe].
type ProbeData struct {
	Filename string
	Buf      []byte
}

// CodecParameters describes the coded content of a stream.
type CodecParameters struct {
	MediaType          MediaType
	CodecID            string // library codec name, e.g. "h264", "aac_latm"
	CodecTag           uint32
	BitRate            int64
	Channels           int
	SampleRate         int
	BitsPerCodedSample int
	BlockAlign         int
	Width              int
	Height             int
	PixelFormat        string
	ExtraData          []byte
}

// Stream is one stream descriptor of an opened context.
type Stream struct {
	Index             int
	TimeBase          Rational
	Disposition       Disposition
	Metadata          map[string]string
	Codec             CodecParameters
	DisplayMatrix     *[9]int32
	FrameRate         Rational
	SampleAspectRatio Rational
}

// Chapter is a chapter marker; Start is in TimeBase units of the chapter.
type Chapter struct {
	Start    int64
	TimeBase Rational
	Metadata map[string]string
}

// Packet is one demuxed packet. PTS, DTS and Duration are in the stream's
// time base; PTS and DTS may be [NoPTS].
type Packet struct {
	StreamIndex int
	Data        []byte
	PTS         int64
	DTS         int64
	Duration    int64
	Key         bool
}

// IO is the byte access a library needs. Seek accepts io.SeekStart,
// io.SeekCurrent, io.SeekEnd and [SeekSize].
type IO interface {
	Read(p []byte) (int, error)
	Seek(offset int64, whence int) (int64, error)
}

// Input bundles what [Library.Open] needs besides the format.
type Input struct {
	IO         IO
	URL        string
	Seekable   bool
	BufferSize int
}

// Library is a container parsing library.
type Library interface {
	// Probe classifies a byte prefix. ok is false when no format matches.
	Probe(pd ProbeData) (f Format, ok bool)
	// FindFormat resolves a format by name.
	FindFormat(name string) (f Format, ok bool)
	// Open opens a context reading from in.
	Open(in Input, f Format) (Context, error)
}

// Context is an opened container.
type Context interface {
	Format() Format
	// FindStreamInfo reads ahead to fill in stream parameters. It returns
	// the option keys it did not consume.
	FindStreamInfo(opts map[string]string) (unused []string, err error)
	Streams() []Stream
	// StartTime and Duration are in 1/TimeBase seconds, NoPTS if unknown.
	StartTime() int64
	Duration() int64
	Metadata() map[string]string
	Chapters() []Chapter
	// ReadPacket returns the next packet, io.EOF at the end, or ErrAgain.
	ReadPacket() (Packet, error)
	// SeekTime seeks to ts (1/TimeBase seconds). With backward set the
	// library lands on or before ts.
	SeekTime(ts int64, backward bool) error
	// SeekByte seeks to an absolute byte offset.
	SeekByte(offset int64) error
	Close() error
}
