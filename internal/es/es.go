// Package es defines the elementary-stream types that flow out of the
// demuxer: stream formats, timestamped blocks and attachments.
package es

import (
	"fmt"
	"math"
	"time"
)

// ClockFreq is the number of Ticks per second.
const ClockFreq = 1_000_000

// Tick is a point or span on the internal clock, in microseconds.
type Tick int64

// TickInvalid marks a timestamp that is not available. Zero is a valid time.
const TickInvalid Tick = math.MinInt64

// Valid reports whether t carries a timestamp.
func (t Tick) Valid() bool { return t != TickInvalid }

// Duration converts t to a time.Duration. An invalid tick converts to 0.
func (t Tick) Duration() time.Duration {
	if !t.Valid() {
		return 0
	}
	return time.Duration(t) * time.Microsecond
}

// TickFromDuration converts d to a Tick, truncating below a microsecond.
func TickFromDuration(d time.Duration) Tick {
	return Tick(d / time.Microsecond)
}

// Seconds returns a Tick of n seconds.
func Seconds(n int64) Tick { return Tick(n * ClockFreq) }

func (t Tick) String() string {
	if !t.Valid() {
		return "invalid"
	}
	return t.Duration().String()
}

// Kind is the media category of an elementary stream.
type Kind int

// Stream kinds.
const (
	KindUnknown Kind = iota
	KindVideo
	KindAudio
	KindSubtitle
	KindAttachment
	KindData
)

func (k Kind) String() string {
	switch k {
	case KindVideo:
		return "video"
	case KindAudio:
		return "audio"
	case KindSubtitle:
		return "subtitle"
	case KindAttachment:
		return "attachment"
	case KindData:
		return "data"
	}
	return "unknown"
}

// Registration priorities. A stream flagged as default by the container is
// registered at PrioritySelectableMin+1000.
const (
	PriorityNotSelectable  = -2
	PriorityNotDefaultable = -1
	PrioritySelectableMin  = 0
)

// Orientation is the display rotation of a video stream.
type Orientation int

// Supported orientations, clockwise.
const (
	OrientNormal Orientation = iota
	OrientRotated90
	OrientRotated180
	OrientRotated270
)

func (o Orientation) String() string {
	switch o {
	case OrientRotated90:
		return "90"
	case OrientRotated180:
		return "180"
	case OrientRotated270:
		return "270"
	}
	return "normal"
}

// Rational is a num/den pair, used for frame rates and aspect ratios.
type Rational struct {
	Num int64
	Den int64
}

func (r Rational) String() string { return fmt.Sprintf("%d/%d", r.Num, r.Den) }

// AudioFormat carries the audio-specific fields of a Format.
type AudioFormat struct {
	Rate          int
	Channels      int
	BitsPerSample int
	BlockAlign    int
}

// VideoFormat carries the video-specific fields of a Format.
type VideoFormat struct {
	Width         int
	Height        int
	VisibleWidth  int
	VisibleHeight int
	BitsPerPixel  int
	Chroma        string
	FrameRate     Rational
	SAR           Rational
	Orientation   Orientation
}

// SubtitleFormat carries the subtitle-specific fields of a Format.
type SubtitleFormat struct {
	Width         int
	Height        int
	Palette       []uint32 // YUV entries, set when the container carries one
	CompositionID int
	AncillaryID   int
}

// DVBID packs the DVB composition and ancillary page ids.
func (s SubtitleFormat) DVBID() int {
	return s.CompositionID | s.AncillaryID<<16
}

// Format describes an elementary stream at registration time.
type Format struct {
	Kind  Kind
	Codec string // codec name, e.g. "h264", "aac", "theora"

	// FourCC is the container's codec tag; OriginalFourCC overrides the
	// framing the decoder should expect (e.g. "avc1", "ADTS", "LATM").
	FourCC         string
	OriginalFourCC string

	ID          int // index of the stream in the container
	Group       int
	Priority    int
	Language    string
	Description string
	Bitrate     int64

	// Packetized is false when the payload is a raw bitstream that must be
	// framed before decoding.
	Packetized bool
	Extra      []byte

	Audio    AudioFormat
	Video    VideoFormat
	Subtitle SubtitleFormat
}

// StreamID is the handle a sink returns for a registered stream.
type StreamID int

// Block is one timestamped payload for a registered stream.
type Block struct {
	Data   []byte
	DTS    Tick
	PTS    Tick
	Length Tick // 0 when unset
	Key    bool
}

// Attachment is a file embedded in the container, such as a font.
type Attachment struct {
	Name string
	MIME string
	Data []byte
}
