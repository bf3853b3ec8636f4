package esdump

import (
	"fmt"
	"io"

	"github.com/quic-go/quic-go/quicvarint"
	"github.com/segmentio/ksuid"

	"github.com/zsiec/avdemux/internal/es"
)

// Writer appends records to a dump. It is not safe for concurrent use.
type Writer struct {
	w   io.Writer
	buf []byte
}

// NewWriter writes the dump header for session to w.
func NewWriter(w io.Writer, session ksuid.KSUID) (*Writer, error) {
	hdr := []byte(Magic)
	hdr = quicvarint.Append(hdr, Version)
	hdr = append(hdr, session.Bytes()...)
	if _, err := w.Write(hdr); err != nil {
		return nil, fmt.Errorf("esdump: write header: %w", err)
	}
	return &Writer{w: w}, nil
}

// writeRecord frames payload as a single Write call.
func (wr *Writer) writeRecord(typ uint64, payload []byte) error {
	if len(payload) > maxPayload {
		return fmt.Errorf("%w: %d bytes", ErrTooLarge, len(payload))
	}
	buf := wr.buf[:0]
	buf = quicvarint.Append(buf, typ)
	buf = quicvarint.Append(buf, uint64(len(payload)))
	buf = append(buf, payload...)
	wr.buf = buf
	_, err := wr.w.Write(buf)
	return err
}

// WriteFormat records the registration of stream id.
func (wr *Writer) WriteFormat(id es.StreamID, f *es.Format) error {
	var e encoder
	e.uint(uint64(id))
	e.uint(uint64(f.Kind))
	e.str(f.Codec)
	e.str(f.FourCC)
	e.str(f.OriginalFourCC)
	e.int(int64(f.ID))
	e.int(int64(f.Group))
	e.int(int64(f.Priority))
	e.str(f.Language)
	e.str(f.Description)
	e.int(f.Bitrate)
	e.bool(f.Packetized)
	e.bytes(f.Extra)

	a := f.Audio
	e.int(int64(a.Rate))
	e.int(int64(a.Channels))
	e.int(int64(a.BitsPerSample))
	e.int(int64(a.BlockAlign))

	v := f.Video
	e.int(int64(v.Width))
	e.int(int64(v.Height))
	e.int(int64(v.VisibleWidth))
	e.int(int64(v.VisibleHeight))
	e.int(int64(v.BitsPerPixel))
	e.str(v.Chroma)
	e.int(v.FrameRate.Num)
	e.int(v.FrameRate.Den)
	e.int(v.SAR.Num)
	e.int(v.SAR.Den)
	e.uint(uint64(v.Orientation))

	s := f.Subtitle
	e.int(int64(s.Width))
	e.int(int64(s.Height))
	e.int(int64(s.CompositionID))
	e.int(int64(s.AncillaryID))
	e.uint(uint64(len(s.Palette)))
	for _, p := range s.Palette {
		e.uint(uint64(p))
	}
	if e.err != nil {
		return e.err
	}
	return wr.writeRecord(RecFormat, e.buf)
}

// WriteBlock records one block sent to stream id.
func (wr *Writer) WriteBlock(id es.StreamID, b *es.Block) error {
	var e encoder
	e.uint(uint64(id))
	var flags byte
	if b.Key {
		flags |= flagKey
	}
	if b.DTS.Valid() {
		flags |= flagDTS
	}
	if b.PTS.Valid() {
		flags |= flagPTS
	}
	if b.Length != 0 {
		flags |= flagHasLength
	}
	e.buf = append(e.buf, flags)
	if b.DTS.Valid() {
		e.int(int64(b.DTS))
	}
	if b.PTS.Valid() {
		e.int(int64(b.PTS))
	}
	if b.Length != 0 {
		e.int(int64(b.Length))
	}
	e.bytes(b.Data)
	if e.err != nil {
		return e.err
	}
	return wr.writeRecord(RecBlock, e.buf)
}

// WritePCR records a global clock advance.
func (wr *Writer) WritePCR(t es.Tick) error {
	return wr.writeTick(RecPCR, t)
}

// WriteDisplayTime records the reference time announced after a seek.
func (wr *Writer) WriteDisplayTime(t es.Tick) error {
	return wr.writeTick(RecDisplayTime, t)
}

func (wr *Writer) writeTick(typ uint64, t es.Tick) error {
	if !t.Valid() {
		return fmt.Errorf("%w: invalid tick", ErrOutOfRange)
	}
	var e encoder
	e.int(int64(t))
	if e.err != nil {
		return e.err
	}
	return wr.writeRecord(typ, e.buf)
}

// WriteSeekpoint records a chapter change.
func (wr *Writer) WriteSeekpoint(index int) error {
	var e encoder
	e.int(int64(index))
	return wr.writeRecord(RecSeekpoint, e.buf)
}

// WriteDefault records that stream id is the container's default.
func (wr *Writer) WriteDefault(id es.StreamID) error {
	var e encoder
	e.uint(uint64(id))
	if e.err != nil {
		return e.err
	}
	return wr.writeRecord(RecDefault, e.buf)
}

// encoder accumulates a payload and keeps the first error.
type encoder struct {
	buf []byte
	err error
}

func (e *encoder) uint(v uint64) {
	if e.err != nil {
		return
	}
	if v > quicvarint.Max {
		e.err = fmt.Errorf("%w: %d", ErrOutOfRange, v)
		return
	}
	e.buf = quicvarint.Append(e.buf, v)
}

func (e *encoder) int(v int64) { e.uint(zigzag(v)) }

func (e *encoder) bool(v bool) {
	if v {
		e.buf = append(e.buf, 1)
	} else {
		e.buf = append(e.buf, 0)
	}
}

func (e *encoder) bytes(b []byte) {
	e.uint(uint64(len(b)))
	e.buf = append(e.buf, b...)
}

func (e *encoder) str(s string) {
	e.uint(uint64(len(s)))
	e.buf = append(e.buf, s...)
}
