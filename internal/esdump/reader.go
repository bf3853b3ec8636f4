package esdump

import (
	"bufio"
	"errors"
	"fmt"
	"io"

	"github.com/quic-go/quic-go/quicvarint"
	"github.com/segmentio/ksuid"

	"github.com/zsiec/avdemux/internal/es"
)

// Header is the preamble of a dump.
type Header struct {
	Version uint64
	Session ksuid.KSUID
}

// Record is one decoded dump record. Only the fields matching Type are set.
type Record struct {
	Type   uint64
	Stream es.StreamID

	// Format is set for RecFormat, Block for RecBlock.
	Format *es.Format
	Block  *es.Block

	// Tick is set for RecPCR and RecDisplayTime, Seekpoint for RecSeekpoint.
	// RecDefault carries only Stream.
	Tick      es.Tick
	Seekpoint int
}

// Reader decodes a dump written by Writer.
type Reader struct {
	r      *bufio.Reader
	header Header
}

// NewReader reads and validates the dump header.
func NewReader(r io.Reader) (*Reader, error) {
	br := bufio.NewReader(r)

	magic := make([]byte, len(Magic))
	if _, err := io.ReadFull(br, magic); err != nil {
		return nil, fmt.Errorf("esdump: read magic: %w", err)
	}
	if string(magic) != Magic {
		return nil, ErrBadMagic
	}
	version, err := quicvarint.Read(br)
	if err != nil {
		return nil, fmt.Errorf("esdump: read version: %w", err)
	}
	if version != Version {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, version)
	}
	id := make([]byte, len(ksuid.Nil))
	if _, err := io.ReadFull(br, id); err != nil {
		return nil, fmt.Errorf("esdump: read session: %w", err)
	}
	session, err := ksuid.FromBytes(id)
	if err != nil {
		return nil, fmt.Errorf("esdump: session: %w", err)
	}
	return &Reader{r: br, header: Header{Version: version, Session: session}}, nil
}

// Header returns the dump preamble.
func (rd *Reader) Header() Header { return rd.header }

// Next returns the next record. It returns io.EOF at a clean end of dump
// and io.ErrUnexpectedEOF when the last record is cut short. Records of
// unknown type are skipped.
func (rd *Reader) Next() (Record, error) {
	for {
		typ, err := quicvarint.Read(rd.r)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return Record{}, io.EOF
			}
			return Record{}, fmt.Errorf("esdump: read record type: %w", err)
		}
		length, err := quicvarint.Read(rd.r)
		if err != nil {
			return Record{}, fmt.Errorf("esdump: read record length: %w", unexpected(err))
		}
		if length > maxPayload {
			return Record{}, fmt.Errorf("%w: %d bytes", ErrTooLarge, length)
		}
		payload := make([]byte, length)
		if _, err := io.ReadFull(rd.r, payload); err != nil {
			return Record{}, fmt.Errorf("esdump: read record payload: %w", unexpected(err))
		}

		switch typ {
		case RecFormat:
			return parseFormat(payload)
		case RecBlock:
			return parseBlock(payload)
		case RecPCR, RecDisplayTime:
			d := decoder{typ: typ, data: payload}
			t := es.Tick(d.int("tick"))
			return Record{Type: typ, Tick: t}, d.err
		case RecSeekpoint:
			d := decoder{typ: typ, data: payload}
			i := int(d.int("index"))
			return Record{Type: typ, Seekpoint: i}, d.err
		case RecDefault:
			d := decoder{typ: typ, data: payload}
			id := es.StreamID(d.uint("stream"))
			return Record{Type: typ, Stream: id}, d.err
		}
	}
}

func unexpected(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}

func parseFormat(payload []byte) (Record, error) {
	d := decoder{typ: RecFormat, data: payload}
	id := es.StreamID(d.uint("stream"))
	f := &es.Format{}
	f.Kind = es.Kind(d.uint("kind"))
	f.Codec = d.str("codec")
	f.FourCC = d.str("fourcc")
	f.OriginalFourCC = d.str("original_fourcc")
	f.ID = int(d.int("id"))
	f.Group = int(d.int("group"))
	f.Priority = int(d.int("priority"))
	f.Language = d.str("language")
	f.Description = d.str("description")
	f.Bitrate = d.int("bitrate")
	f.Packetized = d.bool("packetized")
	f.Extra = d.bytes("extra")

	f.Audio.Rate = int(d.int("audio_rate"))
	f.Audio.Channels = int(d.int("audio_channels"))
	f.Audio.BitsPerSample = int(d.int("audio_bits"))
	f.Audio.BlockAlign = int(d.int("audio_block_align"))

	v := &f.Video
	v.Width = int(d.int("width"))
	v.Height = int(d.int("height"))
	v.VisibleWidth = int(d.int("visible_width"))
	v.VisibleHeight = int(d.int("visible_height"))
	v.BitsPerPixel = int(d.int("bits_per_pixel"))
	v.Chroma = d.str("chroma")
	v.FrameRate.Num = d.int("frame_rate_num")
	v.FrameRate.Den = d.int("frame_rate_den")
	v.SAR.Num = d.int("sar_num")
	v.SAR.Den = d.int("sar_den")
	v.Orientation = es.Orientation(d.uint("orientation"))

	s := &f.Subtitle
	s.Width = int(d.int("subtitle_width"))
	s.Height = int(d.int("subtitle_height"))
	s.CompositionID = int(d.int("composition_id"))
	s.AncillaryID = int(d.int("ancillary_id"))
	n := d.uint("palette_len")
	if n > uint64(len(d.data)) {
		d.fail("palette_len", io.ErrUnexpectedEOF)
	}
	if d.err == nil && n > 0 {
		s.Palette = make([]uint32, n)
		for i := range s.Palette {
			s.Palette[i] = uint32(d.uint("palette"))
		}
	}
	if d.err != nil {
		return Record{}, d.err
	}
	return Record{Type: RecFormat, Stream: id, Format: f}, nil
}

func parseBlock(payload []byte) (Record, error) {
	d := decoder{typ: RecBlock, data: payload}
	id := es.StreamID(d.uint("stream"))
	flags := d.byte("flags")
	b := &es.Block{DTS: es.TickInvalid, PTS: es.TickInvalid, Key: flags&flagKey != 0}
	if flags&flagDTS != 0 {
		b.DTS = es.Tick(d.int("dts"))
	}
	if flags&flagPTS != 0 {
		b.PTS = es.Tick(d.int("pts"))
	}
	if flags&flagHasLength != 0 {
		b.Length = es.Tick(d.int("length"))
	}
	b.Data = d.bytes("data")
	if d.err != nil {
		return Record{}, d.err
	}
	return Record{Type: RecBlock, Stream: id, Block: b}, nil
}

// decoder reads payload fields in order and keeps the first failure.
type decoder struct {
	typ  uint64
	data []byte
	pos  int
	err  error
}

func (d *decoder) fail(field string, err error) {
	if d.err == nil {
		d.err = &ParseError{Record: d.typ, Field: field, Err: err}
	}
}

func (d *decoder) uint(field string) uint64 {
	if d.err != nil {
		return 0
	}
	if d.pos >= len(d.data) {
		d.fail(field, io.ErrUnexpectedEOF)
		return 0
	}
	val, n, err := quicvarint.Parse(d.data[d.pos:])
	if err != nil {
		d.fail(field, err)
		return 0
	}
	d.pos += n
	return val
}

func (d *decoder) int(field string) int64 { return unzigzag(d.uint(field)) }

func (d *decoder) byte(field string) byte {
	if d.err != nil {
		return 0
	}
	if d.pos >= len(d.data) {
		d.fail(field, io.ErrUnexpectedEOF)
		return 0
	}
	v := d.data[d.pos]
	d.pos++
	return v
}

func (d *decoder) bool(field string) bool { return d.byte(field) != 0 }

func (d *decoder) bytes(field string) []byte {
	n := d.uint(field)
	if d.err != nil {
		return nil
	}
	if n > uint64(len(d.data)-d.pos) {
		d.fail(field, io.ErrUnexpectedEOF)
		return nil
	}
	end := d.pos + int(n)
	if n == 0 {
		return nil
	}
	val := d.data[d.pos:end]
	d.pos = end
	return val
}

func (d *decoder) str(field string) string { return string(d.bytes(field)) }
