package esdump

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/segmentio/ksuid"

	"github.com/zsiec/avdemux/internal/es"
)

func TestHeaderRoundTrip(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	id := ksuid.New()
	if _, err := NewWriter(&buf, id); err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	if !bytes.HasPrefix(buf.Bytes(), []byte(Magic)) {
		t.Fatalf("dump does not start with %q", Magic)
	}
	rd, err := NewReader(&buf)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	h := rd.Header()
	if h.Version != Version {
		t.Errorf("version: got %d, want %d", h.Version, Version)
	}
	if h.Session != id {
		t.Errorf("session: got %s, want %s", h.Session, id)
	}
	if _, err := rd.Next(); !errors.Is(err, io.EOF) {
		t.Errorf("Next on empty dump: got %v, want io.EOF", err)
	}
}

func TestBadHeader(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"empty", nil, io.EOF},
		{"magic", []byte("RIFF\x01"), ErrBadMagic},
		{"version", append([]byte(Magic), 0x09), ErrUnsupportedVersion},
		{"short session", append([]byte(Magic), 0x01, 0xaa), io.ErrUnexpectedEOF},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := NewReader(bytes.NewReader(tt.data))
			if !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestRecords(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	w, err := NewWriter(&buf, ksuid.New())
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}

	format := &es.Format{
		Kind:           es.KindVideo,
		Codec:          "h264",
		FourCC:         "avc1",
		OriginalFourCC: "avc1",
		ID:             3,
		Priority:       es.PriorityNotSelectable,
		Language:       "eng",
		Bitrate:        2_500_000,
		Packetized:     true,
		Extra:          []byte{1, 0x64, 0, 0x1f},
		Video: es.VideoFormat{
			Width:       1280,
			Height:      720,
			Chroma:      "I420",
			FrameRate:   es.Rational{Num: 30000, Den: 1001},
			SAR:         es.Rational{Num: 1, Den: 1},
			Orientation: es.OrientRotated90,
		},
		Subtitle: es.SubtitleFormat{Palette: []uint32{0x108080, 0xeb8080}},
	}
	block := &es.Block{Data: []byte("frame"), DTS: 0, PTS: 40_000, Key: true}
	bare := &es.Block{Data: []byte("x"), DTS: es.TickInvalid, PTS: es.TickInvalid, Length: es.Seconds(2)}

	steps := []func() error{
		func() error { return w.WriteFormat(7, format) },
		func() error { return w.WriteBlock(7, block) },
		func() error { return w.WriteBlock(7, bare) },
		func() error { return w.WritePCR(-500) },
		func() error { return w.WriteSeekpoint(2) },
		func() error { return w.WriteDisplayTime(es.Seconds(30)) },
		func() error { return w.WriteDefault(7) },
	}
	for i, step := range steps {
		if err := step(); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
	}

	rd, err := NewReader(&buf)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	next := func() Record {
		t.Helper()
		rec, err := rd.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		return rec
	}

	rec := next()
	if rec.Type != RecFormat || rec.Stream != 7 {
		t.Fatalf("got type %#x stream %d, want format for 7", rec.Type, rec.Stream)
	}
	got := rec.Format
	if got.Codec != "h264" || got.FourCC != "avc1" || got.Language != "eng" {
		t.Errorf("format strings: got %+v", got)
	}
	if got.Priority != es.PriorityNotSelectable || got.ID != 3 || got.Bitrate != 2_500_000 {
		t.Errorf("format numbers: got priority %d id %d bitrate %d", got.Priority, got.ID, got.Bitrate)
	}
	if !got.Packetized || !bytes.Equal(got.Extra, format.Extra) {
		t.Errorf("packetized %v extra %x", got.Packetized, got.Extra)
	}
	if got.Video.Width != 1280 || got.Video.FrameRate != format.Video.FrameRate || got.Video.Orientation != es.OrientRotated90 {
		t.Errorf("video: got %+v", got.Video)
	}
	if len(got.Subtitle.Palette) != 2 || got.Subtitle.Palette[1] != 0xeb8080 {
		t.Errorf("palette: got %v", got.Subtitle.Palette)
	}

	rec = next()
	if rec.Type != RecBlock || rec.Block.PTS != 40_000 || rec.Block.DTS != 0 || !rec.Block.Key {
		t.Errorf("block: got %+v", rec.Block)
	}
	if string(rec.Block.Data) != "frame" {
		t.Errorf("block data: got %q, want %q", rec.Block.Data, "frame")
	}

	rec = next()
	if rec.Block.DTS.Valid() || rec.Block.PTS.Valid() {
		t.Errorf("bare block timestamps: got dts %v pts %v, want invalid", rec.Block.DTS, rec.Block.PTS)
	}
	if rec.Block.Length != es.Seconds(2) || rec.Block.Key {
		t.Errorf("bare block: got %+v", rec.Block)
	}

	if rec = next(); rec.Type != RecPCR || rec.Tick != -500 {
		t.Errorf("pcr: got %+v", rec)
	}
	if rec = next(); rec.Type != RecSeekpoint || rec.Seekpoint != 2 {
		t.Errorf("seekpoint: got %+v", rec)
	}
	if rec = next(); rec.Type != RecDisplayTime || rec.Tick != es.Seconds(30) {
		t.Errorf("display time: got %+v", rec)
	}
	if rec = next(); rec.Type != RecDefault || rec.Stream != 7 {
		t.Errorf("default: got %+v", rec)
	}
	if _, err := rd.Next(); !errors.Is(err, io.EOF) {
		t.Errorf("got %v, want io.EOF", err)
	}
}

func TestInvalidTick(t *testing.T) {
	t.Parallel()
	w, err := NewWriter(io.Discard, ksuid.New())
	if err != nil {
		t.Fatal(err)
	}
	if err := w.WritePCR(es.TickInvalid); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("got %v, want ErrOutOfRange", err)
	}
}

func TestTruncatedRecord(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	w, err := NewWriter(&buf, ksuid.New())
	if err != nil {
		t.Fatal(err)
	}
	if err := w.WriteBlock(1, &es.Block{Data: make([]byte, 100), DTS: es.TickInvalid, PTS: es.TickInvalid}); err != nil {
		t.Fatal(err)
	}
	data := buf.Bytes()[:buf.Len()-10]

	rd, err := NewReader(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := rd.Next(); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("got %v, want io.ErrUnexpectedEOF", err)
	}
}

func TestMalformedPayload(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	if _, err := NewWriter(&buf, ksuid.New()); err != nil {
		t.Fatal(err)
	}
	// A block record whose payload ends after the stream id.
	buf.Write([]byte{byte(RecBlock), 1, 0x05})

	rd, err := NewReader(&buf)
	if err != nil {
		t.Fatal(err)
	}
	_, err = rd.Next()
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("got %v, want *ParseError", err)
	}
	if pe.Field != "flags" || pe.Record != RecBlock {
		t.Errorf("got field %q record %#x, want flags in block", pe.Field, pe.Record)
	}
}

func TestUnknownRecordSkipped(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	w, err := NewWriter(&buf, ksuid.New())
	if err != nil {
		t.Fatal(err)
	}
	buf.Write([]byte{0x3f, 2, 0xde, 0xad})
	if err := w.WriteSeekpoint(4); err != nil {
		t.Fatal(err)
	}

	rd, err := NewReader(&buf)
	if err != nil {
		t.Fatal(err)
	}
	rec, err := rd.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if rec.Type != RecSeekpoint || rec.Seekpoint != 4 {
		t.Errorf("got %+v, want seekpoint 4", rec)
	}
}

func TestZigzag(t *testing.T) {
	t.Parallel()
	for _, v := range []int64{0, 1, -1, 63, -64, 1 << 40, -(1 << 40)} {
		if got := unzigzag(zigzag(v)); got != v {
			t.Errorf("zigzag(%d): got %d", v, got)
		}
	}
	if zigzag(-1) != 1 || zigzag(1) != 2 {
		t.Errorf("zigzag(-1)=%d zigzag(1)=%d, want 1 and 2", zigzag(-1), zigzag(1))
	}
}
