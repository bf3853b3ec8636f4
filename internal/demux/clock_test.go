package demux

import (
	"bytes"
	"context"
	"math"
	"testing"

	"github.com/zsiec/avdemux/internal/es"
	"github.com/zsiec/avdemux/internal/lavf"
)

func TestRescale(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		ts   int64
		tb   lavf.Rational
		want es.Tick
	}{
		{"millis", 1234, msBase, 1_234_000},
		{"micros", 42, usBase, 42},
		{"90k", 90000, lavf.Rational{Num: 1, Den: 90000}, 1_000_000},
		{"ntsc frame", 1, lavf.Rational{Num: 1001, Den: 30000}, 33_366},
		{"negative", -1500, msBase, -1_500_000},
		{"no pts", lavf.NoPTS, msBase, es.TickInvalid},
		{"bad base", 10, lavf.Rational{Num: 1, Den: 0}, es.TickInvalid},
		{"large", math.MaxInt64 / 1000, lavf.Rational{Num: 1, Den: 1_000_000_000}, es.Tick(math.MaxInt64 / 1000 / 1000)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := rescale(tt.ts, tt.tb); got != tt.want {
				t.Fatalf("got %d, want %d", got, tt.want)
			}
		})
	}
}

func demuxAll(t *testing.T, s *Session) []Step {
	t.Helper()
	var steps []Step
	for {
		st, err := s.Demux(context.Background())
		if err != nil {
			return steps
		}
		steps = append(steps, st)
	}
}

func TestDemuxTimestamps(t *testing.T) {
	t.Parallel()
	c := &fakeContext{
		streams: []lavf.Stream{videoStream(0)},
		start:   lavf.TimeBase / 2,
		packets: []lavf.Packet{{StreamIndex: 0, DTS: 1000, PTS: 1040, Duration: 40, Key: true, Data: []byte{1}}},
	}
	s, sink := openFake(t, "mp4", c)
	steps := demuxAll(t, s)
	if len(steps) != 1 || !steps[0].Delivered || !steps[0].Advanced {
		t.Fatalf("steps: got %+v, want one delivered and advanced", steps)
	}
	b := sink.blocks[0].b
	if b.DTS != 500_000 || b.PTS != 540_000 {
		t.Fatalf("dts/pts: got %d/%d, want 500000/540000", b.DTS, b.PTS)
	}
	if b.Length != 40_000 || !b.Key {
		t.Fatalf("length/key: got %d/%v, want 40000/true", b.Length, b.Key)
	}
	if got := s.Time(); got != 500_000 {
		t.Fatalf("clock: got %d, want 500000", got)
	}
	if len(sink.pcrs) != 1 || sink.pcrs[0] != 500_000 {
		t.Fatalf("pcrs: got %v, want [500000]", sink.pcrs)
	}
}

func TestDemuxInvalidTimestamps(t *testing.T) {
	t.Parallel()
	c := &fakeContext{
		streams: []lavf.Stream{videoStream(0)},
		packets: []lavf.Packet{pkt(0, lavf.NoPTS, lavf.NoPTS)},
	}
	s, sink := openFake(t, "mp4", c)
	steps := demuxAll(t, s)
	if len(steps) != 1 || !steps[0].Delivered || steps[0].Advanced {
		t.Fatalf("steps: got %+v, want delivered without advance", steps)
	}
	b := sink.blocks[0].b
	if b.DTS.Valid() || b.PTS.Valid() {
		t.Fatalf("got dts=%v pts=%v, want invalid", b.DTS, b.PTS)
	}
	if s.tracks[0].pcr.Valid() {
		t.Fatal("track pcr updated from an invalid dts")
	}
}

func TestDemuxIgnoresBadPackets(t *testing.T) {
	t.Parallel()
	bad := videoStream(1)
	bad.TimeBase = lavf.Rational{Num: 1, Den: 0}
	c := &fakeContext{
		streams: []lavf.Stream{videoStream(0), bad},
		packets: []lavf.Packet{pkt(7, 100, 100), pkt(-1, 100, 100), pkt(1, 100, 100)},
	}
	s, sink := openFake(t, "mp4", c)
	for i := 0; i < 3; i++ {
		st, err := s.Demux(context.Background())
		if err != nil {
			t.Fatalf("packet %d: %v", i, err)
		}
		if st.Delivered || st.Advanced {
			t.Fatalf("packet %d: got %+v, want empty step", i, st)
		}
	}
	if len(sink.blocks) != 0 || len(sink.pcrs) != 0 {
		t.Fatalf("got %d blocks %d pcrs, want none", len(sink.blocks), len(sink.pcrs))
	}
	for i := range s.tracks {
		if s.tracks[i].pcr.Valid() {
			t.Fatalf("track %d pcr changed", i)
		}
	}
	if got := s.Time(); got != 0 {
		t.Fatalf("clock: got %v, want 0", got)
	}
}

func TestTrackClockNonDecreasing(t *testing.T) {
	t.Parallel()
	c := &fakeContext{
		streams: []lavf.Stream{videoStream(0)},
		packets: []lavf.Packet{pkt(0, 100, 100), pkt(0, 50, 50), pkt(0, 120, 120)},
	}
	s, _ := openFake(t, "mp4", c)

	want := []es.Tick{100_000, 100_000, 120_000}
	for i, w := range want {
		if _, err := s.Demux(context.Background()); err != nil {
			t.Fatalf("packet %d: %v", i, err)
		}
		if got := s.tracks[0].pcr; got != w {
			t.Fatalf("packet %d: track pcr got %d, want %d", i, got, w)
		}
	}
}

func TestGlobalClockFollowsSlowestTrack(t *testing.T) {
	t.Parallel()
	c := &fakeContext{
		streams: []lavf.Stream{videoStream(0), audioStream(1)},
		packets: []lavf.Packet{
			pkt(0, 1000, 1000),
			pkt(1, 500, 500),
			pkt(1, 900, 900),
			pkt(0, 2000, 2000),
			pkt(1, 400, 400),
		},
	}
	s, sink := openFake(t, "mp4", c)
	demuxAll(t, s)

	want := []es.Tick{1_000_000}
	// Once the audio track has a clock it holds the global clock back,
	// which never moves below its previous value.
	if len(sink.pcrs) != len(want) || sink.pcrs[0] != want[0] {
		t.Fatalf("pcrs: got %v, want %v", sink.pcrs, want)
	}
	for i := 1; i < len(sink.pcrs); i++ {
		if sink.pcrs[i] <= sink.pcrs[i-1] {
			t.Fatalf("clock went from %d to %d", sink.pcrs[i-1], sink.pcrs[i])
		}
	}
	if got := s.Time(); got != 1_000_000 {
		t.Fatalf("clock: got %d, want 1000000", got)
	}
}

func TestGlobalClockSyncWindow(t *testing.T) {
	t.Parallel()
	c := &fakeContext{
		streams: []lavf.Stream{videoStream(0), audioStream(1)},
		packets: []lavf.Packet{
			pkt(1, 1000, 1000),
			pkt(0, 20_000, 20_000),
			pkt(0, 21_000, 21_000),
		},
	}
	s, sink := openFake(t, "mp4", c)
	demuxAll(t, s)

	// The audio track lags more than ten seconds and stops holding the
	// clock back.
	want := []es.Tick{1_000_000, 20_000_000, 21_000_000}
	if len(sink.pcrs) != len(want) {
		t.Fatalf("pcrs: got %v, want %v", sink.pcrs, want)
	}
	for i := range want {
		if sink.pcrs[i] != want[i] {
			t.Fatalf("pcr %d: got %d, want %d", i, sink.pcrs[i], want[i])
		}
	}
	if got := s.Time(); got != 21_000_000 {
		t.Fatalf("clock: got %d, want 21000000", got)
	}
}

func TestMutedTrackDoesNotHoldClock(t *testing.T) {
	t.Parallel()
	data := lavf.Stream{TimeBase: msBase, Codec: lavf.CodecParameters{MediaType: lavf.MediaData}}
	c := &fakeContext{
		streams: []lavf.Stream{videoStream(0), data},
		packets: []lavf.Packet{pkt(1, 10, 10), pkt(0, 500, 500)},
	}
	s, sink := openFake(t, "mp4", c)
	steps := demuxAll(t, s)
	if steps[0].Delivered {
		t.Fatal("muted track delivered a block")
	}
	if s.tracks[1].pcr.Valid() {
		t.Fatal("muted track pcr updated")
	}
	if len(sink.blocks) != 1 || sink.pcrs[0] != 500_000 {
		t.Fatalf("got %d blocks pcrs=%v, want 1 block and [500000]", len(sink.blocks), sink.pcrs)
	}
}

func TestFLVQuirks(t *testing.T) {
	t.Parallel()
	audio := audioStream(1)
	c := &fakeContext{
		streams: []lavf.Stream{videoStream(0), audio},
		packets: []lavf.Packet{
			pkt(0, 100, 100),
			{StreamIndex: 1, DTS: 100, PTS: 100, Duration: 23, Data: []byte{1}},
			{StreamIndex: 1, DTS: 110, PTS: 110, Duration: 23, Data: []byte{2}},
		},
	}
	s, sink := openFake(t, "flv", c)
	demuxAll(t, s)

	if len(sink.blocks) != 3 {
		t.Fatalf("got %d blocks, want 3", len(sink.blocks))
	}
	if v := sink.blocks[0].b; v.PTS.Valid() || v.DTS != 100_000 {
		t.Fatalf("video: got dts=%v pts=%v, want dts=100ms pts invalid", v.DTS, v.PTS)
	}
	if a := sink.blocks[2].b; a.DTS != 123_000 || a.PTS != 123_000 {
		t.Fatalf("audio: got dts=%d pts=%d, want 123000", a.DTS, a.PTS)
	}
	if got := s.tracks[1].pcr; got != 123_000 {
		t.Fatalf("audio track pcr: got %d, want 123000", got)
	}
}

func TestQuirksOnlyForFLV(t *testing.T) {
	t.Parallel()
	c := &fakeContext{
		streams: []lavf.Stream{videoStream(0)},
		packets: []lavf.Packet{pkt(0, 100, 100)},
	}
	s, sink := openFake(t, "mp4", c)
	demuxAll(t, s)
	if b := sink.blocks[0].b; b.PTS != 100_000 {
		t.Fatalf("pts: got %v, want 100ms", b.PTS)
	}
}

func TestDemuxSubtitleFraming(t *testing.T) {
	t.Parallel()
	ssa := lavf.Stream{TimeBase: msBase, Codec: lavf.CodecParameters{MediaType: lavf.MediaSubtitle, CodecID: "ssa", ExtraData: []byte("[Script Info]")}}
	dvb := lavf.Stream{TimeBase: msBase, Codec: lavf.CodecParameters{MediaType: lavf.MediaSubtitle, CodecID: "dvb_subtitle"}}
	c := &fakeContext{
		streams: []lavf.Stream{ssa, dvb},
		packets: []lavf.Packet{
			{StreamIndex: 0, DTS: 0, PTS: 0, Data: []byte("Dialogue: 0,0:00:01.00,0:00:03.50,Default,,0,0,0,,Hello")},
			{StreamIndex: 0, DTS: 10, PTS: 10, Data: []byte("garbage")},
			{StreamIndex: 0, DTS: 20, PTS: 20, Data: []byte("Dialogue: 1,0:00:04.00,0:00:05.00,Default,,0,0,0,,Bye")},
			{StreamIndex: 1, DTS: 30, PTS: 30, Data: []byte{0x0f, 0x10}},
		},
	}
	s, sink := openFake(t, "matroska", c)
	demuxAll(t, s)

	if len(sink.blocks) != 3 {
		t.Fatalf("got %d blocks, want 3", len(sink.blocks))
	}
	first := sink.blocks[0].b
	if got, want := string(first.Data), "0,0,Default,,0,0,0,,Hello"; got != want {
		t.Fatalf("ssa: got %q, want %q", got, want)
	}
	if first.Length != 2_500_000 {
		t.Fatalf("ssa length: got %d, want 2500000", first.Length)
	}
	if got, want := string(sink.blocks[1].b.Data), "2,1,Default,,0,0,0,,Bye"; got != want {
		t.Fatalf("ssa order: got %q, want %q", got, want)
	}
	if got, want := sink.blocks[2].b.Data, []byte{0x20, 0x00, 0x0f, 0x10, 0x3f}; !bytes.Equal(got, want) {
		t.Fatalf("dvb: got %x, want %x", got, want)
	}
}
