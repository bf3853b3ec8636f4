package pipeline

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nareix/joy4/codec/aacparser"

	"github.com/zsiec/avdemux/internal/demux"
	"github.com/zsiec/avdemux/internal/es"
	"github.com/zsiec/avdemux/internal/lavf/joy"
	"github.com/zsiec/avdemux/internal/sink"
	"github.com/zsiec/avdemux/internal/source"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

// scripted returns the steps in order, then its final error.
type scripted struct {
	steps []demux.Step
	final error
	block chan struct{}
}

func (s *scripted) Demux(ctx context.Context) (demux.Step, error) {
	if len(s.steps) > 0 {
		st := s.steps[0]
		s.steps = s.steps[1:]
		return st, nil
	}
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
		}
		return demux.Step{}, demux.ErrInterrupted
	}
	return demux.Step{}, s.final
}

func (s *scripted) Time() es.Tick { return es.TickInvalid }

// closeSource is a source that records Close and unblocks a scripted read.
type closeSource struct {
	*source.Memory
	closed atomic.Bool
	onClose func()
}

func (c *closeSource) Close() error {
	c.closed.Store(true)
	if c.onClose != nil {
		c.onClose()
	}
	return nil
}

func TestRunToEOF(t *testing.T) {
	t.Parallel()
	d := &scripted{
		steps: []demux.Step{{Delivered: true, Advanced: true}, {Delivered: true}, {}},
		final: io.EOF,
	}
	src := &closeSource{Memory: source.NewMemory(nil, "")}
	p := New(d, src, Config{Logger: discard})

	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	c := p.Counters()
	if c.Steps != 3 || c.Delivered != 2 || c.Advanced != 1 {
		t.Errorf("counters: got %+v, want 3 steps, 2 delivered, 1 advanced", c)
	}
	if src.closed.Load() {
		t.Error("source closed at end of stream")
	}
}

func TestRunReturnsReadError(t *testing.T) {
	t.Parallel()
	boom := errors.New("boom")
	d := &scripted{final: boom}
	src := &closeSource{Memory: source.NewMemory(nil, "")}
	p := New(d, src, Config{Logger: discard})

	if err := p.Run(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("got %v, want %v", err, boom)
	}
	if src.closed.Load() {
		t.Error("source closed after a read error")
	}
}

func TestCancelClosesSource(t *testing.T) {
	t.Parallel()
	d := &scripted{block: make(chan struct{})}
	src := &closeSource{Memory: source.NewMemory(nil, "")}
	var once atomic.Bool
	src.onClose = func() {
		if once.CompareAndSwap(false, true) {
			close(d.block)
		}
	}
	p := New(d, src, Config{Logger: discard})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if !src.closed.Load() {
		t.Error("source not closed on cancel")
	}
}

// adtsStream returns n ADTS frames with 16-byte payloads.
func adtsStream(n int) []byte {
	cfg := aacparser.MPEG4AudioConfig{
		ObjectType:      aacparser.AOT_AAC_LC,
		SampleRateIndex: 3,
		ChannelConfig:   2,
	}
	cfg.Complete()
	var buf bytes.Buffer
	for i := 0; i < n; i++ {
		payload := bytes.Repeat([]byte{byte(i + 1)}, 16)
		hdr := make([]byte, 7)
		aacparser.FillADTSHeader(hdr, cfg, 1024, len(payload))
		buf.Write(hdr)
		buf.Write(payload)
	}
	return buf.Bytes()
}

func TestRunSessionWithStats(t *testing.T) {
	t.Parallel()
	src := source.NewMemory(adtsStream(5), "test.aac")
	stats := sink.NewStats()

	s, err := demux.Open(context.Background(), src, joy.New(), stats, demux.Config{Logger: discard})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	p := New(s, src, Config{Stats: stats, StatsInterval: time.Millisecond, Logger: discard})
	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	snap := stats.Snapshot()
	if len(snap.Tracks) != 1 {
		t.Fatalf("got %d tracks, want 1", len(snap.Tracks))
	}
	if got := snap.Tracks[0].Packets; got != 5 {
		t.Errorf("packets: got %d, want 5", got)
	}
	if got := p.Counters().Delivered; got != 5 {
		t.Errorf("delivered: got %d, want 5", got)
	}
}
