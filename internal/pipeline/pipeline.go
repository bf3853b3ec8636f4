// Package pipeline drives an opened demux session to the end of its input,
// closing the source on cancellation so blocking network reads return, and
// logging periodic statistics.
package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zsiec/avdemux/internal/demux"
	"github.com/zsiec/avdemux/internal/es"
	"github.com/zsiec/avdemux/internal/sink"
	"github.com/zsiec/avdemux/internal/source"
)

// Demuxer is the subset of demux.Session the pipeline drives.
type Demuxer interface {
	Demux(ctx context.Context) (demux.Step, error)
	Time() es.Tick
}

// Config controls a Pipeline. The zero value runs without stats logging.
type Config struct {
	// Stats, when set, is logged every StatsInterval.
	Stats         *sink.Stats
	StatsInterval time.Duration

	Logger *slog.Logger
}

// Counters are the pipeline's own progress counters.
type Counters struct {
	Steps     int64
	Delivered int64
	Advanced  int64
	Elapsed   time.Duration
}

// Pipeline runs one session. It owns no goroutines outside Run.
type Pipeline struct {
	log     *slog.Logger
	session Demuxer
	src     source.Source
	cfg     Config
	start   time.Time

	steps     atomic.Int64
	delivered atomic.Int64
	advanced  atomic.Int64
	finished  atomic.Bool
}

// New creates a Pipeline for session reading from src.
func New(session Demuxer, src source.Source, cfg Config) *Pipeline {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{
		log:     log.With("component", "pipeline"),
		session: session,
		src:     src,
		cfg:     cfg,
		start:   time.Now(),
	}
}

// Counters returns a snapshot of the progress counters. Elapsed counts
// from New.
func (p *Pipeline) Counters() Counters {
	return Counters{
		Steps:     p.steps.Load(),
		Delivered: p.delivered.Load(),
		Advanced:  p.advanced.Load(),
		Elapsed:   time.Since(p.start),
	}
}

// Run demultiplexes until the end of the stream or until ctx ends. Both
// return nil; a read error is returned as is.
func (p *Pipeline) Run(ctx context.Context) error {
	parent := ctx
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer cancel()
		return p.loop(ctx)
	})

	g.Go(func() error {
		<-ctx.Done()
		// Only a cancelled caller needs the source closed; after the loop
		// returns on its own the owner closes it.
		if parent.Err() == nil || p.finished.Load() {
			return nil
		}
		// Unblock a read stuck on the network.
		if err := p.src.Close(); err != nil {
			p.log.Debug("close source", "error", err)
		}
		return nil
	})

	if p.cfg.Stats != nil && p.cfg.StatsInterval > 0 {
		g.Go(func() error {
			t := time.NewTicker(p.cfg.StatsInterval)
			defer t.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-t.C:
					p.logStats()
				}
			}
		})
	}

	err := g.Wait()
	c := p.Counters()
	p.log.Info("pipeline finished",
		"steps", c.Steps,
		"delivered", c.Delivered,
		"elapsed", c.Elapsed.Round(time.Millisecond),
		"error", err,
	)
	return err
}

func (p *Pipeline) loop(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		step, err := p.session.Demux(ctx)
		switch {
		case errors.Is(err, io.EOF):
			p.finished.Store(true)
			p.log.Info("end of stream", "time", p.session.Time())
			return nil
		case errors.Is(err, demux.ErrInterrupted):
			return nil
		case err != nil:
			return err
		}
		p.steps.Add(1)
		if step.Delivered {
			p.delivered.Add(1)
		}
		if step.Advanced {
			p.advanced.Add(1)
		}
	}
}

func (p *Pipeline) logStats() {
	snap := p.cfg.Stats.Snapshot()
	for _, tr := range snap.Tracks {
		p.log.Info("track stats",
			"id", tr.ID,
			"codec", tr.Format.Codec,
			"packets", tr.Packets,
			"bytes", tr.Bytes,
			"backward_dts", tr.BackwardDTS,
			"kbps", int64(tr.BitrateKbps),
		)
	}
	p.log.Info("clock", "pcr", snap.PCR, "updates", snap.PCRUpdates)
}
