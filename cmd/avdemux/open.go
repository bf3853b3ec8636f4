package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/segmentio/ksuid"
	"github.com/spf13/pflag"

	"github.com/zsiec/avdemux/internal/demux"
	"github.com/zsiec/avdemux/internal/source"
)

// openFlags are the demux options shared by every command that opens a
// stream.
type openFlags struct {
	format    string
	force     bool
	options   string
	probeSize int
}

func (o *openFlags) register(fs *pflag.FlagSet) {
	fs.StringVarP(&o.format, "format", "f", envOr("AVDEMUX_FORMAT", ""), "force a container format instead of probing (env AVDEMUX_FORMAT)")
	fs.BoolVar(&o.force, "force", false, "accept formats normally left to other demuxers")
	fs.StringVar(&o.options, "options", envOr("AVDEMUX_OPTIONS", ""), "library options as key=value,key=value (env AVDEMUX_OPTIONS)")
	fs.IntVar(&o.probeSize, "probe-size", 0, "bytes peeked for format probing (0 for the default)")
}

func (o *openFlags) config(log *slog.Logger) demux.Config {
	return demux.Config{
		ForcedFormat: o.format,
		Force:        o.force,
		Options:      demux.ParseOptions(o.options),
		ProbeSize:    o.probeSize,
		Logger:       log,
	}
}

// session is one opened stream with its logger and id.
type session struct {
	id  ksuid.KSUID
	log *slog.Logger
	src source.Source
	dmx *demux.Session
}

// openSession starts session id over src delivering to out.
func openSession(ctx context.Context, id ksuid.KSUID, src source.Source, out demux.Sink, o *openFlags) (*session, error) {
	log := slog.With("session", id.String(), "backend", backendName)
	dmx, err := demux.Open(ctx, src, newLibrary(), out, o.config(log))
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	log.Info("session opened", "format", dmx.Format().Name)
	return &session{id: id, log: log, src: src, dmx: dmx}, nil
}

// Close releases the session, then the source. A source already closed
// by a cancelled pipeline may report an error here; it is only logged.
func (s *session) Close() {
	if err := s.dmx.Close(); err != nil {
		s.log.Warn("close session", "error", err)
	}
	if err := s.src.Close(); err != nil {
		s.log.Debug("close source", "error", err)
	}
}
