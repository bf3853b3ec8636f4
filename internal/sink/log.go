package sink

import (
	"context"
	"log/slog"

	"github.com/zsiec/avdemux/internal/demux"
	"github.com/zsiec/avdemux/internal/es"
)

// Compile-time interface check.
var _ demux.Sink = (*Log)(nil)

// Log writes every call to a structured logger. Stream events go out at
// info, blocks and clock updates at debug.
type Log struct {
	log  *slog.Logger
	next es.StreamID
}

// NewLog returns a Log writing to log, or slog.Default when nil.
func NewLog(log *slog.Logger) *Log {
	if log == nil {
		log = slog.Default()
	}
	return &Log{log: log.With("component", "sink")}
}

func (l *Log) AddStream(f *es.Format) (es.StreamID, error) {
	id := l.next
	l.next++
	attrs := []any{
		"id", id,
		"kind", f.Kind,
		"codec", f.Codec,
		"fourcc", f.FourCC,
		"priority", f.Priority,
	}
	if f.Language != "" {
		attrs = append(attrs, "language", f.Language)
	}
	switch f.Kind {
	case es.KindVideo:
		attrs = append(attrs, "width", f.Video.Width, "height", f.Video.Height, "frame_rate", f.Video.FrameRate)
	case es.KindAudio:
		attrs = append(attrs, "rate", f.Audio.Rate, "channels", f.Audio.Channels)
	}
	l.log.Info("stream added", attrs...)
	return id, nil
}

func (l *Log) Send(id es.StreamID, b *es.Block) {
	if !l.log.Enabled(context.Background(), slog.LevelDebug) {
		return
	}
	l.log.Debug("block",
		"id", id,
		"size", len(b.Data),
		"dts", b.DTS,
		"pts", b.PTS,
		"key", b.Key,
	)
}

func (l *Log) SetPCR(t es.Tick) {
	l.log.Debug("pcr", "time", t)
}

func (l *Log) SetDefault(id es.StreamID) {
	l.log.Info("default stream", "id", id)
}

func (l *Log) SetNextDisplayTime(t es.Tick) {
	l.log.Info("next display time", "time", t)
}

func (l *Log) SeekpointChanged(index int) {
	l.log.Info("seekpoint changed", "index", index)
}
