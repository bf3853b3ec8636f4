package sink

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/segmentio/ksuid"

	"github.com/zsiec/avdemux/internal/demux"
	"github.com/zsiec/avdemux/internal/es"
	"github.com/zsiec/avdemux/internal/esdump"
)

// Compile-time interface check.
var _ demux.Sink = (*Dump)(nil)

// Dump records everything it receives as an esdump. After the first write
// error it stops writing; Err reports that error.
type Dump struct {
	log  *slog.Logger
	w    *esdump.Writer
	next es.StreamID
	err  error
}

// NewDump writes the dump header for session to w.
func NewDump(w io.Writer, session ksuid.KSUID, log *slog.Logger) (*Dump, error) {
	if log == nil {
		log = slog.Default()
	}
	ew, err := esdump.NewWriter(w, session)
	if err != nil {
		return nil, err
	}
	return &Dump{log: log.With("component", "dump"), w: ew}, nil
}

// Err returns the first write error, if any.
func (d *Dump) Err() error { return d.err }

func (d *Dump) record(what string, err error) {
	if err == nil || d.err != nil {
		return
	}
	d.err = fmt.Errorf("dump %s: %w", what, err)
	d.log.Error("dump write failed, recording stopped", "error", err)
}

func (d *Dump) AddStream(f *es.Format) (es.StreamID, error) {
	if d.err != nil {
		return 0, d.err
	}
	id := d.next
	if err := d.w.WriteFormat(id, f); err != nil {
		d.record("format", err)
		return 0, d.err
	}
	d.next++
	return id, nil
}

func (d *Dump) Send(id es.StreamID, b *es.Block) {
	if d.err == nil {
		d.record("block", d.w.WriteBlock(id, b))
	}
}

func (d *Dump) SetPCR(t es.Tick) {
	if d.err == nil {
		d.record("pcr", d.w.WritePCR(t))
	}
}

func (d *Dump) SetDefault(id es.StreamID) {
	if d.err == nil {
		d.record("default", d.w.WriteDefault(id))
	}
}

func (d *Dump) SetNextDisplayTime(t es.Tick) {
	if d.err == nil {
		d.record("display time", d.w.WriteDisplayTime(t))
	}
}

func (d *Dump) SeekpointChanged(index int) {
	if d.err == nil {
		d.record("seekpoint", d.w.WriteSeekpoint(index))
	}
}
