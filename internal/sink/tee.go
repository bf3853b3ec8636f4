package sink

import (
	"errors"

	"github.com/zsiec/avdemux/internal/demux"
	"github.com/zsiec/avdemux/internal/es"
)

// Compile-time interface check.
var _ demux.Sink = (*Tee)(nil)

// route is the id a fanned-out sink assigned to a stream.
type route struct {
	id es.StreamID
	ok bool
}

// Tee forwards every call to several sinks. A sink that rejects a stream
// receives none of its blocks; the stream is rejected only when every sink
// rejects it.
type Tee struct {
	sinks  []demux.Sink
	routes [][]route
}

// NewTee returns a Tee over sinks, called in order.
func NewTee(sinks ...demux.Sink) *Tee {
	return &Tee{sinks: sinks}
}

func (t *Tee) AddStream(f *es.Format) (es.StreamID, error) {
	routes := make([]route, len(t.sinks))
	var errs []error
	for i, s := range t.sinks {
		id, err := s.AddStream(f)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		routes[i] = route{id: id, ok: true}
	}
	if len(t.sinks) > 0 && len(errs) == len(t.sinks) {
		return 0, errors.Join(errs...)
	}
	t.routes = append(t.routes, routes)
	return es.StreamID(len(t.routes) - 1), nil
}

func (t *Tee) lookup(id es.StreamID) []route {
	if id < 0 || int(id) >= len(t.routes) {
		return nil
	}
	return t.routes[id]
}

func (t *Tee) Send(id es.StreamID, b *es.Block) {
	for i, r := range t.lookup(id) {
		if r.ok {
			t.sinks[i].Send(r.id, b)
		}
	}
}

func (t *Tee) SetDefault(id es.StreamID) {
	for i, r := range t.lookup(id) {
		if r.ok {
			t.sinks[i].SetDefault(r.id)
		}
	}
}

func (t *Tee) SetPCR(pcr es.Tick) {
	for _, s := range t.sinks {
		s.SetPCR(pcr)
	}
}

func (t *Tee) SetNextDisplayTime(ts es.Tick) {
	for _, s := range t.sinks {
		s.SetNextDisplayTime(ts)
	}
}

func (t *Tee) SeekpointChanged(index int) {
	for _, s := range t.sinks {
		s.SeekpointChanged(index)
	}
}
