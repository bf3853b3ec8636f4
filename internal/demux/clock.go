package demux

import (
	"github.com/zsiec/avdemux/internal/es"
	"github.com/zsiec/avdemux/internal/lavf"
)

// syncWindow bounds how far a track may lag the most advanced track and
// still hold back the global clock.
const syncWindow = 10 * es.ClockFreq

// rescale converts ts in units of tb to the internal clock. The split
// into quotient and remainder keeps large timestamps from overflowing.
func rescale(ts int64, tb lavf.Rational) es.Tick {
	if ts == lavf.NoPTS || tb.Den <= 0 {
		return es.TickInvalid
	}
	q, r := ts/tb.Den, ts%tb.Den
	return es.Tick(q*es.ClockFreq*tb.Num + r*es.ClockFreq*tb.Num/tb.Den)
}

// quirk adjusts a block's timestamps for a container's known defects.
type quirk func(st *lavf.Stream, tr *track, pkt *lavf.Packet, b *es.Block)

var quirkTable = map[string][]quirk{
	"flv": {flvVideoPTS, flvAACClamp},
}

func quirksFor(f lavf.Format) []quirk {
	var qs []quirk
	for name, q := range quirkTable {
		if f.Is(name) {
			qs = append(qs, q...)
		}
	}
	return qs
}

// flvVideoPTS drops a video pts equal to its dts; the muxer writes it
// that way when it does not know the real presentation time.
func flvVideoPTS(st *lavf.Stream, _ *track, pkt *lavf.Packet, b *es.Block) {
	if st.Codec.MediaType == lavf.MediaVideo && pkt.DTS != lavf.NoPTS && pkt.DTS == pkt.PTS {
		b.PTS = es.TickInvalid
	}
}

// flvAACClamp moves an AAC block that starts before the end of the
// previous one forward to that end.
func flvAACClamp(st *lavf.Stream, tr *track, _ *lavf.Packet, b *es.Block) {
	if st.Codec.MediaType != lavf.MediaAudio || st.Codec.CodecID != "aac" || !tr.pcr.Valid() {
		return
	}
	if end := tr.pcr + b.Length; end > b.DTS {
		b.DTS = end
		b.PTS = end
	}
}

func (s *Session) relative(t es.Tick) es.Tick {
	if !t.Valid() {
		return t
	}
	return t - s.startTime
}

// step timestamps one packet and forwards it to its track.
func (s *Session) step(pkt lavf.Packet) Step {
	if pkt.StreamIndex < 0 || pkt.StreamIndex >= len(s.tracks) {
		return Step{}
	}
	st := &s.streams[pkt.StreamIndex]
	tr := &s.tracks[pkt.StreamIndex]
	tb := st.TimeBase
	if tb.Den <= 0 {
		s.log.Warn("invalid stream time base", "track", pkt.StreamIndex, "num", tb.Num, "den", tb.Den)
		return Step{}
	}

	var b *es.Block
	switch st.Codec.CodecID {
	case "ssa":
		var err error
		b, err = buildSSA(pkt.Data, s.ssaOrder)
		s.ssaOrder++
		if err != nil {
			s.log.Debug("dropping subtitle", "error", &TrackError{Index: pkt.StreamIndex, Err: err})
			return Step{}
		}
	case "dvb_subtitle":
		data := make([]byte, 0, len(pkt.Data)+3)
		data = append(data, 0x20, 0x00)
		data = append(data, pkt.Data...)
		data = append(data, 0x3f)
		b = &es.Block{Data: data}
	default:
		b = &es.Block{Data: pkt.Data}
	}

	b.Key = pkt.Key
	b.DTS = s.relative(rescale(pkt.DTS, tb))
	b.PTS = s.relative(rescale(pkt.PTS, tb))
	if pkt.Duration > 0 && b.Length <= 0 {
		b.Length = rescale(pkt.Duration, tb)
	}
	for _, q := range s.quirks {
		q(st, tr, &pkt, b)
	}

	reg, isRegistered := tr.out.(registered)
	if b.DTS.Valid() && isRegistered && (!tr.pcr.Valid() || b.DTS >= tr.pcr) {
		tr.pcr = b.DTS
	}

	res := Step{Advanced: s.reconcile()}
	if isRegistered {
		s.out.Send(reg.id, b)
		res.Delivered = true
	}
	return res
}

// reconcile advances the global clock to the slowest track that is still
// within syncWindow of the fastest. It reports whether the clock moved.
func (s *Session) reconcile() bool {
	hi := es.TickInvalid
	for i := range s.tracks {
		if _, ok := s.tracks[i].out.(registered); ok && s.tracks[i].pcr > hi {
			hi = s.tracks[i].pcr
		}
	}
	if !hi.Valid() {
		return false
	}

	lo, found := es.Tick(0), false
	for i := range s.tracks {
		t := &s.tracks[i]
		if _, ok := t.out.(registered); !ok || !t.pcr.Valid() || t.pcr+syncWindow < hi {
			continue
		}
		if !found || t.pcr < lo {
			lo, found = t.pcr, true
		}
	}
	if !found || (s.pcr.Valid() && lo <= s.pcr) {
		return false
	}

	s.pcr = lo
	s.out.SetPCR(lo)
	s.updateSeekpoint(lo)
	return true
}
