package demux

import (
	"fmt"
	"strconv"

	"github.com/zsiec/avdemux/internal/es"
)

// ssaScanLimit bounds how much of a packet is scanned for the Dialogue
// prefix.
const ssaScanLimit = 255

// buildSSA rewrites an SSA/ASS "Dialogue:" packet into the
// "order,layer,rest" record subtitle decoders expect, deriving the block
// length from the start and end times of the event.
func buildSSA(data []byte, order uint32) (*es.Block, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty ssa packet", ErrMalformedPacket)
	}
	head := data[:min(len(data), ssaScanLimit)]

	sc := ssaScanner{buf: head}
	var layer, h0, m0, s0, c0, h1, m1, s1, c1 int
	ok := sc.literal("Dialogue:") &&
		sc.integer(&layer) && sc.literal(",") &&
		sc.integer(&h0) && sc.literal(":") && sc.integer(&m0) && sc.literal(":") && sc.integer(&s0) && sc.literal(".") && sc.integer(&c0) &&
		sc.literal(",") &&
		sc.integer(&h1) && sc.literal(":") && sc.integer(&m1) && sc.literal(":") && sc.integer(&s1) && sc.literal(".") && sc.integer(&c1) &&
		sc.literal(",")
	if !ok {
		return nil, fmt.Errorf("%w: not a dialogue line", ErrMalformedPacket)
	}
	if sc.pos <= 0 || sc.pos >= len(head) {
		return nil, fmt.Errorf("%w: dialogue has no text", ErrMalformedPacket)
	}

	out := strconv.AppendUint(nil, uint64(order), 10)
	out = append(out, ',')
	out = strconv.AppendInt(out, int64(layer), 10)
	out = append(out, ',')
	out = append(out, data[sc.pos:]...)

	secs := int64((h1-h0)*3600 + (m1-m0)*60 + (s1 - s0))
	return &es.Block{
		Data:   out,
		DTS:    es.TickInvalid,
		PTS:    es.TickInvalid,
		Length: es.Seconds(secs) + es.Tick(c1-c0)*10_000,
	}, nil
}

// ssaScanner matches the fixed Dialogue prefix with scanf-like rules:
// integers may be preceded by whitespace and carry a sign.
type ssaScanner struct {
	buf []byte
	pos int
}

func (s *ssaScanner) skipSpace() {
	for s.pos < len(s.buf) && isSpace(s.buf[s.pos]) {
		s.pos++
	}
}

func (s *ssaScanner) literal(lit string) bool {
	if s.pos+len(lit) > len(s.buf) || string(s.buf[s.pos:s.pos+len(lit)]) != lit {
		return false
	}
	s.pos += len(lit)
	return true
}

func (s *ssaScanner) integer(v *int) bool {
	s.skipSpace()
	start := s.pos
	if s.pos < len(s.buf) && (s.buf[s.pos] == '-' || s.buf[s.pos] == '+') {
		s.pos++
	}
	digits := s.pos
	for s.pos < len(s.buf) && s.buf[s.pos] >= '0' && s.buf[s.pos] <= '9' {
		s.pos++
	}
	if s.pos == digits {
		s.pos = start
		return false
	}
	n, err := strconv.Atoi(string(s.buf[start:s.pos]))
	if err != nil {
		return false
	}
	*v = n
	return true
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\v' || c == '\f'
}
