package sink

import (
	"log/slog"

	"github.com/nareix/joy4/codec/h264parser"
	"github.com/zsiec/ccx"

	"github.com/zsiec/avdemux/internal/demux"
	"github.com/zsiec/avdemux/internal/es"
)

// Compile-time interface check.
var _ demux.Sink = (*Captions)(nil)

const nalTypeSEI = 6

// Captions decodes CEA-608 captions from H.264 SEI messages and from
// eia_608 tracks carrying raw byte pairs. Decoded text is handed to the
// callback with the block's presentation time in microseconds.
type Captions struct {
	log       *slog.Logger
	onCaption func(*ccx.CaptionFrame)
	tracks    []*captionTrack
}

// captionTrack holds decoder state for one stream. Streams that cannot
// carry captions have a nil entry.
type captionTrack struct {
	raw    bool
	decs   map[int]*ccx.CEA608Decoder
	frames int64

	// Control codes are sent twice for redundancy; the repeat is dropped.
	lastCtrl      [2][2]byte
	lastWasCtrl   [2]bool
	lastCtrlFrame [2]int64
}

// NewCaptions returns a caption sink calling fn for each decoded line.
func NewCaptions(fn func(*ccx.CaptionFrame), log *slog.Logger) *Captions {
	if log == nil {
		log = slog.Default()
	}
	return &Captions{log: log.With("component", "captions"), onCaption: fn}
}

func newCaptionTrack(raw bool) *captionTrack {
	return &captionTrack{
		raw: raw,
		decs: map[int]*ccx.CEA608Decoder{
			1: ccx.NewCEA608Decoder(),
			2: ccx.NewCEA608Decoder(),
			3: ccx.NewCEA608Decoder(),
			4: ccx.NewCEA608Decoder(),
		},
	}
}

func (c *Captions) AddStream(f *es.Format) (es.StreamID, error) {
	var tr *captionTrack
	switch f.Codec {
	case "h264":
		tr = newCaptionTrack(false)
	case "eia_608":
		tr = newCaptionTrack(true)
	}
	c.tracks = append(c.tracks, tr)
	return es.StreamID(len(c.tracks) - 1), nil
}

func (c *Captions) Send(id es.StreamID, b *es.Block) {
	if id < 0 || int(id) >= len(c.tracks) || c.tracks[id] == nil {
		return
	}
	tr := c.tracks[id]
	tr.frames++

	pts := b.PTS
	if !pts.Valid() {
		pts = b.DTS
	}

	if tr.raw {
		for i := 0; i+1 < len(b.Data); i += 2 {
			c.decode(tr, 1, 0, b.Data[i]&0x7f, b.Data[i+1]&0x7f, pts)
		}
		return
	}

	nalus, _ := h264parser.SplitNALUs(b.Data)
	for _, nalu := range nalus {
		if len(nalu) < 2 || nalu[0]&0x1f != nalTypeSEI {
			continue
		}
		cd := ccx.ExtractCaptions(nalu)
		if cd == nil {
			continue
		}
		for _, pair := range cd.CC608Pairs {
			c.decode(tr, pair.Channel, int(pair.Field), pair.Data[0], pair.Data[1], pts)
		}
	}
}

func (c *Captions) decode(tr *captionTrack, channel, f int, cc1, cc2 byte, pts es.Tick) {
	if f < 0 || f > 1 {
		return
	}
	if cc1 >= 0x10 && cc1 <= 0x1f {
		cp := [2]byte{cc1, cc2}
		gap := tr.frames - tr.lastCtrlFrame[f]
		if tr.lastWasCtrl[f] && tr.lastCtrl[f] == cp && gap <= 2 {
			tr.lastWasCtrl[f] = false
			return
		}
		tr.lastCtrl[f] = cp
		tr.lastWasCtrl[f] = true
		tr.lastCtrlFrame[f] = tr.frames
	} else {
		tr.lastWasCtrl[f] = false
	}

	dec := tr.decs[channel]
	if dec == nil {
		return
	}
	text := dec.Decode(cc1, cc2)
	if text == "" || c.onCaption == nil {
		return
	}
	frame := &ccx.CaptionFrame{PTS: int64(pts), Text: text, Channel: channel}
	frame.Regions = dec.StyledRegions()
	c.log.Debug("caption", "channel", channel, "pts", pts, "text", text)
	c.onCaption(frame)
}

func (c *Captions) SetPCR(es.Tick)             {}
func (c *Captions) SetDefault(es.StreamID)     {}
func (c *Captions) SetNextDisplayTime(es.Tick) {}
func (c *Captions) SeekpointChanged(int)       {}
