package demux

import (
	"encoding/binary"
	"log/slog"
	"strings"

	"github.com/zsiec/avdemux/internal/es"
	"github.com/zsiec/avdemux/internal/lavf"
)

// defaultPriorityBoost is added to the priority of tracks the container
// marks as default.
const defaultPriorityBoost = 1000

// mapTracks builds the track table, one entry per library stream, and
// registers every usable stream with the sink.
func (s *Session) mapTracks() error {
	s.tracks = make([]track, len(s.streams))
	registeredCount := 0
	for i := range s.streams {
		st := &s.streams[i]
		s.tracks[i] = track{pcr: es.TickInvalid, out: s.mapTrack(i, st)}
		if _, ok := s.tracks[i].out.(registered); ok {
			registeredCount++
		}
	}
	if registeredCount == 0 {
		s.log.Error("no usable tracks", "streams", len(s.streams))
		return ErrNoUsableTracks
	}
	return nil
}

func (s *Session) mapTrack(i int, st *lavf.Stream) output {
	cp := &st.Codec
	log := s.log.With("track", i, "codec", cp.CodecID)

	if st.Disposition&lavf.DispositionAttachedPic != 0 {
		log.Debug("skipping attached picture")
		return muted{reason: "attached picture"}
	}

	f := &es.Format{
		Codec:      cp.CodecID,
		FourCC:     fourCC(cp.CodecTag),
		ID:         i,
		Priority:   es.PrioritySelectableMin,
		Bitrate:    cp.BitRate,
		Packetized: true,
		Language:   st.Metadata["language"],
	}
	if title, ok := st.Metadata["title"]; ok {
		f.Description = title
	}

	switch cp.MediaType {
	case lavf.MediaAudio:
		f.Kind = es.KindAudio
		s.mapAudio(f, cp)
	case lavf.MediaVideo:
		f.Kind = es.KindVideo
		s.mapVideo(f, st)
	case lavf.MediaSubtitle:
		f.Kind = es.KindSubtitle
		s.mapSubtitle(f, cp, log)
	case lavf.MediaAttachment:
		s.mapAttachment(st, log)
		return muted{reason: "attachment"}
	case lavf.MediaData:
		log.Warn("unsupported data stream")
		return muted{reason: "data"}
	default:
		log.Warn("unknown stream category", "type", cp.MediaType)
		return muted{reason: "unknown category"}
	}

	if cp.CodecID == "" || cp.CodecID == "none" {
		log.Warn("unsupported codec", "error", &TrackError{Index: i, Err: ErrUnsupportedCodec})
		return muted{reason: "unsupported codec"}
	}

	s.synthesizeHeader(f, cp, i, log)

	def := st.Disposition&lavf.DispositionDefault != 0
	if def {
		f.Priority = es.PrioritySelectableMin + defaultPriorityBoost
	}

	id, err := s.out.AddStream(f)
	if err != nil {
		log.Warn("sink rejected track", "error", &TrackError{Index: i, Err: ErrUnsupportedCodec}, "cause", err)
		return muted{reason: "rejected"}
	}
	if def {
		s.out.SetDefault(id)
	}
	log.Debug("track registered",
		"kind", f.Kind,
		"fourcc", f.FourCC,
		"language", f.Language,
		"extra", len(f.Extra),
		"packetized", f.Packetized,
	)
	return registered{id: id}
}

func (s *Session) mapAudio(f *es.Format, cp *lavf.CodecParameters) {
	f.Audio = es.AudioFormat{
		Rate:          cp.SampleRate,
		Channels:      cp.Channels,
		BitsPerSample: cp.BitsPerCodedSample,
		BlockAlign:    cp.BlockAlign,
	}
	switch {
	case cp.CodecID == "aac_latm":
		f.OriginalFourCC = "LATM"
		f.Packetized = false
	case cp.CodecID == "aac" && strings.Contains(s.format.LongName, "raw ADTS AAC"):
		f.OriginalFourCC = "ADTS"
		f.Packetized = false
	}
}

func (s *Session) mapVideo(f *es.Format, st *lavf.Stream) {
	cp := &st.Codec
	v := es.VideoFormat{
		Width:         cp.Width,
		Height:        cp.Height,
		VisibleWidth:  cp.Width,
		VisibleHeight: cp.Height,
		BitsPerPixel:  cp.BitsPerCodedSample,
		Orientation:   orientation(*st),
	}
	if cp.CodecID == "rawvideo" {
		v.Chroma = cp.PixelFormat
	}
	if cp.CodecID == "h264" && (s.format.Is("flv") || s.format.Is("matroska") || s.format.Is("mp4")) {
		f.OriginalFourCC = "avc1"
	}
	if cp.CodecID == "h264" && (v.Width == 0 || v.Height == 0) {
		if w, h, ok := avcConfigDimensions(cp.ExtraData); ok {
			v.Width, v.Height = w, h
			v.VisibleWidth, v.VisibleHeight = w, h
		}
	}
	if st.FrameRate.Num > 0 && st.FrameRate.Den > 0 {
		v.FrameRate = es.Rational{Num: st.FrameRate.Num, Den: st.FrameRate.Den}
	}
	v.SAR.Num = st.SampleAspectRatio.Num
	if v.SAR.Num > 0 {
		v.SAR.Den = st.SampleAspectRatio.Den
	}
	f.Video = v
}

func (s *Session) mapSubtitle(f *es.Format, cp *lavf.CodecParameters, log *slog.Logger) {
	switch {
	case cp.CodecID == "dvd_subtitle" && s.format.Is("matroska") && len(cp.ExtraData) > 0:
		idx := string(cp.ExtraData)
		if w, h, err := vobsubSize(idx); err == nil {
			f.Subtitle.Width, f.Subtitle.Height = w, h
		} else {
			log.Debug("vobsub size", "error", err)
		}
		if pal, err := vobsubPalette(idx); err == nil {
			f.Subtitle.Palette = pal
		} else {
			log.Debug("vobsub palette", "error", err)
		}
	case cp.CodecID == "dvb_subtitle" && len(cp.ExtraData) > 3:
		f.Subtitle.CompositionID = int(binary.BigEndian.Uint16(cp.ExtraData[0:2]))
		f.Subtitle.AncillaryID = int(binary.BigEndian.Uint16(cp.ExtraData[2:4]))
	}
}

// fontMIME maps attachment codecs to the MIME types of embedded fonts.
var fontMIME = map[string]string{
	"ttf": "application/x-truetype-font",
	"otf": "application/vnd.ms-opentype",
}

func (s *Session) mapAttachment(st *lavf.Stream, log *slog.Logger) {
	name, ok := st.Metadata["filename"]
	if !ok || name == "" {
		log.Warn("attachment without file name")
		return
	}
	mime, ok := fontMIME[st.Codec.CodecID]
	if !ok {
		log.Warn("unsupported attachment", "name", name)
		return
	}
	s.attachments = append(s.attachments, es.Attachment{
		Name: name,
		MIME: mime,
		Data: append([]byte(nil), st.Codec.ExtraData...),
	})
	log.Debug("attachment", "name", name, "mime", mime, "size", len(st.Codec.ExtraData))
}

// synthesizeHeader fills f.Extra from the codec extradata, rebuilding the
// codec headers where the decoder expects xiph-laced packets.
func (s *Session) synthesizeHeader(f *es.Format, cp *lavf.CodecParameters, i int, log *slog.Logger) {
	extra := cp.ExtraData
	ogg := s.format.Is("ogg")

	var packets [][]byte
	switch {
	case cp.CodecID == "theora" && ogg:
		headers, truncated := splitSizePrefixed(extra, 3)
		if truncated {
			log.Warn("truncated theora header", "error", &TrackError{Index: i, Err: ErrMalformedPacket},
				"complete", len(headers))
		}
		if len(headers) == 0 {
			return
		}
		packets = headers
	case cp.CodecID == "speex" && ogg:
		if len(extra) == 0 {
			return
		}
		packets = [][]byte{extra, speexComment}
	case cp.CodecID == "opus":
		if len(extra) == 0 {
			return
		}
		packets = [][]byte{extra, opusTags}
	default:
		if len(extra) > 0 {
			f.Extra = append([]byte(nil), extra...)
		} else {
			f.Packetized = false
		}
		return
	}

	packed, err := xiphPack(packets)
	if err != nil {
		log.Warn("cannot pack codec headers", "error", err)
		return
	}
	f.Extra = packed
}

// fourCC renders a little-endian codec tag, or "" for none.
func fourCC(tag uint32) string {
	if tag == 0 {
		return ""
	}
	b := [4]byte{byte(tag), byte(tag >> 8), byte(tag >> 16), byte(tag >> 24)}
	return string(b[:])
}

// loadChapters turns the container chapters into the single title.
func (s *Session) loadChapters() {
	chapters := s.lc.Chapters()
	if len(chapters) == 0 {
		return
	}
	t := &Title{Length: s.Length()}
	for _, c := range chapters {
		sp := Seekpoint{Name: strings.ToValidUTF8(c.Metadata["title"], "?")}
		if off := rescale(c.Start, c.TimeBase); off.Valid() {
			sp.Offset = off - s.startTime
		}
		t.Seekpoints = append(t.Seekpoints, sp)
	}
	s.title = t
	s.log.Debug("chapters loaded", "count", len(t.Seekpoints))
}
