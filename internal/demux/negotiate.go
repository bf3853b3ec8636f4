package demux

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/zsiec/avdemux/internal/lavf"
)

// defaultProbeSize is the number of bytes peeked for format probing.
const defaultProbeSize = 2048 + 213

// excludedFormats are containers left to more specific engines: MPEG
// program and transport streams, the redirector and SDP pseudo-formats,
// bare subtitle files and raw elementary video without timestamps.
var excludedFormats = map[string]struct{}{
	"mpeg":     {},
	"vcd":      {},
	"vob":      {},
	"mpegts":   {},
	"redir":    {},
	"sdp":      {},
	"ass":      {},
	"srt":      {},
	"microdvd": {},
	"hevc":     {},
	"h264":     {},
}

// extensionChecked lists formats that probe positive on arbitrary binary
// data and are only accepted when the source name carries one of the
// extensions.
var extensionChecked = map[string][]string{
	"psxstr": {".str", ".xai", ".xa"},
}

// negotiate resolves the container format for the probe prefix.
func negotiate(lib lavf.Library, pd lavf.ProbeData, cfg Config, log *slog.Logger) (lavf.Format, error) {
	var (
		f      lavf.Format
		forced bool
	)
	if cfg.ForcedFormat != "" {
		if f, forced = lib.FindFormat(cfg.ForcedFormat); forced {
			log.Debug("forcing format", "format", f.Name)
		} else {
			log.Warn("unknown forced format, probing", "format", cfg.ForcedFormat)
		}
	}
	if !forced {
		var ok bool
		if f, ok = lib.Probe(pd); !ok {
			log.Debug("couldn't guess format")
			return lavf.Format{}, ErrUnrecognizedFormat
		}
	}

	if cfg.Force {
		log.Debug("detected format", "format", f.Name)
		return f, nil
	}

	for _, name := range strings.Split(f.Name, ",") {
		if _, ok := excludedFormats[name]; ok {
			return lavf.Format{}, fmt.Errorf("%w: %s is handled elsewhere", ErrUnrecognizedFormat, name)
		}
	}

	for name, exts := range extensionChecked {
		if !f.Is(name) {
			continue
		}
		if !hasExtension(pd.Filename, exts) {
			return lavf.Format{}, fmt.Errorf("%w: %s needs a %s file name", ErrUnrecognizedFormat,
				name, strings.Join(exts, "/"))
		}
	}

	log.Debug("detected format", "format", f.Name)
	return f, nil
}

func hasExtension(name string, exts []string) bool {
	if name == "" {
		return false
	}
	lower := strings.ToLower(name)
	for _, ext := range exts {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}
