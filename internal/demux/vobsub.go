package demux

import (
	"fmt"
	"strconv"
	"strings"
)

// vobsubSize parses "size: WxH" from a VobSub idx header.
func vobsubSize(idx string) (w, h int, err error) {
	i := strings.Index(idx, "size:")
	if i < 0 {
		return 0, 0, fmt.Errorf("vobsub: no size line")
	}
	if _, err := fmt.Sscanf(idx[i:], "size: %dx%d", &w, &h); err != nil {
		return 0, 0, fmt.Errorf("vobsub: size: %w", err)
	}
	return w, h, nil
}

// vobsubPalette parses the 16 "palette:" RGB entries of a VobSub idx
// header and converts them to packed YUV (Y<<16 | V<<8 | U).
func vobsubPalette(idx string) ([]uint32, error) {
	i := strings.Index(idx, "palette:")
	if i < 0 {
		return nil, fmt.Errorf("vobsub: no palette line")
	}
	line := idx[i+len("palette:"):]
	if nl := strings.IndexAny(line, "\r\n"); nl >= 0 {
		line = line[:nl]
	}
	fields := strings.Split(line, ",")
	if len(fields) < 16 {
		return nil, fmt.Errorf("vobsub: palette has %d entries, want 16", len(fields))
	}

	pal := make([]uint32, 16)
	for j := range pal {
		rgb, err := strconv.ParseUint(strings.TrimSpace(fields[j]), 16, 32)
		if err != nil {
			return nil, fmt.Errorf("vobsub: palette entry %d: %w", j, err)
		}
		pal[j] = rgbToYUV(uint32(rgb))
	}
	return pal, nil
}

func rgbToYUV(rgb uint32) uint32 {
	r := int((rgb >> 16) & 0xff)
	g := int((rgb >> 8) & 0xff)
	b := int(rgb & 0xff)

	y := min(abs(r*2104+g*4130+b*802+4096+131072)>>13, 235)
	u := min(abs(r*-1214+g*-2384+b*3598+4096+1048576)>>13, 240)
	v := min(abs(r*3598+g*-3013+b*-585+4096+1048576)>>13, 240)
	return uint32(y)<<16 | uint32(v)<<8 | uint32(u)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
