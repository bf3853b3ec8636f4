package demux

import (
	"math"
	"strconv"
	"strings"

	"github.com/zsiec/avdemux/internal/es"
	"github.com/zsiec/avdemux/internal/lavf"
)

// orientation derives the display orientation of a video stream. The
// display matrix, when present, takes precedence over the rotate tag.
func orientation(st lavf.Stream) es.Orientation {
	o := es.OrientNormal
	if v, ok := st.Metadata["rotate"]; ok {
		o = orientationFromTag(leadingInt(v))
	}
	if st.DisplayMatrix != nil {
		if angle, ok := displayRotation(st.DisplayMatrix); ok {
			o = orientationFromMatrix(int(math.Round(angle)))
		}
	}
	return o
}

// orientationFromTag maps a clockwise rotate tag in degrees.
func orientationFromTag(angle int) es.Orientation {
	switch {
	case angle > 45 && angle < 135:
		return es.OrientRotated90
	case angle > 135 && angle < 225:
		return es.OrientRotated180
	case angle > 225 && angle < 315:
		return es.OrientRotated270
	}
	return es.OrientNormal
}

// orientationFromMatrix maps a counterclockwise display matrix angle in
// degrees, in (-180, 180].
func orientationFromMatrix(angle int) es.Orientation {
	switch {
	case angle > 45 && angle < 135:
		return es.OrientRotated270
	case angle > 135 || angle < -135:
		return es.OrientRotated180
	case angle < -45 && angle > -135:
		return es.OrientRotated90
	}
	return es.OrientNormal
}

// displayRotation returns the counterclockwise rotation angle in degrees
// encoded in a 3x3 16.16 fixed-point display matrix.
func displayRotation(m *[9]int32) (float64, bool) {
	conv := func(v int32) float64 { return float64(v) / 65536 }
	sx := math.Hypot(conv(m[0]), conv(m[3]))
	sy := math.Hypot(conv(m[1]), conv(m[4]))
	if sx == 0 || sy == 0 {
		return 0, false
	}
	rot := math.Atan2(conv(m[1])/sy, conv(m[0])/sx) * 180 / math.Pi
	return -rot, true
}

// leadingInt parses the optional sign and digits at the start of s,
// ignoring anything after them. It returns 0 when there are none.
func leadingInt(s string) int {
	s = strings.TrimSpace(s)
	end := 0
	if end < len(s) && (s[end] == '-' || s[end] == '+') {
		end++
	}
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0
	}
	return n
}
