package demux

import (
	"encoding/binary"
	"fmt"
)

// maxXiphHeaders bounds the number of packets in a xiph-laced header.
const maxXiphHeaders = 256

// xiphPack concatenates packets using Xiph lacing: one byte holding the
// packet count minus one, the lacing sizes of every packet but the last
// (runs of 255 terminated by the remainder), then the raw packets.
func xiphPack(packets [][]byte) ([]byte, error) {
	if len(packets) == 0 || len(packets) > maxXiphHeaders {
		return nil, fmt.Errorf("xiph: %d packets out of range", len(packets))
	}

	size := 1
	for i, p := range packets {
		size += len(p)
		if i < len(packets)-1 {
			size += len(p)/255 + 1
		}
	}

	out := make([]byte, 0, size)
	out = append(out, byte(len(packets)-1))
	for _, p := range packets[:len(packets)-1] {
		n := len(p)
		for n >= 255 {
			out = append(out, 255)
			n -= 255
		}
		out = append(out, byte(n))
	}
	for _, p := range packets {
		out = append(out, p...)
	}
	return out, nil
}

// splitSizePrefixed reads up to max sub-headers, each a 2-byte big-endian
// length and its payload. It stops at the first truncated sub-header and
// reports it with truncated set.
func splitSizePrefixed(extra []byte, max int) (headers [][]byte, truncated bool) {
	for i := 0; i < max && len(extra) > 0; i++ {
		if len(extra) < 2 {
			return headers, true
		}
		n := int(binary.BigEndian.Uint16(extra))
		extra = extra[2:]
		if n > len(extra) {
			return headers, true
		}
		headers = append(headers, extra[:n])
		extra = extra[n:]
	}
	return headers, false
}

// opusTags is an empty Opus comment header: magic, a zero-length vendor
// string and zero user comments.
var opusTags = []byte{'O', 'p', 'u', 's', 'T', 'a', 'g', 's', 0, 0, 0, 0, 0, 0, 0, 0}

// speexComment is the empty comment packet that follows a Speex header.
var speexComment = make([]byte, 8)
