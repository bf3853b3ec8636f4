package demux

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by Open, Demux and the seek commands. Callers
// distinguish them with errors.Is.
var (
	ErrUnrecognizedFormat = errors.New("demux: unrecognized format")
	ErrNoUsableTracks     = errors.New("demux: no usable tracks")
	ErrAllocation         = errors.New("demux: allocation failure")
	ErrSeekFailed         = errors.New("demux: seek failed")
	ErrMalformedPacket    = errors.New("demux: malformed packet")
	ErrUnsupportedCodec   = errors.New("demux: unsupported codec")
	ErrInterrupted        = errors.New("demux: interrupted")
	ErrNoTitle            = errors.New("demux: no title")
	ErrNoAttachments      = errors.New("demux: no attachments")
)

// TrackError reports a failure confined to one stream. The session keeps
// running; the error only reaches the log.
type TrackError struct {
	Index int
	Err   error
}

func (e *TrackError) Error() string {
	return fmt.Sprintf("demux: track %d: %v", e.Index, e.Err)
}

func (e *TrackError) Unwrap() error {
	return e.Err
}
