package demux

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/zsiec/avdemux/internal/lavf"
	"github.com/zsiec/avdemux/internal/source"
)

// ioBufferSize is the I/O buffer size handed to the parsing library.
const ioBufferSize = 32768

// shim adapts a source.Source to lavf.IO. The session arms it with the
// caller's context around every blocking library call.
type shim struct {
	src source.Source
	ctx context.Context
}

func newShim(src source.Source) *shim {
	return &shim{src: src, ctx: context.Background()}
}

// arm installs ctx for the next library call and returns the function
// that restores the idle context.
func (s *shim) arm(ctx context.Context) func() {
	s.ctx = ctx
	return func() { s.ctx = context.Background() }
}

func (s *shim) interrupted() error {
	if err := s.ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrInterrupted, err)
	}
	return nil
}

func (s *shim) Read(p []byte) (int, error) {
	if err := s.interrupted(); err != nil {
		return 0, err
	}
	if len(p) == 0 {
		return 0, io.EOF
	}
	n, err := s.src.Read(p)
	if ierr := s.interrupted(); ierr != nil {
		return 0, ierr
	}
	if n > 0 {
		return n, nil
	}
	if err == nil || errors.Is(err, io.EOF) {
		return 0, io.EOF
	}
	return 0, fmt.Errorf("read: %w", err)
}

func (s *shim) Seek(offset int64, whence int) (int64, error) {
	if err := s.interrupted(); err != nil {
		return -1, err
	}
	size, sized := s.src.Size()
	if whence == lavf.SeekSize {
		if !sized {
			return -1, errors.New("size unknown")
		}
		return size, nil
	}
	if !s.src.Seekable() {
		return -1, source.ErrNotSeekable
	}

	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = s.src.Tell() + offset
	case io.SeekEnd:
		if !sized {
			return -1, errors.New("size unknown")
		}
		abs = size + offset
	default:
		return -1, fmt.Errorf("invalid whence %d", whence)
	}

	if abs < 0 {
		return -1, fmt.Errorf("seek to negative offset %d", abs)
	}
	if sized && size > 0 && abs >= size {
		return -1, fmt.Errorf("seek to %d beyond size %d", abs, size)
	}
	if err := s.src.Seek(abs); err != nil {
		return -1, fmt.Errorf("seek: %w", err)
	}
	if err := s.interrupted(); err != nil {
		return -1, err
	}
	return s.src.Tell(), nil
}
