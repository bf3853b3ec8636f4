package source

import (
	"errors"
	"io"
)

// PeekSource is a Source that can also peek.
type PeekSource interface {
	Source
	Peeker
}

// Peekable returns src itself when it already peeks, or wraps it in a
// Buffered.
func Peekable(src Source) PeekSource {
	if ps, ok := src.(PeekSource); ok {
		return ps
	}
	return NewBuffered(src)
}

// Buffered adds Peek to a Source by holding read-ahead bytes until they are
// consumed.
type Buffered struct {
	src Source
	buf []byte
}

// NewBuffered wraps src.
func NewBuffered(src Source) *Buffered {
	return &Buffered{src: src}
}

// Peek returns up to n upcoming bytes without consuming them. A short
// result with a nil error means the stream ended.
func (b *Buffered) Peek(n int) ([]byte, error) {
	for len(b.buf) < n {
		chunk := make([]byte, n-len(b.buf))
		m, err := b.src.Read(chunk)
		b.buf = append(b.buf, chunk[:m]...)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return b.buf, err
		}
		if m == 0 {
			break
		}
	}
	if len(b.buf) > n {
		return b.buf[:n], nil
	}
	return b.buf, nil
}

func (b *Buffered) Read(p []byte) (int, error) {
	if len(b.buf) > 0 {
		n := copy(p, b.buf)
		b.buf = b.buf[n:]
		if len(b.buf) == 0 {
			b.buf = nil
		}
		return n, nil
	}
	return b.src.Read(p)
}

func (b *Buffered) Seek(offset int64) error {
	if err := b.src.Seek(offset); err != nil {
		return err
	}
	b.buf = nil
	return nil
}

func (b *Buffered) Tell() int64 { return b.src.Tell() - int64(len(b.buf)) }

func (b *Buffered) Size() (int64, bool) { return b.src.Size() }

func (b *Buffered) Seekable() bool { return b.src.Seekable() }

func (b *Buffered) Close() error { return b.src.Close() }

// Name forwards to the wrapped source when it is Named.
func (b *Buffered) Name() string {
	if n, ok := b.src.(Named); ok {
		return n.Name()
	}
	return ""
}
