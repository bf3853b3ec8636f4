// Package source provides the byte streams the demuxer reads from: local
// files, in-memory buffers and network streams, plus wrappers that add
// peeking and read accounting.
package source

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"
)

// ErrNotSeekable is returned by Seek on sources that cannot reposition.
var ErrNotSeekable = errors.New("source: not seekable")

// Source is a blocking byte stream with absolute positioning.
type Source interface {
	io.Reader
	io.Closer
	// Seek moves the read position to the absolute offset.
	Seek(offset int64) error
	Tell() int64
	// Size returns the total length, or false when it is unknown.
	Size() (int64, bool)
	Seekable() bool
}

// Named is implemented by sources backed by a file-like name.
type Named interface {
	Name() string
}

// Peeker is implemented by sources that can return upcoming bytes without
// consuming them.
type Peeker interface {
	Peek(n int) ([]byte, error)
}

// File is a Source over a local file.
type File struct {
	f    *os.File
	name string
	pos  int64
	size int64
}

// OpenFile opens the file at path.
func OpenFile(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	return &File{f: f, name: path, size: fi.Size()}, nil
}

func (s *File) Read(p []byte) (int, error) {
	n, err := s.f.Read(p)
	s.pos += int64(n)
	return n, err
}

func (s *File) Seek(offset int64) error {
	if offset < 0 {
		return fmt.Errorf("source: negative offset %d", offset)
	}
	pos, err := s.f.Seek(offset, io.SeekStart)
	if err != nil {
		return err
	}
	s.pos = pos
	return nil
}

func (s *File) Tell() int64         { return s.pos }
func (s *File) Size() (int64, bool) { return s.size, true }
func (s *File) Seekable() bool      { return true }
func (s *File) Name() string        { return s.name }
func (s *File) Close() error        { return s.f.Close() }

// Memory is a Source over a byte slice. It is mainly useful in tests.
type Memory struct {
	data []byte
	pos  int64
	name string
}

// NewMemory returns a seekable Source over data. The name is reported
// through Named when non-empty.
func NewMemory(data []byte, name string) *Memory {
	return &Memory{data: data, name: name}
}

func (s *Memory) Read(p []byte) (int, error) {
	if s.pos >= int64(len(s.data)) {
		return 0, io.EOF
	}
	n := copy(p, s.data[s.pos:])
	s.pos += int64(n)
	return n, nil
}

func (s *Memory) Seek(offset int64) error {
	if offset < 0 {
		return fmt.Errorf("source: negative offset %d", offset)
	}
	s.pos = offset
	return nil
}

func (s *Memory) Tell() int64         { return s.pos }
func (s *Memory) Size() (int64, bool) { return int64(len(s.data)), true }
func (s *Memory) Seekable() bool      { return true }
func (s *Memory) Name() string        { return s.name }
func (s *Memory) Close() error        { return nil }

// Stream is a non-seekable Source over an io.ReadCloser, such as a network
// connection or a pipe.
type Stream struct {
	rc  io.ReadCloser
	pos int64
}

// NewStream wraps rc.
func NewStream(rc io.ReadCloser) *Stream {
	return &Stream{rc: rc}
}

func (s *Stream) Read(p []byte) (int, error) {
	n, err := s.rc.Read(p)
	s.pos += int64(n)
	return n, err
}

func (s *Stream) Seek(int64) error    { return ErrNotSeekable }
func (s *Stream) Tell() int64         { return s.pos }
func (s *Stream) Size() (int64, bool) { return 0, false }
func (s *Stream) Seekable() bool      { return false }
func (s *Stream) Close() error        { return s.rc.Close() }

// Stats captures read accounting for a Source.
type Stats struct {
	BytesRead int64 `json:"bytesRead"`
	ReadCount int64 `json:"readCount"`
	OpenedAt  int64 `json:"openedAt"`
	UptimeMs  int64 `json:"uptimeMs"`
}

// Counting wraps a Source and counts bytes and reads.
type Counting struct {
	Source
	openedAt  time.Time
	bytesRead atomic.Int64
	readCount atomic.Int64
}

// NewCounting wraps src.
func NewCounting(src Source) *Counting {
	return &Counting{Source: src, openedAt: time.Now()}
}

func (c *Counting) Read(p []byte) (int, error) {
	n, err := c.Source.Read(p)
	if n > 0 {
		c.bytesRead.Add(int64(n))
	}
	c.readCount.Add(1)
	return n, err
}

// Name forwards to the wrapped source when it is Named.
func (c *Counting) Name() string {
	if n, ok := c.Source.(Named); ok {
		return n.Name()
	}
	return ""
}

// Stats returns a snapshot of the read counters.
func (c *Counting) Stats() Stats {
	return Stats{
		BytesRead: c.bytesRead.Load(),
		ReadCount: c.readCount.Load(),
		OpenedAt:  c.openedAt.UnixMilli(),
		UptimeMs:  time.Since(c.openedAt).Milliseconds(),
	}
}
