package srt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	srtgo "github.com/zsiec/srtgo"

	"github.com/zsiec/avdemux/internal/source"
)

// srtReadBufferSize is the read buffer for SRT socket reads.
// 1316 bytes = 7 MPEG-TS packets (188 * 7), the standard SRT payload size.
const srtReadBufferSize = 1316 * 10

// srtLatencyNs is the SRT latency setting in nanoseconds (120ms).
const srtLatencyNs = 120_000_000

// defaultDialTimeout bounds Dial when Config.DialTimeout is zero.
const defaultDialTimeout = 10 * time.Second

// Config describes an SRT endpoint.
type Config struct {
	// Address is host:port to dial, or the local address to listen on.
	Address string

	// StreamID is sent when dialing. When listening, a non-empty StreamID
	// restricts which publisher is accepted.
	StreamID string

	DialTimeout time.Duration
	Logger      *slog.Logger
}

// Conn is a source.Source reading from one SRT connection. SRT delivers
// whole messages, so reads are staged through an internal buffer.
type Conn struct {
	log      *slog.Logger
	conn     *srtgo.Conn
	remote   string
	streamID string

	buf     []byte
	pending []byte
	pos     int64
}

var _ source.Source = (*Conn)(nil)

func newConn(conn *srtgo.Conn, log *slog.Logger) *Conn {
	return &Conn{
		log:      log,
		conn:     conn,
		remote:   conn.RemoteAddr().String(),
		streamID: conn.StreamID(),
		buf:      make([]byte, srtReadBufferSize),
	}
}

// Dial connects to a remote SRT listener. It returns an error if the
// connection does not complete within the dial timeout or ctx ends first.
func Dial(ctx context.Context, cfg Config) (*Conn, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("address is required")
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "srt-caller")

	scfg := srtgo.DefaultConfig()
	scfg.Latency = srtLatencyNs
	if cfg.StreamID != "" {
		scfg.StreamID = cfg.StreamID
	}

	log.Info("dialing", "address", cfg.Address, "stream_id", cfg.StreamID)

	type dialResult struct {
		conn *srtgo.Conn
		err  error
	}
	ch := make(chan dialResult, 1)
	go func() {
		conn, err := srtgo.Dial(cfg.Address, scfg)
		ch <- dialResult{conn, err}
	}()

	dialTimeout := cfg.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = defaultDialTimeout
	}
	timer := time.NewTimer(dialTimeout)
	defer timer.Stop()

	drain := func() {
		// Close any connection that completes after we gave up on it.
		go func() {
			if res := <-ch; res.conn != nil {
				res.conn.Close()
			}
		}()
	}

	select {
	case res := <-ch:
		if res.err != nil {
			return nil, fmt.Errorf("SRT dial failed: %w", res.err)
		}
		log.Info("connected", "address", cfg.Address)
		return newConn(res.conn, log), nil
	case <-timer.C:
		drain()
		return nil, fmt.Errorf("SRT dial timed out after %s", dialTimeout)
	case <-ctx.Done():
		drain()
		return nil, ctx.Err()
	}
}

// Accept listens on cfg.Address and returns the first publisher whose
// stream ID matches cfg.StreamID (any non-empty ID when unset). The
// listener is closed once a publisher is accepted or ctx ends.
func Accept(ctx context.Context, cfg Config) (*Conn, error) {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "srt-listener")

	scfg := srtgo.DefaultConfig()
	scfg.Latency = srtLatencyNs

	l, err := srtgo.Listen(cfg.Address, scfg)
	if err != nil {
		return nil, fmt.Errorf("SRT listen on %s: %w", cfg.Address, err)
	}
	log.Info("listening", "addr", cfg.Address)

	want := streamKey(cfg.StreamID)
	l.SetAcceptRejectFunc(func(req srtgo.ConnRequest) srtgo.RejectReason {
		if req.StreamID == "" {
			return srtgo.RejPeer
		}
		if cfg.StreamID != "" && streamKey(req.StreamID) != want {
			return srtgo.RejPeer
		}
		return 0
	})

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
		}
		l.Close()
	}()

	for {
		conn, err := l.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Warn("accept error", "error", err)
			continue
		}
		log.Info("publish", "stream_key", streamKey(conn.StreamID()), "remote", conn.RemoteAddr())
		return newConn(conn, log), nil
	}
}

func (c *Conn) Read(p []byte) (int, error) {
	if len(c.pending) == 0 {
		n, err := c.conn.Read(c.buf)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				c.log.Debug("read error", "remote", c.remote, "error", err)
			}
			return 0, err
		}
		c.pending = c.buf[:n]
	}
	n := copy(p, c.pending)
	c.pending = c.pending[n:]
	c.pos += int64(n)
	return n, nil
}

func (c *Conn) Seek(int64) error    { return source.ErrNotSeekable }
func (c *Conn) Tell() int64         { return c.pos }
func (c *Conn) Size() (int64, bool) { return 0, false }
func (c *Conn) Seekable() bool      { return false }

// RemoteAddr returns the peer address.
func (c *Conn) RemoteAddr() string { return c.remote }

// StreamID returns the stream ID negotiated at connection time.
func (c *Conn) StreamID() string { return c.streamID }

func (c *Conn) Close() error {
	c.log.Info("connection closed", "remote", c.remote, "bytes", c.pos)
	return c.conn.Close()
}

func streamKey(streamID string) string {
	streamID = strings.TrimPrefix(streamID, "/")
	streamID = strings.TrimPrefix(streamID, "live/")
	if streamID == "" {
		return "default"
	}
	return streamID
}
