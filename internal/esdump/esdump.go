// Package esdump records a demuxed session as a stream of framed records
// and reads it back.
//
// A dump starts with the magic "AVDX", a varint format version and the
// 20-byte ksuid of the session. Each record that follows is
// [type (varint)] [length (varint)] [payload]. Integers in payloads are
// QUIC varints; signed values are zigzag encoded; byte strings carry a
// varint length prefix.
package esdump

import (
	"errors"
	"fmt"
)

// Magic opens every dump.
const Magic = "AVDX"

// Version is the dump format version written by this package.
const Version uint64 = 1

// Record type IDs.
const (
	RecFormat      uint64 = 0x01
	RecBlock       uint64 = 0x02
	RecPCR         uint64 = 0x03
	RecSeekpoint   uint64 = 0x04
	RecDisplayTime uint64 = 0x05
	RecDefault     uint64 = 0x06
)

// maxPayload bounds a single record so a corrupt length cannot force a
// huge allocation.
const maxPayload = 64 << 20

// Block flags.
const (
	flagKey       byte = 1 << 0
	flagDTS       byte = 1 << 1
	flagPTS       byte = 1 << 2
	flagHasLength byte = 1 << 3
)

var (
	ErrBadMagic           = errors.New("esdump: not a dump")
	ErrUnsupportedVersion = errors.New("esdump: unsupported version")
	ErrTooLarge           = errors.New("esdump: record too large")
	ErrOutOfRange         = errors.New("esdump: value out of range")
)

// ParseError reports the payload field that failed to decode.
type ParseError struct {
	Record uint64
	Field  string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("esdump: record %#x: parse %s: %v", e.Record, e.Field, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

func zigzag(v int64) uint64 { return uint64(v<<1) ^ uint64(v>>63) }

func unzigzag(u uint64) int64 { return int64(u>>1) ^ -int64(u&1) }
