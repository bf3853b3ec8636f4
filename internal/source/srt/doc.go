// Package srt provides non-seekable byte sources over SRT (Secure Reliable
// Transport), either by dialing a remote listener (caller mode) or by
// accepting one publisher (listener mode).
package srt
