// Package lavf defines the contract between the demuxer and a container
// parsing library: probing a byte prefix into a named format, opening a
// context over an [IO], pulling packets and seeking by time or byte offset.
//
// The types mirror what libavformat exposes so that backends built on
// different libraries ([github.com/zsiec/avdemux/internal/lavf/joy] for pure
// Go, [github.com/zsiec/avdemux/internal/lavf/ffmpeg] for cgo) can be swapped
// without touching the demuxer.
package lavf
