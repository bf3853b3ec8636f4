// Package sink provides demux.Sink implementations: a fan-out Tee, an
// esdump recorder, a structured-log sink, a statistics collector and a
// CEA-608 caption decoder.
//
// Every sink hands out its own dense stream ids starting at zero. Sinks are
// driven from the goroutine running the demux session; Stats snapshots may
// be taken concurrently.
package sink
