// Package demux turns a byte stream of unknown container format into
// timestamped elementary streams.
//
// [Open] negotiates the container format with a [lavf.Library], maps every
// stream descriptor to an [es.Format] (synthesizing codec headers where the
// container's are not self-describing) and registers the result with a
// [Sink]. Each call to [Session.Demux] then pulls one packet, rescales its
// timestamps to the internal microsecond clock, applies known producer
// quirks, delivers it and arbitrates a single global clock across tracks.
// [Session.SetPosition], [Session.SetTime] and [Session.SetSeekpoint] seek
// and reset that clock.
//
// A Session is driven by one goroutine at a time. Blocking calls take a
// context; cancelling it makes the in-flight call fail with
// [ErrInterrupted] without changing session state.
package demux
