// Package events relays the engine's event feed into the broadcast hub.
//
// A Subscriber holds one long-lived streaming connection to the engine and
// hands every decoded event to a Sink. When the stream ends it waits out an
// exponential backoff and reconnects, resuming from the last delivered event.
// Records replayed by the engine after a resume are suppressed by a dedupe
// window, so a sink never sees the same event twice.
//
// The subscriber moves through three states:
//
//	Disconnected -> Connecting -> Streaming -> Disconnected
//
// A record that fails to decode is logged and skipped; the session continues.
package events
