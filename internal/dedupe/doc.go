// Package dedupe suppresses engine events that were already relayed.
//
// After the event feed reconnects it replays from the last delivered
// timestamp, so the first records of a new session can repeat ones already
// broadcast. A Window remembers recent event keys for a TTL and a bounded
// count; anything seen inside the window is reported as a duplicate.
package dedupe
