// Package hub fans engine events out to connected WebSocket subscribers.
//
// # Overview
//
// The Hub owns the set of live subscribers. Broadcast serializes an event
// once and enqueues it on every subscriber's bounded queue without waiting,
// so the upstream event feed is never held back by a slow client.
//
// # Subscribers
//
// Each Subscription has a pump goroutine that drains its queue and writes to
// the connection with a per-send timeout:
//
//	sub, err := h.Register(conn)
//	<-sub.Done() // closed when the hub drops the subscriber
//
// A subscriber is removed when:
//
//   - a write fails or times out (send_failed)
//   - its queue is full at broadcast time (queue_full)
//   - Unregister is called, usually because the client went away (closed)
//
// Removing one subscriber never affects delivery to the others.
//
// # Ordering
//
// Events reach each subscriber in broadcast order. A broadcast enqueues at
// most once per subscriber, so no subscriber sees an event twice.
package hub
