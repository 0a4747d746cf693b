// ABOUTME: In-memory fan-out hub for relaying engine events to WebSocket subscribers
// ABOUTME: Non-blocking broadcast with per-subscriber queues; failing subscribers are dropped

package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389/dock-gateway/internal/engine"
	"github.com/2389/dock-gateway/internal/metrics"
)

const (
	// defaultQueueSize is the per-subscriber buffer of pending messages.
	defaultQueueSize = 64

	// defaultSendTimeout bounds a single write to one subscriber.
	defaultSendTimeout = 5 * time.Second
)

// Drop reasons, also used as metric labels.
const (
	ReasonSendFailed = "send_failed"
	ReasonQueueFull  = "queue_full"
	ReasonClosed     = "closed"
)

// ErrClosed is returned by Register after Close.
var ErrClosed = errors.New("hub closed")

// Conn is the write side of a subscriber connection.
// Write must honor ctx; Close may be called concurrently with Write.
type Conn interface {
	Write(ctx context.Context, data []byte) error
	Close(reason string) error
}

// Config configures a Hub. Zero values take defaults.
type Config struct {
	QueueSize   int
	SendTimeout time.Duration
	Logger      *slog.Logger
	Metrics     *metrics.Metrics
}

// Hub maintains the subscriber set and fans events out to it.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]*Subscription
	closed      bool

	queueSize   int
	sendTimeout time.Duration
	logger      *slog.Logger
	metrics     *metrics.Metrics
}

// Subscription is one registered subscriber.
type Subscription struct {
	id    string
	conn  Conn
	queue chan []byte
	done  chan struct{}

	stopOnce sync.Once
	reason   string // written once before done is closed
}

// ID returns the subscription identifier.
func (s *Subscription) ID() string { return s.id }

// Done is closed when the hub removes the subscriber.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Reason reports why the subscriber was removed. Only valid after Done is closed.
func (s *Subscription) Reason() string {
	<-s.done
	return s.reason
}

func (s *Subscription) stop(reason string) bool {
	stopped := false
	s.stopOnce.Do(func() {
		s.reason = reason
		close(s.done)
		stopped = true
	})
	return stopped
}

// New creates a Hub.
func New(cfg Config) *Hub {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = defaultSendTimeout
	}
	return &Hub{
		subscribers: make(map[string]*Subscription),
		queueSize:   cfg.QueueSize,
		sendTimeout: cfg.SendTimeout,
		logger:      cfg.Logger.With("component", "hub"),
		metrics:     cfg.Metrics,
	}
}

// Register adds conn to the subscriber set and starts its pump.
func (h *Hub) Register(conn Conn) (*Subscription, error) {
	sub := &Subscription{
		id:    uuid.New().String(),
		conn:  conn,
		queue: make(chan []byte, h.queueSize),
		done:  make(chan struct{}),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, ErrClosed
	}
	h.subscribers[sub.id] = sub
	n := len(h.subscribers)
	h.mu.Unlock()

	go h.pump(sub)

	h.metrics.SetSubscribers(n)
	h.logger.Debug("subscriber added", "sub_id", sub.id, "subscribers", n)
	return sub, nil
}

// Unregister removes a subscriber and closes its connection. Unknown IDs are ignored.
func (h *Hub) Unregister(id string) {
	h.remove(id, ReasonClosed)
}

// Len returns the number of live subscribers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Broadcast sends ev to every subscriber registered when the call begins.
// It never blocks on subscriber I/O. With no subscribers it is a no-op.
func (h *Hub) Broadcast(ev engine.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}

	// Snapshot under read lock so sends happen without holding it
	h.mu.RLock()
	targets := make([]*Subscription, 0, len(h.subscribers))
	for _, sub := range h.subscribers {
		targets = append(targets, sub)
	}
	h.mu.RUnlock()

	if len(targets) == 0 {
		return nil
	}

	for _, sub := range targets {
		select {
		case sub.queue <- data:
		case <-sub.done:
		default:
			h.logger.Warn("dropping slow subscriber", "sub_id", sub.id, "queue_size", h.queueSize)
			h.remove(sub.id, ReasonQueueFull)
		}
	}
	h.metrics.Broadcast()
	return nil
}

// Close removes every subscriber. Further Register calls fail with ErrClosed.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	subs := h.subscribers
	h.subscribers = make(map[string]*Subscription)
	h.mu.Unlock()

	// Close handshakes run in parallel so one unresponsive peer does not
	// hold up the rest of shutdown.
	var wg sync.WaitGroup
	for _, sub := range subs {
		if sub.stop(ReasonClosed) {
			wg.Add(1)
			go func(sub *Subscription) {
				defer wg.Done()
				_ = sub.conn.Close("server shutting down")
			}(sub)
		}
	}
	wg.Wait()
	h.metrics.SetSubscribers(0)
	h.logger.Debug("hub closed", "dropped", len(subs))
}

// remove drops a subscriber. Returns false if it was already gone.
// The connection is closed on its own goroutine: a close handshake can wait
// on the peer, and remove runs on the broadcast path.
func (h *Hub) remove(id, reason string) bool {
	h.mu.Lock()
	sub, ok := h.subscribers[id]
	if ok {
		delete(h.subscribers, id)
	}
	n := len(h.subscribers)
	h.mu.Unlock()

	if !ok || !sub.stop(reason) {
		return false
	}

	go func() {
		if err := sub.conn.Close(reason); err != nil {
			h.logger.Debug("closing subscriber", "sub_id", id, "error", err)
		}
	}()

	h.metrics.SetSubscribers(n)
	h.metrics.SubscriberDropped(reason)
	h.logger.Debug("subscriber removed", "sub_id", id, "reason", reason, "subscribers", n)
	return true
}

// pump drains one subscriber's queue until it is removed.
func (h *Hub) pump(sub *Subscription) {
	for {
		select {
		case <-sub.done:
			return
		case data := <-sub.queue:
			ctx, cancel := context.WithTimeout(context.Background(), h.sendTimeout)
			err := sub.conn.Write(ctx, data)
			cancel()
			if err != nil {
				h.logger.Warn("subscriber send failed", "sub_id", sub.id, "error", err)
				h.remove(sub.id, ReasonSendFailed)
				return
			}
		}
	}
}
