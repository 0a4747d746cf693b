// ABOUTME: Long-lived engine event subscriber with reconnect and resume
// ABOUTME: Streams events, dedupes replays, records to the ledger, and feeds the hub

package events

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/2389/dock-gateway/internal/dedupe"
	"github.com/2389/dock-gateway/internal/engine"
	"github.com/2389/dock-gateway/internal/metrics"
)

// State is the subscriber's connection state.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateStreaming
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateStreaming:
		return "streaming"
	default:
		return "unknown"
	}
}

// Source opens an engine event stream starting at since.
// *engine.Client satisfies it.
type Source interface {
	Events(ctx context.Context, since time.Time) (engine.EventStream, error)
}

// Sink receives each delivered event. *hub.Hub satisfies it.
type Sink interface {
	Broadcast(ev engine.Event) error
}

// Recorder persists delivered events and reports where to resume.
// store.Store satisfies it.
type Recorder interface {
	SaveEvent(ctx context.Context, ev engine.Event) error
	LatestEvents(ctx context.Context) ([]engine.Event, error)
}

// Config configures a Subscriber.
type Config struct {
	Source   Source
	Sink     Sink
	Recorder Recorder // optional
	Backoff  BackoffConfig

	DedupeTTL  time.Duration
	DedupeSize int

	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

const (
	defaultDedupeTTL  = 5 * time.Minute
	defaultDedupeSize = 4096
)

// Subscriber relays engine events to a Sink.
type Subscriber struct {
	source   Source
	sink     Sink
	recorder Recorder
	backoff  *backoff
	seen     *dedupe.Window
	logger   *slog.Logger
	metrics  *metrics.Metrics

	state atomic.Int32

	mu    sync.Mutex
	since time.Time // time of the last delivered event

	// sleep waits for d or until ctx is done; swapped in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewSubscriber creates a Subscriber. Source and Sink are required.
func NewSubscriber(cfg Config) (*Subscriber, error) {
	if cfg.Source == nil {
		return nil, errors.New("events: source is required")
	}
	if cfg.Sink == nil {
		return nil, errors.New("events: sink is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ttl := cfg.DedupeTTL
	if ttl <= 0 {
		ttl = defaultDedupeTTL
	}
	size := cfg.DedupeSize
	if size <= 0 {
		size = defaultDedupeSize
	}

	return &Subscriber{
		source:   cfg.Source,
		sink:     cfg.Sink,
		recorder: cfg.Recorder,
		backoff:  newBackoff(cfg.Backoff),
		seen:     dedupe.New(ttl, size),
		logger:   logger.With("component", "events"),
		metrics:  cfg.Metrics,
		sleep:    sleepCtx,
	}, nil
}

// State returns the current connection state.
func (s *Subscriber) State() State {
	return State(s.state.Load())
}

// Since returns the resume point used for the next connection.
func (s *Subscriber) Since() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.since
}

func (s *Subscriber) setState(st State) {
	s.state.Store(int32(st))
	s.metrics.SetStreamState(int(st))
}

// Run streams events until ctx is cancelled. It always returns ctx.Err().
func (s *Subscriber) Run(ctx context.Context) error {
	s.loadResumePoint(ctx)
	defer s.setState(StateDisconnected)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		streamed, err := s.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if streamed {
			s.backoff.Reset()
		}

		delay := s.backoff.Next()
		s.logger.Warn("event stream ended, reconnecting",
			"error", err,
			"delay", delay,
			"since", s.Since(),
		)
		s.metrics.Reconnect()

		if err := s.sleep(ctx, delay); err != nil {
			return err
		}
	}
}

// loadResumePoint seeds since from the ledger so a restart does not lose
// events. The engine replays events at since, so the newest stored events are
// marked as seen to keep them from being broadcast twice.
func (s *Subscriber) loadResumePoint(ctx context.Context) {
	if s.recorder == nil {
		return
	}
	latest, err := s.recorder.LatestEvents(ctx)
	if err != nil {
		s.logger.Warn("failed to read resume point from store", "error", err)
		return
	}
	if len(latest) == 0 {
		return
	}

	since := latest[0].Timestamp()
	for _, ev := range latest {
		s.seen.CheckAndMark(ev.Key())
	}

	s.mu.Lock()
	s.since = since
	s.mu.Unlock()
	s.logger.Info("resuming event stream from store", "since", since, "seen", s.seen.Len())
}

// session runs one connection. streamed reports whether it reached Streaming.
func (s *Subscriber) session(ctx context.Context) (streamed bool, err error) {
	s.setState(StateConnecting)
	defer s.setState(StateDisconnected)

	stream, err := s.source.Events(ctx, s.Since())
	if err != nil {
		return false, err
	}
	defer stream.Close()

	// Cancellation must unblock a pending Next
	stop := context.AfterFunc(ctx, func() { stream.Close() })
	defer stop()

	s.setState(StateStreaming)
	s.logger.Info("event stream connected")

	for {
		ev, err := stream.Next()
		if err != nil {
			if errors.Is(err, engine.ErrDecode) {
				s.logger.Warn("skipping undecodable event", "error", err)
				s.metrics.EventSkipped("decode")
				continue
			}
			if errors.Is(err, io.EOF) {
				return true, errors.New("engine closed the event stream")
			}
			return true, err
		}
		s.deliver(ctx, ev)
	}
}

func (s *Subscriber) deliver(ctx context.Context, ev engine.Event) {
	s.metrics.EventReceived()

	if s.seen.CheckAndMark(ev.Key()) {
		s.logger.Debug("suppressing replayed event", "type", ev.Type, "action", ev.Action)
		s.metrics.EventSkipped("duplicate")
		return
	}

	s.mu.Lock()
	if ts := ev.Timestamp(); ts.After(s.since) {
		s.since = ts
	}
	s.mu.Unlock()

	if s.recorder != nil {
		if err := s.recorder.SaveEvent(ctx, ev); err != nil {
			s.logger.Error("failed to record event", "error", err)
		}
	}

	if err := s.sink.Broadcast(ev); err != nil {
		s.logger.Error("failed to broadcast event", "error", err)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
