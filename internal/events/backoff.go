// ABOUTME: Exponential reconnect backoff with optional jitter
// ABOUTME: Tracks the current delay and resets after a successful session

package events

import (
	"math/rand"
	"sync"
	"time"
)

const (
	defaultInitialBackoff = 500 * time.Millisecond
	defaultMaxBackoff     = 30 * time.Second
	defaultMultiplier     = 2.0
)

var (
	randMu     sync.Mutex
	randSource = rand.New(rand.NewSource(time.Now().UnixNano()))
)

// BackoffConfig controls reconnect delays.
type BackoffConfig struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
	Jitter     bool // add up to 25% on top of each delay
}

func (c BackoffConfig) withDefaults() BackoffConfig {
	if c.Initial <= 0 {
		c.Initial = defaultInitialBackoff
	}
	if c.Max <= 0 {
		c.Max = defaultMaxBackoff
	}
	if c.Max < c.Initial {
		c.Max = c.Initial
	}
	if c.Multiplier < 1 {
		c.Multiplier = defaultMultiplier
	}
	if c.Multiplier > 1000 {
		c.Multiplier = 1000
	}
	return c
}

// backoff is not safe for concurrent use; only the Run loop touches it.
type backoff struct {
	cfg   BackoffConfig
	delay time.Duration
}

func newBackoff(cfg BackoffConfig) *backoff {
	cfg = cfg.withDefaults()
	return &backoff{cfg: cfg, delay: cfg.Initial}
}

// Next returns the delay to wait now and advances to the following one.
func (b *backoff) Next() time.Duration {
	d := b.delay

	next := float64(b.delay) * b.cfg.Multiplier
	if next > float64(b.cfg.Max) {
		b.delay = b.cfg.Max
	} else {
		b.delay = time.Duration(next)
	}

	if b.cfg.Jitter && d >= 4 {
		randMu.Lock()
		d += time.Duration(randSource.Int63n(int64(d / 4)))
		randMu.Unlock()
	}
	return d
}

// Reset returns to the initial delay.
func (b *backoff) Reset() {
	b.delay = b.cfg.Initial
}
