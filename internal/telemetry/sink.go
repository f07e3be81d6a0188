package telemetry

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/nerrad567/benchdash/internal/sensor"
)

// Source identifies the board a sample came from.
type Source struct {
	Address  string
	Identity sensor.Identity
}

// Sink receives every sample recorded by a poller.
//
// Publish is called from the poller goroutine and should return quickly.
type Sink interface {
	Publish(ctx context.Context, src Source, at time.Time, sample Sample) error
}

// MultiSink fans a sample out to several sinks.
type MultiSink []Sink

// Publish implements Sink. All sinks are called; errors are joined.
func (m MultiSink) Publish(ctx context.Context, src Source, at time.Time, sample Sample) error {
	var errs []error
	for _, s := range m {
		if err := s.Publish(ctx, src, at, sample); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Throttle forwards at most one sample per interval per source address.
type Throttle struct {
	next     Sink
	interval time.Duration

	mu   sync.Mutex
	last map[string]time.Time
}

// NewThrottle wraps next so each board publishes at most once per interval.
func NewThrottle(next Sink, interval time.Duration) *Throttle {
	return &Throttle{
		next:     next,
		interval: interval,
		last:     make(map[string]time.Time),
	}
}

// Publish implements Sink.
func (t *Throttle) Publish(ctx context.Context, src Source, at time.Time, sample Sample) error {
	t.mu.Lock()
	prev, ok := t.last[src.Address]
	if ok && at.Sub(prev) < t.interval {
		t.mu.Unlock()
		return nil
	}
	t.last[src.Address] = at
	t.mu.Unlock()

	return t.next.Publish(ctx, src, at, sample)
}
