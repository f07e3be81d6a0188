package telemetry

import (
	"sort"
	"sync"
	"time"
)

// DefaultCapacity is the number of samples kept per series.
const DefaultCapacity = 1000

// TimestampKey is the series holding the Unix time (seconds) of each sample.
const TimestampKey = "timestamp"

// Value is a single metric reading: float64, nil, or a decoder-defined struct.
type Value = any

// Sample maps metric names to values for one reading.
type Sample map[string]Value

// Point pairs a value with the time of the sample it belongs to.
type Point struct {
	Time  time.Time
	Value Value
}

// series is a fixed-capacity FIFO ring.
type series struct {
	buf   []Value
	start int
	n     int
}

func newSeries(capacity int) *series {
	return &series{buf: make([]Value, capacity)}
}

func (s *series) push(v Value) {
	if s.n < len(s.buf) {
		s.buf[(s.start+s.n)%len(s.buf)] = v
		s.n++
		return
	}
	s.buf[s.start] = v
	s.start = (s.start + 1) % len(s.buf)
}

func (s *series) at(i int) Value {
	return s.buf[(s.start+i)%len(s.buf)]
}

func (s *series) last() Value {
	if s.n == 0 {
		return nil
	}
	return s.at(s.n - 1)
}

func (s *series) copyOut() []Value {
	out := make([]Value, s.n)
	for i := 0; i < s.n; i++ {
		out[i] = s.at(i)
	}
	return out
}

// History is a bounded time-series store keyed by metric name.
//
// Thread Safety:
//   - AddSample takes the write lock; readers take the read lock and copy out.
//   - Readers never observe a partially written sample.
type History struct {
	capacity int
	now      func() time.Time

	mu     sync.RWMutex
	series map[string]*series
	lastTS float64
}

// HistoryOption configures a History.
type HistoryOption func(*History)

// WithClock overrides the time source used to stamp samples.
func WithClock(now func() time.Time) HistoryOption {
	return func(h *History) {
		h.now = now
	}
}

// NewHistory creates a History keeping capacity samples per series.
// A capacity of zero or less uses DefaultCapacity.
func NewHistory(capacity int, opts ...HistoryOption) *History {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	h := &History{
		capacity: capacity,
		now:      time.Now,
		series:   make(map[string]*series),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Capacity returns the per-series sample limit.
func (h *History) Capacity() int {
	return h.capacity
}

// AddSample stamps values with the current time and appends it.
//
// Keys not present in values but seen before get a nil entry so all series
// stay index-aligned. New keys start a series padded with nil for the samples
// recorded before the key appeared.
func (h *History) AddSample(values Sample) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ts := float64(h.now().UnixNano()) / 1e9
	if ts < h.lastTS {
		ts = h.lastTS
	}
	h.lastTS = ts

	prior := 0
	if s, ok := h.series[TimestampKey]; ok {
		prior = s.n
	}

	for key := range values {
		if key == TimestampKey {
			continue
		}
		if _, ok := h.series[key]; !ok {
			s := newSeries(h.capacity)
			for i := 0; i < prior; i++ {
				s.push(nil)
			}
			h.series[key] = s
		}
	}
	if _, ok := h.series[TimestampKey]; !ok {
		h.series[TimestampKey] = newSeries(h.capacity)
	}

	for key, s := range h.series {
		if key == TimestampKey {
			s.push(ts)
			continue
		}
		s.push(values[key])
	}
}

// GetHistory returns a copy of the series for key, oldest first.
// Unknown keys yield an empty slice.
func (h *History) GetHistory(key string) []Value {
	h.mu.RLock()
	defer h.mu.RUnlock()

	s, ok := h.series[key]
	if !ok {
		return []Value{}
	}
	return s.copyOut()
}

// Points returns the series for key paired with sample times, oldest first.
func (h *History) Points(key string) []Point {
	h.mu.RLock()
	defer h.mu.RUnlock()

	s, ok := h.series[key]
	ts := h.series[TimestampKey]
	if !ok || ts == nil {
		return []Point{}
	}

	points := make([]Point, s.n)
	for i := 0; i < s.n; i++ {
		sec, _ := ts.at(i).(float64)
		points[i] = Point{
			Time:  time.Unix(0, int64(sec*1e9)),
			Value: s.at(i),
		}
	}
	return points
}

// LatestSnapshot returns the most recent value of every known key.
func (h *History) LatestSnapshot() Sample {
	h.mu.RLock()
	defer h.mu.RUnlock()

	snap := make(Sample, len(h.series))
	for key, s := range h.series {
		snap[key] = s.last()
	}
	return snap
}

// Len returns the number of samples currently retained.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if s, ok := h.series[TimestampKey]; ok {
		return s.n
	}
	return 0
}

// Keys returns all known metric names, sorted.
func (h *History) Keys() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	keys := make([]string, 0, len(h.series))
	for key := range h.series {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
