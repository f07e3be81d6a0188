package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/benchdash/internal/barrier"
	"github.com/nerrad567/benchdash/internal/display"
	"github.com/nerrad567/benchdash/internal/render"
	"github.com/nerrad567/benchdash/internal/telemetry"
)

// Loop timing defaults.
const (
	DefaultTickInterval      = 50 * time.Millisecond
	DefaultKeepAliveInterval = 5 * time.Second
	DefaultSplashDuration    = 3 * time.Second
	DefaultDebounce          = 500 * time.Millisecond
)

// Fleet is the part of the manager a session talks to.
type Fleet interface {
	// Devices lists known sensor boards for the fleet page.
	Devices() []render.DeviceEntry

	// Attach registers sessionID on the context for address, creating it
	// and its poller if needed.
	Attach(ctx context.Context, address, sessionID string) (*telemetry.Context, error)

	// Detach removes sessionID from the context for address.
	Detach(address, sessionID string)

	// GracefulShutdown stops every session and poller.
	GracefulShutdown()
}

// Options configures a Session.
type Options struct {
	Handle   display.Handle
	Fleet    Fleet
	Renderer render.Renderer
	Logger   Logger

	TickInterval      time.Duration
	KeepAliveInterval time.Duration
	SplashDuration    time.Duration

	// Debounce ignores touches that arrive this soon after a page change.
	Debounce time.Duration
}

// Session drives one display.
//
// Thread Safety:
//   - Run executes on one goroutine; the keep-alive heartbeat on another.
//   - Page, GraphMetrics, Context and Running are safe from any goroutine.
//   - Shutdown may be called concurrently with Run and is idempotent.
type Session struct {
	id   string
	opts Options
	log  Logger

	mu        sync.Mutex
	page      Page
	pageSince time.Time
	address   string
	tctx      *telemetry.Context
	metrics   []string
	hidden    map[string]bool
	started   bool
	looping   bool
	stopped   bool

	running atomic.Bool

	stop     chan struct{}
	stopOnce sync.Once
	loopDone chan struct{}

	keepAliveStop chan struct{}
	keepAliveDone chan struct{}

	shutdownOnce sync.Once
	done         chan struct{}
}

// New creates a session for a display handle. Zero-valued intervals take
// their defaults.
func New(opts Options) *Session {
	if opts.TickInterval <= 0 {
		opts.TickInterval = DefaultTickInterval
	}
	if opts.KeepAliveInterval <= 0 {
		opts.KeepAliveInterval = DefaultKeepAliveInterval
	}
	if opts.SplashDuration < 0 {
		opts.SplashDuration = 0
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	log := opts.Logger
	if log == nil {
		log = noopLogger{}
	}
	return &Session{
		id:            uuid.NewString(),
		opts:          opts,
		log:           log,
		page:          PageFleet,
		stop:          make(chan struct{}),
		loopDone:      make(chan struct{}),
		keepAliveStop: make(chan struct{}),
		keepAliveDone: make(chan struct{}),
		done:          make(chan struct{}),
	}
}

// ID returns the session's unique identifier.
func (s *Session) ID() string {
	return s.id
}

// Serial returns the display serial.
func (s *Session) Serial() string {
	return s.opts.Handle.Serial()
}

// Start connects the display and starts the keep-alive heartbeat.
// A connect failure is fatal for the session and wraps display.ErrTransport.
func (s *Session) Start(ctx context.Context) error {
	if err := s.opts.Handle.Connect(ctx); err != nil {
		return fmt.Errorf("%w: connect %s: %w", display.ErrTransport, s.Serial(), err)
	}

	s.mu.Lock()
	s.started = true
	s.pageSince = time.Now()
	s.mu.Unlock()
	s.running.Store(true)

	go s.keepAlive()

	s.log.Info("display session started", "session", s.id, "display", s.Serial())
	return nil
}

// Run shows the startup splash and then runs the tick loop until ctx is
// cancelled or the session is shut down. Tick errors are logged and the loop
// continues.
func (s *Session) Run(ctx context.Context) {
	s.mu.Lock()
	if s.stopped || s.looping {
		s.mu.Unlock()
		return
	}
	s.looping = true
	s.mu.Unlock()
	defer close(s.loopDone)

	s.frame(render.State{Kind: render.KindSplash, Display: s.Serial(), Message: "Starting..."})
	if !s.sleep(ctx, s.opts.SplashDuration) {
		return
	}

	s.mu.Lock()
	s.pageSince = time.Now()
	s.mu.Unlock()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		default:
		}

		s.tick(ctx)

		if !s.sleep(ctx, s.opts.TickInterval) {
			return
		}
	}
}

// sleep waits for d and reports false if the loop should exit instead.
func (s *Session) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-s.stop:
		return false
	case <-timer.C:
		return true
	}
}

// tick processes at most one touch and pushes one frame.
func (s *Session) tick(ctx context.Context) {
	ev, ok, err := s.opts.Handle.PollTouch()
	if err != nil {
		s.log.Warn("touch poll failed", "session", s.id, "error", err)
	} else if ok && ev.Type == display.TouchPress {
		s.handleTouch(ctx, ev.X, ev.Y)
	}

	s.frame(s.state())
}

// frame renders and writes one page state, logging failures.
func (s *Session) frame(st render.State) {
	img, err := s.opts.Renderer.Render(st)
	if err != nil {
		s.log.Warn("render failed", "session", s.id, "page", st.Kind.String(), "error", err)
		return
	}
	if err := s.opts.Handle.WriteFrame(img); err != nil {
		s.log.Warn("frame write failed", "session", s.id, "error", err)
	}
}

// keepAlive sends heartbeats until the session stops.
func (s *Session) keepAlive() {
	defer close(s.keepAliveDone)
	ticker := time.NewTicker(s.opts.KeepAliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.keepAliveStop:
			return
		case <-ticker.C:
			if err := s.opts.Handle.KeepAlive(); err != nil {
				s.log.Warn("keep-alive failed", "session", s.id, "error", err)
			}
		}
	}
}

// Shutdown stops the session in step with the other participants of b:
// it stops the loop, waits at the barrier, shows the shutdown splash, stops
// the heartbeat and disconnects the display. A broken barrier is logged and
// cleanup continues. Calls after the first return immediately; use Done to
// wait for completion.
func (s *Session) Shutdown(b *barrier.Barrier) {
	s.shutdownOnce.Do(func() {
		defer close(s.done)

		s.running.Store(false)
		s.stopOnce.Do(func() { close(s.stop) })

		if b != nil {
			if err := b.Wait(); err != nil {
				s.log.Warn("shutdown barrier broken", "session", s.id, "error", err)
			}
		}

		s.mu.Lock()
		s.stopped = true
		looping, started := s.looping, s.started
		s.mu.Unlock()

		if looping {
			<-s.loopDone
		}
		if !started {
			return
		}

		s.frame(render.State{Kind: render.KindShutdown, Display: s.Serial()})

		close(s.keepAliveStop)
		<-s.keepAliveDone

		if err := s.opts.Handle.Disconnect(); err != nil {
			s.log.Warn("display disconnect failed", "session", s.id, "error", err)
		}
		s.log.Info("display session stopped", "session", s.id, "display", s.Serial())
	})
}

// Running reports whether the session is started and not shut down.
func (s *Session) Running() bool {
	return s.running.Load()
}

// Done is closed once Shutdown has finished cleaning up.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Page returns the current page.
func (s *Session) Page() Page {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.page
}

// GraphMetrics returns the metrics carried into the graph page.
func (s *Session) GraphMetrics() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.metrics...)
}

// Context returns the attached telemetry context, or nil on the fleet page.
func (s *Session) Context() *telemetry.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tctx
}
