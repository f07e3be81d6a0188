package fleet

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/nerrad567/benchdash/internal/display"
	"github.com/nerrad567/benchdash/internal/render"
	"github.com/nerrad567/benchdash/internal/sensor"
	"github.com/nerrad567/benchdash/internal/session"
	"github.com/nerrad567/benchdash/internal/telemetry"
)

// Shutdown defaults.
const (
	DefaultBarrierTimeout = 10 * time.Second
	DefaultCleanupTimeout = 10 * time.Second

	// maxConcurrentConnects bounds parallel display connects during discovery.
	maxConcurrentConnects = 4
)

// Inventory records discovered boards. Failures are logged, never fatal.
type Inventory interface {
	RecordDevice(ctx context.Context, address string, identity sensor.Identity) error
	RecordAttach(ctx context.Context, address string) error
}

// Config holds the manager's collaborators and tuning.
type Config struct {
	// Sensor side.
	Opener          sensor.Opener
	Scanner         sensor.Scanner
	Decoder         sensor.Decoder
	Sink            telemetry.Sink
	HistoryCapacity int
	PollInterval    time.Duration

	// Display side.
	Transport         display.Transport
	VendorID          uint16
	ProductID         uint16
	Renderer          render.Renderer
	TickInterval      time.Duration
	KeepAliveInterval time.Duration
	SplashDuration    time.Duration

	// Shutdown.
	BarrierTimeout time.Duration
	CleanupTimeout time.Duration

	// Inventory is optional.
	Inventory Inventory

	Logger Logger

	// absentParties adds barrier participants that never arrive.
	absentParties int
}

// Manager coordinates sensor contexts and display sessions.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - Registry and context maps are only touched under mu.
type Manager struct {
	cfg Config
	log Logger

	ctx    context.Context
	cancel context.CancelFunc

	// discoverMu serializes StartSessions so a serial is started once.
	discoverMu sync.Mutex

	// opening collapses concurrent opens of one address into a single open.
	opening singleflight.Group

	mu           sync.Mutex
	devices      map[string]sensor.Identity
	inUse        map[string]bool
	contexts     map[string]*telemetry.Context
	pollers      map[string]*telemetry.Poller
	sessions     map[string]*session.Session
	pollerStarts int
	shuttingDown bool

	shutdownDone chan struct{}
}

// New creates a Manager. Zero-valued tuning takes package defaults.
func New(cfg Config) *Manager {
	if cfg.Decoder == nil {
		cfg.Decoder = sensor.BlockDecoder{}
	}
	if cfg.VendorID == 0 {
		cfg.VendorID = display.DefaultVendorID
	}
	if cfg.ProductID == 0 {
		cfg.ProductID = display.DefaultProductID
	}
	if cfg.Renderer == nil {
		cfg.Renderer = render.NewRaster()
	}
	if cfg.BarrierTimeout <= 0 {
		cfg.BarrierTimeout = DefaultBarrierTimeout
	}
	if cfg.CleanupTimeout <= 0 {
		cfg.CleanupTimeout = DefaultCleanupTimeout
	}
	log := cfg.Logger
	if log == nil {
		log = noopLogger{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		cfg:          cfg,
		log:          log,
		ctx:          ctx,
		cancel:       cancel,
		devices:      make(map[string]sensor.Identity),
		inUse:        make(map[string]bool),
		contexts:     make(map[string]*telemetry.Context),
		pollers:      make(map[string]*telemetry.Poller),
		sessions:     make(map[string]*session.Session),
		shutdownDone: make(chan struct{}),
	}
}

// DiscoverSensorDevices scans for boards, briefly opening each one not
// already owned by a poller to read its identity. Results are merged into the
// registry; known addresses are never removed. Scan failures are logged and
// the current registry is returned.
func (m *Manager) DiscoverSensorDevices(ctx context.Context) []render.DeviceEntry {
	if m.cfg.Scanner == nil || m.cfg.Opener == nil {
		return m.Devices()
	}

	addresses, err := m.cfg.Scanner.Scan(ctx)
	if err != nil {
		m.log.Warn("sensor scan failed", "error", fmt.Errorf("%w: %w", ErrDiscovery, err))
		return m.Devices()
	}

	for _, address := range addresses {
		m.mu.Lock()
		owned := m.contexts[address] != nil
		m.mu.Unlock()
		if owned {
			continue
		}

		identity, err := m.probe(ctx, address)
		if err != nil {
			m.log.Warn("sensor probe failed", "address", address, "error", err)
			continue
		}

		m.mu.Lock()
		m.devices[address] = identity
		m.mu.Unlock()

		m.log.Debug("sensor discovered", "address", address, "uid", identity.UID)
		if m.cfg.Inventory != nil {
			if err := m.cfg.Inventory.RecordDevice(ctx, address, identity); err != nil {
				m.log.Warn("inventory record failed", "address", address, "error", err)
			}
		}
	}

	return m.Devices()
}

// probe opens address, reads its identity and closes it again.
func (m *Manager) probe(ctx context.Context, address string) (sensor.Identity, error) {
	link, err := m.cfg.Opener.Open(ctx, address)
	if err != nil {
		return sensor.Identity{}, err
	}
	defer link.Close()
	return link.ReadIdentity(ctx)
}

// Devices returns the registry in address order.
func (m *Manager) Devices() []render.DeviceEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]render.DeviceEntry, 0, len(m.devices))
	for address, identity := range m.devices {
		out = append(out, render.DeviceEntry{
			Address:  address,
			Identity: identity,
			InUse:    m.inUse[address],
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out
}

// Attach hands sessionID the telemetry context for address. If none exists
// one is created, the address is marked in use and exactly one poller is
// started for it. Open failures wrap telemetry.ErrLinkOpen.
//
// The board is opened outside the manager lock. Concurrent attaches to the
// same address share one open; attaches to other addresses, Devices and
// Detach are not held up by it.
//
// Parameters:
//   - ctx: Bounds the device open (not the poller's lifetime)
//   - address: Sensor address; unknown addresses are registered on success
//   - sessionID: Observer to register on the context
//
// Returns:
//   - *telemetry.Context: Shared context for address
//   - error: ErrShutdownInProgress, or a wrapped telemetry.ErrLinkOpen
func (m *Manager) Attach(ctx context.Context, address, sessionID string) (*telemetry.Context, error) {
	if c, err := m.join(address, sessionID); c != nil || err != nil {
		return c, err
	}

	v, err, _ := m.opening.Do(address, func() (any, error) {
		return m.openContext(ctx, address)
	})
	if err != nil {
		return nil, err
	}
	c := v.(*telemetry.Context)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.shuttingDown {
		return nil, ErrShutdownInProgress
	}
	c.Register(sessionID)
	m.log.Debug("session attached to telemetry context", "address", address, "session", sessionID)
	return c, nil
}

// join registers sessionID on an existing context. It returns a nil context
// and nil error when address has no context yet.
func (m *Manager) join(address, sessionID string) (*telemetry.Context, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.shuttingDown {
		return nil, ErrShutdownInProgress
	}
	c, ok := m.contexts[address]
	if !ok {
		return nil, nil
	}
	c.Register(sessionID)
	m.log.Debug("session joined telemetry context", "address", address, "session", sessionID)
	return c, nil
}

// openContext opens address, publishes its context and starts its poller.
// Only one call per address runs at a time (see Manager.opening).
func (m *Manager) openContext(ctx context.Context, address string) (*telemetry.Context, error) {
	m.mu.Lock()
	if c, ok := m.contexts[address]; ok {
		m.mu.Unlock()
		return c, nil
	}
	m.mu.Unlock()

	c, err := telemetry.NewContext(ctx, address, m.cfg.Opener, m.cfg.HistoryCapacity, m.log)
	if err != nil {
		return nil, err
	}
	p, err := telemetry.NewPoller(c, telemetry.PollerConfig{
		Interval: m.cfg.PollInterval,
		Decoder:  m.cfg.Decoder,
		Sink:     m.cfg.Sink,
		Logger:   m.log,
	})
	if err != nil {
		m.release(c)
		return nil, err
	}

	m.mu.Lock()
	if m.shuttingDown {
		m.mu.Unlock()
		m.release(c)
		return nil, ErrShutdownInProgress
	}
	m.contexts[address] = c
	m.pollers[address] = p
	m.inUse[address] = true
	if id, known := m.devices[address]; !known || id.UID == "" {
		m.devices[address] = c.Identity()
	}
	m.pollerStarts++
	go p.Run(m.ctx)
	m.mu.Unlock()

	m.log.Info("telemetry context opened", "address", address)

	if m.cfg.Inventory != nil {
		if err := m.cfg.Inventory.RecordAttach(ctx, address); err != nil {
			m.log.Warn("inventory attach record failed", "address", address, "error", err)
		}
	}
	return c, nil
}

// release closes the link of a context that never got a running poller.
func (m *Manager) release(c *telemetry.Context) {
	if err := c.Close(); err != nil {
		m.log.Warn("error closing sensor link", "address", c.Address(), "error", err)
	}
}

// Detach removes sessionID from the context for address. The context and its
// poller keep running.
func (m *Manager) Detach(address, sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.contexts[address]; ok {
		c.Deregister(sessionID)
	}
}

// Context returns the telemetry context for address, if one exists.
func (m *Manager) Context(address string) (*telemetry.Context, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.contexts[address]
	return c, ok
}

// PollerCount returns how many pollers have been started.
func (m *Manager) PollerCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pollerStarts
}

// DiscoverDisplays returns display handles not already driven by a session.
func (m *Manager) DiscoverDisplays(ctx context.Context) ([]display.Handle, error) {
	if m.cfg.Transport == nil {
		return nil, nil
	}
	handles, err := m.cfg.Transport.Discover(ctx, m.cfg.VendorID, m.cfg.ProductID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDiscovery, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	fresh := handles[:0:0]
	for _, h := range handles {
		if _, running := m.sessions[h.Serial()]; running {
			continue
		}
		fresh = append(fresh, h)
	}
	return fresh, nil
}

// StartSessions discovers new displays and starts a session on each.
// Displays that fail to connect are logged and left out of the live set.
//
// Returns:
//   - int: Number of sessions started
//   - error: Wrapped ErrDiscovery if the transport cannot enumerate displays
func (m *Manager) StartSessions(ctx context.Context) (int, error) {
	m.discoverMu.Lock()
	defer m.discoverMu.Unlock()

	handles, err := m.DiscoverDisplays(ctx)
	if err != nil {
		return 0, err
	}

	var (
		g       errgroup.Group
		startMu sync.Mutex
		started []*session.Session
	)
	g.SetLimit(maxConcurrentConnects)
	for _, h := range handles {
		h := h
		g.Go(func() error {
			s := session.New(session.Options{
				Handle:            h,
				Fleet:             m,
				Renderer:          m.cfg.Renderer,
				Logger:            m.log,
				TickInterval:      m.cfg.TickInterval,
				KeepAliveInterval: m.cfg.KeepAliveInterval,
				SplashDuration:    m.cfg.SplashDuration,
			})
			if err := s.Start(ctx); err != nil {
				m.log.Warn("display session failed to start", "display", h.Serial(), "error", err)
				return nil
			}
			startMu.Lock()
			started = append(started, s)
			startMu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	count := 0
	for _, s := range started {
		m.mu.Lock()
		_, dup := m.sessions[s.Serial()]
		late := m.shuttingDown
		if !dup && !late {
			m.sessions[s.Serial()] = s
		}
		m.mu.Unlock()

		if dup || late {
			s.Shutdown(nil)
			continue
		}
		go s.Run(m.ctx)
		count++
	}
	return count, nil
}

// Sessions returns the live sessions in display-serial order.
func (m *Manager) Sessions() []*session.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*session.Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Serial() < out[j].Serial() })
	return out
}

// Watch rescans sensors and displays every interval until ctx is cancelled
// or shutdown begins.
func (m *Manager) Watch(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.DiscoverSensorDevices(ctx)
			if n, err := m.StartSessions(ctx); err != nil {
				m.log.Warn("display rediscovery failed", "error", err)
			} else if n > 0 {
				m.log.Info("display sessions started", "count", n)
			}
		}
	}
}
