package telemetry

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/nerrad567/benchdash/internal/sensor"
)

// Context is the live, pollable representation of one sensor board.
//
// It owns the board's link and History and tracks which display sessions are
// currently observing it. It never controls session lifetime.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Context struct {
	address  string
	link     sensor.Link
	identity sensor.Identity
	history  *History

	mu       sync.RWMutex
	sessions map[string]struct{}

	pollerStarted atomic.Bool
	closeOnce     sync.Once
	closeErr      error
}

// NewContext opens the board at address and prepares its History.
//
// The identity is read once. Failure to read it is logged and the context is
// still created with an empty identity.
//
// Parameters:
//   - ctx: Context for the open and identity reads
//   - address: Board address (serial port name)
//   - opener: Link opener
//   - capacity: Per-series History capacity (<= 0 uses DefaultCapacity)
//   - logger: Logger for identity warnings (may be nil)
//
// Returns:
//   - *Context: Context owning the open link
//   - error: ErrLinkOpen (wrapped) if the board cannot be opened
func NewContext(ctx context.Context, address string, opener sensor.Opener, capacity int, logger Logger) (*Context, error) {
	if logger == nil {
		logger = noopLogger{}
	}

	link, err := opener.Open(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrLinkOpen, address, err)
	}

	identity, err := link.ReadIdentity(ctx)
	if err != nil {
		logger.Warn("failed to read device identity",
			"address", address,
			"error", err,
		)
	} else {
		logger.Info("device identity read",
			"address", address,
			"uid", identity.UID,
			"firmware", identity.Firmware,
		)
	}

	return &Context{
		address:  address,
		link:     link,
		identity: identity,
		history:  NewHistory(capacity),
		sessions: make(map[string]struct{}),
	}, nil
}

// Address returns the board address.
func (c *Context) Address() string {
	return c.address
}

// Identity returns the identity read when the context was created.
func (c *Context) Identity() sensor.Identity {
	return c.identity
}

// History returns the shared telemetry history.
func (c *Context) History() *History {
	return c.history
}

// Register attaches a session. Registering twice is a no-op.
func (c *Context) Register(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessions[sessionID] = struct{}{}
}

// Deregister detaches a session and reports whether it was attached.
// The poller and history are unaffected.
func (c *Context) Deregister(sessionID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.sessions[sessionID]; !ok {
		return false
	}
	delete(c.sessions, sessionID)
	return true
}

// Sessions returns the IDs of attached sessions, sorted.
func (c *Context) Sessions() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]string, 0, len(c.sessions))
	for id := range c.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// SessionCount returns the number of attached sessions.
func (c *Context) SessionCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.sessions)
}

// Close releases the board's link. Only the first call closes it; later
// calls return the first result. A running poller calls Close on exit, so
// callers only need it for a context whose poller never ran.
func (c *Context) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.link.Close()
	})
	return c.closeErr
}
