package fleet

import (
	"time"

	"github.com/nerrad567/benchdash/internal/barrier"
	"github.com/nerrad567/benchdash/internal/session"
	"github.com/nerrad567/benchdash/internal/telemetry"
)

// GracefulShutdown stops every session in lockstep and then releases shared
// state. It returns once cleanup has finished or timed out. Calls made while
// shutdown is running, or after it finished, return immediately.
func (m *Manager) GracefulShutdown() {
	m.mu.Lock()
	if m.shuttingDown {
		m.mu.Unlock()
		return
	}
	m.shuttingDown = true
	m.cancel()

	live := make([]*session.Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		if s.Running() {
			live = append(live, s)
		}
	}
	m.mu.Unlock()
	defer close(m.shutdownDone)

	m.log.Info("graceful shutdown started", "sessions", len(live))

	if len(live) > 0 {
		b := barrier.New(len(live)+1+m.cfg.absentParties, m.cfg.BarrierTimeout)
		for _, s := range live {
			go s.Shutdown(b)
		}
		if err := b.Wait(); err != nil {
			m.log.Warn("shutdown barrier broken, continuing cleanup",
				"arrived", b.Arrived(),
				"parties", b.Parties(),
				"error", err,
			)
		}
		m.awaitCleanup(live)
	}

	m.releaseAll()
	m.log.Info("graceful shutdown complete")
}

// awaitCleanup waits for every session's cleanup, bounded by CleanupTimeout.
func (m *Manager) awaitCleanup(live []*session.Session) {
	timer := time.NewTimer(m.cfg.CleanupTimeout)
	defer timer.Stop()
	for _, s := range live {
		select {
		case <-s.Done():
		case <-timer.C:
			m.log.Warn("session cleanup timed out", "display", s.Serial())
			return
		}
	}
}

// releaseAll clears session bookkeeping and waits, bounded, for pollers to
// close their own links.
func (m *Manager) releaseAll() {
	m.mu.Lock()
	pollers := make([]*telemetry.Poller, 0, len(m.pollers))
	for address, p := range m.pollers {
		pollers = append(pollers, p)
		m.inUse[address] = false
	}
	for _, c := range m.contexts {
		for _, id := range c.Sessions() {
			c.Deregister(id)
		}
	}
	clear(m.sessions)
	m.mu.Unlock()

	timer := time.NewTimer(m.cfg.CleanupTimeout)
	defer timer.Stop()
	for _, p := range pollers {
		select {
		case <-p.Done():
		case <-timer.C:
			m.log.Warn("poller did not stop before cleanup timeout")
			return
		}
	}
}

// Done is closed when GracefulShutdown has finished.
func (m *Manager) Done() <-chan struct{} {
	return m.shutdownDone
}

// Wait blocks until GracefulShutdown has finished.
func (m *Manager) Wait() {
	<-m.shutdownDone
}

// ShuttingDown reports whether shutdown has begun.
func (m *Manager) ShuttingDown() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.shuttingDown
}
