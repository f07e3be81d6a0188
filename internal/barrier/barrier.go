package barrier

import (
	"sync"
	"time"
)

// Barrier is a single-use rendezvous for a fixed number of parties.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Barrier struct {
	parties int
	timeout time.Duration

	mu       sync.Mutex
	arrived  int
	released bool
	broken   bool

	release chan struct{}
	breakCh chan struct{}
}

// New creates a barrier for the given number of parties.
//
// A timeout of zero or less means waiters block until all parties arrive or
// Break is called.
func New(parties int, timeout time.Duration) *Barrier {
	if parties < 1 {
		parties = 1
	}
	return &Barrier{
		parties: parties,
		timeout: timeout,
		release: make(chan struct{}),
		breakCh: make(chan struct{}),
	}
}

// Parties returns the number of participants the barrier waits for.
func (b *Barrier) Parties() int {
	return b.parties
}

// Arrived returns how many participants have reached the barrier so far.
func (b *Barrier) Arrived() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.arrived
}

// Wait blocks until all parties have called Wait.
//
// Returns:
//   - error: nil once every party arrived, ErrBroken if the barrier timed out
//     or was broken before that happened
func (b *Barrier) Wait() error {
	b.mu.Lock()
	if b.broken {
		b.mu.Unlock()
		return ErrBroken
	}
	if b.released {
		b.mu.Unlock()
		return nil
	}
	b.arrived++
	if b.arrived >= b.parties {
		b.released = true
		close(b.release)
		b.mu.Unlock()
		return nil
	}
	b.mu.Unlock()

	var timeout <-chan time.Time
	if b.timeout > 0 {
		timer := time.NewTimer(b.timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case <-b.release:
		return nil
	case <-b.breakCh:
		return ErrBroken
	case <-timeout:
		if b.Break() {
			return ErrBroken
		}
		// Released concurrently with the timer firing.
		return nil
	}
}

// Break marks the barrier broken and wakes all waiters with ErrBroken.
//
// Returns false if the barrier had already released all parties, in which
// case it stays released.
func (b *Barrier) Break() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.released {
		return false
	}
	if !b.broken {
		b.broken = true
		close(b.breakCh)
	}
	return true
}

// Broken reports whether the barrier has been broken.
func (b *Barrier) Broken() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.broken
}
