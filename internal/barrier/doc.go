// Package barrier provides a single-use rendezvous point for a fixed number
// of goroutines.
//
// No participant returns from Wait with a nil error until every expected
// participant has arrived. A participant that never arrives cannot hang the
// others forever: each Wait is bounded by the barrier timeout, after which the
// barrier is broken and every current and future waiter receives ErrBroken.
//
// Usage:
//
//	b := barrier.New(len(sessions)+1, 10*time.Second)
//	for _, s := range sessions {
//	    go s.Shutdown(b)
//	}
//	if err := b.Wait(); err != nil {
//	    log.Warn("shutdown barrier broken", "error", err)
//	}
package barrier
