// Package fleet owns the device registry, the shared telemetry contexts and
// the live display sessions, and runs the coordinated shutdown.
//
// One telemetry context (and exactly one poller) exists per sensor address no
// matter how many displays observe it. Contexts live until shutdown even when
// their last observer detaches.
//
// Shutdown protocol:
//
//  1. A second call while shutdown is running is a no-op.
//  2. The manager context is cancelled; pollers and session loops observe it.
//  3. The running sessions are snapshotted (N) and a barrier of N+1 is built.
//  4. Each session stops, waits at the barrier, shows the shutdown splash,
//     stops its heartbeat and disconnects its display.
//  5. The manager waits at the barrier, then for every session's cleanup.
//  6. Shared state is released; pollers close their own links.
//
// A participant that never reaches the barrier breaks it after the barrier
// timeout, and cleanup continues best-effort.
package fleet
