// Package telemetry owns the per-device telemetry pipeline.
//
// One Context exists per connected sensor board. It holds the board's link,
// identity and History. Exactly one Poller per Context reads the board on a
// fixed interval and appends each decoded sample to the History, which any
// number of display sessions read concurrently.
//
// # Ownership
//
// The link is owned by the Context and closed only by its Poller, once, after
// the Poller has observed the shutdown signal. Nothing else closes it.
//
// # History Layout
//
// Every sample carries a "timestamp" key. AddSample appends to every series
// the History knows about, so index i of every series refers to the same
// reading:
//
//	timestamp: [t1,  t2,  t3]
//	CPU_Power: [41,  44,  43]
//	GPU_Power: [nil, 120, 118]   // key first seen at t2
package telemetry
