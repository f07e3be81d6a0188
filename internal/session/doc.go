// Package session runs one display: a fixed-tick loop that polls touch input,
// drives the Fleet/Overview/Graph page machine and pushes rendered frames.
//
// A Session owns its display handle for its whole lifetime. It never opens
// sensor links itself; telemetry is obtained by attaching to a shared
// telemetry.Context through the Fleet it was created with.
package session
