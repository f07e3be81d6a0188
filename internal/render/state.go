package render

import (
	"image"

	"github.com/nerrad567/benchdash/internal/sensor"
	"github.com/nerrad567/benchdash/internal/telemetry"
)

// Kind selects what a frame shows.
type Kind int

const (
	KindSplash Kind = iota
	KindFleet
	KindOverview
	KindGraph
	KindShutdown
)

// String returns the kind name used in logs.
func (k Kind) String() string {
	switch k {
	case KindSplash:
		return "splash"
	case KindFleet:
		return "fleet"
	case KindOverview:
		return "overview"
	case KindGraph:
		return "graph"
	case KindShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// DeviceEntry is one row on the fleet page.
type DeviceEntry struct {
	Address  string
	Identity sensor.Identity
	InUse    bool
}

// State is everything needed to draw one frame.
type State struct {
	Kind Kind

	// Display is the serial of the display being drawn (footer info).
	Display string

	// Devices lists selectable boards (KindFleet).
	Devices []DeviceEntry

	// Address and Identity describe the attached board (KindOverview, KindGraph).
	Address  string
	Identity sensor.Identity

	// Snapshot is the latest reading (KindOverview).
	Snapshot telemetry.Sample

	// Metrics are the graphed metric names and Hidden the toggled-off subset (KindGraph).
	Metrics []string
	Hidden  map[string]bool

	// Series holds per-metric points for the graph (KindGraph).
	Series map[string][]telemetry.Point

	// Message is an optional status line (KindSplash, KindShutdown).
	Message string
}

// Renderer draws a frame for a page state.
type Renderer interface {
	Render(state State) (image.Image, error)
}
