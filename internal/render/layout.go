package render

import (
	"image"
	"sort"
	"strconv"
	"strings"

	"github.com/nerrad567/benchdash/internal/display"
	"github.com/nerrad567/benchdash/internal/sensor"
	"github.com/nerrad567/benchdash/internal/telemetry"
)

// Theme geometry.
const (
	ScreenWidth  = display.ScreenWidth
	ScreenHeight = display.ScreenHeight
	HeaderHeight = 60
	FooterHeight = 56
	Padding      = 8

	buttonWidth = 120

	fleetStartY    = HeaderHeight + 20
	fleetRowHeight = 60
	fleetRowMargin = 20
	fleetLeft      = 50
	fleetRight     = 966

	topCardHeight = 160
	chipHeight    = 32
)

// ButtonID identifies a footer button.
type ButtonID string

const (
	ButtonShutdown     ButtonID = "shutdown"
	ButtonSelectDevice ButtonID = "select_device"
	ButtonOverview     ButtonID = "overview"
)

// Button is a footer button and its hit box.
type Button struct {
	ID    ButtonID
	Label string
	Rect  image.Rectangle
}

// Card is an overview card and the metrics it opens in the graph page.
type Card struct {
	Title   string
	Rect    image.Rectangle
	Metrics []string
}

// Chip is a metric toggle on the graph page.
type Chip struct {
	Metric string
	Rect   image.Rectangle
}

// Hit reports whether the point lies in r, edges included.
func Hit(r image.Rectangle, x, y int) bool {
	return x >= r.Min.X && x <= r.Max.X && y >= r.Min.Y && y <= r.Max.Y
}

// footerInner returns the footer's inner content band.
func footerInner() (top, bottom int) {
	return ScreenHeight - FooterHeight + Padding, ScreenHeight - Padding
}

// FooterButtons lays out the footer buttons for a page, rightmost first.
func FooterButtons(kind Kind) []Button {
	var ids []Button
	switch kind {
	case KindFleet:
		ids = []Button{{ID: ButtonShutdown, Label: "Shutdown"}}
	case KindOverview:
		ids = []Button{
			{ID: ButtonShutdown, Label: "Shutdown"},
			{ID: ButtonSelectDevice, Label: "Select Device"},
		}
	case KindGraph:
		ids = []Button{{ID: ButtonOverview, Label: "Overview"}}
	default:
		return nil
	}

	top, bottom := footerInner()
	x := ScreenWidth - Padding - buttonWidth
	for i := range ids {
		ids[i].Rect = image.Rect(x, top, x+buttonWidth, bottom)
		x -= buttonWidth + Padding
	}
	return ids
}

// footerInfoRect is the info box left of the buttons.
func footerInfoRect(buttons int) image.Rectangle {
	top, bottom := footerInner()
	right := ScreenWidth - Padding
	if buttons > 0 {
		right -= buttons*buttonWidth + (buttons-1)*Padding + Padding
	}
	return image.Rect(Padding, top, right, bottom)
}

// FleetRows returns the hit box of each selectable device row.
// Rows that would overlap the footer are omitted.
func FleetRows(n int) []image.Rectangle {
	limit := ScreenHeight - FooterHeight
	rows := make([]image.Rectangle, 0, n)
	for i := 0; i < n; i++ {
		y0 := fleetStartY + i*(fleetRowHeight+fleetRowMargin)
		y1 := y0 + fleetRowHeight
		if y1 > limit {
			break
		}
		rows = append(rows, image.Rect(fleetLeft, y0, fleetRight, y1))
	}
	return rows
}

// OverviewCards lays out the overview cards for the keys present in snap.
func OverviewCards(snap telemetry.Sample) []Card {
	totalTop := ScreenWidth - 4*Padding
	col1 := int(float64(totalTop)*0.25) - 3
	col2 := col1
	col3 := totalTop - col1 - col2 - 1

	x1 := Padding
	x2 := x1 + col1 + Padding
	x3 := x2 + col2 + Padding
	topY := HeaderHeight + Padding

	cards := []Card{
		{
			Title:   "SUMMARY",
			Rect:    image.Rect(x1, topY, x1+col1, topY+topCardHeight),
			Metrics: []string{"SYS_Power", "CPU_Power", "GPU_Power", "MB_Power"},
		},
		{
			Title: "TEMPERATURES",
			Rect:  image.Rect(x2, topY, x2+col2, topY+topCardHeight),
			Metrics: []string{
				"Chip_Temp", "Ambient_Temp", "Humidity",
				"Temp_Sensor_1", "Temp_Sensor_2", "Temp_Sensor_3", "Temp_Sensor_4",
			},
		},
		{
			Title:   "FANS",
			Rect:    image.Rect(x3, topY, x3+col3, topY+topCardHeight),
			Metrics: keysWithPrefix(snap, "Fan"),
		},
	}

	bottomY := topY + topCardHeight + Padding
	bottomH := ScreenHeight - FooterHeight - Padding - bottomY
	colW := (ScreenWidth - 5*Padding) / 4
	colX := func(i int) int { return Padding + i*(colW+Padding) }

	rails := func(suffix string) []string {
		var out []string
		for _, r := range sensor.RailNames {
			key := r + "_" + suffix
			if _, ok := snap[key]; ok {
				out = append(out, key)
			}
		}
		return out
	}

	vins := append(keysWithPrefix(snap, "VIN_"), "Vdd", "Vref")

	cards = append(cards,
		Card{Title: "POWER", Rect: image.Rect(colX(0), bottomY, colX(0)+colW, bottomY+bottomH), Metrics: rails("Power")},
		Card{Title: "CURRENT", Rect: image.Rect(colX(1), bottomY, colX(1)+colW, bottomY+bottomH), Metrics: rails("Current")},
		Card{Title: "VOLTAGE", Rect: image.Rect(colX(2), bottomY, colX(2)+colW, bottomY+bottomH), Metrics: rails("Voltage")},
		Card{Title: "VIN", Rect: image.Rect(colX(3), bottomY, colX(3)+colW, bottomY+bottomH), Metrics: vins},
	)
	return cards
}

// GraphChips lays out one toggle chip per metric below the header.
func GraphChips(metrics []string) []Chip {
	chips := make([]Chip, 0, len(metrics))
	x, y := Padding, HeaderHeight+Padding
	for _, m := range metrics {
		w := 7*len(m) + 16
		if x+w > ScreenWidth-Padding {
			x = Padding
			y += chipHeight + Padding
		}
		chips = append(chips, Chip{Metric: m, Rect: image.Rect(x, y, x+w, y+chipHeight)})
		x += w + Padding
	}
	return chips
}

// keysWithPrefix returns snapshot keys with prefix in natural order
// (Fan2 before Fan10, VIN_2 before VIN_10).
func keysWithPrefix(snap telemetry.Sample, prefix string) []string {
	var keys []string
	for k := range snap {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		return naturalLess(keys[i], keys[j])
	})
	return keys
}

// naturalLess compares strings treating embedded digit runs as numbers.
func naturalLess(a, b string) bool {
	for a != "" && b != "" {
		da, ra := leadingNumber(a)
		db, rb := leadingNumber(b)
		if da >= 0 && db >= 0 {
			if da != db {
				return da < db
			}
			a, b = ra, rb
			continue
		}
		if a[0] != b[0] {
			return a[0] < b[0]
		}
		a, b = a[1:], b[1:]
	}
	return len(a) < len(b)
}

// leadingNumber parses a leading digit run, returning -1 if there is none.
func leadingNumber(s string) (int, string) {
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i == 0 {
		return -1, s
	}
	n, err := strconv.Atoi(s[:i])
	if err != nil {
		return -1, s
	}
	return n, s[i:]
}
