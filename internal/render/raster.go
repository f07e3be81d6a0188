package render

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"
	"strings"
	"time"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/nerrad567/benchdash/internal/telemetry"
)

// Theme colours.
var (
	ColorBackground = color.RGBA{0, 0, 0, 255}
	ColorSection    = color.RGBA{252, 228, 119, 255}
	ColorCard       = color.RGBA{15, 15, 15, 255}
	ColorText       = color.RGBA{238, 238, 238, 255}
	ColorBorder     = color.RGBA{200, 200, 200, 255}
	ColorShutdown   = color.RGBA{255, 99, 71, 255}
	ColorInUse      = color.RGBA{90, 90, 90, 255}
	ColorMuted      = color.RGBA{120, 120, 120, 255}
)

// seriesColors cycles through graph line colours.
var seriesColors = []drawing.Color{
	drawing.ColorFromHex("fce477"),
	drawing.ColorFromHex("4fc3f7"),
	drawing.ColorFromHex("ff6347"),
	drawing.ColorFromHex("81c784"),
	drawing.ColorFromHex("ba68c8"),
	drawing.ColorFromHex("ffb74d"),
	drawing.ColorFromHex("e0e0e0"),
}

const lineHeight = 16

// Raster draws frames into RGBA images using the built-in 7x13 font.
//
// Thread Safety:
//   - Raster holds no mutable state and may be shared by every session.
type Raster struct {
	// Title is shown in the header of every page.
	Title string
}

// NewRaster creates a raster renderer with the default header title.
func NewRaster() *Raster {
	return &Raster{Title: "BENCHLAB TELEMETRY"}
}

// Render implements Renderer.
func (r *Raster) Render(st State) (image.Image, error) {
	img := image.NewRGBA(image.Rect(0, 0, ScreenWidth, ScreenHeight))
	fill(img, img.Bounds(), ColorBackground)

	switch st.Kind {
	case KindSplash:
		r.splash(img, r.Title, st.Message)
		return img, nil
	case KindShutdown:
		msg := st.Message
		if msg == "" {
			msg = "Shutting down..."
		}
		r.splash(img, "SHUTTING DOWN", msg)
		return img, nil
	case KindFleet:
		r.header(img, "SELECT DEVICE")
		r.fleet(img, st)
	case KindOverview:
		r.header(img, r.Title)
		r.overview(img, st)
	case KindGraph:
		r.header(img, r.Title)
		if err := r.graph(img, st); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("render: unknown page kind %d", st.Kind)
	}
	r.footer(img, st)
	return img, nil
}

func (r *Raster) splash(img *image.RGBA, title, message string) {
	y := ScreenHeight/2 - lineHeight
	centerText(img, title, y, ColorSection)
	if message != "" {
		centerText(img, message, y+2*lineHeight, ColorText)
	}
}

func (r *Raster) header(img *image.RGBA, text string) {
	fill(img, image.Rect(0, 0, ScreenWidth, HeaderHeight), ColorCard)
	hline(img, 0, ScreenWidth, HeaderHeight-1, ColorSection)
	centerText(img, text, HeaderHeight/2+5, ColorSection)
}

func (r *Raster) footer(img *image.RGBA, st State) {
	top := ScreenHeight - FooterHeight
	fill(img, image.Rect(0, top, ScreenWidth, ScreenHeight), ColorCard)
	hline(img, 0, ScreenWidth, top, ColorSection)

	buttons := FooterButtons(st.Kind)
	info := footerInfoRect(len(buttons))
	stroke(img, info, ColorBorder)
	drawText(img, info.Min.X+Padding, info.Min.Y+26, footerInfo(st), ColorText)

	for _, b := range buttons {
		c := ColorSection
		if b.ID == ButtonShutdown {
			c = ColorShutdown
		}
		fill(img, b.Rect, c)
		centerIn(img, b.Rect, b.Label, ColorBackground)
	}
}

func footerInfo(st State) string {
	parts := make([]string, 0, 3)
	if st.Display != "" {
		parts = append(parts, "Display: "+st.Display)
	}
	switch st.Kind {
	case KindFleet:
		parts = append(parts, fmt.Sprintf("%d device(s)", len(st.Devices)))
	case KindOverview, KindGraph:
		parts = append(parts, "Port: "+st.Address)
		if st.Identity.UID != "" {
			parts = append(parts, "UID: "+st.Identity.UID)
		}
	}
	return strings.Join(parts, " | ")
}

func (r *Raster) fleet(img *image.RGBA, st State) {
	rows := FleetRows(len(st.Devices))
	if len(st.Devices) == 0 {
		centerText(img, "No BENCHLAB devices found", ScreenHeight/2, ColorMuted)
		return
	}
	for i, rect := range rows {
		d := st.Devices[i]
		bg := ColorSection
		if d.InUse {
			bg = ColorInUse
		}
		fill(img, rect, bg)
		stroke(img, rect, ColorBorder)
		uid := d.Identity.UID
		if uid == "" {
			uid = "unknown"
		}
		centerIn(img, rect, fmt.Sprintf("Port: %s | UID: %s", d.Address, uid), ColorBackground)
	}
}

func (r *Raster) overview(img *image.RGBA, st State) {
	for _, card := range OverviewCards(st.Snapshot) {
		fill(img, card.Rect, ColorCard)
		stroke(img, card.Rect, ColorBorder)
		drawText(img, card.Rect.Min.X+Padding, card.Rect.Min.Y+lineHeight, card.Title, ColorSection)

		colW := 240
		x := card.Rect.Min.X + Padding
		y := card.Rect.Min.Y + 2*lineHeight + 4
		for _, key := range card.Metrics {
			if y > card.Rect.Max.Y-4 {
				x += colW
				y = card.Rect.Min.Y + 2*lineHeight + 4
				if x+colW > card.Rect.Max.X+Padding {
					break
				}
			}
			line := fmt.Sprintf("%s: %s", key, FormatValue(key, st.Snapshot[key]))
			drawText(img, x, y, line, ColorText)
			y += lineHeight
		}
	}
}

func (r *Raster) graph(img *image.RGBA, st State) error {
	chips := GraphChips(st.Metrics)
	chartTop := HeaderHeight + Padding
	for i, chip := range chips {
		var bg color.Color = seriesColors[i%len(seriesColors)]
		if st.Hidden[chip.Metric] {
			bg = ColorInUse
		}
		fill(img, chip.Rect, bg)
		centerIn(img, chip.Rect, chip.Metric, ColorBackground)
		chartTop = chip.Rect.Max.Y + Padding
	}

	area := image.Rect(Padding, chartTop, ScreenWidth-Padding, ScreenHeight-FooterHeight-Padding)
	plot, err := r.chart(st, area.Dx(), area.Dy())
	if err != nil {
		return err
	}
	if plot == nil {
		fill(img, area, ColorCard)
		centerIn(img, area, "Collecting data...", ColorMuted)
		return nil
	}
	draw.Draw(img, area, plot, plot.Bounds().Min, draw.Src)
	return nil
}

// chart renders visible metrics with go-chart. A nil image means there is
// nothing plottable yet.
func (r *Raster) chart(st State, width, height int) (image.Image, error) {
	var series []chart.Series
	for i, m := range st.Metrics {
		if st.Hidden[m] {
			continue
		}
		xs, ys := plottable(st.Series[m])
		if len(xs) == 0 {
			continue
		}
		if len(xs) == 1 {
			xs = append(xs, xs[0].Add(time.Second))
			ys = append(ys, ys[0])
		}
		series = append(series, chart.TimeSeries{
			Name:    m,
			XValues: xs,
			YValues: ys,
			Style: chart.Style{
				StrokeColor: seriesColors[i%len(seriesColors)],
				StrokeWidth: 2,
			},
		})
	}
	if len(series) == 0 {
		return nil, nil
	}

	axis := chart.Style{FontColor: drawing.ColorFromHex("eeeeee"), StrokeColor: drawing.ColorFromHex("c8c8c8")}
	ch := chart.Chart{
		Width:  width,
		Height: height,
		Background: chart.Style{
			FillColor: drawing.ColorFromHex("0f0f0f"),
			Padding:   chart.Box{Top: 14, Left: 16, Right: 12, Bottom: 28},
		},
		Canvas: chart.Style{FillColor: drawing.ColorFromHex("0f0f0f")},
		XAxis:  chart.XAxis{Style: axis, ValueFormatter: chart.TimeValueFormatterWithFormat("15:04:05")},
		YAxis:  chart.YAxis{Style: axis, Range: yRange(series)},
		Series: series,
	}

	var buf bytes.Buffer
	if err := ch.Render(chart.PNG, &buf); err != nil {
		return nil, fmt.Errorf("render: graph: %w", err)
	}
	img, err := png.Decode(&buf)
	if err != nil {
		return nil, fmt.Errorf("render: graph decode: %w", err)
	}
	return img, nil
}

// plottable drops points whose value is missing or not numeric.
func plottable(points []telemetry.Point) ([]time.Time, []float64) {
	xs := make([]time.Time, 0, len(points))
	ys := make([]float64, 0, len(points))
	for _, p := range points {
		v, ok := toFloat(p.Value)
		if !ok {
			continue
		}
		xs = append(xs, p.Time)
		ys = append(ys, v)
	}
	return xs, ys
}

// yRange pads flat series so the axis never has zero height.
func yRange(series []chart.Series) *chart.ContinuousRange {
	lo, hi := math.MaxFloat64, -math.MaxFloat64
	for _, s := range series {
		for _, v := range s.(chart.TimeSeries).YValues {
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
	}
	if hi <= lo {
		lo, hi = lo-1, hi+1
	}
	pad := (hi - lo) * 0.05
	return &chart.ContinuousRange{Min: lo - pad, Max: hi + pad}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, !math.IsNaN(n)
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}

// FormatValue formats a metric value with the unit implied by its name.
// Missing readings render as "--".
func FormatValue(key string, v any) string {
	f, ok := toFloat(v)
	if !ok {
		return "--"
	}
	switch {
	case strings.HasSuffix(key, "_Power"):
		return fmt.Sprintf("%.1f W", f)
	case strings.HasSuffix(key, "_Current"):
		return fmt.Sprintf("%.2f A", f)
	case strings.HasSuffix(key, "_Voltage"), strings.HasPrefix(key, "VIN_"), key == "Vdd", key == "Vref":
		return fmt.Sprintf("%.3f V", f)
	case strings.HasSuffix(key, "_Temp"), strings.HasPrefix(key, "Temp_Sensor_"):
		return fmt.Sprintf("%.1f C", f)
	case key == "Humidity", strings.HasSuffix(key, "Duty"):
		return fmt.Sprintf("%.0f %%", f)
	case strings.HasSuffix(key, "_RPM"):
		return fmt.Sprintf("%.0f rpm", f)
	default:
		return fmt.Sprintf("%g", f)
	}
}

// Drawing primitives.

func fill(img *image.RGBA, r image.Rectangle, c color.Color) {
	draw.Draw(img, r, image.NewUniform(c), image.Point{}, draw.Src)
}

func hline(img *image.RGBA, x0, x1, y int, c color.Color) {
	for x := x0; x < x1; x++ {
		img.Set(x, y, c)
	}
}

func stroke(img *image.RGBA, r image.Rectangle, c color.Color) {
	hline(img, r.Min.X, r.Max.X, r.Min.Y, c)
	hline(img, r.Min.X, r.Max.X, r.Max.Y-1, c)
	for y := r.Min.Y; y < r.Max.Y; y++ {
		img.Set(r.Min.X, y, c)
		img.Set(r.Max.X-1, y, c)
	}
}

func newDrawer(img *image.RGBA, c color.Color) *font.Drawer {
	return &font.Drawer{Dst: img, Src: image.NewUniform(c), Face: basicfont.Face7x13}
}

// drawText draws text with its baseline at y.
func drawText(img *image.RGBA, x, y int, text string, c color.Color) {
	dr := newDrawer(img, c)
	dr.Dot = fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)}
	dr.DrawString(text)
}

func centerText(img *image.RGBA, text string, y int, c color.Color) {
	dr := newDrawer(img, c)
	w := dr.MeasureString(text).Ceil()
	dr.Dot = fixed.Point26_6{X: fixed.I((ScreenWidth - w) / 2), Y: fixed.I(y)}
	dr.DrawString(text)
}

func centerIn(img *image.RGBA, r image.Rectangle, text string, c color.Color) {
	dr := newDrawer(img, c)
	w := dr.MeasureString(text).Ceil()
	x := r.Min.X + (r.Dx()-w)/2
	if x < r.Min.X {
		x = r.Min.X
	}
	dr.Dot = fixed.Point26_6{X: fixed.I(x), Y: fixed.I(r.Min.Y + r.Dy()/2 + 5)}
	dr.DrawString(text)
}
