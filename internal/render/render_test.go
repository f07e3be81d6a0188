package render

import (
	"image"
	"reflect"
	"testing"
	"time"

	"github.com/nerrad567/benchdash/internal/sensor"
	"github.com/nerrad567/benchdash/internal/telemetry"
)

func TestFooterButtons(t *testing.T) {
	tests := []struct {
		name string
		kind Kind
		want []Button
	}{
		{
			name: "fleet",
			kind: KindFleet,
			want: []Button{{ID: ButtonShutdown, Label: "Shutdown", Rect: image.Rect(888, 544, 1008, 584)}},
		},
		{
			name: "overview",
			kind: KindOverview,
			want: []Button{
				{ID: ButtonShutdown, Label: "Shutdown", Rect: image.Rect(888, 544, 1008, 584)},
				{ID: ButtonSelectDevice, Label: "Select Device", Rect: image.Rect(760, 544, 880, 584)},
			},
		},
		{
			name: "graph",
			kind: KindGraph,
			want: []Button{{ID: ButtonOverview, Label: "Overview", Rect: image.Rect(888, 544, 1008, 584)}},
		},
		{name: "splash", kind: KindSplash, want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FooterButtons(tt.kind)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("FooterButtons(%v) = %+v, want %+v", tt.kind, got, tt.want)
			}
		})
	}
}

func TestFleetRows(t *testing.T) {
	rows := FleetRows(2)
	if len(rows) != 2 {
		t.Fatalf("len(rows) = %d, want 2", len(rows))
	}
	if rows[0] != image.Rect(50, 80, 966, 140) {
		t.Errorf("rows[0] = %v", rows[0])
	}
	if rows[1] != image.Rect(50, 160, 966, 220) {
		t.Errorf("rows[1] = %v", rows[1])
	}

	many := FleetRows(20)
	last := many[len(many)-1]
	if last.Max.Y > ScreenHeight-FooterHeight {
		t.Errorf("last row %v overlaps footer", last)
	}
	if len(many) >= 20 {
		t.Errorf("expected rows to be clipped, got %d", len(many))
	}
}

func TestHitIncludesEdges(t *testing.T) {
	r := image.Rect(10, 10, 20, 20)
	for _, p := range []image.Point{{10, 10}, {20, 20}, {15, 12}} {
		if !Hit(r, p.X, p.Y) {
			t.Errorf("Hit(%v, %v) = false", r, p)
		}
	}
	if Hit(r, 21, 15) || Hit(r, 9, 15) {
		t.Error("Hit outside rectangle reported true")
	}
}

func TestOverviewCards(t *testing.T) {
	snap := telemetry.Sample(sensor.Translate(sensor.Block{}))
	delete(snap, "HPWR2_Power")

	cards := OverviewCards(snap)
	byTitle := make(map[string]Card, len(cards))
	for _, c := range cards {
		byTitle[c.Title] = c
	}

	summary := byTitle["SUMMARY"]
	if !reflect.DeepEqual(summary.Metrics, []string{"SYS_Power", "CPU_Power", "GPU_Power", "MB_Power"}) {
		t.Errorf("SUMMARY metrics = %v", summary.Metrics)
	}
	if summary.Rect != image.Rect(8, 68, 251, 228) {
		t.Errorf("SUMMARY rect = %v", summary.Rect)
	}

	power := byTitle["POWER"]
	if len(power.Metrics) != len(sensor.RailNames)-1 {
		t.Errorf("POWER metrics = %v, want missing rail skipped", power.Metrics)
	}
	if power.Metrics[0] != "EPS1_Power" {
		t.Errorf("POWER first metric = %q", power.Metrics[0])
	}

	fans := byTitle["FANS"].Metrics
	if len(fans) == 0 || fans[0] != "Fan1_Duty" {
		t.Fatalf("FANS metrics = %v", fans)
	}
	if fans[len(fans)-1] != "FanExtDuty" {
		t.Errorf("FANS last = %q, want FanExtDuty", fans[len(fans)-1])
	}

	vin := byTitle["VIN"].Metrics
	if vin[1] != "VIN_1" || vin[2] != "VIN_2" || vin[len(vin)-2] != "Vdd" || vin[len(vin)-1] != "Vref" {
		t.Errorf("VIN metrics order = %v", vin)
	}

	for _, c := range cards {
		if c.Rect.Max.Y > ScreenHeight-FooterHeight {
			t.Errorf("card %s overlaps footer: %v", c.Title, c.Rect)
		}
	}
}

func TestNaturalLess(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{"VIN_2", "VIN_10", true},
		{"VIN_10", "VIN_2", false},
		{"Fan1_Duty", "Fan1_RPM", true},
		{"Fan9_RPM", "FanExtDuty", true},
		{"a", "a", false},
	}
	for _, tt := range tests {
		if got := naturalLess(tt.a, tt.b); got != tt.want {
			t.Errorf("naturalLess(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestFormatValue(t *testing.T) {
	tests := []struct {
		key  string
		v    any
		want string
	}{
		{"CPU_Power", 123.46, "123.5 W"},
		{"EPS1_Current", 1.234, "1.23 A"},
		{"12V_Voltage", 12.1, "12.100 V"},
		{"VIN_3", 1.5, "1.500 V"},
		{"Chip_Temp", 45.6, "45.6 C"},
		{"Temp_Sensor_2", nil, "--"},
		{"Humidity", 40.0, "40 %"},
		{"Fan1_RPM", 1200.0, "1200 rpm"},
		{"Fan1_Duty", 55.0, "55 %"},
		{"Other", 2.5, "2.5"},
		{"Other", "text", "--"},
	}
	for _, tt := range tests {
		if got := FormatValue(tt.key, tt.v); got != tt.want {
			t.Errorf("FormatValue(%q, %v) = %q, want %q", tt.key, tt.v, got, tt.want)
		}
	}
}

func TestGraphChipsWrap(t *testing.T) {
	metrics := make([]string, 0, 12)
	for _, r := range sensor.RailNames {
		metrics = append(metrics, r+"_Power")
	}
	chips := GraphChips(metrics)
	if len(chips) != len(metrics) {
		t.Fatalf("len(chips) = %d", len(chips))
	}
	for _, c := range chips {
		if c.Rect.Max.X > ScreenWidth-Padding {
			t.Errorf("chip %s exceeds screen: %v", c.Metric, c.Rect)
		}
	}
	if chips[len(chips)-1].Rect.Min.Y == chips[0].Rect.Min.Y {
		t.Error("expected chips to wrap onto a second row")
	}
}

func TestRasterRendersEveryKind(t *testing.T) {
	now := time.Unix(1700000000, 0)
	points := []telemetry.Point{
		{Time: now, Value: 10.0},
		{Time: now.Add(100 * time.Millisecond), Value: nil},
		{Time: now.Add(200 * time.Millisecond), Value: 12.0},
	}
	snap := telemetry.Sample(sensor.Translate(sensor.Block{}))

	states := []State{
		{Kind: KindSplash},
		{Kind: KindShutdown},
		{Kind: KindFleet},
		{Kind: KindFleet, Display: "VDISP0", Devices: []DeviceEntry{
			{Address: "COM7", Identity: sensor.Identity{UID: "ABC"}},
			{Address: "COM8", InUse: true},
		}},
		{Kind: KindOverview, Address: "COM7", Snapshot: snap},
		{Kind: KindOverview, Address: "COM7"},
		{Kind: KindGraph, Metrics: []string{"CPU_Power", "GPU_Power"}},
		{Kind: KindGraph, Metrics: []string{"CPU_Power", "GPU_Power"},
			Series: map[string][]telemetry.Point{"CPU_Power": points, "GPU_Power": points[:1]}},
		{Kind: KindGraph, Metrics: []string{"CPU_Power"}, Hidden: map[string]bool{"CPU_Power": true},
			Series: map[string][]telemetry.Point{"CPU_Power": points}},
	}

	r := NewRaster()
	for _, st := range states {
		t.Run(st.Kind.String(), func(t *testing.T) {
			img, err := r.Render(st)
			if err != nil {
				t.Fatalf("Render() error = %v", err)
			}
			if img.Bounds() != image.Rect(0, 0, ScreenWidth, ScreenHeight) {
				t.Errorf("bounds = %v", img.Bounds())
			}
		})
	}
}

func TestRasterUnknownKind(t *testing.T) {
	if _, err := NewRaster().Render(State{Kind: Kind(99)}); err == nil {
		t.Error("expected error for unknown kind")
	}
}
