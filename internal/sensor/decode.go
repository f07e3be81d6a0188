package sensor

import (
	"fmt"
	"math"
)

// Rail labels in PowerReadings order groups.
var (
	epsRails  = []string{"EPS1", "EPS2"}
	atxRails  = []string{"12V", "5V", "5VSB", "3.3V"}
	atxIndex  = []int{5, 3, 4, 2}
	pcieRails = []string{"PCIE8_1", "PCIE8_2", "PCIE8_3", "HPWR1", "HPWR2"}
)

// RailNames lists every rail in display order.
var RailNames = []string{
	"EPS1", "EPS2", "12V", "5V", "5VSB", "3.3V",
	"PCIE8_1", "PCIE8_2", "PCIE8_3", "HPWR1", "HPWR2",
}

// BlockDecoder decodes BENCHLAB SensorStructs into a flat metric map.
type BlockDecoder struct{}

// Decode implements Decoder.
//
// Voltages, currents and power are converted from milli-units. Temperatures
// are in tenths of a degree; readings outside +/-1000 C are reported as nil.
func (BlockDecoder) Decode(raw RawBlock) (map[string]any, error) {
	b, err := ParseBlock(raw)
	if err != nil {
		return nil, err
	}
	return Translate(b), nil
}

// Translate converts a parsed block into named metric values.
func Translate(b Block) map[string]any {
	data := make(map[string]any, 96)

	milli := func(v int32) float64 { return float64(v) / 1000 }

	var cpu, gpu, mb float64
	for i := 0; i < 2; i++ {
		cpu += milli(b.Power[i].Power)
	}
	for i := 2; i < 6; i++ {
		mb += milli(b.Power[i].Power)
	}
	for i := 6; i < PowerCount; i++ {
		gpu += milli(b.Power[i].Power)
	}
	data["SYS_Power"] = cpu + gpu + mb
	data["CPU_Power"] = cpu
	data["GPU_Power"] = gpu
	data["MB_Power"] = mb

	rail := func(label string, p PowerSensor) {
		data[label+"_Voltage"] = milli(int32(p.Voltage))
		data[label+"_Current"] = milli(p.Current)
		data[label+"_Power"] = milli(p.Power)
	}
	for i, label := range epsRails {
		rail(label, b.Power[i])
	}
	for i, label := range atxRails {
		rail(label, b.Power[atxIndex[i]])
	}
	for i, label := range pcieRails {
		rail(label, b.Power[6+i])
	}

	for i, v := range b.Vin {
		data[fmt.Sprintf("VIN_%d", i)] = milli(int32(v))
	}
	data["Vdd"] = milli(int32(b.Vdd))
	data["Vref"] = milli(int32(b.Vref))

	data["Chip_Temp"] = temperature(b.Tchip)
	data["Ambient_Temp"] = temperature(b.Tamb)
	data["Humidity"] = float64(b.Hum) / 10
	for i, t := range b.Ts {
		data[fmt.Sprintf("Temp_Sensor_%d", i+1)] = temperature(t)
	}

	for i, f := range b.Fans {
		data[fmt.Sprintf("Fan%d_Duty", i+1)] = float64(f.Duty)
		data[fmt.Sprintf("Fan%d_RPM", i+1)] = float64(f.Tach)
		data[fmt.Sprintf("Fan%d_Status", i+1)] = float64(f.Enable)
	}
	data["FanExtDuty"] = float64(b.FanExtDuty)

	return data
}

// temperature converts tenths of a degree, returning nil for sensor faults.
func temperature(raw int16) any {
	c := float64(raw) / 10
	if c > 1000 || c < -1000 {
		return nil
	}
	return math.Round(c*10) / 10
}
