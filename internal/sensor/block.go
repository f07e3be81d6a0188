package sensor

import (
	"encoding/binary"
	"fmt"
)

// SensorStruct dimensions.
const (
	VinCount   = 13
	TempCount  = 4
	PowerCount = 11
	FanCount   = 9

	// BlockSize is the size of SensorStruct on the wire, including the C
	// alignment padding inside each power reading.
	BlockSize = 216
)

// Field offsets within SensorStruct.
const (
	offVin        = 0
	offVdd        = offVin + 2*VinCount // 26
	offVref       = offVdd + 2
	offTchip      = offVref + 2
	offTs         = offTchip + 2 // 32
	offTamb       = offTs + 2*TempCount
	offHum        = offTamb + 2
	offFanSwitch  = offHum + 2 // 44
	offRGBSwitch  = offFanSwitch + 1
	offRGBExt     = offRGBSwitch + 1
	offFanExtDuty = offRGBExt + 1
	offPower      = offFanExtDuty + 1 // 48
	powerSize     = 12                // int16 + 2 pad + int32 + int32
	offFans       = offPower + powerSize*PowerCount
	fanSize       = 4
)

// PowerSensor is one rail reading in millivolts, milliamps and milliwatts.
type PowerSensor struct {
	Voltage int16
	Current int32
	Power   int32
}

// FanSensor is one fan header reading.
type FanSensor struct {
	Enable uint8
	Duty   uint8
	Tach   uint16
}

// Block is the parsed form of a raw SensorStruct.
type Block struct {
	Vin             [VinCount]int16
	Vdd             uint16
	Vref            uint16
	Tchip           int16
	Ts              [TempCount]int16
	Tamb            int16
	Hum             int16
	FanSwitchStatus uint8
	RGBSwitchStatus uint8
	RGBExtStatus    uint8
	FanExtDuty      uint8
	Power           [PowerCount]PowerSensor
	Fans            [FanCount]FanSensor
}

// ParseBlock parses a raw SensorStruct.
func ParseBlock(raw RawBlock) (Block, error) {
	var b Block
	if len(raw) != BlockSize {
		return b, fmt.Errorf("%w: block is %d bytes, want %d", ErrDecode, len(raw), BlockSize)
	}

	le := binary.LittleEndian
	for i := range b.Vin {
		b.Vin[i] = int16(le.Uint16(raw[offVin+2*i:]))
	}
	b.Vdd = le.Uint16(raw[offVdd:])
	b.Vref = le.Uint16(raw[offVref:])
	b.Tchip = int16(le.Uint16(raw[offTchip:]))
	for i := range b.Ts {
		b.Ts[i] = int16(le.Uint16(raw[offTs+2*i:]))
	}
	b.Tamb = int16(le.Uint16(raw[offTamb:]))
	b.Hum = int16(le.Uint16(raw[offHum:]))
	b.FanSwitchStatus = raw[offFanSwitch]
	b.RGBSwitchStatus = raw[offRGBSwitch]
	b.RGBExtStatus = raw[offRGBExt]
	b.FanExtDuty = raw[offFanExtDuty]
	for i := range b.Power {
		p := raw[offPower+powerSize*i:]
		b.Power[i] = PowerSensor{
			Voltage: int16(le.Uint16(p[0:])),
			Current: int32(le.Uint32(p[4:])),
			Power:   int32(le.Uint32(p[8:])),
		}
	}
	for i := range b.Fans {
		f := raw[offFans+fanSize*i:]
		b.Fans[i] = FanSensor{
			Enable: f[0],
			Duty:   f[1],
			Tach:   le.Uint16(f[2:]),
		}
	}
	return b, nil
}

// Marshal encodes the block in wire layout.
func (b Block) Marshal() RawBlock {
	raw := make(RawBlock, BlockSize)
	le := binary.LittleEndian
	for i, v := range b.Vin {
		le.PutUint16(raw[offVin+2*i:], uint16(v))
	}
	le.PutUint16(raw[offVdd:], b.Vdd)
	le.PutUint16(raw[offVref:], b.Vref)
	le.PutUint16(raw[offTchip:], uint16(b.Tchip))
	for i, v := range b.Ts {
		le.PutUint16(raw[offTs+2*i:], uint16(v))
	}
	le.PutUint16(raw[offTamb:], uint16(b.Tamb))
	le.PutUint16(raw[offHum:], uint16(b.Hum))
	raw[offFanSwitch] = b.FanSwitchStatus
	raw[offRGBSwitch] = b.RGBSwitchStatus
	raw[offRGBExt] = b.RGBExtStatus
	raw[offFanExtDuty] = b.FanExtDuty
	for i, p := range b.Power {
		off := offPower + powerSize*i
		le.PutUint16(raw[off:], uint16(p.Voltage))
		le.PutUint32(raw[off+4:], uint32(p.Current))
		le.PutUint32(raw[off+8:], uint32(p.Power))
	}
	for i, f := range b.Fans {
		off := offFans + fanSize*i
		raw[off] = f.Enable
		raw[off+1] = f.Duty
		le.PutUint16(raw[off+2:], f.Tach)
	}
	return raw
}
