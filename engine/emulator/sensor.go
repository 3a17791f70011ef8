package emulator

import (
	"encoding/binary"
	"math"
	"sync"

	"github.com/mklimuk/iaqmon/i2c"
)

// Register map of the emulated gas sensor. It follows the BME680 layout for
// the registers the emulator touches.
const (
	ChipID = 0x61

	RegChipID   = 0xD0
	RegReset    = 0xE0
	RegCtrlMeas = 0x74
	RegField0   = 0x1D

	SoftResetCmd = 0xB6
	FieldLength  = 15

	modeMask   = 0x03
	modeForced = 0x01
	newData    = 0x80
)

// Conditions is the environment the simulated sensor measures.
type Conditions struct {
	Temperature   float64 // degrees Celsius
	Pressure      float64 // Pa
	Humidity      float64 // %RH
	GasResistance float64 // Ohm
}

// Environment produces the conditions for each forced measurement.
type Environment func() Conditions

// Indoor is a quiet room with clean air.
func Indoor() Conditions {
	return Conditions{Temperature: 22.5, Pressure: 101325, Humidity: 45, GasResistance: 120000}
}

// Sensor is a register-level stand-in for the gas sensor. Writing forced mode
// to the measurement control register latches a new measurement from the
// environment into the field data registers.
type Sensor struct {
	*i2c.RegisterFile

	mx           sync.Mutex
	env          Environment
	measurements int
}

func NewSensor(env Environment) *Sensor {
	if env == nil {
		env = Indoor
	}
	s := &Sensor{env: env}
	s.RegisterFile = i2c.NewRegisterFile(s.onWrite)
	s.Set(RegChipID, ChipID)
	return s
}

// Measurements returns the number of forced measurements taken.
func (s *Sensor) Measurements() int {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.measurements
}

// SetEnvironment replaces the environment for later measurements.
func (s *Sensor) SetEnvironment(env Environment) {
	s.mx.Lock()
	s.env = env
	s.mx.Unlock()
}

// onWrite runs with the register file locked and must not call back into it.
func (s *Sensor) onWrite(register byte, data []byte, regs *[256]byte) {
	switch register {
	case RegReset:
		if data[0] == SoftResetCmd {
			regs[RegCtrlMeas] = 0
			regs[RegField0] = 0
		}
	case RegCtrlMeas:
		if data[0]&modeMask != modeForced {
			return
		}
		s.mx.Lock()
		c := s.env()
		s.measurements++
		s.mx.Unlock()
		copy(regs[RegField0:RegField0+FieldLength], EncodeField(c))
		// back to sleep mode once the measurement is done
		regs[RegCtrlMeas] &^= modeMask
	}
}

// EncodeField lays out conditions as field data registers with linear scaling:
// 20 bit temperature over -40..125 C, 20 bit pressure over 0..110 kPa,
// 16 bit humidity over 0..100 %RH and 16 bit gas resistance in units of 10 Ohm.
func EncodeField(c Conditions) []byte {
	field := make([]byte, FieldLength)
	field[0] = newData
	putAdc20(field[2:5], scale(c.Pressure, 0, 110000, 1<<20-1))
	putAdc20(field[5:8], scale(c.Temperature, -40, 125, 1<<20-1))
	binary.BigEndian.PutUint16(field[8:10], uint16(scale(c.Humidity, 0, 100, 1<<16-1)))
	binary.BigEndian.PutUint16(field[13:15], uint16(scale(c.GasResistance/10, 0, 1<<16-1, 1<<16-1)))
	return field
}

// DecodeField is the inverse of EncodeField. ok is false when the new data
// flag is not set.
func DecodeField(field []byte) (c Conditions, ok bool) {
	if len(field) < FieldLength || field[0]&newData == 0 {
		return Conditions{}, false
	}
	c.Pressure = unscale(adc20(field[2:5]), 0, 110000, 1<<20-1)
	c.Temperature = unscale(adc20(field[5:8]), -40, 125, 1<<20-1)
	c.Humidity = unscale(uint32(binary.BigEndian.Uint16(field[8:10])), 0, 100, 1<<16-1)
	c.GasResistance = float64(binary.BigEndian.Uint16(field[13:15])) * 10
	return c, true
}

func scale(v, lo, hi float64, full uint32) uint32 {
	v = math.Max(lo, math.Min(hi, v))
	return uint32(math.Round((v - lo) / (hi - lo) * float64(full)))
}

func unscale(adc uint32, lo, hi float64, full uint32) float64 {
	return lo + float64(adc)/float64(full)*(hi-lo)
}

func putAdc20(b []byte, v uint32) {
	b[0] = byte(v >> 12)
	b[1] = byte(v >> 4)
	b[2] = byte(v<<4) & 0xF0
}

func adc20(b []byte) uint32 {
	return uint32(b[0])<<12 | uint32(b[1])<<4 | uint32(b[2])>>4
}
