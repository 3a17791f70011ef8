// Package emulator provides a software engine and a simulated sensor so the
// acquisition pipeline can run without the vendor library or hardware.
//
// The emulator honors the full callback contract but its air quality model is
// a coarse approximation and must not be mistaken for the real algorithm.
package emulator

import (
	"encoding/binary"
	"math"
	"time"

	"github.com/mklimuk/iaqmon/engine"
)

const (
	stateMagic = "EMU1"
	stateSize  = 12

	resetDelay       = 10 * time.Millisecond
	measurementDelay = 190 * time.Millisecond
)

// Engine emulates the sensor-fusion library on top of the engine callbacks.
type Engine struct {
	expected  engine.SampleRate
	warmUp    uint32
	rampStep  uint32
	saveEvery uint32

	cb       engine.Callbacks
	rate     engine.SampleRate
	offset   float32
	next     int64
	samples  uint32
	baseline float64
	ready    bool
}

type Opt func(*Engine)

// WithExpectedRate is the sample rate the loaded config is built for.
func WithExpectedRate(r engine.SampleRate) Opt {
	return func(e *Engine) {
		e.expected = r
	}
}

// WithWarmUp sets the number of samples reported as stabilizing after init.
func WithWarmUp(samples uint32) Opt {
	return func(e *Engine) {
		e.warmUp = samples
	}
}

// WithAccuracyRamp sets the number of samples per accuracy level.
func WithAccuracyRamp(samples uint32) Opt {
	return func(e *Engine) {
		e.rampStep = samples
	}
}

// WithSaveInterval sets the number of samples between state saves. Zero
// disables saving.
func WithSaveInterval(samples uint32) Opt {
	return func(e *Engine) {
		e.saveEvery = samples
	}
}

func New(opts ...Opt) *Engine {
	e := &Engine{
		expected:  engine.SampleRateLP,
		warmUp:    3,
		rampStep:  100,
		saveEvery: engine.DefaultSaveInterval,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Version() engine.Version {
	return engine.Version{Major: 0, Minor: 9, MajorBugfix: 1}
}

func (e *Engine) Init(rate engine.SampleRate, offset float32, cb engine.Callbacks) engine.Status {
	e.cb = cb
	e.rate = rate
	e.offset = offset
	e.ready = false

	id := make([]byte, 1)
	if cb.ReadRegister(RegChipID, id) != 0 {
		return engine.Status{Sensor: engine.SensorComFail}
	}
	if id[0] != ChipID {
		return engine.Status{Sensor: engine.SensorDevNotFound}
	}
	if cb.WriteRegister(RegReset, []byte{SoftResetCmd}) != 0 {
		return engine.Status{Sensor: engine.SensorComFail}
	}
	cb.Sleep(uint32(resetDelay.Microseconds()))

	cfg := make([]byte, engine.ConfigCapacity)
	if cb.LoadConfig(cfg) == 0 {
		return engine.Status{Library: engine.LibraryErrConfigEmpty}
	}
	if rate != e.expected {
		return engine.Status{Library: engine.LibrarySampleRateMismatch}
	}

	e.samples, e.baseline = 0, 0
	state := make([]byte, engine.StateCapacity)
	if n := cb.LoadState(state); n > 0 {
		if samples, baseline, ok := decodeState(state[:n]); ok {
			e.samples, e.baseline = samples, baseline
		}
	}
	e.next = 0
	e.ready = true
	return engine.Status{}
}

func (e *Engine) Step(ts int64) (int64, engine.Status) {
	if !e.ready {
		return ts, engine.Status{Library: engine.LibraryErrConfigEmpty}
	}
	if ts < e.next {
		return e.next, engine.Status{}
	}
	e.next = ts + int64(e.rate.Interval())

	if e.cb.WriteRegister(RegCtrlMeas, []byte{modeForced}) != 0 {
		return e.next, engine.Status{Sensor: engine.SensorComFail}
	}
	e.cb.Sleep(uint32(measurementDelay.Microseconds()))
	field := make([]byte, FieldLength)
	if e.cb.ReadRegister(RegField0, field) != 0 {
		return e.next, engine.Status{Sensor: engine.SensorComFail}
	}
	c, ok := DecodeField(field)
	if !ok {
		return e.next, engine.Status{Library: engine.LibraryWarnNoNewData}
	}

	e.samples++
	out := e.process(c)
	out.Timestamp = e.cb.Timestamp() * int64(time.Microsecond)

	if e.saveEvery > 0 && e.samples%e.saveEvery == 0 {
		e.cb.SaveState(encodeState(e.samples, e.baseline))
	}
	status := engine.LibraryOK
	if e.samples <= e.warmUp {
		status = engine.LibraryWarnStabilizing
	}
	e.cb.OutputReady(out, status)
	return e.next, engine.Status{}
}

// process turns a raw measurement into outputs. The gas baseline follows the
// cleanest air seen, slowly decaying so that a single spike does not pin it.
func (e *Engine) process(c Conditions) engine.Output {
	if c.GasResistance > e.baseline {
		e.baseline = c.GasResistance
	} else {
		e.baseline -= (e.baseline - c.GasResistance) * 0.001
	}
	ratio := 1.0
	if e.baseline > 0 {
		ratio = math.Min(1, c.GasResistance/e.baseline)
	}
	humidityPenalty := math.Min(1, math.Abs(c.Humidity-40)/60)
	iaq := 500 * (0.75*(1-ratio) + 0.25*humidityPenalty)
	if iaq < 25 {
		iaq = 25
	}

	accuracy := uint8(3)
	if e.rampStep > 0 {
		accuracy = uint8(min(3, e.samples/e.rampStep))
	}
	return engine.Output{
		IAQ:           float32(iaq),
		IAQAccuracy:   accuracy,
		Temperature:   float32(c.Temperature) - e.offset,
		RawPressure:   float32(c.Pressure),
		Humidity:      float32(c.Humidity),
		GasResistance: float32(c.GasResistance),
		CO2Equivalent: float32(400 + 8*iaq),
		BreathVOC:     float32(0.5 + 0.02*iaq),
		GasPercentage: float32(ratio * 100),
		Stabilized:    e.samples > e.warmUp,
		RunIn:         accuracy > 0,
	}
}

func encodeState(samples uint32, baseline float64) []byte {
	b := make([]byte, stateSize)
	copy(b, stateMagic)
	binary.LittleEndian.PutUint32(b[4:], samples)
	binary.LittleEndian.PutUint32(b[8:], math.Float32bits(float32(baseline)))
	return b
}

func decodeState(b []byte) (samples uint32, baseline float64, ok bool) {
	if len(b) != stateSize || string(b[:4]) != stateMagic {
		return 0, 0, false
	}
	samples = binary.LittleEndian.Uint32(b[4:])
	baseline = float64(math.Float32frombits(binary.LittleEndian.Uint32(b[8:])))
	return samples, baseline, true
}
