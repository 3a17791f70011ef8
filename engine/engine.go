// Package engine bridges the sensor-fusion engine to the bus, the clock and
// the calibration state store.
//
// The engine itself is a closed box reached only through Engine and the
// Callbacks it is handed at init. Adapter binds those callbacks and turns the
// engine's outputs into iaqmon samples.
package engine

import (
	_ "embed"
	"fmt"
	"strings"
	"time"
)

// DefaultConfig is the engine configuration for a 3.3 V supply, 3 s sample
// interval and 4 day calibration history.
//
//go:embed bsec_iaq_33v_3s_4d.config
var DefaultConfig []byte

// StateCapacity is the largest calibration state blob the engine produces.
const StateCapacity = 221

// ConfigCapacity is the size of the buffer handed to the config load callback.
const ConfigCapacity = 2277

// DefaultSaveInterval is the number of samples between state checkpoints.
// At the low power rate this is roughly every 8 hours.
const DefaultSaveInterval = 10000

// Engine is the sensor-fusion library. All calls happen on the acquisition
// goroutine, and the engine calls back into Callbacks only from within Init
// and Step.
type Engine interface {
	Version() Version
	// Init configures the sensor and the library. It loads the config blob
	// and the calibration state through cb, and keeps cb for later steps.
	Init(rate SampleRate, temperatureOffset float32, cb Callbacks) Status
	// Step runs one processing cycle at timestamp (ns since the adapter epoch)
	// and returns when it wants to be called next.
	Step(timestamp int64) (next int64, status Status)
}

// Callbacks are the operations the engine may call. Their shapes follow the
// engine's fixed callback contract and must not change.
type Callbacks struct {
	// WriteRegister writes data starting at reg. Zero means success.
	WriteRegister func(reg byte, data []byte) int8
	// ReadRegister fills buf starting at reg. Zero means success.
	ReadRegister func(reg byte, buf []byte) int8
	// Sleep blocks for the given number of microseconds.
	Sleep func(us uint32)
	// Timestamp returns monotonic microseconds since the first call.
	Timestamp func() int64
	// LoadState copies the saved calibration state into buf and returns the
	// number of bytes copied. Zero means no prior state.
	LoadState func(buf []byte) uint32
	// SaveState persists a calibration state blob.
	SaveState func(state []byte)
	// LoadConfig copies the configuration blob into buf and returns the
	// number of bytes copied.
	LoadConfig func(buf []byte) uint32
	// OutputReady receives each processed output together with the library
	// status of the step that produced it.
	OutputReady func(out Output, status LibraryStatus)
}

type Version struct {
	Major       uint8
	Minor       uint8
	MajorBugfix uint8
	MinorBugfix uint8
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d.%d", v.Major, v.Minor, v.MajorBugfix, v.MinorBugfix)
}

// SensorStatus is the sensor driver result. Negative values are errors.
type SensorStatus int8

const (
	SensorOK          SensorStatus = 0
	SensorNullPtr     SensorStatus = -1
	SensorComFail     SensorStatus = -2
	SensorDevNotFound SensorStatus = -3
	SensorInvalidLen  SensorStatus = -4
)

func (s SensorStatus) String() string {
	switch s {
	case SensorOK:
		return "ok"
	case SensorNullPtr:
		return "null pointer"
	case SensorComFail:
		return "communication failure"
	case SensorDevNotFound:
		return "device not found"
	case SensorInvalidLen:
		return "invalid length"
	default:
		return fmt.Sprintf("sensor status %d", int8(s))
	}
}

// LibraryStatus is the library result. Negative values are errors, positive
// values are warnings.
type LibraryStatus int16

const (
	LibraryOK LibraryStatus = 0

	LibraryWarnStabilizing     LibraryStatus = 1
	LibraryWarnNoNewData       LibraryStatus = 2
	LibraryWarnSampleRateLimit LibraryStatus = 11
	LibrarySampleRateMismatch  LibraryStatus = 12

	LibraryErrConfigEmpty   LibraryStatus = -32
	LibraryErrConfigInvalid LibraryStatus = -33
	LibraryErrStateInvalid  LibraryStatus = -35
)

func (s LibraryStatus) IsWarning() bool {
	return s > 0
}

func (s LibraryStatus) String() string {
	switch s {
	case LibraryOK:
		return "ok"
	case LibraryWarnStabilizing:
		return "stabilizing"
	case LibraryWarnNoNewData:
		return "no new data"
	case LibraryWarnSampleRateLimit:
		return "sample rate limit"
	case LibrarySampleRateMismatch:
		return "sample rate mismatch"
	case LibraryErrConfigEmpty:
		return "config empty"
	case LibraryErrConfigInvalid:
		return "config invalid"
	case LibraryErrStateInvalid:
		return "state invalid"
	default:
		return fmt.Sprintf("library status %d", int16(s))
	}
}

// Status is the combined result of an engine call.
type Status struct {
	Sensor  SensorStatus
	Library LibraryStatus
}

func (s Status) OK() bool {
	return s.Sensor == SensorOK && s.Library == LibraryOK
}

func (s Status) String() string {
	return fmt.Sprintf("sensor: %s, library: %s", s.Sensor, s.Library)
}

// Output is one processed engine cycle.
type Output struct {
	Timestamp     int64 // ns since the adapter epoch
	IAQ           float32
	IAQAccuracy   uint8
	Temperature   float32 // compensated, degrees Celsius
	RawPressure   float32 // Pa
	Humidity      float32 // compensated, %RH
	GasResistance float32 // Ohm
	CO2Equivalent float32 // ppm
	BreathVOC     float32 // ppm
	GasPercentage float32
	Stabilized    bool
	RunIn         bool
}

// SampleRate is the engine sampling rate in Hz.
type SampleRate float32

const (
	SampleRateULP        SampleRate = 1.0 / 300
	SampleRateLP         SampleRate = 1.0 / 3
	SampleRateContinuous SampleRate = 1
)

// Interval returns the period between samples.
func (r SampleRate) Interval() time.Duration {
	if r <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / float64(r)).Round(time.Millisecond)
}

func (r SampleRate) String() string {
	switch r {
	case SampleRateULP:
		return "ulp"
	case SampleRateLP:
		return "lp"
	case SampleRateContinuous:
		return "cont"
	default:
		return fmt.Sprintf("%gHz", float32(r))
	}
}

// ParseSampleRate accepts the names used in configuration files.
func ParseSampleRate(name string) (SampleRate, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "ulp", "ultra_low_power":
		return SampleRateULP, nil
	case "lp", "low_power", "":
		return SampleRateLP, nil
	case "cont", "continuous":
		return SampleRateContinuous, nil
	default:
		return 0, fmt.Errorf("engine: unknown sample rate %q", name)
	}
}
