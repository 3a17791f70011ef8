package engine

import (
	"errors"
	"fmt"
)

var (
	ErrEngineHardware     = errors.New("engine: sensor initialization failed")
	ErrEngineLibrary      = errors.New("engine: library initialization failed")
	ErrSampleRateMismatch = errors.New("engine: sample rate does not match the loaded config")
)

type Layer string

const (
	LayerHardware Layer = "hardware"
	LayerLibrary  Layer = "library"
)

// InitError is returned when the engine refuses to start. It matches
// ErrEngineHardware or ErrEngineLibrary depending on the failing layer, and
// additionally ErrSampleRateMismatch for that library failure.
type InitError struct {
	Layer  Layer
	Status Status
}

func (e *InitError) Error() string {
	switch {
	case e.Layer == LayerHardware:
		return fmt.Sprintf("engine: could not initialize sensor: %s", e.Status.Sensor)
	case e.Status.Library == LibrarySampleRateMismatch:
		return "engine: could not initialize library: the sample rate does not match the loaded config"
	default:
		return fmt.Sprintf("engine: could not initialize library: %s", e.Status.Library)
	}
}

func (e *InitError) Is(target error) bool {
	switch target {
	case ErrEngineHardware:
		return e.Layer == LayerHardware
	case ErrEngineLibrary:
		return e.Layer == LayerLibrary
	case ErrSampleRateMismatch:
		return e.Layer == LayerLibrary && e.Status.Library == LibrarySampleRateMismatch
	}
	return false
}

func initError(st Status) error {
	if st.Sensor != SensorOK {
		return &InitError{Layer: LayerHardware, Status: st}
	}
	if st.Library != LibraryOK {
		return &InitError{Layer: LayerLibrary, Status: st}
	}
	return nil
}
