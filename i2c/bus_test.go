package i2c

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"periph.io/x/conn/v3/physic"
)

type speedRecorder struct {
	set []physic.Frequency
	err error
}

func (r *speedRecorder) SetSpeed(f physic.Frequency) error {
	r.set = append(r.set, f)
	return r.err
}

func TestSetSpeed(t *testing.T) {
	bus := &speedRecorder{}
	assert.NoError(t, setSpeed(bus, 0))
	assert.Empty(t, bus.set, "zero keeps the driver default")

	assert.NoError(t, setSpeed(bus, 400*physic.KiloHertz))
	assert.Equal(t, []physic.Frequency{400 * physic.KiloHertz}, bus.set)

	bus.err = errors.New("not supported")
	err := setSpeed(bus, 100*physic.KiloHertz)
	assert.ErrorContains(t, err, "could not set bus speed")
	assert.ErrorIs(t, err, bus.err)
}
