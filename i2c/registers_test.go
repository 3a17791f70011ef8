package i2c

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterFile_AutoIncrement(t *testing.T) {
	regs := NewRegisterFile(nil)
	require.NoError(t, regs.Tx([]byte{0x1D, 0xAA, 0xBB, 0xCC}, nil))
	assert.Equal(t, []byte{0xAA, 0xBB, 0xCC}, regs.Get(0x1D, 3))

	buf := make([]byte, 2)
	require.NoError(t, regs.Tx([]byte{0x1E}, buf))
	assert.Equal(t, []byte{0xBB, 0xCC}, buf)
}

func TestRegisterFile_HookOnDataWritesOnly(t *testing.T) {
	var calls []byte
	regs := NewRegisterFile(func(register byte, data []byte, r *[256]byte) {
		calls = append(calls, register)
		r[0x1D] = 0x80
	})
	require.NoError(t, regs.Tx([]byte{0x74}, nil))
	assert.Empty(t, calls)
	require.NoError(t, regs.Tx([]byte{0x74, 0x01}, nil))
	assert.Equal(t, []byte{0x74}, calls)
	assert.Equal(t, []byte{0x80}, regs.Get(0x1D, 1))
}

func TestRegisterFile_Faults(t *testing.T) {
	regs := NewRegisterFile(nil)
	regs.FailNext(2)
	assert.ErrorIs(t, regs.Tx([]byte{0x00}, nil), ErrInjected)
	assert.ErrorIs(t, regs.Tx([]byte{0x00}, nil), ErrInjected)
	assert.NoError(t, regs.Tx([]byte{0x00}, nil))
	assert.Equal(t, 1, regs.Transfers())

	require.NoError(t, regs.Close())
	assert.Error(t, regs.Tx([]byte{0x00}, nil))
	_, err := regs.Opener()("", 0x77)
	require.NoError(t, err)
	assert.NoError(t, regs.Tx([]byte{0x00}, nil))
}

func TestBusNumber(t *testing.T) {
	nr, err := busNumber("/dev/i2c-1")
	require.NoError(t, err)
	assert.Equal(t, 1, nr)
	nr, err = busNumber("2")
	require.NoError(t, err)
	assert.Equal(t, 2, nr)
	_, err = busNumber("I2C1")
	assert.Error(t, err)
}
