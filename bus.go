package iaqmon

import (
	"context"
	"errors"
	"fmt"
)

var ErrBusBusy = fmt.Errorf("I2C engine is busy (command not completed)")

var (
	ErrBusOpenFailed    = errors.New("bus open failed")
	ErrBusWriteFailed   = errors.New("bus write failed")
	ErrBusReadFailed    = errors.New("bus read failed")
	ErrBusClosed        = errors.New("bus is not open")
	ErrTransferTooLarge = errors.New("transfer exceeds bus maximum")
	ErrInvalidLength    = errors.New("invalid transfer length")
)

type AddressableReader interface {
	ReadFromAddr(ctx context.Context, address byte, buffer []byte) error
}

type AddressableWriter interface {
	WriteToAddr(ctx context.Context, address byte, buffer []byte) error
	Release(ctx context.Context) error
}

// I2CBus is a bus shared by several devices, addressed per call.
type I2CBus interface {
	AddressableReader
	AddressableWriter
}

// RegisterBus is a register-addressed channel to a single device.
// Implementations close themselves on any transfer failure and must be reopened.
type RegisterBus interface {
	Open(device string, address uint16) error
	Close() error
	IsOpened() bool
	Write(register byte, payload []byte) (int, error)
	Read(register byte, length int) ([]byte, error)
}
