package i2c

import (
	"fmt"
	"log/slog"

	"github.com/mklimuk/iaqmon"
)

// DefaultMaxTransferSize is the largest atomic transfer, register address byte included.
const DefaultMaxTransferSize = 64

// Conn is a connection to a single device. Tx writes w then reads into r;
// either may be empty.
type Conn interface {
	Tx(w, r []byte) error
	Close() error
}

// Opener claims a device at a 7-bit address on the named bus.
type Opener func(device string, address uint16) (Conn, error)

var _ iaqmon.RegisterBus = &Transport{}

// Transport is a register-addressed channel to one device. It is not safe for
// concurrent use: the acquisition goroutine is its only user.
//
// Any failed transfer closes the transport, since a broken transaction leaves
// the bus in an unknown state. Callers reopen it with Open.
type Transport struct {
	open    Opener
	maxSize int
	logger  *slog.Logger

	conn    Conn
	device  string
	address uint16
}

type TransportOpt func(*Transport)

func WithMaxTransferSize(size int) TransportOpt {
	return func(t *Transport) {
		t.maxSize = size
	}
}

func WithLogger(logger *slog.Logger) TransportOpt {
	return func(t *Transport) {
		t.logger = logger
	}
}

func NewTransport(open Opener, opts ...TransportOpt) *Transport {
	t := &Transport{
		open:    open,
		maxSize: DefaultMaxTransferSize,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Open connects to the device. An already open connection is closed first.
// On failure the transport stays closed.
func (t *Transport) Open(device string, address uint16) error {
	t.logger.Debug("opening i2c bus", "device", device, "address", fmt.Sprintf("%#x", address))
	_ = t.Close()
	if address > 0x7F {
		return fmt.Errorf("%w: %s: address %#x is not a 7-bit address", iaqmon.ErrBusOpenFailed, device, address)
	}
	conn, err := t.open(device, address)
	if err != nil {
		return fmt.Errorf("%w: %s@%#x: %w", iaqmon.ErrBusOpenFailed, device, address, err)
	}
	t.conn = conn
	t.device = device
	t.address = address
	t.logger.Info("i2c bus opened", "device", device, "address", fmt.Sprintf("%#x", address))
	return nil
}

// Reopen opens the last device again.
func (t *Transport) Reopen() error {
	if t.device == "" {
		return fmt.Errorf("%w: never opened", iaqmon.ErrBusOpenFailed)
	}
	return t.Open(t.device, t.address)
}

// Close is idempotent.
func (t *Transport) Close() error {
	if t.conn == nil {
		return nil
	}
	err := t.conn.Close()
	t.conn = nil
	if err != nil {
		return fmt.Errorf("could not close i2c bus %s: %w", t.device, err)
	}
	return nil
}

func (t *Transport) IsOpened() bool {
	return t.conn != nil
}

func (t *Transport) Device() string {
	return t.device
}

func (t *Transport) Address() uint16 {
	return t.address
}

// Write sends the register address followed by the payload in one transfer
// and returns the number of bytes put on the wire.
func (t *Transport) Write(register byte, payload []byte) (int, error) {
	if t.conn == nil {
		return 0, fmt.Errorf("%w: %w", iaqmon.ErrBusWriteFailed, iaqmon.ErrBusClosed)
	}
	if len(payload)+1 > t.maxSize {
		return 0, fmt.Errorf("%w: %w: %d bytes for register %#x (max %d)",
			iaqmon.ErrBusWriteFailed, iaqmon.ErrTransferTooLarge, len(payload), register, t.maxSize-1)
	}
	buf := make([]byte, len(payload)+1)
	buf[0] = register
	copy(buf[1:], payload)
	if err := t.conn.Tx(buf, nil); err != nil {
		t.fail("write", register, err)
		return 0, fmt.Errorf("%w: register %#x: %w", iaqmon.ErrBusWriteFailed, register, err)
	}
	return len(buf), nil
}

// Read selects the register with an address-only write, then reads length bytes.
func (t *Transport) Read(register byte, length int) ([]byte, error) {
	if t.conn == nil {
		return nil, fmt.Errorf("%w: %w", iaqmon.ErrBusReadFailed, iaqmon.ErrBusClosed)
	}
	if length < 0 {
		return nil, fmt.Errorf("%w: %w: %d bytes from register %#x",
			iaqmon.ErrBusReadFailed, iaqmon.ErrInvalidLength, length, register)
	}
	if length > t.maxSize {
		return nil, fmt.Errorf("%w: %w: %d bytes from register %#x (max %d)",
			iaqmon.ErrBusReadFailed, iaqmon.ErrTransferTooLarge, length, register, t.maxSize)
	}
	if err := t.conn.Tx([]byte{register}, nil); err != nil {
		t.fail("select", register, err)
		return nil, fmt.Errorf("%w: select register %#x: %w", iaqmon.ErrBusReadFailed, register, err)
	}
	buf := make([]byte, length)
	if err := t.conn.Tx(nil, buf); err != nil {
		t.fail("read", register, err)
		return nil, fmt.Errorf("%w: register %#x: %w", iaqmon.ErrBusReadFailed, register, err)
	}
	return buf, nil
}

func (t *Transport) fail(op string, register byte, err error) {
	t.logger.Error("i2c transfer failed, closing bus", "op", op, "device", t.device,
		"register", fmt.Sprintf("%#x", register), "error", err)
	if cerr := t.Close(); cerr != nil {
		t.logger.Warn("error closing bus after failure", "error", cerr)
	}
}
