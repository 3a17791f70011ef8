package i2c

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mklimuk/iaqmon"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
)

var _ iaqmon.I2CBus = &GenericBus{}

// GenericBus is any bus registered with periph.io (sysfs i2c-dev on Linux boards).
type GenericBus struct {
	bus i2c.BusCloser
}

func NewGenericBus(dev string) (*GenericBus, error) {
	state, err := host.Init()
	if err != nil {
		return nil, fmt.Errorf("could not init host: %w", err)
	}
	for _, driver := range state.Loaded {
		slog.Debug("periph driver loaded", "driver", driver.String())
	}
	bus, err := i2creg.Open(dev)
	if err != nil {
		return nil, fmt.Errorf("could not open i2c bus: %w", err)
	}
	return &GenericBus{
		bus: bus,
	}, nil
}

func (b *GenericBus) ReadFromAddr(ctx context.Context, address byte, buffer []byte) error {
	err := b.bus.Tx(uint16(address), nil, buffer)
	if err != nil {
		return fmt.Errorf("could not read from i2c bus %x: %w", address, err)
	}
	return nil
}

func (b *GenericBus) WriteToAddr(ctx context.Context, address byte, buffer []byte) error {
	err := b.bus.Tx(uint16(address), buffer, nil)
	if err != nil {
		return fmt.Errorf("could not write to i2c bus %x: %w", address, err)
	}
	return nil
}

func (b *GenericBus) Release(ctx context.Context) error {
	return nil
}

func (b *GenericBus) SetSpeed(f physic.Frequency) error {
	return b.bus.SetSpeed(f)
}

func (b *GenericBus) Close() error {
	return b.bus.Close()
}

// OpenPeriph returns an Opener using the periph.io bus registry. The registry
// accepts both "/dev/i2c-1" and "I2C1" style names. A zero speed keeps the
// bus clock the driver comes up with.
func OpenPeriph(speed physic.Frequency) Opener {
	return func(device string, address uint16) (Conn, error) {
		bus, err := NewGenericBus(device)
		if err != nil {
			return nil, err
		}
		if err := setSpeed(bus, speed); err != nil {
			_ = bus.Close()
			return nil, err
		}
		return &addressedConn{bus: bus, addr: byte(address), closer: bus.Close}, nil
	}
}

type speedSetter interface {
	SetSpeed(f physic.Frequency) error
}

func setSpeed(bus speedSetter, speed physic.Frequency) error {
	if speed <= 0 {
		return nil
	}
	if err := bus.SetSpeed(speed); err != nil {
		return fmt.Errorf("could not set bus speed to %s: %w", speed, err)
	}
	return nil
}

// OverBus returns an Opener that talks to the device through a shared
// addressable bus, such as a USB bridge. The device name is ignored.
func OverBus(bus iaqmon.I2CBus) Opener {
	return func(_ string, address uint16) (Conn, error) {
		return &addressedConn{bus: bus, addr: byte(address), closer: func() error {
			return bus.Release(context.Background())
		}}, nil
	}
}

type addressedConn struct {
	bus    iaqmon.I2CBus
	addr   byte
	closer func() error
}

func (c *addressedConn) Tx(w, r []byte) error {
	ctx := context.Background()
	if len(w) > 0 {
		if err := c.bus.WriteToAddr(ctx, c.addr, w); err != nil {
			return err
		}
	}
	if len(r) > 0 {
		if err := c.bus.ReadFromAddr(ctx, c.addr, r); err != nil {
			return err
		}
	}
	return nil
}

func (c *addressedConn) Close() error {
	return c.closer()
}
