package i2c

import (
	"fmt"
	"strconv"
	"strings"

	gi2c "gobot.io/x/gobot/v2/drivers/i2c"
	"gobot.io/x/gobot/v2/platforms/friendlyelec/nanopi"
)

// OpenNanoPi opens the device through the gobot NanoPi NEO adaptor. The device
// may be given as a bus number ("0") or an i2c-dev path ("/dev/i2c-0").
func OpenNanoPi(device string, address uint16) (Conn, error) {
	busNr, err := busNumber(device)
	if err != nil {
		return nil, err
	}
	npi := nanopi.NewNeoAdaptor()
	if err := npi.I2cBusAdaptor.Connect(); err != nil {
		return nil, fmt.Errorf("adaptor connect error: %w", err)
	}
	conn, err := npi.GetI2cConnection(int(address), busNr)
	if err != nil {
		_ = npi.I2cBusAdaptor.Finalize()
		return nil, fmt.Errorf("could not get connection to %#x on bus %d: %w", address, busNr, err)
	}
	return &gobotConn{conn: conn, finalize: npi.I2cBusAdaptor.Finalize}, nil
}

type gobotConn struct {
	conn     gi2c.Connection
	finalize func() error
}

func (c *gobotConn) Tx(w, r []byte) error {
	if len(w) > 0 {
		if err := c.conn.WriteBytes(w); err != nil {
			return err
		}
	}
	if len(r) > 0 {
		n, err := c.conn.Read(r)
		if err != nil {
			return err
		}
		if n != len(r) {
			return fmt.Errorf("short read: %d of %d bytes", n, len(r))
		}
	}
	return nil
}

func (c *gobotConn) Close() error {
	err := c.conn.Close()
	if ferr := c.finalize(); err == nil {
		err = ferr
	}
	return err
}

func busNumber(device string) (int, error) {
	s := strings.TrimPrefix(device, "/dev/i2c-")
	nr, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid i2c bus %q: %w", device, err)
	}
	return nr, nil
}
