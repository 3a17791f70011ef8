//go:build linux

package i2c

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// ioctl request binding the file descriptor to a target address (linux/i2c-dev.h)
const i2cSlave = 0x0703

// OpenLinux opens an i2c-dev character device and claims the target address.
// The address claim fails when a kernel driver already owns the device.
func OpenLinux(device string, address uint16) (Conn, error) {
	fd, err := unix.Open(device, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("could not open %s: %w", device, err)
	}
	if err := unix.IoctlSetInt(fd, i2cSlave, int(address)); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("could not claim address %#x on %s: %w", address, device, err)
	}
	return &devConn{fd: fd}, nil
}

type devConn struct {
	fd int
}

func (c *devConn) Tx(w, r []byte) error {
	if len(w) > 0 {
		n, err := unix.Write(c.fd, w)
		if err != nil {
			return fmt.Errorf("write: %w", err)
		}
		if n != len(w) {
			return fmt.Errorf("short write: %d of %d bytes", n, len(w))
		}
	}
	if len(r) > 0 {
		n, err := unix.Read(c.fd, r)
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		if n != len(r) {
			return fmt.Errorf("short read: %d of %d bytes", n, len(r))
		}
	}
	return nil
}

func (c *devConn) Close() error {
	return unix.Close(c.fd)
}
