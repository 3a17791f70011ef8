//go:build !linux

package i2c

import (
	"errors"
)

var errNoDevI2C = errors.New("i2c-dev is only available on linux")

func OpenLinux(device string, address uint16) (Conn, error) {
	return nil, errNoDevI2C
}
