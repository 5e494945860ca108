package serial

import "errors"

// ErrLocked is returned by Lock when another process holds the device.
var ErrLocked = errors.New("serial device in use")
