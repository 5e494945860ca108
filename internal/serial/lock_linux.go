//go:build linux

package serial

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// Lock takes an exclusive advisory flock on the device node so two servers
// cannot talk to the same Notecard. The returned func releases it.
func Lock(name string) (func() error, error) {
	fd, err := unix.Open(name, unix.O_RDONLY|unix.O_NOCTTY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	if err := unix.Flock(fd, unix.LOCK_EX|unix.LOCK_NB); err != nil {
		_ = unix.Close(fd)
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, fmt.Errorf("%s: %w", name, ErrLocked)
		}
		return nil, fmt.Errorf("flock %s: %w", name, err)
	}
	return func() error {
		_ = unix.Flock(fd, unix.LOCK_UN)
		return unix.Close(fd)
	}, nil
}
