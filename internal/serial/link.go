package serial

import (
	"context"
	"errors"
	"io"
	"sync"
)

// Link adapts a Port to the driver's context-aware byte link.
//
// tarm/serial reads cannot be interrupted, so cancellation is observed
// between reads: a cancelled Read returns after at most one port read timeout.
type Link struct {
	port Port

	closeOnce sync.Once
	closeErr  error
}

func NewLink(p Port) *Link { return &Link{port: p} }

// Read returns what the port delivers within one read timeout, possibly
// nothing. A timed-out read (io.EOF with no data) is not an error.
func (l *Link) Read(ctx context.Context, p []byte) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	n, err := l.port.Read(p)
	if errors.Is(err, io.EOF) {
		err = nil
	}
	return n, err
}

// Write writes all of p, retrying short writes.
func (l *Link) Write(ctx context.Context, p []byte) error {
	for len(p) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := l.port.Write(p)
		if err != nil {
			return err
		}
		if n == 0 {
			return io.ErrShortWrite
		}
		p = p[n:]
	}
	return nil
}

// Close closes the port once.
func (l *Link) Close() error {
	l.closeOnce.Do(func() { l.closeErr = l.port.Close() })
	return l.closeErr
}
