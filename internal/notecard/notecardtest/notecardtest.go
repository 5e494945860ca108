// Package notecardtest provides an in-memory Notecard stand-in and a
// recording delay for driver tests.
package notecardtest

import (
	"bytes"
	"context"
	"sync"
	"time"
)

// Card is a scripted device. Bytes written are accumulated until a '\n'
// arrives; the completed line is passed to Respond and whatever it returns is
// queued for reading. A bare "\n" is answered with "\r\n" when Respond is nil.
type Card struct {
	mu      sync.Mutex
	rx      [][]byte
	pending []byte
	writes  [][]byte

	// Respond maps one request line (including its '\n') to the bytes the
	// device sends back. Nil result means silence.
	Respond func(line []byte) []byte
	// ReadErr and WriteErr, when set, fail every call.
	ReadErr  error
	WriteErr error
}

// NewCard returns a Card answering resets with "\r\n" and requests with respond.
func NewCard(respond func(line []byte) []byte) *Card {
	return &Card{Respond: func(line []byte) []byte {
		if len(line) == 1 {
			return []byte("\r\n")
		}
		if respond == nil {
			return nil
		}
		return respond(line)
	}}
}

// Push queues one chunk; each Read returns at most one chunk.
func (c *Card) Push(chunks ...[]byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, b := range chunks {
		if len(b) > 0 {
			c.rx = append(c.rx, append([]byte(nil), b...))
		}
	}
}

// Read returns queued data first, even when ctx is already done, and
// otherwise blocks until data arrives or ctx ends.
func (c *Card) Read(ctx context.Context, p []byte) (int, error) {
	for {
		c.mu.Lock()
		if c.ReadErr != nil {
			err := c.ReadErr
			c.mu.Unlock()
			return 0, err
		}
		if len(c.rx) > 0 {
			k := copy(p, c.rx[0])
			if k == len(c.rx[0]) {
				c.rx = c.rx[1:]
			} else {
				c.rx[0] = c.rx[0][k:]
			}
			c.mu.Unlock()
			return k, nil
		}
		c.mu.Unlock()
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(time.Millisecond):
		}
	}
}

func (c *Card) Write(_ context.Context, p []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes = append(c.writes, append([]byte(nil), p...))
	if c.WriteErr != nil {
		return c.WriteErr
	}
	c.pending = append(c.pending, p...)
	for {
		i := bytes.IndexByte(c.pending, '\n')
		if i < 0 {
			return nil
		}
		line := append([]byte(nil), c.pending[:i+1]...)
		c.pending = c.pending[i+1:]
		if c.Respond == nil {
			if len(line) == 1 {
				c.rx = append(c.rx, []byte("\r\n"))
			}
			continue
		}
		if out := c.Respond(line); len(out) > 0 {
			c.rx = append(c.rx, out)
		}
	}
}

// Writes returns a copy of every Write payload, in order.
func (c *Card) Writes() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.writes))
	copy(out, c.writes)
	return out
}

// Written concatenates all writes.
func (c *Card) Written() []byte {
	return bytes.Join(c.Writes(), nil)
}

// ResetWrites forgets recorded writes.
func (c *Card) ResetWrites() {
	c.mu.Lock()
	c.writes = nil
	c.mu.Unlock()
}

// Delay records requested durations and returns immediately.
type Delay struct {
	mu    sync.Mutex
	calls []time.Duration
}

func (d *Delay) Delay(ctx context.Context, dur time.Duration) error {
	d.mu.Lock()
	d.calls = append(d.calls, dur)
	d.mu.Unlock()
	return ctx.Err()
}

// Calls returns the recorded durations.
func (d *Delay) Calls() []time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]time.Duration(nil), d.calls...)
}

// Total sums recorded durations equal to want (all of them when want is 0).
func (d *Delay) Total(want time.Duration) time.Duration {
	var sum time.Duration
	for _, c := range d.Calls() {
		if want == 0 || c == want {
			sum += c
		}
	}
	return sum
}

// Clear forgets recorded durations.
func (d *Delay) Clear() {
	d.mu.Lock()
	d.calls = nil
	d.mu.Unlock()
}
