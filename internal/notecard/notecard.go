// Package notecard drives a Blues Notecard over a byte link (AUX or main UART)
// exchanging newline-delimited JSON requests and responses.
//
// A Notecard value is owned by a single goroutine: transactions must not
// overlap, and nothing inside is locked. Callers that share a device funnel
// requests through one worker (see internal/transport.AsyncTx).
package notecard

import (
	"context"
	"log/slog"
	"time"

	"github.com/kstaniek/go-notecard-server/internal/logging"
	"github.com/kstaniek/go-notecard-server/internal/metrics"
)

// Transport is the byte link to the device.
type Transport interface {
	// Read reads up to len(p) bytes. It may return 0 bytes with a nil error.
	Read(ctx context.Context, p []byte) (int, error)
	// Write writes all of p or fails.
	Write(ctx context.Context, p []byte) error
}

// Delay suspends the caller.
type Delay interface {
	Delay(ctx context.Context, d time.Duration) error
}

// SystemDelay sleeps on the wall clock with millisecond granularity.
type SystemDelay struct{}

func (SystemDelay) Delay(ctx context.Context, d time.Duration) error {
	d = d.Round(time.Millisecond)
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Notecard is the driver instance. It exclusively owns the transport, the
// delay provider and the working buffer for as long as it is not suspended.
type Notecard struct {
	iface Transport
	delay Delay
	log   *slog.Logger

	config Config

	resetRequired bool
	suspended     bool
	buf           *Buffer
}

// Option customizes New and Resume.
type Option func(*Notecard)

// WithConfig replaces the default configuration.
func WithConfig(c Config) Option { return func(n *Notecard) { n.config = c } }

// WithLogger sets the driver logger (default logging.L()).
func WithLogger(l *slog.Logger) Option {
	return func(n *Notecard) {
		if l != nil {
			n.log = l
		}
	}
}

// New creates a driver that resynchronizes before its first transaction.
func New(iface Transport, delay Delay, opts ...Option) *Notecard {
	n := &Notecard{
		iface:         iface,
		delay:         delay,
		log:           logging.L(),
		config:        DefaultConfig(),
		resetRequired: true,
	}
	for _, o := range opts {
		o(n)
	}
	n.buf = NewBuffer(n.config.BufferSize)
	return n
}

// Config returns the active configuration.
func (n *Notecard) Config() Config { return n.config }

// ResetRequired reports whether the next transaction resynchronizes first.
func (n *Notecard) ResetRequired() bool { return n.resetRequired }

// RequireReset moves the driver back to NeedsSync.
func (n *Notecard) RequireReset() {
	n.resetRequired = true
	metrics.SetSynced(false)
}

// SuspendState is the detachable part of a driver: configuration and
// synchronization flag. Buffer contents are not kept.
type SuspendState struct {
	config        Config
	resetRequired bool
}

func (s SuspendState) Config() Config      { return s.config }
func (s SuspendState) ResetRequired() bool { return s.resetRequired }

// Suspend releases the transport. The receiver is unusable afterwards:
// every further call fails with ErrWrongState.
func (n *Notecard) Suspend() (Transport, SuspendState) {
	iface := n.iface
	state := SuspendState{config: n.config, resetRequired: n.resetRequired}
	n.iface = nil
	n.delay = nil
	n.buf = nil
	n.suspended = true
	return iface, state
}

// Resume rebuilds a driver from a suspended state bound to iface, with a
// fresh, empty working buffer.
func Resume(iface Transport, delay Delay, state SuspendState, opts ...Option) *Notecard {
	n := &Notecard{
		iface:         iface,
		delay:         delay,
		log:           logging.L(),
		config:        state.config,
		resetRequired: state.resetRequired,
	}
	for _, o := range opts {
		o(n)
	}
	n.buf = NewBuffer(n.config.BufferSize)
	return n
}

func (n *Notecard) checkState() error {
	if n.suspended {
		return &Error{Kind: KindWrongState, Msg: "driver suspended"}
	}
	return nil
}
