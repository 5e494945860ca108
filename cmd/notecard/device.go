package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/kstaniek/go-notecard-server/internal/logging"
	"github.com/kstaniek/go-notecard-server/internal/notecard"
	"github.com/kstaniek/go-notecard-server/internal/serial"
)

// Hooks for tests.
var (
	openSerialPort                = serial.Open
	lockSerialPort                = serial.Lock
	driverDelay    notecard.Delay = notecard.SystemDelay{}
)

func driverConfig(c *cli.Context) (notecard.Config, error) {
	cfg := notecard.DefaultConfig()
	// A zero port timeout blocks reads and the driver could never cancel them.
	if c.Duration("read-timeout") <= 0 {
		return cfg, usagef("--read-timeout must be > 0 (got %v)", c.Duration("read-timeout"))
	}
	cfg.ResponseTimeout = c.Duration("response-timeout")
	cfg.TransactionRetry = c.Int("retry")
	cfg.StrictFraming = c.Bool("strict-framing")
	if err := cfg.Validate(); err != nil {
		return cfg, usagef("%v", err)
	}
	return cfg, nil
}

// withDevice opens the port named by the global flags, runs fn with a fresh
// driver and releases the port.
func withDevice(c *cli.Context, fn func(ctx context.Context, nc *notecard.Notecard) error) error {
	cfg, err := driverConfig(c)
	if err != nil {
		return err
	}
	name := c.String("port")
	if c.Bool("lock") {
		unlock, err := lockSerialPort(name)
		if err != nil {
			return failure(fmt.Errorf("lock %s: %w", name, err))
		}
		defer func() { _ = unlock() }()
	}
	sp, err := openSerialPort(name, c.Int("baud"), c.Duration("read-timeout"))
	if err != nil {
		return failure(fmt.Errorf("open %s: %w", name, err))
	}
	link := serial.NewLink(sp)
	defer func() { _ = link.Close() }()

	l := logging.L().With("port", name)
	l.Debug("serial_open", "baud", c.Int("baud"))
	nc := notecard.New(link, driverDelay, notecard.WithConfig(cfg), notecard.WithLogger(l))
	if err := fn(c.Context, nc); err != nil {
		return failure(err)
	}
	return nil
}
