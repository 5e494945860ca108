package main

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kstaniek/go-notecard-server/internal/hub"
	"github.com/kstaniek/go-notecard-server/internal/metrics"
	"github.com/kstaniek/go-notecard-server/internal/notecard"
	"github.com/kstaniek/go-notecard-server/internal/serial"
	"github.com/kstaniek/go-notecard-server/internal/server"
	"github.com/kstaniek/go-notecard-server/internal/transport"
)

// sleepFn allows tests to intercept backoff sleeps.
var sleepFn = time.Sleep

// openSerialPort is a hook for tests (overridden in unit tests).
var openSerialPort = serial.Open

// lockSerialPort is a hook for tests.
var lockSerialPort = serial.Lock

// driverDelay is the driver's clock; tests substitute a recording one.
var driverDelay notecard.Delay = notecard.SystemDelay{}

// backend owns the serial device, the driver and the one worker goroutine
// that runs every transaction.
type backend struct {
	w      *worker
	tx     *transport.AsyncTx[server.Request]
	unlock func() error
}

// initBackend opens and locks the serial device, synchronizes with the
// Notecard and starts the transaction worker. A failed initial sync is not
// fatal: the first transaction retries it.
func initBackend(ctx context.Context, cfg *appConfig, h *hub.Hub, l *slog.Logger, wg *sync.WaitGroup) (*backend, error) {
	unlock := func() error { return nil }
	if cfg.serialLock {
		u, err := lockSerialPort(cfg.serialDev)
		if err != nil {
			return nil, fmt.Errorf("lock serial: %w", err)
		}
		unlock = u
	}
	open := func() (*serial.Link, error) {
		sp, err := openSerialPort(cfg.serialDev, cfg.baud, cfg.serialReadTO)
		if err != nil {
			return nil, err
		}
		return serial.NewLink(sp), nil
	}
	link, err := open()
	if err != nil {
		_ = unlock()
		return nil, fmt.Errorf("open serial: %w", err)
	}
	l.Info("serial_open", "device", cfg.serialDev, "baud", cfg.baud)

	dl := l.With("component", "notecard")
	nc := notecard.New(link, driverDelay, notecard.WithConfig(cfg.notecardConfig()), notecard.WithLogger(dl))
	if err := nc.Reset(ctx); err != nil {
		l.Warn("notecard_initial_sync_failed", "error", err)
	} else {
		l.Info("notecard_synced")
	}
	w := newWorker(nc, link, open, h, l)
	w.synced.Store(!nc.ResetRequired())

	hooks := transport.Hooks{
		OnError: func(err error) { l.Debug("transaction_failed", "error", err) },
		OnDrop: func() error {
			metrics.IncQueueDrop()
			metrics.IncError(metrics.ErrQueueOverflow)
			return server.ErrQueueFull
		},
	}
	b := &backend{w: w, unlock: unlock}
	b.tx = transport.NewAsyncTx(ctx, cfg.queueSize, w.handle, hooks)
	wg.Add(1)
	go func() {
		defer wg.Done()
		<-ctx.Done()
		l.Info("backend_stop")
	}()
	return b, nil
}

// Submit queues a request without blocking.
func (b *backend) Submit(r server.Request) error { return b.tx.Submit(r) }

// Healthy reports whether the last exchange with the device succeeded.
func (b *backend) Healthy() bool { return b.w.synced.Load() }

// Close stops the worker, then releases the device.
func (b *backend) Close() {
	b.tx.Close()
	b.w.close()
	_ = b.unlock()
}
