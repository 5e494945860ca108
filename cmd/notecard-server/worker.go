package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/kstaniek/go-notecard-server/internal/hub"
	"github.com/kstaniek/go-notecard-server/internal/metrics"
	"github.com/kstaniek/go-notecard-server/internal/notecard"
	"github.com/kstaniek/go-notecard-server/internal/serial"
	"github.com/kstaniek/go-notecard-server/internal/server"
)

// worker runs on the AsyncTx goroutine and is the only user of the driver.
type worker struct {
	nc   *notecard.Notecard
	link *serial.Link
	open func() (*serial.Link, error)
	hub  *hub.Hub
	log  *slog.Logger

	state   notecard.SuspendState
	backoff time.Duration
	synced  atomic.Bool
}

func newWorker(nc *notecard.Notecard, link *serial.Link, open func() (*serial.Link, error), h *hub.Hub, l *slog.Logger) *worker {
	return &worker{nc: nc, link: link, open: open, hub: h, log: l, backoff: txBackoffMin}
}

// handle runs one client request and delivers exactly one reply line.
func (w *worker) handle(ctx context.Context, req server.Request) error {
	if w.nc == nil && !w.reopen(ctx) {
		w.hub.Deliver(req.Client, server.ErrorLine("device unavailable"))
		return errors.New("device unavailable")
	}
	res, err := notecard.Transaction[json.RawMessage](ctx, w.nc, notecard.Raw(req.Line))
	if err != nil {
		w.hub.Deliver(req.Client, server.ReplyForError(err))
		w.fail(ctx, err)
		return err
	}
	w.backoff = txBackoffMin
	w.synced.Store(true)
	var out bytes.Buffer
	if err := json.Compact(&out, res); err != nil {
		// Raw results are validated by the driver; keep the bytes as received.
		w.hub.Deliver(req.Client, res)
		return nil
	}
	w.hub.Deliver(req.Client, out.Bytes())
	return nil
}

// fail decides what a failed transaction means for the link. Device-level
// errors leave framing intact; transport and framing failures force a resync
// and back off. A vanished device is suspended and reopened.
func (w *worker) fail(ctx context.Context, err error) {
	if !needsResync(err) || ctx.Err() != nil {
		return
	}
	w.synced.Store(false)
	w.nc.RequireReset()
	var perr *os.PathError
	if errors.As(err, &perr) {
		w.log.Warn("serial_device_lost", "error", err)
		w.suspend()
		return
	}
	w.log.Warn("notecard_resync_scheduled", "error", err, "backoff", w.backoff)
	sleepFn(w.backoff)
	w.backoff *= 2
	if w.backoff > txBackoffMax {
		w.backoff = txBackoffMax
	}
}

func needsResync(err error) bool {
	if errors.Is(err, notecard.ErrSer) {
		// nothing reached the wire
		return false
	}
	for _, k := range []error{
		notecard.ErrWrite, notecard.ErrRead, notecard.ErrTimeout,
		notecard.ErrBufOverflow, notecard.ErrDeser, notecard.ErrRemainingData,
	} {
		if errors.Is(err, k) {
			return true
		}
	}
	return false
}

// suspend detaches the link from the driver and closes it. The driver state
// is parked in w.state until reopen succeeds.
func (w *worker) suspend() {
	iface, state := w.nc.Suspend()
	w.state = state
	w.nc = nil
	if l, ok := iface.(*serial.Link); ok {
		_ = l.Close()
	}
	w.link = nil
}

// reopen tries to reattach the device once and resumes the parked driver.
func (w *worker) reopen(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}
	link, err := w.open()
	if err != nil {
		metrics.IncError(metrics.ErrSerialRead)
		w.log.Warn("serial_reopen_failed", "error", err)
		sleepFn(reopenInterval)
		return false
	}
	w.link = link
	w.nc = notecard.Resume(link, driverDelay, w.state, notecard.WithLogger(w.log.With("component", "notecard")))
	w.nc.RequireReset()
	w.log.Info("serial_reopened")
	return true
}

func (w *worker) close() {
	if w.link != nil {
		_ = w.link.Close()
	}
}
