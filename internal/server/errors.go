package server

import (
	"errors"

	"github.com/kstaniek/go-notecard-server/internal/metrics"
)

// Sentinel errors used for wrapping so callers can classify via errors.Is.
var (
	ErrListen     = errors.New("listen")
	ErrAccept     = errors.New("accept")
	ErrConnRead   = errors.New("conn_read")
	ErrConnWrite  = errors.New("conn_write")
	ErrBadRequest = errors.New("bad_request")
	ErrBackendTx  = errors.New("backend_tx")
	ErrContext    = errors.New("context_cancelled")
	// ErrQueueFull is returned by a SubmitFunc whose transaction queue is full.
	ErrQueueFull = errors.New("queue full")
)

// mapErrToMetric maps wrapped sentinel errors to metrics labels.
func mapErrToMetric(err error) string {
	switch {
	case errors.Is(err, ErrConnRead):
		return metrics.ErrTCPRead
	case errors.Is(err, ErrConnWrite):
		return metrics.ErrTCPWrite
	case errors.Is(err, ErrBadRequest):
		return metrics.ErrBadRequest
	case errors.Is(err, ErrQueueFull):
		return metrics.ErrQueueOverflow
	case errors.Is(err, ErrBackendTx):
		return metrics.ErrSerialWrite
	case errors.Is(err, ErrAccept), errors.Is(err, ErrListen):
		return metrics.ErrTCPRead
	case errors.Is(err, ErrContext):
		return "context"
	default:
		return "other"
	}
}
