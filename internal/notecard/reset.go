package notecard

import (
	"context"
	"errors"
	"fmt"

	"github.com/kstaniek/go-notecard-server/internal/metrics"
)

type resetResult int

const (
	// resetNoise: CR and LF arrived but so did something else; sync again.
	resetNoise resetResult = iota
	resetClean
)

var errAttemptTimeout = errors.New("drain delay elapsed")

// Reset brings the link to a known framing state. It sends a bare newline
// and expects the device to answer with nothing but "\r\n". Each attempt that
// sees noise, times out or hits a transport failure consumes one of
// TransactionRetry attempts; only exhaustion is reported, as ErrTimeout
// wrapping the last transport error seen, if any.
func (n *Notecard) Reset(ctx context.Context) error {
	if err := n.checkState(); err != nil {
		return err
	}
	n.log.Debug("notecard_reset", "attempts", n.config.TransactionRetry)
	metrics.IncReset()
	var lastErr error
	for attempt := 1; attempt <= n.config.TransactionRetry; attempt++ {
		metrics.IncResetAttempt()
		res, err := n.tryReset(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return &Error{Kind: KindTimeout, Msg: "reset interrupted", Err: ctx.Err()}
			}
			n.log.Debug("notecard_reset_attempt_failed", "attempt", attempt, "error", err)
			if !errors.Is(err, errAttemptTimeout) {
				lastErr = err
			}
			continue
		}
		if res == resetClean {
			n.resetRequired = false
			metrics.SetSynced(true)
			n.log.Debug("notecard_reset_ok", "attempt", attempt)
			return nil
		}
		n.log.Debug("notecard_reset_noise", "attempt", attempt)
	}
	metrics.IncError(metrics.ErrNotecardReset)
	return &Error{Kind: KindTimeout, Msg: fmt.Sprintf("no clean sync after %d attempts", n.config.TransactionRetry), Err: lastErr}
}

func (n *Notecard) tryReset(ctx context.Context) (resetResult, error) {
	writeErr := n.iface.Write(ctx, []byte{'\n'})
	if writeErr != nil {
		n.log.Warn("notecard_reset_write_failed", "error", writeErr)
		if err := n.delay.Delay(ctx, ResetDrainDelay); err != nil {
			return resetNoise, err
		}
	}

	var crFound, lfFound, otherFound bool
	var b [1]byte
	for {
		_, timedOut, err := n.readOrTimeout(ctx, b[:], ResetDrainDelay)
		if timedOut {
			if writeErr != nil {
				return resetNoise, writeErr
			}
			return resetNoise, errAttemptTimeout
		}
		if err != nil {
			n.log.Warn("notecard_reset_read_failed", "error", err)
			return resetNoise, err
		}
		n.log.Debug("notecard_reset_byte", "byte", fmt.Sprintf("%#02x", b[0]))

		switch b[0] {
		case '\r':
			crFound = true
		case '\n':
			lfFound = true
		default:
			otherFound = true
		}
		if crFound && lfFound {
			if otherFound {
				return resetNoise, nil
			}
			return resetClean, nil
		}
	}
}
