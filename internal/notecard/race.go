package notecard

import (
	"context"
	"time"
)

type readResult struct {
	n   int
	err error
}

// readOrTimeout reads at least one byte into p, racing the read against a
// delay of d. timedOut is set when the delay completes first. The read is
// preferred on a tie: once the timer fires the read is cancelled and awaited,
// and a read that still delivered bytes wins. Neither goroutine outlives the
// call.
func (n *Notecard) readOrTimeout(ctx context.Context, p []byte, d time.Duration) (got int, timedOut bool, err error) {
	iface, delay := n.iface, n.delay
	rctx, cancel := context.WithCancel(ctx)
	defer cancel()

	readCh := make(chan readResult, 1)
	go func() {
		for {
			k, err := iface.Read(rctx, p)
			if k > 0 || err != nil {
				readCh <- readResult{k, err}
				return
			}
			if rctx.Err() != nil {
				readCh <- readResult{0, rctx.Err()}
				return
			}
		}
	}()
	timerCh := make(chan error, 1)
	go func() { timerCh <- delay.Delay(rctx, d) }()

	select {
	case r := <-readCh:
		cancel()
		<-timerCh
		return r.n, false, r.err
	case <-timerCh:
	}

	select {
	case r := <-readCh:
		return r.n, false, r.err
	default:
	}
	// p is shared with the reader; do not return before it lets go.
	cancel()
	r := <-readCh
	if r.n > 0 {
		return r.n, false, nil
	}
	if err := ctx.Err(); err != nil {
		return 0, false, err
	}
	return 0, true, nil
}
