package notecard

import (
	"bytes"
	"context"

	"github.com/kstaniek/go-notecard-server/internal/metrics"
)

var crlf = []byte("\r\n")

// receive accumulates one response into the working buffer. There is no
// length header: the response is complete once a CR and an LF have both been
// seen anywhere since the loop started (or, with StrictFraming, once the
// accumulated bytes end in CRLF). Bytes past the terminator stay in the buffer.
func (n *Notecard) receive(ctx context.Context) error {
	n.buf.Reset()
	var scratch [ReceiveScratchLen]byte
	var crFound, lfFound bool
	for {
		if err := ctx.Err(); err != nil {
			return ctxError(err)
		}
		k, err := n.iface.Read(ctx, scratch[:])
		if err != nil {
			if ctx.Err() != nil {
				return ctxError(ctx.Err())
			}
			metrics.IncError(metrics.ErrSerialRead)
			n.log.Error("notecard_read_failed", "received", n.buf.Len(), "error", err)
			return newError(KindRead, err)
		}
		if k == 0 {
			if err := n.delay.Delay(ctx, ReceiveIdleDelay); err != nil {
				return ctxError(err)
			}
			continue
		}
		chunk := scratch[:k]
		if _, err := n.buf.Write(chunk); err != nil {
			metrics.IncError(metrics.ErrNotecardOverflow)
			return err
		}
		metrics.AddRx(k)

		if n.config.StrictFraming {
			if bytes.HasSuffix(n.buf.Bytes(), crlf) {
				return nil
			}
			continue
		}
		lfFound = lfFound || bytes.IndexByte(chunk, '\n') >= 0
		crFound = crFound || bytes.IndexByte(chunk, '\r') >= 0
		if crFound && lfFound {
			return nil
		}
	}
}
