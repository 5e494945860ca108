package notecard

import (
	"context"

	"github.com/kstaniek/go-notecard-server/internal/metrics"
)

// send writes the working buffer to the device in SegmentLen pieces, each
// followed by SegmentDelay of quiet so the device can drain its UART FIFO.
// The buffer must hold exactly one newline-terminated request.
func (n *Notecard) send(ctx context.Context) error {
	data := n.buf.Bytes()
	if len(data) == 0 || data[len(data)-1] != '\n' {
		return &Error{Kind: KindInvalidRequest, Msg: "request must end with '\\n'"}
	}
	for off := 0; off < len(data); off += SegmentLen {
		end := min(off+SegmentLen, len(data))
		if err := n.iface.Write(ctx, data[off:end]); err != nil {
			if ctx.Err() != nil {
				return ctxError(ctx.Err())
			}
			metrics.IncError(metrics.ErrSerialWrite)
			n.log.Error("notecard_write_failed", "offset", off, "error", err)
			return newError(KindWrite, err)
		}
		metrics.AddTx(end - off)
		n.log.Debug("notecard_segment_sent", "offset", off, "len", end-off, "total", len(data))
		if err := n.delay.Delay(ctx, n.config.SegmentDelay); err != nil {
			return ctxError(err)
		}
	}
	return nil
}

func ctxError(err error) *Error {
	return &Error{Kind: KindTimeout, Err: err}
}
