package server

import (
	"bufio"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/kstaniek/go-notecard-server/internal/hub"
	"github.com/kstaniek/go-notecard-server/internal/metrics"
)

// startWriter pushes queued response lines to one client. Lines are
// buffered while more are waiting and flushed once the queue is empty.
func (s *Server) startWriter(ctxDone <-chan struct{}, conn net.Conn, cl *hub.Client, logger *slog.Logger) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			_ = conn.Close()
			if s.Hub != nil {
				s.Hub.Remove(cl)
			} else {
				cl.Close()
			}
			s.totalDisconnected.Add(1)
			logger.Info("client_disconnected")
		}()
		bw := bufio.NewWriter(conn)
		fail := func(err error) error {
			wrap := fmt.Errorf("%w: %v", ErrConnWrite, err)
			metrics.IncError(mapErrToMetric(wrap))
			s.setError(wrap)
			logger.Debug("client_write_failed", "error", wrap)
			return wrap
		}
		write := func(line []byte) error {
			_ = conn.SetWriteDeadline(time.Now().Add(s.writeDeadline))
			if _, err := bw.Write(line); err != nil {
				return fail(err)
			}
			if err := bw.WriteByte('\n'); err != nil {
				return fail(err)
			}
			metrics.IncTCPTx()
			if len(cl.Out) > 0 {
				return nil
			}
			if err := bw.Flush(); err != nil {
				return fail(err)
			}
			return nil
		}
		for {
			select {
			case line := <-cl.Out:
				if err := write(line); err != nil {
					return
				}
			case <-cl.Closed:
				_ = bw.Flush()
				return
			case <-ctxDone:
				_ = bw.Flush()
				return
			}
		}
	}()
}
