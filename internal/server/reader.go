package server

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/kstaniek/go-notecard-server/internal/hub"
	"github.com/kstaniek/go-notecard-server/internal/metrics"
)

const readBufSize = 4096

// startReader splits the connection into lines and forwards each JSON
// object to the device worker. Idle read deadlines are not errors.
func (s *Server) startReader(ctxDone <-chan struct{}, conn net.Conn, cl *hub.Client, logger *slog.Logger) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() { _ = conn.Close(); cl.Close() }()
		br := bufio.NewReaderSize(conn, readBufSize)
		var line []byte
		discard := false
		for {
			select {
			case <-ctxDone:
				return
			case <-cl.Closed:
				return
			default:
			}
			_ = conn.SetReadDeadline(time.Now().Add(s.readDeadline))
			frag, err := br.ReadSlice('\n')
			if !discard {
				line = append(line, frag...)
				if len(bytes.TrimRight(line, "\r\n")) > s.maxLine {
					discard = true
					line = line[:0]
					metrics.IncError(mapErrToMetric(ErrBadRequest))
					logger.Warn("line_too_long", "max_line", s.maxLine)
					s.reply(cl, ErrorLine(fmt.Sprintf("request exceeds %d bytes", s.maxLine)))
				}
			}
			switch {
			case err == nil:
				if discard {
					discard = false
					continue
				}
				s.handleLine(cl, line, logger)
				line = line[:0]
			case errors.Is(err, bufio.ErrBufferFull):
			case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
				return
			default:
				if ne, ok := err.(net.Error); ok && ne.Timeout() {
					continue
				}
				wrap := fmt.Errorf("%w: %v", ErrConnRead, err)
				metrics.IncError(mapErrToMetric(wrap))
				s.setError(wrap)
				return
			}
		}
	}()
}

func (s *Server) handleLine(cl *hub.Client, raw []byte, logger *slog.Logger) {
	line := bytes.TrimSpace(raw)
	if len(line) == 0 {
		return
	}
	metrics.IncTCPRx()
	if line[0] != '{' || !json.Valid(line) {
		metrics.IncError(mapErrToMetric(ErrBadRequest))
		s.totalBadRequests.Add(1)
		logger.Debug("bad_request", "len", len(line))
		s.reply(cl, ErrorLine("invalid request: expected a JSON object"))
		return
	}
	if s.Submit == nil {
		s.reply(cl, ErrorLine("no backend"))
		return
	}
	err := s.Submit(Request{Client: cl, Line: append([]byte(nil), line...)})
	if err == nil {
		return
	}
	if errors.Is(err, ErrQueueFull) {
		s.totalQueueFull.Add(1)
		logger.Debug("queue_full_reject")
	} else {
		wrap := fmt.Errorf("%w: %v", ErrBackendTx, err)
		s.setError(wrap)
		s.totalBackendErrors.Add(1)
		logger.Error("backend_submit_error", "error", wrap)
	}
	s.reply(cl, ReplyForError(err))
}

func (s *Server) reply(cl *hub.Client, line []byte) {
	if s.Hub != nil {
		s.Hub.Deliver(cl, line)
		return
	}
	select {
	case cl.Out <- line:
	default:
	}
}
