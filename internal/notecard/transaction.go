package notecard

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"

	"github.com/kstaniek/go-notecard-server/internal/metrics"
)

// Request binds a request to the shape of its result. The request value's
// JSON encoding is the wire form and must carry the "req" discriminator;
// Decode turns the raw response into R.
type Request[R any] interface {
	Name() string
	Decode(data []byte) (R, error)
}

// Device error markers found inside a response "err" string.
const (
	dfuInProgressMarker   = "{dfu-in-progress}"
	fileStorageFullMarker = "{file-storage-full}"
)

// Transaction performs one request/response exchange: resync if required,
// serialize into the working buffer, send, receive, decode. Transport
// failures are returned as is and never retried here; the caller decides
// whether to RequireReset.
func Transaction[R any](ctx context.Context, n *Notecard, req Request[R]) (R, error) {
	var zero R
	if err := n.checkState(); err != nil {
		return zero, err
	}
	if n.resetRequired {
		if err := n.Reset(ctx); err != nil {
			return zero, err
		}
		n.log.Debug("notecard_reset_success")
	}
	metrics.IncTransaction()
	log := n.log.With("req", req.Name())

	if err := n.encode(req); err != nil {
		log.Warn("notecard_encode_failed", "error", err)
		return zero, err
	}
	if err := n.send(ctx); err != nil {
		return zero, err
	}

	rctx := ctx
	if n.config.ResponseTimeout > 0 {
		var cancel context.CancelFunc
		rctx, cancel = context.WithTimeout(ctx, n.config.ResponseTimeout)
		defer cancel()
	}
	if err := n.receive(rctx); err != nil {
		return zero, err
	}

	resp := n.buf.Bytes()
	log.Debug("notecard_response", "len", len(resp))
	if err := deviceError(req.Name(), resp); err != nil {
		metrics.IncError(metrics.ErrNotecardDevice)
		return zero, err
	}
	res, err := req.Decode(resp)
	if err != nil {
		metrics.IncError(metrics.ErrNotecardDecode)
		if _, ok := err.(*Error); ok {
			return zero, err
		}
		return zero, NewDeserError(resp, err)
	}
	return res, nil
}

// encode writes the request and its trailing newline into the working buffer.
func (n *Notecard) encode(req any) error {
	n.buf.Reset()
	b, err := json.Marshal(req)
	if err != nil {
		return newError(KindSer, err)
	}
	if _, err := n.buf.Write(b); err != nil {
		return &Error{Kind: KindSer, Msg: "request does not fit working buffer", Err: err}
	}
	if err := n.buf.WriteByte('\n'); err != nil {
		return &Error{Kind: KindSer, Msg: "no room for terminator", Err: err}
	}
	return nil
}

// deviceError reports the "err" field of a response, if any, as a driver error.
func deviceError(name string, resp []byte) error {
	var probe struct {
		Err string `json:"err"`
	}
	if err := json.NewDecoder(bytes.NewReader(resp)).Decode(&probe); err != nil || probe.Err == "" {
		return nil
	}
	kind := KindNotecard
	switch {
	case strings.Contains(probe.Err, dfuInProgressMarker):
		kind = KindDFUInProgress
	case strings.Contains(probe.Err, fileStorageFullMarker):
		kind = KindFileStorageFull
	case name == "note.add":
		kind = KindAddingNote
	}
	return &Error{Kind: kind, Msg: Diagnostic([]byte(probe.Err))}
}

// DecodeJSON decodes exactly one JSON value from data. Anything but
// whitespace after it is reported as ErrRemainingData.
func DecodeJSON[R any](data []byte) (R, error) {
	var v R
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&v); err != nil {
		return v, NewDeserError(data, err)
	}
	if rest := bytes.TrimSpace(data[dec.InputOffset():]); len(rest) > 0 {
		return v, &Error{Kind: KindRemainingData, Msg: Diagnostic(rest)}
	}
	return v, nil
}

// Raw is an untyped request: a JSON object passed through as is. Its result
// is the response object, copied out of the working buffer.
type Raw json.RawMessage

func (r Raw) MarshalJSON() ([]byte, error) {
	if len(r) == 0 {
		return nil, &Error{Kind: KindSer, Msg: "empty request"}
	}
	return r, nil
}

// Name returns the "req" (or "cmd") field of the request, or "" if it has none.
func (r Raw) Name() string {
	var probe struct {
		Req string `json:"req"`
		Cmd string `json:"cmd"`
	}
	if err := json.Unmarshal(r, &probe); err != nil {
		return ""
	}
	if probe.Req != "" {
		return probe.Req
	}
	return probe.Cmd
}

func (Raw) Decode(data []byte) (json.RawMessage, error) {
	return DecodeJSON[json.RawMessage](data)
}
