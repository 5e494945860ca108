package notecard

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kstaniek/go-notecard-server/internal/notecard/notecardtest"
)

func TestSegmentLength(t *testing.T) {
	assert.Equal(t, 240, SegmentLen)
	for chunk := 1; chunk <= 40; chunk++ {
		for budget := 0; budget <= 300; budget += 7 {
			for hard := 0; hard <= 300; hard += 13 {
				got := SegmentLength(chunk, budget, hard)
				limit := min(budget, hard)
				if limit < chunk {
					require.Zero(t, got, "chunk=%d budget=%d hard=%d", chunk, budget, hard)
					continue
				}
				require.Zero(t, got%chunk)
				require.LessOrEqual(t, got, limit)
				require.Greater(t, got+chunk, limit)
			}
		}
	}
	assert.Zero(t, SegmentLength(0, 250, 250))
	assert.Zero(t, SegmentLength(-3, 250, 250))
}

func TestSendRejectsUnterminated(t *testing.T) {
	card := notecardtest.NewCard(nil)
	n := New(card, &notecardtest.Delay{})

	err := n.send(context.Background())
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, _ = n.buf.Write([]byte(`{"req":"hub.get"}`))
	err = n.send(context.Background())
	assert.ErrorIs(t, err, ErrInvalidRequest)
	assert.Empty(t, card.Writes())
}

func TestSendSegments(t *testing.T) {
	card := notecardtest.NewCard(nil)
	delay := &notecardtest.Delay{}
	cfg := DefaultConfig()
	n := New(card, delay, WithConfig(cfg))

	req := Raw(`{"req":"note.add","body":{"text":"` + strings.Repeat("a", 600) + `"}}`)
	require.NoError(t, n.encode(req))
	total := n.buf.Len()
	require.NoError(t, n.send(context.Background()))

	writes := card.Writes()
	require.Len(t, writes, (total+SegmentLen-1)/SegmentLen)
	for i, w := range writes[:len(writes)-1] {
		assert.Len(t, w, SegmentLen, "segment %d", i)
	}
	assert.Equal(t, n.buf.Bytes(), card.Written())
	assert.Equal(t, time.Duration(len(writes))*cfg.SegmentDelay, delay.Total(cfg.SegmentDelay))
}

func TestSendWriteError(t *testing.T) {
	boom := errors.New("boom")
	card := notecardtest.NewCard(nil)
	card.WriteErr = boom
	n := New(card, &notecardtest.Delay{})
	require.NoError(t, n.encode(Raw(`{"req":"card.version"}`)))

	err := n.send(context.Background())
	assert.ErrorIs(t, err, ErrWrite)
	assert.ErrorIs(t, err, boom)
}

func TestResetClean(t *testing.T) {
	card := notecardtest.NewCard(nil)
	n := New(card, &notecardtest.Delay{})
	require.True(t, n.ResetRequired())

	require.NoError(t, n.Reset(context.Background()))
	assert.False(t, n.ResetRequired())
	assert.Equal(t, [][]byte{[]byte("\n")}, card.Writes())
}

func TestResetNoiseExhaustsRetries(t *testing.T) {
	card := &notecardtest.Card{Respond: func([]byte) []byte { return []byte("x\r\n") }}
	n := New(card, &notecardtest.Delay{})

	err := n.Reset(context.Background())
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Len(t, card.Writes(), 5)
	assert.True(t, n.ResetRequired())
}

func TestResetSilence(t *testing.T) {
	card := &notecardtest.Card{Respond: func([]byte) []byte { return nil }}
	delay := &notecardtest.Delay{}
	n := New(card, delay)

	err := n.Reset(context.Background())
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Len(t, card.Writes(), 5)
	assert.Equal(t, 5*ResetDrainDelay, delay.Total(ResetDrainDelay))
}

func TestResetRecoversAfterNoise(t *testing.T) {
	calls := 0
	card := &notecardtest.Card{Respond: func([]byte) []byte {
		calls++
		if calls < 3 {
			return []byte("garbage\r\n")
		}
		return []byte("\r\n")
	}}
	n := New(card, &notecardtest.Delay{})

	require.NoError(t, n.Reset(context.Background()))
	assert.Len(t, card.Writes(), 3)
}

// parkedDelay blocks until its context ends and records that it returned.
type parkedDelay struct{ returned atomic.Int32 }

func (d *parkedDelay) Delay(ctx context.Context, _ time.Duration) error {
	<-ctx.Done()
	d.returned.Add(1)
	return ctx.Err()
}

func TestReadOrTimeoutJoinsTimer(t *testing.T) {
	card := notecardtest.NewCard(nil)
	card.Push([]byte("\r"))
	delay := &parkedDelay{}
	n := New(card, delay)

	var b [1]byte
	got, timedOut, err := n.readOrTimeout(context.Background(), b[:], time.Hour)
	require.NoError(t, err)
	assert.False(t, timedOut)
	assert.Equal(t, 1, got)
	assert.Equal(t, int32(1), delay.returned.Load(), "timer still running after read won")

	// Nothing left behind may touch the driver once it is suspended.
	_, _ = n.Suspend()
}

func TestResetKeepsTransportCause(t *testing.T) {
	lost := &os.PathError{Op: "read", Path: "/dev/ttyUSB0", Err: syscall.EIO}
	card := notecardtest.NewCard(nil)
	card.ReadErr = lost
	card.WriteErr = lost
	cfg := DefaultConfig()
	cfg.TransactionRetry = 2
	n := New(card, &notecardtest.Delay{}, WithConfig(cfg))

	err := n.Reset(context.Background())
	assert.ErrorIs(t, err, ErrTimeout)
	var perr *os.PathError
	require.ErrorAs(t, err, &perr)
	assert.Same(t, lost, perr)
	assert.Len(t, card.Writes(), 2)
}

func TestResetSilenceHasNoCause(t *testing.T) {
	card := &notecardtest.Card{Respond: func([]byte) []byte { return nil }}
	cfg := DefaultConfig()
	cfg.TransactionRetry = 1
	n := New(card, &notecardtest.Delay{}, WithConfig(cfg))

	err := n.Reset(context.Background())
	var ne *Error
	require.ErrorAs(t, err, &ne)
	assert.Equal(t, KindTimeout, ne.Kind)
	assert.NoError(t, ne.Err)
}

func TestResetCancelled(t *testing.T) {
	card := &notecardtest.Card{Respond: func([]byte) []byte { return nil }}
	n := New(card, &notecardtest.Delay{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := n.Reset(ctx)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTransactionRaw(t *testing.T) {
	card := notecardtest.NewCard(func(line []byte) []byte {
		assert.JSONEq(t, `{"req":"card.version"}`, string(line))
		return []byte(`{"version":"notecard-7.1"}` + "\r\n")
	})
	n := New(card, &notecardtest.Delay{})

	res, err := Transaction[json.RawMessage](context.Background(), n, Raw(`{"req":"card.version"}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"version":"notecard-7.1"}`, string(res))
	assert.False(t, n.ResetRequired())
	assert.Equal(t, "\n{\"req\":\"card.version\"}\n", string(card.Written()))

	// second transaction does not resynchronize
	card.ResetWrites()
	_, err = Transaction[json.RawMessage](context.Background(), n, Raw(`{"req":"card.version"}`))
	require.NoError(t, err)
	assert.Equal(t, "{\"req\":\"card.version\"}\n", string(card.Written()))
}

func TestTransactionDeviceErrors(t *testing.T) {
	cases := []struct {
		req  string
		resp string
		want error
	}{
		{`{"req":"card.version"}`, `{"err":"something failed"}`, ErrNotecard},
		{`{"req":"note.add"}`, `{"err":"no notefile"}`, ErrAddingNote},
		{`{"req":"hub.sync"}`, `{"err":"firmware update {dfu-in-progress}"}`, ErrDFUInProgress},
		{`{"req":"note.add"}`, `{"err":"cannot add {file-storage-full}"}`, ErrFileStorageFull},
	}
	for _, tc := range cases {
		t.Run(tc.resp, func(t *testing.T) {
			card := notecardtest.NewCard(func([]byte) []byte { return []byte(tc.resp + "\r\n") })
			n := New(card, &notecardtest.Delay{})
			_, err := Transaction[json.RawMessage](context.Background(), n, Raw(tc.req))
			require.ErrorIs(t, err, tc.want)
			var ne *Error
			require.ErrorAs(t, err, &ne)
			assert.NotEmpty(t, ne.Msg)
		})
	}
}

func TestTransactionMalformedResponse(t *testing.T) {
	card := notecardtest.NewCard(func([]byte) []byte { return []byte(`{"version":` + "\r\n") })
	n := New(card, &notecardtest.Delay{})

	_, err := Transaction[json.RawMessage](context.Background(), n, Raw(`{"req":"card.version"}`))
	require.ErrorIs(t, err, ErrDeser)
	var ne *Error
	require.ErrorAs(t, err, &ne)
	assert.LessOrEqual(t, len(ne.Msg), DiagnosticLen)
	assert.Contains(t, ne.Msg, `{"version":`)
}

func TestTransactionResponseTimeout(t *testing.T) {
	card := notecardtest.NewCard(func([]byte) []byte { return nil })
	cfg := DefaultConfig()
	cfg.ResponseTimeout = 20 * time.Millisecond
	n := New(card, &notecardtest.Delay{}, WithConfig(cfg))

	_, err := Transaction[json.RawMessage](context.Background(), n, Raw(`{"req":"card.version"}`))
	require.ErrorIs(t, err, ErrTimeout)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// the driver never re-arms on its own
	assert.False(t, n.ResetRequired())
	n.RequireReset()
	assert.True(t, n.ResetRequired())
}

func TestTransactionRequestTooLarge(t *testing.T) {
	card := notecardtest.NewCard(nil)
	cfg := DefaultConfig()
	cfg.BufferSize = 32
	n := New(card, &notecardtest.Delay{}, WithConfig(cfg))

	_, err := Transaction[json.RawMessage](context.Background(), n, Raw(`{"req":"note.add","body":{"text":"too long for buffer"}}`))
	require.ErrorIs(t, err, ErrSer)
	assert.ErrorIs(t, err, ErrBufOverflow)
	// only the resync newline reached the device
	assert.Equal(t, "\n", string(card.Written()))
}

func TestTransactionEmptyRaw(t *testing.T) {
	n := New(notecardtest.NewCard(nil), &notecardtest.Delay{})
	_, err := Transaction[json.RawMessage](context.Background(), n, Raw(nil))
	assert.ErrorIs(t, err, ErrSer)
}

func TestReceiveOverflow(t *testing.T) {
	card := notecardtest.NewCard(nil)
	cfg := DefaultConfig()
	cfg.BufferSize = 64
	n := New(card, &notecardtest.Delay{}, WithConfig(cfg))
	card.Push([]byte(`{"payload":"` + strings.Repeat("z", 100) + `"}` + "\r\n"))

	err := n.receive(context.Background())
	assert.ErrorIs(t, err, ErrBufOverflow)
}

func TestReceiveReadError(t *testing.T) {
	boom := errors.New("port gone")
	card := notecardtest.NewCard(nil)
	card.ReadErr = boom
	n := New(card, &notecardtest.Delay{})

	err := n.receive(context.Background())
	assert.ErrorIs(t, err, ErrRead)
	assert.ErrorIs(t, err, boom)
}

func TestReceiveFraming(t *testing.T) {
	chunks := [][]byte{[]byte("x\n"), []byte("y\r"), []byte("\r\n")}

	card := notecardtest.NewCard(nil)
	n := New(card, &notecardtest.Delay{})
	card.Push(chunks...)
	require.NoError(t, n.receive(context.Background()))
	assert.Equal(t, "x\ny\r", string(n.buf.Bytes()))

	cfg := DefaultConfig()
	cfg.StrictFraming = true
	card = notecardtest.NewCard(nil)
	n = New(card, &notecardtest.Delay{}, WithConfig(cfg))
	card.Push(chunks...)
	require.NoError(t, n.receive(context.Background()))
	assert.Equal(t, "x\ny\r\r\n", string(n.buf.Bytes()))
}

func TestSuspendResume(t *testing.T) {
	card := notecardtest.NewCard(nil)
	delay := &notecardtest.Delay{}
	cfg := DefaultConfig()
	cfg.TransactionRetry = 2
	cfg.SegmentDelay = 5 * time.Millisecond
	n := New(card, delay, WithConfig(cfg))
	_, _ = n.buf.Write([]byte("leftover"))

	iface, state := n.Suspend()
	assert.Same(t, card, iface)
	assert.Equal(t, cfg, state.Config())
	assert.True(t, state.ResetRequired())

	_, err := Transaction[json.RawMessage](context.Background(), n, Raw(`{"req":"card.version"}`))
	assert.ErrorIs(t, err, ErrWrongState)
	assert.ErrorIs(t, n.Reset(context.Background()), ErrWrongState)

	r := Resume(iface, delay, state)
	assert.Equal(t, cfg, r.Config())
	assert.True(t, r.ResetRequired())
	assert.Zero(t, r.buf.Len())
	assert.Equal(t, cfg.BufferSize, r.buf.Cap())

	require.NoError(t, r.Reset(context.Background()))
	_, state = r.Suspend()
	assert.False(t, state.ResetRequired())
}

func TestDiagnostic(t *testing.T) {
	assert.Equal(t, "short", Diagnostic([]byte("short")))
	assert.Equal(t, "[invalid utf8]", Diagnostic([]byte{'{', 0xff, 0xfe}))
	assert.Len(t, Diagnostic([]byte(strings.Repeat("a", 1000))), DiagnosticLen)

	// a two-byte rune straddling the limit is dropped whole
	b := []byte(strings.Repeat("a", DiagnosticLen-1) + "é" + "tail")
	d := Diagnostic(b)
	assert.Len(t, d, DiagnosticLen-1)
	assert.NotContains(t, d, "é")
}

func TestDecodeJSONRemainingData(t *testing.T) {
	v, err := DecodeJSON[map[string]int]([]byte("{\"a\":1}\r\n"))
	require.NoError(t, err)
	assert.Equal(t, 1, v["a"])

	_, err = DecodeJSON[map[string]int]([]byte("{\"a\":1}\r\n{\"b\":2}"))
	assert.ErrorIs(t, err, ErrRemainingData)
}

func TestBuffer(t *testing.T) {
	b := NewBuffer(4)
	k, err := b.Write([]byte("abc"))
	require.NoError(t, err)
	assert.Equal(t, 3, k)

	_, err = b.Write([]byte("de"))
	assert.ErrorIs(t, err, ErrBufOverflow)
	assert.Equal(t, "abc", string(b.Bytes()))

	require.NoError(t, b.WriteByte('d'))
	assert.ErrorIs(t, b.WriteByte('e'), ErrBufOverflow)
	assert.Zero(t, b.Available())

	b.Reset()
	assert.Zero(t, b.Len())
	assert.Equal(t, 4, b.Cap())
}

func TestErrorFormatting(t *testing.T) {
	err := &Error{Kind: KindRead, Msg: "ctx", Err: errors.New("eof")}
	assert.Equal(t, "notecard: read error: ctx: eof", err.Error())
	assert.False(t, errors.Is(err, ErrWrite))
	assert.Equal(t, "kind(99)", Kind(99).String())
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
	bad := DefaultConfig()
	bad.BufferSize = 0
	assert.Error(t, bad.Validate())
	bad = DefaultConfig()
	bad.SegmentDelay = -time.Second
	assert.Error(t, bad.Validate())
}

func TestSystemDelay(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, SystemDelay{}.Delay(ctx, time.Hour), context.Canceled)
	assert.NoError(t, SystemDelay{}.Delay(context.Background(), time.Millisecond))
}
