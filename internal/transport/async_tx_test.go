package transport

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

var (
	errOverflow = errors.New("overflow")
	errSendFail = errors.New("send fail")
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(500 * time.Millisecond)
	for time.Now().Before(deadline) && !cond() {
		time.Sleep(5 * time.Millisecond)
	}
}

// TestAsyncTxOrder verifies jobs run in submission order and hooks fire.
func TestAsyncTxOrder(t *testing.T) {
	var got []int
	var after atomic.Int64
	done := make(chan struct{})
	ax := NewAsyncTx(context.Background(), 4, func(_ context.Context, v int) error {
		got = append(got, v)
		if len(got) == 3 {
			close(done)
		}
		return nil
	}, Hooks{OnAfter: func() { after.Add(1) }})
	defer ax.Close()
	for i := 0; i < 3; i++ {
		if err := ax.Submit(i); err != nil {
			t.Fatalf("unexpected submit error: %v", err)
		}
	}
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("jobs not processed")
	}
	waitFor(t, func() bool { return after.Load() == 3 })
	if got[0] != 0 || got[1] != 1 || got[2] != 2 || after.Load() != 3 {
		t.Fatalf("expected ordered jobs and 3 after hooks, got %v after=%d", got, after.Load())
	}
}

// TestAsyncTxOverflow ensures OnDrop is invoked when the queue is full.
func TestAsyncTxOverflow(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	var drops atomic.Int64
	ax := NewAsyncTx(context.Background(), 1, func(ctx context.Context, _ string) error {
		started <- struct{}{}
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil
	}, Hooks{OnDrop: func() error { drops.Add(1); return errOverflow }})
	defer ax.Close()
	if err := ax.Submit("first"); err != nil {
		t.Fatalf("unexpected error submitting first: %v", err)
	}
	<-started // worker busy with first
	if err := ax.Submit("second"); err != nil {
		t.Fatalf("unexpected error submitting second: %v", err)
	}
	if err := ax.Submit("third"); !errors.Is(err, errOverflow) {
		t.Fatalf("expected overflow error, got %v", err)
	}
	if drops.Load() != 1 {
		t.Fatalf("expected 1 drop, got %d", drops.Load())
	}
	close(release)
}

// TestAsyncTxSendError triggers OnError hook.
func TestAsyncTxSendError(t *testing.T) {
	var errs atomic.Int64
	ax := NewAsyncTx(context.Background(), 2, func(context.Context, int) error { return errSendFail }, Hooks{OnError: func(error) { errs.Add(1) }})
	defer ax.Close()
	_ = ax.Submit(1)
	waitFor(t, func() bool { return errs.Load() > 0 })
	if errs.Load() == 0 {
		t.Fatalf("expected error hook invocation")
	}
}

// TestAsyncTxCloseCancelsInFlight checks Close does not wait for a wedged send.
func TestAsyncTxCloseCancelsInFlight(t *testing.T) {
	started := make(chan struct{})
	var cancelled atomic.Bool
	ax := NewAsyncTx(context.Background(), 1, func(ctx context.Context, _ int) error {
		close(started)
		<-ctx.Done()
		cancelled.Store(true)
		return ctx.Err()
	}, Hooks{})
	_ = ax.Submit(1)
	<-started
	ax.Close()
	if !cancelled.Load() {
		t.Fatalf("in-flight send not cancelled")
	}
}

func TestAsyncTxSendAfterClose(t *testing.T) {
	tx := NewAsyncTx(context.Background(), 2, func(context.Context, int) error { return nil }, Hooks{})
	tx.Close()
	if err := tx.Submit(123); !errors.Is(err, ErrAsyncTxClosed) {
		t.Fatalf("expected ErrAsyncTxClosed, got %v", err)
	}
	tx.Close() // idempotent
}

func TestAsyncTxCloseConcurrentSubmit(t *testing.T) {
	for i := 0; i < 100; i++ {
		ax := NewAsyncTx(context.Background(), 1, func(context.Context, int) error { return nil }, Hooks{})
		done := make(chan error, 1)
		go func() {
			done <- ax.Submit(i)
		}()
		time.Sleep(1 * time.Millisecond)
		ax.Close()
		if err := <-done; err != nil && !errors.Is(err, ErrAsyncTxClosed) {
			t.Fatalf("iteration %d: unexpected submit error %v", i, err)
		}
	}
}
