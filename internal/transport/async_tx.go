// Package transport serializes work onto a single goroutine.
package transport

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// AsyncTx owns one worker goroutine that runs send for every submitted job,
// in submission order. Submit never blocks: when the queue is full the OnDrop
// hook decides the error returned to the producer.
//
// The Notecard driver is single-owner, so every transaction from every TCP
// client goes through one AsyncTx.
//
//	a := NewAsyncTx(ctx, queue, send, hooks)
//	a.Submit(job)
//	a.Close()
type AsyncTx[T any] struct {
	mu     sync.Mutex
	ch     chan T
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	send   func(context.Context, T) error
	hooks  Hooks
	closed atomic.Bool
}

// Hooks customize AsyncTx behavior.
type Hooks struct {
	// OnError is called when send returns a non-nil error.
	OnError func(error)
	// OnAfter is called only after a successful send.
	OnAfter func()
	// OnDrop is called when the queue is full; its returned error is returned
	// from Submit. If nil, the overflow is silent.
	OnDrop func() error
}

var ErrAsyncTxClosed = errors.New("async tx closed")

// NewAsyncTx starts the worker with a queue of size buf. The context passed
// to send is cancelled by Close or by the parent.
func NewAsyncTx[T any](parent context.Context, buf int, send func(context.Context, T) error, hooks Hooks) *AsyncTx[T] {
	ctx, cancel := context.WithCancel(parent)
	a := &AsyncTx[T]{
		ch:     make(chan T, buf),
		ctx:    ctx,
		cancel: cancel,
		send:   send,
		hooks:  hooks,
	}
	a.wg.Add(1)
	go a.loop()
	return a
}

func (a *AsyncTx[T]) loop() {
	defer a.wg.Done()
	for {
		select {
		case job, ok := <-a.ch:
			if !ok {
				return
			}
			if a.ctx.Err() != nil {
				return
			}
			if err := a.send(a.ctx, job); err != nil {
				if a.hooks.OnError != nil {
					a.hooks.OnError(err)
				}
				continue
			}
			if a.hooks.OnAfter != nil {
				a.hooks.OnAfter()
			}
		case <-a.ctx.Done():
			return
		}
	}
}

// Submit queues job or returns the drop error if the queue is full.
func (a *AsyncTx[T]) Submit(job T) error {
	if a.closed.Load() {
		return ErrAsyncTxClosed
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed.Load() {
		return ErrAsyncTxClosed
	}
	select {
	case a.ch <- job:
		return nil
	default:
		if a.hooks.OnDrop != nil {
			return a.hooks.OnDrop()
		}
		return nil
	}
}

// Len reports queued jobs not yet picked up by the worker.
func (a *AsyncTx[T]) Len() int { return len(a.ch) }

// Close stops the worker, cancelling an in-flight send, and waits for it.
// Queued jobs are discarded.
func (a *AsyncTx[T]) Close() {
	if a.closed.Swap(true) {
		return
	}
	a.cancel()
	a.mu.Lock()
	close(a.ch)
	a.mu.Unlock()
	a.wg.Wait()
}
