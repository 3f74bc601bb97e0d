// Package txqueue provides a reusable asynchronous, non-blocking transmit
// funnel: many producers enqueue datagrams, one goroutine drains them onto
// the underlying socket. Generalized from the teacher's
// internal/transport.AsyncTx (which funneled can.Frame writes to a serial
// or SocketCAN device) to funnel raw UDP datagram bytes instead.
package txqueue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// ErrClosed is returned by Send once the queue has been closed.
var ErrClosed = errors.New("txqueue: closed")

// Hooks customize AsyncTx behavior without duplicating the goroutine and
// buffer plumbing across call sites (sender pacer, heartbeat, retransmits
// all share one instance).
type Hooks struct {
	// OnError is called when send returns a non-nil error (datagram not sent).
	OnError func(error)
	// OnAfter is called only after a successful send.
	OnAfter func()
	// OnDrop is called when the buffer is full; its returned error is
	// returned from Send. If nil, the datagram is silently dropped.
	OnDrop func() error
}

// AsyncTx funnels datagram sends through a single goroutine so producers
// never block behind a slow or wedged socket.
type AsyncTx struct {
	mu     sync.Mutex
	ch     chan []byte
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	send   func([]byte) error
	hooks  Hooks
	closed atomic.Bool
}

// New constructs an AsyncTx with a buffered channel of size buf.
func New(parent context.Context, buf int, send func([]byte) error, hooks Hooks) *AsyncTx {
	ctx, cancel := context.WithCancel(parent)
	a := &AsyncTx{
		ch:     make(chan []byte, buf),
		ctx:    ctx,
		cancel: cancel,
		send:   send,
		hooks:  hooks,
	}
	a.wg.Add(1)
	go a.loop()
	return a
}

func (a *AsyncTx) loop() {
	defer a.wg.Done()
	for {
		select {
		case b, ok := <-a.ch:
			if !ok {
				return
			}
			if err := a.send(b); err != nil {
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

// Send queues a datagram for asynchronous transmission, or returns the drop
// error if the buffer is full.
func (a *AsyncTx) Send(b []byte) error {
	if a.closed.Load() {
		return ErrClosed
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed.Load() {
		return ErrClosed
	}
	select {
	case a.ch <- b:
		return nil
	default:
		if a.hooks.OnDrop != nil {
			return a.hooks.OnDrop()
		}
		return nil
	}
}

// Close stops the worker and waits for pending operations to finish.
func (a *AsyncTx) Close() {
	if a.closed.Swap(true) {
		return
	}
	a.cancel()
	a.mu.Lock()
	close(a.ch)
	a.mu.Unlock()
	a.wg.Wait()
}
