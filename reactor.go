// SPDX-License-Identifier: GPL-3.0-or-later

package evhttp

import (
	"context"
	"sync"
)

// Reactor dispatches continuations of asynchronous operations.
//
// Operations started with [AsyncCall] run on their own goroutine. When one
// completes, its continuation is queued and later executed by [*Reactor.Run]
// on the goroutine calling Run. Continuations therefore never run
// concurrently with each other, and a [*Client] that issues its next
// operation only from within a continuation never has more than one
// operation in flight.
//
// Several clients may share a reactor. Construct using [NewReactor].
type Reactor struct {
	mu      sync.Mutex
	pending int
	queue   []func()
	wakeup  chan struct{}
}

// NewReactor returns a new [*Reactor] with no outstanding work.
func NewReactor() *Reactor {
	return &Reactor{wakeup: make(chan struct{}, 1)}
}

// Run executes queued continuations until no operation is outstanding and
// no continuation is queued.
//
// Run returns immediately when there is no work, so start clients (e.g., via
// [*Client.Finalize]) before calling it. Run must not be called concurrently
// from more than one goroutine.
func (r *Reactor) Run() {
	for {
		r.mu.Lock()
		batch, pending := r.queue, r.pending
		r.queue = nil
		r.mu.Unlock()

		if len(batch) <= 0 {
			if pending <= 0 {
				return
			}
			<-r.wakeup
			continue
		}

		for _, fn := range batch {
			fn()
		}
	}
}

// Post queues fn for execution on the reactor goroutine.
func (r *Reactor) Post(fn func()) {
	r.mu.Lock()
	r.queue = append(r.queue, fn)
	r.mu.Unlock()
	r.notify()
}

func (r *Reactor) begin() {
	r.mu.Lock()
	r.pending++
	r.mu.Unlock()
}

func (r *Reactor) end(fn func()) {
	r.mu.Lock()
	r.pending--
	r.queue = append(r.queue, fn)
	r.mu.Unlock()
	r.notify()
}

func (r *Reactor) notify() {
	select {
	case r.wakeup <- struct{}{}:
	default:
	}
}

// AsyncCall starts fn on a new goroutine and arranges for k to receive its
// outcome on the reactor goroutine.
//
// The operation counts as outstanding work for [*Reactor.Run] from the moment
// AsyncCall returns until k has been queued.
func AsyncCall[A, B any](r *Reactor, ctx context.Context, fn Func[A, B], input A, k func(B, error)) {
	r.begin()
	go func() {
		output, err := fn.Call(ctx, input)
		r.end(func() {
			k(output, err)
		})
	}()
}
