// SPDX-License-Identifier: GPL-3.0-or-later

package evhttp

import "context"

// Func is a blocking operation that accepts an input and returns a result.
//
// Every I/O step of a [*Client] is a Func. The [*Reactor] runs it off the
// reactor goroutine via [AsyncCall] and delivers the outcome as a continuation.
//
// Resource cleanup contract: when a Func receives a closeable resource as input
// and returns an error, it closes that resource before returning.
type Func[A, B any] interface {
	Call(ctx context.Context, input A) (B, error)
}

// FuncAdapter wraps a function as a [Func] implementation.
type FuncAdapter[A, B any] func(ctx context.Context, input A) (B, error)

// Call implements [Func].
func (f FuncAdapter[A, B]) Call(ctx context.Context, input A) (B, error) {
	return f(ctx, input)
}
