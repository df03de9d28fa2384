// SPDX-License-Identifier: GPL-3.0-or-later

package evhttp

import (
	"context"
	"net"
)

// NewCancelWatchFunc returns a new [*CancelWatchFunc].
func NewCancelWatchFunc() *CancelWatchFunc {
	return &CancelWatchFunc{}
}

// CancelWatchFunc closes the connection when the context is done.
//
// A [*Client] never enforces timeouts by itself. Reads and writes on a
// [net.Conn] ignore the context, so this is the mechanism through which a
// deadline or cancellation passed to [*Client.Finalize] interrupts a pending
// operation: the connection is closed, the operation fails, and the client
// reaches [StateFailed].
//
// Closing the returned connection unregisters the watcher, so no goroutine
// outlives the connection even if the context is never cancelled.
type CancelWatchFunc struct{}

var _ Func[net.Conn, net.Conn] = &CancelWatchFunc{}

// Call implements [Func].
func (op *CancelWatchFunc) Call(ctx context.Context, conn net.Conn) (net.Conn, error) {
	stop := context.AfterFunc(ctx, func() {
		conn.Close()
	})
	return &cancelWatchedConn{Conn: conn, stop: stop}, nil
}

type cancelWatchedConn struct {
	net.Conn
	stop func() bool
}

// Close unregisters the context watcher and closes the underlying connection.
func (c *cancelWatchedConn) Close() error {
	c.stop()
	return c.Conn.Close()
}
