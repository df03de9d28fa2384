//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: https://github.com/ooni/probe-cli/blob/v3.20.1/internal/measurexlite/conn.go
// Adapted from: https://github.com/rbmk-project/rbmk/blob/v0.17.0/pkg/x/netcore/conn.go
//

package evhttp

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/bassosimone/safeconn"
)

// NewObserveConnFunc returns a new [*ObserveConnFunc].
func NewObserveConnFunc(cfg *Config, logger SLogger) *ObserveConnFunc {
	return &ObserveConnFunc{
		ErrClassifier: cfg.ErrClassifier,
		Logger:        logger,
		TimeNow:       cfg.TimeNow,
	}
}

// ObserveConnFunc wraps a [net.Conn] to log I/O operations at debug level.
//
// The client's raw socket goes through this wrapper, so a debug-level
// logger sees every read issued by the body-read loop, including the
// final one returning EOF.
//
// All fields are safe to modify after construction but before first use.
type ObserveConnFunc struct {
	// ErrClassifier classifies errors for structured logging.
	ErrClassifier ErrClassifier

	// Logger is the [SLogger] to use.
	Logger SLogger

	// TimeNow is the function to get the current time.
	TimeNow func() time.Time
}

var _ Func[net.Conn, net.Conn] = &ObserveConnFunc{}

// Call implements [Func].
func (op *ObserveConnFunc) Call(ctx context.Context, conn net.Conn) (net.Conn, error) {
	observed := &observedConn{
		Conn: conn,
		attrs: []any{
			slog.String("localAddr", safeconn.LocalAddr(conn)),
			slog.String("protocol", safeconn.Network(conn)),
			slog.String("remoteAddr", safeconn.RemoteAddr(conn)),
		},
		op: op,
	}
	return observed, nil
}

type observedConn struct {
	net.Conn
	attrs     []any
	closeonce sync.Once
	op        *ObserveConnFunc
}

func (c *observedConn) ioStart(event string, size int) time.Time {
	t0 := c.op.TimeNow()
	args := append([]any{slog.Int("ioBufferSize", size), slog.Time("t", t0)}, c.attrs...)
	c.op.Logger.Debug(event, args...)
	return t0
}

func (c *observedConn) ioDone(event string, t0 time.Time, count int, err error) {
	args := append([]any{
		slog.Int("ioBytesCount", count),
		slog.Any("err", err),
		slog.String("errClass", c.op.ErrClassifier.Classify(err)),
		slog.Time("t0", t0),
		slog.Time("t", c.op.TimeNow()),
	}, c.attrs...)
	c.op.Logger.Debug(event, args...)
}

// Read implements [net.Conn].
func (c *observedConn) Read(buf []byte) (int, error) {
	t0 := c.ioStart("readStart", len(buf))
	count, err := c.Conn.Read(buf)
	c.ioDone("readDone", t0, count, err)
	return count, err
}

// Write implements [net.Conn].
func (c *observedConn) Write(data []byte) (int, error) {
	t0 := c.ioStart("writeStart", len(data))
	count, err := c.Conn.Write(data)
	c.ioDone("writeDone", t0, count, err)
	return count, err
}

// SetDeadline implements [net.Conn].
func (c *observedConn) SetDeadline(t time.Time) error {
	c.logDeadline("setDeadline", t)
	return c.Conn.SetDeadline(t)
}

// SetReadDeadline implements [net.Conn].
func (c *observedConn) SetReadDeadline(t time.Time) error {
	c.logDeadline("setReadDeadline", t)
	return c.Conn.SetReadDeadline(t)
}

// SetWriteDeadline implements [net.Conn].
func (c *observedConn) SetWriteDeadline(t time.Time) error {
	c.logDeadline("setWriteDeadline", t)
	return c.Conn.SetWriteDeadline(t)
}

func (c *observedConn) logDeadline(event string, deadline time.Time) {
	args := append([]any{slog.Time("deadline", deadline), slog.Time("t", c.op.TimeNow())}, c.attrs...)
	c.op.Logger.Debug(event, args...)
}

// Close implements [net.Conn].
//
// Subsequent calls return [net.ErrClosed].
func (c *observedConn) Close() (err error) {
	err = net.ErrClosed
	c.closeonce.Do(func() {
		t0 := c.op.TimeNow()
		c.op.Logger.Info("closeStart", append([]any{slog.Time("t", t0)}, c.attrs...)...)
		err = c.Conn.Close()
		c.op.Logger.Info("closeDone", append([]any{
			slog.Any("err", err),
			slog.String("errClass", c.op.ErrClassifier.Classify(err)),
			slog.Time("t0", t0),
			slog.Time("t", c.op.TimeNow()),
		}, c.attrs...)...)
	})
	return
}
