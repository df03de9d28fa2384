// SPDX-License-Identifier: GPL-3.0-or-later

package evhttp

import (
	"context"
	"errors"
	"io"
	"net"
	"net/netip"
)

// NewTCPSocket returns a [*TCPSocket] whose connections are dialed by
// [*ConnectFunc], observed by [*ObserveConnFunc], and closed when the
// context passed to Connect is done via [*CancelWatchFunc].
func NewTCPSocket(cfg *Config, logger SLogger) *TCPSocket {
	return &TCPSocket{
		Dial: Compose3(
			NewConnectFunc(cfg, "tcp", logger),
			NewObserveConnFunc(cfg, logger),
			NewCancelWatchFunc(),
		),
	}
}

// TCPSocket is a plain TCP [Socket].
//
// Read, Write, and Close fail with [ErrNotConnected] before Connect succeeds.
type TCPSocket struct {
	// Dial establishes a connection with a single endpoint.
	//
	// Set by [NewTCPSocket]. Safe to modify before Connect.
	Dial Func[netip.AddrPort, net.Conn]

	conn net.Conn
}

var _ Socket = &TCPSocket{}

// Connect tries the endpoints in order and keeps the first connection
// that succeeds. The returned error joins the errors of all attempts.
func (s *TCPSocket) Connect(ctx context.Context, endpoints []netip.AddrPort) error {
	if len(endpoints) <= 0 {
		return ErrNoEndpoints
	}
	var errv []error
	for _, endpoint := range endpoints {
		conn, err := s.Dial.Call(ctx, endpoint)
		if err == nil {
			s.conn = conn
			return nil
		}
		errv = append(errv, err)
		if ctx.Err() != nil {
			break
		}
	}
	return errors.Join(errv...)
}

// Conn returns the connected [net.Conn] or nil.
func (s *TCPSocket) Conn() net.Conn {
	return s.conn
}

// Read implements [Socket].
func (s *TCPSocket) Read(buf []byte) (int, error) {
	if s.conn == nil {
		return 0, ErrNotConnected
	}
	return s.conn.Read(buf)
}

// Write implements [Socket].
func (s *TCPSocket) Write(data []byte) (int, error) {
	if s.conn == nil {
		return 0, ErrNotConnected
	}
	return s.conn.Write(data)
}

// Close implements [Socket].
//
// Closing a socket that never connected is a no-op.
func (s *TCPSocket) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

// LowestLayer implements [Socket].
func (s *TCPSocket) LowestLayer() *TCPSocket {
	return s
}

// IsBenignClose implements [Socket]. Only [io.EOF] is benign.
func (s *TCPSocket) IsBenignClose(err error) bool {
	return errors.Is(err, io.EOF)
}
