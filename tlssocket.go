// SPDX-License-Identifier: GPL-3.0-or-later

package evhttp

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
)

// NewTLSSocket returns a [*TLSSocket] decorating a new [*TCPSocket].
func NewTLSSocket(cfg *Config, tlsConfig *tls.Config, logger SLogger) *TLSSocket {
	return &TLSSocket{
		TLSHandshake: NewTLSHandshakeFunc(cfg, tlsConfig, logger),
		lowest:       NewTCPSocket(cfg, logger),
	}
}

// TLSSocket is a [Socket] speaking TLS over a [*TCPSocket].
//
// Read and Write fail with [ErrNotConnected] before Handshake succeeds.
type TLSSocket struct {
	// TLSHandshake performs the client-role handshake.
	//
	// Set by [NewTLSSocket]. Safe to modify before Handshake.
	TLSHandshake *TLSHandshakeFunc

	conn   TLSConn
	lowest *TCPSocket
}

var (
	_ Socket     = &TLSSocket{}
	_ Handshaker = &TLSSocket{}
)

// Handshake implements [Handshaker].
//
// On failure the lowest layer connection is closed.
func (s *TLSSocket) Handshake(ctx context.Context) error {
	raw := s.lowest.Conn()
	if raw == nil {
		return ErrNotConnected
	}
	conn, err := s.TLSHandshake.Call(ctx, raw)
	if err != nil {
		return err
	}
	s.conn = conn
	return nil
}

// ConnectionState returns the TLS connection state. It is the zero
// value before the handshake completes.
func (s *TLSSocket) ConnectionState() tls.ConnectionState {
	if s.conn == nil {
		return tls.ConnectionState{}
	}
	return s.conn.ConnectionState()
}

// Read implements [Socket].
func (s *TLSSocket) Read(buf []byte) (int, error) {
	if s.conn == nil {
		return 0, ErrNotConnected
	}
	return s.conn.Read(buf)
}

// Write implements [Socket].
func (s *TLSSocket) Write(data []byte) (int, error) {
	if s.conn == nil {
		return 0, ErrNotConnected
	}
	return s.conn.Write(data)
}

// Close implements [Socket].
func (s *TLSSocket) Close() error {
	if s.conn == nil {
		return s.lowest.Close()
	}
	return s.conn.Close()
}

// LowestLayer implements [Socket].
func (s *TLSSocket) LowestLayer() *TCPSocket {
	return s.lowest
}

// IsBenignClose implements [Socket].
//
// The decision belongs to the [TLSEngine] when it implements [BenignCloser].
// Otherwise only [io.EOF] is benign.
func (s *TLSSocket) IsBenignClose(err error) bool {
	if bc, ok := s.TLSHandshake.Engine.(BenignCloser); ok {
		return bc.IsBenignClose(err)
	}
	return errors.Is(err, io.EOF)
}
