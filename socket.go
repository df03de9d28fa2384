// SPDX-License-Identifier: GPL-3.0-or-later

package evhttp

import (
	"context"
	"io"
)

// Socket is the transport capability a [*Client] drives.
//
// There are two implementations: [*TCPSocket] for plain HTTP and
// [*TLSSocket], which decorates a [*TCPSocket] and additionally implements
// [Handshaker]. A [*Client] is generic over the socket type, so the choice
// between them is made when the client is constructed.
type Socket interface {
	io.ReadWriteCloser

	// LowestLayer returns the TCP socket used for the raw connect step.
	LowestLayer() *TCPSocket

	// IsBenignClose reports whether a read error is an acceptable way for
	// the server to end the response body.
	IsBenignClose(err error) bool
}

// Handshaker is implemented by sockets requiring a handshake after connect.
type Handshaker interface {
	Handshake(ctx context.Context) error
}
