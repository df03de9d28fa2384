// SPDX-License-Identifier: GPL-3.0-or-later

package evhttp

import (
	"context"
	"net"
)

// dnsUnusedDialer is a [Dialer] that panics if DialContext is called.
//
// DNS transports exchange over the connection owned by a [*DNSConn] and
// must never dial on their own.
type dnsUnusedDialer struct{}

var _ Dialer = dnsUnusedDialer{}

// DialContext implements [Dialer] and always panics.
func (dnsUnusedDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	panic("evhttp: DNS transport must not dial; this is a programming error")
}
