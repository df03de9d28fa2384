// SPDX-License-Identifier: GPL-3.0-or-later

package evhttp

import (
	"context"
	"net"
	"net/netip"
	"strconv"
)

// Query identifies the destination of a request: a host and a service
// name or port number. It is an immutable value built by [NewQuery].
type Query struct {
	host    string
	service string
}

// NewQuery returns a [Query] for host and service (e.g., "https" or "8443").
func NewQuery(host, service string) Query {
	return Query{host: host, service: service}
}

// Host returns the host name or IP address.
func (q Query) Host() string {
	return q.host
}

// Service returns the service name or port number.
func (q Query) Service() string {
	return q.service
}

// String returns host and service joined like [net.JoinHostPort].
func (q Query) String() string {
	return net.JoinHostPort(q.host, q.service)
}

// Resolver maps a [Query] to candidate TCP endpoints.
type Resolver interface {
	Resolve(ctx context.Context, query Query) ([]netip.AddrPort, error)
}

// ResolverFunc adapts a function to the [Resolver] interface.
type ResolverFunc func(ctx context.Context, query Query) ([]netip.AddrPort, error)

var _ Resolver = ResolverFunc(nil)

// Resolve implements [Resolver].
func (f ResolverFunc) Resolve(ctx context.Context, query Query) ([]netip.AddrPort, error) {
	return f(ctx, query)
}

// NewSystemResolver returns a [*SystemResolver] using [net.DefaultResolver].
func NewSystemResolver() *SystemResolver {
	return &SystemResolver{Resolver: net.DefaultResolver}
}

// SystemResolver resolves queries using [*net.Resolver].
type SystemResolver struct {
	Resolver *net.Resolver
}

var _ Resolver = &SystemResolver{}

// Resolve implements [Resolver].
func (r *SystemResolver) Resolve(ctx context.Context, query Query) ([]netip.AddrPort, error) {
	port, err := lookupServicePort(ctx, r.Resolver, query.Service())
	if err != nil {
		return nil, err
	}
	addrs, err := r.Resolver.LookupNetIP(ctx, "ip", query.Host())
	if err != nil {
		return nil, err
	}
	return endpointsFromAddrs(addrs, port)
}

func endpointsFromAddrs(addrs []netip.Addr, port uint16) ([]netip.AddrPort, error) {
	if len(addrs) <= 0 {
		return nil, ErrNoEndpoints
	}
	out := make([]netip.AddrPort, 0, len(addrs))
	for _, addr := range addrs {
		out = append(out, netip.AddrPortFrom(addr.Unmap(), port))
	}
	return out, nil
}

// lookupServicePort maps a numeric port or a well-known TCP service name to a port.
func lookupServicePort(ctx context.Context, reso *net.Resolver, service string) (uint16, error) {
	if port, err := strconv.ParseUint(service, 10, 16); err == nil {
		return uint16(port), nil
	}
	port, err := reso.LookupPort(ctx, "tcp", service)
	if err != nil {
		return 0, err
	}
	return uint16(port), nil
}
