// SPDX-License-Identifier: GPL-3.0-or-later

package evhttp

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"net/netip"

	"github.com/bassosimone/dnscodec"
	"github.com/miekg/dns"
)

// DNSResolver resolves a [Query] by sending A and AAAA queries to a
// specific DNS server, using a fresh connection per exchange.
//
// Construct using [NewDNSOverUDPResolver], [NewDNSOverTCPResolver],
// [NewDNSOverTLSResolver], or [NewDNSOverHTTPSResolver].
type DNSResolver struct {
	// Dial establishes a connection to the DNS server.
	Dial Func[Unit, *DNSConn]

	// Ports maps service names to ports when the service is not numeric.
	Ports *net.Resolver
}

var _ Resolver = &DNSResolver{}

func newDNSResolver(dial Func[Unit, *DNSConn]) *DNSResolver {
	return &DNSResolver{Dial: dial, Ports: net.DefaultResolver}
}

func newDNSDialFunc(cfg *Config, network string, server netip.AddrPort, logger SLogger) Func[Unit, net.Conn] {
	return Compose4(
		ConstFunc(server),
		NewConnectFunc(cfg, network, logger),
		NewObserveConnFunc(cfg, logger),
		NewCancelWatchFunc(),
	)
}

// NewDNSOverUDPResolver returns a [*DNSResolver] using DNS-over-UDP.
func NewDNSOverUDPResolver(cfg *Config, server netip.AddrPort, logger SLogger) *DNSResolver {
	return newDNSResolver(Compose2(
		newDNSDialFunc(cfg, "udp", server, logger),
		NewDNSOverUDPConnFunc(cfg, logger),
	))
}

// NewDNSOverTCPResolver returns a [*DNSResolver] using DNS-over-TCP.
func NewDNSOverTCPResolver(cfg *Config, server netip.AddrPort, logger SLogger) *DNSResolver {
	return newDNSResolver(Compose2(
		newDNSDialFunc(cfg, "tcp", server, logger),
		NewDNSOverTCPConnFunc(cfg, logger),
	))
}

// NewDNSOverTLSResolver returns a [*DNSResolver] using DNS-over-TLS,
// verifying the server certificate against serverName.
func NewDNSOverTLSResolver(cfg *Config, server netip.AddrPort, serverName string, logger SLogger) *DNSResolver {
	tlsConfig := &tls.Config{NextProtos: []string{"dot"}, ServerName: serverName}
	return newDNSResolver(Compose3(
		newDNSDialFunc(cfg, "tcp", server, logger),
		NewTLSHandshakeFunc(cfg, tlsConfig, logger),
		NewDNSOverTLSConnFunc(cfg, logger),
	))
}

// NewDNSOverHTTPSResolver returns a [*DNSResolver] using DNS-over-HTTPS
// with the given URL (e.g., "https://dns.google/dns-query").
func NewDNSOverHTTPSResolver(cfg *Config, server netip.AddrPort, serverName, URL string, logger SLogger) *DNSResolver {
	tlsConfig := &tls.Config{NextProtos: []string{"h2", "http/1.1"}, ServerName: serverName}
	return newDNSResolver(Compose4(
		newDNSDialFunc(cfg, "tcp", server, logger),
		NewTLSHandshakeFunc(cfg, tlsConfig, logger),
		NewHTTPConnFunc(cfg, logger),
		NewDNSOverHTTPSConnFunc(cfg, URL, logger),
	))
}

// Resolve implements [Resolver].
//
// IP-address hosts are returned without querying the server. Otherwise
// IPv4 addresses come first, followed by IPv6 addresses. A failure of one
// query is tolerated when the other yields addresses.
func (r *DNSResolver) Resolve(ctx context.Context, query Query) ([]netip.AddrPort, error) {
	port, err := lookupServicePort(ctx, r.Ports, query.Service())
	if err != nil {
		return nil, err
	}
	if addr, err := netip.ParseAddr(query.Host()); err == nil {
		return endpointsFromAddrs([]netip.Addr{addr}, port)
	}

	var (
		addrs []netip.Addr
		errv  []error
	)
	for _, qtype := range []uint16{dns.TypeA, dns.TypeAAAA} {
		found, err := r.lookup(ctx, query.Host(), qtype)
		if err != nil {
			errv = append(errv, err)
			continue
		}
		addrs = append(addrs, found...)
	}
	if len(addrs) <= 0 {
		return nil, errors.Join(append([]error{ErrNoEndpoints}, errv...)...)
	}
	return endpointsFromAddrs(addrs, port)
}

func (r *DNSResolver) lookup(ctx context.Context, host string, qtype uint16) ([]netip.Addr, error) {
	conn, err := r.Dial.Call(ctx, Unit{})
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	resp, err := conn.Exchange(ctx, dnscodec.NewQuery(host, qtype))
	if err != nil {
		return nil, err
	}

	var records []string
	switch qtype {
	case dns.TypeA:
		records, err = resp.RecordsA()
	default:
		records, err = resp.RecordsAAAA()
	}
	if err != nil {
		return nil, err
	}

	addrs := make([]netip.Addr, 0, len(records))
	for _, record := range records {
		addr, err := netip.ParseAddr(record)
		if err != nil {
			continue
		}
		addrs = append(addrs, addr)
	}
	return addrs, nil
}
