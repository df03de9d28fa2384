// SPDX-License-Identifier: GPL-3.0-or-later

// Command evfetch fetches a resource over HTTP or HTTPS with a bearer
// token and prints the response body.
//
// Usage:
//
//	evfetch [flags] {GET|POST} <url> <access_token>
//
// Only a 200 response is printed. Structured logs go to stderr.
package main

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/netip"
	"os"
	"os/signal"
	"time"

	"github.com/bassosimone/evhttp"
	"github.com/bassosimone/evhttp/internal/htmltext"
	"github.com/bassosimone/evhttp/internal/urlsplit"
)

// defaultTimeout bounds the whole request unless -timeout says otherwise.
const defaultTimeout = 30 * time.Second

func main() {
	var opts options
	flag.StringVar(&opts.Resolver, "resolver", "system", "DNS resolver: system, udp, tcp, dot, or doh")
	flag.StringVar(&opts.DNSServer, "dns-server", "", "DNS server address and port (default depends on -resolver)")
	flag.StringVar(&opts.DNSName, "dns-name", "", "DNS server name for dot and doh (default dns.google)")
	flag.StringVar(&opts.DoHURL, "doh-url", "", "DNS-over-HTTPS URL (default https://dns.google/dns-query)")
	flag.DurationVar(&opts.Timeout, "timeout", defaultTimeout, "Timeout for the whole request")
	flag.StringVar(&opts.LogLevel, "log-level", "error", "Log level: debug, info, warn, or error")
	flag.BoolVar(&opts.PrintHeaders, "i", false, "Print the response headers")
	flag.BoolVar(&opts.StripHTML, "strip-html", false, "Render an HTML body as plain text")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] {GET|POST} <url> <access_token>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 3 {
		flag.Usage()
		os.Exit(2)
	}
	opts.Method, opts.URL, opts.AccessToken = flag.Arg(0), flag.Arg(1), flag.Arg(2)
	opts.applyDefaults()

	if err := opts.validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, &opts, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts *options, stdout, stderr io.Writer) error {
	u, err := urlsplit.Split(opts.URL)
	if err != nil {
		return err
	}
	useTLS, service, err := transport(u)
	if err != nil {
		return err
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(opts.LogLevel)); err != nil {
		return err
	}
	logger := slog.New(slog.NewJSONHandler(stderr, &slog.HandlerOptions{Level: level}))
	logger = logger.With(slog.String("spanID", evhttp.NewSpanID()))

	cfg := evhttp.NewConfig()
	if cfg.Resolver, err = newResolver(cfg, opts, logger); err != nil {
		return err
	}

	var body bytes.Buffer
	headers := evhttp.HeaderSink(evhttp.DiscardHeaders)
	if opts.PrintHeaders {
		headers = func(block io.Reader) error {
			_, err := io.Copy(stdout, block)
			return err
		}
	}
	content := func(chunk io.Reader) error {
		if opts.StripHTML {
			_, err := io.Copy(&body, chunk)
			return err
		}
		_, err := io.Copy(stdout, chunk)
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	reactor := evhttp.NewReactor()
	query := evhttp.NewQuery(u.Host, service)
	if useTLS {
		client := evhttp.NewTLSClient(cfg, reactor, query, &tls.Config{}, headers, content, logger)
		err = fetch(ctx, reactor, client, opts, u)
	} else {
		client := evhttp.NewPlainClient(cfg, reactor, query, headers, content, logger)
		err = fetch(ctx, reactor, client, opts, u)
	}
	if err != nil {
		return err
	}

	if opts.StripHTML {
		text, err := htmltext.Strip(&body)
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, text)
	}
	return nil
}

// fetch writes the request, runs the reactor, and returns the client outcome.
func fetch[S evhttp.Socket](ctx context.Context, reactor *evhttp.Reactor,
	client *evhttp.Client[S], opts *options, u urlsplit.URL) error {
	client.AppendRequestLine(opts.Method, u.Path).
		AppendHeader("Authorization", "Bearer "+opts.AccessToken).
		AppendHeader("Accept", "*/*").
		AppendHeader("Host", u.Host).
		AppendHeader("Connection", "close")
	if err := client.Finalize(ctx); err != nil {
		return err
	}
	reactor.Run()
	return client.Err()
}

// newResolver returns the [evhttp.Resolver] selected by opts.
func newResolver(cfg *evhttp.Config, opts *options, logger evhttp.SLogger) (evhttp.Resolver, error) {
	if opts.Resolver == "system" {
		return evhttp.NewSystemResolver(), nil
	}
	server, err := netip.ParseAddrPort(opts.DNSServer)
	if err != nil {
		return nil, fmt.Errorf("invalid -dns-server: %w", err)
	}
	switch opts.Resolver {
	case "udp":
		return evhttp.NewDNSOverUDPResolver(cfg, server, logger), nil
	case "tcp":
		return evhttp.NewDNSOverTCPResolver(cfg, server, logger), nil
	case "dot":
		return evhttp.NewDNSOverTLSResolver(cfg, server, opts.DNSName, logger), nil
	case "doh":
		return evhttp.NewDNSOverHTTPSResolver(cfg, server, opts.DNSName, opts.DoHURL, logger), nil
	default:
		return nil, errors.New("unknown resolver: " + opts.Resolver)
	}
}
