// Copyright 2012 Apcera Inc. All rights reserved.

package nats

import (
	"net"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// stripScheme removes a leading "nats://" if present, per §4.C.
func stripScheme(uri string) string {
	if strings.HasPrefix(uri, "nats://") {
		return uri[len("nats://"):]
	}
	return uri
}

// resolveAddrs resolves the ordered server URI list to a flat,
// order-preserving pool of host:port candidates. An empty result pool is
// a configuration error surfaced before any I/O (§3 "Server address
// list" invariant).
func resolveAddrs(uris []string) ([]string, error) {
	if len(uris) == 0 {
		return nil, newError(KindConfiguration, errors.New("nats: no server URIs configured"))
	}

	var addrs []string
	for _, raw := range uris {
		host := stripScheme(raw)
		h, port, splitErr := net.SplitHostPort(host)
		if splitErr != nil {
			// No port at all; nothing sane to resolve.
			continue
		}
		// An IP literal needs no lookup; recombining it is a no-op but
		// keeps this branch symmetric with the resolved-name one below.
		if ip := net.ParseIP(h); ip != nil {
			addrs = append(addrs, net.JoinHostPort(h, port))
			continue
		}
		// Name resolution: resolve the host component and recombine for
		// every returned address, per §3's resolved-pool invariant.
		ips, err := net.LookupHost(h)
		if err != nil || len(ips) == 0 {
			continue
		}
		for _, ip := range ips {
			addrs = append(addrs, net.JoinHostPort(ip, port))
		}
	}

	if len(addrs) == 0 {
		return nil, newError(KindConfiguration, errors.New("nats: no valid NATS server addresses"))
	}
	return addrs, nil
}

// dial tries each resolved address in order, returning the first
// successful connection. With opts.KeepRetrying set it loops
// indefinitely with ReconnectWait backoff across full passes of the
// pool instead of surfacing ErrNoServers.
func dial(opts Options) (net.Conn, error) {
	addrs, err := resolveAddrs(opts.Servers)
	if err != nil {
		return nil, err
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	for {
		for _, addr := range addrs {
			c, err := net.DialTimeout("tcp", addr, timeout)
			if err == nil {
				return c, nil
			}
		}
		if !opts.KeepRetrying {
			return nil, newError(KindNoRoute, ErrNoServers)
		}
		wait := opts.ReconnectWait
		if wait <= 0 {
			wait = DefaultReconnectWait
		}
		time.Sleep(wait)
	}
}
