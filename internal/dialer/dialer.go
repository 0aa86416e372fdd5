// Package dialer builds network dialers and HTTP transports that resolve
// hosts through a shared DNS cache.
package dialer

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/rs/dnscache"
)

// DialFunc matches net.Dialer.DialContext.
type DialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// Dial returns a DialFunc that resolves host names through resolver. A nil
// resolver yields a plain net.Dialer.
func Dial(resolver *dnscache.Resolver, timeout time.Duration) DialFunc {
	d := &net.Dialer{Timeout: timeout, KeepAlive: 30 * time.Second}
	if resolver == nil {
		return d.DialContext
	}
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		host, port, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, err
		}
		ips, err := resolver.LookupHost(ctx, host)
		if err != nil {
			return nil, err
		}
		var lastErr error
		for _, ip := range ips {
			conn, err := d.DialContext(ctx, network, net.JoinHostPort(ip, port))
			if err == nil {
				return conn, nil
			}
			lastErr = err
		}
		return nil, lastErr
	}
}

// NewTransport returns a tuned *http.Transport with connection pooling and
// optional DNS caching.
func NewTransport(resolver *dnscache.Resolver) *http.Transport {
	t := &http.Transport{
		MaxIdleConnsPerHost: 100,
		MaxConnsPerHost:     200,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 5 * time.Second,
	}
	if resolver != nil {
		t.DialContext = Dial(resolver, 5*time.Second)
	}
	return t
}
