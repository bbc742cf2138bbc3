// Package forwarder builds Herald's shared outbound HTTP client and
// implements the retry-with-backoff + re-signing wrapper used by every
// call Herald makes to an S3 or Swift backend (spec §4.4). The client
// construction (DNS caching DialContext, connection pool tuning) is kept
// verbatim in idiom from the teacher's main.go init().
package forwarder

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/rs/dnscache"
)

// NewClient builds the shared *http.Client every outbound call in Herald
// uses, generalizing the teacher's httpClient construction.
func NewClient(timeout time.Duration) *http.Client {
	resolver := &dnscache.Resolver{}

	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			resolver.Refresh(true)
		}
	}()

	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
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
					var dialer net.Dialer
					conn, err := dialer.DialContext(ctx, network, net.JoinHostPort(ip, port))
					if err == nil {
						return conn, nil
					}
					lastErr = err
				}
				return nil, fmt.Errorf("forwarder: failed to connect to %s: %w", addr, lastErr)
			},
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			MaxConnsPerHost:     20,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
			ForceAttemptHTTP2:   true,
		},
	}
}
