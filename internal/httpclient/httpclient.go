// Package httpclient builds the pooled HTTP client shared by every outbound
// call (LINE content and profile APIs, Discord webhooks, the ngrok API).
package httpclient

import (
	"net"
	"net/http"
	"time"
)

// DefaultTimeout bounds a single outbound round trip.
const DefaultTimeout = 30 * time.Second

// Shared returns an HTTP client with connection pooling and an overall
// request timeout. A non-positive timeout selects DefaultTimeout.
func Shared(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: timeout,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}
