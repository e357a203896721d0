// Package publicurl builds absolute URLs for media served by the relay.
package publicurl

import (
	"strings"
	"sync/atomic"
)

// Resolve joins relativePath onto the first non-empty base of: the
// configured base URL, the discovered tunnel URL, or "http://" + requestHost.
// relativePath must begin with "/".
func Resolve(relativePath, configuredBase, tunnelURL, requestHost string) string {
	base := configuredBase
	if base == "" {
		base = tunnelURL
	}
	if base == "" {
		base = "http://" + requestHost
	}
	return strings.TrimRight(base, "/") + relativePath
}

// Resolver holds the configured base URL and the tunnel URL, which may be
// discovered after the server has started.
type Resolver struct {
	base   string
	tunnel atomic.Value // string
}

func NewResolver(configuredBase string) *Resolver {
	r := &Resolver{base: configuredBase}
	r.tunnel.Store("")
	return r
}

// SetTunnelURL records the public tunnel URL. Safe for concurrent use.
func (r *Resolver) SetTunnelURL(u string) {
	r.tunnel.Store(u)
}

func (r *Resolver) TunnelURL() string {
	return r.tunnel.Load().(string)
}

// ConfiguredBase returns the base URL from configuration, if any.
func (r *Resolver) ConfiguredBase() string { return r.base }

func (r *Resolver) Resolve(relativePath, requestHost string) string {
	return Resolve(relativePath, r.base, r.TunnelURL(), requestHost)
}
