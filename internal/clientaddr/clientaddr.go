// Package clientaddr normalizes client network addresses into the canonical
// form used as the presence registry's locality key.
//
// Devices may only discover peers whose normalized address matches their own,
// so all loopback spellings must collapse to one representation and
// IPv4-mapped IPv6 addresses must compare equal to their plain IPv4 form.
package clientaddr

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// Unknown is returned for empty or unparseable addresses. Connections with
// an unknown address still register, and only see peers that are equally
// unidentifiable.
const Unknown = "unknown"

// Normalize canonicalizes a remote address for locality comparison.
//
// The port, if present, is stripped. All loopback forms ("::1",
// "127.x.y.z") map to "127.0.0.1", and IPv4-mapped IPv6 addresses
// ("::ffff:a.b.c.d") unwrap to plain IPv4.
func Normalize(remoteAddr string) string {
	host := strings.TrimSpace(remoteAddr)
	if host == "" {
		return Unknown
	}
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.Trim(host, "[]")

	addr, err := netip.ParseAddr(host)
	if err != nil {
		return Unknown
	}
	addr = addr.Unmap()
	if addr.IsLoopback() {
		return "127.0.0.1"
	}
	return addr.String()
}

// FromRequest resolves the client address for an HTTP request.
//
// When trustProxy is set, the first hop of X-Forwarded-For wins; this is
// required behind TLS-terminating PaaS proxies where RemoteAddr is the load
// balancer, not the device.
func FromRequest(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			first, _, _ := strings.Cut(fwd, ",")
			if norm := Normalize(first); norm != Unknown {
				return norm
			}
		}
	}
	return Normalize(r.RemoteAddr)
}
