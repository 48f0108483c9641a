// Package origin validates browser Origin headers on WebSocket upgrades.
//
// Non-browser clients (native device agents) send no Origin header and are
// always admitted; a browser-supplied Origin must either match the
// configured allowlist or, when no allowlist is set, the request's own host.
package origin

import (
	"net/url"
	"strconv"
	"strings"
)

// Normalize validates and canonicalizes an Origin header value into
// scheme://host[:port] plus the host[:port] portion for same-host checks.
//
// The special value "null" (sandboxed iframes, some WebViews) is returned
// as-is; it can only be admitted by an explicit allowlist entry.
func Normalize(originHeader string) (normalized string, host string, ok bool) {
	trimmed := strings.TrimSpace(originHeader)
	if trimmed == "" {
		return "", "", false
	}
	if trimmed == "null" {
		return "null", "", true
	}

	u, err := url.Parse(trimmed)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", "", false
	}
	if u.User != nil || u.RawQuery != "" || u.Fragment != "" {
		return "", "", false
	}
	if u.Path != "" && u.Path != "/" {
		return "", "", false
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", "", false
	}

	hostname, port, ok := splitHostPort(strings.ToLower(u.Host))
	if !ok || hostname == "" {
		return "", "", false
	}

	var portNum uint64
	if port != "" {
		n, err := strconv.ParseUint(port, 10, 16)
		if err != nil || n == 0 {
			return "", "", false
		}
		portNum = n
	}
	if (scheme == "http" && portNum == 80) || (scheme == "https" && portNum == 443) {
		portNum = 0
	}

	host = hostname
	if strings.Contains(hostname, ":") {
		host = "[" + hostname + "]"
	}
	if portNum != 0 {
		host += ":" + strconv.FormatUint(portNum, 10)
	}
	return scheme + "://" + host, host, true
}

// Allowed reports whether a normalized origin may access the given request
// host.
//
// A non-empty allowlist is authoritative: entries are "*" or normalized
// origins. Otherwise the default policy is same-host; scheme is ignored
// because the relay typically sits behind a TLS-terminating proxy and sees
// plain HTTP.
func Allowed(normalized, originHost, requestHost string, allowlist []string) bool {
	if len(allowlist) > 0 {
		for _, entry := range allowlist {
			if entry == "*" || entry == normalized {
				return true
			}
		}
		return false
	}

	if normalized == "null" || originHost == "" {
		return false
	}
	reqHostname, reqPort, ok := splitHostPort(strings.ToLower(strings.TrimSpace(requestHost)))
	if !ok || reqHostname == "" {
		return false
	}
	if reqPort == "80" && strings.HasPrefix(normalized, "http://") {
		reqPort = ""
	}
	if reqPort == "443" && strings.HasPrefix(normalized, "https://") {
		reqPort = ""
	}
	reqHost := reqHostname
	if strings.Contains(reqHostname, ":") {
		reqHost = "[" + reqHostname + "]"
	}
	if reqPort != "" {
		reqHost += ":" + reqPort
	}
	return originHost == reqHost
}

// splitHostPort splits an authority host[:port] string. The hostname is
// returned without brackets for IPv6 literals; the port is not validated.
func splitHostPort(rawHost string) (hostname, port string, ok bool) {
	if rawHost == "" {
		return "", "", false
	}

	if strings.HasPrefix(rawHost, "[") {
		end := strings.IndexByte(rawHost, ']')
		if end < 0 {
			return "", "", false
		}
		hostname = rawHost[1:end]
		rest := rawHost[end+1:]
		if rest == "" {
			return hostname, "", true
		}
		if !strings.HasPrefix(rest, ":") || len(rest) == 1 {
			return "", "", false
		}
		return hostname, rest[1:], true
	}

	switch strings.Count(rawHost, ":") {
	case 0:
		return rawHost, "", true
	case 1:
		h, p, _ := strings.Cut(rawHost, ":")
		if h == "" || p == "" {
			return "", "", false
		}
		return h, p, true
	default:
		// Unbracketed IPv6 literals are not valid in the authority component.
		return "", "", false
	}
}
