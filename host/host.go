// Package host holds what the synchronous server hosts share: address
// splitting and header filtering while building an Environ.
//
// The hosts themselves live in httphost (net/http) and fasthost (fasthttp).
// Both invoke a types.SyncApp once per request and stream its body with a
// flush after every chunk.
package host

import (
	"net"
	"strconv"
	"strings"
)

// SplitHostPort splits addr into host and numeric port. A missing or
// non-numeric port yields defaultPort; an unparseable addr is returned whole
// as the host.
func SplitHostPort(addr string, defaultPort int) (string, int) {
	if addr == "" {
		return "", defaultPort
	}
	h, p, err := net.SplitHostPort(addr)
	if err != nil {
		return strings.Trim(addr, "[]"), defaultPort
	}
	port, err := strconv.Atoi(p)
	if err != nil || port < 0 {
		return h, defaultPort
	}
	return h, port
}

// DefaultPort returns the well-known port for scheme.
func DefaultPort(scheme string) int {
	if scheme == "https" {
		return 443
	}
	return 80
}

// IsContentHeader reports whether name is carried by a dedicated Environ
// field instead of the header list.
func IsContentHeader(name string) bool {
	return strings.EqualFold(name, "Content-Type") || strings.EqualFold(name, "Content-Length")
}
