// Package scope translates a synchronous request description into the
// scope handed to an asynchronous handler, and maps response headers back.
//
// Translation is pure: no I/O, no shared state. Header names are lower-cased
// here and nowhere else.
package scope

import (
	"strconv"
	"strings"

	"github.com/pithecene-io/syncbridge/types"
)

// FromEnviron builds the scope for env. env is assumed well-formed; missing
// optional fields fall back to the Environ defaults.
func FromEnviron(env *types.Environ) *types.Scope {
	path := env.PathInfo
	if path == "" {
		path = types.DefaultPath
	}
	rawPath := env.RawPath
	if rawPath == "" {
		rawPath = path
	}
	scheme := env.Scheme
	if scheme == "" {
		scheme = types.DefaultScheme
	}
	method := env.Method
	if method == "" {
		method = "GET"
	}
	client := env.RemoteAddr
	if client == "" {
		client = types.DefaultRemoteAddr
	}

	return &types.Scope{
		Type: types.ScopeTypeHTTP,
		Protocol: types.ProtocolInfo{
			Version:     types.ProtocolVersion,
			SpecVersion: types.ProtocolSpecVersion,
		},
		HTTPVersion: HTTPVersion(env.Protocol),
		Method:      method,
		Scheme:      scheme,
		Path:        path,
		RawPath:     []byte(rawPath),
		QueryString: []byte(env.QueryString),
		RootPath:    env.ScriptName,
		Headers:     RequestHeaders(env),
		Server:      types.Addr{Host: env.ServerName, Port: env.ServerPort},
		Client:      types.Addr{Host: client, Port: env.RemotePort},
		Extensions:  map[string]any{},
	}
}

// RequestHeaders converts the Environ headers into lower-case byte pairs.
// Content-Type and Content-Length are appended from their dedicated fields
// unless the header list already carries them.
func RequestHeaders(env *types.Environ) []types.RawHeader {
	headers := make([]types.RawHeader, 0, len(env.Headers)+2)
	var hasType, hasLength bool
	for _, h := range env.Headers {
		name := strings.ToLower(h.Name)
		switch name {
		case "content-type":
			hasType = true
		case "content-length":
			hasLength = true
		}
		headers = append(headers, types.RawHeader{
			Name:  []byte(name),
			Value: []byte(h.Value),
		})
	}

	if env.ContentType != "" && !hasType {
		headers = append(headers, types.RawHeader{
			Name:  []byte("content-type"),
			Value: []byte(env.ContentType),
		})
	}
	if env.ContentLength >= 0 && !hasLength {
		headers = append(headers, types.RawHeader{
			Name:  []byte("content-length"),
			Value: []byte(strconv.FormatInt(env.ContentLength, 10)),
		})
	}
	return headers
}

// ResponseHeaders converts handler response headers into synchronous headers.
// Names are passed through as sent.
func ResponseHeaders(raw []types.RawHeader) []types.Header {
	headers := make([]types.Header, 0, len(raw))
	for _, h := range raw {
		headers = append(headers, types.Header{
			Name:  string(h.Name),
			Value: string(h.Value),
		})
	}
	return headers
}

// HTTPVersion returns the version part of a protocol string:
// "HTTP/1.1" -> "1.1". Unparseable input yields "1.1".
func HTTPVersion(protocol string) string {
	_, version, ok := strings.Cut(protocol, "/")
	if !ok || version == "" {
		return "1.1"
	}
	return version
}
