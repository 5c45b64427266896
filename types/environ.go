// Package types defines the data model shared by both sides of the bridge:
// the synchronous request description, the asynchronous scope and the
// lifecycle messages exchanged with a handler.
//
//nolint:revive // types is a common Go package naming convention
package types

import (
	"context"
	"io"
	"sort"
	"strconv"
	"strings"
)

// Header is a single synchronous-side header. Order is significant and
// duplicate names are allowed.
type Header struct {
	Name  string `json:"name" yaml:"name"`
	Value string `json:"value" yaml:"value"`
}

// Environ describes one synchronous request. It is produced by the
// synchronous host and is read-only for the lifetime of the request.
type Environ struct {
	// Method is the request method (GET, POST, ...).
	Method string
	// ScriptName is the mount point of the application, may be empty.
	ScriptName string
	// PathInfo is the decoded request path below ScriptName.
	PathInfo string
	// RawPath is the path as sent on the wire. Empty means PathInfo.
	RawPath string
	// QueryString is the raw query string without the leading '?'.
	QueryString string
	// Protocol is the request protocol, e.g. "HTTP/1.1".
	Protocol string
	// Scheme is "http" or "https".
	Scheme string
	// ServerName and ServerPort identify the listening side.
	ServerName string
	ServerPort int
	// RemoteAddr and RemotePort identify the client.
	RemoteAddr string
	RemotePort int
	// ContentType is the request content type, may be empty.
	ContentType string
	// ContentLength is the declared body length. -1 means unknown.
	ContentLength int64
	// Headers are the remaining request headers in arrival order.
	// Content-Type and Content-Length are carried by the fields above.
	Headers []Header
	// Input is the request body stream. Nil means no body.
	Input io.Reader
	// Context is canceled when the synchronous host gives up on the request.
	// Nil means context.Background().
	Context context.Context
}

// Ctx returns the request context, never nil.
func (e *Environ) Ctx() context.Context {
	if e.Context == nil {
		return context.Background()
	}
	return e.Context
}

// Environ defaults applied when the host leaves fields empty.
const (
	DefaultProtocol   = "HTTP/1.1"
	DefaultScheme     = "http"
	DefaultRemoteAddr = "127.0.0.1"
	DefaultPath       = "/"
)

// EnvironFromCGI builds an Environ from CGI-style variables
// (REQUEST_METHOD, PATH_INFO, HTTP_*, ...). URL_SCHEME carries the request
// scheme. Header names are derived from HTTP_* keys by replacing '_' with '-'.
// Keys are visited in sorted order so the header list is deterministic.
// A missing or invalid CONTENT_LENGTH means an empty body: CGI input is not
// guaranteed to end at the body boundary.
func EnvironFromCGI(vars map[string]string, input io.Reader) *Environ {
	env := &Environ{
		Method:        vars["REQUEST_METHOD"],
		ScriptName:    vars["SCRIPT_NAME"],
		PathInfo:      vars["PATH_INFO"],
		RawPath:       vars["RAW_PATH"],
		QueryString:   vars["QUERY_STRING"],
		Protocol:      vars["SERVER_PROTOCOL"],
		Scheme:        vars["URL_SCHEME"],
		ServerName:    vars["SERVER_NAME"],
		RemoteAddr:    vars["REMOTE_ADDR"],
		ContentType:   vars["CONTENT_TYPE"],
		Input:         input,
	}
	env.ServerPort, _ = strconv.Atoi(vars["SERVER_PORT"])
	env.RemotePort, _ = strconv.Atoi(vars["REMOTE_PORT"])
	if cl := vars["CONTENT_LENGTH"]; cl != "" {
		if n, err := strconv.ParseInt(cl, 10, 64); err == nil && n >= 0 {
			env.ContentLength = n
		}
	}

	for _, key := range sortedKeys(vars) {
		name, ok := strings.CutPrefix(key, "HTTP_")
		if !ok || name == "" {
			continue
		}
		env.Headers = append(env.Headers, Header{
			Name:  strings.ReplaceAll(name, "_", "-"),
			Value: vars[key],
		})
	}

	env.ApplyDefaults()
	return env
}

// ApplyDefaults fills empty fields with the documented defaults.
func (e *Environ) ApplyDefaults() {
	if e.Method == "" {
		e.Method = "GET"
	}
	if e.PathInfo == "" {
		e.PathInfo = DefaultPath
	}
	if e.Protocol == "" {
		e.Protocol = DefaultProtocol
	}
	if e.Scheme == "" {
		e.Scheme = DefaultScheme
	}
	if e.RemoteAddr == "" {
		e.RemoteAddr = DefaultRemoteAddr
	}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
