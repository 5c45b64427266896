package types

// ScopeTypeHTTP is the only scope type this bridge produces.
const ScopeTypeHTTP = "http"

// RawHeader is an asynchronous-side header. Names are lower-case.
type RawHeader struct {
	Name  []byte `msgpack:"name" json:"name"`
	Value []byte `msgpack:"value" json:"value"`
}

// Addr is a (host, port) pair.
type Addr struct {
	Host string `msgpack:"host" json:"host"`
	Port int    `msgpack:"port" json:"port"`
}

// ProtocolInfo advertises the asynchronous protocol version.
type ProtocolInfo struct {
	Version     string `msgpack:"version" json:"version"`
	SpecVersion string `msgpack:"spec_version" json:"spec_version"`
}

// Scope is the per-request descriptor handed to an asynchronous handler.
// It is built once by the scope translator and must not be mutated after.
type Scope struct {
	// Type is always "http".
	Type string `msgpack:"type" json:"type"`
	// Protocol carries the protocol and spec versions.
	Protocol ProtocolInfo `msgpack:"asgi" json:"asgi"`
	// HTTPVersion is "1.0", "1.1", ...
	HTTPVersion string `msgpack:"http_version" json:"http_version"`
	// Method is the upper-case request method.
	Method string `msgpack:"method" json:"method"`
	// Scheme is "http" or "https".
	Scheme string `msgpack:"scheme" json:"scheme"`
	// Path is the decoded request path.
	Path string `msgpack:"path" json:"path"`
	// RawPath is the path as received.
	RawPath []byte `msgpack:"raw_path" json:"raw_path"`
	// QueryString is the raw query string.
	QueryString []byte `msgpack:"query_string" json:"query_string"`
	// RootPath is the application mount point.
	RootPath string `msgpack:"root_path" json:"root_path"`
	// Headers are the request headers, names lower-cased.
	Headers []RawHeader `msgpack:"headers" json:"headers"`
	// Server is the listening address.
	Server Addr `msgpack:"server" json:"server"`
	// Client is the peer address.
	Client Addr `msgpack:"client" json:"client"`
	// Extensions is reserved for protocol extensions. Always non-nil.
	Extensions map[string]any `msgpack:"extensions" json:"extensions"`
}

// Header returns the first value of the lower-case header name.
func (s *Scope) Header(name string) ([]byte, bool) {
	for _, h := range s.Headers {
		if string(h.Name) == name {
			return h.Value, true
		}
	}
	return nil, false
}
