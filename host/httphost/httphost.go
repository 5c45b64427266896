// Package httphost serves a synchronous application from net/http.
package httphost

import (
	"errors"
	"net/http"
	"sort"

	"github.com/pithecene-io/syncbridge/host"
	"github.com/pithecene-io/syncbridge/iox"
	"github.com/pithecene-io/syncbridge/log"
	"github.com/pithecene-io/syncbridge/types"
)

// Handler returns an http.Handler that runs app once per request.
//
// The response is streamed with a flush after every chunk. If the body is
// aborted after headers were sent, the connection is torn down with
// http.ErrAbortHandler so the client sees a truncated response rather than a
// complete one.
func Handler(app types.SyncApp, logger *log.Logger) http.Handler {
	if logger == nil {
		logger = log.NewNop()
	}
	return &handler{app: app, logger: logger}
}

type handler struct {
	app    types.SyncApp
	logger *log.Logger
}

func (h *handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	env := EnvironFromRequest(r)
	body := h.app.Serve(env, func(status int, headers []types.Header) {
		dst := w.Header()
		for _, hd := range headers {
			dst.Add(hd.Name, hd.Value)
		}
		w.WriteHeader(status)
	})
	defer iox.DiscardClose(body)

	rc := http.NewResponseController(w)
	_, err := iox.CopyChunks(w, body, func() error {
		err := rc.Flush()
		if errors.Is(err, http.ErrNotSupported) {
			return nil
		}
		return err
	})
	if err == nil {
		return
	}

	var we *iox.WriteError
	if errors.As(err, &we) {
		h.logger.Debug("client went away", map[string]any{
			"path":  r.URL.Path,
			"error": err.Error(),
		})
		return
	}
	h.logger.Warn("aborting response", map[string]any{
		"path":  r.URL.Path,
		"error": err.Error(),
	})
	panic(http.ErrAbortHandler)
}

// EnvironFromRequest builds the synchronous request description for r.
// The request body and context are carried over as is.
func EnvironFromRequest(r *http.Request) *types.Environ {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	serverName, serverPort := host.SplitHostPort(r.Host, host.DefaultPort(scheme))
	remoteAddr, remotePort := host.SplitHostPort(r.RemoteAddr, 0)

	length := r.ContentLength
	if length < 0 {
		length = -1
	}
	if r.Body == nil || r.Body == http.NoBody {
		length = 0
	}

	env := &types.Environ{
		Method:        r.Method,
		PathInfo:      r.URL.Path,
		RawPath:       r.URL.EscapedPath(),
		QueryString:   r.URL.RawQuery,
		Protocol:      r.Proto,
		Scheme:        scheme,
		ServerName:    serverName,
		ServerPort:    serverPort,
		RemoteAddr:    remoteAddr,
		RemotePort:    remotePort,
		ContentType:   r.Header.Get("Content-Type"),
		ContentLength: length,
		Headers:       requestHeaders(r),
		Input:         r.Body,
		Context:       r.Context(),
	}
	env.ApplyDefaults()
	return env
}

// requestHeaders flattens r.Header in sorted name order. net/http moves the
// Host header to r.Host, so it is put back first.
func requestHeaders(r *http.Request) []types.Header {
	names := make([]string, 0, len(r.Header))
	for name := range r.Header {
		if !host.IsContentHeader(name) {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	headers := make([]types.Header, 0, len(names)+1)
	if r.Host != "" {
		headers = append(headers, types.Header{Name: "Host", Value: r.Host})
	}
	for _, name := range names {
		for _, v := range r.Header[name] {
			headers = append(headers, types.Header{Name: name, Value: v})
		}
	}
	return headers
}
