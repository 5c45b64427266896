// Package fasthost serves a synchronous application from fasthttp.
//
// fasthttp buffers the request body before the handler runs and recycles the
// request context once the response is written, so the body is copied into
// the Environ and no request-scoped state outlives the handler.
package fasthost

import (
	"bufio"
	"bytes"
	"errors"
	"sort"

	"github.com/valyala/fasthttp"

	"github.com/pithecene-io/syncbridge/host"
	"github.com/pithecene-io/syncbridge/iox"
	"github.com/pithecene-io/syncbridge/log"
	"github.com/pithecene-io/syncbridge/types"
)

// Handler returns a fasthttp.RequestHandler that runs app once per request.
// The body is streamed chunked with a flush after every chunk.
func Handler(app types.SyncApp, logger *log.Logger) fasthttp.RequestHandler {
	if logger == nil {
		logger = log.NewNop()
	}

	return func(ctx *fasthttp.RequestCtx) {
		env := EnvironFromRequest(ctx)
		body := app.Serve(env, func(status int, headers []types.Header) {
			ctx.SetStatusCode(status)
			for _, h := range headers {
				ctx.Response.Header.Add(h.Name, h.Value)
			}
		})

		path := env.PathInfo
		ctx.SetBodyStreamWriter(func(w *bufio.Writer) {
			defer iox.DiscardClose(body)

			_, err := iox.CopyChunks(w, body, w.Flush)
			if err == nil {
				return
			}
			var we *iox.WriteError
			if errors.As(err, &we) {
				logger.Debug("client went away", map[string]any{
					"path":  path,
					"error": err.Error(),
				})
				return
			}
			// The chunked encoding cannot signal an abort; the client sees
			// the body end early.
			logger.Warn("response truncated", map[string]any{
				"path":  path,
				"error": err.Error(),
			})
		})
	}
}

// EnvironFromRequest builds the synchronous request description for ctx.
func EnvironFromRequest(ctx *fasthttp.RequestCtx) *types.Environ {
	scheme := "http"
	if ctx.IsTLS() {
		scheme = "https"
	}
	serverName, serverPort := host.SplitHostPort(string(ctx.Host()), host.DefaultPort(scheme))

	var (
		remoteAddr string
		remotePort int
	)
	if addr := ctx.RemoteAddr(); addr != nil {
		remoteAddr, remotePort = host.SplitHostPort(addr.String(), 0)
	}

	body := bytes.Clone(ctx.PostBody())

	env := &types.Environ{
		Method:        string(ctx.Method()),
		PathInfo:      string(ctx.Path()),
		RawPath:       string(ctx.URI().PathOriginal()),
		QueryString:   string(ctx.URI().QueryString()),
		Protocol:      string(ctx.Request.Header.Protocol()),
		Scheme:        scheme,
		ServerName:    serverName,
		ServerPort:    serverPort,
		RemoteAddr:    remoteAddr,
		RemotePort:    remotePort,
		ContentType:   string(ctx.Request.Header.ContentType()),
		ContentLength: int64(len(body)),
		Headers:       requestHeaders(&ctx.Request.Header),
		Input:         bytes.NewReader(body),
	}
	env.ApplyDefaults()
	return env
}

// requestHeaders copies the header list in name order. Values with the same
// name keep their wire order.
func requestHeaders(h *fasthttp.RequestHeader) []types.Header {
	var headers []types.Header
	h.VisitAll(func(k, v []byte) {
		name := string(k)
		if host.IsContentHeader(name) {
			return
		}
		headers = append(headers, types.Header{Name: name, Value: string(v)})
	})
	sort.SliceStable(headers, func(i, j int) bool {
		return headers[i].Name < headers[j].Name
	})
	return headers
}
