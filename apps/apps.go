// Package apps contains small asynchronous applications used by the CLI and
// by tests: a fixed JSON greeting, a streaming echo and a chunk generator.
package apps

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"

	"github.com/pithecene-io/syncbridge/types"
)

// HelloBody is the response body of Hello.
const HelloBody = `{"message":"Hello"}`

// Stream limits.
const (
	DefaultStreamChunks = 10
	MaxStreamChunks     = 10000
)

var registry = map[string]types.App{
	"hello":  types.AppFunc(Hello),
	"echo":   types.AppFunc(Echo),
	"stream": types.AppFunc(Stream),
}

// Lookup returns the built-in app registered under name.
func Lookup(name string) (types.App, error) {
	app, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown app %q (available: %v)", name, Names())
	}
	return app, nil
}

// Names returns the registered app names, sorted.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Hello ignores the request and replies with a JSON greeting.
func Hello(ctx context.Context, _ *types.Scope, _ types.ReceiveFunc, send types.SendFunc) error {
	if err := send(ctx, types.ResponseStart{
		Status:  200,
		Headers: []types.RawHeader{header("content-type", "application/json")},
	}); err != nil {
		return err
	}
	return send(ctx, types.ResponseBody{Body: []byte(HelloBody)})
}

// Echo streams the request body back as it arrives, one response chunk per
// request chunk, with the request's content type.
func Echo(ctx context.Context, sc *types.Scope, receive types.ReceiveFunc, send types.SendFunc) error {
	contentType := "application/octet-stream"
	if v, ok := sc.Header("content-type"); ok {
		contentType = string(v)
	}
	if err := send(ctx, types.ResponseStart{
		Status:  200,
		Headers: []types.RawHeader{header("content-type", contentType)},
	}); err != nil {
		return err
	}

	for {
		msg, err := receive(ctx)
		if err != nil {
			return err
		}
		switch m := msg.(type) {
		case types.Disconnect:
			return nil
		case types.Request:
			if len(m.Body) > 0 || !m.MoreBody {
				if err := send(ctx, types.ResponseBody{Body: m.Body, MoreBody: m.MoreBody}); err != nil {
					return err
				}
			}
			if !m.MoreBody {
				return nil
			}
		}
	}
}

// Stream emits n numbered lines as separate chunks, n taken from the query
// string (?n=5).
func Stream(ctx context.Context, sc *types.Scope, _ types.ReceiveFunc, send types.SendFunc) error {
	n, err := chunkCount(sc)
	if err != nil {
		body := []byte(err.Error())
		if err := send(ctx, types.ResponseStart{
			Status:  400,
			Headers: []types.RawHeader{header("content-type", "text/plain")},
		}); err != nil {
			return err
		}
		return send(ctx, types.ResponseBody{Body: body})
	}

	if err := send(ctx, types.ResponseStart{
		Status:  200,
		Headers: []types.RawHeader{header("content-type", "text/plain")},
	}); err != nil {
		return err
	}
	for i := range n {
		line := "chunk " + strconv.Itoa(i+1) + "\n"
		if err := send(ctx, types.ResponseBody{Body: []byte(line), MoreBody: true}); err != nil {
			return err
		}
	}
	return send(ctx, types.ResponseBody{})
}

func chunkCount(sc *types.Scope) (int, error) {
	q, err := url.ParseQuery(string(sc.QueryString))
	if err != nil {
		return 0, fmt.Errorf("invalid query string: %w", err)
	}
	raw := q.Get("n")
	if raw == "" {
		return DefaultStreamChunks, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 || n > MaxStreamChunks {
		return 0, fmt.Errorf("n must be an integer in [0, %d]", MaxStreamChunks)
	}
	return n, nil
}

func header(name, value string) types.RawHeader {
	return types.RawHeader{Name: []byte(name), Value: []byte(value)}
}
