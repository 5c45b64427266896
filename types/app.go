package types

import "context"

// ReceiveFunc returns the next inbound message for the handler.
type ReceiveFunc func(ctx context.Context) (Message, error)

// SendFunc delivers one outbound message from the handler.
type SendFunc func(ctx context.Context, msg Message) error

// App is an asynchronous application. ServeAsync handles exactly one
// request: it pulls inbound messages with receive and pushes lifecycle
// messages with send. ctx is canceled when the synchronous side abandons
// the response.
type App interface {
	ServeAsync(ctx context.Context, scope *Scope, receive ReceiveFunc, send SendFunc) error
}

// AppFunc adapts a function to App.
type AppFunc func(ctx context.Context, scope *Scope, receive ReceiveFunc, send SendFunc) error

// ServeAsync calls f.
func (f AppFunc) ServeAsync(ctx context.Context, scope *Scope, receive ReceiveFunc, send SendFunc) error {
	return f(ctx, scope, receive, send)
}

// StartResponse is the synchronous host's output-start callback. It is
// invoked exactly once per request, before any body chunk is handed out.
type StartResponse func(status int, headers []Header)

// Body is the lazy, single-pass response body handed to the synchronous host.
// Next returns io.EOF once the response is complete and keeps returning it.
// Close must always be called; closing early abandons the response.
type Body interface {
	Next() ([]byte, error)
	Close() error
}

// SyncApp is the synchronous protocol contract: one call per request, start
// invoked exactly once before Serve returns, body pulled afterwards.
type SyncApp interface {
	Serve(env *Environ, start StartResponse) Body
}
