// Package bridge runs an asynchronous handler behind a synchronous,
// pull-based host interface.
//
// For each request the Adapter translates the Environ into a Scope, hands the
// handler a receive callback backed by the request body and a send callback
// feeding a bounded chunk stream, runs the handler on the worker pool, and
// returns once the response status and headers are known. The host then pulls
// the body chunk by chunk.
package bridge

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/pithecene-io/syncbridge/log"
	"github.com/pithecene-io/syncbridge/metrics"
	"github.com/pithecene-io/syncbridge/pool"
	"github.com/pithecene-io/syncbridge/scope"
	"github.com/pithecene-io/syncbridge/types"
)

// Defaults applied by New for zero-valued Config fields.
const (
	DefaultWorkers       = 1
	DefaultMaxBodySize   = 10 << 20
	DefaultReadChunkSize = 64 << 10
	DefaultStreamBuffer  = 16
)

// minStreamBuffer leaves room for a synthesized body and its end marker.
const minStreamBuffer = 2

// Config configures an Adapter.
type Config struct {
	// Workers is the number of concurrent handler invocations.
	Workers int
	// QueueDepth is the number of requests that may wait for a worker.
	QueueDepth int
	// MaxBodySize caps the request bytes delivered to the handler.
	MaxBodySize int64
	// ReadChunkSize is the largest single body read.
	ReadChunkSize int
	// StreamBuffer is the response chunk stream capacity.
	StreamBuffer int
	// Logger receives per-request logs. Nil disables logging.
	Logger *log.Logger
	// Collector receives request metrics. May be nil.
	Collector *metrics.Collector
}

func (c *Config) applyDefaults() error {
	if c.Workers < 0 {
		return fmt.Errorf("workers must be >= 0, got %d", c.Workers)
	}
	if c.MaxBodySize < 0 {
		return fmt.Errorf("max body size must be >= 0, got %d", c.MaxBodySize)
	}
	if c.ReadChunkSize < 0 {
		return fmt.Errorf("read chunk size must be >= 0, got %d", c.ReadChunkSize)
	}
	if c.Workers == 0 {
		c.Workers = DefaultWorkers
	}
	if c.QueueDepth <= 0 {
		c.QueueDepth = pool.DefaultQueueDepth
	}
	if c.MaxBodySize == 0 {
		c.MaxBodySize = DefaultMaxBodySize
	}
	if c.ReadChunkSize == 0 {
		c.ReadChunkSize = DefaultReadChunkSize
	}
	if c.StreamBuffer <= 0 {
		c.StreamBuffer = DefaultStreamBuffer
	}
	if c.StreamBuffer < minStreamBuffer {
		c.StreamBuffer = minStreamBuffer
	}
	if c.Logger == nil {
		c.Logger = log.NewNop()
	}
	return nil
}

// Adapter exposes an asynchronous App as a synchronous types.SyncApp.
// Serve is safe for concurrent use.
type Adapter struct {
	app  types.App
	cfg  Config
	pool *pool.Pool
}

// New starts an adapter for app with its own worker pool.
func New(app types.App, cfg Config) (*Adapter, error) {
	if app == nil {
		return nil, errors.New("bridge: app is nil")
	}
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}

	p, err := pool.New(cfg.Workers,
		pool.WithQueueDepth(cfg.QueueDepth),
		pool.WithLogger(cfg.Logger),
	)
	if err != nil {
		return nil, err
	}
	cfg.Collector.SetPoolGauges(func() (int, int, int) {
		s := p.Stats()
		return s.Workers, s.Busy, s.Queued
	})

	return &Adapter{app: app, cfg: cfg, pool: p}, nil
}

// Serve handles one request. It blocks until the handler has started the
// response (or a response was synthesized for it), invokes start exactly
// once, and returns the body to pull. The caller must Close the body.
func (a *Adapter) Serve(env *types.Environ, start types.StartResponse) types.Body {
	return a.serve(env, start)
}

func (a *Adapter) serve(env *types.Environ, start types.StartResponse) *Body {
	sc := scope.FromEnviron(env)
	id := uuid.NewString()
	logger := a.cfg.Logger.With(map[string]any{
		"request_id": id,
		"method":     sc.Method,
		"path":       sc.Path,
	})

	x := newExchange(env.Ctx(), id, a.cfg.StreamBuffer, logger, a.cfg.Collector)
	src := newBodySource(x, env, a.cfg.MaxBodySize, a.cfg.ReadChunkSize)
	a.cfg.Collector.IncRequestStarted()

	task := &pool.Task{
		Ctx: x.ctx,
		Run: func(ctx context.Context) error {
			return a.app.ServeAsync(ctx, sc, src.receive, x.send)
		},
		Done: x.complete,
	}
	if err := a.pool.Submit(env.Ctx(), task); err != nil {
		x.fail(&Error{Kind: KindUnavailable, Err: err})
		x.complete(nil)
	}

	head := x.signal.wait()
	start(head.status, head.headers)
	return &Body{x: x}
}

// Stats returns current worker pool occupancy.
func (a *Adapter) Stats() pool.Stats {
	return a.pool.Stats()
}

// Close waits for in-flight requests and stops the workers. Serve must not be
// called afterwards.
func (a *Adapter) Close() error {
	return a.pool.Close()
}
