// Package pool runs asynchronous handler invocations on a fixed set of
// workers. Each worker goroutine owns one Loop and drives exactly one task
// to completion before taking the next, so work within a task is strictly
// sequential.
package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/pithecene-io/syncbridge/log"
)

// DefaultQueueDepth is the default number of tasks that may wait for a worker.
const DefaultQueueDepth = 1024

// ErrClosed is returned by Submit after Close.
var ErrClosed = errors.New("pool: closed")

// Task is one unit of work.
type Task struct {
	// Ctx is the task context. Nil means context.Background().
	Ctx context.Context
	// Run executes on a worker goroutine.
	Run func(ctx context.Context) error
	// Done receives Run's result, or a *PanicError, on the worker goroutine.
	// Optional.
	Done func(err error)
}

// Stats is a point-in-time view of pool occupancy.
type Stats struct {
	Workers   int   `json:"workers"`
	Busy      int   `json:"busy"`
	Queued    int   `json:"queued"`
	Completed int64 `json:"completed"`
	Panics    int64 `json:"panics"`
}

// Option configures a Pool.
type Option func(*Pool)

// WithQueueDepth sets the dispatch queue capacity. Values < 1 are ignored.
func WithQueueDepth(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.queueDepth = n
		}
	}
}

// WithLogger sets the logger used for panics no Done hook receives.
func WithLogger(l *log.Logger) Option {
	return func(p *Pool) {
		if l != nil {
			p.logger = l
		}
	}
}

// Pool is a fixed-size worker pool. Submit is safe for concurrent use.
type Pool struct {
	queueDepth int
	logger     *log.Logger

	tasks chan *Task
	loops []*Loop
	wg    sync.WaitGroup

	// mu guards closed against concurrent Submit/Close.
	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once

	busy      atomic.Int64
	completed atomic.Int64
	panics    atomic.Int64
}

// New starts a pool with size workers. size must be >= 1.
func New(size int, opts ...Option) (*Pool, error) {
	if size < 1 {
		return nil, fmt.Errorf("pool size must be >= 1, got %d", size)
	}

	p := &Pool{
		queueDepth: DefaultQueueDepth,
		logger:     log.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}

	p.tasks = make(chan *Task, p.queueDepth)
	p.loops = make([]*Loop, size)
	for i := range size {
		p.loops[i] = newLoop(i)
		p.wg.Add(1)
		go p.worker(p.loops[i])
	}
	return p, nil
}

// Submit enqueues t. Blocks while the queue is full.
// Returns ErrClosed after Close, or ctx.Err() if ctx ends while waiting.
func (p *Pool) Submit(ctx context.Context, t *Task) error {
	if t == nil || t.Run == nil {
		return errors.New("pool: task has no Run function")
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}

	select {
	case p.tasks <- t:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Size returns the number of workers.
func (p *Pool) Size() int {
	return len(p.loops)
}

// Stats returns current occupancy.
func (p *Pool) Stats() Stats {
	return Stats{
		Workers:   p.Size(),
		Busy:      int(p.busy.Load()),
		Queued:    len(p.tasks),
		Completed: p.completed.Load(),
		Panics:    p.panics.Load(),
	}
}

// Close stops accepting tasks, runs everything already queued and waits for
// the workers to exit. Safe to call more than once.
func (p *Pool) Close() error {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		close(p.tasks)
		p.mu.Unlock()
	})
	p.wg.Wait()
	return nil
}

func (p *Pool) worker(l *Loop) {
	defer p.wg.Done()
	for t := range p.tasks {
		p.execute(l, t)
	}
}

func (p *Pool) execute(l *Loop, t *Task) {
	ctx := t.Ctx
	if ctx == nil {
		ctx = context.Background()
	}

	p.busy.Add(1)
	err := l.run(ctx, t.Run)
	p.busy.Add(-1)
	p.completed.Add(1)

	var pe *PanicError
	if errors.As(err, &pe) {
		p.panics.Add(1)
		// Done owns the report when set.
		if t.Done == nil {
			p.logger.Error("recovered panic in task", map[string]any{
				"worker": l.ID(),
				"panic":  fmt.Sprint(pe.Value),
				"stack":  string(pe.Stack),
			})
		}
	}

	if t.Done != nil {
		p.finish(l, t, err)
	}
}

// finish calls t.Done, keeping the worker alive if it panics.
func (p *Pool) finish(l *Loop, t *Task, err error) {
	defer func() {
		if r := recover(); r != nil {
			p.panics.Add(1)
			p.logger.Error("recovered panic in task completion", map[string]any{
				"worker": l.ID(),
				"panic":  fmt.Sprint(r),
			})
		}
	}()
	t.Done(err)
}
