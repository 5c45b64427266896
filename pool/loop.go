package pool

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
)

// Loop is a single-goroutine cooperative scheduler owned by one worker.
// It runs one task at a time; callbacks scheduled with CallSoon run on the
// worker goroutine, in FIFO order, at the task's yield points and after the
// task returns.
type Loop struct {
	id int

	mu      sync.Mutex
	pending []func()
	active  bool
	dropped int64
}

type loopKey struct{}

// LoopFromContext returns the loop driving the current task.
func LoopFromContext(ctx context.Context) (*Loop, bool) {
	l, ok := ctx.Value(loopKey{}).(*Loop)
	return l, ok
}

func newLoop(id int) *Loop {
	return &Loop{id: id}
}

// ID returns the worker index owning this loop.
func (l *Loop) ID() int {
	return l.id
}

// CallSoon schedules fn to run on the loop. Safe to call from any goroutine.
// Returns false, and drops fn, when no task is running: callbacks never leak
// from one request into the next.
func (l *Loop) CallSoon(fn func()) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.active {
		l.dropped++
		return false
	}
	l.pending = append(l.pending, fn)
	return true
}

// Yield runs every callback scheduled so far. Must only be called from the
// task running on this loop. Returns the first callback panic, if any.
func (l *Loop) Yield() error {
	return l.drain()
}

// Dropped returns the number of callbacks discarded because no task was running.
func (l *Loop) Dropped() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dropped
}

// run executes fn on the calling goroutine with the loop installed in ctx,
// then drains callbacks until none remain. Panics in fn or in callbacks are
// recovered and returned as *PanicError; the first failure wins.
func (l *Loop) run(ctx context.Context, fn func(context.Context) error) (err error) {
	l.mu.Lock()
	l.active = true
	l.pending = nil
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		l.active = false
		l.pending = nil
		l.mu.Unlock()
	}()

	err = l.call(func() error { return fn(context.WithValue(ctx, loopKey{}, l)) })

	// Drain with the loop still active so callbacks may schedule more work.
	if drainErr := l.drain(); err == nil {
		err = drainErr
	}
	return err
}

func (l *Loop) drain() error {
	var first error
	for {
		l.mu.Lock()
		batch := l.pending
		l.pending = nil
		l.mu.Unlock()

		if len(batch) == 0 {
			return first
		}
		for _, cb := range batch {
			if err := l.call(func() error { cb(); return nil }); err != nil && first == nil {
				first = err
			}
		}
	}
}

func (l *Loop) call(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return fn()
}

// PanicError wraps a value recovered from a panicking task or callback.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Unwrap returns the panic value when it is an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
