package pool

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pithecene-io/syncbridge/log"
)

func TestNew_InvalidSize(t *testing.T) {
	if _, err := New(0); err == nil {
		t.Error("expected error for size 0")
	}
}

func TestPool_RunsTaskAndReportsResult(t *testing.T) {
	p, err := New(1)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer p.Close()

	want := errors.New("boom")
	done := make(chan error, 1)
	err = p.Submit(context.Background(), &Task{
		Run:  func(context.Context) error { return want },
		Done: func(err error) { done <- err },
	})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	select {
	case got := <-done:
		if !errors.Is(got, want) {
			t.Errorf("Done got %v, want %v", got, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("task did not complete")
	}
}

func TestPool_SingleWorkerSerializes(t *testing.T) {
	p, err := New(1)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer p.Close()

	var running, maxRunning atomic.Int64
	var wg sync.WaitGroup
	for range 5 {
		wg.Add(1)
		err := p.Submit(context.Background(), &Task{
			Run: func(context.Context) error {
				n := running.Add(1)
				for {
					m := maxRunning.Load()
					if n <= m || maxRunning.CompareAndSwap(m, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				running.Add(-1)
				return nil
			},
			Done: func(error) { wg.Done() },
		})
		if err != nil {
			t.Fatalf("Submit failed: %v", err)
		}
	}
	wg.Wait()

	if got := maxRunning.Load(); got != 1 {
		t.Errorf("max concurrent tasks = %d, want 1", got)
	}
}

func TestPool_KWorkersRunConcurrently(t *testing.T) {
	const k = 3
	p, err := New(k)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer p.Close()

	// Each task blocks until all k are running at once.
	var barrier sync.WaitGroup
	barrier.Add(k)
	release := make(chan struct{})
	var done sync.WaitGroup
	for range k {
		done.Add(1)
		err := p.Submit(context.Background(), &Task{
			Run: func(context.Context) error {
				barrier.Done()
				<-release
				return nil
			},
			Done: func(error) { done.Done() },
		})
		if err != nil {
			t.Fatalf("Submit failed: %v", err)
		}
	}

	reached := make(chan struct{})
	go func() {
		barrier.Wait()
		close(reached)
	}()

	select {
	case <-reached:
	case <-time.After(2 * time.Second):
		t.Fatal("k tasks did not run concurrently")
	}

	if got := p.Stats().Busy; got != k {
		t.Errorf("Busy = %d, want %d", got, k)
	}
	close(release)
	done.Wait()
}

func TestPool_PanicDoesNotKillWorker(t *testing.T) {
	p, err := New(1)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer p.Close()

	results := make(chan error, 2)
	submit := func(run func(context.Context) error) {
		t.Helper()
		if err := p.Submit(context.Background(), &Task{
			Run:  run,
			Done: func(err error) { results <- err },
		}); err != nil {
			t.Fatalf("Submit failed: %v", err)
		}
	}

	submit(func(context.Context) error { panic("handler exploded") })
	submit(func(context.Context) error { return nil })

	first := <-results
	var pe *PanicError
	if !errors.As(first, &pe) {
		t.Fatalf("first result = %v, want *PanicError", first)
	}
	if pe.Value != "handler exploded" || len(pe.Stack) == 0 {
		t.Errorf("PanicError = %+v", pe)
	}

	if second := <-results; second != nil {
		t.Errorf("second task got %v, want nil (worker must survive)", second)
	}
	if got := p.Stats().Panics; got != 1 {
		t.Errorf("Panics = %d, want 1", got)
	}
}

func TestPool_PanicLoggedOnlyWithoutDone(t *testing.T) {
	tests := []struct {
		name    string
		done    func(error)
		wantLog bool
	}{
		{"done receives panic", func(error) {}, false},
		{"no done hook", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			p, err := New(1, WithLogger(log.NewNop().WithOutput(&buf)))
			if err != nil {
				t.Fatalf("New failed: %v", err)
			}
			if err := p.Submit(context.Background(), &Task{
				Run:  func(context.Context) error { panic("task exploded") },
				Done: tt.done,
			}); err != nil {
				t.Fatalf("Submit failed: %v", err)
			}
			_ = p.Close()

			logged := strings.Contains(buf.String(), "recovered panic in task")
			if logged != tt.wantLog {
				t.Errorf("panic logged = %v, want %v (log: %s)", logged, tt.wantLog, buf.String())
			}
			if got := p.Stats().Panics; got != 1 {
				t.Errorf("Panics = %d, want 1", got)
			}
		})
	}
}

func TestPool_SizeMatchesStats(t *testing.T) {
	p, err := New(3)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer p.Close()

	if p.Size() != 3 || p.Stats().Workers != 3 {
		t.Errorf("Size = %d, Stats.Workers = %d, want 3", p.Size(), p.Stats().Workers)
	}
}

func TestPool_PanicInDoneIsContained(t *testing.T) {
	p, err := New(1)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer p.Close()

	_ = p.Submit(context.Background(), &Task{
		Run:  func(context.Context) error { return nil },
		Done: func(error) { panic("done exploded") },
	})

	ok := make(chan struct{})
	_ = p.Submit(context.Background(), &Task{
		Run:  func(context.Context) error { return nil },
		Done: func(error) { close(ok) },
	})

	select {
	case <-ok:
	case <-time.After(2 * time.Second):
		t.Fatal("worker died after Done panic")
	}
}

func TestPool_SubmitAfterClose(t *testing.T) {
	p, err := New(2)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	// Idempotent
	_ = p.Close()

	err = p.Submit(context.Background(), &Task{Run: func(context.Context) error { return nil }})
	if !errors.Is(err, ErrClosed) {
		t.Errorf("Submit after Close = %v, want ErrClosed", err)
	}
}

func TestPool_CloseDrainsQueue(t *testing.T) {
	p, err := New(1, WithQueueDepth(8))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	var ran atomic.Int64
	for range 5 {
		_ = p.Submit(context.Background(), &Task{Run: func(context.Context) error {
			ran.Add(1)
			return nil
		}})
	}
	_ = p.Close()

	if got := ran.Load(); got != 5 {
		t.Errorf("ran = %d, want 5 (queued tasks must run before Close returns)", got)
	}
	if got := p.Stats().Completed; got != 5 {
		t.Errorf("Completed = %d, want 5", got)
	}
}

func TestPool_SubmitRespectsContextWhenFull(t *testing.T) {
	p, err := New(1, WithQueueDepth(1))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	release := make(chan struct{})
	defer func() {
		close(release)
		p.Close()
	}()

	started := make(chan struct{})
	block := func(context.Context) error {
		select {
		case <-started:
		default:
			close(started)
		}
		<-release
		return nil
	}
	_ = p.Submit(context.Background(), &Task{Run: block})
	<-started
	_ = p.Submit(context.Background(), &Task{Run: block}) // fills the queue

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err = p.Submit(ctx, &Task{Run: block})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Submit on full queue = %v, want DeadlineExceeded", err)
	}
	if got := p.Stats().Queued; got != 1 {
		t.Errorf("Queued = %d, want 1", got)
	}
}

func TestPool_SubmitRejectsEmptyTask(t *testing.T) {
	p, err := New(1)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer p.Close()

	if err := p.Submit(context.Background(), &Task{}); err == nil {
		t.Error("expected error for task without Run")
	}
}
