package bridge

import (
	"io"
	"iter"
	"sync"
	"sync/atomic"
)

// Body is the response body returned by Adapter.Serve. It is single-pass and
// must be closed. Closing before io.EOF abandons the response: the handler's
// context is canceled, its sends become no-ops and receive reports a
// disconnect.
type Body struct {
	x *exchange

	mu   sync.Mutex
	done atomic.Bool
	err  error

	closeOnce sync.Once
}

// Next blocks until the next chunk is available. It returns io.EOF once the
// response is complete, or an error wrapping ErrStreamAborted if the response
// was cut short. Both are sticky.
func (b *Body) Next() ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for !b.done.Load() {
		it, ok := b.x.stream.next()
		switch {
		case !ok:
			b.finish(io.EOF)
		case it.err != nil:
			b.finish(it.err)
		case it.end:
			b.finish(io.EOF)
		case len(it.data) > 0:
			b.x.collector.AddBytesOut(len(it.data))
			return it.data, nil
		}
	}
	return nil, b.err
}

func (b *Body) finish(err error) {
	b.err = err
	b.done.Store(true)
}

// Chunks iterates the remaining chunks. Iteration stops at the end of the
// response, after yielding a non-EOF error, or when the caller breaks.
func (b *Body) Chunks() iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		for {
			chunk, err := b.Next()
			if err == io.EOF {
				return
			}
			if !yield(chunk, err) || err != nil {
				return
			}
		}
	}
}

// WriteTo copies the remaining chunks to w.
func (b *Body) WriteTo(w io.Writer) (int64, error) {
	var total int64
	for chunk, err := range b.Chunks() {
		if err != nil {
			return total, err
		}
		n, err := w.Write(chunk)
		total += int64(n)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// Close releases the response. Safe to call more than once.
func (b *Body) Close() error {
	b.closeOnce.Do(func() {
		early := !b.done.Load()
		// Releasing the exchange unblocks a concurrent Next.
		b.x.release(early)

		b.mu.Lock()
		if !b.done.Load() {
			b.finish(io.EOF)
		}
		b.mu.Unlock()

		if early {
			b.x.collector.IncRequestAbandoned()
			b.x.logger.Info("response abandoned", nil)
		}
	})
	return nil
}
