package bridge

import (
	"context"
	"errors"
	"io"

	"github.com/dustin/go-humanize"

	"github.com/pithecene-io/syncbridge/pool"
	"github.com/pithecene-io/syncbridge/types"
)

// bodySource is the handler's receive callback. It reads the request body
// lazily, one chunk per call, and enforces the size cap.
//
// receive is only called from the handler's worker, so the source itself
// needs no locking.
type bodySource struct {
	x         *exchange
	input     io.Reader
	declared  int64 // -1 when unknown
	max       int64
	chunkSize int

	delivered int64
	done      bool
}

func newBodySource(x *exchange, env *types.Environ, max int64, chunkSize int) *bodySource {
	return &bodySource{
		x:         x,
		input:     env.Input,
		declared:  env.ContentLength,
		max:       max,
		chunkSize: chunkSize,
	}
}

func (b *bodySource) receive(ctx context.Context) (types.Message, error) {
	if b.x.disconnected() {
		return types.Disconnect{}, nil
	}
	if b.done {
		return types.Request{}, nil
	}
	if b.input == nil || b.declared == 0 {
		b.done = true
		return types.Request{}, nil
	}

	// Let callbacks queued by the handler run before blocking on the host.
	if loop, ok := pool.LoopFromContext(ctx); ok {
		if err := loop.Yield(); err != nil {
			return nil, err
		}
	}

	remaining := int64(-1)
	if b.declared > 0 {
		remaining = b.declared - b.delivered
	}
	budget := b.max - b.delivered

	size := int64(b.chunkSize)
	if budget < size {
		size = budget
	}
	if remaining >= 0 && remaining < size {
		size = remaining
	}

	buf := make([]byte, size)
	n, err := io.ReadFull(b.input, buf)
	if n > 0 {
		b.delivered += int64(n)
		b.x.addBytesIn(n)
	}

	eof := false
	switch {
	case err == nil:
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		eof = true
		if remaining > 0 && b.delivered < b.declared {
			b.x.logger.Debug("request body shorter than declared", map[string]any{
				"declared":  b.declared,
				"delivered": b.delivered,
			})
		}
	default:
		b.x.logger.Warn("request body read failed", map[string]any{
			"error":     err.Error(),
			"delivered": b.delivered,
		})
		b.done = true
		return types.Disconnect{}, nil
	}

	more := !eof
	if more && b.declared > 0 && b.delivered >= b.declared {
		more = false
	}
	if more && b.delivered >= b.max {
		b.checkOverflow()
		more = false
	}
	if !more {
		b.done = true
	}
	return types.Request{Body: buf[:n], MoreBody: more}, nil
}

// checkOverflow fails the exchange if data remains past the cap. Called once
// the delivered count has reached the cap. The probe byte is never delivered.
func (b *bodySource) checkOverflow() {
	var over bool
	if b.declared > 0 {
		over = b.declared > b.delivered
	} else {
		var probe [1]byte
		n, _ := io.ReadFull(b.input, probe[:])
		over = n > 0
	}
	if !over {
		return
	}

	b.x.fail(&Error{Kind: KindBodyTooLarge, Err: ErrBodyTooLarge})
	b.x.logger.Debug("request body capped", map[string]any{
		"limit":     humanize.IBytes(uint64(b.max)),
		"delivered": humanize.IBytes(uint64(b.delivered)),
	})
}
