package bridge

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pithecene-io/syncbridge/log"
	"github.com/pithecene-io/syncbridge/metrics"
	"github.com/pithecene-io/syncbridge/pool"
	"github.com/pithecene-io/syncbridge/scope"
	"github.com/pithecene-io/syncbridge/types"
)

// exchange is the per-request state shared by the worker side (send,
// receive, completion) and the host side (Body).
//
// All producer writes to the chunk stream happen under mu, so the stream
// order is the order in which sends were accepted.
type exchange struct {
	id        string
	logger    *log.Logger
	collector *metrics.Collector
	began     time.Time

	signal *startSignal
	stream *chunkStream

	// parent is the host's request context, ctx the handler's.
	parent context.Context
	ctx    context.Context
	cancel context.CancelFunc

	// abandoned is set before the stream is released early.
	abandoned atomic.Bool

	mu       sync.Mutex
	started  bool
	ended    bool
	status   int
	failed   *Error
	bytesIn  int64
	bytesOut int64
}

func newExchange(parent context.Context, id string, streamBuffer int, logger *log.Logger, collector *metrics.Collector) *exchange {
	ctx, cancel := context.WithCancel(parent)
	return &exchange{
		id:        id,
		logger:    logger,
		collector: collector,
		began:     time.Now(),
		signal:    newStartSignal(),
		stream:    newChunkStream(streamBuffer),
		parent:    parent,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// send is the handler's outbound callback.
func (x *exchange) send(_ context.Context, msg types.Message) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.stream.isAbandoned() {
		return ErrDisconnected
	}
	if x.failed != nil {
		return ErrResponseClosed
	}

	switch m := deref(msg).(type) {
	case types.ResponseStart:
		if x.started {
			return x.violationLocked(ErrDuplicateStart)
		}
		if m.Status < 100 || m.Status > 999 {
			return x.violationLocked(fmt.Errorf("%w: %d", ErrInvalidStatus, m.Status))
		}
		x.started = true
		x.status = m.Status
		x.signal.put(responseHead{
			status:  m.Status,
			headers: scope.ResponseHeaders(m.Headers),
		})
		return nil

	case types.ResponseBody:
		if !x.started {
			return x.violationLocked(ErrBodyBeforeStart)
		}
		if x.ended {
			x.logger.Warn("message after response completed", map[string]any{
				"type": m.Type(),
			})
			x.collector.IncProtocolViolation()
			return ErrSendAfterComplete
		}
		if len(m.Body) > 0 {
			if !x.stream.push(chunkItem{data: bytes.Clone(m.Body)}) {
				return ErrDisconnected
			}
			x.bytesOut += int64(len(m.Body))
		}
		if !m.MoreBody {
			x.endLocked()
		}
		return nil

	case types.ResponseDisconnect:
		if x.started && !x.ended {
			x.endLocked()
		}
		return nil

	default:
		typ := "<nil>"
		if msg != nil {
			typ = string(msg.Type())
		}
		return x.violationLocked(fmt.Errorf("%w: %s", ErrUnknownMessage, typ))
	}
}

// deref accepts pointer forms of the outbound messages.
func deref(msg types.Message) types.Message {
	switch m := msg.(type) {
	case *types.ResponseStart:
		if m != nil {
			return *m
		}
	case *types.ResponseBody:
		if m != nil {
			return *m
		}
	case *types.ResponseDisconnect:
		if m != nil {
			return *m
		}
	}
	return msg
}

func (x *exchange) endLocked() {
	x.ended = true
	x.stream.push(chunkItem{end: true})
}

func (x *exchange) violationLocked(err error) error {
	e := &Error{Kind: KindProtocolViolation, Err: err}
	x.failLocked(e)
	return e
}

// fail records the first failure of the exchange and delivers it to the host:
// a synthesized response if the host has not read the head yet, otherwise an
// abort of the chunk stream.
func (x *exchange) fail(e *Error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.failLocked(e)
}

func (x *exchange) failLocked(e *Error) {
	if x.failed != nil {
		return
	}
	x.failed = e
	x.record(e)

	head, body := synthesize(e)
	switch {
	case !x.started:
		x.started = true
		x.status = head.status
		x.signal.put(head)
		x.emitLocked(body)
		x.collector.IncSynthesized(head.status)
	case x.signal.replace(head, func() {
		x.stream.discard()
		x.emitLocked(body)
	}):
		x.status = head.status
		x.collector.IncSynthesized(head.status)
	case !x.ended:
		x.ended = true
		x.stream.push(chunkItem{err: fmt.Errorf("%w: %v", ErrStreamAborted, e)})
		x.collector.IncStreamAborted()
		x.logger.Warn("response stream aborted", map[string]any{
			"status": x.status,
			"error":  e.Error(),
		})
	}
}

func (x *exchange) emitLocked(body []byte) {
	x.stream.push(chunkItem{data: body})
	x.endLocked()
}

func (x *exchange) record(e *Error) {
	fields := map[string]any{"error": e.Err.Error()}
	switch e.Kind {
	case KindBodyTooLarge:
		x.collector.IncBodyTooLarge()
		x.logger.Warn("request body too large", fields)
	case KindProtocolViolation:
		x.collector.IncProtocolViolation()
		x.logger.Error("protocol violation", fields)
	case KindHandlerFailure:
		x.collector.IncHandlerFailure()
		var pe *pool.PanicError
		if errors.As(e.Err, &pe) {
			x.collector.IncHandlerPanic()
			fields["stack"] = string(pe.Stack)
		}
		x.logger.Error("handler failed", fields)
	case KindUnavailable:
		x.logger.Error("request not scheduled", fields)
	}
}

// synthesize builds the plain-text response sent in place of a failed one.
func synthesize(e *Error) (responseHead, []byte) {
	status := e.Status()
	var body []byte
	switch e.Kind {
	case KindBodyTooLarge:
		body = []byte(http.StatusText(status))
	case KindProtocolViolation:
		body = []byte("protocol violation: " + e.Err.Error())
	case KindUnavailable:
		body = []byte("service unavailable: " + e.Err.Error())
	default:
		body = []byte("handler error: " + e.Err.Error())
	}
	return responseHead{
		status: status,
		headers: []types.Header{
			{Name: "content-type", Value: "text/plain; charset=utf-8"},
			{Name: "content-length", Value: strconv.Itoa(len(body))},
		},
		synthesized: true,
	}, body
}

// complete runs on the worker goroutine once the handler has returned.
func (x *exchange) complete(err error) {
	x.mu.Lock()
	switch {
	case err == nil:
		if !x.started {
			x.failLocked(&Error{Kind: KindProtocolViolation, Err: ErrNoResponseStart})
		} else if !x.ended {
			x.endLocked()
		}
	case x.abandoned.Load() && errors.Is(err, context.Canceled):
	case errors.Is(err, ErrDisconnected), errors.Is(err, ErrResponseClosed):
		// Already accounted for by release or an earlier failure.
	default:
		var be *Error
		if errors.As(err, &be) {
			x.failLocked(be)
		} else {
			x.failLocked(&Error{Kind: KindHandlerFailure, Err: err})
		}
	}
	outcome := x.outcomeLocked()
	status, in, out := x.status, x.bytesIn, x.bytesOut
	x.mu.Unlock()

	x.cancel()
	x.collector.IncRequestCompleted()
	x.logger.Info("request completed", map[string]any{
		"outcome":     string(outcome),
		"status":      status,
		"bytes_in":    in,
		"bytes_out":   out,
		"duration_ms": time.Since(x.began).Milliseconds(),
	})
}

// release is called once by the host when it is done with the body. early
// means the response had not been fully consumed.
func (x *exchange) release(early bool) {
	if early {
		x.abandoned.Store(true)
		x.cancel()
	}
	x.stream.abandon()
}

func (x *exchange) disconnected() bool {
	return x.stream.isAbandoned() || x.parent.Err() != nil
}

func (x *exchange) addBytesIn(n int) {
	x.mu.Lock()
	x.bytesIn += int64(n)
	x.mu.Unlock()
	x.collector.AddBytesIn(n)
}

// Outcome is the terminal classification of a request.
type Outcome string

const (
	OutcomeCompleted         Outcome = "completed"
	OutcomeAbandoned         Outcome = "abandoned"
	OutcomeBodyTooLarge      Outcome = "body_too_large"
	OutcomeProtocolViolation Outcome = "protocol_violation"
	OutcomeHandlerError      Outcome = "handler_error"
	OutcomeUnavailable       Outcome = "unavailable"
)

func (x *exchange) outcomeLocked() Outcome {
	if x.failed != nil {
		switch x.failed.Kind {
		case KindBodyTooLarge:
			return OutcomeBodyTooLarge
		case KindProtocolViolation:
			return OutcomeProtocolViolation
		case KindUnavailable:
			return OutcomeUnavailable
		default:
			return OutcomeHandlerError
		}
	}
	if x.abandoned.Load() {
		return OutcomeAbandoned
	}
	return OutcomeCompleted
}
