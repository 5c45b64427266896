package bridge

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies request failures for response synthesis and outcome
// reporting.
type ErrorKind int

const (
	// KindBodyTooLarge indicates the request body exceeded the configured cap.
	KindBodyTooLarge ErrorKind = iota
	// KindProtocolViolation indicates the handler broke the message protocol.
	KindProtocolViolation
	// KindHandlerFailure indicates the handler returned an error or panicked.
	KindHandlerFailure
	// KindUnavailable indicates the request could not be scheduled.
	KindUnavailable
)

func (k ErrorKind) String() string {
	switch k {
	case KindBodyTooLarge:
		return "body_too_large"
	case KindProtocolViolation:
		return "protocol_violation"
	case KindHandlerFailure:
		return "handler_error"
	case KindUnavailable:
		return "unavailable"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Error is a classified request failure.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Status returns the HTTP status synthesized for this failure.
func (e *Error) Status() int {
	switch e.Kind {
	case KindBodyTooLarge:
		return http.StatusRequestEntityTooLarge
	case KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Body size failure.
var ErrBodyTooLarge = errors.New("request body exceeds maximum size")

// Protocol violations.
var (
	ErrDuplicateStart    = errors.New("response start sent twice")
	ErrBodyBeforeStart   = errors.New("response body sent before response start")
	ErrNoResponseStart   = errors.New("handler completed without starting a response")
	ErrSendAfterComplete = errors.New("message sent after response completed")
	ErrUnknownMessage    = errors.New("unsupported outbound message")
	ErrInvalidStatus     = errors.New("invalid response status")
)

// Errors returned to the handler from send.
var (
	// ErrDisconnected means the synchronous host abandoned the response.
	ErrDisconnected = errors.New("client disconnected")
	// ErrResponseClosed means the response was already terminated by a failure.
	ErrResponseClosed = errors.New("response already terminated")
)

// ErrStreamAborted is returned by Body.Next when the response was cut short
// after the host had already received the status and headers.
var ErrStreamAborted = errors.New("response stream aborted")

func kindOf(err error) (ErrorKind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// IsBodyTooLarge returns true if err is an oversized body failure.
func IsBodyTooLarge(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindBodyTooLarge
}

// IsProtocolViolation returns true if err is a handler protocol violation.
func IsProtocolViolation(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindProtocolViolation
}

// IsHandlerFailure returns true if err is a handler error or panic.
func IsHandlerFailure(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindHandlerFailure
}
