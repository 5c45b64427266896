// Package ipc implements the framing used to run an asynchronous handler in a
// child process.
//
// Every frame is a 4-byte big-endian payload length followed by a msgpack
// map with a "type" discriminant. The parent opens with a scope frame; the
// child then alternates between lifecycle frames (response start and body)
// and receive frames, each of which the parent answers with one inbound
// frame (request chunk or disconnect). A child reports a handler failure
// with an error frame before exiting.
package ipc

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/pithecene-io/syncbridge/types"
)

// Frame size constants.
const (
	// MaxFrameSize is the maximum frame size (16 MiB), including length prefix.
	MaxFrameSize = 16 * 1024 * 1024
	// MaxPayloadSize is the maximum payload size (MaxFrameSize - 4 bytes).
	MaxPayloadSize = MaxFrameSize - LengthPrefixSize
	// LengthPrefixSize is the size of the length prefix in bytes.
	LengthPrefixSize = 4
)

// Control frame types. Lifecycle frames use the types.MessageType values.
const (
	FrameTypeScope   = "scope"
	FrameTypeReceive = "receive"
	FrameTypeError   = "error"
)

// FrameErrorKind classifies frame errors.
type FrameErrorKind int

const (
	// FrameErrorPartial indicates a truncated or incomplete frame.
	FrameErrorPartial FrameErrorKind = iota
	// FrameErrorTooLarge indicates a frame exceeding MaxFrameSize.
	FrameErrorTooLarge
	// FrameErrorDecode indicates a msgpack decoding error or unknown frame.
	FrameErrorDecode
	// FrameErrorEncode indicates a frame that could not be encoded.
	FrameErrorEncode
)

// FrameError represents a framing error.
type FrameError struct {
	Kind FrameErrorKind
	Msg  string
	Err  error
}

func (e *FrameError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *FrameError) Unwrap() error {
	return e.Err
}

// IsFatal returns true if the stream cannot continue after this error.
// Partial and oversized frames desynchronize the stream.
func (e *FrameError) IsFatal() bool {
	return e.Kind == FrameErrorPartial || e.Kind == FrameErrorTooLarge
}

// IsFatalFrameError returns true if the error is a fatal frame error.
func IsFatalFrameError(err error) bool {
	var frameErr *FrameError
	if errors.As(err, &frameErr) {
		return frameErr.IsFatal()
	}
	return false
}

// Frame is the union of every frame on the wire. Unused fields are omitted.
type Frame struct {
	Type     string            `msgpack:"type"`
	Scope    *types.Scope      `msgpack:"scope,omitempty"`
	Status   int               `msgpack:"status,omitempty"`
	Headers  []types.RawHeader `msgpack:"headers,omitempty"`
	Trailers bool              `msgpack:"trailers,omitempty"`
	Body     []byte            `msgpack:"body,omitempty"`
	MoreBody bool              `msgpack:"more_body,omitempty"`
	Message  string            `msgpack:"message,omitempty"`
}

// ScopeFrame opens a request.
func ScopeFrame(sc *types.Scope) *Frame {
	return &Frame{Type: FrameTypeScope, Scope: sc}
}

// ReceiveFrame asks the parent for the next inbound message.
func ReceiveFrame() *Frame {
	return &Frame{Type: FrameTypeReceive}
}

// ErrorFrame reports a handler failure.
func ErrorFrame(err error) *Frame {
	return &Frame{Type: FrameTypeError, Message: err.Error()}
}

// FromMessage converts a lifecycle message to its frame.
func FromMessage(msg types.Message) (*Frame, error) {
	switch m := msg.(type) {
	case types.Request:
		return &Frame{Type: string(m.Type()), Body: m.Body, MoreBody: m.MoreBody}, nil
	case types.Disconnect:
		return &Frame{Type: string(m.Type())}, nil
	case types.ResponseStart:
		return &Frame{Type: string(m.Type()), Status: m.Status, Headers: m.Headers, Trailers: m.Trailers}, nil
	case types.ResponseBody:
		return &Frame{Type: string(m.Type()), Body: m.Body, MoreBody: m.MoreBody}, nil
	case types.ResponseDisconnect:
		return &Frame{Type: string(m.Type())}, nil
	case *types.ResponseStart:
		if m != nil {
			return FromMessage(*m)
		}
	case *types.ResponseBody:
		if m != nil {
			return FromMessage(*m)
		}
	}
	return nil, &FrameError{
		Kind: FrameErrorEncode,
		Msg:  fmt.Sprintf("no frame for message %T", msg),
	}
}

// ToMessage converts a lifecycle frame back to its message.
func (f *Frame) ToMessage() (types.Message, error) {
	switch types.MessageType(f.Type) {
	case types.MessageTypeRequest:
		return types.Request{Body: f.Body, MoreBody: f.MoreBody}, nil
	case types.MessageTypeDisconnect:
		return types.Disconnect{}, nil
	case types.MessageTypeResponseStart:
		return types.ResponseStart{Status: f.Status, Headers: f.Headers, Trailers: f.Trailers}, nil
	case types.MessageTypeResponseBody:
		return types.ResponseBody{Body: f.Body, MoreBody: f.MoreBody}, nil
	case types.MessageTypeResponseDisconnect:
		return types.ResponseDisconnect{}, nil
	default:
		return nil, &FrameError{
			Kind: FrameErrorDecode,
			Msg:  fmt.Sprintf("frame %q is not a lifecycle message", f.Type),
		}
	}
}

// FrameDecoder decodes length-prefixed msgpack frames from a stream.
type FrameDecoder struct {
	reader io.Reader
}

// NewFrameDecoder creates a new frame decoder.
func NewFrameDecoder(r io.Reader) *FrameDecoder {
	return &FrameDecoder{reader: r}
}

// ReadFrame reads a single frame from the stream.
// Returns the raw payload bytes (msgpack-encoded).
//
// Errors:
//   - io.EOF: stream ended cleanly (no more frames)
//   - *FrameError with Kind=FrameErrorPartial: incomplete frame (fatal)
//   - *FrameError with Kind=FrameErrorTooLarge: frame exceeds limit (fatal)
func (d *FrameDecoder) ReadFrame() ([]byte, error) {
	var lengthBuf [LengthPrefixSize]byte
	_, err := io.ReadFull(d.reader, lengthBuf[:])
	if err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, &FrameError{
			Kind: FrameErrorPartial,
			Msg:  "failed to read length prefix",
			Err:  err,
		}
	}

	payloadSize := binary.BigEndian.Uint32(lengthBuf[:])
	if payloadSize > MaxPayloadSize {
		return nil, &FrameError{
			Kind: FrameErrorTooLarge,
			Msg:  fmt.Sprintf("payload size %d exceeds maximum %d", payloadSize, MaxPayloadSize),
		}
	}

	payload := make([]byte, payloadSize)
	_, err = io.ReadFull(d.reader, payload)
	if err != nil {
		return nil, &FrameError{
			Kind: FrameErrorPartial,
			Msg:  "failed to read payload",
			Err:  err,
		}
	}

	return payload, nil
}

// Next reads and decodes the next frame.
func (d *FrameDecoder) Next() (*Frame, error) {
	payload, err := d.ReadFrame()
	if err != nil {
		return nil, err
	}
	return DecodeFrame(payload)
}

// DecodeFrame decodes a payload.
func DecodeFrame(payload []byte) (*Frame, error) {
	var f Frame
	if err := msgpack.Unmarshal(payload, &f); err != nil {
		return nil, &FrameError{
			Kind: FrameErrorDecode,
			Msg:  "failed to decode frame",
			Err:  err,
		}
	}
	if f.Type == "" {
		return nil, &FrameError{
			Kind: FrameErrorDecode,
			Msg:  "frame has no type",
		}
	}
	return &f, nil
}

// FrameEncoder writes length-prefixed msgpack frames. Safe for concurrent use.
type FrameEncoder struct {
	mu     sync.Mutex
	writer io.Writer
}

// NewFrameEncoder creates a new frame encoder.
func NewFrameEncoder(w io.Writer) *FrameEncoder {
	return &FrameEncoder{writer: w}
}

// Encode marshals f and writes it as one frame.
func (e *FrameEncoder) Encode(f *Frame) error {
	payload, err := msgpack.Marshal(f)
	if err != nil {
		return &FrameError{
			Kind: FrameErrorEncode,
			Msg:  "failed to encode frame",
			Err:  err,
		}
	}
	return e.WriteFrame(payload)
}

// WriteFrame writes payload with its length prefix in a single write.
func (e *FrameEncoder) WriteFrame(payload []byte) error {
	if len(payload) > MaxPayloadSize {
		return &FrameError{
			Kind: FrameErrorTooLarge,
			Msg:  fmt.Sprintf("payload size %d exceeds maximum %d", len(payload), MaxPayloadSize),
		}
	}

	buf := make([]byte, LengthPrefixSize+len(payload))
	binary.BigEndian.PutUint32(buf[:LengthPrefixSize], uint32(len(payload)))
	copy(buf[LengthPrefixSize:], payload)

	e.mu.Lock()
	defer e.mu.Unlock()
	_, err := e.writer.Write(buf)
	return err
}
