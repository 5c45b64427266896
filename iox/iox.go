// Package iox provides I/O helpers for resource cleanup and chunked copying.
package iox

import (
	"io"
)

// DiscardClose closes c and discards the error.
// Use in defer statements where close errors are unactionable:
//
//	defer iox.DiscardClose(body)
func DiscardClose(c io.Closer) { _ = c.Close() }

// CloseFunc returns a cleanup function that closes c.
// Designed for t.Cleanup registration:
//
//	t.Cleanup(iox.CloseFunc(adapter))
func CloseFunc(c io.Closer) func() {
	return func() { _ = c.Close() }
}

// ChunkSource yields chunks until it returns io.EOF.
type ChunkSource interface {
	Next() ([]byte, error)
}

// Flusher pushes buffered bytes to the peer.
type Flusher func() error

// CopyChunks writes every chunk from src to w, flushing after each one so a
// streamed response reaches the peer as it is produced. flush may be nil.
//
// Returns the bytes written and nil once src reports io.EOF. A source error
// is returned as is; write and flush errors are wrapped in *WriteError so
// callers can tell a broken peer from a broken source.
func CopyChunks(w io.Writer, src ChunkSource, flush Flusher) (int64, error) {
	var total int64
	for {
		chunk, err := src.Next()
		if err == io.EOF {
			return total, nil
		}
		if err != nil {
			return total, err
		}

		n, err := w.Write(chunk)
		total += int64(n)
		if err != nil {
			return total, &WriteError{Err: err}
		}
		if flush != nil {
			if err := flush(); err != nil {
				return total, &WriteError{Err: err}
			}
		}
	}
}

// WriteError wraps a failure writing to the peer.
type WriteError struct {
	Err error
}

func (e *WriteError) Error() string {
	return "write to peer: " + e.Err.Error()
}

func (e *WriteError) Unwrap() error {
	return e.Err
}
