package iox

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

type spyCloser struct{ closed bool }

func (s *spyCloser) Close() error { s.closed = true; return errors.New("ignored") }

func TestDiscardClose(t *testing.T) {
	s := &spyCloser{}
	DiscardClose(s)
	if !s.closed {
		t.Fatal("Close was not called")
	}
}

func TestCloseFunc(t *testing.T) {
	s := &spyCloser{}
	fn := CloseFunc(s)
	if s.closed {
		t.Fatal("Close called before invoking returned func")
	}
	fn()
	if !s.closed {
		t.Fatal("Close was not called")
	}
}

// sliceSource yields chunks then a terminal error.
type sliceSource struct {
	chunks [][]byte
	end    error
}

func (s *sliceSource) Next() ([]byte, error) {
	if len(s.chunks) == 0 {
		return nil, s.end
	}
	c := s.chunks[0]
	s.chunks = s.chunks[1:]
	return c, nil
}

type failWriter struct{}

func (failWriter) Write([]byte) (int, error) { return 0, errors.New("broken pipe") }

func TestCopyChunks(t *testing.T) {
	aborted := errors.New("aborted")

	tests := []struct {
		name      string
		src       *sliceSource
		w         io.Writer
		wantN     int64
		wantErr   error
		wantWrite bool
		flushes   int
	}{
		{
			name:    "complete",
			src:     &sliceSource{chunks: [][]byte{[]byte("ab"), []byte("cde")}, end: io.EOF},
			w:       &bytes.Buffer{},
			wantN:   5,
			flushes: 2,
		},
		{
			name:    "source aborts",
			src:     &sliceSource{chunks: [][]byte{[]byte("ab")}, end: aborted},
			w:       &bytes.Buffer{},
			wantN:   2,
			wantErr: aborted,
			flushes: 1,
		},
		{
			name:      "peer gone",
			src:       &sliceSource{chunks: [][]byte{[]byte("ab")}, end: io.EOF},
			w:         failWriter{},
			wantWrite: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flushes := 0
			n, err := CopyChunks(tt.w, tt.src, func() error { flushes++; return nil })

			if n != tt.wantN {
				t.Errorf("n = %d, want %d", n, tt.wantN)
			}
			var we *WriteError
			if tt.wantWrite {
				if !errors.As(err, &we) {
					t.Errorf("err = %v, want *WriteError", err)
				}
			} else if !errors.Is(err, tt.wantErr) || errors.As(err, &we) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
			if flushes != tt.flushes {
				t.Errorf("flushes = %d, want %d", flushes, tt.flushes)
			}
		})
	}
}

func TestCopyChunks_NilFlush(t *testing.T) {
	var buf bytes.Buffer
	src := &sliceSource{chunks: [][]byte{[]byte("x")}, end: io.EOF}
	if _, err := CopyChunks(&buf, src, nil); err != nil || buf.String() != "x" {
		t.Errorf("CopyChunks = %q, %v", buf.String(), err)
	}
}
