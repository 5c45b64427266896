package bridge

import "sync"

// chunkItem is one entry of the chunk stream: a payload, the end marker or
// an abort.
type chunkItem struct {
	data []byte
	end  bool
	err  error
}

// chunkStream is the bounded FIFO from the worker to the host. Completion is
// an explicit end item, never a channel close, so an aborted response can be
// told apart from a finished one.
type chunkStream struct {
	items     chan chunkItem
	abandoned chan struct{}
	once      sync.Once
}

func newChunkStream(capacity int) *chunkStream {
	return &chunkStream{
		items:     make(chan chunkItem, capacity),
		abandoned: make(chan struct{}),
	}
}

// push blocks while the stream is full. Returns false without blocking once
// the host has abandoned the stream.
func (s *chunkStream) push(it chunkItem) bool {
	select {
	case <-s.abandoned:
		return false
	default:
	}
	select {
	case s.items <- it:
		return true
	case <-s.abandoned:
		return false
	}
}

// next blocks for the next item. ok is false once the stream is abandoned.
func (s *chunkStream) next() (it chunkItem, ok bool) {
	select {
	case it = <-s.items:
		return it, true
	case <-s.abandoned:
		return chunkItem{}, false
	}
}

// discard drops everything buffered. Only valid while the host is not reading.
func (s *chunkStream) discard() {
	for {
		select {
		case <-s.items:
		default:
			return
		}
	}
}

func (s *chunkStream) abandon() {
	s.once.Do(func() { close(s.abandoned) })
}

func (s *chunkStream) isAbandoned() bool {
	select {
	case <-s.abandoned:
		return true
	default:
		return false
	}
}
