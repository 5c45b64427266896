package bridge

import (
	"sync"

	"github.com/pithecene-io/syncbridge/types"
)

// responseHead is the status line and headers handed to the host.
type responseHead struct {
	status      int
	headers     []types.Header
	synthesized bool
}

// startSignal is a single-slot cell carrying the response head across the
// worker/host boundary. It is written once, may be replaced until the host
// takes it, and is taken exactly once.
type startSignal struct {
	mu    sync.Mutex
	ready chan struct{}
	head  responseHead
	set   bool
	taken bool
}

func newStartSignal() *startSignal {
	return &startSignal{ready: make(chan struct{})}
}

// put writes the head. Returns false if a head was already written.
func (s *startSignal) put(h responseHead) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.set {
		return false
	}
	s.head = h
	s.set = true
	close(s.ready)
	return true
}

// replace swaps the head if it was written but not yet taken, running then
// while the host is still locked out. Returns false once the host has it.
func (s *startSignal) replace(h responseHead, then func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.set || s.taken {
		return false
	}
	s.head = h
	if then != nil {
		then()
	}
	return true
}

// wait blocks until a head is written and takes it.
func (s *startSignal) wait() responseHead {
	<-s.ready
	s.mu.Lock()
	defer s.mu.Unlock()
	s.taken = true
	return s.head
}
