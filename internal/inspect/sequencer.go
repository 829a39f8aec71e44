package inspect

import "sync"

// sequencer releases results in submission index order. Results that
// arrive early wait until every lower index has been released.
type sequencer[T any] struct {
	mu      sync.Mutex
	next    int
	pending map[int]T
	release func(T)
	stopped bool
}

func newSequencer[T any](release func(T)) *sequencer[T] {
	return &sequencer[T]{pending: make(map[int]T), release: release}
}

// submit records the result for index i and releases every result that is
// now in order. release runs under the sequencer's lock.
func (s *sequencer[T]) submit(i int, v T) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}
	s.pending[i] = v
	for {
		next, ok := s.pending[s.next]
		if !ok {
			return
		}
		delete(s.pending, s.next)
		s.next++
		s.release(next)
	}
}

// stop drops every later submission and returns how many results were
// released.
func (s *sequencer[T]) stop() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	return s.next
}
