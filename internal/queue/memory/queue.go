// Package memory provides the in-process namespace work queue.
package memory

import (
	"sync"

	"github.com/JakeFAU/wikititles-crawler/internal/crawler"
)

// Stack is a LIFO of namespaces awaiting dispatch. It is safe for concurrent
// use, though the dispatcher only touches it from its control loop.
type Stack struct {
	mu    sync.Mutex
	items []crawler.Namespace
}

// NewStack returns a stack seeded with namespaces; the last element is popped first.
func NewStack(namespaces []crawler.Namespace) *Stack {
	items := make([]crawler.Namespace, len(namespaces))
	copy(items, namespaces)
	return &Stack{items: items}
}

// Push adds ns to the top of the stack.
func (s *Stack) Push(ns crawler.Namespace) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, ns)
}

// Pop removes and returns the top namespace. ok is false when the stack is empty.
func (s *Stack) Pop() (crawler.Namespace, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.items) == 0 {
		return 0, false
	}
	last := len(s.items) - 1
	ns := s.items[last]
	s.items = s.items[:last]
	return ns, true
}

// Len reports the number of queued namespaces.
func (s *Stack) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Drain empties the stack and returns what was left in pop order.
func (s *Stack) Drain() []crawler.Namespace {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]crawler.Namespace, 0, len(s.items))
	for i := len(s.items) - 1; i >= 0; i-- {
		out = append(out, s.items[i])
	}
	s.items = nil
	return out
}
