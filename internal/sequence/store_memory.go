package sequence

import (
	"context"
	"sync"
)

// InMemory keeps counters in process memory. Development and tests only.
type InMemory struct {
	mu       sync.Mutex
	counters map[string]int64
}

func NewInMemory() *InMemory {
	return &InMemory{counters: make(map[string]int64)}
}

func (s *InMemory) Next(_ context.Context, name string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[name]++
	return s.counters[name], nil
}

func (s *InMemory) Current(_ context.Context, name string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters[name], nil
}

func (s *InMemory) Reset(_ context.Context, name string, value int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[name] = value
	return nil
}
