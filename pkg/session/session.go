package session

import "sync"

// SeedNarrative is the narrative every session starts with, before any
// scene description has been folded in.
const SeedNarrative = "The scene has just begun..."

// Session is the state of one live monitoring interaction. All four mutable
// fields are guarded by mu; nothing reads or writes them without it.
type Session struct {
	id string

	mu                sync.Mutex
	narrative         string
	pending           []string
	aggregatorRunning bool
}

// ID returns the session identifier
func (s *Session) ID() string {
	return s.id
}

// Narrative returns a consistent snapshot of the current narrative
func (s *Session) Narrative() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.narrative
}

// PendingCount returns the number of descriptions awaiting aggregation
func (s *Session) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// AggregatorRunning reports whether an aggregator loop currently owns the queue
func (s *Session) AggregatorRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.aggregatorRunning
}
