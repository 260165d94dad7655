package session

import (
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/auralens/auralens/internal/observability"
)

// ErrSessionNotFound signals an unknown session id
var ErrSessionNotFound = errors.New("session: session not found")

// Registry owns every live session. Entries are only ever added; sessions
// live for the process lifetime.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	logger   zerolog.Logger
}

// NewRegistry creates an empty registry
func NewRegistry(logger zerolog.Logger) *Registry {
	observability.EnsureRegistered()

	return &Registry{
		sessions: make(map[string]*Session),
		logger:   logger.With().Str("module", "registry").Logger(),
	}
}

// Create allocates a new session with a fresh id and the seed narrative
func (r *Registry) Create() *Session {
	s := &Session{
		id:        uuid.NewString(),
		narrative: SeedNarrative,
	}

	r.mu.Lock()
	r.sessions[s.id] = s
	count := len(r.sessions)
	r.mu.Unlock()

	observability.RecordSessionCreated(count)
	r.logger.Info().Str("session_id", s.id).Msg("Session created")

	return s
}

// Get returns the session for the given id
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()

	if !ok {
		r.logger.Warn().Str("session_id", id).Msg("Attempted to access a non-existent session")
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Count returns the number of live sessions
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
