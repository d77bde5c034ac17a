// Package session owns the set of live sessions, their graph-execution
// tasks, and teardown. The registry is the only shared mutable state between
// connections; session internals are touched by the session's own task and
// by the broker resolving its waiter.
package session

import (
	"context"
	"errors"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"campaign-generator/backend/internal/contacts"
	"campaign-generator/backend/internal/logging"
	"campaign-generator/backend/internal/services"
	"campaign-generator/backend/internal/workflow"
)

var (
	// ErrSessionExists indicates the client id already has an active session.
	ErrSessionExists = errors.New("session already active for this client id")
	// ErrSessionNotFound indicates no active session for the client id.
	ErrSessionNotFound = errors.New("session not found")
)

// Deps are the collaborators every session run needs.
type Deps struct {
	Graph       *workflow.Graph
	Completion  services.CompletionClient
	Lists       contacts.ListProvider
	Matcher     *contacts.Matcher
	Checkpoints workflow.CheckpointStore
	Logger      *logging.Logger
}

// Registry maps client ids to live sessions and guarantees exclusive
// ownership of each session's execution task. Teardown is always triggered
// by an explicit terminal event, so no background sweep exists.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	deps     Deps

	activeSessions   metric.Int64UpDownCounter
	finishedSessions metric.Int64Counter
}

// NewRegistry creates an empty registry.
func NewRegistry(deps Deps) *Registry {
	meter := otel.Meter("campaign-generator/backend/session")
	active, _ := meter.Int64UpDownCounter("campaign.sessions.active",
		metric.WithDescription("Number of live campaign sessions"))
	finished, _ := meter.Int64Counter("campaign.sessions.finished",
		metric.WithDescription("Sessions torn down, by terminal"))

	return &Registry{
		sessions:         map[string]*Session{},
		deps:             deps,
		activeSessions:   active,
		finishedSessions: finished,
	}
}

// Create registers a new session for the client id. It fails if the id is
// already active.
func (r *Registry) Create(id string, send workflow.SendFunc) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[id]; exists {
		return nil, ErrSessionExists
	}

	s := newSession(id, send, r.deps, r)
	r.sessions[id] = s
	r.activeSessions.Add(context.Background(), 1)
	r.deps.Logger.Info("session created", "session_id", id)
	return s, nil
}

// Get returns the active session for the client id.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Remove releases the registry entry. It is a no-op for unknown ids.
func (r *Registry) Remove(id string) {
	r.mu.RLock()
	s := r.sessions[id]
	r.mu.RUnlock()
	if s != nil {
		r.remove(s, "removed")
	}
}

// remove releases the entry only if it still belongs to this session, so a
// stale session torn down after its id was reused never evicts the
// replacement.
func (r *Registry) remove(s *Session, terminal string) {
	r.mu.Lock()
	current, ok := r.sessions[s.ID]
	if ok && current == s {
		delete(r.sessions, s.ID)
	} else {
		ok = false
	}
	r.mu.Unlock()

	if !ok {
		return
	}
	ctx := context.Background()
	r.activeSessions.Add(ctx, -1)
	r.finishedSessions.Add(ctx, 1, metric.WithAttributes(attribute.String("terminal", terminal)))
	r.deps.Logger.Info("session removed", "session_id", s.ID, "terminal", terminal)
}

// Len reports how many sessions are live.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
