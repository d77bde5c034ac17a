package workflow

import (
	"context"
	"sync"
	"time"

	"campaign-generator/backend/pkg/models"
)

// Checkpoint is the snapshot persisted after every node transition,
// including entry into a suspension. Resuming reconstructs the session at
// the recorded node with the same open question id.
type Checkpoint struct {
	SessionID string
	Node      string
	State     *models.CampaignState
	Pending   *models.PendingQuestion
	SavedAt   time.Time
}

// CheckpointStore persists session snapshots keyed by session id.
type CheckpointStore interface {
	// Save stores the checkpoint, replacing any previous one for the session.
	Save(ctx context.Context, cp Checkpoint) error
	// Load retrieves the latest checkpoint for a session.
	Load(ctx context.Context, sessionID string) (Checkpoint, bool, error)
	// Delete discards a session's checkpoint.
	Delete(ctx context.Context, sessionID string) error
}

// MemoryCheckpointStore is the in-memory CheckpointStore implementation.
// Snapshots live for the process lifetime only; surviving a restart would
// require an external durable store.
type MemoryCheckpointStore struct {
	mu   sync.RWMutex
	byID map[string]Checkpoint
}

// NewMemoryCheckpointStore creates an empty store.
func NewMemoryCheckpointStore() *MemoryCheckpointStore {
	return &MemoryCheckpointStore{byID: make(map[string]Checkpoint)}
}

// Save stores a deep copy so later state mutations never leak into the
// snapshot.
func (s *MemoryCheckpointStore) Save(_ context.Context, cp Checkpoint) error {
	cp.State = cp.State.Clone()
	if cp.Pending != nil {
		pending := *cp.Pending
		cp.Pending = &pending
	}
	cp.SavedAt = time.Now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[cp.SessionID] = cp
	return nil
}

// Load returns a copy of the stored checkpoint.
func (s *MemoryCheckpointStore) Load(_ context.Context, sessionID string) (Checkpoint, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cp, ok := s.byID[sessionID]
	if !ok {
		return Checkpoint{}, false, nil
	}
	cp.State = cp.State.Clone()
	if cp.Pending != nil {
		pending := *cp.Pending
		cp.Pending = &pending
	}
	return cp, true, nil
}

// Delete discards a session's checkpoint.
func (s *MemoryCheckpointStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byID, sessionID)
	return nil
}
