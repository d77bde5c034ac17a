package session

import (
	"context"
	"sync"

	"campaign-generator/backend/internal/workflow"
	"campaign-generator/backend/pkg/models"
)

// Session is the server-side execution context for one connected client's
// in-progress campaign configuration.
type Session struct {
	ID string

	deps     Deps
	registry *Registry
	send     workflow.SendFunc

	mu          sync.Mutex
	broker      *workflow.Broker
	location    models.Location
	credentials models.Credentials
	running     bool
	closed      bool
	cancelRun   context.CancelFunc
	runDone     chan struct{}
}

func newSession(id string, send workflow.SendFunc, deps Deps, registry *Registry) *Session {
	return &Session{
		ID:       id,
		deps:     deps,
		registry: registry,
		send:     send,
	}
}

// SetHandshake stores the location context and credentials from the client's
// handshake message. Runs read them at call time, so a handshake re-sent
// after a reconnect still reaches an already-resumed run.
func (s *Session) SetHandshake(location *models.Location, credentials *models.Credentials) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if location != nil {
		s.location = *location
	}
	if credentials != nil {
		s.credentials = *credentials
	}
}

func (s *Session) handshake() (models.Location, models.Credentials) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.location, s.credentials
}

// StartCampaign begins a fresh workflow run for the user's request. While a
// run is active further requests are declined; replies go through
// HandleResponse instead.
func (s *Session) StartCampaign(message string) {
	state := models.NewCampaignState(message)
	if !s.startRun("", nil, state) {
		s.emit(models.NewOutbound(models.OutboundSystem,
			"I'm still working on your current campaign - answer the open question or send a reset to start over."))
	}
}

// Resume restarts the workflow from the last checkpoint, if one exists. The
// suspended node re-emits its open question under the original id, so a
// reply issued before the reconnect still resolves correctly.
func (s *Session) Resume() {
	cp, ok, err := s.deps.Checkpoints.Load(context.Background(), s.ID)
	if err != nil || !ok {
		return
	}
	s.deps.Logger.Info("resuming session from checkpoint", "session_id", s.ID, "node", cp.Node)
	if !s.startRun(cp.Node, cp.Pending, cp.State) {
		s.deps.Logger.Warn("resume skipped, run already active", "session_id", s.ID)
	}
}

// HandleResponse routes a reply to the open waiter. Unknown or stale
// question ids are logged and discarded without touching state.
func (s *Session) HandleResponse(questionID, response string) {
	s.mu.Lock()
	broker := s.broker
	s.mu.Unlock()

	if broker == nil || !broker.Resolve(questionID, response) {
		s.deps.Logger.Warn("discarding reply for unknown or stale question",
			"session_id", s.ID, "question_id", questionID)
	}
}

// Reset cancels any active run, clears state and checkpoint, and leaves the
// session ready for a fresh campaign on the same connection.
func (s *Session) Reset() {
	s.stopRun()
	if err := s.deps.Checkpoints.Delete(context.Background(), s.ID); err != nil {
		s.deps.Logger.Warn("failed to delete checkpoint", "session_id", s.ID, "error", err)
	}
	s.emit(models.NewOutbound(models.OutboundAssistant,
		"All set! Let's start fresh. What would you like to create?"))
}

// Cancel handles an explicit cancel message: the run is torn down, the
// checkpoint discarded, and the registry entry released.
func (s *Session) Cancel() {
	s.stopRun()
	s.close()
	if err := s.deps.Checkpoints.Delete(context.Background(), s.ID); err != nil {
		s.deps.Logger.Warn("failed to delete checkpoint", "session_id", s.ID, "error", err)
	}
	s.registry.remove(s, workflow.NodeCancelled)
}

// Disconnect tears down the execution task and releases the registry entry.
// The checkpoint is kept so a reconnect within the process lifetime resumes
// at the suspended node.
func (s *Session) Disconnect() {
	s.stopRun()
	s.close()
	s.registry.remove(s, "disconnected")
}

// startRun spawns the session's single execution task. It reports false if a
// run is already active or the session is closed.
func (s *Session) startRun(start string, restored *models.PendingQuestion, state *models.CampaignState) bool {
	s.mu.Lock()
	if s.closed || s.running {
		s.mu.Unlock()
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	broker := workflow.NewBroker()
	done := make(chan struct{})

	s.running = true
	s.cancelRun = cancel
	s.runDone = done
	s.broker = broker
	s.mu.Unlock()

	rt := &workflow.Runtime{
		SessionID:   s.ID,
		State:       state,
		Broker:      broker,
		Checkpoints: s.deps.Checkpoints,
		Send:        s.send,
		Completion:  s.deps.Completion,
		Lists:       s.deps.Lists,
		Matcher:     s.deps.Matcher,
		Logger:      s.deps.Logger,
		Handshake:   s.handshake,
	}
	rt.Restore(restored)

	go s.run(ctx, rt, start, done)
	return true
}

func (s *Session) run(ctx context.Context, rt *workflow.Runtime, start string, done chan struct{}) {
	defer close(done)
	defer func() {
		s.mu.Lock()
		s.running = false
		s.cancelRun = nil
		s.runDone = nil
		s.mu.Unlock()
	}()

	terminal, err := s.deps.Graph.Run(ctx, rt, start)
	if err != nil {
		// Internal invariant broken: abort the session, notify the client,
		// release the entry.
		s.deps.Logger.Error("aborting session", "session_id", s.ID, "error", err)
		s.emit(models.NewOutbound(models.OutboundError,
			"An internal error ended this session. Please reconnect to start over."))
		if derr := s.deps.Checkpoints.Delete(context.Background(), s.ID); derr != nil {
			s.deps.Logger.Warn("failed to delete checkpoint", "session_id", s.ID, "error", derr)
		}
		s.close()
		s.registry.remove(s, workflow.NodeError)
		return
	}

	switch terminal {
	case workflow.NodeSummary, workflow.NodeError:
		if derr := s.deps.Checkpoints.Delete(context.Background(), s.ID); derr != nil {
			s.deps.Logger.Warn("failed to delete checkpoint", "session_id", s.ID, "error", derr)
		}
		s.close()
		s.registry.remove(s, terminal)
	case workflow.NodeCancelled:
		// Whoever cancelled the run decides the checkpoint's fate: an
		// explicit cancel or reset deletes it, a disconnect keeps it for
		// resume.
	}
}

// stopRun cancels the active execution task, tears down its waiter, and
// waits for the goroutine to exit so state ownership transfers cleanly.
func (s *Session) stopRun() {
	s.mu.Lock()
	broker := s.broker
	cancel := s.cancelRun
	done := s.runDone
	s.mu.Unlock()

	if broker != nil {
		broker.Cancel()
	}
	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

func (s *Session) close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

func (s *Session) emit(frame models.Outbound) {
	if err := s.send(frame); err != nil {
		s.deps.Logger.Warn("failed to send message", "session_id", s.ID, "type", frame.Type, "error", err)
	}
}
