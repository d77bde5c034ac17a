package workflow

import (
	"context"
	"time"

	"github.com/google/uuid"

	"campaign-generator/backend/internal/contacts"
	"campaign-generator/backend/internal/logging"
	"campaign-generator/backend/internal/services"
	"campaign-generator/backend/pkg/models"
)

// SendFunc delivers an outbound message to the session's client.
type SendFunc func(models.Outbound) error

// Runtime carries everything node functions need for one session run. It is
// touched only by the session's own execution task; the broker is the sole
// concurrent entry point.
type Runtime struct {
	SessionID   string
	State       *models.CampaignState
	Broker      *Broker
	Checkpoints CheckpointStore
	Send        SendFunc
	Completion  services.CompletionClient
	Lists       contacts.ListProvider
	Matcher     *contacts.Matcher
	Logger      *logging.Logger

	// Handshake returns the session's current location context and
	// credentials. Nodes read it at call time, never at spawn time, so a
	// handshake that arrives after a resume still applies.
	Handshake func() (models.Location, models.Credentials)

	current  string
	restored *models.PendingQuestion
}

// Restore primes the runtime with the open question recovered from a
// checkpoint so the next Ask reuses its id instead of minting a fresh one.
func (rt *Runtime) Restore(pending *models.PendingQuestion) {
	rt.restored = pending
}

// NewQuestion builds a pending question, reusing the restored id when the
// run is resuming a suspended node.
func (rt *Runtime) NewQuestion(kind models.QuestionKind, prompt string) models.PendingQuestion {
	q := models.PendingQuestion{
		ID:        uuid.New().String(),
		Kind:      kind,
		Prompt:    prompt,
		CreatedAt: time.Now().UTC(),
	}
	if rt.restored != nil {
		q.ID = rt.restored.ID
		rt.restored = nil
	}
	return q
}

// Ask suspends the run until the question is answered. It checkpoints the
// suspension, emits the frame, and blocks on the broker's waiter. There is
// no timeout; the waiter is torn down only by cancellation or disconnect.
func (rt *Runtime) Ask(ctx context.Context, q models.PendingQuestion, frame models.Outbound) (string, error) {
	waiter, err := rt.Broker.Open(q)
	if err != nil {
		return "", err
	}

	rt.checkpoint(rt.current, &q)

	frame.QuestionID = q.ID
	if err := rt.Send(frame); err != nil {
		rt.Logger.Warn("failed to emit question", "session_id", rt.SessionID, "question_id", q.ID, "error", err)
	}

	select {
	case response, ok := <-waiter:
		if !ok {
			return "", ErrCancelled
		}
		return response, nil
	case <-ctx.Done():
		return "", ErrCancelled
	}
}

// Emit sends an outbound frame, logging delivery failures instead of
// interrupting the run.
func (rt *Runtime) Emit(frame models.Outbound) {
	if err := rt.Send(frame); err != nil {
		rt.Logger.Warn("failed to send message", "session_id", rt.SessionID, "type", frame.Type, "error", err)
	}
}

func (rt *Runtime) checkpoint(node string, pending *models.PendingQuestion) {
	if rt.Checkpoints == nil {
		return
	}
	err := rt.Checkpoints.Save(context.Background(), Checkpoint{
		SessionID: rt.SessionID,
		Node:      node,
		State:     rt.State,
		Pending:   pending,
	})
	if err != nil {
		rt.Logger.Warn("failed to save checkpoint", "session_id", rt.SessionID, "node", node, "error", err)
	}
}
