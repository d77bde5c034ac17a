package workflow

import (
	"errors"
	"sync"

	"campaign-generator/backend/pkg/models"
)

var (
	// ErrQuestionOpen indicates a node tried to open a second waiter while
	// one was already pending. This is an internal invariant violation and
	// aborts the session.
	ErrQuestionOpen = errors.New("a question is already open for this session")

	// ErrCancelled indicates the waiter was torn down by cancellation or
	// disconnect before a reply arrived.
	ErrCancelled = errors.New("session cancelled")
)

// Broker correlates one outbound question with exactly one inbound reply for
// a single session. At most one waiter may be open at a time; replies whose
// id does not match the open question are discarded.
type Broker struct {
	mu        sync.Mutex
	pending   *models.PendingQuestion
	waiter    chan string
	cancelled bool
}

// NewBroker creates a Broker with no open waiter.
func NewBroker() *Broker {
	return &Broker{}
}

// Open registers a waiter for the question and returns the channel the
// matched reply will be delivered on. The channel is closed without a value
// if the session is cancelled first.
func (b *Broker) Open(q models.PendingQuestion) (<-chan string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.cancelled {
		return nil, ErrCancelled
	}
	if b.pending != nil {
		return nil, ErrQuestionOpen
	}

	pending := q
	b.pending = &pending
	b.waiter = make(chan string, 1)
	return b.waiter, nil
}

// Resolve delivers a reply to the open waiter. It reports false when the id
// is unknown or stale, in which case nothing changes; the caller logs and
// discards the reply.
func (b *Broker) Resolve(questionID, response string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.pending == nil || b.pending.ID != questionID {
		return false
	}

	b.waiter <- response
	b.pending = nil
	b.waiter = nil
	return true
}

// Cancel tears down any open waiter and rejects all future Opens. Safe to
// call more than once.
func (b *Broker) Cancel() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.cancelled = true
	if b.waiter != nil {
		close(b.waiter)
		b.pending = nil
		b.waiter = nil
	}
}

// Pending returns a copy of the open question, or nil if none is open.
func (b *Broker) Pending() *models.PendingQuestion {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.pending == nil {
		return nil
	}
	pending := *b.pending
	return &pending
}
