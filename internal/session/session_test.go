package session

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"campaign-generator/backend/internal/contacts"
	"campaign-generator/backend/internal/logging"
	"campaign-generator/backend/internal/workflow"
	"campaign-generator/backend/pkg/models"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeCompletion struct {
	extract string
	rank    string
}

func (f *fakeCompletion) Complete(_ context.Context, prompt string) (string, error) {
	if strings.Contains(prompt, "rank existing contact lists") {
		return f.rank, nil
	}
	return f.extract, nil
}

type fakeLists struct {
	lists []contacts.SmartList
}

func (f *fakeLists) SmartLists(context.Context, models.Location, models.Credentials) ([]contacts.SmartList, error) {
	return f.lists, nil
}

// recorder captures outbound frames and surfaces question frames on a channel
// so tests can reply through the session's public entry point.
type recorder struct {
	mu        sync.Mutex
	frames    []models.Outbound
	questions chan models.Outbound
}

func newRecorder() *recorder {
	return &recorder{questions: make(chan models.Outbound, 16)}
}

func (r *recorder) send(frame models.Outbound) error {
	r.mu.Lock()
	r.frames = append(r.frames, frame)
	r.mu.Unlock()
	if frame.QuestionID != "" {
		r.questions <- frame
	}
	return nil
}

func (r *recorder) waitQuestion(t *testing.T) models.Outbound {
	t.Helper()
	select {
	case q := <-r.questions:
		return q
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a question frame")
		return models.Outbound{}
	}
}

func (r *recorder) hasMessage(message string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, f := range r.frames {
		if f.Message == message {
			return true
		}
	}
	return false
}

const incompleteExtract = `{"audience": "", "offer": "20% off", "schedule": "Friday", "defaults": {}, "missing": []}`
const completeExtract = `{"audience": "regulars", "offer": "20% off", "schedule": "Friday", "defaults": {}, "missing": []}`
const rankOutput = `[{"id": "l-1", "score": 90, "reason": "strong match"}]`

func newTestRegistry(completion *fakeCompletion, lists contacts.ListProvider) (*Registry, workflow.CheckpointStore) {
	store := workflow.NewMemoryCheckpointStore()
	registry := NewRegistry(Deps{
		Graph:       workflow.BuildGraph(),
		Completion:  completion,
		Lists:       lists,
		Matcher:     contacts.NewMatcher(completion),
		Checkpoints: store,
		Logger:      logging.NewNop(),
	})
	return registry, store
}

func TestRegistryRejectsDuplicateIDs(t *testing.T) {
	registry, _ := newTestRegistry(&fakeCompletion{}, &fakeLists{})
	rec := newRecorder()

	_, err := registry.Create("c-1", rec.send)
	require.NoError(t, err)
	assert.Equal(t, 1, registry.Len())

	_, err = registry.Create("c-1", rec.send)
	assert.ErrorIs(t, err, ErrSessionExists)

	_, err = registry.Get("c-1")
	assert.NoError(t, err)
	_, err = registry.Get("c-2")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	registry.Remove("c-1")
	assert.Equal(t, 0, registry.Len())
	// Removing again is a no-op.
	registry.Remove("c-1")
}

func TestRegistryConcurrentCreateAndRemove(t *testing.T) {
	registry, _ := newTestRegistry(&fakeCompletion{}, &fakeLists{})
	rec := newRecorder()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := string(rune('a' + n%8))
			if _, err := registry.Create(id, rec.send); err == nil {
				registry.Remove(id)
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 0, registry.Len())
}

func TestSessionCompletesCampaignAndTearsDown(t *testing.T) {
	completion := &fakeCompletion{extract: completeExtract, rank: rankOutput}
	registry, store := newTestRegistry(completion, &fakeLists{lists: []contacts.SmartList{{ID: "l-1", Name: "Regulars", Size: 50}}})
	rec := newRecorder()

	sess, err := registry.Create("c-1", rec.send)
	require.NoError(t, err)

	sess.StartCampaign("20% off for regulars on Friday")

	q := rec.waitQuestion(t)
	sess.HandleResponse(q.QuestionID, "1")

	require.Eventually(t, func() bool { return registry.Len() == 0 },
		5*time.Second, 10*time.Millisecond, "completed session should leave the registry")

	_, ok, err := store.Load(context.Background(), "c-1")
	require.NoError(t, err)
	assert.False(t, ok, "completed session should have no checkpoint")
	assert.True(t, rec.hasMessage("✓ Using smart list: Regulars"))
}

func TestStartCampaignDeclinedWhileRunning(t *testing.T) {
	completion := &fakeCompletion{extract: incompleteExtract, rank: rankOutput}
	registry, _ := newTestRegistry(completion, &fakeLists{})
	rec := newRecorder()

	sess, err := registry.Create("c-1", rec.send)
	require.NoError(t, err)

	sess.StartCampaign("something vague")
	rec.waitQuestion(t)

	sess.StartCampaign("another campaign")
	assert.True(t, rec.hasMessage(
		"I'm still working on your current campaign - answer the open question or send a reset to start over."))

	sess.Cancel()
	assert.Equal(t, 0, registry.Len())
}

func TestStaleReplyIsDiscarded(t *testing.T) {
	completion := &fakeCompletion{extract: incompleteExtract, rank: rankOutput}
	registry, store := newTestRegistry(completion, &fakeLists{})
	rec := newRecorder()

	sess, err := registry.Create("c-1", rec.send)
	require.NoError(t, err)

	sess.StartCampaign("something vague")
	q := rec.waitQuestion(t)

	// A reply against the wrong id changes nothing: the question stays open.
	sess.HandleResponse("not-the-open-question", "ignored")
	cp, ok, err := store.Load(context.Background(), "c-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.NotNil(t, cp.Pending)
	assert.Equal(t, q.QuestionID, cp.Pending.ID)

	sess.Cancel()
}

func TestDisconnectKeepsCheckpointForResume(t *testing.T) {
	completion := &fakeCompletion{extract: incompleteExtract, rank: rankOutput}
	lists := &fakeLists{lists: []contacts.SmartList{{ID: "l-1", Name: "Regulars", Size: 50}}}
	registry, store := newTestRegistry(completion, lists)

	rec := newRecorder()
	sess, err := registry.Create("c-1", rec.send)
	require.NoError(t, err)

	sess.StartCampaign("something vague")
	q := rec.waitQuestion(t)

	sess.Disconnect()
	assert.Equal(t, 0, registry.Len())
	_, ok, err := store.Load(context.Background(), "c-1")
	require.NoError(t, err)
	assert.True(t, ok, "disconnect must keep the checkpoint")

	// Reconnect: resume re-emits the suspended question under its old id.
	rec2 := newRecorder()
	sess2, err := registry.Create("c-1", rec2.send)
	require.NoError(t, err)
	sess2.Resume()

	q2 := rec2.waitQuestion(t)
	assert.Equal(t, q.QuestionID, q2.QuestionID)

	sess2.HandleResponse(q2.QuestionID, "regulars")
	q3 := rec2.waitQuestion(t) // list selection
	sess2.HandleResponse(q3.QuestionID, "1")

	require.Eventually(t, func() bool { return registry.Len() == 0 },
		5*time.Second, 10*time.Millisecond)
	_, ok, err = store.Load(context.Background(), "c-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestResetClearsCheckpointAndKeepsSession(t *testing.T) {
	completion := &fakeCompletion{extract: incompleteExtract, rank: rankOutput}
	registry, store := newTestRegistry(completion, &fakeLists{})
	rec := newRecorder()

	sess, err := registry.Create("c-1", rec.send)
	require.NoError(t, err)

	sess.StartCampaign("something vague")
	rec.waitQuestion(t)

	sess.Reset()
	_, ok, err := store.Load(context.Background(), "c-1")
	require.NoError(t, err)
	assert.False(t, ok, "reset must delete the checkpoint")
	assert.Equal(t, 1, registry.Len(), "reset keeps the session registered")
	assert.True(t, rec.hasMessage("All set! Let's start fresh. What would you like to create?"))

	sess.Cancel()
	assert.Equal(t, 0, registry.Len())
}

func TestCancelRemovesSessionAndCheckpoint(t *testing.T) {
	completion := &fakeCompletion{extract: incompleteExtract, rank: rankOutput}
	registry, store := newTestRegistry(completion, &fakeLists{})
	rec := newRecorder()

	sess, err := registry.Create("c-1", rec.send)
	require.NoError(t, err)

	sess.StartCampaign("something vague")
	rec.waitQuestion(t)

	sess.Cancel()
	assert.Equal(t, 0, registry.Len())
	_, ok, err := store.Load(context.Background(), "c-1")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.True(t, rec.hasMessage("Campaign creation cancelled."))
}

func TestStaleSessionTeardownKeepsReplacement(t *testing.T) {
	registry, _ := newTestRegistry(&fakeCompletion{}, &fakeLists{})
	rec := newRecorder()

	stale, err := registry.Create("c-1", rec.send)
	require.NoError(t, err)
	stale.Cancel()
	require.Equal(t, 0, registry.Len())

	replacement, err := registry.Create("c-1", rec.send)
	require.NoError(t, err)

	// The stale session's late teardown must not evict the replacement that
	// reused its id.
	stale.Disconnect()
	assert.Equal(t, 1, registry.Len())
	got, err := registry.Get("c-1")
	require.NoError(t, err)
	assert.Same(t, replacement, got)

	replacement.Cancel()
	assert.Equal(t, 0, registry.Len())
}

func TestHandshakeAfterResumeReachesListProvider(t *testing.T) {
	completion := &fakeCompletion{extract: incompleteExtract, rank: rankOutput}

	var gotLocation models.Location
	lists := &capturingLists{onCall: func(loc models.Location, _ models.Credentials) {
		gotLocation = loc
	}}
	registry, store := newTestRegistry(completion, lists)

	rec := newRecorder()
	sess, err := registry.Create("c-1", rec.send)
	require.NoError(t, err)
	sess.StartCampaign("something vague")
	rec.waitQuestion(t)

	sess.Disconnect()
	_, ok, err := store.Load(context.Background(), "c-1")
	require.NoError(t, err)
	require.True(t, ok)

	// Reconnect, resume, and only then re-send the handshake. The resumed
	// run must still see the location when it reaches the list lookup.
	rec2 := newRecorder()
	sess2, err := registry.Create("c-1", rec2.send)
	require.NoError(t, err)
	sess2.Resume()
	q := rec2.waitQuestion(t)

	sess2.SetHandshake(&models.Location{ID: "loc-9"}, nil)
	sess2.HandleResponse(q.QuestionID, "regulars")

	q2 := rec2.waitQuestion(t) // no matches -> yes/no confirmation
	sess2.HandleResponse(q2.QuestionID, "yes")

	require.Eventually(t, func() bool { return registry.Len() == 0 },
		5*time.Second, 10*time.Millisecond)
	assert.Equal(t, "loc-9", gotLocation.ID)
}

func TestHandshakeCredentialsReachListProvider(t *testing.T) {
	completion := &fakeCompletion{extract: completeExtract, rank: rankOutput}

	var got models.Credentials
	var gotLocation models.Location
	lists := &capturingLists{onCall: func(loc models.Location, creds models.Credentials) {
		gotLocation = loc
		got = creds
	}}
	registry, _ := newTestRegistry(completion, lists)
	rec := newRecorder()

	sess, err := registry.Create("c-1", rec.send)
	require.NoError(t, err)

	sess.SetHandshake(
		&models.Location{ID: "loc-9", Name: "Downtown"},
		&models.Credentials{APIKey: "k-123"},
	)
	sess.StartCampaign("20% off for regulars on Friday")

	q := rec.waitQuestion(t) // no matches -> yes/no confirmation
	sess.HandleResponse(q.QuestionID, "yes")

	require.Eventually(t, func() bool { return registry.Len() == 0 },
		5*time.Second, 10*time.Millisecond)
	assert.Equal(t, "loc-9", gotLocation.ID)
	assert.Equal(t, "k-123", got.APIKey)
}

type capturingLists struct {
	onCall func(models.Location, models.Credentials)
}

func (c *capturingLists) SmartLists(_ context.Context, loc models.Location, creds models.Credentials) ([]contacts.SmartList, error) {
	c.onCall(loc, creds)
	return nil, nil
}
