package workflow

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campaign-generator/backend/internal/logging"
	"campaign-generator/backend/pkg/models"
)

func newTestRuntime() *Runtime {
	return &Runtime{
		SessionID: "test",
		State:     models.NewCampaignState("prompt"),
		Broker:    NewBroker(),
		Logger:    logging.NewNop(),
	}
}

// testGraph builds a minimal graph with the shared terminals plus the given
// middle node wired entry -> middle -> done.
func testGraph(middle Node) *Graph {
	g := NewGraph("entry")
	g.AddNode(Node{Name: "entry", Kind: NodeAutomatic})
	g.AddNode(middle)
	g.AddNode(Node{Name: "done", Kind: NodeTerminal})
	g.AddNode(Node{Name: NodeCancelled, Kind: NodeTerminal})
	g.AddNode(Node{Name: NodeError, Kind: NodeTerminal})
	g.AddEdge("entry", Always, middle.Name)
	g.AddEdge(middle.Name, Always, "done")
	return g
}

func TestGraphRunsToTerminal(t *testing.T) {
	var order []string
	step := func(name string) NodeFunc {
		return func(context.Context, *Runtime) error {
			order = append(order, name)
			return nil
		}
	}

	g := testGraph(Node{Name: "middle", Kind: NodeAutomatic, Run: step("middle")})
	terminal, err := g.Run(context.Background(), newTestRuntime(), "")
	require.NoError(t, err)
	assert.Equal(t, "done", terminal)
	assert.Equal(t, []string{"middle"}, order)
}

func TestGraphFirstMatchingEdgeWins(t *testing.T) {
	g := NewGraph("entry")
	g.AddNode(Node{Name: "entry", Kind: NodeAutomatic})
	g.AddNode(Node{Name: "left", Kind: NodeTerminal})
	g.AddNode(Node{Name: "right", Kind: NodeTerminal})
	g.AddEdge("entry", func(s *models.CampaignState) bool { return s.Audience != "" }, "left")
	g.AddEdge("entry", Always, "right")

	rt := newTestRuntime()
	terminal, err := g.Run(context.Background(), rt, "")
	require.NoError(t, err)
	assert.Equal(t, "right", terminal)

	rt = newTestRuntime()
	rt.State.Audience = "regulars"
	terminal, err = g.Run(context.Background(), rt, "")
	require.NoError(t, err)
	assert.Equal(t, "left", terminal)
}

func TestGraphStartOverridesEntry(t *testing.T) {
	g := testGraph(Node{Name: "middle", Kind: NodeAutomatic})
	terminal, err := g.Run(context.Background(), newTestRuntime(), "middle")
	require.NoError(t, err)
	assert.Equal(t, "done", terminal)
}

func TestGraphNodeErrorRoutesToErrorTerminal(t *testing.T) {
	boom := func(context.Context, *Runtime) error { return errors.New("boom") }
	g := testGraph(Node{Name: "middle", Kind: NodeAutomatic, Run: boom})

	terminal, err := g.Run(context.Background(), newTestRuntime(), "")
	require.NoError(t, err)
	assert.Equal(t, NodeError, terminal)
}

func TestGraphCancellationRoutesToCancelledTerminal(t *testing.T) {
	cancelled := func(context.Context, *Runtime) error { return ErrCancelled }
	g := testGraph(Node{Name: "middle", Kind: NodeInteractive, Run: cancelled})

	terminal, err := g.Run(context.Background(), newTestRuntime(), "")
	require.NoError(t, err)
	assert.Equal(t, NodeCancelled, terminal)
}

func TestGraphAbortsWhenQuestionLeftOpen(t *testing.T) {
	leaky := func(_ context.Context, rt *Runtime) error {
		_, err := rt.Broker.Open(models.PendingQuestion{ID: "q-1"})
		return err
	}
	g := testGraph(Node{Name: "middle", Kind: NodeInteractive, Run: leaky})

	_, err := g.Run(context.Background(), newTestRuntime(), "")
	assert.ErrorIs(t, err, ErrQuestionOpen)
}

func TestGraphUnknownNode(t *testing.T) {
	g := NewGraph("entry")
	_, err := g.Run(context.Background(), newTestRuntime(), "")
	assert.Error(t, err)
}

func TestGraphCheckpointsEachTransition(t *testing.T) {
	store := NewMemoryCheckpointStore()
	rt := newTestRuntime()
	rt.Checkpoints = store

	g := testGraph(Node{Name: "middle", Kind: NodeAutomatic})
	_, err := g.Run(context.Background(), rt, "")
	require.NoError(t, err)

	cp, ok, err := store.Load(context.Background(), rt.SessionID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "done", cp.Node)
	assert.Nil(t, cp.Pending)
}
