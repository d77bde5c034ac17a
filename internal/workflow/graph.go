// Package workflow implements the per-session, resumable graph of processing
// steps that drives campaign configuration. Execution within a session is
// strictly sequential: one node runs to completion, or to a suspension point
// inside an interactive node, before routing picks the next node.
package workflow

import (
	"context"
	"errors"
	"fmt"

	"campaign-generator/backend/pkg/models"
)

// NodeKind is the capability tag of a node.
type NodeKind string

const (
	// NodeAutomatic nodes run to completion without yielding.
	NodeAutomatic NodeKind = "automatic"
	// NodeInteractive nodes may suspend waiting for a human reply.
	NodeInteractive NodeKind = "interactive"
	// NodeTerminal nodes end the run.
	NodeTerminal NodeKind = "terminal"
)

// NodeFunc is one unit of step logic operating on the runtime's state.
type NodeFunc func(ctx context.Context, rt *Runtime) error

// Node is a named step in the graph.
type Node struct {
	Name string
	Kind NodeKind
	Run  NodeFunc
}

// Edge routes from a node to the next via a pure predicate over the state.
type Edge struct {
	When func(*models.CampaignState) bool
	To   string
}

// Graph is the node set plus conditional routing rules.
type Graph struct {
	entry string
	nodes map[string]Node
	edges map[string][]Edge
}

// NewGraph creates an empty graph that starts at the entry node.
func NewGraph(entry string) *Graph {
	return &Graph{
		entry: entry,
		nodes: map[string]Node{},
		edges: map[string][]Edge{},
	}
}

// AddNode registers a node.
func (g *Graph) AddNode(n Node) {
	g.nodes[n.Name] = n
}

// AddEdge appends a routing rule from a node. Edges are evaluated in
// insertion order after the node returns; the first true predicate wins.
func (g *Graph) AddEdge(from string, when func(*models.CampaignState) bool, to string) {
	g.edges[from] = append(g.edges[from], Edge{When: when, To: to})
}

// Always is the unconditional edge predicate.
func Always(*models.CampaignState) bool { return true }

// Run executes the graph from the start node (the entry when empty) until a
// terminal node finishes. It returns the terminal node's name. Node errors
// route to the error terminal; cancellation routes to the cancelled
// terminal; a broken broker invariant aborts the run with ErrQuestionOpen.
func (g *Graph) Run(ctx context.Context, rt *Runtime, start string) (string, error) {
	name := start
	if name == "" {
		name = g.entry
	}

	for {
		node, ok := g.nodes[name]
		if !ok {
			return "", fmt.Errorf("unknown node %q", name)
		}

		rt.current = name
		if node.Run != nil {
			if err := node.Run(ctx, rt); err != nil {
				switch {
				case errors.Is(err, ErrQuestionOpen):
					return "", err
				case errors.Is(err, ErrCancelled):
					return g.runTerminal(ctx, rt, NodeCancelled)
				default:
					rt.Logger.Error("node failed", "session_id", rt.SessionID, "node", name, "error", err)
					return g.runTerminal(ctx, rt, NodeError)
				}
			}
		}

		// A node must never leave a question open behind it.
		if rt.Broker.Pending() != nil {
			return "", ErrQuestionOpen
		}

		if node.Kind == NodeTerminal {
			return name, nil
		}

		next := ""
		for _, edge := range g.edges[name] {
			if edge.When(rt.State) {
				next = edge.To
				break
			}
		}
		if next == "" {
			return "", fmt.Errorf("no route out of node %q", name)
		}

		rt.checkpoint(next, nil)
		name = next
	}
}

func (g *Graph) runTerminal(ctx context.Context, rt *Runtime, name string) (string, error) {
	node, ok := g.nodes[name]
	if !ok {
		return "", fmt.Errorf("unknown terminal node %q", name)
	}
	rt.current = name
	if node.Run != nil {
		if err := node.Run(ctx, rt); err != nil {
			rt.Logger.Warn("terminal node failed", "session_id", rt.SessionID, "node", name, "error", err)
		}
	}
	return name, nil
}
