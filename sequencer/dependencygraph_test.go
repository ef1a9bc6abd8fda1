package sequencer

import (
	"testing"

	"github.com/lithium-go/astroseq/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDependencyGraphReadyNodesNoEdges(t *testing.T) {
	g := NewDependencyGraph()
	g.AddNode("a")
	g.AddNode("b")

	assert.Equal(t, []string{"a", "b"}, g.ReadyNodes(nil))
}

func TestDependencyGraphReadyNodesRespectsEdges(t *testing.T) {
	g := NewDependencyGraph()
	require.NoError(t, g.AddEdge("a", "b"))

	assert.Equal(t, []string{"a"}, g.ReadyNodes(nil))
	assert.Equal(t, []string{"b"}, g.ReadyNodes(map[string]bool{"a": true}))
}

func TestDependencyGraphRejectsSelfLoop(t *testing.T) {
	g := NewDependencyGraph()
	err := g.AddEdge("a", "a")

	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrCycleDetected)
}

func TestDependencyGraphRejectsCycle(t *testing.T) {
	g := NewDependencyGraph()
	require.NoError(t, g.AddEdge("a", "b"))
	require.NoError(t, g.AddEdge("b", "c"))

	err := g.AddEdge("c", "a")

	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrCycleDetected)
	assert.False(t, g.HasCycle(), "rejected edge must not leave the graph mutated")
}

func TestDependencyGraphAddEdgeIdempotent(t *testing.T) {
	g := NewDependencyGraph()
	require.NoError(t, g.AddEdge("a", "b"))
	require.NoError(t, g.AddEdge("a", "b"))

	assert.Equal(t, []string{"a"}, g.Predecessors("b"))
}

func TestDependencyGraphRemoveNodeClearsEdges(t *testing.T) {
	g := NewDependencyGraph()
	require.NoError(t, g.AddEdge("a", "b"))
	require.NoError(t, g.AddEdge("b", "c"))

	g.RemoveNode("b")

	assert.Empty(t, g.Predecessors("c"))
	assert.Empty(t, g.Successors("a"))
}

func TestDependencyGraphTopologicalOrder(t *testing.T) {
	g := NewDependencyGraph()
	require.NoError(t, g.AddEdge("a", "b"))
	require.NoError(t, g.AddEdge("a", "c"))
	require.NoError(t, g.AddEdge("b", "d"))
	require.NoError(t, g.AddEdge("c", "d"))

	order := g.TopologicalOrder()

	require.Len(t, order, 4)
	pos := make(map[string]int, len(order))
	for i, n := range order {
		pos[n] = i
	}
	assert.Less(t, pos["a"], pos["b"])
	assert.Less(t, pos["a"], pos["c"])
	assert.Less(t, pos["b"], pos["d"])
	assert.Less(t, pos["c"], pos["d"])
}

func TestDependencyGraphPredecessorsSuccessors(t *testing.T) {
	g := NewDependencyGraph()
	require.NoError(t, g.AddEdge("a", "c"))
	require.NoError(t, g.AddEdge("b", "c"))
	require.NoError(t, g.AddEdge("c", "d"))

	assert.Equal(t, []string{"a", "b"}, g.Predecessors("c"))
	assert.Equal(t, []string{"d"}, g.Successors("c"))
}
