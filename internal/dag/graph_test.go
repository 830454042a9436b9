package dag

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddNode(t *testing.T) {
	g := New()

	g.AddNode("a")
	require.True(t, g.Has("a"))
	assert.Equal(t, 1, g.Len())

	g.AddNode("a") // idempotent
	assert.Equal(t, 1, g.Len())

	g.AddNode("b")
	assert.Equal(t, []string{"a", "b"}, g.Nodes())
}

func TestAddEdge(t *testing.T) {
	t.Run("success case", func(t *testing.T) {
		g := New()
		g.AddNode("a")
		g.AddNode("b")

		err := g.AddEdge("a", "b") // b depends on a
		require.NoError(t, err)

		deps, err := g.Dependencies("b")
		require.NoError(t, err)
		assert.Equal(t, []string{"a"}, deps)

		dependents, err := g.Dependents("a")
		require.NoError(t, err)
		assert.Equal(t, []string{"b"}, dependents)
	})

	t.Run("duplicate edges are ignored", func(t *testing.T) {
		g := New()
		g.AddNode("a")
		g.AddNode("b")

		require.NoError(t, g.AddEdge("a", "b"))
		require.NoError(t, g.AddEdge("a", "b"))

		deps, err := g.Dependencies("b")
		require.NoError(t, err)
		assert.Equal(t, []string{"a"}, deps)
	})

	t.Run("error cases", func(t *testing.T) {
		g := New()
		g.AddNode("a")

		assert.Error(t, g.AddEdge("dne", "a"))
		assert.Error(t, g.AddEdge("a", "dne"))
		assert.Error(t, g.AddEdge("a", "a"))
	})
}

func TestTopologicalOrder(t *testing.T) {
	t.Run("each node appears after its dependencies", func(t *testing.T) {
		g := New()
		for _, id := range []string{"stage", "roi", "mask", "register", "model"} {
			g.AddNode(id)
		}
		require.NoError(t, g.AddEdge("stage", "roi"))
		require.NoError(t, g.AddEdge("stage", "mask"))
		require.NoError(t, g.AddEdge("mask", "register"))
		require.NoError(t, g.AddEdge("register", "model"))

		order, err := g.TopologicalOrder()
		require.NoError(t, err)
		require.Len(t, order, 5)

		pos := make(map[string]int, len(order))
		for i, id := range order {
			pos[id] = i
		}
		assert.Less(t, pos["stage"], pos["roi"])
		assert.Less(t, pos["stage"], pos["mask"])
		assert.Less(t, pos["mask"], pos["register"])
		assert.Less(t, pos["register"], pos["model"])
	})

	t.Run("repeated calls are deterministic", func(t *testing.T) {
		g := New()
		for _, id := range []string{"e", "d", "c", "b", "a"} {
			g.AddNode(id)
		}
		require.NoError(t, g.AddEdge("e", "a"))
		require.NoError(t, g.AddEdge("c", "b"))

		first, err := g.TopologicalOrder()
		require.NoError(t, err)
		second, err := g.TopologicalOrder()
		require.NoError(t, err)

		assert.Equal(t, first, second)
		// Roots drain in insertion order, not lexical order; "a" unlocks as
		// soon as "e" is emitted and queues ahead of "b".
		assert.Equal(t, []string{"e", "d", "c", "a", "b"}, first)
	})

	t.Run("cycle yields an error", func(t *testing.T) {
		g := New()
		g.AddNode("a")
		g.AddNode("b")
		require.NoError(t, g.AddEdge("a", "b"))
		require.NoError(t, g.AddEdge("b", "a"))

		_, err := g.TopologicalOrder()
		assert.Error(t, err)
	})
}

func TestDescendants(t *testing.T) {
	g := New()
	for _, id := range []string{"stage", "mask", "register", "model", "roi"} {
		g.AddNode(id)
	}
	require.NoError(t, g.AddEdge("stage", "mask"))
	require.NoError(t, g.AddEdge("stage", "roi"))
	require.NoError(t, g.AddEdge("mask", "register"))
	require.NoError(t, g.AddEdge("register", "model"))

	desc, err := g.Descendants("mask")
	require.NoError(t, err)
	assert.Equal(t, []string{"register", "model"}, desc)

	desc, err = g.Descendants("stage")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"mask", "roi", "register", "model"}, desc)

	desc, err = g.Descendants("model")
	require.NoError(t, err)
	assert.Empty(t, desc)

	_, err = g.Descendants("dne")
	assert.Error(t, err)
}

func TestDetectCycles(t *testing.T) {
	t.Run("acyclic graph passes", func(t *testing.T) {
		g := New()
		g.AddNode("a")
		g.AddNode("b")
		g.AddNode("c")
		require.NoError(t, g.AddEdge("a", "b"))
		require.NoError(t, g.AddEdge("b", "c"))
		require.NoError(t, g.AddEdge("a", "c"))

		assert.NoError(t, g.DetectCycles())
	})

	t.Run("cycle is reported", func(t *testing.T) {
		g := New()
		g.AddNode("a")
		g.AddNode("b")
		g.AddNode("c")
		require.NoError(t, g.AddEdge("a", "b"))
		require.NoError(t, g.AddEdge("b", "c"))
		require.NoError(t, g.AddEdge("c", "a"))

		err := g.DetectCycles()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "cycle detected")
	})
}
