package layout

import (
	"math"
	"testing"

	"github.com/google/uuid"
	"github.com/siherrmann/pano/core/graph"
	"github.com/siherrmann/pano/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTree(t *testing.T) (*graph.Manager, []uuid.UUID) {
	t.Helper()
	m := graph.NewManager()
	var ids []uuid.UUID
	for _, name := range []string{"Root", "Left", "Right"} {
		e := model.MustNewEntity(model.EntityTypePerson, map[string]any{"full_name": name})
		ids = append(ids, m.AddNode(e, model.Position{}).ID())
	}
	m.AddEdge(ids[0], ids[1], "knows")
	m.AddEdge(ids[0], ids[2], "knows")
	return m, ids
}

func distance(a, b model.Position) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}

func TestCompute(t *testing.T) {
	cfg := model.DefaultLayoutConfig()

	t.Run("Empty graph yields no positions", func(t *testing.T) {
		positions, err := Compute(graph.NewManager(), Circular, model.Position{}, cfg)
		require.NoError(t, err, "Expected no error")
		assert.Empty(t, positions, "Expected no positions")
	})

	t.Run("Unknown algorithm", func(t *testing.T) {
		m, _ := newTree(t)
		_, err := Compute(m, Algorithm("spiral"), model.Position{}, cfg)
		assert.ErrorIs(t, err, ErrUnknownAlgorithm, "Expected ErrUnknownAlgorithm")
	})

	t.Run("Circular places nodes on a circle around the center", func(t *testing.T) {
		m := graph.NewManager()
		for range 4 {
			m.AddNode(model.MustNewEntity(model.EntityTypeText, map[string]any{"text": "x"}), model.Position{})
		}
		center := model.Position{X: 100, Y: 50}

		positions, err := Compute(m, Circular, center, cfg)
		require.NoError(t, err, "Expected no error")
		require.Len(t, positions, 4, "Expected one position per node")
		for _, pos := range positions {
			assert.InDelta(t, cfg.Scale, distance(pos, center), 1e-6, "Expected node on the circle")
		}
	})

	t.Run("Hierarchical puts children one level below the root", func(t *testing.T) {
		m, ids := newTree(t)
		positions, err := Compute(m, Hierarchical, model.Position{}, cfg)
		require.NoError(t, err, "Expected no error")

		root, left, right := positions[ids[0]], positions[ids[1]], positions[ids[2]]
		assert.InDelta(t, cfg.LevelHeight, left.Y-root.Y, 1e-6, "Expected one level height between rows")
		assert.InDelta(t, left.Y, right.Y, 1e-6, "Expected siblings on the same row")
		assert.InDelta(t, cfg.LevelWidth/2, right.X-left.X, 1e-6, "Expected siblings spread over the level width")
		assert.InDelta(t, 0, root.X, 1e-6, "Expected root centred")
	})

	t.Run("Hierarchical handles cycles", func(t *testing.T) {
		m, ids := newTree(t)
		m.AddEdge(ids[1], ids[0], "reports_to")
		m.AddEdge(ids[2], ids[0], "reports_to")

		positions, err := Compute(m, Hierarchical, model.Position{}, cfg)
		require.NoError(t, err, "Expected no error")
		assert.Len(t, positions, 3, "Expected every node placed")
		assert.Less(t, positions[ids[0]].Y, positions[ids[1]].Y, "Expected first node used as root")
	})

	t.Run("Radial puts neighbors on the first ring", func(t *testing.T) {
		m, ids := newTree(t)
		positions, err := Compute(m, Radial, model.Position{}, cfg)
		require.NoError(t, err, "Expected no error")

		root := positions[ids[0]]
		assert.InDelta(t, cfg.RingSpacing, distance(root, positions[ids[1]]), 1e-6, "Expected left on the first ring")
		assert.InDelta(t, cfg.RingSpacing, distance(root, positions[ids[2]]), 1e-6, "Expected right on the first ring")
	})

	for _, algorithm := range []Algorithm{Grid, Force} {
		t.Run("Force directed layout "+string(algorithm)+" stays within scale", func(t *testing.T) {
			m, ids := newTree(t)
			positions, err := Compute(m, algorithm, model.Position{}, cfg)
			require.NoError(t, err, "Expected no error")
			require.Len(t, positions, 3, "Expected every node placed")

			for _, pos := range positions {
				assert.False(t, math.IsNaN(pos.X) || math.IsNaN(pos.Y), "Expected finite coordinates")
				assert.LessOrEqual(t, math.Abs(pos.X), cfg.Scale+1e-6, "Expected x within scale")
				assert.LessOrEqual(t, math.Abs(pos.Y), cfg.Scale+1e-6, "Expected y within scale")
			}
			assert.NotEqual(t, positions[ids[1]], positions[ids[2]], "Expected distinct positions")
		})
	}

	t.Run("Single node sits on the center", func(t *testing.T) {
		m := graph.NewManager()
		node := m.AddNode(model.MustNewEntity(model.EntityTypeText, map[string]any{"text": "x"}), model.Position{X: 9})
		for _, algorithm := range Algorithms() {
			positions, err := Compute(m, algorithm, model.Position{X: 5, Y: 5}, cfg)
			require.NoError(t, err, "Expected no error for %s", algorithm)
			assert.Equal(t, model.Position{X: 5, Y: 5}, positions[node.ID()], "Expected center for %s", algorithm)
		}
	})
}

func TestApply(t *testing.T) {
	m, ids := newTree(t)
	require.NoError(t, Apply(m, Hierarchical, model.Position{X: 400, Y: 300}, model.DefaultLayoutConfig()), "Expected layout to apply")

	root, _ := m.Node(ids[0])
	left, _ := m.Node(ids[1])
	assert.Equal(t, 400.0, root.Position.X, "Expected root on the center column")
	assert.Greater(t, left.Position.Y, root.Position.Y, "Expected children below the root")
}
