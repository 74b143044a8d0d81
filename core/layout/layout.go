package layout

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/google/uuid"
	"github.com/siherrmann/pano/core/graph"
	"github.com/siherrmann/pano/helper"
	"github.com/siherrmann/pano/model"
	gonum "gonum.org/v1/gonum/graph"
	glayout "gonum.org/v1/gonum/graph/layout"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/traverse"
)

// Algorithm names a placement strategy.
type Algorithm string

const (
	Circular     Algorithm = "circular"
	Hierarchical Algorithm = "hierarchical"
	Radial       Algorithm = "radial"
	Grid         Algorithm = "grid"
	Force        Algorithm = "force"
)

var ErrUnknownAlgorithm = errors.New("unknown layout algorithm")

// Algorithms lists every supported algorithm.
func Algorithms() []Algorithm {
	return []Algorithm{Circular, Hierarchical, Radial, Grid, Force}
}

// Compute returns a position for every node of g. Positions are centred
// on center.
func Compute(g graph.Reader, algorithm Algorithm, center model.Position, cfg model.LayoutConfig) (map[uuid.UUID]model.Position, error) {
	v := newView(g)
	if len(v.ids) == 0 {
		return map[uuid.UUID]model.Position{}, nil
	}

	var positions []model.Position
	switch algorithm {
	case Circular:
		positions = v.circular(cfg)
	case Hierarchical:
		positions = v.hierarchical(cfg)
	case Radial:
		positions = v.radial(cfg)
	case Grid:
		positions = v.forceDirected(cfg, glayout.EadesR2{Updates: cfg.Iterations, Repulsion: 1, Rate: 0.1, Theta: 0.2})
	case Force:
		positions = v.forceDirected(cfg, glayout.EadesR2{Updates: cfg.Iterations, Repulsion: cfg.IdealLength, Rate: 0.05, Theta: 0.2})
	default:
		return nil, helper.NewError("compute layout", fmt.Errorf("%w: %q", ErrUnknownAlgorithm, algorithm))
	}

	recenter(positions, center)

	result := make(map[uuid.UUID]model.Position, len(positions))
	for i, pos := range positions {
		result[v.ids[i]] = pos
	}
	return result, nil
}

// Apply computes a layout and moves every node of the manager to its new
// position.
func Apply(m *graph.Manager, algorithm Algorithm, center model.Position, cfg model.LayoutConfig) error {
	positions, err := Compute(m, algorithm, center, cfg)
	if err != nil {
		return err
	}

	for id, pos := range positions {
		if err := m.MoveNode(id, pos); err != nil {
			// Node removed concurrently.
			if errors.Is(err, graph.ErrNodeNotFound) {
				continue
			}
			return helper.NewError("apply layout", err)
		}
	}
	return nil
}

// view indexes the nodes of a graph by position in insertion order. gonum
// node ids are those indices.
type view struct {
	ids      []uuid.UUID
	index    map[uuid.UUID]int64
	directed *simple.DirectedGraph
}

func newView(g graph.Reader) *view {
	v := &view{
		index:    make(map[uuid.UUID]int64),
		directed: simple.NewDirectedGraph(),
	}
	for i, node := range g.Nodes() {
		v.ids = append(v.ids, node.ID())
		v.index[node.ID()] = int64(i)
		v.directed.AddNode(simple.Node(i))
	}
	for _, edge := range g.Edges() {
		from, okFrom := v.index[edge.SourceID]
		to, okTo := v.index[edge.TargetID]
		if !okFrom || !okTo || from == to {
			continue
		}
		v.directed.SetEdge(v.directed.NewEdge(simple.Node(from), simple.Node(to)))
	}
	return v
}

func (v *view) undirected() *simple.UndirectedGraph {
	g := simple.NewUndirectedGraph()
	for i := range v.ids {
		g.AddNode(simple.Node(i))
	}
	edges := v.directed.Edges()
	for edges.Next() {
		e := edges.Edge()
		if g.HasEdgeBetween(e.From().ID(), e.To().ID()) {
			continue
		}
		g.SetEdge(g.NewEdge(e.From(), e.To()))
	}
	return g
}

func (v *view) circular(cfg model.LayoutConfig) []model.Position {
	n := len(v.ids)
	positions := make([]model.Position, n)
	if n == 1 {
		return positions
	}
	for i := range positions {
		angle := 2 * math.Pi * float64(i) / float64(n)
		positions[i] = model.Position{X: cfg.Scale * math.Cos(angle), Y: cfg.Scale * math.Sin(angle)}
	}
	return positions
}

// hierarchical puts nodes on rows by their BFS depth from the roots.
// Roots are nodes without incoming edges, or the first node when every
// node has one. Unreachable nodes go on an extra bottom row.
func (v *view) hierarchical(cfg model.LayoutConfig) []model.Position {
	var roots []int64
	for i := range v.ids {
		if v.directed.To(int64(i)).Len() == 0 {
			roots = append(roots, int64(i))
		}
	}
	if len(roots) == 0 {
		roots = []int64{0}
	}

	levels := v.depths(roots)
	maxLevel := 0
	for _, l := range levels {
		maxLevel = max(maxLevel, l)
	}

	rows := make(map[int][]int)
	for i := range v.ids {
		level, ok := levels[int64(i)]
		if !ok {
			level = maxLevel + 1
		}
		rows[level] = append(rows[level], i)
	}

	positions := make([]model.Position, len(v.ids))
	for level, row := range rows {
		spacing := math.Max(cfg.MinSpacing, cfg.LevelWidth/float64(len(row)))
		offset := float64(len(row)-1) * spacing / 2
		for j, i := range row {
			positions[i] = model.Position{
				X: float64(j)*spacing - offset,
				Y: float64(level) * cfg.LevelHeight,
			}
		}
	}
	return positions
}

// radial puts the node with most outgoing edges in the middle and every
// reachable node on a ring by its BFS distance. Angles come from the
// circular layout, unreachable nodes keep their circular position.
func (v *view) radial(cfg model.LayoutConfig) []model.Position {
	root := int64(0)
	best := -1
	for i := range v.ids {
		if d := v.directed.From(int64(i)).Len(); d > best {
			root, best = int64(i), d
		}
	}

	distances := v.depths([]int64{root})
	positions := v.circular(cfg)
	for i := range positions {
		d, ok := distances[int64(i)]
		if !ok {
			continue
		}
		angle := math.Atan2(positions[i].Y, positions[i].X)
		r := float64(d) * cfg.RingSpacing
		positions[i] = model.Position{X: r * math.Cos(angle), Y: r * math.Sin(angle)}
	}
	return positions
}

func (v *view) forceDirected(cfg model.LayoutConfig, eades glayout.EadesR2) []model.Position {
	g := v.undirected()
	positions := make([]model.Position, len(v.ids))
	if len(v.ids) == 1 {
		return positions
	}

	optimizer := glayout.NewOptimizerR2(g, eades.Update)
	for optimizer.Update() {
	}

	for i := range v.ids {
		c := optimizer.Coord2(int64(i))
		positions[i] = model.Position{X: c.X, Y: c.Y}
	}
	rescale(positions, cfg.Scale)
	return positions
}

// depths returns the minimum BFS depth of every node reachable from one
// of the roots.
func (v *view) depths(roots []int64) map[int64]int {
	depths := make(map[int64]int)
	for _, root := range roots {
		var bf traverse.BreadthFirst
		bf.Walk(v.directed, simple.Node(root), func(n gonum.Node, d int) bool {
			if prev, ok := depths[n.ID()]; !ok || d < prev {
				depths[n.ID()] = d
			}
			return false
		})
	}
	return depths
}

// rescale centres positions on the origin and scales the largest
// coordinate to scale.
func rescale(positions []model.Position, scale float64) {
	recenter(positions, model.Position{})

	limit := 0.0
	for _, p := range positions {
		limit = math.Max(limit, math.Max(math.Abs(p.X), math.Abs(p.Y)))
	}
	if limit == 0 {
		return
	}
	for i := range positions {
		positions[i].X *= scale / limit
		positions[i].Y *= scale / limit
	}
}

// recenter moves the centre of the bounding box to center.
func recenter(positions []model.Position, center model.Position) {
	if len(positions) == 0 {
		return
	}

	xs := make([]float64, len(positions))
	ys := make([]float64, len(positions))
	for i, p := range positions {
		xs[i], ys[i] = p.X, p.Y
	}
	dx := center.X - (slices.Min(xs)+slices.Max(xs))/2
	dy := center.Y - (slices.Min(ys)+slices.Max(ys))/2

	for i := range positions {
		positions[i].X += dx
		positions[i].Y += dy
	}
}
