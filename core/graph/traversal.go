package graph

import (
	"context"
	"slices"

	"github.com/google/uuid"
	"github.com/siherrmann/pano/helper"
	"github.com/siherrmann/pano/model"
)

// TraversalResult contains a node and its distance from the source
type TraversalResult struct {
	Node     *Node
	Distance int
	Path     []uuid.UUID // Path from source to this node
}

// TraversalOptions restricts which edges a traversal follows.
// An empty Relationships list follows every edge.
type TraversalOptions struct {
	MaxHops        int
	Relationships  []string
	FollowIncoming bool
}

// BFS performs breadth-first search from a source node
func BFS(ctx context.Context, g Reader, sourceID uuid.UUID, opts TraversalOptions) ([]*TraversalResult, error) {
	source, ok := g.Node(sourceID)
	if !ok {
		return nil, helper.NewError("bfs from "+sourceID.String(), ErrNodeNotFound)
	}

	visited := map[uuid.UUID]bool{sourceID: true}
	queue := []TraversalResult{{
		Node:     source,
		Distance: 0,
		Path:     []uuid.UUID{sourceID},
	}}

	var results []*TraversalResult
	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		current := queue[0]
		queue = queue[1:]
		results = append(results, &current)

		if current.Distance >= opts.MaxHops {
			continue
		}

		for _, targetID := range nextHops(g, current.Node.ID(), opts) {
			if visited[targetID] {
				continue
			}

			target, ok := g.Node(targetID)
			if !ok {
				continue
			}
			visited[targetID] = true

			queue = append(queue, TraversalResult{
				Node:     target,
				Distance: current.Distance + 1,
				Path:     append(slices.Clone(current.Path), targetID),
			})
		}
	}

	return results, nil
}

// DFS performs depth-first search from a source node
func DFS(ctx context.Context, g Reader, sourceID uuid.UUID, opts TraversalOptions) ([]*TraversalResult, error) {
	source, ok := g.Node(sourceID)
	if !ok {
		return nil, helper.NewError("dfs from "+sourceID.String(), ErrNodeNotFound)
	}

	visited := make(map[uuid.UUID]bool)
	var results []*TraversalResult
	if err := dfsRecursive(ctx, g, source, 0, []uuid.UUID{sourceID}, opts, visited, &results); err != nil {
		return nil, err
	}

	return results, nil
}

func dfsRecursive(
	ctx context.Context,
	g Reader,
	current *Node,
	distance int,
	path []uuid.UUID,
	opts TraversalOptions,
	visited map[uuid.UUID]bool,
	results *[]*TraversalResult,
) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	visited[current.ID()] = true
	*results = append(*results, &TraversalResult{
		Node:     current,
		Distance: distance,
		Path:     slices.Clone(path),
	})

	if distance >= opts.MaxHops {
		return nil
	}

	for _, targetID := range nextHops(g, current.ID(), opts) {
		if visited[targetID] {
			continue
		}

		target, ok := g.Node(targetID)
		if !ok {
			continue
		}

		err := dfsRecursive(ctx, g, target, distance+1, append(slices.Clone(path), targetID), opts, visited, results)
		if err != nil {
			return err
		}
	}

	return nil
}

// GetNeighbors returns the nodes one hop away from id
func GetNeighbors(ctx context.Context, g Reader, id uuid.UUID, relationships []string, followIncoming bool) ([]*Node, error) {
	results, err := BFS(ctx, g, id, TraversalOptions{MaxHops: 1, Relationships: relationships, FollowIncoming: followIncoming})
	if err != nil {
		return nil, err
	}

	// Skip the source node itself (first result)
	neighbors := make([]*Node, 0, len(results)-1)
	for i := 1; i < len(results); i++ {
		neighbors = append(neighbors, results[i].Node)
	}

	return neighbors, nil
}

func nextHops(g Reader, id uuid.UUID, opts TraversalOptions) []uuid.UUID {
	var hops []uuid.UUID
	for _, edge := range g.EdgesOf(id) {
		if !matchesRelationship(edge, opts.Relationships) {
			continue
		}

		switch {
		case edge.SourceID == id:
			hops = append(hops, edge.TargetID)
		case opts.FollowIncoming && edge.TargetID == id:
			hops = append(hops, edge.SourceID)
		}
	}
	return hops
}

func matchesRelationship(edge *model.Edge, relationships []string) bool {
	return len(relationships) == 0 || slices.Contains(relationships, edge.Relationship)
}
