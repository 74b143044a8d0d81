package transform

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/google/uuid"
	"github.com/siherrmann/pano/core/graph"
	"github.com/siherrmann/pano/core/status"
	"github.com/siherrmann/pano/model"
	"golang.org/x/sync/errgroup"
)

// DefaultRadius is the distance between a source node and its results.
const DefaultRadius = 200.0

// RunResult lists what one run added to the graph.
type RunResult struct {
	SourceID uuid.UUID
	Nodes    []*graph.Node
	Edges    []*model.Edge
	Err      error
}

// Runner executes transforms on graph nodes and adds the results.
type Runner struct {
	graph       *graph.Manager
	executor    *Executor
	reporter    status.Reporter
	concurrency int
	radius      float64
	log         *slog.Logger
}

type RunnerOption func(*Runner)

func WithReporter(reporter status.Reporter) RunnerOption {
	return func(r *Runner) { r.reporter = reporter }
}

// WithConcurrency limits the parallel runs of RunMany.
func WithConcurrency(n int) RunnerOption {
	return func(r *Runner) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

func WithRadius(radius float64) RunnerOption {
	return func(r *Runner) { r.radius = radius }
}

func WithRunnerLogger(logger *slog.Logger) RunnerOption {
	return func(r *Runner) { r.log = logger }
}

func NewRunner(m *graph.Manager, executor *Executor, opts ...RunnerOption) *Runner {
	r := &Runner{
		graph:       m,
		executor:    executor,
		reporter:    status.Nop{},
		concurrency: 4,
		radius:      DefaultRadius,
		log:         slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes t on the node with the given id. Results are placed on a
// circle around the source and connected to it with an unlabelled edge.
// A partial result is added to the graph and its error returned as well.
func (r *Runner) Run(ctx context.Context, t Transform, nodeID uuid.UUID) (*RunResult, error) {
	source, ok := r.graph.Node(nodeID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", graph.ErrNodeNotFound, nodeID)
	}

	loadingID := r.reporter.StartLoading(fmt.Sprintf("Running %s on %s", t.Name(), source.Entity.Label))
	defer r.reporter.StopLoading(loadingID)

	entities, err := r.executor.Execute(ctx, t, source.Entity, r.graph)
	if err != nil && !IsPartial(err) {
		return nil, err
	}

	result := &RunResult{SourceID: nodeID, Err: err}
	n := max(len(entities), 1)
	for i, entity := range entities {
		angle := 2 * math.Pi * float64(i) / float64(n)
		node := r.graph.AddNode(entity, model.Position{
			X: source.Position.X + r.radius*math.Cos(angle),
			Y: source.Position.Y + r.radius*math.Sin(angle),
		})
		result.Nodes = append(result.Nodes, node)

		if edge := r.graph.AddEdge(nodeID, node.ID(), ""); edge != nil {
			result.Edges = append(result.Edges, edge)
		}
	}

	r.reporter.SetText(fmt.Sprintf("%s added %d entities", t.Name(), len(result.Nodes)))
	return result, err
}

// RunMany runs t on every node concurrently. A failing node is reported
// and recorded in its RunResult without stopping the others. Results are
// in the order of nodeIDs.
func (r *Runner) RunMany(ctx context.Context, t Transform, nodeIDs []uuid.UUID) []RunResult {
	results := make([]RunResult, len(nodeIDs))

	var g errgroup.Group
	g.SetLimit(r.concurrency)
	for i, id := range nodeIDs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i] = RunResult{SourceID: id, Err: err}
				return nil
			}

			result, err := r.Run(ctx, t, id)
			if result != nil {
				results[i] = *result
			} else {
				results[i] = RunResult{SourceID: id, Err: err}
			}
			if err != nil {
				r.log.Warn("Transform run failed", slog.String("transform", t.Name()), slog.String("node_id", id.String()), slog.String("error", err.Error()))
				r.reporter.SetText(fmt.Sprintf("%s failed on %s: %v", t.Name(), id, err))
			}
			return nil
		})
	}
	// Workers never return errors
	_ = g.Wait()

	return results
}
