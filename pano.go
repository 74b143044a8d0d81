package pano

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/google/uuid"
	"github.com/openai/openai-go/v3/option"
	"github.com/siherrmann/pano/core/geo"
	"github.com/siherrmann/pano/core/graph"
	"github.com/siherrmann/pano/core/layout"
	"github.com/siherrmann/pano/core/persist"
	"github.com/siherrmann/pano/core/pipeline"
	"github.com/siherrmann/pano/core/retrieval"
	"github.com/siherrmann/pano/core/status"
	"github.com/siherrmann/pano/core/timeline"
	"github.com/siherrmann/pano/core/transform"
	"github.com/siherrmann/pano/database"
	"github.com/siherrmann/pano/helper"
	"github.com/siherrmann/pano/model"
	loadSql "github.com/siherrmann/pano/sql"
)

var ErrNoDatabase = errors.New("no database configured")

// Pano is one open investigation with all its collaborators wired together
type Pano struct {
	Config *helper.Configuration

	Graph      *graph.Manager
	Timeline   *timeline.Manager
	Map        *geo.Manager
	Transforms *transform.Registry
	Executor   *transform.Executor
	Runner     *transform.Runner
	Status     status.Reporter

	// Archive, nil without a database configuration
	DB     *helper.Database
	Engine *retrieval.Engine

	layout      model.LayoutConfig
	correlation model.CorrelationConfig
	extract     pipeline.GraphExtractFunc
	archiveRID  uuid.UUID
	log         *slog.Logger
}

type options struct {
	logger        *slog.Logger
	reporter      status.Reporter
	geocoder      geo.Geocoder
	embed         pipeline.EmbedFunc
	entityExtract pipeline.EntityExtractFunc
	graphExtract  pipeline.GraphExtractFunc
	llmOptions    []option.RequestOption
	layout        *model.LayoutConfig
	correlation   *model.CorrelationConfig
	transforms    []transform.Transform
}

type Option func(*options)

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

func WithReporter(reporter status.Reporter) Option {
	return func(o *options) { o.reporter = reporter }
}

// WithGeocoder replaces the Nominatim geocoder built from the configuration.
func WithGeocoder(g geo.Geocoder) Option {
	return func(o *options) { o.geocoder = g }
}

// WithEmbedder replaces the sentence transformer used for archive embeddings.
func WithEmbedder(embed pipeline.EmbedFunc) Option {
	return func(o *options) { o.embed = embed }
}

// WithEntityExtractor sets the extractor of the text transform.
func WithEntityExtractor(extract pipeline.EntityExtractFunc) Option {
	return func(o *options) { o.entityExtract = extract }
}

// WithGraphExtractor replaces the LLM extractor used by ExtractFromText.
func WithGraphExtractor(extract pipeline.GraphExtractFunc) Option {
	return func(o *options) { o.graphExtract = extract }
}

// WithLLMOptions passes request options to the OpenAI client.
func WithLLMOptions(opts ...option.RequestOption) Option {
	return func(o *options) { o.llmOptions = append(o.llmOptions, opts...) }
}

func WithLayoutConfig(cfg model.LayoutConfig) Option {
	return func(o *options) { o.layout = &cfg }
}

func WithCorrelationConfig(cfg model.CorrelationConfig) Option {
	return func(o *options) { o.correlation = &cfg }
}

// WithTransforms registers transforms in addition to the built-in ones.
func WithTransforms(transforms ...transform.Transform) Option {
	return func(o *options) { o.transforms = append(o.transforms, transforms...) }
}

// New creates an empty investigation. A nil config uses the defaults.
// When config.Database is set the archive is opened as well.
func New(config *helper.Configuration, opts ...Option) (*Pano, error) {
	if config == nil {
		config = helper.DefaultConfiguration()
	}

	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	logger := o.logger
	if logger == nil {
		logger = helper.NewLogger(config.Level())
	}
	reporter := o.reporter
	if reporter == nil {
		reporter = status.NewLogReporter(logger)
	}

	p := &Pano{
		Config:      config,
		Status:      reporter,
		layout:      model.DefaultLayoutConfig(),
		correlation: model.DefaultCorrelationConfig(),
		log:         logger,
	}
	if o.layout != nil {
		p.layout = *o.layout
	}
	if o.correlation != nil {
		p.correlation = *o.correlation
	}

	// Collaborators
	p.Timeline = timeline.NewManager(logger)
	p.Map = geo.NewManager(logger)
	switch {
	case o.geocoder != nil:
		p.Map.WithGeocoder(o.geocoder, config.Transform.Timeout)
	case config.Geocoder.Enabled && config.Geocoder.URL != "":
		geocoder := geo.NewNominatimGeocoder(config.Geocoder.URL, config.Transform.UserAgent, config.Geocoder.RequestsPerSecond)
		p.Map.WithGeocoder(geocoder, config.Transform.Timeout)
	}

	p.Graph = graph.NewManager(
		graph.WithMapNotifier(p.Map),
		graph.WithTimelineNotifier(p.Timeline),
		graph.WithLogger(logger),
	)

	// Extraction
	p.extract = o.graphExtract
	entityExtract := o.entityExtract
	if p.extract == nil && config.LLM.APIKey == "" && config.Extraction.Local() {
		ner, rebel, err := localExtractors(config.Extraction)
		if err != nil {
			return nil, err
		}
		if entityExtract == nil {
			entityExtract = ner
		}
		p.extract = rebel
	}
	if p.extract == nil {
		p.extract = pipeline.NewLLMExtractor(config.LLM, logger, o.llmOptions...).Extract
	}
	if entityExtract == nil && (o.graphExtract != nil || config.LLM.APIKey != "") {
		entityExtract = pipeline.GraphExtractorToEntityExtractor(p.extract)
	}

	// Transforms
	p.Transforms = transform.NewRegistry(transform.Builtins(config.Transform, entityExtract, logger)...)
	for _, t := range o.transforms {
		err := p.Transforms.Register(t)
		if err != nil {
			return nil, helper.NewError("register transform", err)
		}
	}
	p.Executor = transform.NewExecutor(config.Transform.Timeout, transform.DefaultBreakerConfig(), logger)
	p.Runner = transform.NewRunner(
		p.Graph,
		p.Executor,
		transform.WithReporter(reporter),
		transform.WithConcurrency(config.Transform.Concurrency),
		transform.WithRadius(p.layout.ResultRadius),
		transform.WithRunnerLogger(logger),
	)

	if config.Database != nil {
		err := p.openArchive(config, o.embed)
		if err != nil {
			return nil, err
		}
	}

	logger.Info("Created investigation", slog.Int("transforms", len(p.Transforms.All())), slog.Bool("archive", p.Engine != nil))

	return p, nil
}

// localExtractors builds the NER extractor and, with a model path, the
// REBEL extractor typing its heads and tails.
func localExtractors(cfg helper.ExtractionConfiguration) (pipeline.EntityExtractFunc, pipeline.GraphExtractFunc, error) {
	ner, err := pipeline.DefaultEntityExtractor()
	if err != nil {
		return nil, nil, helper.NewError("create NER extractor", err)
	}
	if cfg.RebelModel == "" {
		return ner, nil, nil
	}

	rebel, err := pipeline.NewRebelExtractor(cfg.RebelModel, ner)
	if err != nil {
		return nil, nil, helper.NewError("create REBEL extractor", err)
	}
	return ner, rebel, nil
}

func (p *Pano) openArchive(config *helper.Configuration, embed pipeline.EmbedFunc) error {
	if embed == nil {
		var err error
		embed, err = pipeline.NewEmbedder(config.Embedding.Model)
		if err != nil {
			return helper.NewError("create embedder", err)
		}
	}

	db := helper.NewDatabase("pano", config.Database, p.log)
	err := loadSql.Init(db.Instance)
	if err != nil {
		return helper.NewError("initialize database extensions", err)
	}

	// Investigations first since entities reference them
	investigations, err := database.NewInvestigationsDBHandler(db, false)
	if err != nil {
		return helper.NewError("create investigations handler", err)
	}
	entities, err := database.NewEntitiesDBHandler(db, config.Embedding.Dimension, false)
	if err != nil {
		return helper.NewError("create entities handler", err)
	}

	p.DB = db
	p.Engine = retrieval.NewEngine(investigations, entities, embed, p.log)
	return nil
}

// Close stops running geocode requests and closes the database connection
func (p *Pano) Close() error {
	p.Map.Close()
	if p.DB != nil {
		return p.DB.Close()
	}
	return nil
}

// Snapshot returns the investigation document including the timeline.
func (p *Pano) Snapshot() *model.Investigation {
	inv := p.Graph.Snapshot()
	inv.TimelineEvents = p.Timeline.Serialize()
	return inv
}

// Save writes the investigation to path and returns the path written to.
func (p *Pano) Save(ctx context.Context, path string) (string, error) {
	id := p.Status.StartLoading("Saving investigation")
	defer p.Status.StopLoading(id)

	written, err := persist.Save(ctx, path, p.Snapshot())
	if err != nil {
		return "", err
	}

	nodes, edges := p.Graph.Len()
	p.log.Info("Saved investigation", slog.String("path", written), slog.Int("nodes", nodes), slog.Int("edges", edges))

	return written, nil
}

// Load replaces the investigation with the file at path. Timeline events
// stored in the file win over the events rebuilt from Event entities.
func (p *Pano) Load(ctx context.Context, path string) error {
	id := p.Status.StartLoading("Loading investigation")
	defer p.Status.StopLoading(id)

	inv, err := persist.Load(ctx, path)
	if err != nil {
		return err
	}

	err = p.Graph.Restore(inv)
	if err != nil {
		return err
	}

	// Restore synced the Event entities, manual events of the old graph remain
	events := inv.TimelineEvents
	if len(events) == 0 {
		events = slices.DeleteFunc(p.Timeline.Events(), func(e model.TimelineEvent) bool {
			return e.SourceEntityID == nil
		})
	}
	p.Timeline.Deserialize(events)
	p.archiveRID = uuid.Nil

	nodes, edges := p.Graph.Len()
	p.log.Info("Loaded investigation", slog.String("path", path), slog.Int("nodes", nodes), slog.Int("edges", edges), slog.Int("events", len(p.Timeline.Events())))

	return nil
}

// ApplyLayout moves every node according to algorithm.
func (p *Pano) ApplyLayout(algorithm layout.Algorithm, center model.Position) error {
	return layout.Apply(p.Graph, algorithm, center, p.layout)
}

// RunTransform runs the named transform on a node and adds its results.
func (p *Pano) RunTransform(ctx context.Context, name string, nodeID uuid.UUID) (*transform.RunResult, error) {
	t, err := p.Transforms.Get(name)
	if err != nil {
		return nil, err
	}
	return p.Runner.Run(ctx, t, nodeID)
}

// Neighbourhood returns the nodes within hops of id in either edge
// direction, ordered by distance. The node itself comes first.
func (p *Pano) Neighbourhood(ctx context.Context, id uuid.UUID, hops int) ([]*graph.TraversalResult, error) {
	return graph.BFS(ctx, p.Graph, id, graph.TraversalOptions{MaxHops: hops, FollowIncoming: true})
}

// Neighbours returns the nodes sharing an edge with id. Relationships
// restrict the edges followed.
func (p *Pano) Neighbours(ctx context.Context, id uuid.UUID, relationships ...string) ([]*graph.Node, error) {
	return graph.GetNeighbors(ctx, p.Graph, id, relationships, true)
}

// GroupConnected groups every node reachable from id over outgoing edges
// with one of relationships, all edges when none are given.
func (p *Pano) GroupConnected(ctx context.Context, id uuid.UUID, name, color string, relationships ...string) (model.Group, error) {
	nodes, _ := p.Graph.Len()
	results, err := graph.DFS(ctx, p.Graph, id, graph.TraversalOptions{MaxHops: nodes, Relationships: relationships})
	if err != nil {
		return model.Group{}, err
	}

	ids := make([]uuid.UUID, len(results))
	for i, r := range results {
		ids[i] = r.Node.ID()
	}
	return p.Graph.CreateGroup(name, ids, color), nil
}

// ExtractFromText extracts entities and connections from text and adds
// them around the origin of the canvas.
func (p *Pano) ExtractFromText(ctx context.Context, text string) (*pipeline.ApplyResult, error) {
	id := p.Status.StartLoading("Extracting entities")
	defer p.Status.StopLoading(id)

	extraction, err := p.extract(ctx, text)
	if err != nil {
		return nil, helper.NewError("extract", err)
	}

	p.Status.SetText(fmt.Sprintf("Adding %d entities", len(extraction.Entities)))

	return pipeline.ApplyExtraction(p.Graph, extraction, model.Position{}, p.layout.ResultRadius, p.log)
}

// Archive stores the investigation under name. Archiving again updates the
// same archived investigation.
func (p *Pano) Archive(ctx context.Context, name string) (*model.ArchivedInvestigation, error) {
	if p.Engine == nil {
		return nil, helper.NewError("archive", ErrNoDatabase)
	}

	id := p.Status.StartLoading("Archiving investigation")
	defer p.Status.StopLoading(id)

	archived := &model.ArchivedInvestigation{
		RID:      p.archiveRID,
		Name:     name,
		Document: p.Snapshot(),
	}
	err := p.Engine.Archive(ctx, archived)
	if err != nil {
		return nil, err
	}

	p.archiveRID = archived.RID
	return archived, nil
}

// Correlate finds archived entities of other investigations matching the
// entity of a node.
func (p *Pano) Correlate(ctx context.Context, nodeID uuid.UUID) ([]model.Correlation, error) {
	if p.Engine == nil {
		return nil, helper.NewError("correlate", ErrNoDatabase)
	}

	node, ok := p.Graph.Node(nodeID)
	if !ok {
		return nil, helper.NewError("correlate", graph.ErrNodeNotFound)
	}

	var exclude *uuid.UUID
	if p.archiveRID != uuid.Nil {
		rid := p.archiveRID
		exclude = &rid
	}

	return p.Engine.Correlate(ctx, node.Entity, exclude, p.correlation)
}
