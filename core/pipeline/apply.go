package pipeline

import (
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/siherrmann/pano/core/graph"
	"github.com/siherrmann/pano/model"
)

// Entity builds the entity described by the extraction. Empty values and
// values reading "Unknown" are dropped, as are values the schema rejects.
// Events always get a name and a description. Dropped values are logged
// to logger when it is not nil.
func (e ExtractedEntity) Entity(logger *slog.Logger) (*model.Entity, error) {
	entity, err := model.NewEntity(model.EntityType(e.Type), nil)
	if err != nil {
		return nil, err
	}

	for _, prop := range e.Properties {
		value := strings.TrimSpace(prop.Value)
		if value == "" || strings.EqualFold(value, "unknown") {
			continue
		}
		if err := entity.Set(prop.Name, value); err != nil && logger != nil {
			logger.Debug("Dropping invalid extracted property", slog.String("type", e.Type), slog.String("property", prop.Name), slog.String("error", err.Error()))
		}
	}

	if entity.Type == model.EntityTypeEvent {
		name, description := entity.String("name"), entity.String("description")
		switch {
		case name == "" && description != "":
			name = description
		case name == "":
			name = "Unknown Event"
		}
		if description == "" {
			description = name
		}
		if err := entity.SetAll(map[string]any{"name": name, "description": description}); err != nil {
			return nil, err
		}
	}

	return entity, nil
}

// ApplyResult lists what ApplyExtraction added to the graph.
type ApplyResult struct {
	Nodes []*graph.Node
	Edges []*model.Edge
}

// ApplyExtraction adds the extracted entities to the graph on a circle of
// radius around center and connects them. Entities of unknown types are
// skipped, connections to skipped entities are ignored.
func ApplyExtraction(m *graph.Manager, extraction *Extraction, center model.Position, radius float64, logger *slog.Logger) (*ApplyResult, error) {
	if extraction == nil {
		return nil, fmt.Errorf("extraction is nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	result := &ApplyResult{}
	ids := make(map[int]uuid.UUID, len(extraction.Entities))
	n := max(len(extraction.Entities), 1)

	for i, extracted := range extraction.Entities {
		entity, err := extracted.Entity(logger)
		if err != nil {
			logger.Warn("Skipping extracted entity", slog.String("type", extracted.Type), slog.String("error", err.Error()))
			continue
		}

		angle := 2 * math.Pi * float64(i) / float64(n)
		node := m.AddNode(entity, model.Position{
			X: center.X + radius*math.Cos(angle),
			Y: center.Y + radius*math.Sin(angle),
		})
		ids[i] = node.ID()
		result.Nodes = append(result.Nodes, node)
	}

	for _, c := range extraction.Connections {
		source, okSource := ids[c.From]
		target, okTarget := ids[c.To]
		if !okSource || !okTarget || source == target {
			continue
		}
		if edge := m.AddEdge(source, target, c.Relationship); edge != nil && !slices.Contains(result.Edges, edge) {
			result.Edges = append(result.Edges, edge)
		}
	}

	return result, nil
}
