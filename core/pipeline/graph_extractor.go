package pipeline

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/knights-analytics/hugot"
	"github.com/siherrmann/pano/model"
)

// Triplet represents a relation triplet extracted by REBEL
type Triplet struct {
	Head     string
	Relation string
	Tail     string
}

var tripletPattern = regexp.MustCompile(`<triplet>([^<]+)<subj>([^<]+)<obj>([^<]+)`)

// NewRebelExtractor creates an offline graph extractor using a REBEL
// generation model. Heads and tails are typed with typer when given,
// otherwise they become Text entities.
func NewRebelExtractor(modelPath string, typer EntityExtractFunc) (GraphExtractFunc, error) {
	session, err := hugot.NewGoSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create hugot session: %w", err)
	}

	config := hugot.TextGenerationConfig{
		ModelPath: modelPath,
		Name:      "rebel-pipeline",
	}
	generationPipeline, err := hugot.NewPipeline(session, config)
	if err != nil {
		if destroyErr := session.Destroy(); destroyErr != nil {
			return nil, fmt.Errorf("failed to create REBEL pipeline: %w (cleanup error: %v)", err, destroyErr)
		}
		return nil, fmt.Errorf("failed to create REBEL pipeline: %w", err)
	}

	return func(ctx context.Context, text string) (*Extraction, error) {
		output, err := generationPipeline.RunPipeline(ctx, []string{text})
		if err != nil {
			return nil, fmt.Errorf("failed to generate with REBEL: %w", err)
		}

		if len(output.Responses) == 0 || output.Responses[0] == "" {
			return &Extraction{}, nil
		}

		return extractionFromTriplets(parseREBELOutput(output.Responses[0]), typer), nil
	}, nil
}

// extractionFromTriplets turns triplets into an extraction with one entity
// per distinct head or tail.
func extractionFromTriplets(triplets []Triplet, typer EntityExtractFunc) *Extraction {
	extraction := &Extraction{}
	index := make(map[string]int)

	entityIndex := func(name string) int {
		if i, ok := index[name]; ok {
			return i
		}
		index[name] = len(extraction.Entities)
		extraction.Entities = append(extraction.Entities, typeEntity(name, typer))
		return index[name]
	}

	for _, triplet := range triplets {
		extraction.Connections = append(extraction.Connections, ExtractedConnection{
			From:         entityIndex(triplet.Head),
			To:           entityIndex(triplet.Tail),
			Relationship: normalizeRelationType(triplet.Relation),
		})
	}

	return extraction
}

func typeEntity(name string, typer EntityExtractFunc) ExtractedEntity {
	if typer != nil {
		if entities, err := typer(name); err == nil && len(entities) > 0 {
			return ExtractedFromEntity(entities[0])
		}
	}

	return ExtractedEntity{
		Type:       string(model.EntityTypeText),
		Properties: PropertyList{{Name: "text", Value: name}, {Name: "source", Value: "rebel"}},
	}
}

// parseREBELOutput parses REBEL model output into triplets
// REBEL outputs format: "<triplet> head <subj> tail <obj> relation <triplet> ..."
func parseREBELOutput(generated string) []Triplet {
	var triplets []Triplet

	for _, match := range tripletPattern.FindAllStringSubmatch(generated, -1) {
		if len(match) == 4 {
			triplets = append(triplets, Triplet{
				Head:     strings.TrimSpace(match[1]),
				Tail:     strings.TrimSpace(match[2]),
				Relation: strings.TrimSpace(match[3]),
			})
		}
	}

	return triplets
}

// normalizeRelationType normalizes relation names for consistency
func normalizeRelationType(relation string) string {
	normalized := strings.ToLower(relation)
	normalized = strings.ReplaceAll(normalized, " ", "_")
	normalized = strings.ReplaceAll(normalized, "-", "_")
	return normalized
}

// GraphExtractorToEntityExtractor adapts a GraphExtractFunc to EntityExtractFunc
// Connections are dropped, entities the schemas reject are skipped
func GraphExtractorToEntityExtractor(graphExtract GraphExtractFunc) EntityExtractFunc {
	return func(text string) ([]*model.Entity, error) {
		extraction, err := graphExtract(context.Background(), text)
		if err != nil {
			return nil, err
		}

		var entities []*model.Entity
		for _, extracted := range extraction.Entities {
			if entity, err := extracted.Entity(nil); err == nil {
				entities = append(entities, entity)
			}
		}
		return entities, nil
	}
}
