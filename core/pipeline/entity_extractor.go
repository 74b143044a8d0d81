package pipeline

import (
	"fmt"
	"strings"

	"github.com/knights-analytics/hugot"
	"github.com/knights-analytics/hugot/pipelines"
	"github.com/siherrmann/pano/helper"
	"github.com/siherrmann/pano/model"
)

// NER labels of the CoNLL tag set mapped to entity types
var nerTypes = map[string]model.EntityType{
	"PER":  model.EntityTypePerson,
	"ORG":  model.EntityTypeCompany,
	"LOC":  model.EntityTypeLocation,
	"MISC": model.EntityTypeText,
}

// DefaultEntityExtractor creates an entity extractor using a NER model
// Uses distilbert-NER for named entity recognition
// Detects: PERSON, ORGANIZATION, LOCATION, MISC entities
func DefaultEntityExtractor() (EntityExtractFunc, error) {
	// Using KnightsAnalytics optimized distilbert-NER model
	modelName := "KnightsAnalytics/distilbert-NER"
	modelPath, err := helper.PrepareModel(modelName, "model.onnx")
	if err != nil {
		return nil, err
	}

	session, err := hugot.NewGoSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create hugot session: %w", err)
	}

	config := hugot.TokenClassificationConfig{
		ModelPath: modelPath,
		Name:      "ner-pipeline",
		Options: []hugot.TokenClassificationOption{
			pipelines.WithSimpleAggregation(),
			pipelines.WithIgnoreLabels([]string{"O"}), // Ignore non-entity tokens
		},
	}
	nerPipeline, err := hugot.NewPipeline(session, config)
	if err != nil {
		if destroyErr := session.Destroy(); destroyErr != nil {
			return nil, fmt.Errorf("failed to create NER pipeline: %w (cleanup error: %v)", err, destroyErr)
		}
		return nil, fmt.Errorf("failed to create NER pipeline: %w", err)
	}

	return func(text string) ([]*model.Entity, error) {
		if strings.TrimSpace(text) == "" {
			return nil, nil
		}

		result, err := nerPipeline.RunPipeline([]string{text})
		if err != nil {
			return nil, fmt.Errorf("failed to run NER: %w", err)
		}

		if len(result.Entities) == 0 {
			return nil, nil
		}

		var entities []*model.Entity
		for _, match := range result.Entities[0] {
			entity := entityFromNER(match.Entity, match.Word, float64(match.Score))
			if entity != nil {
				entities = append(entities, entity)
			}
		}

		return entities, nil
	}, nil
}

// entityFromNER converts one NER match into an entity. Matches with an
// unknown label or a word the schema rejects yield nil.
func entityFromNER(label, word string, score float64) *model.Entity {
	entityType, ok := nerTypes[normalizeEntityType(label)]
	if !ok {
		return nil
	}

	word = strings.TrimSpace(strings.ReplaceAll(word, "##", ""))
	if word == "" {
		return nil
	}

	var key string
	switch entityType {
	case model.EntityTypePerson:
		key = "full_name"
	case model.EntityTypeCompany:
		key = "name"
	case model.EntityTypeLocation:
		key = "address"
	default:
		key = "text"
	}

	entity, err := model.NewEntity(entityType, map[string]any{
		key:          word,
		"source":     "ner",
		"confidence": score,
	})
	if err != nil {
		return nil
	}
	return entity
}

// normalizeEntityType removes B- and I- prefixes from NER labels
func normalizeEntityType(label string) string {
	if strings.HasPrefix(label, "B-") {
		return label[2:]
	}
	if strings.HasPrefix(label, "I-") {
		return label[2:]
	}
	return label
}
