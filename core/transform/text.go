package transform

import (
	"context"
	"log/slog"

	"github.com/siherrmann/pano/core/graph"
	"github.com/siherrmann/pano/core/pipeline"
	"github.com/siherrmann/pano/model"
)

// TextToEntities runs named-entity recognition over a Text entity.
type TextToEntities struct {
	descriptor
	pipeline *pipeline.Pipeline
	log      *slog.Logger
}

// NewTextToEntities creates the transform around an extractor, usually
// pipeline.DefaultEntityExtractor. Long texts are split into windows of
// five sentences.
func NewTextToEntities(extract pipeline.EntityExtractFunc, logger *slog.Logger) *TextToEntities {
	if logger == nil {
		logger = slog.Default()
	}

	p := pipeline.NewPipeline(pipeline.SentenceChunker(5))
	p.SetEntityExtractor(extract)

	return &TextToEntities{
		descriptor: descriptor{
			name:        "Text to Entities",
			description: "Find people, companies and locations mentioned in a text",
			inputs:      []model.EntityType{model.EntityTypeText},
			outputs: []model.EntityType{
				model.EntityTypePerson,
				model.EntityTypeCompany,
				model.EntityTypeLocation,
				model.EntityTypeText,
			},
		},
		pipeline: p,
		log:      logger,
	}
}

func (t *TextToEntities) Run(ctx context.Context, entity *model.Entity, _ graph.Reader) ([]*model.Entity, error) {
	text := entity.String("text")
	if text == "" {
		return nil, nil
	}

	extraction, err := t.pipeline.Process(ctx, text)
	if err != nil {
		return nil, err
	}

	var entities []*model.Entity
	for _, extracted := range extraction.Entities {
		e, err := extracted.Entity(t.log)
		if err != nil {
			t.log.Debug("Skipping recognised entity", slog.String("type", extracted.Type), slog.String("error", err.Error()))
			continue
		}
		entities = append(entities, e)
	}
	return entities, nil
}
