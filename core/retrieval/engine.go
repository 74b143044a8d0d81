package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/siherrmann/pano/core/pipeline"
	"github.com/siherrmann/pano/database"
	"github.com/siherrmann/pano/helper"
	"github.com/siherrmann/pano/model"
)

// Engine archives investigations and correlates entities against the archive
type Engine struct {
	investigations *database.InvestigationsDBHandler
	entities       *database.EntitiesDBHandler
	embed          pipeline.EmbedFunc // Optional, similarity matching is skipped without it
	log            *slog.Logger
}

// NewEngine creates a new retrieval engine
func NewEngine(investigations *database.InvestigationsDBHandler, entities *database.EntitiesDBHandler, embed pipeline.EmbedFunc, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		investigations: investigations,
		entities:       entities,
		embed:          embed,
		log:            logger,
	}
}

// Archive stores the investigation and replaces its archived entities. An
// investigation without rid is inserted, otherwise it is updated. Entities
// are embedded first, the writes run in one transaction so a failed archive
// leaves the previous state and investigation untouched.
func (e *Engine) Archive(ctx context.Context, investigation *model.ArchivedInvestigation) error {
	if investigation == nil || investigation.Document == nil {
		return helper.NewError("archive", fmt.Errorf("investigation document is nil"))
	}

	var rows []*model.ArchivedEntity
	for _, node := range investigation.Document.Nodes {
		entity, err := node.Entity()
		if err != nil {
			e.log.Warn("Skipping node that cannot be restored", slog.String("id", node.ID.String()), slog.String("error", err.Error()))
			continue
		}

		embedding, err := e.embedding(entity)
		if err != nil {
			return helper.NewError("embed entity", err)
		}
		rows = append(rows, model.NewArchivedEntity(investigation.RID, entity, embedding))
	}

	tx, err := e.investigations.BeginTx(ctx)
	if err != nil {
		return helper.NewError("archive", err)
	}
	defer func() {
		// No-op after commit
		_ = tx.Rollback()
	}()
	investigations := e.investigations.WithTx(tx)
	entities := e.entities.WithTx(tx)

	stored := *investigation
	if stored.RID == uuid.Nil {
		err = investigations.InsertInvestigation(ctx, &stored)
	} else {
		err = investigations.UpdateInvestigation(ctx, &stored)
	}
	if err != nil {
		return helper.NewError("store investigation", err)
	}

	err = entities.DeleteEntitiesOfInvestigation(ctx, stored.RID)
	if err != nil {
		return helper.NewError("clear entities", err)
	}

	for _, row := range rows {
		row.InvestigationRID = stored.RID
		err = entities.UpsertEntity(ctx, row)
		if err != nil {
			return helper.NewError("archive entity "+row.EntityID.String(), err)
		}
	}

	err = tx.Commit()
	if err != nil {
		return helper.NewError("commit archive", err)
	}
	*investigation = stored

	e.log.Info("Archived investigation", slog.String("rid", investigation.RID.String()), slog.String("name", investigation.Name), slog.Int("entities", len(rows)))

	return nil
}

// Investigation loads an archived investigation
func (e *Engine) Investigation(ctx context.Context, rid uuid.UUID) (*model.ArchivedInvestigation, error) {
	return e.investigations.SelectInvestigation(ctx, rid)
}

// Search finds archived entities by label and property text
func (e *Engine) Search(ctx context.Context, term string, entityType *model.EntityType, limit int) ([]*model.ArchivedEntity, error) {
	if strings.TrimSpace(term) == "" {
		return nil, nil
	}
	return e.entities.SelectEntitiesBySearch(ctx, term, entityType, limit)
}

// Correlate finds archived entities describing the same thing as entity.
// Key matches and embedding matches are merged per archived row, scored
// with the configured weights and ranked. Entities of investigationRID are
// never returned.
func (e *Engine) Correlate(ctx context.Context, entity *model.Entity, investigationRID *uuid.UUID, config model.CorrelationConfig) ([]model.Correlation, error) {
	if entity == nil {
		return nil, helper.NewError("correlate", fmt.Errorf("entity is nil"))
	}

	matches := make(map[int64]*model.Correlation)

	if config.MatchKeys {
		key := entity.Key()
		if key != "" {
			archived, err := e.entities.SelectEntitiesByKey(ctx, entity.Type, key, investigationRID)
			if err != nil {
				return nil, helper.NewError("key match", err)
			}
			for _, a := range archived {
				matches[a.ID] = &model.Correlation{
					Match:  a,
					Score:  config.KeyWeight,
					Method: model.MatchMethodKey,
				}
			}
		}
	}

	if e.embed != nil && config.TopK > 0 {
		embedding, err := e.embedding(entity)
		if err != nil {
			return nil, helper.NewError("embed entity", err)
		}

		archived, err := e.entities.SelectEntitiesBySimilarity(ctx, embedding, config.TopK, config.SimilarityThreshold, investigationRID)
		if err != nil {
			return nil, helper.NewError("similarity match", err)
		}
		for _, a := range archived {
			score := a.Similarity * config.SimilarityWeight
			if existing, ok := matches[a.ID]; ok {
				existing.Score += score
				existing.Similarity = a.Similarity
				existing.Method = model.MatchMethodBoth
				continue
			}
			matches[a.ID] = &model.Correlation{
				Match:      a,
				Score:      score,
				Similarity: a.Similarity,
				Method:     model.MatchMethodSimilarity,
			}
		}
	}

	results := e.rankCorrelations(matches, config)

	e.log.Debug("Correlated entity", slog.String("id", entity.ID.String()), slog.Int("matches", len(results)))

	return results, nil
}

func (e *Engine) rankCorrelations(matches map[int64]*model.Correlation, config model.CorrelationConfig) []model.Correlation {
	results := make([]model.Correlation, 0, len(matches))
	for _, match := range matches {
		if len(config.EntityTypes) > 0 && !slices.Contains(config.EntityTypes, match.Match.Type) {
			continue
		}
		results = append(results, *match)
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Match.ID < results[j].Match.ID
	})

	if config.TopK > 0 && len(results) > config.TopK {
		results = results[:config.TopK]
	}

	return results
}

func (e *Engine) embedding(entity *model.Entity) ([]float32, error) {
	if e.embed == nil {
		return nil, nil
	}
	return e.embed(EmbeddingText(entity))
}

// EmbeddingText renders the entity as the text that is embedded: type label,
// label and the non-empty display properties in name order.
func EmbeddingText(entity *model.Entity) string {
	var sb strings.Builder
	sb.WriteString(entity.TypeLabel())
	sb.WriteString(": ")
	sb.WriteString(entity.Label)

	display := entity.DisplayProperties()
	names := make([]string, 0, len(display))
	for name := range display {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		sb.WriteString("\n")
		sb.WriteString(name)
		sb.WriteString(": ")
		sb.WriteString(display[name])
	}

	return sb.String()
}
