package database

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"github.com/siherrmann/pano/helper"
	"github.com/siherrmann/pano/model"
	"github.com/siherrmann/pano/sql"
)

// EntitiesDBHandlerFunctions defines the interface for archived entity database operations.
type EntitiesDBHandlerFunctions interface {
	UpsertEntity(ctx context.Context, entity *model.ArchivedEntity) error
	SelectEntitiesByKey(ctx context.Context, entityType model.EntityType, key string, excludeRID *uuid.UUID) ([]*model.ArchivedEntity, error)
	SelectEntitiesBySearch(ctx context.Context, searchTerm string, entityType *model.EntityType, limit int) ([]*model.ArchivedEntity, error)
	SelectEntitiesBySimilarity(ctx context.Context, embedding []float32, limit int, threshold float64, excludeRID *uuid.UUID) ([]*model.ArchivedEntity, error)
	SelectEntitiesOfInvestigation(ctx context.Context, investigationRID uuid.UUID) ([]*model.ArchivedEntity, error)
	DeleteEntitiesOfInvestigation(ctx context.Context, investigationRID uuid.UUID) error
}

// EntitiesDBHandler handles archived entity database operations
type EntitiesDBHandler struct {
	db *helper.Database
	q  querier
}

// NewEntitiesDBHandler creates a new entities database handler.
// The investigations table must exist since entities reference it.
// If force is true, it will reload the SQL functions even if they already exist.
func NewEntitiesDBHandler(db *helper.Database, embeddingDim int, force bool) (*EntitiesDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}
	if embeddingDim <= 0 {
		return nil, helper.NewError("embedding dimension validation", fmt.Errorf("embedding dimension must be positive, got %d", embeddingDim))
	}

	entitiesDbHandler := &EntitiesDBHandler{
		db: db,
		q:  db.Instance,
	}

	err := sql.LoadEntitiesSql(entitiesDbHandler.db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load entities sql", err)
	}

	err = entitiesDbHandler.CreateTable(embeddingDim)
	if err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized EntitiesDBHandler")

	return entitiesDbHandler, nil
}

// CreateTable creates the 'entities' table with an embedding column of
// embeddingDim dimensions and its indexes if they do not exist yet.
func (h *EntitiesDBHandler) CreateTable(embeddingDim int) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := h.q.ExecContext(ctx, `SELECT init_entities($1);`, embeddingDim)
	if err != nil {
		log.Panicf("error initializing entities table: %#v", err)
	}

	h.db.Logger.Info("Checked/created table entities")

	return nil
}

// UpsertEntity inserts the entity or replaces the row of the same entity
// in the same investigation.
func (h *EntitiesDBHandler) UpsertEntity(ctx context.Context, entity *model.ArchivedEntity) error {
	row := h.q.QueryRowContext(
		ctx,
		`SELECT * FROM upsert_entity($1, $2, $3, $4, $5, $6, $7)`,
		entity.InvestigationRID,
		entity.EntityID,
		string(entity.Type),
		entity.Label,
		entity.Key,
		entity.Properties,
		embeddingParam(entity.Embedding),
	)

	return scanEntity(row, entity, false)
}

// SelectEntitiesByKey retrieves entities with the given type and key. Entities
// of the investigation excludeRID are left out when it is set.
func (h *EntitiesDBHandler) SelectEntitiesByKey(ctx context.Context, entityType model.EntityType, key string, excludeRID *uuid.UUID) ([]*model.ArchivedEntity, error) {
	rows, err := h.q.QueryContext(
		ctx,
		`SELECT * FROM select_entities_by_key($1, $2, $3)`,
		string(entityType),
		key,
		excludeRID,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}

	return collectEntities(rows, false)
}

// SelectEntitiesBySearch searches labels and property values, best label match first
func (h *EntitiesDBHandler) SelectEntitiesBySearch(ctx context.Context, searchTerm string, entityType *model.EntityType, limit int) ([]*model.ArchivedEntity, error) {
	var typeParam *string
	if entityType != nil {
		t := string(*entityType)
		typeParam = &t
	}

	rows, err := h.q.QueryContext(
		ctx,
		`SELECT * FROM select_entities_by_search($1, $2, $3)`,
		searchTerm,
		typeParam,
		limit,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}

	return collectEntities(rows, false)
}

// SelectEntitiesBySimilarity performs a cosine similarity search over the
// entity embeddings and sets Similarity on the results.
func (h *EntitiesDBHandler) SelectEntitiesBySimilarity(ctx context.Context, embedding []float32, limit int, threshold float64, excludeRID *uuid.UUID) ([]*model.ArchivedEntity, error) {
	rows, err := h.q.QueryContext(
		ctx,
		`SELECT * FROM select_entities_by_similarity($1, $2, $3, $4)`,
		pgvector.NewVector(embedding),
		limit,
		threshold,
		excludeRID,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}

	return collectEntities(rows, true)
}

// SelectEntitiesOfInvestigation retrieves all archived entities of an investigation
func (h *EntitiesDBHandler) SelectEntitiesOfInvestigation(ctx context.Context, investigationRID uuid.UUID) ([]*model.ArchivedEntity, error) {
	rows, err := h.q.QueryContext(
		ctx,
		`SELECT * FROM select_entities_of_investigation($1)`,
		investigationRID,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}

	return collectEntities(rows, false)
}

// DeleteEntitiesOfInvestigation deletes all archived entities of an investigation
func (h *EntitiesDBHandler) DeleteEntitiesOfInvestigation(ctx context.Context, investigationRID uuid.UUID) error {
	_, err := h.q.ExecContext(
		ctx,
		`SELECT delete_entities_of_investigation($1)`,
		investigationRID,
	)
	if err != nil {
		return helper.NewError("exec", err)
	}
	return nil
}

func embeddingParam(embedding []float32) any {
	if len(embedding) == 0 {
		return nil
	}
	return pgvector.NewVector(embedding)
}

type rowsScanner interface {
	scanner
	Next() bool
	Err() error
	Close() error
}

func collectEntities(rows rowsScanner, withSimilarity bool) ([]*model.ArchivedEntity, error) {
	defer rows.Close()

	var entities []*model.ArchivedEntity
	for rows.Next() {
		entity := &model.ArchivedEntity{}
		err := scanEntity(rows, entity, withSimilarity)
		if err != nil {
			return nil, err
		}

		entities = append(entities, entity)
	}

	err := rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return entities, nil
}

func scanEntity(row scanner, entity *model.ArchivedEntity, withSimilarity bool) error {
	var entityType string
	var embedding *pgvector.Vector
	dest := []any{
		&entity.ID,
		&entity.InvestigationRID,
		&entity.EntityID,
		&entityType,
		&entity.Label,
		&entity.Key,
		&entity.Properties,
		&embedding,
		&entity.CreatedAt,
	}
	if withSimilarity {
		dest = append(dest, &entity.Similarity)
	}

	err := row.Scan(dest...)
	if err != nil {
		return helper.NewError("scan", err)
	}

	entity.Type = model.EntityType(entityType)
	entity.Embedding = nil
	if embedding != nil {
		entity.Embedding = embedding.Slice()
	}

	return nil
}
