package database

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/siherrmann/pano/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntitiesNewEntitiesDBHandler(t *testing.T) {
	database := initDB(t)
	_, err := NewInvestigationsDBHandler(database, true)
	require.NoError(t, err, "Expected NewInvestigationsDBHandler to not return an error")

	t.Run("Valid call NewEntitiesDBHandler", func(t *testing.T) {
		handler, err := NewEntitiesDBHandler(database, testEmbeddingDim, true)
		assert.NoError(t, err, "Expected NewEntitiesDBHandler to not return an error")
		require.NotNil(t, handler, "Expected NewEntitiesDBHandler to return a non-nil instance")
	})

	t.Run("Invalid call NewEntitiesDBHandler with nil database", func(t *testing.T) {
		_, err := NewEntitiesDBHandler(nil, testEmbeddingDim, false)
		assert.ErrorContains(t, err, "database connection is nil", "Expected specific error message for nil database connection")
	})

	t.Run("Invalid call NewEntitiesDBHandler with zero dimension", func(t *testing.T) {
		_, err := NewEntitiesDBHandler(database, 0, false)
		assert.ErrorContains(t, err, "embedding dimension", "Expected dimension error")
	})
}

// archive inserts an investigation holding the given entities.
func archive(t *testing.T, investigations *InvestigationsDBHandler, entities *EntitiesDBHandler, embeddings map[uuid.UUID][]float32, members ...*model.Entity) uuid.UUID {
	t.Helper()
	ctx := context.Background()

	investigation := &model.ArchivedInvestigation{Name: "Test " + uuid.NewString(), Document: &model.Investigation{}}
	require.NoError(t, investigations.InsertInvestigation(ctx, investigation), "Expected InsertInvestigation to not return an error")
	t.Cleanup(func() { _ = investigations.DeleteInvestigation(ctx, investigation.RID) })

	for _, member := range members {
		err := entities.UpsertEntity(ctx, model.NewArchivedEntity(investigation.RID, member, embeddings[member.ID]))
		require.NoError(t, err, "Expected UpsertEntity to not return an error")
	}
	return investigation.RID
}

func TestEntitiesUpsert(t *testing.T) {
	investigations, entities := initHandlers(t)
	ctx := context.Background()

	email := model.MustNewEntity(model.EntityTypeEmail, map[string]any{"address": "upsert@example.com"})
	rid := archive(t, investigations, entities, nil)

	archived := model.NewArchivedEntity(rid, email, []float32{1, 0, 0})
	require.NoError(t, entities.UpsertEntity(ctx, archived), "Expected UpsertEntity to not return an error")
	assert.NotZero(t, archived.ID, "Expected an id")
	assert.Equal(t, []float32{1, 0, 0}, archived.Embedding, "Expected embedding to round trip")
	firstID := archived.ID

	t.Run("Upsert of the same entity replaces the row", func(t *testing.T) {
		email.Properties["notes"] = "seen twice"
		again := model.NewArchivedEntity(rid, email, nil)
		require.NoError(t, entities.UpsertEntity(ctx, again), "Expected UpsertEntity to not return an error")
		assert.Equal(t, firstID, again.ID, "Expected the same row")
		assert.Nil(t, again.Embedding, "Expected embedding to be cleared")
		assert.Equal(t, "seen twice", again.Properties["notes"], "Expected new properties")

		all, err := entities.SelectEntitiesOfInvestigation(ctx, rid)
		require.NoError(t, err, "Expected SelectEntitiesOfInvestigation to not return an error")
		assert.Len(t, all, 1, "Expected one row")
	})

	t.Run("Upsert without investigation fails", func(t *testing.T) {
		err := entities.UpsertEntity(ctx, model.NewArchivedEntity(uuid.New(), email, nil))
		assert.Error(t, err, "Expected foreign key error")
	})
}

func TestEntitiesSelectByKey(t *testing.T) {
	investigations, entities := initHandlers(t)
	ctx := context.Background()

	address := uuid.NewString() + "@example.com"
	first := model.MustNewEntity(model.EntityTypeEmail, map[string]any{"address": address})
	second := model.MustNewEntity(model.EntityTypeEmail, map[string]any{"address": address})
	firstRID := archive(t, investigations, entities, nil, first)
	secondRID := archive(t, investigations, entities, nil, second)

	t.Run("Matches across investigations", func(t *testing.T) {
		matches, err := entities.SelectEntitiesByKey(ctx, model.EntityTypeEmail, first.Key(), nil)
		require.NoError(t, err, "Expected SelectEntitiesByKey to not return an error")
		assert.Len(t, matches, 2, "Expected both investigations")
	})

	t.Run("Own investigation is excluded", func(t *testing.T) {
		matches, err := entities.SelectEntitiesByKey(ctx, model.EntityTypeEmail, first.Key(), &firstRID)
		require.NoError(t, err, "Expected SelectEntitiesByKey to not return an error")
		require.Len(t, matches, 1, "Expected the other investigation only")
		assert.Equal(t, secondRID, matches[0].InvestigationRID, "Expected second investigation")

		restored, err := matches[0].Entity()
		require.NoError(t, err, "Expected entity to restore")
		assert.Equal(t, address, restored.String("address"), "Expected address")
	})

	t.Run("Other type does not match", func(t *testing.T) {
		matches, err := entities.SelectEntitiesByKey(ctx, model.EntityTypeWebsite, first.Key(), nil)
		require.NoError(t, err, "Expected SelectEntitiesByKey to not return an error")
		assert.Empty(t, matches, "Expected no matches")
	})

	t.Run("Empty key never matches", func(t *testing.T) {
		matches, err := entities.SelectEntitiesByKey(ctx, model.EntityTypeText, "", nil)
		require.NoError(t, err, "Expected SelectEntitiesByKey to not return an error")
		assert.Empty(t, matches, "Expected no matches")
	})
}

func TestEntitiesSelectBySearch(t *testing.T) {
	investigations, entities := initHandlers(t)
	ctx := context.Background()

	marker := uuid.NewString()[:8]
	person := model.MustNewEntity(model.EntityTypePerson, map[string]any{"full_name": "Searchable " + marker})
	company := model.MustNewEntity(model.EntityTypeCompany, map[string]any{"name": "Company " + marker})
	archive(t, investigations, entities, nil, person, company)

	t.Run("Search all types", func(t *testing.T) {
		matches, err := entities.SelectEntitiesBySearch(ctx, marker, nil, 10)
		require.NoError(t, err, "Expected SelectEntitiesBySearch to not return an error")
		assert.Len(t, matches, 2, "Expected both entities")
	})

	t.Run("Search one type", func(t *testing.T) {
		entityType := model.EntityTypeCompany
		matches, err := entities.SelectEntitiesBySearch(ctx, marker, &entityType, 10)
		require.NoError(t, err, "Expected SelectEntitiesBySearch to not return an error")
		require.Len(t, matches, 1, "Expected the company")
		assert.Equal(t, company.ID, matches[0].EntityID, "Expected company id")
	})
}

func TestEntitiesSelectBySimilarity(t *testing.T) {
	investigations, entities := initHandlers(t)
	ctx := context.Background()

	near := model.MustNewEntity(model.EntityTypeText, map[string]any{"text": "near"})
	far := model.MustNewEntity(model.EntityTypeText, map[string]any{"text": "far"})
	rid := archive(t, investigations, entities, map[uuid.UUID][]float32{
		near.ID: {1, 0.1, 0},
		far.ID:  {0, 0, 1},
	}, near, far)

	t.Run("Nearest first above threshold", func(t *testing.T) {
		matches, err := entities.SelectEntitiesBySimilarity(ctx, []float32{1, 0, 0}, 10, 0.9, nil)
		require.NoError(t, err, "Expected SelectEntitiesBySimilarity to not return an error")
		require.NotEmpty(t, matches, "Expected a match")
		assert.Equal(t, near.ID, matches[0].EntityID, "Expected nearest entity first")
		assert.Greater(t, matches[0].Similarity, 0.9, "Expected similarity above threshold")
		for _, match := range matches {
			assert.NotEqual(t, far.ID, match.EntityID, "Expected far entity below threshold")
		}
	})

	t.Run("Own investigation is excluded", func(t *testing.T) {
		matches, err := entities.SelectEntitiesBySimilarity(ctx, []float32{1, 0, 0}, 10, 0.9, &rid)
		require.NoError(t, err, "Expected SelectEntitiesBySimilarity to not return an error")
		for _, match := range matches {
			assert.NotEqual(t, rid, match.InvestigationRID, "Expected no entity of the excluded investigation")
		}
	})
}

func TestEntitiesDeleteOfInvestigation(t *testing.T) {
	investigations, entities := initHandlers(t)
	ctx := context.Background()

	rid := archive(t, investigations, entities, nil,
		model.MustNewEntity(model.EntityTypeUsername, map[string]any{"username": "one"}),
		model.MustNewEntity(model.EntityTypeUsername, map[string]any{"username": "two"}),
	)

	require.NoError(t, entities.DeleteEntitiesOfInvestigation(ctx, rid), "Expected DeleteEntitiesOfInvestigation to not return an error")

	remaining, err := entities.SelectEntitiesOfInvestigation(ctx, rid)
	require.NoError(t, err, "Expected SelectEntitiesOfInvestigation to not return an error")
	assert.Empty(t, remaining, "Expected no entities")
}
