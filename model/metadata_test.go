package model_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/siherrmann/pano/core/graph"
	"github.com/siherrmann/pano/core/persist"
	"github.com/siherrmann/pano/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEdgeProperties(t *testing.T) {
	ctx := context.Background()

	source := graph.NewManager()
	person := model.MustNewEntity(model.EntityTypePerson, map[string]any{"full_name": "Jane Doe"})
	phone := model.MustNewEntity(model.EntityTypePhone, map[string]any{"number": "5551234"})
	source.AddNode(person, model.Position{})
	source.AddNode(phone, model.Position{})
	require.NotNil(t, source.AddEdge(person.ID, phone.ID, "uses"), "Expected edge to be added")
	_, err := source.UpdateEdge(person.ID, phone.ID, func(edge *model.Edge) error {
		edge.Properties = model.Metadata{
			"confidence": 0.8,
			"source":     "whois",
			"first_seen": "2024-05-01T10:00:00Z",
		}
		return nil
	})
	require.NoError(t, err, "Expected UpdateEdge to not return an error")

	t.Run("Edge properties survive an investigation file", func(t *testing.T) {
		path, err := persist.Save(ctx, filepath.Join(t.TempDir(), "case"), source.Snapshot())
		require.NoError(t, err, "Expected Save to not return an error")
		inv, err := persist.Load(ctx, path)
		require.NoError(t, err, "Expected Load to not return an error")

		target := graph.NewManager()
		require.NoError(t, target.Restore(inv), "Expected Restore to not return an error")

		edge, ok := target.Edge(person.ID, phone.ID)
		require.True(t, ok, "Expected edge to be restored")
		assert.Equal(t, 0.8, edge.Properties["confidence"], "Expected number to be restored")
		assert.Equal(t, "whois", edge.Properties["source"], "Expected string to be restored")
		assert.Equal(t, "2024-05-01T10:00:00Z", edge.Properties["first_seen"], "Expected timestamp to stay a string")
	})

	t.Run("Snapshot does not share the property map", func(t *testing.T) {
		inv := source.Snapshot()
		require.Len(t, inv.Edges, 1, "Expected one edge")
		inv.Edges[0].Properties["source"] = "changed"

		edge, ok := source.Edge(person.ID, phone.ID)
		require.True(t, ok, "Expected edge")
		assert.Equal(t, "whois", edge.Properties["source"], "Expected graph to be untouched")
	})

	t.Run("Edge without properties stays without", func(t *testing.T) {
		edge := model.NewEdge(person.ID, phone.ID, "calls")
		assert.Nil(t, edge.Clone().Properties, "Expected nil properties to stay nil")
	})
}

func TestArchivedEntityProperties(t *testing.T) {
	start := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	event := model.MustNewEntity(model.EntityTypeEvent, map[string]any{
		"name":       "Meeting",
		"start_date": start,
		"end_date":   start.Add(time.Hour),
	})
	archived := model.NewArchivedEntity(uuid.New(), event, nil)

	t.Run("Dates are stored as RFC 3339 strings", func(t *testing.T) {
		value, err := archived.Properties.Value()
		require.NoError(t, err, "Expected Value to not return an error")

		var scanned model.Metadata
		require.NoError(t, scanned.Scan(value), "Expected Scan to not return an error")
		assert.Equal(t, "2024-05-01T10:00:00Z", scanned["start_date"], "Expected RFC 3339 start date")
		assert.Equal(t, "Meeting", scanned["name"], "Expected name")

		restored := *archived
		restored.Properties = scanned
		entity, err := restored.Entity()
		require.NoError(t, err, "Expected Entity to not return an error")

		got, ok := entity.Time("start_date")
		require.True(t, ok, "Expected start date to parse")
		assert.True(t, start.Equal(got), "Expected start date %v, got %v", start, got)
		assert.Equal(t, event.ID, entity.ID, "Expected entity id")
	})

	t.Run("Scan accepts text columns", func(t *testing.T) {
		var scanned model.Metadata
		require.NoError(t, scanned.Scan(`{"end_date":"2024-05-01T11:00:00Z"}`), "Expected Scan to not return an error")
		assert.Equal(t, "2024-05-01T11:00:00Z", scanned["end_date"], "Expected end date")
	})

	t.Run("NULL column becomes an empty object", func(t *testing.T) {
		scanned := model.Metadata{"stale": true}
		require.NoError(t, scanned.Scan(nil), "Expected Scan to not return an error")
		assert.Empty(t, scanned, "Expected stale keys to be dropped")
	})

	t.Run("Nil properties are stored as an empty object", func(t *testing.T) {
		var empty model.Metadata
		value, err := empty.Value()
		require.NoError(t, err, "Expected Value to not return an error")
		assert.Equal(t, []byte("{}"), value, "Expected empty JSON object")
	})

	t.Run("Unsupported column type", func(t *testing.T) {
		var scanned model.Metadata
		assert.Error(t, scanned.Scan(42), "Expected error for integer column")
		assert.Error(t, scanned.Scan([]byte("{broken")), "Expected error for invalid JSON")
	})
}
