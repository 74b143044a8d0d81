package pipeline

import (
	"context"
	"testing"

	"github.com/siherrmann/pano/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseREBELOutput(t *testing.T) {
	t.Run("Parse several triplets", func(t *testing.T) {
		output := "<s><triplet> Punta Cana <subj> Dominican Republic <obj> country <triplet> Higüey <subj> La Altagracia Province <obj> located in the administrative territorial entity</s>"
		triplets := parseREBELOutput(output)

		require.Len(t, triplets, 2, "Expected two triplets")
		assert.Equal(t, Triplet{Head: "Punta Cana", Tail: "Dominican Republic", Relation: "country"}, triplets[0], "Expected first triplet")
		assert.Equal(t, "Higüey", triplets[1].Head, "Expected second head")
	})

	t.Run("No triplets", func(t *testing.T) {
		assert.Empty(t, parseREBELOutput("nothing here"), "Expected no triplets")
	})
}

func TestNormalizeRelationType(t *testing.T) {
	assert.Equal(t, "located_in_the_administrative_territorial_entity", normalizeRelationType("located in the administrative-territorial entity"), "Expected snake case")
	assert.Equal(t, "country", normalizeRelationType("Country"), "Expected lower case")
}

func TestExtractionFromTriplets(t *testing.T) {
	triplets := []Triplet{
		{Head: "Alice", Relation: "employer", Tail: "Acme"},
		{Head: "Alice", Relation: "residence", Tail: "Berlin"},
	}

	t.Run("Without typer entities become texts", func(t *testing.T) {
		extraction := extractionFromTriplets(triplets, nil)
		require.Len(t, extraction.Entities, 3, "Expected Alice once")
		assert.Equal(t, "Text", extraction.Entities[0].Type, "Expected Text fallback")
		assert.Equal(t, ExtractedConnection{From: 0, To: 2, Relationship: "residence"}, extraction.Connections[1], "Expected indices by first appearance")
	})

	t.Run("Typer decides the type", func(t *testing.T) {
		typer := func(text string) ([]*model.Entity, error) {
			if text == "Acme" {
				return []*model.Entity{model.MustNewEntity(model.EntityTypeCompany, map[string]any{"name": text})}, nil
			}
			return nil, nil
		}
		extraction := extractionFromTriplets(triplets, typer)
		assert.Equal(t, "Company", extraction.Entities[1].Type, "Expected Acme typed as company")
		assert.Equal(t, "Text", extraction.Entities[0].Type, "Expected untyped Alice as text")
	})
}

func TestGraphExtractorToEntityExtractor(t *testing.T) {
	graphExtract := func(ctx context.Context, text string) (*Extraction, error) {
		return &Extraction{Entities: []ExtractedEntity{
			{Type: "Person", Properties: PropertyList{{Name: "full_name", Value: "Alice"}}},
			{Type: "Spaceship", Properties: PropertyList{{Name: "name", Value: "Nostromo"}}},
		}}, nil
	}

	entities, err := GraphExtractorToEntityExtractor(graphExtract)("ignored")
	require.NoError(t, err, "Expected conversion to succeed")
	require.Len(t, entities, 1, "Expected unknown type to be skipped")
	assert.Equal(t, "Alice", entities[0].Label, "Expected person label")
}
