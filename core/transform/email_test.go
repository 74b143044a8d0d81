package transform

import (
	"context"
	"testing"

	"github.com/siherrmann/pano/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmailToPerson(t *testing.T) {
	tr := NewEmailToPerson()

	t.Run("Name from local part", func(t *testing.T) {
		entities, err := tr.Run(context.Background(), email("john.DOE_smith@example.com"), nil)
		require.NoError(t, err, "Expected run to succeed")
		require.Len(t, entities, 1, "Expected one person")
		assert.Equal(t, model.EntityTypePerson, entities[0].Type, "Expected person")
		assert.Equal(t, "John Doe Smith", entities[0].Label, "Expected capitalised name")
		assert.Equal(t, "Email transform", entities[0].String("source"), "Expected source")
	})

	t.Run("Address without local part", func(t *testing.T) {
		entity := model.MustNewEntity(model.EntityTypeEmail, nil)
		entities, err := tr.Run(context.Background(), entity, nil)
		require.NoError(t, err, "Expected run to succeed")
		assert.Empty(t, entities, "Expected no person")
	})
}

func TestEmailToWebsite(t *testing.T) {
	entities, err := NewEmailToWebsite().Run(context.Background(), email("alice@Example.org"), nil)
	require.NoError(t, err, "Expected run to succeed")
	require.Len(t, entities, 1, "Expected one website")
	assert.Equal(t, "https://example.org", entities[0].String("url"), "Expected url from domain")
	assert.Equal(t, "example.org", entities[0].String("domain"), "Expected lower-case domain")
}
