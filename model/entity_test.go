package model

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEntity(t *testing.T) {
	t.Run("Create person with valid properties", func(t *testing.T) {
		person, err := NewEntity(EntityTypePerson, map[string]any{
			"full_name": "John Doe",
			"age":       42,
			"height":    "182.5",
		})
		require.NoError(t, err, "Expected valid person to be created")
		assert.NotEqual(t, uuid.Nil, person.ID, "Expected a generated id")
		assert.Equal(t, "John Doe", person.Label, "Expected label from full_name")
		assert.Equal(t, 182.5, person.Properties["height"], "Expected height coerced to float")
		assert.Equal(t, "#4CAF50", person.Color(), "Expected person colour")
		assert.Equal(t, "PERSON", person.TypeLabel(), "Expected upper case type label")
	})

	t.Run("Reject unknown entity type", func(t *testing.T) {
		_, err := NewEntity(EntityType("Spaceship"), nil)
		assert.Error(t, err, "Expected error for unknown type")
	})

	t.Run("Reject invalid property on creation", func(t *testing.T) {
		_, err := NewEntity(EntityTypePerson, map[string]any{"age": 200})

		var pe *PropertyValidationError
		require.True(t, errors.As(err, &pe), "Expected a PropertyValidationError")
		assert.Equal(t, "age", pe.Property, "Expected the rejected property name")
		assert.Equal(t, 200, pe.Value, "Expected the rejected value")
		assert.Contains(t, pe.Expected, "at most 150", "Expected a description of the accepted range")
	})

	t.Run("Label falls back to type name", func(t *testing.T) {
		company := MustNewEntity(EntityTypeCompany, nil)
		assert.Equal(t, "Company", company.Label, "Expected type name as label")
	})

	t.Run("Unknown properties are stored unvalidated", func(t *testing.T) {
		text := MustNewEntity(EntityTypeText, map[string]any{"text": "hello", "confidence": 0.9})
		assert.Equal(t, 0.9, text.Properties["confidence"], "Expected unknown property to be kept")
	})
}

func TestEntitySet(t *testing.T) {
	t.Run("Invalid value keeps prior value", func(t *testing.T) {
		email := MustNewEntity(EntityTypeEmail, map[string]any{"address": "john.doe@example.com"})

		err := email.Set("address", "not-an-email")

		var pe *PropertyValidationError
		require.True(t, errors.As(err, &pe), "Expected a PropertyValidationError")
		assert.Equal(t, "address", pe.Property, "Expected property name on the error")
		assert.Equal(t, "john.doe@example.com", email.String("address"), "Expected prior address to be kept")
		assert.Contains(t, err.Error(), "invalid value for property 'address'", "Expected readable message")
	})

	t.Run("Email domain is derived from address", func(t *testing.T) {
		email := MustNewEntity(EntityTypeEmail, map[string]any{"address": "jane@corp.example.org"})
		assert.Equal(t, "corp.example.org", email.String("domain"), "Expected domain from address")
		assert.Equal(t, "jane@corp.example.org", email.Label, "Expected address as label")
	})

	t.Run("Phone label uses country code", func(t *testing.T) {
		phone := MustNewEntity(EntityTypePhone, map[string]any{"number": "5551234", "country_code": "1"})
		assert.Equal(t, "+1 5551234", phone.Label, "Expected formatted display number")

		err := phone.Set("number", "123")
		assert.Error(t, err, "Expected too short number to be rejected")
		assert.Equal(t, "+1 5551234", phone.Label, "Expected label to stay unchanged")
	})

	t.Run("Label is recomputed after an edit", func(t *testing.T) {
		location := MustNewEntity(EntityTypeLocation, map[string]any{"city": "Berlin"})
		assert.Equal(t, "Berlin", location.Label)

		require.NoError(t, location.Set("country", "Germany"))
		assert.Equal(t, "Berlin, Germany", location.Label, "Expected joined label")
	})

	t.Run("Vehicle label joins model and year", func(t *testing.T) {
		vehicle := MustNewEntity(EntityTypeVehicle, map[string]any{"model": "Golf", "year": "2019"})
		assert.Equal(t, "Golf 2019", vehicle.Label)
		assert.Equal(t, 2019, vehicle.Properties["year"], "Expected year coerced to int")
	})

	t.Run("Dropdown rejects unknown choice", func(t *testing.T) {
		website := MustNewEntity(EntityTypeWebsite, map[string]any{"url": "https://example.com"})
		assert.Error(t, website.Set("status", "sleeping"), "Expected unknown status to be rejected")
		assert.NoError(t, website.Set("status", ""), "Expected empty status to be allowed")
		assert.NoError(t, website.Set("status", "active"))
	})

	t.Run("Nil removes a property", func(t *testing.T) {
		person := MustNewEntity(EntityTypePerson, map[string]any{"full_name": "John Doe"})
		require.NoError(t, person.Set("full_name", nil))
		assert.Equal(t, "Person", person.Label, "Expected fallback label after removal")
	})
}

func TestEntityDict(t *testing.T) {
	start := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	end := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)

	t.Run("Round trip keeps all properties", func(t *testing.T) {
		event := MustNewEntity(EntityTypeEvent, map[string]any{
			"name":            "Meeting",
			"start_date":      start,
			"end_date":        end,
			"add_to_timeline": true,
		})
		event.Properties["custom"] = "kept"

		restored, err := EntityFromDict(event.ToDict())
		require.NoError(t, err, "Expected EntityFromDict to succeed")
		assert.Equal(t, event.ID, restored.ID, "Expected id to survive")
		assert.Equal(t, event.Label, restored.Label, "Expected label to survive")
		assert.Equal(t, "kept", restored.Properties["custom"], "Expected non-schema property to survive")

		restoredStart, ok := restored.Time("start_date")
		require.True(t, ok, "Expected start_date to be parsed back to a time")
		assert.True(t, start.Equal(restoredStart), "Expected identical start time")
		assert.Equal(t, true, restored.Properties["add_to_timeline"])
	})

	t.Run("Round trip through JSON keeps numeric types", func(t *testing.T) {
		person := MustNewEntity(EntityTypePerson, map[string]any{"full_name": "John Doe", "age": 30, "height": 180.0})

		b, err := json.Marshal(person)
		require.NoError(t, err)

		var restored Entity
		require.NoError(t, json.Unmarshal(b, &restored), "Expected entity to unmarshal")
		assert.Equal(t, person.Properties, restored.Properties, "Expected identical properties")
		assert.Equal(t, person.ID, restored.ID)
	})

	t.Run("Malformed date falls back to raw string", func(t *testing.T) {
		data := map[string]any{
			"id":   uuid.NewString(),
			"type": "Event",
			"properties": map[string]any{
				"name":       "Half entered",
				"start_date": "next tuesday-ish",
				"end_date":   "",
			},
		}

		restored, err := EntityFromDict(data)
		require.NoError(t, err, "Expected malformed dates not to fail")
		assert.Equal(t, "next tuesday-ish", restored.Properties["start_date"], "Expected raw string fallback")
		_, _, ok := restored.EventSpan()
		assert.False(t, ok, "Expected no event span without parsed dates")
	})

	t.Run("Legacy _id overrides stored id", func(t *testing.T) {
		id := uuid.New()
		restored, err := EntityFromDict(map[string]any{
			"id":         uuid.NewString(),
			"type":       "Username",
			"properties": map[string]any{"username": "jdoe", "_id": id.String()},
		})
		require.NoError(t, err)
		assert.Equal(t, id, restored.ID, "Expected _id to win")
		assert.NotContains(t, restored.Properties, "_id", "Expected _id not to be kept as property")
	})

	t.Run("Invalid id is rejected", func(t *testing.T) {
		_, err := EntityFromDict(map[string]any{"id": "node-1", "type": "Text"})
		assert.Error(t, err, "Expected error for non uuid id")
	})
}

func TestEntityDisplay(t *testing.T) {
	t.Run("Display properties skip empty, image and private values", func(t *testing.T) {
		person := MustNewEntity(EntityTypePerson, map[string]any{
			"full_name": "John Doe",
			"net_worth": 1234.5,
			"age":       0,
			"image":     "/tmp/face.png",
		})
		person.Properties["_internal"] = "x"

		display := person.DisplayProperties()
		assert.Equal(t, "1,234.50", display["net_worth"], "Expected grouped float with two decimals")
		assert.NotContains(t, display, "age", "Expected zero value to be hidden")
		assert.NotContains(t, display, "image", "Expected image to be hidden")
		assert.NotContains(t, display, "_internal", "Expected private property to be hidden")
	})

	t.Run("Coordinates keep precision", func(t *testing.T) {
		assert.Equal(t, "52.52", formatDisplayValue("latitude", 52.52))
		assert.Equal(t, "13.40495", formatDisplayValue("longitude", 13.404950))
	})

	t.Run("Property metadata lists dropdown choices", func(t *testing.T) {
		location := MustNewEntity(EntityTypeLocation, nil)

		var found bool
		for _, m := range location.PropertyMetadata() {
			if m.Name == "location_type" {
				found = true
				assert.Equal(t, "dropdown", m.Type)
				assert.Equal(t, []string{"residential", "commercial", "industrial"}, m.Choices)
			}
		}
		assert.True(t, found, "Expected location_type metadata")
	})
}

func TestEntityCoordinates(t *testing.T) {
	t.Run("Parse string coordinates", func(t *testing.T) {
		location := MustNewEntity(EntityTypeLocation, map[string]any{"latitude": "52.52", "longitude": "13.405"})
		lat, lon, ok := location.Coordinates()
		require.True(t, ok, "Expected coordinates")
		assert.Equal(t, 52.52, lat)
		assert.Equal(t, 13.405, lon)
	})

	t.Run("Reject out of range coordinates", func(t *testing.T) {
		location := MustNewEntity(EntityTypeLocation, map[string]any{"latitude": "152.0", "longitude": "13.405"})
		_, _, ok := location.Coordinates()
		assert.False(t, ok, "Expected invalid latitude to be rejected")
	})
}
