package model

import (
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
)

// ArchivedInvestigation is an investigation stored in the archive.
type ArchivedInvestigation struct {
	ID        int64          `json:"id"`
	RID       uuid.UUID      `json:"rid"`
	Name      string         `json:"name"`
	Document  *Investigation `json:"document"`
	Metadata  Metadata       `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// ArchivedEntity is one entity of an archived investigation.
type ArchivedEntity struct {
	ID               int64      `json:"id"`
	InvestigationRID uuid.UUID  `json:"investigation_rid"`
	EntityID         uuid.UUID  `json:"entity_id"`
	Type             EntityType `json:"type"`
	Label            string     `json:"label"`
	Key              string     `json:"key,omitempty"`
	Properties       Metadata   `json:"properties,omitempty"`
	Embedding        []float32  `json:"embedding,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	// Results
	Similarity float64 `json:"similarity,omitempty"`
}

// NewArchivedEntity creates the archive row of e.
func NewArchivedEntity(investigationRID uuid.UUID, e *Entity, embedding []float32) *ArchivedEntity {
	props, _ := e.ToDict()["properties"].(map[string]any)
	return &ArchivedEntity{
		InvestigationRID: investigationRID,
		EntityID:         e.ID,
		Type:             e.Type,
		Label:            e.Label,
		Key:              e.Key(),
		Properties:       Metadata(props),
		Embedding:        embedding,
	}
}

// Entity restores the archived entity.
func (a *ArchivedEntity) Entity() (*Entity, error) {
	return EntityFromDict(map[string]any{
		"id":         a.EntityID.String(),
		"type":       string(a.Type),
		"label":      a.Label,
		"properties": map[string]any(a.Properties),
	})
}

// keyProps are the properties identifying an entity across investigations.
var keyProps = map[EntityType][]string{
	EntityTypePerson:   {"full_name"},
	EntityTypeEmail:    {"address"},
	EntityTypeLocation: {"address", "city", "country"},
	EntityTypeEvent:    {"name"},
	EntityTypeCompany:  {"name"},
	EntityTypeEvidence: {"name"},
	EntityTypeImage:    {"url"},
	EntityTypePhone:    {"country_code", "number"},
	EntityTypeUsername: {"username"},
	EntityTypeVehicle:  {"vin"},
	EntityTypeWebsite:  {"domain"},
}

// Key returns the normalised identity of the entity, for example the
// lower-case address of an email or the digits of a phone number. Entities
// of different investigations with the same type and key describe the same
// thing. Key is empty when the identifying properties are missing.
func (e *Entity) Key() string {
	props, ok := keyProps[e.Type]
	if !ok {
		return ""
	}

	parts := make([]string, 0, len(props))
	for _, name := range props {
		value := strings.TrimSpace(e.String(name))
		if e.Type == EntityTypePhone {
			value = strings.Map(func(r rune) rune {
				if unicode.IsDigit(r) {
					return r
				}
				return -1
			}, value)
		}
		if value != "" {
			parts = append(parts, strings.ToLower(strings.Join(strings.Fields(value), " ")))
		}
	}
	if len(parts) == 0 {
		return ""
	}
	return strings.Join(parts, "|")
}
