package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Position is a canvas coordinate.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Investigation is the document stored in .pano files.
type Investigation struct {
	Nodes          []NodeRecord    `json:"nodes"`
	Edges          []EdgeRecord    `json:"edges"`
	TimelineEvents []TimelineEvent `json:"timeline_events,omitempty"`
	Groups         []Group         `json:"groups,omitempty"`
}

// NodeRecord is a node of the investigation document. Properties holds
// the entity in its ToDict form.
type NodeRecord struct {
	ID         uuid.UUID      `json:"id"`
	EntityType EntityType     `json:"entity_type"`
	Properties map[string]any `json:"properties"`
	Position   Position       `json:"position"`
}

// UnmarshalJSON accepts the legacy "pos" key for the position.
func (n *NodeRecord) UnmarshalJSON(b []byte) error {
	type alias NodeRecord
	aux := struct {
		*alias
		Pos *Position `json:"pos"`
	}{alias: (*alias)(n)}

	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	if aux.Pos != nil {
		n.Position = *aux.Pos
	}
	return nil
}

// Entity restores the entity of the record. The record id wins over the
// id stored inside the properties.
func (n *NodeRecord) Entity() (*Entity, error) {
	data := make(map[string]any, len(n.Properties)+1)
	for k, v := range n.Properties {
		data[k] = v
	}
	if _, ok := data["type"]; !ok {
		data["type"] = string(n.EntityType)
	}
	if _, ok := data["properties"]; !ok {
		data = map[string]any{
			"type":       string(n.EntityType),
			"properties": n.Properties,
		}
	}
	if n.ID != uuid.Nil {
		data["id"] = n.ID.String()
	}
	return EntityFromDict(data)
}

// EdgeRecord is an edge of the investigation document.
type EdgeRecord struct {
	ID           string    `json:"id"`
	Source       uuid.UUID `json:"source"`
	Target       uuid.UUID `json:"target"`
	Relationship string    `json:"relationship"`
	Style        EdgeStyle `json:"style"`
	Label        string    `json:"label,omitempty"`
	Properties   Metadata  `json:"properties,omitempty"`
}

// TimelineEvent is an entry of the timeline. Events created from Event
// entities carry the id of their source entity.
type TimelineEvent struct {
	Title          string     `json:"title"`
	Description    string     `json:"description"`
	StartTime      time.Time  `json:"start_time"`
	EndTime        time.Time  `json:"end_time"`
	Color          string     `json:"color"`
	SourceEntityID *uuid.UUID `json:"source_entity_id,omitempty"`
}

// TimelineEventFromEntity builds the timeline entry of an Event entity.
// ok is false when the entity has no complete span or is not flagged.
func TimelineEventFromEntity(e *Entity) (TimelineEvent, bool) {
	start, end, ok := e.EventSpan()
	if !ok {
		return TimelineEvent{}, false
	}

	id := e.ID
	return TimelineEvent{
		Title:          e.Label,
		Description:    e.String("description"),
		StartTime:      start,
		EndTime:        end,
		Color:          e.Color(),
		SourceEntityID: &id,
	}, true
}

// Group is a named set of nodes drawn together on the canvas.
type Group struct {
	ID       string      `json:"id"`
	Name     string      `json:"name"`
	Color    string      `json:"color"`
	NodeIDs  []uuid.UUID `json:"nodes"`
	Expanded bool        `json:"is_expanded"`
	Center   *Position   `json:"center,omitempty"`
}
