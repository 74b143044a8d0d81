package model

import (
	"encoding/json"
	"fmt"
	"maps"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Properties maps property names to their validated values.
type Properties map[string]any

// Entity is a typed investigation record.
type Entity struct {
	ID         uuid.UUID  `json:"id"`
	Type       EntityType `json:"type"`
	Label      string     `json:"label"`
	Properties Properties `json:"properties"`
}

// NewEntity creates an entity of the given type with a fresh id. Known
// properties are validated, unknown ones are stored as given.
func NewEntity(t EntityType, props map[string]any) (*Entity, error) {
	if _, err := SchemaFor(t); err != nil {
		return nil, err
	}

	e := &Entity{
		ID:         uuid.New(),
		Type:       t,
		Properties: Properties{},
	}
	for name, value := range props {
		if err := e.set(name, value); err != nil {
			return nil, err
		}
	}
	e.UpdateLabel()

	return e, nil
}

// MustNewEntity is NewEntity for static property sets that are known to be valid.
func MustNewEntity(t EntityType, props map[string]any) *Entity {
	e, err := NewEntity(t, props)
	if err != nil {
		panic(err)
	}
	return e
}

// Schema returns the schema of the entity's type.
func (e *Entity) Schema() *Schema {
	return schemaByType[e.Type]
}

// Color returns the display colour of the entity's type.
func (e *Entity) Color() string {
	if s := e.Schema(); s != nil {
		return s.Color
	}
	return "#607D8B"
}

// TypeLabel returns the upper case type label shown on nodes.
func (e *Entity) TypeLabel() string {
	if s := e.Schema(); s != nil {
		return s.TypeLabel
	}
	return "BASE"
}

// Set validates and stores a property, then recomputes the label. On a
// validation failure the prior value is kept and a
// *PropertyValidationError is returned. A nil value removes the property.
func (e *Entity) Set(name string, value any) error {
	if err := e.set(name, value); err != nil {
		return err
	}
	e.UpdateLabel()
	return nil
}

// SetAll applies every property and stops at the first invalid one.
// Properties applied before the failure are kept.
func (e *Entity) SetAll(props map[string]any) error {
	defer e.UpdateLabel()
	for name, value := range props {
		if err := e.set(name, value); err != nil {
			return err
		}
	}
	return nil
}

func (e *Entity) set(name string, value any) error {
	if e.Properties == nil {
		e.Properties = Properties{}
	}
	if value == nil {
		delete(e.Properties, name)
		return nil
	}

	schema := e.Schema()
	if schema == nil {
		e.Properties[name] = value
		return nil
	}

	field, ok := schema.Field(name)
	if !ok {
		e.Properties[name] = value
		return nil
	}

	validated, err := field.Validator.Validate(value)
	if err != nil {
		if pe, ok := err.(*PropertyValidationError); ok {
			pe.Property = name
		}
		return err
	}
	e.Properties[name] = validated

	return nil
}

// Get returns the raw property value.
func (e *Entity) Get(name string) (any, bool) {
	v, ok := e.Properties[name]
	return v, ok
}

// String returns the property rendered as a string, "" when unset.
func (e *Entity) String(name string) string {
	return formatValue(e.Properties[name])
}

func (e *Entity) Int(name string) (int, bool) {
	return asInt(e.Properties[name])
}

func (e *Entity) Float(name string) (float64, bool) {
	return asFloat(e.Properties[name])
}

func (e *Entity) Bool(name string) bool {
	b, ok := e.Properties[name].(bool)
	return ok && b
}

func (e *Entity) Time(name string) (time.Time, bool) {
	t, ok := e.Properties[name].(time.Time)
	return t, ok && !t.IsZero()
}

// UpdateLabel recomputes derived properties and the label.
func (e *Entity) UpdateLabel() {
	schema := e.Schema()
	if schema == nil {
		return
	}
	if schema.derive != nil {
		schema.derive(e)
	}
	e.Label = schema.label(e)
}

func (e *Entity) formatLabel(props []string, separator string) string {
	components := make([]string, 0, len(props))
	for _, p := range props {
		if v := e.String(p); v != "" {
			components = append(components, v)
		}
	}
	if len(components) == 0 {
		return string(e.Type)
	}
	return strings.Join(components, separator)
}

// EventSpan returns the start and end of an Event entity that is flagged
// for the timeline. ok is false for any other entity.
func (e *Entity) EventSpan() (start, end time.Time, ok bool) {
	if e.Type != EntityTypeEvent || !e.Bool("add_to_timeline") {
		return time.Time{}, time.Time{}, false
	}
	start, okStart := e.Time("start_date")
	end, okEnd := e.Time("end_date")
	return start, end, okStart && okEnd
}

// Coordinates parses latitude and longitude of a Location entity.
func (e *Entity) Coordinates() (lat, lon float64, ok bool) {
	if e.Type != EntityTypeLocation {
		return 0, 0, false
	}
	lat, okLat := asFloat(e.Properties["latitude"])
	lon, okLon := asFloat(e.Properties["longitude"])
	if !okLat || !okLon || lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return 0, 0, false
	}
	return lat, lon, true
}

// Clone returns a copy that shares no property map with e.
func (e *Entity) Clone() *Entity {
	c := *e
	c.Properties = maps.Clone(e.Properties)
	if c.Properties == nil {
		c.Properties = Properties{}
	}
	return &c
}

// ToDict returns the serialisable form of the entity. Times are encoded
// as RFC 3339 strings.
func (e *Entity) ToDict() map[string]any {
	props := make(map[string]any, len(e.Properties))
	for k, v := range e.Properties {
		if t, ok := v.(time.Time); ok {
			props[k] = t.Format(time.RFC3339Nano)
			continue
		}
		props[k] = v
	}

	return map[string]any{
		"id":         e.ID.String(),
		"type":       string(e.Type),
		"label":      e.Label,
		"properties": props,
		"color":      e.Color(),
	}
}

// EntityFromDict restores an entity from ToDict output. Known properties
// are coerced to their field type; values that no longer validate and
// unparseable dates are kept as given.
func EntityFromDict(data map[string]any) (*Entity, error) {
	typeName, _ := data["type"].(string)
	schema, err := SchemaFor(EntityType(typeName))
	if err != nil {
		return nil, err
	}

	props, _ := data["properties"].(map[string]any)
	if props == nil {
		if p, ok := data["properties"].(Properties); ok {
			props = p
		}
	}

	id := uuid.New()
	rawID, _ := data["id"].(string)
	if override, ok := props["_id"].(string); ok && override != "" {
		rawID = override
	}
	if rawID != "" {
		id, err = uuid.Parse(rawID)
		if err != nil {
			return nil, fmt.Errorf("invalid entity id %q: %w", rawID, err)
		}
	}

	e := &Entity{
		ID:         id,
		Type:       schema.Type,
		Properties: make(Properties, len(props)),
	}
	e.Label, _ = data["label"].(string)

	for name, value := range props {
		if name == "_id" || value == nil {
			continue
		}
		field, known := schema.Field(name)
		if !known {
			e.Properties[name] = value
			continue
		}
		if field.Kind == KindDateTime {
			if s, ok := value.(string); ok {
				if t, err := ParseDateTime(s); err == nil {
					e.Properties[name] = t
				} else {
					e.Properties[name] = s
				}
				continue
			}
		}
		if validated, err := field.Validator.Validate(value); err == nil {
			e.Properties[name] = validated
		} else {
			e.Properties[name] = value
		}
	}
	e.UpdateLabel()

	return e, nil
}

func (e *Entity) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.ToDict())
}

func (e *Entity) UnmarshalJSON(b []byte) error {
	var data map[string]any
	if err := json.Unmarshal(b, &data); err != nil {
		return err
	}
	restored, err := EntityFromDict(data)
	if err != nil {
		return err
	}
	*e = *restored
	return nil
}

var displayPrinter = message.NewPrinter(language.English)

// DisplayProperties returns the non-empty properties formatted for display,
// leaving out the image and any property prefixed with "_".
func (e *Entity) DisplayProperties() map[string]string {
	display := make(map[string]string, len(e.Properties))
	for k, v := range e.Properties {
		if k == "image" || strings.HasPrefix(k, "_") || isEmpty(v) {
			continue
		}
		display[k] = formatDisplayValue(k, v)
	}
	return display
}

func formatDisplayValue(key string, value any) string {
	switch v := value.(type) {
	case float64:
		if key == "latitude" || key == "longitude" {
			return strings.TrimRight(strings.TrimRight(strconv.FormatFloat(v, 'f', 8, 64), "0"), ".")
		}
		return displayPrinter.Sprintf("%.2f", v)
	case int:
		return displayPrinter.Sprintf("%d", v)
	case time.Time:
		return v.Format("2006-01-02 15:04")
	}
	return formatValue(value)
}

func isEmpty(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return x == ""
	case bool:
		return !x
	case int:
		return x == 0
	case float64:
		return x == 0
	case time.Time:
		return x.IsZero()
	}
	return false
}

func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case time.Time:
		return x.Format(time.RFC3339)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	case bool:
		return strconv.FormatBool(x)
	}
	return fmt.Sprint(v)
}

// PropertyMetadata describes how a property is edited.
type PropertyMetadata struct {
	Name    string   `json:"name"`
	Type    string   `json:"type"`
	Choices []string `json:"choices"`
}

// PropertyMetadata returns the editor metadata of every schema field in
// declaration order.
func (e *Entity) PropertyMetadata() []PropertyMetadata {
	schema := e.Schema()
	if schema == nil {
		return nil
	}

	metadata := make([]PropertyMetadata, 0, len(schema.Fields))
	for _, f := range schema.Fields {
		m := PropertyMetadata{Name: f.Name, Type: "text", Choices: []string{}}
		switch f.Kind {
		case KindInt, KindFloat:
			m.Type = "number"
		case KindBool:
			m.Type = "checkbox"
		case KindDateTime:
			m.Type = "datetime"
		case KindChoice:
			m.Type = "dropdown"
			if lv, ok := f.Validator.(*ListValidator); ok {
				m.Choices = lv.Choices
			}
		}
		metadata = append(metadata, m)
	}
	return metadata
}
