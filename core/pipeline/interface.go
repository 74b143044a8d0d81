package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/siherrmann/pano/model"
)

// ChunkFunc splits text into chunks
type ChunkFunc func(text string) ([]Chunk, error)

// EmbedFunc is a function that generates embeddings for text
type EmbedFunc func(text string) ([]float32, error)

// EntityExtractFunc extracts typed entities from text
type EntityExtractFunc func(text string) ([]*model.Entity, error)

// GraphExtractFunc extracts entities and the connections between them in
// a single pass
type GraphExtractFunc func(ctx context.Context, text string) (*Extraction, error)

// Chunk is a slice of the input text. Start and End are byte offsets.
type Chunk struct {
	Content string
	Start   int
	End     int
	Index   int
}

// Extraction is the result of an extraction run. Connections reference
// entities by their index in Entities.
type Extraction struct {
	Entities    []ExtractedEntity     `json:"entities" jsonschema:"description=Entities found in the text"`
	Connections []ExtractedConnection `json:"connections" jsonschema:"description=Directed relationships between the entities"`
}

type ExtractedEntity struct {
	Type       string       `json:"type" jsonschema:"description=One of the available entity types"`
	Properties PropertyList `json:"properties" jsonschema:"description=Property values of the entity"`
}

type ExtractedProperty struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type ExtractedConnection struct {
	From         int    `json:"from" jsonschema:"description=Index of the source entity"`
	To           int    `json:"to" jsonschema:"description=Index of the target entity"`
	Relationship string `json:"relationship" jsonschema:"description=Relationship in snake_case, e.g. victim_of or owned_by"`
}

// PropertyList also decodes from a plain JSON object, which models tend
// to answer with when they ignore the response schema.
type PropertyList []ExtractedProperty

func (p *PropertyList) UnmarshalJSON(b []byte) error {
	var list []ExtractedProperty
	if err := json.Unmarshal(b, &list); err == nil {
		*p = list
		return nil
	}

	var object map[string]any
	if err := json.Unmarshal(b, &object); err != nil {
		return fmt.Errorf("properties must be a list or an object: %w", err)
	}
	*p = make(PropertyList, 0, len(object))
	for name, value := range object {
		if value == nil {
			continue
		}
		*p = append(*p, ExtractedProperty{Name: name, Value: fmt.Sprint(value)})
	}
	return nil
}

// Get returns the value of a property.
func (p PropertyList) Get(name string) (string, bool) {
	for _, prop := range p {
		if prop.Name == name {
			return prop.Value, true
		}
	}
	return "", false
}

// ExtractedFromEntity converts an entity into its extraction form.
func ExtractedFromEntity(e *model.Entity) ExtractedEntity {
	extracted := ExtractedEntity{Type: string(e.Type)}
	for name, value := range e.Properties {
		if strings.HasPrefix(name, "_") {
			continue
		}
		var s string
		switch v := value.(type) {
		case time.Time:
			s = v.Format(time.RFC3339)
		default:
			s = fmt.Sprint(v)
		}
		extracted.Properties = append(extracted.Properties, ExtractedProperty{Name: name, Value: s})
	}
	return extracted
}

// Pipeline combines chunking with entity and graph extraction
type Pipeline struct {
	Chunker         ChunkFunc
	EntityExtractor EntityExtractFunc // Optional
	GraphExtractor  GraphExtractFunc  // Optional - takes precedence over EntityExtractor
}

// NewPipeline creates a new processing pipeline
func NewPipeline(chunker ChunkFunc) *Pipeline {
	return &Pipeline{
		Chunker: chunker,
	}
}

// SetEntityExtractor sets the entity extraction function
func (p *Pipeline) SetEntityExtractor(extractor EntityExtractFunc) {
	p.EntityExtractor = extractor
}

// SetGraphExtractor sets the graph extraction function
// When set, this takes precedence over the EntityExtractor
func (p *Pipeline) SetGraphExtractor(extractor GraphExtractFunc) {
	p.GraphExtractor = extractor
}

// Process chunks the text, runs extraction on every chunk and merges the
// results. Entities with the same type and properties found in several
// chunks are merged into one.
func (p *Pipeline) Process(ctx context.Context, text string) (*Extraction, error) {
	if p.GraphExtractor == nil && p.EntityExtractor == nil {
		return nil, fmt.Errorf("pipeline has no extractor")
	}

	chunks, err := p.Chunker(text)
	if err != nil {
		return nil, err
	}

	merged := &Extraction{}
	seen := make(map[string]int)
	for _, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var part *Extraction
		if p.GraphExtractor != nil {
			part, err = p.GraphExtractor(ctx, chunk.Content)
		} else {
			var entities []*model.Entity
			entities, err = p.EntityExtractor(chunk.Content)
			part = &Extraction{}
			for _, e := range entities {
				part.Entities = append(part.Entities, ExtractedFromEntity(e))
			}
		}
		if err != nil {
			return nil, fmt.Errorf("extract chunk %d: %w", chunk.Index, err)
		}
		if part != nil {
			merged.merge(part, seen)
		}
	}

	return merged, nil
}

func (x *Extraction) merge(part *Extraction, seen map[string]int) {
	index := make([]int, len(part.Entities))
	for i, e := range part.Entities {
		key := e.key()
		if existing, ok := seen[key]; ok {
			index[i] = existing
			continue
		}
		index[i] = len(x.Entities)
		seen[key] = index[i]
		x.Entities = append(x.Entities, e)
	}

	for _, c := range part.Connections {
		if c.From < 0 || c.From >= len(index) || c.To < 0 || c.To >= len(index) {
			continue
		}
		x.Connections = append(x.Connections, ExtractedConnection{
			From:         index[c.From],
			To:           index[c.To],
			Relationship: c.Relationship,
		})
	}
}

// key identifies an entity by type and its label-like properties, so
// confidence scores and offsets do not split duplicates.
func (e ExtractedEntity) key() string {
	var b strings.Builder
	b.WriteString(strings.ToLower(e.Type))
	for _, name := range []string{"full_name", "name", "address", "city", "text", "username", "url", "number", "model", "title"} {
		if v, ok := e.Properties.Get(name); ok {
			b.WriteString("|" + name + "=" + strings.ToLower(strings.TrimSpace(v)))
		}
	}
	return b.String()
}
