package model

import (
	"fmt"

	"github.com/google/uuid"
)

// LineStyle is the stroke pattern of an edge. The values match the pen
// style numbers stored in .pano files.
type LineStyle int

const (
	LineSolid   LineStyle = 1
	LineDash    LineStyle = 2
	LineDot     LineStyle = 3
	LineDashDot LineStyle = 4
)

func (s LineStyle) String() string {
	switch s {
	case LineSolid:
		return "solid"
	case LineDash:
		return "dash"
	case LineDot:
		return "dot"
	case LineDashDot:
		return "dashdot"
	}
	return fmt.Sprintf("LineStyle(%d)", int(s))
}

// EdgeStyle is the visual style of an edge.
type EdgeStyle struct {
	LineStyle LineStyle `json:"pen_style" validate:"oneof=1 2 3 4"`
	Color     string    `json:"color" validate:"hexcolor"`
	Width     float64   `json:"width" validate:"gt=0,lte=20"`
}

// DefaultEdgeStyle returns the style of newly created edges.
func DefaultEdgeStyle() EdgeStyle {
	return EdgeStyle{
		LineStyle: LineSolid,
		Color:     "#646464",
		Width:     1.2,
	}
}

// Validate checks the style against its constraints.
func (s EdgeStyle) Validate() error {
	return validate.Struct(s)
}

// Edge is a directed relationship between two entities.
type Edge struct {
	ID           string    `json:"id"`
	SourceID     uuid.UUID `json:"source"`
	TargetID     uuid.UUID `json:"target"`
	Relationship string    `json:"relationship"`
	Style        EdgeStyle `json:"style"`
	Label        string    `json:"label,omitempty"`
	Properties   Metadata  `json:"properties,omitempty"`
}

// EdgeID returns the key of the edge between source and target.
func EdgeID(source, target uuid.UUID) string {
	return source.String() + "->" + target.String()
}

// NewEdge creates an edge with the default style.
func NewEdge(source, target uuid.UUID, relationship string) *Edge {
	return &Edge{
		ID:           EdgeID(source, target),
		SourceID:     source,
		TargetID:     target,
		Relationship: relationship,
		Style:        DefaultEdgeStyle(),
	}
}

// Clone returns a copy that shares no property map with e.
func (e *Edge) Clone() *Edge {
	c := *e
	c.Properties = e.Properties.Clone()
	return &c
}
