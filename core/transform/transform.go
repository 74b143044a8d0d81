package transform

import (
	"context"
	"slices"

	"github.com/siherrmann/pano/core/graph"
	"github.com/siherrmann/pano/model"
)

// Transform derives new entities from one input entity. Implementations
// are stateless and never mutate the graph; the Runner adds the results.
type Transform interface {
	Name() string
	Description() string
	InputTypes() []model.EntityType
	OutputTypes() []model.EntityType
	Run(ctx context.Context, entity *model.Entity, g graph.Reader) ([]*model.Entity, error)
}

// Accepts reports whether t takes entities of type et as input.
func Accepts(t Transform, et model.EntityType) bool {
	return slices.Contains(t.InputTypes(), et)
}

// Produces reports whether et is one of the output types of t.
func Produces(t Transform, et model.EntityType) bool {
	return slices.Contains(t.OutputTypes(), et)
}

// descriptor implements the descriptive half of Transform for the
// built-in transforms.
type descriptor struct {
	name        string
	description string
	inputs      []model.EntityType
	outputs     []model.EntityType
}

func (d descriptor) Name() string                    { return d.name }
func (d descriptor) Description() string             { return d.description }
func (d descriptor) InputTypes() []model.EntityType  { return slices.Clone(d.inputs) }
func (d descriptor) OutputTypes() []model.EntityType { return slices.Clone(d.outputs) }
