package transform

import (
	"fmt"
	"sync"

	"github.com/siherrmann/pano/model"
)

// Registry holds the transforms available to an investigation.
type Registry struct {
	mu         sync.RWMutex
	transforms map[string]Transform
	order      []string
}

func NewRegistry(transforms ...Transform) *Registry {
	r := &Registry{transforms: make(map[string]Transform)}
	for _, t := range transforms {
		// Names of built-ins are unique
		_ = r.Register(t)
	}
	return r
}

// Register adds t. Names must be unique.
func (r *Registry) Register(t Transform) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.transforms[t.Name()]; ok {
		return fmt.Errorf("transform %q already registered", t.Name())
	}
	r.transforms[t.Name()] = t
	r.order = append(r.order, t.Name())

	return nil
}

// Get returns the transform with the given name.
func (r *Registry) Get(name string) (Transform, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.transforms[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTransform, name)
	}
	return t, nil
}

// All returns the transforms in registration order.
func (r *Registry) All() []Transform {
	r.mu.RLock()
	defer r.mu.RUnlock()

	transforms := make([]Transform, 0, len(r.order))
	for _, name := range r.order {
		transforms = append(transforms, r.transforms[name])
	}
	return transforms
}

// ForType returns the transforms accepting entities of type et.
func (r *Registry) ForType(et model.EntityType) []Transform {
	var transforms []Transform
	for _, t := range r.All() {
		if Accepts(t, et) {
			transforms = append(transforms, t)
		}
	}
	return transforms
}
