package syncjob

import (
	"fmt"
	"sync"

	"go-syncbridge/internal/connectors"

	"github.com/d5/tengo/v2"
)

// Side names one platform of the pair for transform registration.
type Side string

const (
	SideA Side = "a"
	SideB Side = "b"
)

// TransformFunc reshapes an entity before it is written to a side.
type TransformFunc func(entity connectors.Entity) (connectors.Entity, error)

// TransformRegistry maps (entity type, target side) to a transform. Dispatch
// is an explicit table lookup; an unregistered pair passes the snapshot
// through unchanged.
type TransformRegistry struct {
	mu         sync.RWMutex
	transforms map[string]TransformFunc
}

func NewTransformRegistry() *TransformRegistry {
	return &TransformRegistry{
		transforms: make(map[string]TransformFunc),
	}
}

func transformKey(entityType string, target Side) string {
	return entityType + "->" + string(target)
}

// Register installs a Go transform for the given entity type and target side.
func (r *TransformRegistry) Register(entityType string, target Side, fn TransformFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transforms[transformKey(entityType, target)] = fn
}

// RegisterScript compiles a Tengo script and installs it as a transform. The
// script receives the snapshot as the "entity" variable and mutates it in
// place; the resulting value becomes the pushed payload.
func (r *TransformRegistry) RegisterScript(entityType string, target Side, source string) error {
	script := tengo.NewScript([]byte(source))
	if err := script.Add("entity", map[string]interface{}{}); err != nil {
		return fmt.Errorf("failed to declare script input: %w", err)
	}

	compiled, err := script.Compile()
	if err != nil {
		return fmt.Errorf("failed to compile transform script: %w", err)
	}

	fn := func(entity connectors.Entity) (connectors.Entity, error) {
		run := compiled.Clone()
		if err := run.Set("entity", map[string]interface{}(entity)); err != nil {
			return nil, fmt.Errorf("failed to bind entity into script: %w", err)
		}
		if err := run.Run(); err != nil {
			return nil, fmt.Errorf("transform script failed: %w", err)
		}

		out := run.Get("entity").Map()
		if out == nil {
			return nil, fmt.Errorf("transform script did not produce an entity")
		}
		return connectors.Entity(out), nil
	}

	r.Register(entityType, target, fn)
	return nil
}

// Apply runs the registered transform, or returns the snapshot unchanged if
// none is registered for this entity type and side.
func (r *TransformRegistry) Apply(entityType string, target Side, entity connectors.Entity) (connectors.Entity, error) {
	r.mu.RLock()
	fn, ok := r.transforms[transformKey(entityType, target)]
	r.mu.RUnlock()

	if !ok {
		return entity, nil
	}
	return fn(entity)
}
