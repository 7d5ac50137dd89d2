package lifecycle

import (
	"fmt"
	"sync"

	"github.com/rauhl/conductor/internal/logging"
)

// Registry holds the authoritative, ordered component list. Registration
// order defines start order; stop order is the exact reverse. The registry
// is append-only during bootstrap and frozen once a coordinator takes
// ownership, so reads after that point need no locking.
type Registry struct {
	mu         sync.Mutex
	components []Component
	byName     map[string]Component
	frozen     bool
	logger     *logging.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byName: make(map[string]Component),
		logger: logging.GetLogger("lifecycle.registry"),
	}
}

// Register appends a component to the registry.
// Fails with a DuplicateComponentError if the name is already taken, and
// with ErrRegistryFrozen once the bootstrap phase is over. Has no side
// effects beyond appending.
func (r *Registry) Register(component Component) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return ErrRegistryFrozen
	}
	if component == nil {
		return fmt.Errorf("cannot register nil component")
	}

	name := component.Name()
	if name == "" {
		return fmt.Errorf("component must have a non-empty name")
	}
	if _, exists := r.byName[name]; exists {
		return &DuplicateComponentError{Name: name}
	}

	r.components = append(r.components, component)
	r.byName[name] = component

	r.logger.Debug("Registered component %s (position %d)", name, len(r.components))
	return nil
}

// freeze ends the bootstrap phase. Subsequent Register calls fail.
func (r *Registry) freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
}

// StartOrder returns the components in registration order.
// The returned slice is a copy; callers may not mutate registry state.
func (r *Registry) StartOrder() []Component {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Component, len(r.components))
	copy(out, r.components)
	return out
}

// StopOrder returns the components in reverse registration order.
func (r *Registry) StopOrder() []Component {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Component, len(r.components))
	for i, c := range r.components {
		out[len(r.components)-1-i] = c
	}
	return out
}

// Get returns the component registered under name.
func (r *Registry) Get(name string) (Component, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	component, exists := r.byName[name]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrUnknownComponent, name)
	}
	return component, nil
}

// Names returns the component names in registration order.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, len(r.components))
	for i, c := range r.components {
		names[i] = c.Name()
	}
	return names
}

// Len returns the number of registered components.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.components)
}
