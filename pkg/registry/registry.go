package registry

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/aretw0/autotron/internal/logging"
	"github.com/aretw0/autotron/pkg/domain"
	"github.com/aretw0/autotron/pkg/node"
)

// Registry manages the available node types.
type Registry struct {
	mu     sync.RWMutex
	types  map[string]node.Descriptor
	logger *slog.Logger
}

// Option configures the Registry.
type Option func(*Registry)

// WithLogger configures a logger for registration warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

// NewRegistry creates a new empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		types:  make(map[string]node.Descriptor),
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a node type to the registry.
// If a type with the same name exists, it is overwritten and a warning is logged:
// one faulty plugin must not block the others from loading.
func (r *Registry) Register(name string, desc node.Descriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if desc.Factory == nil {
		r.logger.Warn("Node type registered without factory, ignoring", "type", name)
		return
	}
	if _, exists := r.types[name]; exists {
		r.logger.Warn("Duplicate node type registration, overriding previous", "type", name)
	}
	r.types[name] = desc
}

// List returns the registered type names in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.types))
	for name := range r.types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Descriptor looks up a registered type.
func (r *Registry) Descriptor(name string) (node.Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	desc, ok := r.types[name]
	return desc, ok
}

// Create instantiates a node of the given type and applies its saved properties.
// Returns an error wrapping domain.ErrUnknownNodeType if the type is not registered.
func (r *Registry) Create(typeName string, env node.Env, saved map[string]any) (node.Node, error) {
	desc, ok := r.Descriptor(typeName)
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownNodeType, typeName)
	}

	n := desc.Factory(env)
	if n == nil {
		return nil, fmt.Errorf("factory for %s returned nil", typeName)
	}
	if saved != nil {
		if err := n.Restore(saved); err != nil {
			return nil, fmt.Errorf("failed to restore %s properties: %w", typeName, err)
		}
	}
	return n, nil
}
