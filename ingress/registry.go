package ingress

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
)

// Registry maps ingress names to their builders and capabilities.
type Registry struct {
	mu           sync.RWMutex
	builders     map[string]Builder
	capabilities map[string]Capabilities
}

// DefaultRegistry is the global ingress registry that backends register into.
var DefaultRegistry = NewRegistry()

func NewRegistry() *Registry {
	return &Registry{
		builders:     make(map[string]Builder),
		capabilities: make(map[string]Capabilities),
	}
}

// Register adds a builder under name. The name should match the Ingress
// config value (e.g. "telegram", "kafka").
func (r *Registry) Register(name string, builder Builder, caps Capabilities) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.builders[name] = builder
	if caps.Name == "" {
		caps.Name = name
	}
	r.capabilities[name] = caps
}

// GetCapabilities returns the capabilities of a registered ingress, or a zero
// value carrying only the name when it is unknown.
func (r *Registry) GetCapabilities(name string) Capabilities {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if caps, ok := r.capabilities[name]; ok {
		return caps
	}
	return Capabilities{Name: name}
}

// Build creates the ingress selected by cfg.GetIngress().
func (r *Registry) Build(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Ingress, error) {
	if cfg == nil {
		return Ingress{}, fmt.Errorf("ingress config is required")
	}
	if logger == nil {
		logger = watermill.NopLogger{}
	}

	name := cfg.GetIngress()

	r.mu.RLock()
	builder, ok := r.builders[name]
	r.mu.RUnlock()

	if !ok {
		return Ingress{}, fmt.Errorf("unknown ingress: %q (registered: %v)", name, r.Names())
	}

	in, err := builder(ctx, cfg, logger)
	if err != nil {
		return Ingress{}, fmt.Errorf("build %s ingress: %w", name, err)
	}
	if in.Name == "" {
		in.Name = name
	}
	if in.Topic == "" {
		in.Topic = cfg.GetUpdatesTopic()
	}
	return in, nil
}

// Names returns the registered ingress names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.builders))
	for name := range r.builders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.builders[name]
	return ok
}

// Register adds a builder to the default registry.
func Register(name string, builder Builder, caps Capabilities) {
	DefaultRegistry.Register(name, builder, caps)
}

// Build creates an ingress using the default registry.
func Build(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Ingress, error) {
	return DefaultRegistry.Build(ctx, cfg, logger)
}

// GetCapabilities looks name up in the default registry.
func GetCapabilities(name string) Capabilities {
	return DefaultRegistry.GetCapabilities(name)
}
