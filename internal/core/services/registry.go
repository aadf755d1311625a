package services

import (
	"fmt"

	"github.com/taskdeck/ingestd/internal/core/domain"
	"github.com/taskdeck/ingestd/internal/core/ports/driven"
	"github.com/taskdeck/ingestd/internal/core/ports/driving"
	"github.com/taskdeck/ingestd/internal/logger"
)

// Ensure PluginRegistry implements the catalog interface.
var _ driving.PluginCatalog = (*PluginRegistry)(nil)

// PluginRegistry holds the loaded source-type plugins keyed by type.
// Built-in plugins are registered first; user plugins discovered later
// shadow a built-in sharing the same type. A plugin failing metadata
// validation is logged and dropped, never fatal.
type PluginRegistry struct {
	plugins map[string]driven.Plugin
	order   []string
}

// NewPluginRegistry creates an empty registry.
func NewPluginRegistry() *PluginRegistry {
	return &PluginRegistry{plugins: make(map[string]driven.Plugin)}
}

// Register validates and adds one plugin. A plugin whose type is
// already registered replaces the earlier entry (user plugins shadow
// built-ins). Returns the validation error for the caller to log;
// registration of other plugins is unaffected.
func (r *PluginRegistry) Register(p driven.Plugin) error {
	if err := p.Metadata.Validate(); err != nil {
		return fmt.Errorf("plugin %q: %w", p.Metadata.Type, err)
	}
	if p.New == nil {
		return fmt.Errorf("plugin %q: %w: missing adapter factory", p.Metadata.Type, domain.ErrInvalidMetadata)
	}
	if _, shadowed := r.plugins[p.Metadata.Type]; shadowed {
		logger.Info("plugin %s: replaced by later registration", p.Metadata.Type)
	} else {
		r.order = append(r.order, p.Metadata.Type)
	}
	r.plugins[p.Metadata.Type] = p
	return nil
}

// RegisterAll registers plugins in order, logging and skipping any that
// fail validation.
func (r *PluginRegistry) RegisterAll(plugins []driven.Plugin) {
	for _, p := range plugins {
		if err := r.Register(p); err != nil {
			logger.Warn("skipping plugin: %v", err)
		}
	}
}

// Plugin returns the registered plugin for a type.
func (r *PluginRegistry) Plugin(pluginType string) (*driven.Plugin, error) {
	p, ok := r.plugins[pluginType]
	if !ok {
		return nil, fmt.Errorf("plugin %q: %w", pluginType, domain.ErrNotFound)
	}
	return &p, nil
}

// NewAdapter creates a fresh adapter instance for a source's type.
func (r *PluginRegistry) NewAdapter(pluginType string) (driven.Adapter, *domain.PluginMetadata, error) {
	p, err := r.Plugin(pluginType)
	if err != nil {
		return nil, nil, err
	}
	meta := p.Metadata
	return p.New(), &meta, nil
}

// List returns metadata for every loaded plugin in registration order.
func (r *PluginRegistry) List() []domain.PluginMetadata {
	out := make([]domain.PluginMetadata, 0, len(r.order))
	for _, t := range r.order {
		out = append(out, r.plugins[t].Metadata)
	}
	return out
}

// Lookup returns metadata for one plugin type.
func (r *PluginRegistry) Lookup(pluginType string) (*domain.PluginMetadata, error) {
	p, err := r.Plugin(pluginType)
	if err != nil {
		return nil, err
	}
	meta := p.Metadata
	return &meta, nil
}
