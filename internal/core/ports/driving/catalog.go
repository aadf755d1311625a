package driving

import (
	"github.com/taskdeck/ingestd/internal/core/domain"
)

// PluginCatalog exposes the discovered plugins.
type PluginCatalog interface {
	// List returns metadata for every loaded plugin.
	List() []domain.PluginMetadata

	// Lookup returns metadata for one plugin type.
	Lookup(pluginType string) (*domain.PluginMetadata, error)
}

// SourceValidator validates source definitions against the loaded
// plugins, accumulating every error.
type SourceValidator interface {
	ValidateSources(sources []domain.Source) error
}
