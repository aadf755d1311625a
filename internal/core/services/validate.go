package services

import (
	"errors"
	"fmt"

	"github.com/taskdeck/ingestd/internal/core/domain"
	"github.com/taskdeck/ingestd/internal/core/ports/driving"
)

// Ensure SourceValidator implements the interface.
var _ driving.SourceValidator = (*SourceValidator)(nil)

// SourceValidator checks source definitions against the loaded plugins.
type SourceValidator struct {
	registry *PluginRegistry
	filters  *FilterEngine
}

// NewSourceValidator creates a validator.
func NewSourceValidator(registry *PluginRegistry) *SourceValidator {
	return &SourceValidator{registry: registry, filters: NewFilterEngine()}
}

// ValidateSources checks ids are unique and non-empty, types resolve to
// loaded plugins, required plugin config is present and filters are
// well-formed. Every problem is accumulated.
func (v *SourceValidator) ValidateSources(sources []domain.Source) error {
	var errs []error
	seen := make(map[string]bool, len(sources))

	for i := range sources {
		s := &sources[i]
		label := s.ID
		if label == "" {
			label = fmt.Sprintf("sources[%d]", i)
			errs = append(errs, fmt.Errorf("%s: id is required", label))
		} else if seen[s.ID] {
			errs = append(errs, fmt.Errorf("%s: %w", s.ID, domain.ErrDuplicateSource))
		}
		seen[s.ID] = true

		if s.Project == "" {
			errs = append(errs, fmt.Errorf("%s: project is required", label))
		}
		if s.Type == "" {
			errs = append(errs, fmt.Errorf("%s: type is required", label))
			continue
		}

		meta, err := v.registry.Lookup(s.Type)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", label, err))
			continue
		}

		for _, key := range meta.RequiredConfigKeys() {
			if s.Config[key] == "" {
				errs = append(errs, fmt.Errorf("%s: missing required config %q for type %s", label, key, s.Type))
			}
		}

		if len(s.Filter) > 0 {
			if err := v.filters.ValidateFilter(s.Filter, meta.ItemFields); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", label, err))
			}
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
