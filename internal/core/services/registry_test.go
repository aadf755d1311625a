package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskdeck/ingestd/internal/core/domain"
	"github.com/taskdeck/ingestd/internal/core/ports/driven"
)

func testPlugin(pluginType, version string) driven.Plugin {
	return driven.Plugin{
		Metadata: domain.PluginMetadata{
			Type:        pluginType,
			Name:        pluginType,
			Description: "test plugin",
			Version:     version,
		},
		New: func() driven.Adapter { return nil },
	}
}

func TestRegistryRegisterAndLookup(t *testing.T) {
	r := NewPluginRegistry()
	require.NoError(t, r.Register(testPlugin("feed", "1.0.0")))

	meta, err := r.Lookup("feed")
	require.NoError(t, err)
	assert.Equal(t, "feed", meta.Type)

	_, err = r.Lookup("nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRegistryRejectsInvalidMetadata(t *testing.T) {
	r := NewPluginRegistry()
	err := r.Register(testPlugin("feed", "not-a-version"))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidMetadata)
}

func TestRegistryLaterRegistrationShadows(t *testing.T) {
	r := NewPluginRegistry()
	require.NoError(t, r.Register(testPlugin("feed", "1.0.0")))
	require.NoError(t, r.Register(testPlugin("feed", "2.0.0")))

	meta, err := r.Lookup("feed")
	require.NoError(t, err)
	assert.Equal(t, "2.0.0", meta.Version)

	// The shadowed plugin does not appear twice in the listing.
	assert.Len(t, r.List(), 1)
}

func TestRegistryRegisterAllSkipsBroken(t *testing.T) {
	r := NewPluginRegistry()
	r.RegisterAll([]driven.Plugin{
		testPlugin("good", "1.0.0"),
		testPlugin("bad", "nope"),
		testPlugin("also-good", "0.1.0"),
	})

	assert.Len(t, r.List(), 2)
	_, err := r.Lookup("bad")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
