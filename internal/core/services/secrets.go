package services

import (
	"fmt"
	"os"
	"strings"

	"github.com/taskdeck/ingestd/internal/core/domain"
	"github.com/taskdeck/ingestd/internal/core/ports/driven"
)

// secretEnvPrefix is the environment namespace secrets may live in.
const secretEnvPrefix = "INGESTD_SECRET_"

// NewSecretResolver builds the resolver injected into adapters and the
// downloader. A secret is looked up first in the settings store under
// "secrets.<name>", then in the environment as INGESTD_SECRET_<NAME>.
// Resolution failure is a descriptive error, never a silent empty
// credential.
func NewSecretResolver(settings driven.SettingsStore) driven.SecretResolver {
	return func(name string) (string, error) {
		if name == "" {
			return "", fmt.Errorf("%w: empty secret name", domain.ErrSecretUnresolved)
		}
		if settings != nil {
			if v := settings.GetString("secrets." + name); v != "" {
				return v, nil
			}
		}
		envKey := secretEnvPrefix + strings.ToUpper(strings.NewReplacer("-", "_", ".", "_").Replace(name))
		if v := os.Getenv(envKey); v != "" {
			return v, nil
		}
		return "", fmt.Errorf("%w: %q not found in settings or %s", domain.ErrSecretUnresolved, name, envKey)
	}
}
