package file

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/pelletier/go-toml/v2"

	"github.com/taskdeck/ingestd/internal/core/ports/driven"
)

// Ensure SettingsStore implements the interface.
var _ driven.SettingsStore = (*SettingsStore)(nil)

// SettingsStore is a file-based implementation of driven.SettingsStore
// using TOML. Settings are stored in a TOML file within the ingestd
// config directory.
type SettingsStore struct {
	mu       sync.RWMutex
	filePath string
	data     map[string]any
}

// NewSettingsStore creates a new TOML-based settings store.
// If configDir is empty, defaults to ~/.ingestd/config.toml.
func NewSettingsStore(configDir string) (*SettingsStore, error) {
	if configDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		configDir = filepath.Join(home, ".ingestd")
	}

	if err := os.MkdirAll(configDir, 0700); err != nil {
		return nil, err
	}

	s := &SettingsStore{
		filePath: filepath.Join(configDir, "config.toml"),
		data:     make(map[string]any),
	}

	if err := s.load(); err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	return s, nil
}

// Get retrieves a settings value by key. Nested tables are addressed
// with dotted keys ("secrets.github_token").
func (s *SettingsStore) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return lookup(s.data, key)
}

// GetString retrieves a string settings value.
func (s *SettingsStore) GetString(key string) string {
	val, ok := s.Get(key)
	if !ok {
		return ""
	}
	str, ok := val.(string)
	if !ok {
		return ""
	}
	return str
}

// GetInt retrieves an integer settings value.
func (s *SettingsStore) GetInt(key string) int {
	val, ok := s.Get(key)
	if !ok {
		return 0
	}

	// TOML integers are parsed as int64
	switch v := val.(type) {
	case int64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}

// GetBool retrieves a boolean settings value.
func (s *SettingsStore) GetBool(key string) bool {
	val, ok := s.Get(key)
	if !ok {
		return false
	}
	b, ok := val.(bool)
	if !ok {
		return false
	}
	return b
}

// Set stores a value and persists the file.
func (s *SettingsStore) Set(key string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	return s.save()
}

// load reads the settings file if it exists.
func (s *SettingsStore) load() error {
	data, err := os.ReadFile(s.filePath)
	if err != nil {
		return err
	}
	parsed := make(map[string]any)
	if err := toml.Unmarshal(data, &parsed); err != nil {
		return err
	}
	s.data = parsed
	return nil
}

// save writes the settings file with restrictive permissions; it may
// hold secrets.
func (s *SettingsStore) save() error {
	encoded, err := toml.Marshal(s.data)
	if err != nil {
		return err
	}
	return os.WriteFile(s.filePath, encoded, 0600)
}

// lookup resolves a possibly dotted key against nested TOML tables.
func lookup(data map[string]any, key string) (any, bool) {
	if v, ok := data[key]; ok {
		return v, true
	}
	for i := 0; i < len(key); i++ {
		if key[i] != '.' {
			continue
		}
		table, ok := data[key[:i]].(map[string]any)
		if !ok {
			continue
		}
		if v, found := lookup(table, key[i+1:]); found {
			return v, true
		}
	}
	return nil, false
}
