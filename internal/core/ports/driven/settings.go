package driven

// SettingsStore holds engine-level settings (data directory, tracker
// endpoint, intervals, secrets) as key-value configuration.
type SettingsStore interface {
	// Get retrieves a raw value by key.
	Get(key string) (any, bool)

	// GetString retrieves a string value, empty if absent or mistyped.
	GetString(key string) string

	// GetInt retrieves an integer value, 0 if absent or mistyped.
	GetInt(key string) int

	// GetBool retrieves a boolean value, false if absent or mistyped.
	GetBool(key string) bool

	// Set stores a value and persists it.
	Set(key string, value any) error
}
