package driven

// ConfigStore is the settings file. Keys are dotted paths such as
// "sync.max_items"; typed getters return the zero value for missing keys
// or values of the wrong type.
type ConfigStore interface {
	Get(key string) (any, bool)
	GetString(key string) string
	GetInt(key string) int

	// GetFloat accepts integer values too.
	GetFloat(key string) float64
	GetBool(key string) bool
	GetStringSlice(key string) []string

	// Set stores value and persists the file before returning.
	Set(key string, value any) error

	Save() error
	Load() error

	// Path is where the settings live on disk.
	Path() string
}
