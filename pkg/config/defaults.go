package config

import "time"

// Default configuration values.
const (
	DefaultDatabase      = "compile_commands.json"
	DefaultStoreFormat   = "json"
	DefaultDetectStrict  = false
	DefaultLogLevel      = "info"
	DefaultLogJSON       = false
	DefaultWatchDebounce = 250 * time.Millisecond
	DefaultOTLPInsecure  = false
)
