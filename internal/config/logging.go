package config

import (
	"strings"

	"lintgate/internal/logging"
)

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level      string          `yaml:"level"`                // debug, info, warn, error
	Format     string          `yaml:"format"`               // json, text
	DebugMode  bool            `yaml:"debug_mode"`           // Master toggle - false = no category logs
	Categories map[string]bool `yaml:"categories,omitempty"` // Per-category toggles
}

// LogConfig converts the logging section into logging package settings.
func (c *Config) LogConfig() logging.Config {
	return logging.Config{
		DebugMode:  c.Logging.DebugMode,
		Level:      c.Logging.Level,
		Categories: c.Logging.Categories,
		JSONFormat: strings.EqualFold(c.Logging.Format, "json"),
	}
}
