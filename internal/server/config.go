// Package server provides configuration helpers that define runtime defaults,
// file and environment loading, and validation for the Relay chat service.
package server

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v2"
)

// LogConfig controls optional rotating-file log output.
type LogConfig struct {
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"maxSizeMb"`
	MaxBackups int    `yaml:"maxBackups"`
	MaxAgeDays int    `yaml:"maxAgeDays"`
}

// Config holds the server configuration settings.
type Config struct {
	Port             string    `yaml:"port"`
	AllowedOrigins   []string  `yaml:"allowedOrigins"`
	MaxMessageSize   int64     `yaml:"maxMessageSize"`
	HistoryLimit     int       `yaml:"historyLimit"`
	ShutdownGraceSec int       `yaml:"shutdownGraceSec"`
	Log              LogConfig `yaml:"log"`
}

// ShutdownGrace returns the shutdown grace period as a duration.
func (c *Config) ShutdownGrace() time.Duration {
	return time.Duration(c.ShutdownGraceSec) * time.Second
}

var (
	configMu        sync.RWMutex
	activeConfig    Config
	allowedOrigins  map[string]struct{}
	allowAllOrigins bool
)

func init() {
	SetConfig(nil)
}

func defaultConfig() Config {
	return Config{
		Port: ":8080",
		AllowedOrigins: []string{
			"http://localhost:8080",
		},
		MaxMessageSize:   512,
		HistoryLimit:     100,
		ShutdownGraceSec: 5,
		Log: LogConfig{
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 7,
		},
	}
}

func sanitizeConfig(cfg Config) Config {
	if cfg.Port == "" {
		cfg.Port = ":8080"
	}

	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = 512
	}

	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 100
	}

	if cfg.ShutdownGraceSec <= 0 {
		cfg.ShutdownGraceSec = 5
	}

	normalizedOrigins, allowAll := normalizeOrigins(cfg.AllowedOrigins)
	cfg.AllowedOrigins = normalizedOrigins

	configMu.Lock()
	defer configMu.Unlock()

	activeConfig = cfg
	allowAllOrigins = allowAll
	allowedOrigins = make(map[string]struct{}, len(normalizedOrigins))
	for _, origin := range normalizedOrigins {
		allowedOrigins[origin] = struct{}{}
	}

	return cfg
}

// SetConfig applies the provided configuration. Passing nil resets to defaults.
func SetConfig(cfg *Config) {
	if cfg == nil {
		defaultCfg := defaultConfig()
		sanitizeConfig(defaultCfg)
		return
	}

	sanitized := Config{
		Port:             cfg.Port,
		AllowedOrigins:   append([]string(nil), cfg.AllowedOrigins...),
		MaxMessageSize:   cfg.MaxMessageSize,
		HistoryLimit:     cfg.HistoryLimit,
		ShutdownGraceSec: cfg.ShutdownGraceSec,
		Log:              cfg.Log,
	}
	sanitizeConfig(sanitized)
}

func currentConfig() Config {
	configMu.RLock()
	defer configMu.RUnlock()

	cfg := activeConfig
	cfg.AllowedOrigins = append([]string(nil), cfg.AllowedOrigins...)
	return cfg
}

// NewConfig creates a Config instance populated with default values for all settings.
func NewConfig() *Config {
	cfg := defaultConfig()
	return &cfg
}

// NewConfigFromEnv creates a Config instance from environment variables.
// Falls back to default values if environment variables are not set.
func NewConfigFromEnv() *Config {
	cfg := defaultConfig()
	applyEnvOverrides(&cfg)
	return &cfg
}

// LoadConfig builds the effective configuration: defaults first, then the
// YAML file named by CHAT_CONFIG (if set), then environment overrides. The
// result is validated and applied as the active configuration.
func LoadConfig() (*Config, error) {
	cfg := defaultConfig()

	if path := os.Getenv("CHAT_CONFIG"); path != "" {
		if err := loadFromFile(&cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	SetConfig(&cfg)
	return &cfg, nil
}

// loadFromFile overlays configuration from a YAML file.
func loadFromFile(cfg *Config, filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, cfg)
}

func applyEnvOverrides(cfg *Config) {
	if port := os.Getenv("SERVER_PORT"); port != "" {
		cfg.Port = port
	}

	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		cfg.AllowedOrigins = parseOrigins(origins)
	}

	if maxSize := os.Getenv("MAX_MESSAGE_SIZE"); maxSize != "" {
		cfg.MaxMessageSize = parseMaxMessageSize(maxSize, cfg.MaxMessageSize)
	}

	if limit := os.Getenv("HISTORY_LIMIT"); limit != "" {
		cfg.HistoryLimit = parseIntValue(limit, cfg.HistoryLimit)
	}

	if grace := os.Getenv("SHUTDOWN_GRACE_SECONDS"); grace != "" {
		cfg.ShutdownGraceSec = parseIntValue(grace, cfg.ShutdownGraceSec)
	}

	if logFile := os.Getenv("LOG_FILE"); logFile != "" {
		cfg.Log.File = logFile
	}
}

func validateConfig(cfg *Config) error {
	if cfg.Port == "" {
		return fmt.Errorf("port must not be empty")
	}

	if cfg.MaxMessageSize <= 0 {
		return fmt.Errorf("maxMessageSize must be positive, got %d", cfg.MaxMessageSize)
	}

	if cfg.HistoryLimit <= 0 || cfg.HistoryLimit > 100000 {
		return fmt.Errorf("historyLimit %d is outside reasonable range [1, 100000]", cfg.HistoryLimit)
	}

	if cfg.ShutdownGraceSec <= 0 || cfg.ShutdownGraceSec > 300 {
		return fmt.Errorf("shutdownGraceSec %d is outside reasonable range [1, 300]", cfg.ShutdownGraceSec)
	}

	return nil
}

func parseOrigins(origins string) []string {
	parts := strings.Split(origins, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func parseMaxMessageSize(value string, defaultValue int64) int64 {
	if size, err := strconv.ParseInt(value, 10, 64); err == nil && size > 0 {
		return size
	}
	return defaultValue
}

func parseIntValue(value string, defaultValue int) int {
	if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
		return parsed
	}
	return defaultValue
}
