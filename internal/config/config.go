// Package config loads the memoria service's configuration from, in
// ascending priority order, built-in defaults, a JSON config file, and
// environment variables.
//
// Grounded directly on config.py's load_config: same three-tier precedence,
// same field set, with MEMORIA_-prefixed environment variables in place of
// OUT_OF_CONTEXT_-prefixed ones.
//
// © 2025 memoria authors. MIT License.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// Config holds every tunable the core depends on.
type Config struct {
	StorageRoot         string `json:"storage_root"`
	TokenLimit          int    `json:"token_limit"`
	Model               string `json:"model"`
	LogLevel            string `json:"log_level"`
	MaxActiveSegments   int    `json:"max_active_segments"`
	EnableIndexing      bool   `json:"enable_indexing"`
	EnableSharding      bool   `json:"enable_sharding"`
	RecentMessages      int    `json:"recent_messages"`
	RecentDecisionHours int    `json:"recent_decision_hours"`
}

// Default returns the built-in defaults, matching config.py's dataclass
// field defaults.
func Default() Config {
	home, _ := os.UserHomeDir()
	return Config{
		StorageRoot:         filepath.Join(home, ".memoria"),
		TokenLimit:          1_000_000,
		Model:               "gpt-4",
		LogLevel:            "info",
		MaxActiveSegments:   10000,
		EnableIndexing:      true,
		EnableSharding:      true,
		RecentMessages:      10,
		RecentDecisionHours: 1,
	}
}

// envMapping binds an environment variable name to the field it overrides
// and a converter from its string value. Converters return an error (not
// panic) so a malformed override is logged and skipped rather than
// crashing startup.
type envMapping struct {
	name    string
	apply   func(*Config, string) error
}

var envMappings = []envMapping{
	{"MEMORIA_STORAGE_ROOT", func(c *Config, v string) error { c.StorageRoot = expandHome(v); return nil }},
	{"MEMORIA_TOKEN_LIMIT", func(c *Config, v string) error { return setInt(&c.TokenLimit, v) }},
	{"MEMORIA_MODEL", func(c *Config, v string) error { c.Model = v; return nil }},
	{"MEMORIA_LOG_LEVEL", func(c *Config, v string) error { c.LogLevel = v; return nil }},
	{"MEMORIA_MAX_ACTIVE_SEGMENTS", func(c *Config, v string) error { return setInt(&c.MaxActiveSegments, v) }},
	{"MEMORIA_ENABLE_INDEXING", func(c *Config, v string) error { c.EnableIndexing = parseBool(v); return nil }},
	{"MEMORIA_ENABLE_SHARDING", func(c *Config, v string) error { c.EnableSharding = parseBool(v); return nil }},
	{"MEMORIA_RECENT_MESSAGES", func(c *Config, v string) error { return setInt(&c.RecentMessages, v) }},
	{"MEMORIA_RECENT_DECISION_HOURS", func(c *Config, v string) error { return setInt(&c.RecentDecisionHours, v) }},
}

// Load resolves configuration in priority order: defaults, then a JSON
// config file (./.memoria/config.json, falling back to
// ~/.memoria/config.json), then environment variables. File and env parse
// failures are logged via logger and otherwise ignored, matching the
// original's "warn and continue with defaults" posture — configuration
// loading must never prevent the service from starting.
func Load(logger *zap.Logger) Config {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg := Default()

	if path, ok := findConfigFile(); ok {
		if err := mergeFile(&cfg, path); err != nil {
			logger.Warn("failed to load config file, using defaults", zap.String("path", path), zap.Error(err))
		}
	}

	for _, m := range envMappings {
		v, ok := os.LookupEnv(m.name)
		if !ok {
			continue
		}
		if err := m.apply(&cfg, v); err != nil {
			logger.Warn("invalid environment override, ignoring", zap.String("var", m.name), zap.String("value", v), zap.Error(err))
		}
	}

	return cfg
}

func findConfigFile() (string, bool) {
	candidate := filepath.Join(".memoria", "config.json")
	if _, err := os.Stat(candidate); err == nil {
		return candidate, true
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", false
	}
	candidate = filepath.Join(home, ".memoria", "config.json")
	if _, err := os.Stat(candidate); err == nil {
		return candidate, true
	}
	return "", false
}

func mergeFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var fileCfg Config
	fileCfg = *cfg // start from current defaults so a partial file doesn't zero the rest
	if err := json.Unmarshal(data, &fileCfg); err != nil {
		return err
	}
	*cfg = fileCfg
	return nil
}

func setInt(dst *int, v string) error {
	n, err := strconv.Atoi(v)
	if err != nil {
		return err
	}
	*dst = n
	return nil
}

func parseBool(v string) bool {
	return strings.EqualFold(v, "true")
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
