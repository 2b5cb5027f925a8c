package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Settings holds runtime configuration derived from environment variables.
// It is built once per request cycle and never mutated afterwards.
type Settings struct {
	UseLocalLLM        bool
	OpenAIAPIKey       string
	BedrockCredentials string
	HuggingFaceToken   string
}

// truthy values accepted for USE_LOCAL_LLM, case-insensitive.
var truthy = map[string]bool{
	"1":    true,
	"true": true,
	"yes":  true,
	"on":   true,
}

// FromEnv builds Settings from the process environment.
func FromEnv() Settings {
	return Settings{
		UseLocalLLM:        truthy[strings.ToLower(os.Getenv("USE_LOCAL_LLM"))],
		OpenAIAPIKey:       optionalEnv("OPENAI_API_KEY"),
		BedrockCredentials: optionalEnv("BEDROCK_CREDENTIALS"),
		HuggingFaceToken:   optionalEnv("HUGGINGFACE_TOKEN"),
	}
}

// optionalEnv returns the variable's value, treating blank as unset.
func optionalEnv(name string) string {
	v := os.Getenv(name)
	if strings.TrimSpace(v) == "" {
		return ""
	}
	return v
}

// Config holds server-level configuration loaded from a YAML file.
// Engine selection stays environment-driven (Settings); this covers the
// transport and the optional audit/reply-cache databases.
type Config struct {
	Listen string      `yaml:"listen"`
	Audit  AuditConfig `yaml:"audit"`
	Cache  CacheConfig `yaml:"cache"`
}

// AuditConfig controls the generation audit log.
type AuditConfig struct {
	Enabled       bool   `yaml:"enabled"`
	DBPath        string `yaml:"db_path"`
	RetentionDays int    `yaml:"retention_days"`
	MaxBodySize   int    `yaml:"max_body_size"`
}

// CacheConfig controls the exact-match reply cache.
type CacheConfig struct {
	Enabled bool          `yaml:"enabled"`
	DBPath  string        `yaml:"db_path"`
	TTL     time.Duration `yaml:"ttl"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Listen: ":8080",
		Audit: AuditConfig{
			DBPath:        "misaki-audit.db",
			RetentionDays: 30,
			MaxBodySize:   8192,
		},
		Cache: CacheConfig{
			DBPath: "misaki-cache.db",
			TTL:    time.Hour,
		},
	}
}

// Load reads a YAML config file and expands environment variables.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return cfg, nil
}
