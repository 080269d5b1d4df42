package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of environment variable overrides. Nested keys use a
// double underscore: KISAN_VECTOR__BACKEND -> vector.backend.
const EnvPrefix = "KISAN_"

// LoadDotEnv loads KEY=VALUE pairs from path into the process environment.
// Variables that are already set win. A missing file is not an error.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// Load reads configuration from the given YAML file, then overlays
// environment variable overrides (KISAN_*).
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	// Start from defaults.
	cfg := DefaultConfig()

	// Load YAML file if it exists.
	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("accessing config %s: %w", path, err)
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		return strings.ReplaceAll(key, "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("loading env overrides: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	return cfg, nil
}

// Save writes the configuration to the given YAML file path.
func (c *Config) Save(path string) error {
	data, err := yamlv3.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

var validProviders = map[ProviderType]bool{
	ProviderOpenAI:     true,
	ProviderOpenRouter: true,
	ProviderOllama:     true,
}

// OpenRouter serves chat models only.
var validEmbeddingProviders = map[ProviderType]bool{
	ProviderOpenAI: true,
	ProviderOllama: true,
}

// Validate checks that the configuration contains valid values.
func (c *Config) Validate() error {
	if c.Provider == "" {
		return fmt.Errorf("provider is required")
	}
	if !validProviders[c.Provider] {
		return fmt.Errorf("invalid provider %q: must be one of openai, openrouter, ollama", c.Provider)
	}
	if c.Model == "" {
		return fmt.Errorf("model is required")
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("temperature must be between 0 and 2")
	}

	if !validEmbeddingProviders[c.EmbeddingProvider] {
		return fmt.Errorf("invalid embedding_provider %q: must be openai or ollama", c.EmbeddingProvider)
	}
	if c.EmbeddingModel == "" {
		return fmt.Errorf("embedding_model is required")
	}
	if c.EmbeddingDimensions <= 0 {
		return fmt.Errorf("embedding_dimensions must be positive")
	}

	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}
	if c.FactLimit <= 0 {
		return fmt.Errorf("fact_limit must be positive")
	}
	if c.MaxHistoryMessages < 0 {
		return fmt.Errorf("max_history_messages must be non-negative")
	}
	if c.RateLimitRPM < 0 {
		return fmt.Errorf("rate_limit_rpm must be non-negative")
	}

	switch c.Vector.Backend {
	case VectorChromem:
	case VectorQdrant:
		if c.Vector.QdrantHost == "" {
			return fmt.Errorf("vector.qdrant_host is required for the qdrant backend")
		}
		if c.Vector.Collection == "" {
			return fmt.Errorf("vector.collection is required for the qdrant backend")
		}
	default:
		return fmt.Errorf("invalid vector.backend %q: must be chromem or qdrant", c.Vector.Backend)
	}

	switch c.History.Driver {
	case HistorySQLite:
	case HistoryPostgres:
		if c.History.DSN == "" {
			return fmt.Errorf("history.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("invalid history.driver %q: must be sqlite or postgres", c.History.Driver)
	}

	if c.Learner.Workers <= 0 {
		return fmt.Errorf("learner.workers must be positive")
	}
	if c.Learner.QueueSize <= 0 {
		return fmt.Errorf("learner.queue_size must be positive")
	}
	if c.Learner.Timeout <= 0 {
		return fmt.Errorf("learner.timeout must be positive")
	}

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}

	return nil
}

// HistoryDSN returns the connection string for the history store.
func (c *Config) HistoryDSN() string {
	if c.History.DSN != "" || c.History.Driver != HistorySQLite {
		return c.History.DSN
	}
	return filepath.Join(c.DataDir, "farmer_chat_history.db")
}

// VectorDir is where the embedded chromem index persists its collections.
func (c *Config) VectorDir() string {
	return filepath.Join(c.DataDir, "vectordb")
}

// APIKeyEnvVar returns the conventional environment variable name for
// the API key of the given provider.
func APIKeyEnvVar(provider ProviderType) string {
	switch provider {
	case ProviderOpenAI:
		return "OPENAI_API_KEY"
	case ProviderOpenRouter:
		return "OPENROUTER_API_KEY"
	default:
		return ""
	}
}

// QdrantAPIKeyEnvVar names the optional Qdrant Cloud API key variable.
const QdrantAPIKeyEnvVar = "QDRANT_API_KEY"
