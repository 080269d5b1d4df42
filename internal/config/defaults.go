package config

import "time"

// ModelPreset describes the default chat and embedding models for a provider.
type ModelPreset struct {
	Model          string
	EmbeddingModel string
}

// modelPresets maps each provider to its default model choices.
var modelPresets = map[ProviderType]ModelPreset{
	ProviderOpenAI:     {Model: "gpt-4o-mini", EmbeddingModel: "text-embedding-3-small"},
	ProviderOpenRouter: {Model: "openai/gpt-4o-mini", EmbeddingModel: "text-embedding-3-small"},
	ProviderOllama:     {Model: "llama3", EmbeddingModel: "nomic-embed-text"},
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Provider:            ProviderOpenAI,
		Model:               "gpt-4o-mini",
		Temperature:         0,
		EmbeddingProvider:   ProviderOpenAI,
		EmbeddingModel:      "text-embedding-3-small",
		EmbeddingDimensions: 1024,
		OllamaHost:          "http://localhost:11434",
		DataDir:             "data",
		FactLimit:           8,
		MaxHistoryMessages:  0,
		RateLimitRPM:        0,
		Vector: VectorConfig{
			Backend:    VectorChromem,
			Collection: "farmer-assistant",
			QdrantHost: "localhost",
			QdrantPort: 6334,
		},
		History: HistoryConfig{
			Driver: HistorySQLite,
		},
		Learner: LearnerConfig{
			Workers:   2,
			QueueSize: 128,
			Timeout:   60 * time.Second,
		},
		Server: ServerConfig{
			Port:           8000,
			AllowedOrigins: []string{"*"},
		},
		Log: LogConfig{
			Pretty: true,
		},
	}
}

// GetPreset returns the model preset for the given provider.
// Returns the OpenAI preset if the provider is unknown.
func GetPreset(provider ProviderType) ModelPreset {
	if preset, ok := modelPresets[provider]; ok {
		return preset
	}
	return modelPresets[ProviderOpenAI]
}

// ExtractionModel returns the model used for fact extraction, falling back to
// the chat model.
func (c *Config) ExtractionModel() string {
	if c.ExtractorModel != "" {
		return c.ExtractorModel
	}
	return c.Model
}
