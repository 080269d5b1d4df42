package config

import "time"

// ProviderType identifies an LLM or embedding provider.
type ProviderType string

const (
	ProviderOpenAI     ProviderType = "openai"
	ProviderOpenRouter ProviderType = "openrouter"
	ProviderOllama     ProviderType = "ollama"
)

// VectorBackend selects the long-term fact index.
type VectorBackend string

const (
	VectorChromem VectorBackend = "chromem"
	VectorQdrant  VectorBackend = "qdrant"
)

// HistoryDriver selects the relational session history backend.
type HistoryDriver string

const (
	HistorySQLite   HistoryDriver = "sqlite"
	HistoryPostgres HistoryDriver = "postgres"
)

// Config is the top-level kisan configuration, corresponding to .kisan.yml.
type Config struct {
	Provider            ProviderType  `yaml:"provider" koanf:"provider"`
	Model               string        `yaml:"model" koanf:"model"`
	ExtractorModel      string        `yaml:"extractor_model" koanf:"extractor_model"`
	Temperature         float64       `yaml:"temperature" koanf:"temperature"`
	EmbeddingProvider   ProviderType  `yaml:"embedding_provider" koanf:"embedding_provider"`
	EmbeddingModel      string        `yaml:"embedding_model" koanf:"embedding_model"`
	EmbeddingDimensions int           `yaml:"embedding_dimensions" koanf:"embedding_dimensions"`
	OllamaHost          string        `yaml:"ollama_host" koanf:"ollama_host"`
	DataDir             string        `yaml:"data_dir" koanf:"data_dir"`
	FactLimit           int           `yaml:"fact_limit" koanf:"fact_limit"`
	MaxHistoryMessages  int           `yaml:"max_history_messages" koanf:"max_history_messages"`
	RateLimitRPM        int           `yaml:"rate_limit_rpm" koanf:"rate_limit_rpm"`
	StrictSessionPrefix bool          `yaml:"strict_session_prefix" koanf:"strict_session_prefix"`
	Vector              VectorConfig  `yaml:"vector" koanf:"vector"`
	History             HistoryConfig `yaml:"history" koanf:"history"`
	Learner             LearnerConfig `yaml:"learner" koanf:"learner"`
	Server              ServerConfig  `yaml:"server" koanf:"server"`
	Log                 LogConfig     `yaml:"log" koanf:"log"`
}

// VectorConfig holds fact index settings.
type VectorConfig struct {
	Backend    VectorBackend `yaml:"backend" koanf:"backend"`
	Collection string        `yaml:"collection" koanf:"collection"`
	QdrantHost string        `yaml:"qdrant_host" koanf:"qdrant_host"`
	QdrantPort int           `yaml:"qdrant_port" koanf:"qdrant_port"`
	UseTLS     bool          `yaml:"use_tls" koanf:"use_tls"`
}

// HistoryConfig holds session history store settings. An empty DSN with the
// sqlite driver means a database file inside DataDir.
type HistoryConfig struct {
	Driver HistoryDriver `yaml:"driver" koanf:"driver"`
	DSN    string        `yaml:"dsn" koanf:"dsn"`
}

// LearnerConfig sizes the background fact-learning pool.
type LearnerConfig struct {
	Workers   int           `yaml:"workers" koanf:"workers"`
	QueueSize int           `yaml:"queue_size" koanf:"queue_size"`
	Timeout   time.Duration `yaml:"timeout" koanf:"timeout"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port           int      `yaml:"port" koanf:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" koanf:"allowed_origins"`
}

// LogConfig controls logger output.
type LogConfig struct {
	Debug  bool `yaml:"debug" koanf:"debug"`
	Pretty bool `yaml:"pretty" koanf:"pretty"`
}
