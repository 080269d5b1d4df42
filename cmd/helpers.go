package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/ziadkadry99/kisan-mitra/internal/config"
	"github.com/ziadkadry99/kisan-mitra/internal/conversation"
	"github.com/ziadkadry99/kisan-mitra/internal/db"
	"github.com/ziadkadry99/kisan-mitra/internal/embeddings"
	"github.com/ziadkadry99/kisan-mitra/internal/history"
	"github.com/ziadkadry99/kisan-mitra/internal/llm"
	"github.com/ziadkadry99/kisan-mitra/internal/logging"
	"github.com/ziadkadry99/kisan-mitra/internal/memory"
	"github.com/ziadkadry99/kisan-mitra/internal/metrics"
	"github.com/ziadkadry99/kisan-mitra/internal/vectordb"
)

// loadConfig loads the dotenv file, the config file and the KISAN_ overlay,
// then validates the result.
func loadConfig() (*config.Config, error) {
	if err := config.LoadDotEnv(envFile); err != nil {
		return nil, fmt.Errorf("loading %s: %w", envFile, err)
	}
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w\nRun `kisan init` to create a config file", err)
	}
	if verbose {
		cfg.Log.Debug = true
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// newLogger builds the process logger and a context carrying it.
func newLogger(ctx context.Context, cfg *config.Config) (context.Context, zerolog.Logger, func()) {
	logger, closeLog := logging.New(logging.Options{
		Debug:  cfg.Log.Debug,
		Pretty: cfg.Log.Pretty,
	})
	return logging.WithLogger(ctx, logger), logger, closeLog
}

// createLLMProviderFromConfig creates the chat provider, rate limited when
// rate_limit_rpm is set.
func createLLMProviderFromConfig(cfg *config.Config) (llm.Provider, error) {
	p, err := llm.NewProvider(string(cfg.Provider), cfg.Model, cfg.OllamaHost)
	if err != nil {
		return nil, err
	}
	if cfg.RateLimitRPM > 0 {
		p = llm.NewRateLimitedProvider(p, cfg.RateLimitRPM)
	}
	return p, nil
}

// createEmbedderFromConfig creates the embedding model used for facts.
func createEmbedderFromConfig(cfg *config.Config) (embeddings.Embedder, error) {
	return embeddings.New(string(cfg.EmbeddingProvider), cfg.EmbeddingModel, cfg.EmbeddingDimensions, cfg.OllamaHost)
}

// openIndex opens the configured fact index backend.
func openIndex(ctx context.Context, cfg *config.Config, embedder embeddings.Embedder) (vectordb.Index, error) {
	switch cfg.Vector.Backend {
	case config.VectorQdrant:
		return vectordb.NewQdrantIndex(ctx, vectordb.QdrantOptions{
			Host:       cfg.Vector.QdrantHost,
			Port:       cfg.Vector.QdrantPort,
			APIKey:     os.Getenv(config.QdrantAPIKeyEnvVar),
			UseTLS:     cfg.Vector.UseTLS,
			Collection: cfg.Vector.Collection,
			Dimensions: embedder.Dimensions(),
		})
	default:
		return vectordb.NewChromemIndex(cfg.VectorDir(), embedder)
	}
}

// openHistory opens the history database and runs its migrations.
func openHistory(ctx context.Context, cfg *config.Config) (*db.DB, *history.Store, error) {
	database, err := db.Open(ctx, string(cfg.History.Driver), cfg.HistoryDSN())
	if err != nil {
		return nil, nil, fmt.Errorf("opening history store: %w", err)
	}
	return database, history.NewStore(database), nil
}

// openFactStore opens the embedder and index behind the fact store.
func openFactStore(ctx context.Context, cfg *config.Config) (*memory.FactStore, vectordb.Index, error) {
	embedder, err := createEmbedderFromConfig(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("creating embedder: %w", err)
	}
	index, err := openIndex(ctx, cfg, embedder)
	if err != nil {
		return nil, nil, fmt.Errorf("opening fact index: %w", err)
	}
	return memory.NewFactStore(embedder, index), index, nil
}

// stack is every component a conversation needs.
type stack struct {
	db      *db.DB
	index   vectordb.Index
	history *history.Store
	facts   *memory.FactStore
	metrics *metrics.Metrics
	learner *conversation.Learner
	engine  *conversation.Engine
}

// buildStack wires the conversation engine from config. Close must be called
// to drain pending learning jobs.
func buildStack(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*stack, error) {
	provider, err := createLLMProviderFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("creating LLM provider: %w", err)
	}

	facts, index, err := openFactStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	database, hist, err := openHistory(ctx, cfg)
	if err != nil {
		index.Close()
		return nil, err
	}

	m := metrics.New()
	cache := memory.NewFactCache()
	learner := conversation.NewLearner(conversation.LearnerConfig{
		Extractor: memory.NewExtractor(provider, cfg.ExtractionModel()),
		Facts:     facts,
		Cache:     cache,
		Metrics:   m,
		Workers:   cfg.Learner.Workers,
		QueueSize: cfg.Learner.QueueSize,
		Timeout:   cfg.Learner.Timeout,
		Logger:    logger,
	})

	engine := conversation.NewEngine(provider, facts, hist, cache, learner, m, conversation.Options{
		Model:               cfg.Model,
		Temperature:         cfg.Temperature,
		FactLimit:           cfg.FactLimit,
		MaxHistoryMessages:  cfg.MaxHistoryMessages,
		StrictSessionPrefix: cfg.StrictSessionPrefix,
	})

	return &stack{
		db:      database,
		index:   index,
		history: hist,
		facts:   facts,
		metrics: m,
		learner: learner,
		engine:  engine,
	}, nil
}

// Close drains the learner, then closes the stores it writes to.
func (s *stack) Close() {
	s.learner.Close()
	s.index.Close()
	s.db.Close()
}
