package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/manifoldco/promptui"
)

// DefaultPath is the config file written by the wizard and read by the CLI.
const DefaultPath = ".kisan.yml"

// RunWizard runs an interactive configuration wizard and returns the
// resulting Config. It also saves the config to .kisan.yml.
func RunWizard() (*Config, error) {
	fmt.Println("Welcome to kisan! Let's configure the farmer assistant.")
	fmt.Println()

	// 1. Chat provider.
	providerPrompt := promptui.Select{
		Label: "Select LLM provider",
		Items: []string{"openai", "openrouter", "ollama"},
	}
	_, providerStr, err := providerPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("provider selection: %w", err)
	}
	provider := ProviderType(providerStr)
	preset := GetPreset(provider)

	modelPrompt := promptui.Prompt{
		Label:   "Chat model",
		Default: preset.Model,
	}
	model, err := modelPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("model: %w", err)
	}

	// 2. Fact index backend.
	vectorPrompt := promptui.Select{
		Label: "Select fact index",
		Items: []string{
			"chromem - embedded, persisted under the data directory",
			"qdrant  - external Qdrant server",
		},
	}
	vectorIdx, _, err := vectorPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("vector backend selection: %w", err)
	}
	backends := []VectorBackend{VectorChromem, VectorQdrant}

	// 3. Data directory.
	dataPrompt := promptui.Prompt{
		Label:   "Data directory",
		Default: "data",
	}
	dataDir, err := dataPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("data dir: %w", err)
	}

	// 4. Port.
	portPrompt := promptui.Prompt{
		Label:   "HTTP port",
		Default: "8000",
		Validate: func(s string) error {
			n, err := strconv.Atoi(s)
			if err != nil || n <= 0 || n > 65535 {
				return fmt.Errorf("invalid port")
			}
			return nil
		},
	}
	portStr, err := portPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("port: %w", err)
	}
	port, _ := strconv.Atoi(portStr)

	// 5. CORS origins.
	originsPrompt := promptui.Prompt{
		Label:   "Allowed origins (comma-separated)",
		Default: "*",
	}
	originsStr, err := originsPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("allowed origins: %w", err)
	}

	cfg := DefaultConfig()
	cfg.Provider = provider
	cfg.Model = model
	cfg.EmbeddingProvider = embeddingProviderFor(provider)
	cfg.EmbeddingModel = GetPreset(cfg.EmbeddingProvider).EmbeddingModel
	cfg.DataDir = dataDir
	cfg.Vector.Backend = backends[vectorIdx]
	cfg.Server.Port = port
	if origins := splitAndTrim(originsStr); len(origins) > 0 {
		cfg.Server.AllowedOrigins = origins
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	for _, p := range []ProviderType{cfg.Provider, cfg.EmbeddingProvider} {
		if envVar := APIKeyEnvVar(p); envVar != "" && os.Getenv(envVar) == "" {
			fmt.Printf("\nNote: Set %s in your environment or .env before running kisan server.\n", envVar)
			break
		}
	}

	if err := cfg.Save(DefaultPath); err != nil {
		return nil, fmt.Errorf("saving config: %w", err)
	}

	fmt.Printf("\nConfiguration saved to %s\n", DefaultPath)
	return cfg, nil
}

// embeddingProviderFor returns the default embedding provider for a given
// chat provider. OpenRouter has no embeddings endpoint, so it pairs with OpenAI.
func embeddingProviderFor(p ProviderType) ProviderType {
	if p == ProviderOllama {
		return ProviderOllama
	}
	return ProviderOpenAI
}

// splitAndTrim splits a comma-separated string and drops empty entries.
func splitAndTrim(s string) []string {
	var result []string
	for _, part := range strings.Split(s, ",") {
		if token := strings.TrimSpace(part); token != "" {
			result = append(result, token)
		}
	}
	return result
}
