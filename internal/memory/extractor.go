package memory

import (
	"context"
	"errors"
	"strings"

	"github.com/ziadkadry99/kisan-mitra/internal/llm"
	"github.com/ziadkadry99/kisan-mitra/internal/logging"
)

// NoFact is the sentinel the extractor model answers with when an exchange
// holds nothing new.
const NoFact = "NONE"

const extractorPrompt = `You are a fact extractor specialized for farmers. Read the conversation snippet and extract only **one concise fact** about the farmer that should be stored in long-term memory. Output 'NONE' if there is no new fact. Facts must be short, deterministic, and in plain text. Focus on information that can help improve the farmer's revenue and farm management. Categories of facts to capture include (but are not limited to):
- Farmer's name
- Farm size and location
- Crop types and varieties
- Current season and planting schedule
- Recent harvest or yield
- Pest or disease issues
- Soil type or irrigation methods
- Machinery or resources available
- Market preferences or crop selling strategy
- Any goals or plans to increase revenue
Example outputs:
- Name: Ravi
- Farm size: 2 acres, Uttar Pradesh
- Crop: wheat
- Crop: rice
- Pest issue: locusts in wheat field
- Goal: increase tomato yield
Always output **only one fact per snippet**. Do not combine multiple facts.`

var errEmptyCompletion = errors.New("empty completion")

// Extractor asks the completion model for at most one new fact per exchange.
type Extractor struct {
	provider llm.Provider
	model    string
}

// NewExtractor creates an Extractor. An empty model uses the provider default.
func NewExtractor(provider llm.Provider, model string) *Extractor {
	return &Extractor{provider: provider, model: model}
}

// FormatExchange renders one turn as the snippet the extractor reads.
func FormatExchange(input, reply string) string {
	return "Farmer: " + input + "\nAssistant: " + reply
}

// Extract returns the fact found in exchange. ok is false when the model
// answered NONE, answered nothing, or failed; failures are logged and never
// returned.
func (e *Extractor) Extract(ctx context.Context, exchange string) (fact string, ok bool) {
	resp, err := e.provider.Complete(ctx, llm.CompletionRequest{
		Model:       e.model,
		Temperature: 0,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: extractorPrompt},
			{Role: llm.RoleUser, Content: exchange},
		},
	})
	if err != nil {
		e.warn(ctx, &ExtractionError{Err: &ModelCallError{Op: "extract fact", Err: err}})
		return "", false
	}
	if resp == nil {
		e.warn(ctx, &ExtractionError{Err: errEmptyCompletion})
		return "", false
	}

	text := strings.TrimSpace(resp.Content)
	if text == "" || strings.EqualFold(text, NoFact) {
		return "", false
	}
	return text, true
}

func (e *Extractor) warn(ctx context.Context, err error) {
	logger := logging.Component(ctx, "extractor")
	logger.Warn().Err(err).Msg("fact extraction skipped")
}
