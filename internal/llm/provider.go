package llm

import "context"

// Provider defines the interface for LLM providers.
type Provider interface {
	// Complete sends a completion request and returns the response.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
	// Stream sends a completion request and returns the reply incrementally.
	Stream(ctx context.Context, req CompletionRequest) (Stream, error)
	// Name returns the name of this provider.
	Name() string
}

// Stream yields the fragments of a streamed completion in order.
// Recv returns io.EOF once the reply is complete. Callers must Close the
// stream, including after an error.
type Stream interface {
	Recv() (string, error)
	Close() error
}
