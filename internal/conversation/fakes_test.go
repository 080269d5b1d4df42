package conversation

import (
	"context"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ziadkadry99/kisan-mitra/internal/db"
	"github.com/ziadkadry99/kisan-mitra/internal/history"
	"github.com/ziadkadry99/kisan-mitra/internal/llm"
	"github.com/ziadkadry99/kisan-mitra/internal/memory"
	"github.com/ziadkadry99/kisan-mitra/internal/metrics"
)

// echoProvider answers "echo: <last user message>", streaming word by word.
type echoProvider struct {
	mu       sync.Mutex
	requests []llm.CompletionRequest
	err      error
}

func (p *echoProvider) Name() string { return "echo" }

func (p *echoProvider) reply(req llm.CompletionRequest) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, req)
	if p.err != nil {
		return "", p.err
	}
	return "echo: " + req.Messages[len(req.Messages)-1].Content, nil
}

func (p *echoProvider) Complete(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	text, err := p.reply(req)
	if err != nil {
		return nil, err
	}
	return &llm.CompletionResponse{Content: text}, nil
}

func (p *echoProvider) Stream(_ context.Context, req llm.CompletionRequest) (llm.Stream, error) {
	text, err := p.reply(req)
	if err != nil {
		return nil, err
	}
	return &sliceStream{parts: strings.SplitAfter(text, " ")}, nil
}

func (p *echoProvider) lastRequest() llm.CompletionRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.requests[len(p.requests)-1]
}

type sliceStream struct {
	parts []string
}

func (s *sliceStream) Recv() (string, error) {
	if len(s.parts) == 0 {
		return "", io.EOF
	}
	part := s.parts[0]
	s.parts = s.parts[1:]
	return part, nil
}

func (s *sliceStream) Close() error { return nil }

type fakeFacts struct {
	mu       sync.Mutex
	byUser   map[string][]string
	getCalls atomic.Int32
	getErr   error
	addErr   error
}

func newFakeFacts() *fakeFacts {
	return &fakeFacts{byUser: make(map[string][]string)}
}

func (f *fakeFacts) GetFacts(_ context.Context, userID string, limit int) ([]string, error) {
	f.getCalls.Add(1)
	if f.getErr != nil {
		return nil, &memory.StoreReadError{Store: "fact store", Err: f.getErr}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	facts := f.byUser[userID]
	if len(facts) > limit {
		facts = facts[:limit]
	}
	return append([]string(nil), facts...), nil
}

func (f *fakeFacts) AddFact(_ context.Context, userID, text string) error {
	if f.addErr != nil {
		return &memory.StoreWriteError{Store: "fact store", Err: f.addErr}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byUser[userID] = append(f.byUser[userID], text)
	return nil
}

func (f *fakeFacts) stored(userID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.byUser[userID]...)
}

// extractorFunc adapts a function to FactExtractor.
type extractorFunc func(ctx context.Context, exchange string) (string, bool)

func (f extractorFunc) Extract(ctx context.Context, exchange string) (string, bool) {
	return f(ctx, exchange)
}

// wheatExtractor learns a crop fact when the farmer mentions wheat.
func wheatExtractor(calls *atomic.Int32) FactExtractor {
	return extractorFunc(func(_ context.Context, exchange string) (string, bool) {
		calls.Add(1)
		farmer, _, _ := strings.Cut(exchange, "\nAssistant: ")
		if strings.Contains(farmer, "wheat") {
			return "Crop: wheat", true
		}
		return "", false
	})
}

// brokenWrites is a history store whose writes always fail.
type brokenWrites struct {
	*history.Store
	err error
}

func (b brokenWrites) AppendExchange(context.Context, string, string, string) error {
	return &memory.StoreWriteError{Store: "history store", Err: b.err}
}

type harness struct {
	engine   *Engine
	provider *echoProvider
	facts    *fakeFacts
	history  *history.Store
	cache    *memory.FactCache
	learner  *Learner
	metrics  *metrics.Metrics
	extracts atomic.Int32
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	d, err := db.OpenMemory(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })

	h := &harness{
		provider: &echoProvider{},
		facts:    newFakeFacts(),
		history:  history.NewStore(d),
		cache:    memory.NewFactCache(),
		metrics:  metrics.New(),
	}
	h.learner = NewLearner(LearnerConfig{
		Extractor: wheatExtractor(&h.extracts),
		Facts:     h.facts,
		Cache:     h.cache,
		Metrics:   h.metrics,
		Workers:   2,
		QueueSize: 64,
	})
	t.Cleanup(h.learner.Close)

	h.engine = NewEngine(h.provider, h.facts, h.history, h.cache, h.learner, h.metrics, opts)
	return h
}

func collect(fragments *[]string) Sink {
	return func(fragment string) error {
		*fragments = append(*fragments, fragment)
		return nil
	}
}
