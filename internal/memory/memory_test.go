package memory

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ziadkadry99/kisan-mitra/internal/llm"
	"github.com/ziadkadry99/kisan-mitra/internal/retry"
	"github.com/ziadkadry99/kisan-mitra/internal/vectordb"
)

// hashEmbedder maps each text to a deterministic unit-ish vector and counts
// calls per text.
type hashEmbedder struct {
	dims  int
	err   error
	mu    sync.Mutex
	calls map[string]int
}

func newHashEmbedder(dims int) *hashEmbedder {
	return &hashEmbedder{dims: dims, calls: make(map[string]int)}
}

func (h *hashEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.err != nil {
		return nil, h.err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		h.calls[text]++
		vec := make([]float32, h.dims)
		for j, w := range strings.Fields(text) {
			f := fnv.New32a()
			f.Write([]byte(strings.ToLower(w)))
			vec[int(f.Sum32())%h.dims] += 1 + float32(j%2)
		}
		vec[0] += 0.01
		out[i] = vec
	}
	return out, nil
}

func (h *hashEmbedder) Dimensions() int { return h.dims }
func (h *hashEmbedder) Name() string    { return "hash" }

func (h *hashEmbedder) callsFor(text string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls[text]
}

// flakyIndex fails the first failures calls with err, then delegates.
type flakyIndex struct {
	vectordb.Index
	err      error
	failures int32
	calls    atomic.Int32
}

func (f *flakyIndex) Upsert(ctx context.Context, ns string, recs []vectordb.Record) error {
	if f.calls.Add(1) <= f.failures {
		return f.err
	}
	return f.Index.Upsert(ctx, ns, recs)
}

func (f *flakyIndex) Query(ctx context.Context, ns string, vec []float32, k int) ([]vectordb.Match, error) {
	if f.calls.Add(1) <= f.failures {
		return nil, f.err
	}
	return f.Index.Query(ctx, ns, vec, k)
}

func newTestStore(t *testing.T, idx vectordb.Index, emb *hashEmbedder) *FactStore {
	t.Helper()
	s := NewFactStore(emb, idx)
	cfg := &retry.Config{MaxRetries: 2, BackoffFactor: 1, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Retryable: isTransient}
	s.retrier = retry.NewRetrier(cfg)
	return s
}

func memIndex(t *testing.T, emb *hashEmbedder) vectordb.Index {
	t.Helper()
	idx, err := vectordb.NewChromemIndex("", emb)
	require.NoError(t, err)
	return idx
}

func TestFactStore_AddAndGet(t *testing.T) {
	ctx := context.Background()
	emb := newHashEmbedder(32)
	store := newTestStore(t, memIndex(t, emb), emb)
	store.now = func() time.Time { return time.Unix(1700000000, 0) }

	require.NoError(t, store.AddFact(ctx, "user1", "Crop: wheat"))

	facts, err := store.GetFacts(ctx, "user1", 8)
	require.NoError(t, err)
	assert.Equal(t, []string{"Crop: wheat"}, facts)

	listed, err := store.ListFacts(ctx, "user1", 0)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.True(t, strings.HasPrefix(listed[0].ID, "user1__"))
	assert.Len(t, strings.TrimPrefix(listed[0].ID, "user1__"), 32)
	assert.Equal(t, int64(1700000000), listed[0].CreatedAt.Unix())
}

func TestFactStore_EmptyNamespace(t *testing.T) {
	emb := newHashEmbedder(32)
	store := newTestStore(t, memIndex(t, emb), emb)

	facts, err := store.GetFacts(context.Background(), "nobody", 8)
	require.NoError(t, err)
	assert.Empty(t, facts)
}

func TestFactStore_LimitAndIsolation(t *testing.T) {
	ctx := context.Background()
	emb := newHashEmbedder(64)
	store := newTestStore(t, memIndex(t, emb), emb)

	for i := 0; i < 10; i++ {
		require.NoError(t, store.AddFact(ctx, "user1", fmt.Sprintf("Field %d grows millet", i)))
	}
	require.NoError(t, store.AddFact(ctx, "user2", "Grows cotton"))

	facts, err := store.GetFacts(ctx, "user1", 8)
	require.NoError(t, err)
	assert.Len(t, facts, 8)
	assert.NotContains(t, facts, "Grows cotton")

	n, err := store.Count(ctx, "user1")
	require.NoError(t, err)
	assert.Equal(t, 10, n)
}

func TestFactStore_CanonicalQueryEmbeddedOnce(t *testing.T) {
	ctx := context.Background()
	emb := newHashEmbedder(32)
	store := newTestStore(t, memIndex(t, emb), emb)

	for i := 0; i < 3; i++ {
		_, err := store.GetFacts(ctx, "user1", 8)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, emb.callsFor(CanonicalFactQuery))
}

func TestFactStore_EmbeddingFailure(t *testing.T) {
	ctx := context.Background()
	emb := newHashEmbedder(32)
	store := newTestStore(t, memIndex(t, emb), emb)
	emb.err = errors.New("rate limited")

	err := store.AddFact(ctx, "user1", "Crop: rice")
	var writeErr *StoreWriteError
	require.ErrorAs(t, err, &writeErr)
	var modelErr *ModelCallError
	assert.ErrorAs(t, err, &modelErr)

	_, err = store.GetFacts(ctx, "user1", 8)
	var readErr *StoreReadError
	require.ErrorAs(t, err, &readErr)
	assert.ErrorAs(t, err, &modelErr)
}

func TestFactStore_RetriesTransientIndexErrors(t *testing.T) {
	ctx := context.Background()
	emb := newHashEmbedder(32)
	idx := &flakyIndex{Index: memIndex(t, emb), err: vectordb.ErrConnection, failures: 2}
	store := newTestStore(t, idx, emb)

	require.NoError(t, store.AddFact(ctx, "user1", "Owns a tractor"))
	assert.Equal(t, int32(3), idx.calls.Load())
}

func TestFactStore_ReadFailureAfterRetries(t *testing.T) {
	ctx := context.Background()
	emb := newHashEmbedder(32)
	idx := &flakyIndex{Index: memIndex(t, emb), err: vectordb.ErrConnection, failures: 100}
	store := newTestStore(t, idx, emb)

	_, err := store.GetFacts(ctx, "user1", 8)
	var readErr *StoreReadError
	require.ErrorAs(t, err, &readErr)
	assert.ErrorIs(t, err, vectordb.ErrConnection)
	assert.Equal(t, int32(3), idx.calls.Load())
}

func TestFactStore_DimensionMismatchNotRetried(t *testing.T) {
	ctx := context.Background()
	emb := newHashEmbedder(32)
	idx := &flakyIndex{Index: memIndex(t, emb), err: vectordb.ErrDimensionMismatch, failures: 100}
	store := newTestStore(t, idx, emb)

	err := store.AddFact(ctx, "user1", "Soil: black cotton soil")
	assert.ErrorIs(t, err, vectordb.ErrDimensionMismatch)
	assert.Equal(t, int32(1), idx.calls.Load())
}

// scriptedProvider answers every Complete with reply or err.
type scriptedProvider struct {
	reply string
	err   error
	mu    sync.Mutex
	reqs  []llm.CompletionRequest
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) Complete(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	p.reqs = append(p.reqs, req)
	p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	return &llm.CompletionResponse{Content: p.reply}, nil
}

func (p *scriptedProvider) Stream(context.Context, llm.CompletionRequest) (llm.Stream, error) {
	return nil, errors.New("not used")
}

func TestExtractor(t *testing.T) {
	exchange := FormatExchange("I grow wheat on 2 acres", "Noted.")
	assert.Equal(t, "Farmer: I grow wheat on 2 acres\nAssistant: Noted.", exchange)

	tests := []struct {
		name   string
		reply  string
		err    error
		want   string
		wantOK bool
	}{
		{"fact", "Crop: wheat", nil, "Crop: wheat", true},
		{"fact with whitespace", "  Farm size: 2 acres\n", nil, "Farm size: 2 acres", true},
		{"sentinel", "NONE", nil, "", false},
		{"sentinel lowercase", " none \n", nil, "", false},
		{"empty", "   ", nil, "", false},
		{"model failure", "", errors.New("503 from upstream"), "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &scriptedProvider{reply: tt.reply, err: tt.err}
			fact, ok := NewExtractor(p, "gpt-4o-mini").Extract(context.Background(), exchange)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, fact)

			require.Len(t, p.reqs, 1)
			req := p.reqs[0]
			assert.Equal(t, "gpt-4o-mini", req.Model)
			assert.Zero(t, req.Temperature)
			require.Len(t, req.Messages, 2)
			assert.Equal(t, llm.RoleSystem, req.Messages[0].Role)
			assert.Contains(t, req.Messages[0].Content, "Output 'NONE' if there is no new fact.")
			assert.Equal(t, exchange, req.Messages[1].Content)
		})
	}
}

func TestFactCache(t *testing.T) {
	c := NewFactCache()

	_, ok := c.Get("user1_s1")
	assert.False(t, ok)
	assert.False(t, c.Add("user1_s1", "Crop: wheat"), "add without entry")

	got := c.Seed("user1_s1", []string{"Crop: wheat", "Name: Ravi", "Crop: wheat"})
	assert.Equal(t, []string{"Crop: wheat", "Name: Ravi"}, got)

	// A second seed keeps the first set.
	got = c.Seed("user1_s1", []string{"Crop: rice"})
	assert.Equal(t, []string{"Crop: wheat", "Name: Ravi"}, got)

	assert.True(t, c.Add("user1_s1", "Goal: increase tomato yield"))
	facts, ok := c.Get("user1_s1")
	require.True(t, ok)
	assert.Equal(t, []string{"Crop: wheat", "Goal: increase tomato yield", "Name: Ravi"}, facts)

	// Empty seeds still create an entry.
	assert.Empty(t, c.Seed("user1_s2", nil))
	_, ok = c.Get("user1_s2")
	assert.True(t, ok)
	assert.Equal(t, 2, c.Len())
}

func TestFactCacheConcurrentAdd(t *testing.T) {
	c := NewFactCache()
	c.Seed("user1_s1", nil)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c.Add("user1_s1", fmt.Sprintf("fact %02d", i))
		}(i)
	}
	wg.Wait()

	facts, _ := c.Get("user1_s1")
	assert.Len(t, facts, 50)
}
