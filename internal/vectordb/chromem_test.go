package vectordb

import (
	"context"
	"math"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockEmbedder returns deterministic embeddings based on text content.
// Similar texts produce similar vectors because shared characters contribute
// to the same positions in the vector.
type mockEmbedder struct {
	dims int
}

func newMockEmbedder(dims int) *mockEmbedder {
	return &mockEmbedder{dims: dims}
}

func (m *mockEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))
	for i, text := range texts {
		results[i] = m.vector(text)
	}
	return results, nil
}

func (m *mockEmbedder) Dimensions() int { return m.dims }
func (m *mockEmbedder) Name() string    { return "mock" }

func (m *mockEmbedder) vector(text string) []float32 {
	vec := make([]float32, m.dims)
	for i, ch := range text {
		idx := (int(ch) + i) % m.dims
		vec[idx] += 1.0
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v * v)
	}
	norm = math.Sqrt(norm)
	if norm > 0 {
		for i := range vec {
			vec[i] = float32(float64(vec[i]) / norm)
		}
	}
	return vec
}

func record(e *mockEmbedder, id, text string) Record {
	return Record{ID: id, Vector: e.vector(text), Metadata: map[string]string{"fact": text}}
}

func TestChromemIndex_UpsertAndQuery(t *testing.T) {
	ctx := context.Background()
	emb := newMockEmbedder(64)

	idx, err := NewChromemIndex("", emb)
	require.NoError(t, err)
	defer idx.Close()

	require.NoError(t, idx.Upsert(ctx, "farmer1", []Record{
		record(emb, "farmer1__a", "Grows wheat on 5 acres in Punjab"),
		record(emb, "farmer1__b", "Uses drip irrigation"),
		record(emb, "farmer1__c", "Harvests rice in October"),
	}))

	n, err := idx.Count(ctx, "farmer1")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	matches, err := idx.Query(ctx, "farmer1", emb.vector("Grows wheat on 5 acres in Punjab"), 2)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "farmer1__a", matches[0].ID)
	assert.Equal(t, "Grows wheat on 5 acres in Punjab", matches[0].Metadata["fact"])
	assert.GreaterOrEqual(t, matches[0].Score, matches[1].Score)
}

func TestChromemIndex_NamespacesAreIsolated(t *testing.T) {
	ctx := context.Background()
	emb := newMockEmbedder(32)

	idx, err := NewChromemIndex("", emb)
	require.NoError(t, err)

	require.NoError(t, idx.Upsert(ctx, "farmer1", []Record{record(emb, "farmer1__a", "Grows cotton")}))
	require.NoError(t, idx.Upsert(ctx, "farmer2", []Record{record(emb, "farmer2__a", "Grows sugarcane")}))

	matches, err := idx.Query(ctx, "farmer2", emb.vector("Grows cotton"), 8)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "farmer2__a", matches[0].ID)
}

func TestChromemIndex_EmptyNamespace(t *testing.T) {
	ctx := context.Background()
	emb := newMockEmbedder(16)

	idx, err := NewChromemIndex("", emb)
	require.NoError(t, err)

	matches, err := idx.Query(ctx, "nobody", emb.vector("anything"), 8)
	require.NoError(t, err)
	assert.Empty(t, matches)

	n, err := idx.Count(ctx, "nobody")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestChromemIndex_TopKClampedToCount(t *testing.T) {
	ctx := context.Background()
	emb := newMockEmbedder(16)

	idx, err := NewChromemIndex("", emb)
	require.NoError(t, err)
	require.NoError(t, idx.Upsert(ctx, "farmer1", []Record{record(emb, "farmer1__a", "Owns a tractor")}))

	matches, err := idx.Query(ctx, "farmer1", emb.vector("tractor"), 8)
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

func TestChromemIndex_UpsertReplacesByID(t *testing.T) {
	ctx := context.Background()
	emb := newMockEmbedder(16)

	idx, err := NewChromemIndex("", emb)
	require.NoError(t, err)
	require.NoError(t, idx.Upsert(ctx, "farmer1", []Record{record(emb, "farmer1__a", "Soil is sandy")}))
	require.NoError(t, idx.Upsert(ctx, "farmer1", []Record{record(emb, "farmer1__a", "Soil is clay")}))

	n, err := idx.Count(ctx, "farmer1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestChromemIndex_DimensionMismatch(t *testing.T) {
	ctx := context.Background()
	idx, err := NewChromemIndex("", newMockEmbedder(16))
	require.NoError(t, err)

	err = idx.Upsert(ctx, "farmer1", []Record{{ID: "x", Vector: []float32{1, 0, 0}}})
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	_, err = idx.Query(ctx, "farmer1", []float32{1, 0}, 1)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestChromemIndex_Persists(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	emb := newMockEmbedder(16)

	idx, err := NewChromemIndex(dir, emb)
	require.NoError(t, err)
	require.NoError(t, idx.Upsert(ctx, "farmer1", []Record{record(emb, "farmer1__a", "Sells at the mandi")}))
	require.NoError(t, idx.Close())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.NotEmpty(t, entries)

	reopened, err := NewChromemIndex(dir, emb)
	require.NoError(t, err)
	matches, err := reopened.Query(ctx, "farmer1", emb.vector("mandi"), 8)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "Sells at the mandi", matches[0].Metadata["fact"])
}
