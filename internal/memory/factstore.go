// Package memory holds the long-term fact memory of each farmer: the vector
// backed fact store, the fact extractor and the per-session fact cache.
package memory

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ziadkadry99/kisan-mitra/internal/embeddings"
	"github.com/ziadkadry99/kisan-mitra/internal/retry"
	"github.com/ziadkadry99/kisan-mitra/internal/vectordb"
)

const (
	// CanonicalFactQuery is embedded to rank a farmer's facts for a prompt.
	CanonicalFactQuery = "important facts about farmer"
	// DefaultFactLimit is how many facts a fresh session starts with.
	DefaultFactLimit = 8

	metaFact      = "fact"
	metaTimestamp = "ts"
	factStoreName = "fact store"
)

// Fact is one stored statement about a farmer.
type Fact struct {
	ID        string
	Text      string
	CreatedAt time.Time
	Score     float32
}

// FactStore stores and retrieves facts per user, namespaced by user id in the
// vector index.
type FactStore struct {
	embedder embeddings.Embedder
	index    vectordb.Index
	retrier  *retry.Retrier
	now      func() time.Time

	queryMu  sync.Mutex
	queryVec []float32
}

// NewFactStore creates a FactStore. Index calls are retried with backoff
// unless the failure is a dimension mismatch or a cancelled context.
func NewFactStore(embedder embeddings.Embedder, index vectordb.Index) *FactStore {
	cfg := retry.NewDefaultConfig()
	cfg.Retryable = isTransient
	return &FactStore{
		embedder: embedder,
		index:    index,
		retrier:  retry.NewRetrier(cfg),
		now:      time.Now,
	}
}

func isTransient(err error) bool {
	return !errors.Is(err, vectordb.ErrDimensionMismatch) &&
		!errors.Is(err, context.Canceled) &&
		!errors.Is(err, context.DeadlineExceeded)
}

// NewFactID returns a fresh fact id scoped to userID.
func NewFactID(userID string) string {
	return userID + "__" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// AddFact embeds text and upserts it under the user's namespace.
func (s *FactStore) AddFact(ctx context.Context, userID, text string) error {
	vec, err := embeddings.EmbedOne(ctx, s.embedder, text)
	if err != nil {
		return &StoreWriteError{Store: factStoreName, Err: &ModelCallError{Op: "embed fact", Err: err}}
	}

	rec := vectordb.Record{
		ID:     NewFactID(userID),
		Vector: vec,
		Metadata: map[string]string{
			metaFact:      text,
			metaTimestamp: strconv.FormatInt(s.now().Unix(), 10),
		},
	}

	err = s.retrier.Do(ctx, func(ctx context.Context) error {
		return s.index.Upsert(ctx, userID, []vectordb.Record{rec})
	})
	if err != nil {
		return &StoreWriteError{Store: factStoreName, Err: err}
	}
	return nil
}

// GetFacts returns up to limit fact texts for userID, ranked by similarity to
// CanonicalFactQuery. The result is a ranked subset when the user has more
// than limit facts. A user without facts yields an empty slice.
func (s *FactStore) GetFacts(ctx context.Context, userID string, limit int) ([]string, error) {
	facts, err := s.ListFacts(ctx, userID, limit)
	if err != nil {
		return nil, err
	}
	texts := make([]string, len(facts))
	for i, f := range facts {
		texts[i] = f.Text
	}
	return texts, nil
}

// ListFacts is GetFacts with ids, timestamps and scores.
func (s *FactStore) ListFacts(ctx context.Context, userID string, limit int) ([]Fact, error) {
	if limit <= 0 {
		limit = DefaultFactLimit
	}

	vec, err := s.canonicalVector(ctx)
	if err != nil {
		return nil, &StoreReadError{Store: factStoreName, Err: &ModelCallError{Op: "embed query", Err: err}}
	}

	var matches []vectordb.Match
	err = s.retrier.Do(ctx, func(ctx context.Context) error {
		var qerr error
		matches, qerr = s.index.Query(ctx, userID, vec, limit)
		return qerr
	})
	if err != nil {
		return nil, &StoreReadError{Store: factStoreName, Err: err}
	}

	facts := make([]Fact, 0, len(matches))
	for _, m := range matches {
		text := m.Metadata[metaFact]
		if text == "" {
			continue
		}
		f := Fact{ID: m.ID, Text: text, Score: m.Score}
		if ts, err := strconv.ParseInt(m.Metadata[metaTimestamp], 10, 64); err == nil {
			f.CreatedAt = time.Unix(ts, 0)
		}
		facts = append(facts, f)
	}
	return facts, nil
}

// Count returns how many facts are stored for userID.
func (s *FactStore) Count(ctx context.Context, userID string) (int, error) {
	n, err := s.index.Count(ctx, userID)
	if err != nil {
		return 0, &StoreReadError{Store: factStoreName, Err: err}
	}
	return n, nil
}

// canonicalVector embeds CanonicalFactQuery once and reuses the vector.
func (s *FactStore) canonicalVector(ctx context.Context) ([]float32, error) {
	s.queryMu.Lock()
	defer s.queryMu.Unlock()

	if s.queryVec != nil {
		return s.queryVec, nil
	}
	vec, err := embeddings.EmbedOne(ctx, s.embedder, CanonicalFactQuery)
	if err != nil {
		return nil, fmt.Errorf("embedding canonical query: %w", err)
	}
	s.queryVec = vec
	return vec, nil
}
