package vectordb

import (
	"context"
	"fmt"
	"sync"

	chromem "github.com/philippgille/chromem-go"

	"github.com/ziadkadry99/kisan-mitra/internal/embeddings"
)

// ChromemIndex implements Index using chromem-go, one collection per namespace.
// Records carry precomputed vectors; the embedder's function is attached to
// each collection only so chromem can embed text queries if asked.
type ChromemIndex struct {
	db        *chromem.DB
	embedFunc chromem.EmbeddingFunc
	dims      int

	mu sync.Mutex
}

// NewChromemIndex opens a chromem index persisted under dir. An empty dir
// keeps everything in memory.
func NewChromemIndex(dir string, embedder embeddings.Embedder) (*ChromemIndex, error) {
	var (
		db  *chromem.DB
		err error
	)
	if dir == "" {
		db = chromem.NewDB()
	} else {
		db, err = chromem.NewPersistentDB(dir, false)
		if err != nil {
			return nil, fmt.Errorf("open chromem db at %s: %w", dir, err)
		}
	}

	return &ChromemIndex{
		db:        db,
		embedFunc: embeddings.ToChromemFunc(embedder),
		dims:      embedder.Dimensions(),
	}, nil
}

func (s *ChromemIndex) collection(namespace string, create bool) (*chromem.Collection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !create {
		return s.db.GetCollection(namespace, s.embedFunc), nil
	}
	col, err := s.db.GetOrCreateCollection(namespace, nil, s.embedFunc)
	if err != nil {
		return nil, fmt.Errorf("create collection %q: %w", namespace, err)
	}
	return col, nil
}

func (s *ChromemIndex) Upsert(ctx context.Context, namespace string, records []Record) error {
	if len(records) == 0 {
		return nil
	}

	docs := make([]chromem.Document, len(records))
	for i, r := range records {
		if err := checkDims(s.dims, r.Vector); err != nil {
			return err
		}
		docs[i] = chromem.Document{
			ID:        r.ID,
			Metadata:  r.Metadata,
			Embedding: r.Vector,
		}
	}

	col, err := s.collection(namespace, true)
	if err != nil {
		return err
	}
	return col.AddDocuments(ctx, docs, 1)
}

func (s *ChromemIndex) Query(ctx context.Context, namespace string, vector []float32, topK int) ([]Match, error) {
	if err := checkDims(s.dims, vector); err != nil {
		return nil, err
	}
	if topK <= 0 {
		return nil, nil
	}

	col, err := s.collection(namespace, false)
	if err != nil || col == nil {
		return nil, err
	}

	// chromem-go requires nResults <= collection size.
	count := col.Count()
	if count == 0 {
		return nil, nil
	}
	topK = min(topK, count)

	results, err := col.QueryEmbedding(ctx, vector, topK, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem query: %w", err)
	}

	matches := make([]Match, len(results))
	for i, r := range results {
		matches[i] = Match{
			ID:       r.ID,
			Score:    r.Similarity,
			Metadata: r.Metadata,
		}
	}
	return matches, nil
}

func (s *ChromemIndex) Count(_ context.Context, namespace string) (int, error) {
	col, err := s.collection(namespace, false)
	if err != nil || col == nil {
		return 0, err
	}
	return col.Count(), nil
}

// Close is a no-op; persistent collections write through on every add.
func (s *ChromemIndex) Close() error {
	return nil
}
