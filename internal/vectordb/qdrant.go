package vectordb

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	namespaceField = "namespace"
	recordIDField  = "record_id"
)

// QdrantOptions configures a QdrantIndex.
type QdrantOptions struct {
	Host       string
	Port       int
	APIKey     string
	UseTLS     bool
	Collection string
	Dimensions int
}

// QdrantIndex implements Index on a single Qdrant collection. Namespaces are
// a keyword payload field filtered on every query.
type QdrantIndex struct {
	client     *qdrant.Client
	collection string
	dims       int
}

// NewQdrantIndex connects to Qdrant and creates the collection (cosine
// distance) and its namespace payload index if they do not exist yet.
func NewQdrantIndex(ctx context.Context, opts QdrantOptions) (*QdrantIndex, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   opts.Host,
		Port:   opts.Port,
		APIKey: opts.APIKey,
		UseTLS: opts.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnection, err)
	}

	idx := &QdrantIndex{
		client:     client,
		collection: opts.Collection,
		dims:       opts.Dimensions,
	}
	if err := idx.ensureCollection(ctx); err != nil {
		client.Close()
		return nil, err
	}
	return idx, nil
}

func (q *QdrantIndex) ensureCollection(ctx context.Context) error {
	exists, err := q.client.CollectionExists(ctx, q.collection)
	if err != nil {
		return mapQdrantError("check collection", err)
	}
	if exists {
		return nil
	}

	err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(q.dims),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return mapQdrantError("create collection", err)
	}

	_, err = q.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
		CollectionName: q.collection,
		FieldName:      namespaceField,
		FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		return mapQdrantError("create namespace index", err)
	}
	return nil
}

func (q *QdrantIndex) Upsert(ctx context.Context, namespace string, records []Record) error {
	if len(records) == 0 {
		return nil
	}

	points := make([]*qdrant.PointStruct, len(records))
	for i, r := range records {
		if err := checkDims(q.dims, r.Vector); err != nil {
			return err
		}
		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewID(pointID(namespace, r.ID)),
			Vectors: qdrant.NewVectorsDense(r.Vector),
			Payload: qdrant.NewValueMap(toPayload(namespace, r)),
		}
	}

	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collection,
		Wait:           qdrant.PtrOf(true),
		Points:         points,
	})
	if err != nil {
		return mapQdrantError("upsert", err)
	}
	return nil
}

func (q *QdrantIndex) Query(ctx context.Context, namespace string, vector []float32, topK int) ([]Match, error) {
	if err := checkDims(q.dims, vector); err != nil {
		return nil, err
	}
	if topK <= 0 {
		return nil, nil
	}

	points, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collection,
		Query:          qdrant.NewQueryDense(vector),
		Filter:         namespaceFilter(namespace),
		Limit:          qdrant.PtrOf(uint64(topK)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, mapQdrantError("query", err)
	}

	matches := make([]Match, 0, len(points))
	for _, p := range points {
		id, meta := fromPayload(p.GetPayload())
		matches = append(matches, Match{ID: id, Score: p.GetScore(), Metadata: meta})
	}
	return matches, nil
}

func (q *QdrantIndex) Count(ctx context.Context, namespace string) (int, error) {
	n, err := q.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: q.collection,
		Filter:         namespaceFilter(namespace),
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, mapQdrantError("count", err)
	}
	return int(n), nil
}

func (q *QdrantIndex) Close() error {
	return q.client.Close()
}

// pointID derives a stable UUID for a record, since Qdrant only accepts
// unsigned integers or UUIDs as point ids.
func pointID(namespace, id string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(namespace+"/"+id)).String()
}

func namespaceFilter(namespace string) *qdrant.Filter {
	return &qdrant.Filter{
		Must: []*qdrant.Condition{qdrant.NewMatchKeyword(namespaceField, namespace)},
	}
}

func toPayload(namespace string, r Record) map[string]any {
	payload := make(map[string]any, len(r.Metadata)+2)
	for k, v := range r.Metadata {
		payload[k] = v
	}
	payload[namespaceField] = namespace
	payload[recordIDField] = r.ID
	return payload
}

func fromPayload(payload map[string]*qdrant.Value) (string, map[string]string) {
	var id string
	meta := make(map[string]string, len(payload))
	for k, v := range payload {
		switch k {
		case namespaceField:
		case recordIDField:
			id = v.GetStringValue()
		default:
			meta[k] = v.GetStringValue()
		}
	}
	return id, meta
}

func mapQdrantError(op string, err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return fmt.Errorf("qdrant %s: %w", op, err)
	}
	switch st.Code() {
	case codes.Unavailable, codes.DeadlineExceeded:
		return fmt.Errorf("qdrant %s: %w: %s", op, ErrConnection, st.Message())
	case codes.InvalidArgument:
		if strings.Contains(strings.ToLower(st.Message()), "dimension") {
			return fmt.Errorf("qdrant %s: %w: %s", op, ErrDimensionMismatch, st.Message())
		}
	}
	return fmt.Errorf("qdrant %s: %w", op, err)
}
