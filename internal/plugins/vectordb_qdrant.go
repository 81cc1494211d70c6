package plugins

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

const (
	defaultNResults  = 2
	defaultThreshold = 0.5

	payloadIDField   = "_original_id"
	payloadTextField = "text"
)

// QdrantVectorDB is the VectorDB plugin adapter backed by Qdrant's gRPC
// client, grounded on the teacher's
// internal/persistence/databases/qdrant_vector.go UUID-point-ID convention,
// and on original_source's infrastructure/plugins/vector_db/chromadb/
// chromadb.py for the query/insert contract.
//
// A process-wide mutex serializes Query/Insert, mirroring chromadb.py's
// multiprocessing lock around its collection calls (spec.md §5: "vector-DB
// adapters wrap a coarse process-wide lock").
type QdrantVectorDB struct {
	client *qdrant.Client
	dim    int

	mu sync.Mutex
}

// NewQdrantVectorDB dials addr (host:port of Qdrant's gRPC port, default
// 6334) and returns an adapter that lazily creates collections on first use.
func NewQdrantVectorDB(host string, port int, dimensions int) (*QdrantVectorDB, error) {
	client, err := qdrant.NewClient(&qdrant.Config{Host: host, Port: port})
	if err != nil {
		return nil, fmt.Errorf("create qdrant client: %w", err)
	}
	return &QdrantVectorDB{client: client, dim: dimensions}, nil
}

func (q *QdrantVectorDB) ensureCollection(ctx context.Context, collection string) error {
	exists, err := q.client.CollectionExists(ctx, collection)
	if err != nil {
		return fmt.Errorf("check collection %s exists: %w", collection, err)
	}
	if exists {
		return nil
	}
	if q.dim <= 0 {
		return fmt.Errorf("qdrant requires dimensions > 0")
	}
	return q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(q.dim),
			Distance: qdrant.Distance_Cosine,
		}),
	})
}

// Query resolves args.NResults/args.Threshold independently of each other —
// the two must not gate one another. chromadb.py's query() reads n_results
// only inside the "if args.get('threshold') is not None" branch, so a
// caller supplying n_results without a threshold silently gets the
// collection default instead. This adapter reads both fields directly off
// args regardless of what the other one is set to.
//
// It returns the owning object's id (payloadIDField), not the index text:
// chromadb.py's query() stores obj_id as the "document" for every index
// point it inserts and returns the matched documents, i.e. the set of
// owning object ids whose indices scored within threshold — callers
// (Retrieve) use the result directly as candidate engram ids.
func (q *QdrantVectorDB) Query(ctx context.Context, collection string, embedding []float32, args VectorDBQueryArgs) ([]string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.ensureCollection(ctx, collection); err != nil {
		return nil, err
	}

	nResults, threshold := resolveQueryParams(args)
	limit := uint64(nResults)
	vec := make([]float32, len(embedding))
	copy(vec, embedding)

	hits, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQueryDense(vec),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant query %s: %w", collection, err)
	}

	out := make([]string, 0, len(hits))
	for _, hit := range hits {
		distance := 1 - float64(hit.Score) // cosine score -> distance
		if distance >= threshold {
			continue
		}
		if hit.Payload == nil {
			continue
		}
		if id := hit.Payload[payloadIDField].GetStringValue(); id != "" {
			out = append(out, id)
		}
	}
	return out, nil
}

// resolveQueryParams applies the n_results/threshold defaults independently
// of one another. original_source's chromadb.py reads n_results only inside
// the branch that checks threshold is set, so a caller passing n_results
// alone silently falls back to the collection default; this adapter fixes
// that by resolving each field on its own zero-value check.
func resolveQueryParams(args VectorDBQueryArgs) (nResults int, threshold float64) {
	nResults = args.NResults
	if nResults <= 0 {
		nResults = defaultNResults
	}
	threshold = args.Threshold
	if threshold <= 0 {
		threshold = defaultThreshold
	}
	return nResults, threshold
}

// Insert upserts one point per index, keyed by a deterministic UUID derived
// from objID and the index position (Qdrant point IDs must be UUIDs or
// unsigned integers).
func (q *QdrantVectorDB) Insert(ctx context.Context, collection string, indices []Index, objID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.ensureCollection(ctx, collection); err != nil {
		return err
	}

	points := make([]*qdrant.PointStruct, 0, len(indices))
	for i, idx := range indices {
		pointUUID := uuid.NewSHA1(uuid.NameSpaceOID, []byte(objID+"-"+strconv.Itoa(i))).String()
		vec := make([]float32, len(idx.Embedding))
		copy(vec, idx.Embedding)
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(pointUUID),
			Vectors: qdrant.NewVectorsDense(vec),
			Payload: qdrant.NewValueMap(map[string]any{
				payloadIDField:   objID,
				payloadTextField: idx.Text,
			}),
		})
	}
	if len(points) == 0 {
		return nil
	}

	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collection,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("qdrant upsert %s: %w", collection, err)
	}
	return nil
}

// Close releases the underlying gRPC connection.
func (q *QdrantVectorDB) Close() error {
	return q.client.Close()
}
