// Package qdrant mirrors a local vector index into a Qdrant collection.
package qdrant

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/efebarandurmaz/vecrag/internal/vector"
	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// RecordIDField is the payload key holding the original record id.
const RecordIDField = "record_id"

// pointNamespace seeds the UUIDv5 point ids derived from record ids.
var pointNamespace = uuid.MustParse("6f1c7a52-3f3e-4d0c-9c36-2f8e0f1b6a11")

// Repository implements vector.Mirror using Qdrant.
type Repository struct {
	conn        *grpc.ClientConn
	points      pb.PointsClient
	collections pb.CollectionsClient
	collection  string
	metric      vector.Metric
}

// New creates a Qdrant-backed mirror.
func New(ctx context.Context, host string, port int, collection string) (*Repository, error) {
	addr := fmt.Sprintf("%s:%d", host, port)
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("qdrant connect: %w", err)
	}
	return &Repository{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		collection:  collection,
		metric:      vector.DefaultMetric,
	}, nil
}

// PointID maps a record id to the deterministic UUID used as Qdrant point id.
func PointID(recordID string) string {
	return uuid.NewSHA1(pointNamespace, []byte(recordID)).String()
}

// ErrCollectionMismatch is returned when an existing collection was created
// with a different vector size or distance.
var ErrCollectionMismatch = errors.New("qdrant collection mismatch")

// EnsureCollection creates the collection if it is missing. An existing
// collection must have the same vector size and distance.
func (r *Repository) EnsureCollection(ctx context.Context, dim int, metric vector.Metric) error {
	distance, err := qdrantDistance(metric)
	if err != nil {
		return err
	}

	list, err := r.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("qdrant list collections: %w", err)
	}
	for _, c := range list.GetCollections() {
		if c.GetName() != r.collection {
			continue
		}
		info, err := r.collections.Get(ctx, &pb.GetCollectionInfoRequest{CollectionName: r.collection})
		if err != nil {
			return fmt.Errorf("qdrant get collection %q: %w", r.collection, err)
		}
		if err := checkCollection(info.GetResult(), dim, distance); err != nil {
			return fmt.Errorf("collection %q: %w", r.collection, err)
		}
		r.metric = metric
		return nil
	}

	_, err = r.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: r.collection,
		VectorsConfig: &pb.VectorsConfig{Config: &pb.VectorsConfig_Params{Params: &pb.VectorParams{
			Size:     uint64(dim),
			Distance: distance,
		}}},
	})
	if err != nil {
		return fmt.Errorf("qdrant create collection %q: %w", r.collection, err)
	}
	r.metric = metric
	return nil
}

// checkCollection compares an existing collection's single unnamed vector
// config with the local index.
func checkCollection(info *pb.CollectionInfo, dim int, distance pb.Distance) error {
	params := info.GetConfig().GetParams().GetVectorsConfig().GetParams()
	if params == nil {
		return fmt.Errorf("%w: no single vector config", ErrCollectionMismatch)
	}
	if params.GetSize() != uint64(dim) || params.GetDistance() != distance {
		return fmt.Errorf("%w: stored %d/%s, index %d/%s",
			ErrCollectionMismatch, params.GetSize(), params.GetDistance(), dim, distance)
	}
	return nil
}

func (r *Repository) Upsert(ctx context.Context, records []vector.Record) error {
	if len(records) == 0 {
		return nil
	}
	points := make([]*pb.PointStruct, len(records))
	for i, rec := range records {
		payload := make(map[string]*pb.Value, len(rec.Payload)+1)
		for k, v := range rec.Payload {
			val, err := toValue(v)
			if err != nil {
				return fmt.Errorf("record %q field %q: %w", rec.ID, k, err)
			}
			payload[k] = val
		}
		payload[RecordIDField] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: rec.ID}}

		points[i] = &pb.PointStruct{
			Id:      &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: PointID(rec.ID)}},
			Vectors: &pb.Vectors{VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: rec.Embedding}}},
			Payload: payload,
		}
	}

	_, err := r.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: r.collection,
		Points:         points,
	})
	return err
}

func (r *Repository) Search(ctx context.Context, vec []float32, topK int) ([]vector.ScoredResult, error) {
	if topK <= 0 {
		return nil, vector.ErrInvalidK
	}
	resp, err := r.points.Search(ctx, &pb.SearchPoints{
		CollectionName: r.collection,
		Vector:         vec,
		Limit:          uint64(topK),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, err
	}

	results := make([]vector.ScoredResult, len(resp.GetResult()))
	for i, pt := range resp.GetResult() {
		id, payload := fromPayload(pt.GetPayload())
		if id == "" {
			id = pt.GetId().GetUuid()
		}
		results[i] = vector.ScoredResult{
			ID:       id,
			Distance: scoreToDistance(r.metric, pt.GetScore()),
			Payload:  payload,
		}
	}
	sort.SliceStable(results, func(a, b int) bool {
		if results[a].Distance != results[b].Distance {
			return results[a].Distance < results[b].Distance
		}
		return results[a].ID < results[b].ID
	})
	return results, nil
}

func (r *Repository) Close() error {
	return r.conn.Close()
}

func qdrantDistance(m vector.Metric) (pb.Distance, error) {
	switch m {
	case vector.MetricCosine:
		return pb.Distance_Cosine, nil
	case vector.MetricEuclidean:
		return pb.Distance_Euclid, nil
	default:
		return pb.Distance_UnknownDistance, fmt.Errorf("%w: %q", vector.ErrUnknownMetric, m)
	}
}

// scoreToDistance converts a Qdrant score to the local distance convention.
// Cosine collections report similarity; Euclid collections report distance.
func scoreToDistance(m vector.Metric, score float32) float64 {
	if m == vector.MetricCosine {
		return 1 - float64(score)
	}
	return float64(score)
}

var _ vector.Mirror = (*Repository)(nil)
