package qdrant

import (
	"testing"

	"github.com/efebarandurmaz/vecrag/internal/vector"
	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPointID_Deterministic(t *testing.T) {
	a := PointID("ai-demo-1")
	b := PointID("ai-demo-1")
	c := PointID("ai-demo-2")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)

	parsed, err := uuid.Parse(a)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(5), parsed.Version())
}

func TestPayloadConversion(t *testing.T) {
	in := map[string]any{
		"type":     "AIRecommendation",
		"tenantId": 1001,
		"active":   true,
		"metadata": map[string]any{
			"amenities": []any{"spa", "ocean-view"},
			"aiScore":   0.92,
		},
		"missing": nil,
	}

	payload := make(map[string]*pb.Value, len(in)+1)
	for k, v := range in {
		val, err := toValue(v)
		require.NoError(t, err)
		payload[k] = val
	}
	payload[RecordIDField] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: "ai-demo-1"}}

	id, out := fromPayload(payload)
	assert.Equal(t, "ai-demo-1", id)
	assert.Equal(t, "AIRecommendation", out["type"])
	assert.Equal(t, int64(1001), out["tenantId"])
	assert.Equal(t, true, out["active"])
	assert.Nil(t, out["missing"])

	meta, ok := out["metadata"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, []any{"spa", "ocean-view"}, meta["amenities"])
	assert.InDelta(t, 0.92, meta["aiScore"], 1e-9)
	assert.NotContains(t, out, RecordIDField)
}

func TestToValue_Unsupported(t *testing.T) {
	_, err := toValue(struct{}{})
	assert.Error(t, err)
}

func TestScoreToDistance(t *testing.T) {
	assert.InDelta(t, 0.25, scoreToDistance(vector.MetricCosine, 0.75), 1e-6)
	assert.InDelta(t, 1.5, scoreToDistance(vector.MetricEuclidean, 1.5), 1e-6)
}

func TestQdrantDistance(t *testing.T) {
	d, err := qdrantDistance(vector.MetricCosine)
	require.NoError(t, err)
	assert.Equal(t, pb.Distance_Cosine, d)

	d, err = qdrantDistance(vector.MetricEuclidean)
	require.NoError(t, err)
	assert.Equal(t, pb.Distance_Euclid, d)

	_, err = qdrantDistance("manhattan")
	assert.ErrorIs(t, err, vector.ErrUnknownMetric)
}

func TestCheckCollection(t *testing.T) {
	info := func(size uint64, d pb.Distance) *pb.CollectionInfo {
		return &pb.CollectionInfo{Config: &pb.CollectionConfig{Params: &pb.CollectionParams{
			VectorsConfig: &pb.VectorsConfig{Config: &pb.VectorsConfig_Params{Params: &pb.VectorParams{Size: size, Distance: d}}},
		}}}
	}

	assert.NoError(t, checkCollection(info(1536, pb.Distance_Cosine), 1536, pb.Distance_Cosine))
	assert.ErrorIs(t, checkCollection(info(768, pb.Distance_Cosine), 1536, pb.Distance_Cosine), ErrCollectionMismatch)
	assert.ErrorIs(t, checkCollection(info(1536, pb.Distance_Euclid), 1536, pb.Distance_Cosine), ErrCollectionMismatch)
	assert.ErrorIs(t, checkCollection(&pb.CollectionInfo{}, 1536, pb.Distance_Cosine), ErrCollectionMismatch)
}
