package vector

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestIndex(t *testing.T, dim int, recs ...Record) *Index {
	t.Helper()
	idx, err := NewIndex(dim)
	require.NoError(t, err)
	for _, r := range recs {
		require.NoError(t, idx.Insert(r))
	}
	return idx
}

func ids(results []ScoredResult) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.ID
	}
	return out
}

func TestNewIndex_InvalidDimension(t *testing.T) {
	for _, dim := range []int{0, -3} {
		_, err := NewIndex(dim)
		var ide *InvalidDimensionError
		require.ErrorAs(t, err, &ide)
		assert.Equal(t, dim, ide.Dimension)
	}
}

func TestNewIndex_UnknownMetric(t *testing.T) {
	_, err := NewIndex(2, WithMetric("manhattan"))
	assert.ErrorIs(t, err, ErrUnknownMetric)
}

func TestInsert_DimensionMismatchLeavesIndexUnchanged(t *testing.T) {
	idx := newTestIndex(t, 2, Record{ID: "a", Embedding: []float32{1, 0}})

	err := idx.Insert(Record{ID: "b", Embedding: []float32{1, 0, 0}})
	require.ErrorIs(t, err, ErrDimensionMismatch)

	var dm *DimensionMismatchError
	require.ErrorAs(t, err, &dm)
	assert.Equal(t, 2, dm.Expected)
	assert.Equal(t, 3, dm.Actual)

	assert.Equal(t, 1, idx.Len())
	_, err = idx.Get("b")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestInsert_DuplicateRejected(t *testing.T) {
	idx := newTestIndex(t, 2, Record{ID: "a", Embedding: []float32{1, 0}, Payload: map[string]any{"v": 1}})

	err := idx.Insert(Record{ID: "a", Embedding: []float32{0, 1}})
	require.ErrorIs(t, err, ErrDuplicateID)

	got, err := idx.Get("a")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0}, got.Embedding)
	assert.Equal(t, 1, got.Payload["v"])
}

func TestUpsert_Overwrites(t *testing.T) {
	idx := newTestIndex(t, 2,
		Record{ID: "a", Embedding: []float32{1, 0}},
		Record{ID: "b", Embedding: []float32{0, 1}},
	)

	require.NoError(t, idx.Upsert(Record{ID: "a", Embedding: []float32{0, 1}, Payload: map[string]any{"v": 2}}))
	require.NoError(t, idx.Upsert(Record{ID: "c", Embedding: []float32{1, 1}}))

	got, err := idx.Get("a")
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 1}, got.Embedding)
	assert.Equal(t, 2, got.Payload["v"])

	recs := idx.Records()
	require.Len(t, recs, 3)
	assert.Equal(t, "a", recs[0].ID, "upsert keeps insertion position")
	assert.Equal(t, "c", recs[2].ID)
}

func TestInsert_EmptyID(t *testing.T) {
	idx := newTestIndex(t, 2)
	assert.ErrorIs(t, idx.Insert(Record{Embedding: []float32{1, 0}}), ErrInvalidRecord)
}

func TestInsert_CopiesInput(t *testing.T) {
	idx := newTestIndex(t, 2)
	emb := []float32{1, 0}
	payload := map[string]any{"k": "v"}
	require.NoError(t, idx.Insert(Record{ID: "a", Embedding: emb, Payload: payload}))

	emb[0] = 42
	payload["k"] = "changed"

	got, err := idx.Get("a")
	require.NoError(t, err)
	assert.Equal(t, float32(1), got.Embedding[0])
	assert.Equal(t, "v", got.Payload["k"])
}

func TestRemove(t *testing.T) {
	idx := newTestIndex(t, 2, Record{ID: "a", Embedding: []float32{1, 0}})

	require.NoError(t, idx.Remove("a"))
	assert.Equal(t, 0, idx.Len())
	assert.ErrorIs(t, idx.Remove("a"), ErrNotFound)
}

func TestQuery_CosineTieBreakByID(t *testing.T) {
	idx := newTestIndex(t, 2,
		Record{ID: "c", Embedding: []float32{1, 0}},
		Record{ID: "b", Embedding: []float32{0, 1}},
		Record{ID: "a", Embedding: []float32{1, 0}},
	)

	res, err := idx.Query([]float32{1, 0}, 2, MetricCosine)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "c"}, ids(res))
	assert.InDelta(t, 0.0, res[0].Distance, 1e-6)
	assert.InDelta(t, 0.0, res[1].Distance, 1e-6)
}

func TestQuery_EuclideanExactBeforeNear(t *testing.T) {
	idx := newTestIndex(t, 2,
		Record{ID: "a", Embedding: []float32{1, 0}},
		Record{ID: "b", Embedding: []float32{0, 1}},
		Record{ID: "c", Embedding: []float32{1, 0}},
		Record{ID: "d", Embedding: []float32{0.9, 0.1}},
	)

	res, err := idx.Query([]float32{1, 0}, 1, MetricEuclidean)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Contains(t, []string{"a", "c"}, res[0].ID)
	assert.InDelta(t, 0.0, res[0].Distance, 1e-6)

	res, err = idx.Query([]float32{1, 0}, 4, MetricEuclidean)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c", "d", "b"}, ids(res))
	assert.InDelta(t, 0.1414, res[2].Distance, 1e-3)
}

func TestQuery_SelfIsFirst(t *testing.T) {
	recs := []Record{
		{ID: "r1", Embedding: []float32{0.8, 0.9, 0.7, 0.6}},
		{ID: "r2", Embedding: []float32{0.1, 0.3, 0.9, 0.2}},
		{ID: "r3", Embedding: []float32{-0.5, 0.2, 0.1, 0.7}},
	}
	idx := newTestIndex(t, 4, recs...)

	for _, r := range recs {
		res, err := idx.Query(r.Embedding, 1, MetricCosine)
		require.NoError(t, err)
		require.Len(t, res, 1)
		assert.Equal(t, r.ID, res[0].ID)
		assert.InDelta(t, 0.0, res[0].Distance, 1e-5)
	}
}

func TestQuery_SortedAndBounded(t *testing.T) {
	idx := newTestIndex(t, 3,
		Record{ID: "x", Embedding: []float32{1, 2, 3}},
		Record{ID: "y", Embedding: []float32{3, 2, 1}},
		Record{ID: "z", Embedding: []float32{-1, 0, 1}},
		Record{ID: "w", Embedding: []float32{1, 1, 1}},
	)

	for _, metric := range []Metric{MetricCosine, MetricEuclidean} {
		for k := 1; k <= 6; k++ {
			res, err := idx.Query([]float32{1, 1, 2}, k, metric)
			require.NoError(t, err)
			assert.LessOrEqual(t, len(res), k)
			for n := 1; n < len(res); n++ {
				prev, cur := res[n-1], res[n]
				ordered := prev.Distance < cur.Distance ||
					(prev.Distance == cur.Distance && prev.ID < cur.ID)
				assert.True(t, ordered, "%s k=%d: %v before %v", metric, k, prev, cur)
			}
		}
	}
}

func TestQuery_Errors(t *testing.T) {
	idx := newTestIndex(t, 2, Record{ID: "a", Embedding: []float32{1, 0}})

	tests := []struct {
		name   string
		vec    []float32
		k      int
		metric Metric
		want   error
	}{
		{"dimension", []float32{1, 0, 0}, 1, MetricCosine, ErrDimensionMismatch},
		{"zero_k", []float32{1, 0}, 0, MetricCosine, ErrInvalidK},
		{"negative_k", []float32{1, 0}, -1, MetricEuclidean, ErrInvalidK},
		{"zero_query_cosine", []float32{0, 0}, 1, MetricCosine, ErrInvalidVector},
		{"unknown_metric", []float32{1, 0}, 1, "dot", ErrUnknownMetric},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := idx.Query(tt.vec, tt.k, tt.metric)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestInsert_ZeroVectorRejectedOnCosineIndex(t *testing.T) {
	idx := newTestIndex(t, 2, Record{ID: "a", Embedding: []float32{1, 0}})

	err := idx.Insert(Record{ID: "zero", Embedding: []float32{0, 0}})
	assert.ErrorIs(t, err, ErrInvalidVector)
	assert.Equal(t, 1, idx.Len())

	res, err := idx.Query([]float32{1, 0}, 1, MetricCosine)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, ids(res))
}

func TestQuery_ZeroRecordUnderCosine(t *testing.T) {
	idx, err := NewIndex(2, WithMetric(MetricEuclidean))
	require.NoError(t, err)
	require.NoError(t, idx.Insert(Record{ID: "a", Embedding: []float32{1, 0}, Payload: map[string]any{"type": "x"}}))
	require.NoError(t, idx.Insert(Record{ID: "zero", Embedding: []float32{0, 0}}))

	_, err = idx.Query([]float32{1, 0}, 2, MetricCosine)
	assert.ErrorIs(t, err, ErrInvalidVector)

	// A filter that excludes the zero record never scores it.
	res, err := idx.QueryWhere([]float32{1, 0}, 2, MetricCosine, FieldEquals("type", "x"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, ids(res))

	res, err = idx.Query([]float32{0, 0}, 1, MetricEuclidean)
	require.NoError(t, err)
	assert.Equal(t, "zero", res[0].ID)
}

func TestQueryWhere(t *testing.T) {
	idx := newTestIndex(t, 2,
		Record{ID: "feedback", Embedding: []float32{1, 0}, Payload: map[string]any{"type": "CustomerFeedback"}},
		Record{ID: "rec-far", Embedding: []float32{0, 1}, Payload: map[string]any{"type": "AIRecommendation"}},
		Record{ID: "rec-near", Embedding: []float32{1, 0.2}, Payload: map[string]any{"type": "AIRecommendation"}},
		Record{ID: "untyped", Embedding: []float32{1, 0.1}},
	)
	onlyRecs := FieldEquals("type", "AIRecommendation")

	res, err := idx.QueryWhere([]float32{1, 0}, 2, MetricCosine, onlyRecs)
	require.NoError(t, err)
	assert.Equal(t, []string{"rec-near", "rec-far"}, ids(res), "top k is taken after filtering")

	res, err = idx.QueryWhere([]float32{1, 0}, 10, MetricCosine, FieldIn("type", "AIRecommendation", "CustomerFeedback"))
	require.NoError(t, err)
	assert.Equal(t, []string{"feedback", "rec-near", "rec-far"}, ids(res))

	res, err = idx.QueryWhere([]float32{1, 0}, 3, MetricCosine, FieldEquals("type", "PricingModel"))
	require.NoError(t, err)
	assert.Empty(t, res)

	// A nil filter is Query.
	all, err := idx.QueryWhere([]float32{1, 0}, 4, MetricCosine, nil)
	require.NoError(t, err)
	plain, err := idx.Query([]float32{1, 0}, 4, MetricCosine)
	require.NoError(t, err)
	assert.Equal(t, plain, all)
}

func TestFilters(t *testing.T) {
	payload := map[string]any{"type": "AIRecommendation", "tenantId": 1001, "tags": []any{"spa"}}

	assert.True(t, Filter(nil).Match(payload))
	assert.True(t, FieldEquals("tenantId", 1001).Match(payload))
	assert.False(t, FieldEquals("tenantId", int64(1001)).Match(payload), "types must match")
	assert.False(t, FieldEquals("tags", []any{"spa"}).Match(payload), "uncomparable values never match")
	assert.False(t, FieldEquals("missing", nil).Match(payload))
	assert.True(t, All(FieldEquals("type", "AIRecommendation"), nil, FieldIn("tenantId", 1001, 1002)).Match(payload))
	assert.False(t, All(FieldEquals("type", "AIRecommendation"), FieldEquals("tenantId", 1002)).Match(payload))
}

func TestQuery_EmptyIndex(t *testing.T) {
	idx := newTestIndex(t, 2)
	res, err := idx.Query([]float32{1, 0}, 3, MetricCosine)
	require.NoError(t, err)
	assert.Empty(t, res)
}

func TestQuery_RemoveReinsertIsIdempotent(t *testing.T) {
	recs := []Record{
		{ID: "a", Embedding: []float32{1, 0}, Payload: map[string]any{"n": 1}},
		{ID: "b", Embedding: []float32{0.6, 0.8}},
		{ID: "c", Embedding: []float32{0, 1}},
	}
	idx := newTestIndex(t, 2, recs...)

	before, err := idx.Query([]float32{0.7, 0.7}, 3, MetricCosine)
	require.NoError(t, err)

	require.NoError(t, idx.Remove("b"))
	require.NoError(t, idx.Insert(recs[1]))

	after, err := idx.Query([]float32{0.7, 0.7}, 3, MetricCosine)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestQuery_ResultPayloadIsCopy(t *testing.T) {
	idx := newTestIndex(t, 2, Record{ID: "a", Embedding: []float32{1, 0}, Payload: map[string]any{"k": "v"}})

	res, err := idx.Query([]float32{1, 0}, 1, "")
	require.NoError(t, err)
	res[0].Payload["k"] = "mutated"

	got, err := idx.Get("a")
	require.NoError(t, err)
	assert.Equal(t, "v", got.Payload["k"])
}

func TestSearch_UsesDefaultMetricAndContext(t *testing.T) {
	idx, err := NewIndex(2, WithMetric(MetricEuclidean))
	require.NoError(t, err)
	require.NoError(t, idx.Insert(Record{ID: "zero", Embedding: []float32{0, 0}}))

	res, err := idx.Search(context.Background(), []float32{0, 0}, 1)
	require.NoError(t, err)
	assert.Equal(t, "zero", res[0].ID)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = idx.Search(ctx, []float32{0, 0}, 1)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestParseMetric(t *testing.T) {
	tests := []struct {
		in   string
		want Metric
		err  bool
	}{
		{"", MetricCosine, false},
		{"cosine", MetricCosine, false},
		{"COSINE", MetricCosine, false},
		{"euclidean", MetricEuclidean, false},
		{"l2", MetricEuclidean, false},
		{"dot", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMetric(tt.in)
			if tt.err {
				assert.ErrorIs(t, err, ErrUnknownMetric)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDistanceFunctions(t *testing.T) {
	d, err := CosineDistance([]float32{1, 0}, []float32{0, 1})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, d, 1e-6)

	d, err = CosineDistance([]float32{1, 0}, []float32{-1, 0})
	require.NoError(t, err)
	assert.InDelta(t, 2.0, d, 1e-6)

	// Unnormalised operands of different magnitudes.
	d, err = CosineDistance([]float32{3, 4}, []float32{6, 8})
	require.NoError(t, err)
	assert.InDelta(t, 0.0, d, 1e-6)
	d, err = CosineDistance([]float32{1, 2, 3}, []float32{4, 5, 6})
	require.NoError(t, err)
	assert.InDelta(t, 0.025368, d, 1e-5)

	_, err = CosineDistance([]float32{0, 0}, []float32{1, 0})
	assert.ErrorIs(t, err, ErrInvalidVector)

	assert.InDelta(t, 5.0, EuclideanDistance([]float32{0, 0}, []float32{3, 4}), 1e-6)
	assert.InDelta(t, 5.0, float64(Magnitude([]float32{3, 4})), 1e-6)
	assert.Equal(t, float32(0), Magnitude(nil))
}
