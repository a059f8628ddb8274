package rag

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/efebarandurmaz/vecrag/internal/embed"
	"github.com/efebarandurmaz/vecrag/internal/observability"
	"github.com/efebarandurmaz/vecrag/internal/vector"
)

type spySearcher struct {
	*vector.Index
	queries atomic.Int32
}

func (s *spySearcher) QueryWhere(vec []float32, k int, m vector.Metric, f vector.Filter) ([]vector.ScoredResult, error) {
	s.queries.Add(1)
	return s.Index.QueryWhere(vec, k, m, f)
}

func newTestIndex(t *testing.T) *vector.Index {
	t.Helper()
	idx, err := vector.NewIndex(2)
	require.NoError(t, err)
	require.NoError(t, idx.Insert(vector.Record{ID: "a", Embedding: []float32{1, 0}, Payload: map[string]any{"type": "x"}}))
	require.NoError(t, idx.Insert(vector.Record{ID: "b", Embedding: []float32{0, 1}}))
	require.NoError(t, idx.Insert(vector.Record{ID: "c", Embedding: []float32{1, 1}}))
	return idx
}

func fixedProvider(v []float32, err error) embed.Provider {
	return embed.ProviderFunc{ID: "fixed", Fn: func(context.Context, string) ([]float32, error) {
		return v, err
	}}
}

func TestNewPipeline_NilIndex(t *testing.T) {
	_, err := NewPipeline(nil, nil)
	assert.Error(t, err)
}

func TestRetrieve_Vector(t *testing.T) {
	p, err := NewPipeline(newTestIndex(t), nil)
	require.NoError(t, err)

	res, err := p.Retrieve(context.Background(), VectorQuery([]float32{1, 0}), 2)
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, "a", res[0].ID)
	assert.InDelta(t, 0, res[0].Distance, 1e-6)
	assert.Equal(t, "c", res[1].ID)
}

func TestRetrieve_Text(t *testing.T) {
	spy := &spySearcher{Index: newTestIndex(t)}
	p, err := NewPipeline(spy, fixedProvider([]float32{0, 2}, nil), WithMetric(vector.MetricEuclidean))
	require.NoError(t, err)

	res, err := p.Retrieve(context.Background(), TextQuery("anything"), 1)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "b", res[0].ID)
	assert.InDelta(t, 1, res[0].Distance, 1e-6)
	assert.Equal(t, int32(1), spy.queries.Load())
}

func TestRetrieve_ProviderFailureLeavesIndexUntouched(t *testing.T) {
	spy := &spySearcher{Index: newTestIndex(t)}
	cause := errors.New("upstream 503")
	metrics := observability.NewRetrievalMetrics()
	p, err := NewPipeline(spy, fixedProvider(nil, cause), WithMetrics(metrics))
	require.NoError(t, err)

	_, err = p.Retrieve(context.Background(), TextQuery("luxury"), 3)

	var ee *EmbeddingError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, "fixed", ee.Provider)
	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, ErrEmbedding)
	assert.Zero(t, spy.queries.Load())
	assert.Equal(t, 3, spy.Len())
	assert.Equal(t, 1.0, metrics.EmbedErrorsTotal.Value())
	assert.Zero(t, metrics.QueriesTotal.Value())
}

func TestRetrieve_IndexErrorsSurfaceVerbatim(t *testing.T) {
	p, err := NewPipeline(newTestIndex(t), fixedProvider([]float32{1, 2, 3}, nil))
	require.NoError(t, err)
	ctx := context.Background()

	_, err = p.Retrieve(ctx, TextQuery("wrong size"), 1)
	var dm *vector.DimensionMismatchError
	require.ErrorAs(t, err, &dm)
	assert.Equal(t, 2, dm.Expected)
	assert.Equal(t, 3, dm.Actual)
	assert.NotErrorIs(t, err, ErrEmbedding)

	_, err = p.Retrieve(ctx, VectorQuery([]float32{1, 0}), 0)
	assert.ErrorIs(t, err, vector.ErrInvalidK)

	_, err = p.Retrieve(ctx, VectorQuery([]float32{0, 0}), 1)
	assert.ErrorIs(t, err, vector.ErrInvalidVector)
}

func TestRetrieve_QueryErrors(t *testing.T) {
	p, err := NewPipeline(newTestIndex(t), nil)
	require.NoError(t, err)

	_, err = p.Retrieve(context.Background(), Query{}, 1)
	assert.ErrorIs(t, err, ErrEmptyQuery)

	_, err = p.Retrieve(context.Background(), TextQuery("needs a provider"), 1)
	assert.ErrorIs(t, err, ErrNoProvider)
}

func TestRetrieve_Cancelled(t *testing.T) {
	spy := &spySearcher{Index: newTestIndex(t)}
	blocking := embed.ProviderFunc{ID: "slow", Fn: func(ctx context.Context, _ string) ([]float32, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	p, err := NewPipeline(spy, blocking)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.Retrieve(ctx, TextQuery("x"), 1)
	assert.Equal(t, context.Canceled, err)
	assert.Zero(t, spy.queries.Load())
}

func TestRetrieve_CancelledDuringEmbedding(t *testing.T) {
	spy := &spySearcher{Index: newTestIndex(t)}
	started := make(chan struct{})
	blocking := embed.ProviderFunc{ID: "slow", Fn: func(ctx context.Context, _ string) ([]float32, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	retrying := embed.NewRetryProvider(blocking, &embed.RetryConfig{MaxRetries: 3, RetryDelay: time.Millisecond, Timeout: time.Minute})
	metrics := observability.NewRetrievalMetrics()
	p, err := NewPipeline(spy, retrying, WithMetrics(metrics))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, err := p.Retrieve(ctx, TextQuery("luxury"), 1)
		errc <- err
	}()

	<-started
	cancel()

	select {
	case err = <-errc:
	case <-time.After(2 * time.Second):
		t.Fatal("retrieve did not return after cancel")
	}
	assert.Equal(t, context.Canceled, err)
	assert.NotErrorIs(t, err, ErrEmbedding)
	assert.Zero(t, spy.queries.Load())
	assert.Zero(t, metrics.EmbedErrorsTotal.Value())
}

func TestRetrieve_Filter(t *testing.T) {
	idx, err := vector.NewIndex(2)
	require.NoError(t, err)
	for _, r := range []vector.Record{
		{ID: "fb-1", Embedding: []float32{1, 0}, Payload: map[string]any{"type": "CustomerFeedback"}},
		{ID: "fb-2", Embedding: []float32{1, 0.05}, Payload: map[string]any{"type": "CustomerFeedback"}},
		{ID: "rec-1", Embedding: []float32{1, 0.5}, Payload: map[string]any{"type": "AIRecommendation", "tenantId": 1001}},
		{ID: "rec-2", Embedding: []float32{0, 1}, Payload: map[string]any{"type": "AIRecommendation", "tenantId": 1002}},
	} {
		require.NoError(t, idx.Insert(r))
	}
	onlyRecs := vector.FieldEquals("type", "AIRecommendation")
	ctx := context.Background()

	p, err := NewPipeline(idx, fixedProvider([]float32{1, 0}, nil), WithFilter(onlyRecs))
	require.NoError(t, err)

	res, err := p.Retrieve(ctx, VectorQuery([]float32{1, 0}), 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"rec-1", "rec-2"}, resultIDs(res), "k counts only matching records")

	res, err = p.Retrieve(ctx, TextQuery("anything").Where(vector.FieldEquals("tenantId", 1002)), 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"rec-2"}, resultIDs(res), "query filter narrows the pipeline filter")

	ans, err := p.Ask(ctx, "which offer?", 4, 0)
	require.NoError(t, err)
	require.Len(t, ans.Context, 2)
	for _, item := range ans.Context {
		assert.Equal(t, "AIRecommendation", item.Payload["type"])
	}

	// Without a pipeline filter the query filter alone applies.
	plain, err := NewPipeline(idx, nil)
	require.NoError(t, err)
	res, err = plain.Retrieve(ctx, VectorQuery([]float32{1, 0}).Where(onlyRecs), 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"rec-1"}, resultIDs(res))
}

func resultIDs(res RetrievalContext) []string {
	out := make([]string, len(res))
	for i, r := range res {
		out[i] = r.ID
	}
	return out
}

func TestRetrieve_KeywordProvider(t *testing.T) {
	idx, err := vector.NewIndex(embed.DemoDimension)
	require.NoError(t, err)
	require.NoError(t, idx.Insert(vector.Record{ID: "lux", Embedding: embed.LuxuryVector}))
	require.NoError(t, idx.Insert(vector.Record{ID: "biz", Embedding: embed.BusinessVector}))

	p, err := NewPipeline(idx, embed.NewKeywordProvider())
	require.NoError(t, err)

	res, err := p.Retrieve(context.Background(), TextQuery("business traveler"), 2)
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, "biz", res[0].ID)
}

func TestBuildContext(t *testing.T) {
	results := []vector.ScoredResult{
		{ID: "a", Distance: 0.1, Payload: map[string]any{"description": "suite"}},
		{ID: "b", Distance: 0.2},
		{ID: "c", Distance: 0.3},
	}

	tests := []struct {
		name     string
		maxItems int
		want     []string
	}{
		{"all", 0, []string{"a", "b", "c"}},
		{"negative", -1, []string{"a", "b", "c"}},
		{"truncate", 2, []string{"a", "b"}},
		{"larger", 10, []string{"a", "b", "c"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items := BuildContext(results, tt.maxItems)
			ids := make([]string, len(items))
			for i, it := range items {
				ids[i] = it.ID
			}
			assert.Equal(t, tt.want, ids)
		})
	}

	items := BuildContext(results, 1)
	items[0].Payload["description"] = "changed"
	assert.Equal(t, "suite", results[0].Payload["description"])
	assert.Empty(t, BuildContext(nil, 3))
}

func TestAsk(t *testing.T) {
	p, err := NewPipeline(newTestIndex(t), fixedProvider([]float32{1, 0}, nil))
	require.NoError(t, err)

	ans, err := p.Ask(context.Background(), "which room?", 3, 2)
	require.NoError(t, err)
	assert.Equal(t, "which room?", ans.Question)
	assert.Equal(t, 2, ans.Count)
	require.Len(t, ans.Context, 2)
	assert.Equal(t, "a", ans.Context[0].ID)
	assert.Equal(t, AnswerNote, ans.Note)

	p, err = NewPipeline(newTestIndex(t), fixedProvider(nil, errors.New("down")))
	require.NoError(t, err)
	_, err = p.Ask(context.Background(), "q", 3, 0)
	assert.ErrorIs(t, err, ErrEmbedding)
}
