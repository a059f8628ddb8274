// Package rag turns queries into ranked retrieval context over a vector
// index and shapes that context for a downstream generation step.
package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/efebarandurmaz/vecrag/internal/embed"
	"github.com/efebarandurmaz/vecrag/internal/observability"
	"github.com/efebarandurmaz/vecrag/internal/vector"
)

// Query is either a precomputed embedding or raw text to be embedded.
// When both are set the vector wins. Filter narrows the candidates before
// the top k are taken.
type Query struct {
	Vector []float32
	Text   string
	Filter vector.Filter
}

// VectorQuery returns a query for a precomputed embedding.
func VectorQuery(v []float32) Query { return Query{Vector: v} }

// TextQuery returns a query for raw text.
func TextQuery(text string) Query { return Query{Text: text} }

// Where returns q restricted to records that pass f.
func (q Query) Where(f vector.Filter) Query {
	q.Filter = vector.All(q.Filter, f)
	return q
}

func (q Query) mode() string {
	if len(q.Vector) > 0 {
		return "vector"
	}
	return "text"
}

// Searcher is the read side of a vector index.
type Searcher interface {
	QueryWhere(vec []float32, k int, metric vector.Metric, filter vector.Filter) ([]vector.ScoredResult, error)
	Dimension() int
}

var _ Searcher = (*vector.Index)(nil)

// RetrievalContext is the ranked output of a retrieval, best match first.
type RetrievalContext []vector.ScoredResult

// Pipeline retrieves context from an index. It holds no state of its own
// beyond its collaborators and is safe for concurrent use when they are.
type Pipeline struct {
	index    Searcher
	provider embed.Provider
	metric   vector.Metric
	filter   vector.Filter
	logger   *slog.Logger
	metrics  *observability.RetrievalMetrics
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithMetric sets the metric used for every query. Empty means the index default.
func WithMetric(m vector.Metric) Option {
	return func(p *Pipeline) { p.metric = m }
}

// WithFilter restricts every retrieval, Ask included, to records that pass
// f. A query's own filter applies on top of it.
func WithFilter(f vector.Filter) Option {
	return func(p *Pipeline) { p.filter = f }
}

// WithLogger sets the pipeline logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithMetrics records retrievals and index queries into m.
func WithMetrics(m *observability.RetrievalMetrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// NewPipeline creates a pipeline over index. provider may be nil when only
// vector queries are issued.
func NewPipeline(index Searcher, provider embed.Provider, opts ...Option) (*Pipeline, error) {
	if index == nil {
		return nil, errors.New("rag: index must not be nil")
	}
	p := &Pipeline{
		index:    index,
		provider: provider,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Retrieve returns up to k results for q. Index errors are returned as-is.
// Provider failures come back as *EmbeddingError and the index is not
// queried. A done ctx yields ctx.Err().
func (p *Pipeline) Retrieve(ctx context.Context, q Query, k int) (RetrievalContext, error) {
	ctx, span := observability.StartRetrieveSpan(ctx, q.mode(), k)
	defer span.End()

	start := time.Now()
	res, err := p.retrieve(ctx, q, k)
	if p.metrics != nil {
		p.metrics.RecordRetrieve(time.Since(start), errors.Is(err, ErrEmbedding))
	}
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}
	observability.RecordResults(span, len(res))
	return res, nil
}

func (p *Pipeline) retrieve(ctx context.Context, q Query, k int) (RetrievalContext, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	vec := q.Vector
	if len(vec) == 0 {
		if strings.TrimSpace(q.Text) == "" {
			return nil, ErrEmptyQuery
		}
		var err error
		vec, err = p.embed(ctx, q.Text)
		if err != nil {
			return nil, err
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	_, span := observability.StartQuerySpan(ctx, p.metric.String(), k)
	defer span.End()

	start := time.Now()
	filter := q.Filter
	if p.filter != nil {
		filter = vector.All(p.filter, q.Filter)
	}
	res, err := p.index.QueryWhere(vec, k, p.metric, filter)
	if p.metrics != nil {
		p.metrics.RecordQuery(time.Since(start), err)
	}
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}
	observability.RecordResults(span, len(res))

	p.logger.DebugContext(ctx, "retrieved context", "mode", q.mode(), "k", k, "filtered", filter != nil, "results", len(res))
	return res, nil
}

func (p *Pipeline) embed(ctx context.Context, text string) ([]float32, error) {
	if p.provider == nil {
		return nil, ErrNoProvider
	}

	ctx, span := observability.StartEmbedSpan(ctx, p.provider.Name())
	defer span.End()

	vec, err := p.provider.Embed(ctx, text)
	if err != nil {
		observability.RecordError(span, err)
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return nil, ctxErr
		}
		p.logger.WarnContext(ctx, "embedding failed", "provider", p.provider.Name(), "error", err)
		return nil, &EmbeddingError{Provider: p.provider.Name(), Err: err}
	}
	return vec, nil
}

// Ask runs the retrieve-then-build-context flow for a question and returns
// the hand-off for a generation step.
func (p *Pipeline) Ask(ctx context.Context, question string, k, maxItems int) (*Answer, error) {
	res, err := p.Retrieve(ctx, TextQuery(question), k)
	if err != nil {
		return nil, fmt.Errorf("retrieve context: %w", err)
	}
	items := BuildContext(res, maxItems)
	return &Answer{
		Question: question,
		Context:  items,
		Count:    len(items),
		Note:     AnswerNote,
	}, nil
}
