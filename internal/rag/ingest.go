package rag

import (
	"context"
	"errors"
	"maps"

	"golang.org/x/sync/errgroup"

	"github.com/efebarandurmaz/vecrag/internal/embed"
	"github.com/efebarandurmaz/vecrag/internal/observability"
	"github.com/efebarandurmaz/vecrag/internal/vector"
)

// Document is raw text to be embedded and indexed.
type Document struct {
	ID      string         `json:"id"`
	Text    string         `json:"text"`
	Payload map[string]any `json:"payload,omitempty"`
}

// Ingestor embeds documents and bulk-inserts them into an index.
type Ingestor struct {
	Index    *vector.Index
	Provider embed.Provider
	Options  vector.BulkOptions
	Metrics  *observability.RetrievalMetrics
}

// Ingest embeds every document and inserts the ones that embedded
// successfully. The result has one entry per document, in input order.
// Embedding failures are reported as *EmbeddingError.
func (in *Ingestor) Ingest(ctx context.Context, docs []Document) ([]vector.InsertResult, error) {
	if in.Index == nil || in.Provider == nil {
		return nil, errors.New("rag: ingestor needs an index and a provider")
	}

	ctx, span := observability.StartBulkSpan(ctx, len(docs))
	defer span.End()

	results := make([]vector.InsertResult, len(docs))
	vecs := make([][]float32, len(docs))

	limit := in.Options.Concurrency
	if limit <= 0 {
		limit = 8
	}
	var g errgroup.Group
	g.SetLimit(limit)
	for n, d := range docs {
		results[n].ID = d.ID
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[n].Err = err
				return nil
			}
			v, err := in.Provider.Embed(ctx, d.Text)
			if err != nil {
				results[n].Err = &EmbeddingError{Provider: in.Provider.Name(), Err: err}
				return nil
			}
			vecs[n] = v
			return nil
		})
	}
	_ = g.Wait()

	var (
		records []vector.Record
		slots   []int
	)
	for n, d := range docs {
		if results[n].Err != nil {
			continue
		}
		payload := maps.Clone(d.Payload)
		if payload == nil {
			payload = map[string]any{}
		}
		if _, ok := payload["text"]; !ok {
			payload["text"] = d.Text
		}
		records = append(records, vector.Record{ID: d.ID, Embedding: vecs[n], Payload: payload})
		slots = append(slots, n)
	}

	for j, r := range in.Index.BulkInsert(ctx, records, in.Options) {
		results[slots[j]].Err = r.Err
	}

	failed := vector.CountFailed(results)
	observability.RecordBulkResult(span, len(docs), failed)
	if in.Metrics != nil {
		in.Metrics.RecordBulk(len(docs)-failed, failed)
		in.Metrics.SetIndexSize(in.Index.Len())
	}
	return results, nil
}
