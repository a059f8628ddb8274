package vector

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/efebarandurmaz/vecrag/internal/observability"
)

// Record is a single embedding with its identifier and payload.
type Record struct {
	ID        string         `json:"id"`
	Embedding []float32      `json:"embedding"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// ScoredResult is a single match from a similarity query. Payload is a
// shallow copy of the stored record's payload.
type ScoredResult struct {
	ID       string         `json:"id"`
	Distance float64        `json:"distance"`
	Payload  map[string]any `json:"payload,omitempty"`
}

// Clone returns a copy of r that shares no slices or maps with it.
func (r Record) Clone() Record {
	return Record{
		ID:        r.ID,
		Embedding: slices.Clone(r.Embedding),
		Payload:   maps.Clone(r.Payload),
	}
}

// Mirror is a remote copy of an index, e.g. a Qdrant collection.
type Mirror interface {
	// EnsureCollection creates the remote collection if it does not exist.
	EnsureCollection(ctx context.Context, dim int, metric Metric) error
	// Upsert inserts or updates records.
	Upsert(ctx context.Context, records []Record) error
	// Search finds the top-k closest records.
	Search(ctx context.Context, vector []float32, topK int) ([]ScoredResult, error)
	// Close releases resources.
	Close() error
}

// SyncStats summarises a mirror sync.
type SyncStats struct {
	Records int `json:"records"`
	Batches int `json:"batches"`
}

// Sync pushes every record of idx to m in batches of batchSize.
func Sync(ctx context.Context, idx *Index, m Mirror, batchSize int) (stats SyncStats, err error) {
	ctx, span := observability.StartSyncSpan(ctx, fmt.Sprintf("%T", m))
	defer func() {
		observability.RecordError(span, err)
		span.End()
	}()

	if batchSize <= 0 {
		batchSize = 64
	}
	if err := m.EnsureCollection(ctx, idx.Dimension(), idx.Metric()); err != nil {
		return SyncStats{}, err
	}

	for batch := range slices.Chunk(idx.Records(), batchSize) {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		if err := m.Upsert(ctx, batch); err != nil {
			return stats, err
		}
		stats.Records += len(batch)
		stats.Batches++
	}
	idx.logger.InfoContext(ctx, "mirror sync completed", "records", stats.Records, "batches", stats.Batches)
	return stats, nil
}
