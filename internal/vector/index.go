// Package vector implements an in-memory exact nearest-neighbour index over
// fixed-dimension embeddings, plus the plumbing to mirror it to a remote
// vector store.
package vector

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
)

// Index holds records of a fixed dimensionality and answers k-nearest
// neighbour queries by linear scan. It is safe for concurrent use: queries
// share a read lock, mutations take the write lock.
type Index struct {
	dim    int
	metric Metric
	logger *slog.Logger

	mu    sync.RWMutex
	order []string // insertion order
	byID  map[string]*entry

	feed changeFeed
}

type entry struct {
	rec Record
	mag float32
}

// Option configures an Index.
type Option func(*Index)

// WithMetric sets the metric used by Search.
func WithMetric(m Metric) Option {
	return func(i *Index) { i.metric = m }
}

// WithLogger sets the index logger.
func WithLogger(l *slog.Logger) Option {
	return func(i *Index) {
		if l != nil {
			i.logger = l
		}
	}
}

// NewIndex creates an empty index for embeddings of length dim.
func NewIndex(dim int, opts ...Option) (*Index, error) {
	if dim <= 0 {
		return nil, &InvalidDimensionError{Dimension: dim}
	}
	idx := &Index{
		dim:    dim,
		metric: DefaultMetric,
		logger: slog.Default(),
		byID:   make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(idx)
	}
	if !idx.metric.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMetric, idx.metric)
	}
	return idx, nil
}

// Dimension returns the embedding length accepted by the index.
func (i *Index) Dimension() int { return i.dim }

// Metric returns the default metric used by Search.
func (i *Index) Metric() Metric { return i.metric }

// Len returns the number of records.
func (i *Index) Len() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.order)
}

// Insert adds a record. It fails with ErrDuplicateID if the id is present;
// use Upsert to overwrite. On a cosine index a zero-magnitude embedding fails
// with ErrInvalidVector.
func (i *Index) Insert(rec Record) error {
	return i.put(rec, false)
}

// Upsert adds a record or replaces the record with the same id. A replaced
// record keeps its position in insertion order.
func (i *Index) Upsert(rec Record) error {
	return i.put(rec, true)
}

func (i *Index) put(rec Record, overwrite bool) error {
	if rec.ID == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidRecord)
	}
	if len(rec.Embedding) != i.dim {
		return &DimensionMismatchError{Expected: i.dim, Actual: len(rec.Embedding)}
	}

	e := &entry{rec: rec.Clone(), mag: Magnitude(rec.Embedding)}
	if e.mag == 0 && i.metric == MetricCosine {
		return fmt.Errorf("%w: record %q has zero magnitude", ErrInvalidVector, rec.ID)
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	kind := ChangeInsert
	if _, ok := i.byID[rec.ID]; ok {
		if !overwrite {
			return fmt.Errorf("%w: %q", ErrDuplicateID, rec.ID)
		}
		kind = ChangeUpdate
	} else {
		i.order = append(i.order, rec.ID)
	}
	i.byID[rec.ID] = e
	i.feed.publish(kind, e.rec)

	i.logger.Debug("record stored", "id", rec.ID, "dimension", i.dim, "upsert", overwrite)
	return nil
}

// Remove deletes the record with the given id. It fails with ErrNotFound if
// the id is absent.
func (i *Index) Remove(id string) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	e, ok := i.byID[id]
	if !ok {
		return fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	delete(i.byID, id)
	i.order = slices.DeleteFunc(i.order, func(s string) bool { return s == id })
	i.feed.publish(ChangeRemove, e.rec)

	i.logger.Debug("record removed", "id", id)
	return nil
}

// Get returns a copy of the record with the given id.
func (i *Index) Get(id string) (Record, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	e, ok := i.byID[id]
	if !ok {
		return Record{}, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	return e.rec.Clone(), nil
}

// Records returns copies of all records in insertion order.
func (i *Index) Records() []Record {
	i.mu.RLock()
	defer i.mu.RUnlock()

	out := make([]Record, 0, len(i.order))
	for _, id := range i.order {
		out = append(out, i.byID[id].rec.Clone())
	}
	return out
}

// Search runs Query with the index's default metric.
func (i *Index) Search(ctx context.Context, vector []float32, k int) ([]ScoredResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return i.Query(vector, k, i.metric)
}

// Query returns up to k records closest to vector under metric, ordered by
// ascending distance with ties broken by ascending id.
func (i *Index) Query(vector []float32, k int, metric Metric) ([]ScoredResult, error) {
	return i.QueryWhere(vector, k, metric, nil)
}

// QueryWhere is Query restricted to records whose payload passes filter. The
// k nearest are taken after filtering, and records the filter rejects are
// never scored.
func (i *Index) QueryWhere(vector []float32, k int, metric Metric, filter Filter) ([]ScoredResult, error) {
	if len(vector) != i.dim {
		return nil, &DimensionMismatchError{Expected: i.dim, Actual: len(vector)}
	}
	if k <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidK, k)
	}
	if metric == "" {
		metric = i.metric
	}
	if !metric.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMetric, metric)
	}

	if metric == MetricCosine {
		if Magnitude(vector) == 0 {
			return nil, fmt.Errorf("%w: query vector has zero magnitude", ErrInvalidVector)
		}
	}

	i.mu.RLock()
	defer i.mu.RUnlock()

	type scored struct {
		e    *entry
		dist float64
	}
	all := make([]scored, 0, len(i.order))
	for _, id := range i.order {
		e := i.byID[id]
		if !filter.Match(e.rec.Payload) {
			continue
		}
		var d float64
		switch metric {
		case MetricCosine:
			if e.mag == 0 {
				return nil, fmt.Errorf("%w: record %q has zero magnitude", ErrInvalidVector, e.rec.ID)
			}
			d = cosineDistance(vector, e.rec.Embedding)
		case MetricEuclidean:
			d = EuclideanDistance(vector, e.rec.Embedding)
		}
		all = append(all, scored{e: e, dist: d})
	}

	slices.SortFunc(all, func(a, b scored) int {
		if c := cmp.Compare(a.dist, b.dist); c != 0 {
			return c
		}
		return cmp.Compare(a.e.rec.ID, b.e.rec.ID)
	})
	if k > len(all) {
		k = len(all)
	}

	out := make([]ScoredResult, k)
	for n, s := range all[:k] {
		out[n] = ScoredResult{
			ID:       s.e.rec.ID,
			Distance: s.dist,
			Payload:  maps.Clone(s.e.rec.Payload),
		}
	}
	return out, nil
}
