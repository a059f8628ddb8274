package vector

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// BulkOptions controls BulkInsert.
type BulkOptions struct {
	// Concurrency bounds the number of in-flight inserts (default 8).
	Concurrency int
	// Upsert overwrites existing ids instead of failing with ErrDuplicateID.
	Upsert bool
}

// InsertResult is the outcome for one record of a bulk insert.
type InsertResult struct {
	ID  string
	Err error
}

// BulkInsert stores each record as an independent task. The returned slice
// has one entry per input record, in input order; a failed record never
// aborts the others. Records not yet started when ctx is done fail with
// ctx.Err().
func (i *Index) BulkInsert(ctx context.Context, records []Record, opts BulkOptions) []InsertResult {
	results := make([]InsertResult, len(records))
	if len(records) == 0 {
		return results
	}

	limit := opts.Concurrency
	if limit <= 0 {
		limit = 8
	}

	var g errgroup.Group
	g.SetLimit(limit)
	for n, rec := range records {
		results[n].ID = rec.ID
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[n].Err = err
				return nil
			}
			if opts.Upsert {
				results[n].Err = i.Upsert(rec)
			} else {
				results[n].Err = i.Insert(rec)
			}
			return nil
		})
	}
	_ = g.Wait()

	failed := CountFailed(results)
	if failed > 0 {
		i.logger.WarnContext(ctx, "bulk insert completed with failures",
			"total", len(records),
			"failed", failed,
			"success", len(records)-failed,
		)
	} else {
		i.logger.InfoContext(ctx, "bulk insert completed", "count", len(records))
	}
	return results
}

// CountFailed returns the number of results carrying an error.
func CountFailed(results []InsertResult) int {
	n := 0
	for _, r := range results {
		if r.Err != nil {
			n++
		}
	}
	return n
}
