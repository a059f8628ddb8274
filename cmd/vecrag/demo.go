package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/efebarandurmaz/vecrag/internal/analytics"
	"github.com/efebarandurmaz/vecrag/internal/cache"
	"github.com/efebarandurmaz/vecrag/internal/dataset"
	"github.com/efebarandurmaz/vecrag/internal/embed"
	"github.com/efebarandurmaz/vecrag/internal/metrics"
	"github.com/efebarandurmaz/vecrag/internal/rag"
	"github.com/efebarandurmaz/vecrag/internal/vector"
)

const (
	demoTenant       = 1001
	semanticQuery    = "luxury oceanfront suite"
	semanticLimit    = 5
	ragQuestion      = "What are the best luxury rooms available?"
	ragLimit         = 3
	demoQueryVectorK = 10

	recommendationType = "AIRecommendation"
	feedbackType       = "CustomerFeedback"
)

// demoOutput is the --json document.
type demoOutput struct {
	Report    *metrics.RunReport          `json:"report"`
	Search    rag.RetrievalContext        `json:"vector_search,omitempty"`
	Cache     *cache.ReadReport           `json:"integrated_cache,omitempty"`
	Analytics []analytics.Group           `json:"analytics,omitempty"`
	Semantic  rag.RetrievalContext        `json:"semantic_search,omitempty"`
	RAG       *rag.Answer                 `json:"rag,omitempty"`
	Bulk      []bulkItem                  `json:"bulk_insert,omitempty"`
	Changes   []vector.Change             `json:"change_feed,omitempty"`
	Sync      map[string]vector.SyncStats `json:"mirror_sync,omitempty"`
}

type bulkItem struct {
	ID    string `json:"id"`
	Error string `json:"error,omitempty"`
}

func runDemo(ctx context.Context, g globalFlags, jsonReport, showMetrics bool) error {
	rt, err := setup(ctx, g)
	if err != nil {
		return err
	}
	defer rt.close()

	var w io.Writer = os.Stdout
	if jsonReport {
		w = io.Discard
	}

	report := metrics.New(rt.provider.Name(), rt.index.Metric().String())
	out := demoOutput{Report: report}

	fmt.Fprintln(w, "=== vecrag retrieval demo ===")

	// Seed
	start := time.Now()
	seeded, err := rt.load(ctx, g.dataPath)
	if err != nil {
		return err
	}
	report.AddStep("seed", time.Since(start), len(seeded), vector.CountFailed(seeded), "", nil)
	fmt.Fprintf(w, "\nLoaded %d records (%d rejected)\n", len(seeded)-vector.CountFailed(seeded), vector.CountFailed(seeded))

	// Searches and RAG only consider recommendations.
	pipeline, err := rt.pipeline(rt.index.Metric(), typeFilter(recommendationType))
	if err != nil {
		return err
	}

	// 1. Vector similarity search
	fmt.Fprintln(w, "\n1. Vector Similarity Search")
	start = time.Now()
	res, err := pipeline.Retrieve(ctx, rag.VectorQuery(embed.LuxuryVector), demoQueryVectorK)
	detail := ""
	if err == nil {
		out.Search = res
		if len(res) > 0 {
			detail = "top: " + res[0].ID
		}
		printResults(w, res)
	} else {
		fmt.Fprintf(w, "   search failed: %v\n", err)
	}
	report.AddStep("vector_search", time.Since(start), len(res), 0, detail, err)

	// 2. Read-through cache
	fmt.Fprintln(w, "\n2. Integrated Cache")
	if len(res) > 0 {
		reader := cache.New(rt.index, cache.Config{
			Size:      rt.cfg.Cache.Size,
			Staleness: rt.cfg.Cache.Staleness,
			Logger:    rt.logger,
			Metrics:   rt.metrics,
		})
		start = time.Now()
		rr, err := reader.ReadTwice(ctx, res[0].ID)
		if err == nil {
			out.Cache = rr
			fmt.Fprintf(w, "   Reading %s with %s staleness\n", rr.ID, rr.Staleness)
			fmt.Fprintf(w, "   First read:  %s\n", rr.FirstRead)
			fmt.Fprintf(w, "   Second read: %s\n", rr.SecondRead)
			fmt.Fprintf(w, "   Cache hit detected: %t\n", rr.CacheHit)
		}
		report.AddStep("integrated_cache", time.Since(start), 2, 0, fmt.Sprintf("cache hit: %t", err == nil && rr.CacheHit), err)
	} else {
		fmt.Fprintln(w, "   skipped: no search results")
	}

	// 3. Analytics
	fmt.Fprintln(w, "\n3. Analytics")
	start = time.Now()
	groups := analytics.Aggregate(rt.index.Records(), analytics.Query{TenantID: demoTenant, Types: analytics.DefaultTypes})
	out.Analytics = groups
	for _, gr := range groups {
		line := fmt.Sprintf("   Type: %s, Count: %d", gr.Type, gr.Count)
		if gr.AvgScore != nil {
			line += fmt.Sprintf(", Avg score: %.3f, Max score: %.3f", *gr.AvgScore, *gr.MaxScore)
		}
		fmt.Fprintln(w, line)
	}
	report.AddStep("analytics", time.Since(start), len(groups), 0, fmt.Sprintf("tenant %d", demoTenant), nil)

	// 4. Semantic search
	fmt.Fprintln(w, "\n4. Semantic Search")
	start = time.Now()
	sem, err := pipeline.Retrieve(ctx, rag.TextQuery(semanticQuery), semanticLimit)
	if err == nil {
		out.Semantic = sem
		fmt.Fprintf(w, "   %q returned %d results\n", semanticQuery, len(sem))
		printResults(w, sem)
	} else {
		fmt.Fprintf(w, "   semantic search failed: %v\n", err)
	}
	report.AddStep("semantic_search", time.Since(start), len(sem), 0, "", err)

	// 5. RAG context
	fmt.Fprintln(w, "\n5. RAG Pattern")
	start = time.Now()
	answer, err := pipeline.Ask(ctx, ragQuestion, ragLimit, rt.cfg.Retrieval.MaxContextItems)
	count := 0
	if err == nil {
		out.RAG = answer
		count = answer.Count
		fmt.Fprintf(w, "   Retrieved %d relevant documents for context\n", answer.Count)
		for _, item := range answer.Context {
			fmt.Fprintf(w, "   - %-12s %.4f  %v\n", item.ID, item.Distance, item.Payload["description"])
		}
	} else {
		fmt.Fprintf(w, "   RAG failed: %v\n", err)
	}
	report.AddStep("rag", time.Since(start), count, 0, "", err)

	// 6. Bulk insert, watched by the change feed
	feed := rt.index.Subscribe(ctx, typeFilter(recommendationType, feedbackType))

	fmt.Fprintln(w, "\n6. Bulk Insert")
	start = time.Now()
	ingestor := &rag.Ingestor{
		Index:    rt.index,
		Provider: rt.provider,
		Options:  vector.BulkOptions{Concurrency: rt.cfg.Bulk.Concurrency},
		Metrics:  rt.metrics,
	}
	docs := dataset.Documents()
	results, err := ingestor.Ingest(ctx, docs)
	failed := vector.CountFailed(results)
	for _, r := range results {
		item := bulkItem{ID: r.ID}
		if r.Err != nil {
			item.Error = r.Err.Error()
		}
		out.Bulk = append(out.Bulk, item)
	}
	fmt.Fprintf(w, "   Bulk insert completed: %d successful, %d errors\n", len(results)-failed, failed)
	report.AddStep("bulk_insert", time.Since(start), len(docs), failed, "", err)

	// 7. Change feed
	fmt.Fprintln(w, "\n7. Change Feed")
	start = time.Now()
	feed.Close()
	for c := range feed.Changes() {
		out.Changes = append(out.Changes, c)
		fmt.Fprintf(w, "   #%d %-6s %-8s %v\n", c.Seq, c.Kind, c.Record.ID, c.Record.Payload["type"])
	}
	fmt.Fprintf(w, "   Processed %d AI changes\n", len(out.Changes))
	report.AddStep("change_feed", time.Since(start), len(out.Changes), 0, recommendationType+", "+feedbackType, nil)

	// 8. Mirrors
	for _, target := range enabledMirrors(rt.cfg) {
		fmt.Fprintf(w, "\n8. Mirror (%s)\n", target)
		start = time.Now()
		stats, where, err := mirror(ctx, rt, target)
		if err == nil {
			if out.Sync == nil {
				out.Sync = make(map[string]vector.SyncStats)
			}
			out.Sync[target] = stats
			fmt.Fprintf(w, "   Mirrored %d records to %s in %d batches\n", stats.Records, where, stats.Batches)
		} else {
			fmt.Fprintf(w, "   mirror failed: %v\n", err)
		}
		report.AddStep("mirror_"+target, time.Since(start), stats.Records, 0, where, err)
	}

	report.Finish(rt.index.Len())

	if jsonReport {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(out); err != nil {
			return err
		}
	} else {
		report.PrintSummary(os.Stdout)
	}

	if showMetrics {
		if err := rt.metrics.Registry.WritePrometheus(os.Stderr); err != nil {
			return err
		}
	}

	if report.Failed() {
		return fmt.Errorf("demo finished with %d failed steps", len(report.Errors))
	}
	return nil
}

func mirror(ctx context.Context, rt *runtime, target string) (vector.SyncStats, string, error) {
	m, where, err := openMirror(ctx, rt.cfg, target)
	if err != nil {
		return vector.SyncStats{}, target, err
	}
	defer m.Close()
	stats, err := vector.Sync(ctx, rt.index, m, rt.cfg.Bulk.BatchSize)
	return stats, where, err
}

func printResults(w io.Writer, res []vector.ScoredResult) {
	for _, r := range res {
		fmt.Fprintf(w, "   %-12s %.4f  %v\n", r.ID, r.Distance, r.Payload["description"])
	}
}
