package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/efebarandurmaz/vecrag/internal/config"
	"github.com/efebarandurmaz/vecrag/internal/dataset"
	"github.com/efebarandurmaz/vecrag/internal/embed"
	"github.com/efebarandurmaz/vecrag/internal/observability"
	"github.com/efebarandurmaz/vecrag/internal/rag"
	"github.com/efebarandurmaz/vecrag/internal/vector"
	"github.com/efebarandurmaz/vecrag/internal/vector/qdrant"
	"github.com/efebarandurmaz/vecrag/internal/vector/sqlite"
)

type globalFlags struct {
	configPath string
	envFile    string
	dataPath   string
}

func main() {
	var g globalFlags

	rootCmd := &cobra.Command{
		Use:           "vecrag",
		Short:         "Local vector similarity search and retrieval-augmented context toolkit",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&g.configPath, "config", "", "Config file path (YAML)")
	rootCmd.PersistentFlags().StringVar(&g.envFile, "env-file", ".env", "Optional .env file")
	rootCmd.PersistentFlags().StringVar(&g.dataPath, "data", "", "JSON records file (default: built-in sample data)")

	var (
		jsonReport  bool
		showMetrics bool
	)
	demoCmd := &cobra.Command{
		Use:   "demo",
		Short: "Run the end-to-end retrieval demo",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDemo(cmd.Context(), g, jsonReport, showMetrics)
		},
	}
	demoCmd.Flags().BoolVar(&jsonReport, "json", false, "Output the run report as JSON")
	demoCmd.Flags().BoolVar(&showMetrics, "metrics", false, "Print Prometheus metrics after the run")

	var (
		queryText   string
		queryVector string
		queryK      int
		queryMetric string
		queryAsk    bool
		queryTypes  []string
	)
	queryCmd := &cobra.Command{
		Use:   "query",
		Short: "Run one similarity query against the loaded records",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd.Context(), g, queryText, queryVector, queryK, queryMetric, queryAsk, queryTypes)
		},
	}
	queryCmd.Flags().StringVar(&queryText, "text", "", "Query text, embedded with the configured provider")
	queryCmd.Flags().StringVar(&queryVector, "vector", "", "Comma-separated query vector")
	queryCmd.Flags().IntVar(&queryK, "k", 0, "Number of results (default: retrieval.top_k)")
	queryCmd.Flags().StringVar(&queryMetric, "metric", "", "Distance metric: cosine or euclidean")
	queryCmd.Flags().BoolVar(&queryAsk, "ask", false, "Return the assembled context instead of raw results")
	queryCmd.Flags().StringSliceVar(&queryTypes, "type", nil, "Only match records whose payload type is one of these")
	queryCmd.MarkFlagsMutuallyExclusive("text", "vector")
	queryCmd.MarkFlagsOneRequired("text", "vector")

	var syncTarget string
	syncCmd := &cobra.Command{
		Use:   "sync",
		Short: "Mirror the loaded records to a Qdrant collection or a SQLite file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd.Context(), g, syncTarget)
		},
	}
	syncCmd.Flags().StringVar(&syncTarget, "target", targetQdrant, "Mirror target: qdrant or sqlite")

	providersCmd := &cobra.Command{
		Use:   "providers",
		Short: "List available embedding providers",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("Available embedding providers:")
			fmt.Println()
			fmt.Printf("  %-10s %s\n", "keyword", "(built-in, 16-dim keyword vectors)")
			for _, name := range embed.NewFactory().Names() {
				if url, ok := embed.KnownProviders[name]; ok {
					if url == "" {
						url = "(set base_url)"
					}
					fmt.Printf("  %-10s %s\n", name, url)
				}
			}
			fmt.Printf("  %-10s %s\n", "custom", "(set base_url to any OpenAI-compatible endpoint)")
			fmt.Println()
			fmt.Println("Configure in vecrag.yaml or via environment:")
			fmt.Println("  VECRAG_EMBEDDING_PROVIDER=ollama")
			fmt.Println("  VECRAG_EMBEDDING_MODEL=nomic-embed-text")
			fmt.Println("  VECRAG_INDEX_DIMENSION=768")
		},
	}

	rootCmd.AddCommand(demoCmd, queryCmd, syncCmd, providersCmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

// runtime holds the components shared by every command.
type runtime struct {
	cfg      *config.Config
	logger   *slog.Logger
	tracer   *observability.TracerProvider
	metrics  *observability.RetrievalMetrics
	index    *vector.Index
	provider embed.Provider
}

func setup(ctx context.Context, g globalFlags) (*runtime, error) {
	cfg, err := config.Load(g.configPath, g.envFile)
	if err != nil {
		return nil, err
	}

	logger, err := observability.NewLogger(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	slog.SetDefault(logger)

	tcfg := observability.DefaultTracingConfig()
	tcfg.OTLPEndpoint = cfg.Tracing.OTLPEndpoint
	tcfg.SampleRate = cfg.Tracing.SampleRate
	tracer, err := observability.InitTracing(ctx, tcfg)
	if err != nil {
		return nil, fmt.Errorf("initialising tracing: %w", err)
	}

	metric, err := vector.ParseMetric(cfg.Index.Metric)
	if err != nil {
		return nil, err
	}
	idx, err := vector.NewIndex(cfg.Index.Dimension, vector.WithMetric(metric), vector.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("creating index: %w", err)
	}

	provider, err := embed.NewFactory().Create(cfg.Embedding.ProviderConfig())
	if err != nil {
		return nil, fmt.Errorf("creating embedding provider: %w", err)
	}

	return &runtime{
		cfg:      cfg,
		logger:   logger,
		tracer:   tracer,
		metrics:  observability.NewRetrievalMetrics(),
		index:    idx,
		provider: provider,
	}, nil
}

func (rt *runtime) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rt.tracer.Shutdown(ctx); err != nil {
		rt.logger.Warn("tracer shutdown failed", "error", err)
	}
}

// load fills the index from the data file or the built-in sample records.
func (rt *runtime) load(ctx context.Context, dataPath string) ([]vector.InsertResult, error) {
	records := dataset.Seed()
	if dataPath != "" {
		var err error
		records, err = dataset.LoadFile(dataPath)
		if err != nil {
			return nil, err
		}
	}
	results := rt.index.BulkInsert(ctx, records, vector.BulkOptions{Concurrency: rt.cfg.Bulk.Concurrency})
	failed := vector.CountFailed(results)
	rt.metrics.RecordBulk(len(results)-failed, failed)
	rt.metrics.SetIndexSize(rt.index.Len())
	return results, nil
}

func (rt *runtime) pipeline(metric vector.Metric, filter vector.Filter) (*rag.Pipeline, error) {
	return rag.NewPipeline(rt.index, rt.provider,
		rag.WithMetric(metric),
		rag.WithFilter(filter),
		rag.WithLogger(rt.logger),
		rag.WithMetrics(rt.metrics),
	)
}

// typeFilter matches records whose payload type is one of types. No types
// means no filter.
func typeFilter(types ...string) vector.Filter {
	if len(types) == 0 {
		return nil
	}
	values := make([]any, len(types))
	for i, t := range types {
		values[i] = t
	}
	return vector.FieldIn("type", values...)
}

func runQuery(ctx context.Context, g globalFlags, text, vec string, k int, metricName string, ask bool, types []string) error {
	rt, err := setup(ctx, g)
	if err != nil {
		return err
	}
	defer rt.close()

	if _, err := rt.load(ctx, g.dataPath); err != nil {
		return err
	}

	metric, err := vector.ParseMetric(metricName)
	if err != nil {
		return err
	}
	if metricName == "" {
		metric = rt.index.Metric()
	}
	if k <= 0 {
		k = rt.cfg.Retrieval.TopK
	}

	p, err := rt.pipeline(metric, typeFilter(types...))
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	if ask {
		if text == "" {
			return fmt.Errorf("--ask requires --text")
		}
		answer, err := p.Ask(ctx, text, k, rt.cfg.Retrieval.MaxContextItems)
		if err != nil {
			return err
		}
		return enc.Encode(answer)
	}

	q := rag.TextQuery(text)
	if vec != "" {
		v, err := parseVector(vec)
		if err != nil {
			return err
		}
		q = rag.VectorQuery(v)
	}
	res, err := p.Retrieve(ctx, q, k)
	if err != nil {
		return err
	}
	return enc.Encode(res)
}

const (
	targetQdrant = "qdrant"
	targetSQLite = "sqlite"
)

// openMirror connects to a mirror target and describes where it points.
func openMirror(ctx context.Context, cfg *config.Config, target string) (vector.Mirror, string, error) {
	switch target {
	case targetQdrant:
		q := cfg.Qdrant
		repo, err := qdrant.New(ctx, q.Host, q.Port, q.Collection)
		if err != nil {
			return nil, "", fmt.Errorf("connecting to qdrant: %w", err)
		}
		return repo, fmt.Sprintf("%s:%d/%s", q.Host, q.Port, q.Collection), nil
	case targetSQLite:
		store, err := sqlite.Open(cfg.SQLite.Path)
		if err != nil {
			return nil, "", err
		}
		return store, cfg.SQLite.Path, nil
	default:
		return nil, "", fmt.Errorf("unknown mirror target %q", target)
	}
}

// enabledMirrors lists the mirror targets switched on in the config.
func enabledMirrors(cfg *config.Config) []string {
	var targets []string
	if cfg.Qdrant.Enabled {
		targets = append(targets, targetQdrant)
	}
	if cfg.SQLite.Enabled {
		targets = append(targets, targetSQLite)
	}
	return targets
}

func runSync(ctx context.Context, g globalFlags, target string) error {
	rt, err := setup(ctx, g)
	if err != nil {
		return err
	}
	defer rt.close()

	if _, err := rt.load(ctx, g.dataPath); err != nil {
		return err
	}

	m, where, err := openMirror(ctx, rt.cfg, target)
	if err != nil {
		return err
	}
	defer m.Close()

	stats, err := vector.Sync(ctx, rt.index, m, rt.cfg.Bulk.BatchSize)
	if err != nil {
		return fmt.Errorf("mirroring to %s: %w", target, err)
	}
	fmt.Printf("Mirrored %d records to %s in %d batches\n", stats.Records, where, stats.Batches)
	return nil
}

func parseVector(s string) ([]float32, error) {
	parts := strings.Split(s, ",")
	out := make([]float32, 0, len(parts))
	for _, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return nil, fmt.Errorf("invalid vector component %q: %w", p, err)
		}
		out = append(out, float32(f))
	}
	return out, nil
}
