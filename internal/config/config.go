package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/efebarandurmaz/vecrag/internal/embed"
	"github.com/efebarandurmaz/vecrag/internal/secrets"
	"github.com/efebarandurmaz/vecrag/internal/vector"
)

// EnvPrefix prefixes every environment override, e.g. VECRAG_INDEX_METRIC.
const EnvPrefix = "VECRAG"

// Config holds all application configuration.
type Config struct {
	Index     IndexConfig     `mapstructure:"index"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	Retrieval RetrievalConfig `mapstructure:"retrieval"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Bulk      BulkConfig      `mapstructure:"bulk"`
	Qdrant    QdrantConfig    `mapstructure:"qdrant"`
	SQLite    SQLiteConfig    `mapstructure:"sqlite"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
	Log       LogConfig       `mapstructure:"log"`
}

type IndexConfig struct {
	Dimension int    `mapstructure:"dimension"`
	Metric    string `mapstructure:"metric"`
}

type EmbeddingConfig struct {
	Provider          string        `mapstructure:"provider"`
	Model             string        `mapstructure:"model"`
	APIKey            string        `mapstructure:"api_key"`
	BaseURL           string        `mapstructure:"base_url"`
	Timeout           time.Duration `mapstructure:"timeout"`
	MaxRetries        int           `mapstructure:"max_retries"`
	RequestsPerMinute int           `mapstructure:"requests_per_minute"`
	CacheSize         int           `mapstructure:"cache_size"`
}

// ProviderConfig converts the section into an embed.Config.
func (c EmbeddingConfig) ProviderConfig() embed.Config {
	return embed.Config{
		Provider:          c.Provider,
		APIKey:            c.APIKey,
		Model:             c.Model,
		BaseURL:           c.BaseURL,
		Timeout:           c.Timeout,
		MaxRetries:        c.MaxRetries,
		RequestsPerMinute: c.RequestsPerMinute,
		CacheSize:         c.CacheSize,
	}
}

type RetrievalConfig struct {
	TopK            int `mapstructure:"top_k"`
	MaxContextItems int `mapstructure:"max_context_items"`
}

type CacheConfig struct {
	Size      int           `mapstructure:"size"`
	Staleness time.Duration `mapstructure:"staleness"`
}

type BulkConfig struct {
	Concurrency int `mapstructure:"concurrency"`
	// BatchSize is the number of records per mirror upsert.
	BatchSize   int `mapstructure:"batch_size"`
}

type QdrantConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	Collection string `mapstructure:"collection"`
}

type SQLiteConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

type TracingConfig struct {
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	SampleRate   float64 `mapstructure:"sample_rate"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Default returns a configuration that runs the demo without any file.
func Default() *Config {
	return &Config{
		Index:     IndexConfig{Dimension: embed.DemoDimension, Metric: string(vector.DefaultMetric)},
		Embedding: EmbeddingConfig{Provider: "keyword", Timeout: 30 * time.Second, MaxRetries: 3},
		Retrieval: RetrievalConfig{TopK: 10, MaxContextItems: 3},
		Cache:     CacheConfig{Size: 1024, Staleness: 30 * time.Second},
		Bulk:      BulkConfig{Concurrency: 8, BatchSize: 64},
		Qdrant:    QdrantConfig{Host: "localhost", Port: 6334, Collection: "vecrag"},
		SQLite:    SQLiteConfig{Path: "vecrag.db"},
		Tracing:   TracingConfig{SampleRate: 1.0},
		Log:       LogConfig{Level: "info", Format: "text"},
	}
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("index.dimension", d.Index.Dimension)
	v.SetDefault("index.metric", d.Index.Metric)
	v.SetDefault("embedding.provider", d.Embedding.Provider)
	v.SetDefault("embedding.model", d.Embedding.Model)
	v.SetDefault("embedding.api_key", d.Embedding.APIKey)
	v.SetDefault("embedding.base_url", d.Embedding.BaseURL)
	v.SetDefault("embedding.timeout", d.Embedding.Timeout)
	v.SetDefault("embedding.max_retries", d.Embedding.MaxRetries)
	v.SetDefault("embedding.requests_per_minute", d.Embedding.RequestsPerMinute)
	v.SetDefault("embedding.cache_size", d.Embedding.CacheSize)
	v.SetDefault("retrieval.top_k", d.Retrieval.TopK)
	v.SetDefault("retrieval.max_context_items", d.Retrieval.MaxContextItems)
	v.SetDefault("cache.size", d.Cache.Size)
	v.SetDefault("cache.staleness", d.Cache.Staleness)
	v.SetDefault("bulk.concurrency", d.Bulk.Concurrency)
	v.SetDefault("bulk.batch_size", d.Bulk.BatchSize)
	v.SetDefault("qdrant.enabled", d.Qdrant.Enabled)
	v.SetDefault("qdrant.host", d.Qdrant.Host)
	v.SetDefault("qdrant.port", d.Qdrant.Port)
	v.SetDefault("qdrant.collection", d.Qdrant.Collection)
	v.SetDefault("sqlite.enabled", d.SQLite.Enabled)
	v.SetDefault("sqlite.path", d.SQLite.Path)
	v.SetDefault("tracing.otlp_endpoint", d.Tracing.OTLPEndpoint)
	v.SetDefault("tracing.sample_rate", d.Tracing.SampleRate)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
}

// Validate checks configuration for issues and returns warnings.
func (c *Config) Validate() []string {
	var warnings []string

	if c.Index.Dimension <= 0 {
		warnings = append(warnings, fmt.Sprintf("index dimension %d must be positive", c.Index.Dimension))
	}
	if _, err := vector.ParseMetric(c.Index.Metric); err != nil {
		warnings = append(warnings, fmt.Sprintf("index metric %q is not supported", c.Index.Metric))
	}

	p := c.Embedding.Provider
	if p != "" && p != "keyword" && p != "ollama" && c.Embedding.APIKey == "" {
		warnings = append(warnings, fmt.Sprintf("embedding provider '%s' is configured but api_key is empty", p))
	}
	if (p == "" || p == "keyword") && c.Index.Dimension != embed.DemoDimension {
		warnings = append(warnings, fmt.Sprintf("keyword embeddings have %d dimensions but the index has %d", embed.DemoDimension, c.Index.Dimension))
	}
	if c.Embedding.MaxRetries < 0 {
		warnings = append(warnings, fmt.Sprintf("embedding max_retries %d is negative", c.Embedding.MaxRetries))
	}

	if c.Retrieval.TopK <= 0 {
		warnings = append(warnings, fmt.Sprintf("retrieval top_k %d must be positive", c.Retrieval.TopK))
	}
	if c.Cache.Staleness <= 0 {
		warnings = append(warnings, "cache staleness must be positive")
	}
	if c.SQLite.Enabled && c.SQLite.Path == "" {
		warnings = append(warnings, "sqlite mirror is enabled but path is empty")
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		warnings = append(warnings, fmt.Sprintf("tracing sample_rate %.2f is outside [0.0, 1.0]", c.Tracing.SampleRate))
	}

	return warnings
}

// Load reads configuration from an optional file, an optional .env file and
// the environment. An empty path skips the config file; a missing envFile
// is ignored. embedding.api_key may be a secrets reference such as
// "env:OPENAI_API_KEY" or "file:/run/secrets/openai".
func Load(path, envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("loading env file: %w", err)
		}
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	key, err := secrets.NewResolver(EnvPrefix+"_").Resolve(context.Background(), cfg.Embedding.APIKey)
	if err != nil {
		return nil, fmt.Errorf("embedding api_key: %w", err)
	}
	cfg.Embedding.APIKey = key

	if warnings := cfg.Validate(); len(warnings) > 0 {
		for _, warning := range warnings {
			fmt.Fprintf(os.Stderr, "Warning: %s\n", warning)
		}
	}

	return &cfg, nil
}
