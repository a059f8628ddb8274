package embed

import (
	"fmt"
	"slices"
	"time"
)

// Config holds everything needed to build any embedding provider.
type Config struct {
	Provider string // "keyword", "openai", "ollama", "together", "custom", ...
	APIKey   string
	Model    string
	BaseURL  string // Override for self-hosted / custom endpoints

	Timeout           time.Duration // Per-attempt timeout (default 30s)
	MaxRetries        int           // Retry attempts for remote providers
	RetryDelay        time.Duration // Initial backoff delay (default 1s)
	RequestsPerMinute int           // 0 = unlimited
	CacheSize         int           // 0 disables memoisation
	DisableBreaker    bool
}

// Constructor builds a Provider from config.
type Constructor func(cfg Config) (Provider, error)

// Factory creates Provider instances from config.
type Factory struct {
	constructors map[string]Constructor
}

// NewFactory creates a factory with the built-in providers registered:
// "keyword" and every entry of KnownProviders plus "custom".
func NewFactory() *Factory {
	f := &Factory{constructors: make(map[string]Constructor)}
	f.Register("keyword", func(Config) (Provider, error) {
		return NewKeywordProvider(), nil
	})
	for name, url := range KnownProviders {
		f.Register(name, openAICompatible(name, url))
	}
	f.Register("custom", func(c Config) (Provider, error) {
		if c.BaseURL == "" {
			return nil, fmt.Errorf("custom embedding provider requires base_url")
		}
		return NewOpenAI("custom", c.APIKey, c.Model, c.BaseURL), nil
	})
	return f
}

func openAICompatible(name, url string) Constructor {
	return func(c Config) (Provider, error) {
		base := c.BaseURL
		if base == "" {
			base = url
		}
		if base == "" {
			return nil, fmt.Errorf("embedding provider %q requires base_url", name)
		}
		return NewOpenAI(name, c.APIKey, c.Model, base), nil
	}
}

// Register adds a provider constructor under the given name.
func (f *Factory) Register(name string, ctor Constructor) {
	f.constructors[name] = ctor
}

// Names returns the registered provider names, sorted.
func (f *Factory) Names() []string {
	out := make([]string, 0, len(f.constructors))
	for k := range f.constructors {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

// Create builds a Provider from config. An empty provider name selects
// "keyword". Remote providers are wrapped, from the outside in, with
// memoisation, a circuit breaker, retries and rate limiting.
func (f *Factory) Create(cfg Config) (Provider, error) {
	name := cfg.Provider
	if name == "" {
		name = "keyword"
	}
	ctor, ok := f.constructors[name]
	if !ok {
		return nil, fmt.Errorf("unknown embedding provider %q (registered: %v)", name, f.Names())
	}

	p, err := ctor(cfg)
	if err != nil {
		return nil, err
	}
	if name == "keyword" {
		return p, nil
	}

	p = WithRateLimit(p, RateLimitConfig{RequestsPerMinute: cfg.RequestsPerMinute, BurstSize: 1})

	retry := DefaultRetryConfig()
	retry.MaxRetries = cfg.MaxRetries
	if cfg.Timeout > 0 {
		retry.Timeout = cfg.Timeout
	}
	if cfg.RetryDelay > 0 {
		retry.RetryDelay = cfg.RetryDelay
	}
	p = NewRetryProvider(p, retry)

	if !cfg.DisableBreaker {
		p = NewBreakerProvider(p, DefaultBreakerConfig())
	}
	if cfg.CacheSize > 0 {
		cp, err := NewCachingProvider(p, cfg.CacheSize)
		if err != nil {
			return nil, err
		}
		p = cp
	}
	return p, nil
}
