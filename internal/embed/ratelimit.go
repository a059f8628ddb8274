package embed

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitConfig configures request rate limiting.
type RateLimitConfig struct {
	// RequestsPerMinute limits the number of API calls per minute (0 = unlimited).
	RequestsPerMinute int
	// BurstSize allows temporary bursts above the steady rate.
	BurstSize int
}

// RateLimitProvider wraps a provider with a token-bucket limiter.
type RateLimitProvider struct {
	inner   Provider
	limiter *rate.Limiter
}

// NewRateLimitProvider creates a rate-limited provider wrapper.
func NewRateLimitProvider(inner Provider, config RateLimitConfig) *RateLimitProvider {
	limit := rate.Inf
	if config.RequestsPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(config.RequestsPerMinute))
	}
	burst := config.BurstSize
	if burst <= 0 {
		burst = 1
	}
	return &RateLimitProvider{
		inner:   inner,
		limiter: rate.NewLimiter(limit, burst),
	}
}

func (r *RateLimitProvider) Name() string { return r.inner.Name() }

// Embed waits for limiter capacity, then delegates.
func (r *RateLimitProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &ProviderError{Provider: r.inner.Name(), Message: "rate limit wait", Err: err}
	}
	return r.inner.Embed(ctx, text)
}

// WithRateLimit wraps p with rate limiting; it returns p unchanged when the
// configuration is unlimited.
func WithRateLimit(p Provider, config RateLimitConfig) Provider {
	if p == nil || config.RequestsPerMinute <= 0 {
		return p
	}
	return NewRateLimitProvider(p, config)
}
