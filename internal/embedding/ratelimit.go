package embedding

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimited throttles calls to an underlying provider.
type RateLimited struct {
	Embedder
	limiter *rate.Limiter
}

// NewRateLimited wraps e so that at most rps calls per second start, with
// bursts up to burst.
func NewRateLimited(e Embedder, rps float64, burst int) *RateLimited {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimited{Embedder: e, limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

func (r *RateLimited) Embed(ctx context.Context, text string) (Vector, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return r.Embedder.Embed(ctx, text)
}
