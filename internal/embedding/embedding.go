// Package embedding provides a pluggable interface for text embedding providers.
package embedding

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"
)

// Vector is a float32 embedding vector.
type Vector = []float32

// Embedder generates embedding vectors from text.
type Embedder interface {
	Embed(ctx context.Context, text string) (Vector, error)
	Dims() int
}

// CosineSimilarity computes cosine similarity between two vectors.
func CosineSimilarity(a, b Vector) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Config selects and configures a provider.
type Config struct {
	Provider  string        `mapstructure:"provider"` // hash | ollama | openai
	Model     string        `mapstructure:"model"`
	BaseURL   string        `mapstructure:"url"`
	APIKey    string        `mapstructure:"api_key"`
	Dims      int           `mapstructure:"dims"`
	RateLimit float64       `mapstructure:"rate_limit"` // requests per second, 0 = unlimited
	Burst     int           `mapstructure:"burst"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// NewFromConfig builds the configured embedder. An empty provider selects
// the local hash embedder.
func NewFromConfig(cfg Config) (Embedder, error) {
	var e Embedder
	switch strings.ToLower(cfg.Provider) {
	case "", "hash":
		e = NewHashEmbedder(cfg.Dims)
	case "ollama":
		oe, err := NewOllamaEmbedder(cfg.BaseURL, cfg.Model, cfg.Dims)
		if err != nil {
			return nil, err
		}
		e = oe
	case "openai":
		e = NewOpenAIEmbedder(cfg.BaseURL, cfg.APIKey, cfg.Model, cfg.Dims)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
	if cfg.RateLimit > 0 {
		e = NewRateLimited(e, cfg.RateLimit, cfg.Burst)
	}
	return e, nil
}
