package embedding

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/ollama/ollama/api"
)

// OllamaEmbedder uses a local Ollama instance for embeddings.
type OllamaEmbedder struct {
	client *api.Client
	model  string
	dims   int
}

// NewOllamaEmbedder creates an embedder using Ollama's API. An empty baseURL
// falls back to OLLAMA_HOST and then localhost.
// Default model: nomic-embed-text (768 dims), all-minilm (384 dims).
func NewOllamaEmbedder(baseURL, model string, dims int) (*OllamaEmbedder, error) {
	if model == "" {
		model = "nomic-embed-text"
	}
	if dims <= 0 {
		dims = 768
		if model == "all-minilm" {
			dims = 384
		}
	}

	var client *api.Client
	if baseURL == "" {
		c, err := api.ClientFromEnvironment()
		if err != nil {
			return nil, fmt.Errorf("ollama client: %w", err)
		}
		client = c
	} else {
		u, err := url.Parse(baseURL)
		if err != nil {
			return nil, fmt.Errorf("ollama base url: %w", err)
		}
		client = api.NewClient(u, &http.Client{Timeout: 30 * time.Second})
	}
	return &OllamaEmbedder{client: client, model: model, dims: dims}, nil
}

func (e *OllamaEmbedder) Embed(ctx context.Context, text string) (Vector, error) {
	resp, err := e.client.Embed(ctx, &api.EmbedRequest{Model: e.model, Input: text})
	if err != nil {
		return nil, fmt.Errorf("ollama request failed: %w", err)
	}
	if len(resp.Embeddings) == 0 {
		return nil, fmt.Errorf("ollama: no embedding returned")
	}
	return resp.Embeddings[0], nil
}

func (e *OllamaEmbedder) Dims() int { return e.dims }
