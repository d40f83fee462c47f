// Package embedding wraps the OpenAI-compatible embedding API behind the
// batch interface the ingestion and query orchestrators use.
package embedding

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/memoria-ai/memoria/internal/domain"
)

const (
	// DefaultModel is the embedding model used when none is configured.
	DefaultModel = openai.SmallEmbedding3
	// apiBatchMax caps how many inputs go into one upstream request.
	apiBatchMax = 64
)

// ErrNoAPIKey is returned when the embedding API key is not configured.
var ErrNoAPIKey = errors.New("embedding API key not set")

// Embedder computes vectors for a batch of texts, preserving input order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Config holds client configuration for the embedding service.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
}

// Client calls an OpenAI-compatible embeddings endpoint.
type Client struct {
	api   *openai.Client
	model openai.EmbeddingModel
}

// NewClient creates a Client for the configured endpoint.
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, ErrNoAPIKey
	}
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	model := openai.EmbeddingModel(cfg.Model)
	if model == "" {
		model = DefaultModel
	}
	return &Client{
		api:   openai.NewClientWithConfig(oc),
		model: model,
	}, nil
}

// Embed computes one vector per input text, in input order. The whole batch
// fails if any upstream call fails; callers treat that as a batch-level
// abort, never a partial result.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += apiBatchMax {
		end := start + apiBatchMax
		if end > len(texts) {
			end = len(texts)
		}

		resp, err := c.api.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Input: texts[start:end],
			Model: c.model,
		})
		if err != nil {
			return nil, domain.NewDomainErrorWithCause(domain.ErrCodeBackend, "embedding request failed", err)
		}
		if len(resp.Data) != end-start {
			return nil, domain.NewDomainError(domain.ErrCodeBackend,
				fmt.Sprintf("embedding response length mismatch: sent %d, got %d", end-start, len(resp.Data)))
		}
		for _, d := range resp.Data {
			out = append(out, d.Embedding)
		}
	}

	return out, nil
}
