// Package rerank calls an external relevance re-ranking service. Failures
// here degrade to local-only scoring upstream, so the client only reports
// errors, it never retries.
package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/samber/lo"

	"github.com/memoria-ai/memoria/internal/domain"
)

// Score is one reranked document, keyed by its index in the request order.
type Score struct {
	Index     int     `json:"index"`
	Relevance float64 `json:"relevance_score"`
}

// Reranker scores documents against a query in one call.
type Reranker interface {
	Rerank(ctx context.Context, query string, documents []string) ([]Score, error)
}

// Config holds client configuration for the rerank service.
type Config struct {
	Endpoint string
	APIKey   string
	Model    string
}

// Client is a plain HTTP client for a jina-style rerank API.
type Client struct {
	http     *http.Client
	endpoint string
	apiKey   string
	model    string
}

// NewClient creates a rerank Client.
func NewClient(cfg Config) *Client {
	return &Client{
		http:     &http.Client{Timeout: 30 * time.Second},
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		model:    cfg.Model,
	}
}

type rerankRequest struct {
	Model     string   `json:"model,omitempty"`
	Query     string   `json:"query"`
	TopN      int      `json:"top_n"`
	Documents []string `json:"documents"`
}

type rerankResponse struct {
	Results []Score `json:"results"`
}

// Rerank scores all documents against the query in a single request.
func (c *Client) Rerank(ctx context.Context, query string, documents []string) ([]Score, error) {
	if len(documents) == 0 {
		return nil, nil
	}

	raw, _ := json.Marshal(rerankRequest{
		Model:     c.model,
		Query:     query,
		TopN:      len(documents),
		Documents: documents,
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeBackend, "rerank request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, domain.NewDomainError(domain.ErrCodeBackend,
			fmt.Sprintf("rerank request failed: %s", resp.Status))
	}

	var result rerankResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeBackend, "malformed rerank response", err)
	}

	// Drop out-of-range indexes from a misbehaving backend.
	return lo.Filter(result.Results, func(s Score, _ int) bool {
		return s.Index >= 0 && s.Index < len(documents)
	}), nil
}
