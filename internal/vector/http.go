package vector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/memoria-ai/memoria/internal/domain"
)

// HTTPStore talks to an external vector backend over HTTP. The backend owns
// the wire shapes; this client is deliberately tolerant about the envelope
// the query results arrive in.
type HTTPStore struct {
	http    *http.Client
	baseURL string
	apiKey  string
}

// HTTPConfig holds client configuration for the vector backend.
type HTTPConfig struct {
	BaseURL string
	APIKey  string
}

// NewHTTPStore creates an HTTPStore.
func NewHTTPStore(cfg HTTPConfig) *HTTPStore {
	return &HTTPStore{
		http:    &http.Client{Timeout: 60 * time.Second},
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
	}
}

type insertRequest struct {
	CollectionID string               `json:"collection_id"`
	Items        []insertItem         `json:"items"`
	Embeddings   map[string][]float32 `json:"embeddings"`
}

type insertItem struct {
	Hash     string         `json:"hash"`
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata"`
}

// Insert writes a batch of vector items into a collection.
func (s *HTTPStore) Insert(ctx context.Context, collectionID string, items []domain.VectorItem) error {
	if collectionID == "" {
		return domain.ErrMissingCollectionID
	}
	if len(items) == 0 {
		return nil
	}

	req := insertRequest{
		CollectionID: collectionID,
		Embeddings:   make(map[string][]float32, len(items)),
	}
	for _, item := range items {
		req.Items = append(req.Items, insertItem{
			Hash:     item.Hash,
			Text:     item.Text,
			Metadata: item.Metadata,
		})
		req.Embeddings[item.Text] = item.Vector
	}

	_, err := s.post(ctx, "/insert", req)
	return err
}

type queryRequest struct {
	CollectionID string               `json:"collection_id"`
	SearchText   string               `json:"search_text"`
	TopK         int                  `json:"top_k"`
	Threshold    float64              `json:"threshold"`
	Embeddings   map[string][]float32 `json:"embeddings"`
}

// Query runs a similarity search against one collection. A 404 means the
// collection does not exist yet and yields zero hits.
func (s *HTTPStore) Query(ctx context.Context, in QueryInput) ([]RawHit, error) {
	if in.CollectionID == "" {
		return nil, domain.ErrMissingCollectionID
	}

	body, err := s.post(ctx, "/query", queryRequest{
		CollectionID: in.CollectionID,
		SearchText:   in.SearchText,
		TopK:         in.TopK,
		Threshold:    in.Threshold,
		Embeddings:   map[string][]float32{in.SearchText: in.Embedding},
	})
	if err != nil {
		return nil, err
	}
	if body == nil {
		return nil, nil
	}
	return decodeHits(body)
}

// Purge deletes a whole collection.
func (s *HTTPStore) Purge(ctx context.Context, collectionID string) error {
	if collectionID == "" {
		return domain.ErrMissingCollectionID
	}
	_, err := s.post(ctx, "/purge", map[string]string{"collection_id": collectionID})
	return err
}

// List returns the stored hashes of a collection, used for counting.
func (s *HTTPStore) List(ctx context.Context, collectionID string) ([]string, error) {
	if collectionID == "" {
		return nil, domain.ErrMissingCollectionID
	}
	body, err := s.post(ctx, "/list", map[string]string{"collection_id": collectionID})
	if err != nil || body == nil {
		return nil, err
	}

	var hashes []string
	if err := json.Unmarshal(body, &hashes); err == nil {
		return hashes, nil
	}
	var envelope struct {
		Hashes []string `json:"hashes"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeBackend, "malformed list response", err)
	}
	return envelope.Hashes, nil
}

// post issues one backend call. A 404 response returns (nil, nil) so callers
// can treat a missing collection as empty rather than failed.
func (s *HTTPStore) post(ctx context.Context, path string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeBackend, "vector backend request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, domain.NewDomainError(domain.ErrCodeBackend,
			fmt.Sprintf("vector backend %s failed: %s", path, resp.Status))
	}
	return body, nil
}

// decodeHits accepts a bare array or any of the {metadata|results|data: [...]}
// envelopes different backend versions produce.
func decodeHits(body []byte) ([]RawHit, error) {
	var hits []RawHit
	if err := json.Unmarshal(body, &hits); err == nil {
		return hits, nil
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeBackend, "malformed query response", err)
	}
	for _, key := range []string{"metadata", "results", "data"} {
		raw, ok := envelope[key]
		if !ok {
			continue
		}
		if err := json.Unmarshal(raw, &hits); err != nil {
			return nil, domain.NewDomainErrorWithCause(domain.ErrCodeBackend, "malformed query response", err)
		}
		return hits, nil
	}
	return nil, domain.NewDomainError(domain.ErrCodeBackend, "unrecognized query response shape")
}
