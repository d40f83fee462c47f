package host

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// HTTPClient implements MessageProvider and LorebookSink against the host
// application's bridge API.
type HTTPClient struct {
	http    *http.Client
	baseURL string
	token   string
}

type HTTPConfig struct {
	BaseURL string
	Token   string
}

func NewHTTPClient(cfg HTTPConfig) *HTTPClient {
	return &HTTPClient{
		http:    &http.Client{Timeout: 30 * time.Second},
		baseURL: cfg.BaseURL,
		token:   cfg.Token,
	}
}

type messageDTO struct {
	Floor    int    `json:"floor"`
	FromUser bool   `json:"from_user"`
	Author   string `json:"author,omitempty"`
	Text     string `json:"text"`
}

func (c *HTTPClient) Messages(ctx context.Context, chatID string) ([]Message, error) {
	var dtos []messageDTO
	path := fmt.Sprintf("/chats/%s/messages", url.PathEscape(chatID))
	if err := c.get(ctx, path, &dtos); err != nil {
		return nil, err
	}

	out := make([]Message, len(dtos))
	for i, d := range dtos {
		out[i] = Message{Floor: d.Floor, FromUser: d.FromUser, Author: d.Author, Text: d.Text}
	}
	return out, nil
}

func (c *HTTPClient) CharacterID(ctx context.Context, chatID string) (string, error) {
	var resp struct {
		CharacterID string `json:"character_id"`
	}
	path := fmt.Sprintf("/chats/%s/character", url.PathEscape(chatID))
	if err := c.get(ctx, path, &resp); err != nil {
		return "", err
	}
	return resp.CharacterID, nil
}

type entryDTO struct {
	Book    string   `json:"book"`
	Name    string   `json:"name"`
	Content string   `json:"content"`
	Keys    []string `json:"keys,omitempty"`
	Enabled bool     `json:"enabled"`
}

func (c *HTTPClient) UpsertEntry(ctx context.Context, entry LorebookEntry) error {
	body, err := json.Marshal(entryDTO{
		Book:    entry.Book,
		Name:    entry.Name,
		Content: entry.Content,
		Keys:    entry.Keys,
		Enabled: entry.Enabled,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/lorebook/entries", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("host lorebook upsert returned %d", resp.StatusCode)
	}
	return nil
}

func (c *HTTPClient) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("host request %s returned %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *HTTPClient) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}
