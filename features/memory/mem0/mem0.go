// Package mem0 implements the user-memory backend over the Mem0 REST API.
// Authentication uses the platform's Token scheme; memories are scoped by
// user id on every call.
package mem0

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/huminex/t4chat/runtime/chat/memory"
	"github.com/huminex/t4chat/runtime/chat/model"
)

const (
	defaultBaseURL = "https://api.mem0.ai/"
	defaultTimeout = 15 * time.Second
)

// Options configures the client.
type Options struct {
	// APIKey authenticates against Mem0. Required.
	APIKey string
	// BaseURL overrides the API root, used by tests.
	BaseURL string
	// HTTPClient overrides the default client.
	HTTPClient *http.Client
}

// Client implements memory.Store over the Mem0 API.
type Client struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

var _ memory.Store = (*Client)(nil)

// New builds a Mem0 client.
func New(opts Options) (*Client, error) {
	if opts.APIKey == "" {
		return nil, errors.New("mem0 api key is required")
	}
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{apiKey: opts.APIKey, baseURL: strings.TrimSuffix(baseURL, "/"), http: hc}, nil
}

type memoryRecord struct {
	ID        string    `json:"id"`
	Memory    string    `json:"memory"`
	CreatedAt time.Time `json:"created_at"`
}

type searchRequest struct {
	Query  string `json:"query"`
	UserID string `json:"user_id"`
}

type addRequest struct {
	Messages []addMessage `json:"messages"`
	UserID   string       `json:"user_id"`
}

type addMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Relevant searches the user's memories for entries related to query.
func (c *Client) Relevant(ctx context.Context, userID, query string) ([]memory.Memory, error) {
	body, err := json.Marshal(searchRequest{Query: query, UserID: userID})
	if err != nil {
		return nil, fmt.Errorf("marshal memory search: %w", err)
	}
	var records []memoryRecord
	if err := c.do(ctx, http.MethodPost, "/v1/memories/search/", body, &records); err != nil {
		return nil, err
	}
	return convert(records), nil
}

// Remember submits the turn's messages; the backend extracts what is worth
// keeping.
func (c *Client) Remember(ctx context.Context, userID string, msgs []*model.Message) error {
	req := addRequest{UserID: userID}
	for _, m := range msgs {
		if m == nil || m.Content == "" {
			continue
		}
		switch m.Role {
		case model.RoleUser, model.RoleAssistant:
			req.Messages = append(req.Messages, addMessage{Role: string(m.Role), Content: m.Content})
		}
	}
	if len(req.Messages) == 0 {
		return nil
	}
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal memory add: %w", err)
	}
	return c.do(ctx, http.MethodPost, "/v1/memories/", body, nil)
}

// List returns all of the user's memories.
func (c *Client) List(ctx context.Context, userID string) ([]memory.Memory, error) {
	var records []memoryRecord
	path := "/v1/memories/?user_id=" + url.QueryEscape(userID)
	if err := c.do(ctx, http.MethodGet, path, nil, &records); err != nil {
		return nil, err
	}
	return convert(records), nil
}

// Delete removes one memory.
func (c *Client) Delete(ctx context.Context, _, id string) error {
	return c.do(ctx, http.MethodDelete, "/v1/memories/"+url.PathEscape(id), nil, nil)
}

// DeleteAll removes all of the user's memories.
func (c *Client) DeleteAll(ctx context.Context, userID string) error {
	path := "/v1/memories/?user_id=" + url.QueryEscape(userID)
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build memory request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Token "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("mem0 network error: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return memory.ErrNotFound
	case resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent:
		return fmt.Errorf("mem0 API error: %d %s", resp.StatusCode, resp.Status)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode memory response: %w", err)
	}
	return nil
}

func convert(records []memoryRecord) []memory.Memory {
	out := make([]memory.Memory, 0, len(records))
	for _, r := range records {
		out = append(out, memory.Memory{ID: r.ID, Text: r.Memory, CreatedAt: r.CreatedAt})
	}
	return out
}
