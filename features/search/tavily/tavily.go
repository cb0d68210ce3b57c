// Package tavily implements the web-search backend over the Tavily search
// API. Failures map to distinguishable messages so the error classifier and
// the tool outcome can tell auth, rate-limit, payment and network problems
// apart.
package tavily

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/huminex/t4chat/runtime/chat/tools"
)

const (
	defaultEndpoint = "https://api.tavily.com/search"
	defaultTimeout  = 15 * time.Second
	maxResults      = 5
)

// Options configures the client.
type Options struct {
	// APIKey authenticates against Tavily. Required.
	APIKey string
	// Endpoint overrides the search URL, used by tests.
	Endpoint string
	// HTTPClient overrides the default client.
	HTTPClient *http.Client
}

// Client implements tools.Searcher over the Tavily search API.
type Client struct {
	apiKey   string
	endpoint string
	http     *http.Client
}

var _ tools.Searcher = (*Client)(nil)

// New builds a Tavily client.
func New(opts Options) (*Client, error) {
	if opts.APIKey == "" {
		return nil, errors.New("tavily api key is required")
	}
	endpoint := opts.Endpoint
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{apiKey: opts.APIKey, endpoint: endpoint, http: hc}, nil
}

type searchRequest struct {
	Query          string   `json:"query"`
	SearchDepth    string   `json:"search_depth"`
	IncludeAnswer  bool     `json:"include_answer"`
	IncludeRaw     bool     `json:"include_raw_content"`
	MaxResults     int      `json:"max_results"`
	IncludeDomains []string `json:"include_domains"`
	ExcludeDomains []string `json:"exclude_domains"`
}

type searchResponse struct {
	Results []tools.SearchResult `json:"results"`
}

type errorResponse struct {
	Message string `json:"message"`
}

// Search posts the query and returns up to five basic-depth results.
func (c *Client) Search(ctx context.Context, query string) ([]tools.SearchResult, error) {
	body, err := json.Marshal(searchRequest{
		Query:          query,
		SearchDepth:    "basic",
		IncludeAnswer:  true,
		MaxResults:     maxResults,
		IncludeDomains: []string{},
		ExcludeDomains: []string{},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal search request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tavily network error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var er errorResponse
		_ = json.NewDecoder(resp.Body).Decode(&er)
		switch resp.StatusCode {
		case http.StatusUnauthorized:
			return nil, errors.New("Tavily authentication failed: Invalid API key")
		case http.StatusTooManyRequests:
			return nil, fmt.Errorf("Tavily rate limit exceeded: %s", orDefault(er.Message, "Too many requests"))
		case http.StatusPaymentRequired:
			return nil, fmt.Errorf("Tavily insufficient credits: %s", orDefault(er.Message, "Payment required"))
		default:
			return nil, fmt.Errorf("Tavily API error: %d %s", resp.StatusCode, orDefault(er.Message, resp.Status))
		}
	}

	var sr searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	return sr.Results, nil
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
