// Package gemini implements the image-generation backend over the Gemini
// generateContent API with image response modality. The caller supplies the
// API key per turn; it never lives in server configuration.
package gemini

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/huminex/t4chat/runtime/chat/serviceerr"
	"github.com/huminex/t4chat/runtime/chat/tools"
)

const (
	defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	defaultModel   = "gemini-2.0-flash-preview-image-generation"
	defaultTimeout = 60 * time.Second
)

// Options configures the client.
type Options struct {
	// BaseURL overrides the API origin, used by tests.
	BaseURL string
	// Model overrides the image-generation model.
	Model string
	// HTTPClient overrides the default client.
	HTTPClient *http.Client
}

// Client implements tools.ImageGenerator over the Gemini API.
type Client struct {
	baseURL string
	model   string
	http    *http.Client
}

var _ tools.ImageGenerator = (*Client)(nil)

// New builds a Gemini image-generation client.
func New(opts Options) *Client {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	model := opts.Model
	if model == "" {
		model = defaultModel
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{baseURL: baseURL, model: model, http: hc}
}

type (
	generateRequest struct {
		Contents         []content        `json:"contents"`
		GenerationConfig generationConfig `json:"generationConfig"`
	}

	content struct {
		Parts []part `json:"parts"`
	}

	generationConfig struct {
		ResponseModalities []string `json:"responseModalities"`
	}

	part struct {
		Text       string      `json:"text,omitempty"`
		InlineData *inlineData `json:"inlineData,omitempty"`
	}

	inlineData struct {
		MimeType string `json:"mimeType"`
		Data     string `json:"data"`
	}

	generateResponse struct {
		Candidates []struct {
			Content content `json:"content"`
		} `json:"candidates"`
		Error *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
)

// Generate renders prompt into text plus PNG bytes.
func (c *Client) Generate(ctx context.Context, apiKey, prompt string) (tools.GeneratedImage, error) {
	if apiKey == "" {
		return tools.GeneratedImage{}, errors.New("gemini api key is required")
	}
	body, err := json.Marshal(generateRequest{
		Contents:         []content{{Parts: []part{{Text: prompt}}}},
		GenerationConfig: generationConfig{ResponseModalities: []string{"TEXT", "IMAGE"}},
	})
	if err != nil {
		return tools.GeneratedImage{}, fmt.Errorf("marshal generate request: %w", err)
	}
	url := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, c.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return tools.GeneratedImage{}, fmt.Errorf("build generate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return tools.GeneratedImage{}, fmt.Errorf("gemini network error: %w", err)
	}
	defer resp.Body.Close()

	var gr generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&gr); err != nil {
		return tools.GeneratedImage{}, fmt.Errorf("decode generate response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := resp.Status
		if gr.Error != nil && gr.Error.Message != "" {
			msg = gr.Error.Message
		}
		return tools.GeneratedImage{}, serviceerr.WithStatus(
			fmt.Errorf("gemini generate content: %s", msg), resp.StatusCode)
	}
	if len(gr.Candidates) == 0 {
		return tools.GeneratedImage{}, errors.New("gemini generate content: no candidates")
	}

	var out tools.GeneratedImage
	for _, p := range gr.Candidates[0].Content.Parts {
		if p.Text != "" {
			out.Text = p.Text
		}
		if p.InlineData != nil && p.InlineData.Data != "" {
			data, err := base64.StdEncoding.DecodeString(p.InlineData.Data)
			if err != nil {
				return tools.GeneratedImage{}, fmt.Errorf("decode image data: %w", err)
			}
			out.PNG = data
		}
	}
	return out, nil
}
