// Package tools implements the per-turn tool registry offered to the model.
// The registry is fixed: image generation and web search. Tool failures are
// never raised; they come back as structured JSON outcomes, marker-bearing
// where the rendered output needs them, so the model can narrate the failure
// and the turn keeps streaming.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"goa.design/clue/log"

	"github.com/huminex/t4chat/runtime/chat/model"
	"github.com/huminex/t4chat/runtime/chat/tag"
)

type (
	// Searcher is the web-search backend.
	Searcher interface {
		Search(ctx context.Context, query string) ([]SearchResult, error)
	}

	// ImageGenerator produces an image (and optional accompanying text) from
	// a prompt using the caller-supplied credential.
	ImageGenerator interface {
		Generate(ctx context.Context, apiKey, prompt string) (GeneratedImage, error)
	}

	// Uploader persists raw bytes and returns a stable retrieval URL.
	Uploader interface {
		Upload(ctx context.Context, filename string, data []byte, contentType string) (string, error)
	}

	// SearchResult is one web-search hit.
	SearchResult struct {
		Title   string  `json:"title"`
		URL     string  `json:"url"`
		Content string  `json:"content"`
		Score   float64 `json:"score"`
	}

	// GeneratedImage is the raw output of an ImageGenerator.
	GeneratedImage struct {
		Text string
		PNG  []byte
	}

	// TurnOptions carries the per-turn inputs the registry needs: the
	// caller-supplied image credential, the web-search flag and the backend
	// clients.
	TurnOptions struct {
		ImageAPIKey      string
		WebSearchEnabled bool
		Searcher         Searcher
		ImageGen         ImageGenerator
		Uploader         Uploader
	}

	// Tool is one callable registry entry. Call returns the JSON outcome fed
	// back to the model; domain failures are encoded in the outcome, not
	// returned as errors.
	Tool interface {
		Definition() *model.ToolDefinition
		InfoNote() string
		Call(ctx context.Context, args json.RawMessage) json.RawMessage
	}

	// Registry is the fixed per-turn tool set.
	Registry struct {
		tools map[string]Tool
		defs  []*model.ToolDefinition
	}
)

// Tool and marker naming shared with the HTTP surface.
const (
	GenerateImageName = "generateImage"
	SearchWebName     = "searchWeb"

	// ImageService attributes image-generation failures in error markers.
	ImageService = "gemini"

	fallbackNote = "Processing..."
)

// NewRegistry builds the registry for one turn.
func NewRegistry(opts TurnOptions) *Registry {
	r := &Registry{tools: make(map[string]Tool)}
	for _, t := range []Tool{
		&generateImageTool{opts: opts},
		&searchWebTool{opts: opts},
	} {
		r.tools[t.Definition().Name] = t
		r.defs = append(r.defs, t.Definition())
	}
	return r
}

// Definitions lists the tool definitions offered to the model.
func (r *Registry) Definitions() []*model.ToolDefinition { return r.defs }

// InfoNote returns the progress note shown while the named tool runs.
func (r *Registry) InfoNote(name string) string {
	if t, ok := r.tools[name]; ok {
		return t.InfoNote()
	}
	return fallbackNote
}

// Execute runs the requested tool and returns its JSON outcome. Unknown tool
// names yield a generic outcome so the model can recover.
func (r *Registry) Execute(ctx context.Context, call model.ToolCall) json.RawMessage {
	t, ok := r.tools[call.Name]
	if !ok {
		log.Info(ctx, log.KV{K: "msg", V: "unknown tool requested"}, log.KV{K: "tool", V: call.Name})
		return mustJSON(map[string]any{
			"error": fmt.Sprintf("Unknown tool: %s", call.Name),
		})
	}
	return t.Call(ctx, call.Arguments)
}

// generateImageTool generates an image from a prompt, uploads the bytes to
// blob storage and returns the storage URL inside a result marker. The URL is
// passed through unmodified end to end.
type generateImageTool struct {
	opts TurnOptions
}

type imageOutcome struct {
	Prompt   string `json:"prompt"`
	Success  bool   `json:"success"`
	Text     string `json:"text,omitempty"`
	ImageURL string `json:"imageUrl"`
	Error    string `json:"error,omitempty"`
	Message  string `json:"message"`
}

func (t *generateImageTool) Definition() *model.ToolDefinition {
	return &model.ToolDefinition{
		Name: GenerateImageName,
		Description: "Generate a high-quality image based on a detailed text prompt. " +
			"The image is uploaded to storage and returned as a URL within an image tag. " +
			"Return the exact URL provided by the tool without altering it.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"prompt": map[string]any{
					"type":        "string",
					"description": "A detailed text prompt describing the image to generate.",
				},
			},
			"required": []string{"prompt"},
		},
	}
}

func (t *generateImageTool) InfoNote() string { return "Generating image..." }

func (t *generateImageTool) Call(ctx context.Context, args json.RawMessage) json.RawMessage {
	var in struct {
		Prompt string `json:"prompt"`
	}
	_ = json.Unmarshal(args, &in)

	if strings.TrimSpace(t.opts.ImageAPIKey) == "" {
		return mustJSON(imageFailure(in.Prompt, "Gemini API key is not provided"))
	}
	if t.opts.ImageGen == nil || t.opts.Uploader == nil {
		return mustJSON(imageFailure(in.Prompt, "Image generation is not configured"))
	}
	prompt := in.Prompt + ", high-quality, square aspect ratio, detailed"
	img, err := t.opts.ImageGen.Generate(ctx, t.opts.ImageAPIKey, prompt)
	if err != nil {
		log.Errorf(ctx, err, "image generation failed")
		return mustJSON(imageFailure(prompt, err.Error()))
	}
	if len(img.PNG) == 0 {
		return mustJSON(imageFailure(prompt, "Failed to generate image"))
	}
	filename := fmt.Sprintf("gemini-generated-%d.png", time.Now().UnixMilli())
	url, err := t.opts.Uploader.Upload(ctx, filename, img.PNG, "image/png")
	if err != nil {
		log.Errorf(ctx, err, "image upload failed")
		return mustJSON(imageFailure(prompt, err.Error()))
	}
	return mustJSON(imageOutcome{
		Prompt:   prompt,
		Success:  true,
		Text:     img.Text,
		ImageURL: tag.Image(url),
		Message:  "Image generated successfully",
	})
}

func imageFailure(prompt, msg string) imageOutcome {
	return imageOutcome{
		Prompt:   prompt,
		Success:  false,
		Error:    msg,
		ImageURL: tag.Error(ImageService, msg),
		Message:  "Failed to generate image",
	}
}

// searchWebTool queries the web-search backend. A disabled turn returns an
// empty result set with an explanatory field rather than an error marker.
type searchWebTool struct {
	opts TurnOptions
}

type searchOutcome struct {
	Query   string         `json:"query,omitempty"`
	Error   string         `json:"error,omitempty"`
	Results []SearchResult `json:"results"`
}

func (t *searchWebTool) Definition() *model.ToolDefinition {
	return &model.ToolDefinition{
		Name: SearchWebName,
		Description: "Search the web for current information, news, facts, or topics " +
			"requiring up-to-date data. Include all returned results in the answer " +
			"with their titles and URLs.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "The search query to find information about.",
				},
			},
			"required": []string{"query"},
		},
	}
}

func (t *searchWebTool) InfoNote() string { return "Searching web..." }

func (t *searchWebTool) Call(ctx context.Context, args json.RawMessage) json.RawMessage {
	var in struct {
		Query string `json:"query"`
	}
	_ = json.Unmarshal(args, &in)

	if !t.opts.WebSearchEnabled || t.opts.Searcher == nil {
		return mustJSON(searchOutcome{
			Query:   in.Query,
			Error:   "Web search is disabled. Please try again later.",
			Results: []SearchResult{},
		})
	}
	results, err := t.opts.Searcher.Search(ctx, in.Query)
	if err != nil {
		log.Errorf(ctx, err, "web search failed")
		return mustJSON(searchOutcome{
			Query:   in.Query,
			Error:   err.Error(),
			Results: []SearchResult{},
		})
	}
	if results == nil {
		results = []SearchResult{}
	}
	return mustJSON(searchOutcome{Results: results})
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		b, _ = json.Marshal(map[string]string{"error": err.Error()})
	}
	return b
}
