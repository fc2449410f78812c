package tagger

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
)

// tagPrompt asks a local vision model for plain labels, not an analysis; the
// damage reasoning happens in the classifier.
const tagPrompt = `List what you see in this image as short lowercase tags.

Return JSON only: a single array of 5-15 strings, e.g.
["car", "bumper", "scratch", "parking lot"]

Tags must be concise, lowercase, no punctuation, no duplicates.
JSON only. No markdown, no code fences, no commentary.`

// OllamaTagger labels images with a local Ollama vision model.
type OllamaTagger struct {
	client  *api.Client
	model   string
	timeout time.Duration
}

// NewOllamaTagger creates a tagger talking to the Ollama server at ollamaURL
// (any path component is ignored) using the given vision model.
func NewOllamaTagger(ollamaURL, model string) (*OllamaTagger, error) {
	parsed, err := url.Parse(ollamaURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %v", err)
	}

	baseURL := &url.URL{
		Scheme: parsed.Scheme,
		Host:   parsed.Host,
	}

	return &OllamaTagger{
		client:  api.NewClient(baseURL, http.DefaultClient),
		model:   model,
		timeout: 120 * time.Second,
	}, nil
}

// Tags implements Tagger. Failures are returned as-is; the orchestrator
// treats any tagger failure as an empty tag set.
func (t *OllamaTagger) Tags(ctx context.Context, imageData []byte) ([]string, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	streamFalse := false
	req := &api.ChatRequest{
		Model: t.model,
		Messages: []api.Message{
			{
				Role:    "user",
				Content: tagPrompt,
				Images:  []api.ImageData{api.ImageData(imageData)},
			},
		},
		Stream: &streamFalse,
	}

	var responseContent string
	err := t.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		responseContent = resp.Message.Content
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ollama chat error: %v", err)
	}
	if responseContent == "" {
		return nil, fmt.Errorf("empty response from ollama")
	}

	return parseTags(responseContent), nil
}

// parseTags extracts a tag list from the model output. A strict JSON array is
// preferred; anything else falls back to splitting on commas and newlines so
// a chatty model still yields usable tags.
func parseTags(raw string) []string {
	raw = strings.TrimSpace(raw)

	// Strip triple-backtick fences if present
	if strings.HasPrefix(raw, "```") {
		if i := strings.Index(raw, "\n"); i >= 0 {
			raw = raw[i+1:]
		}
		if j := strings.LastIndex(raw, "```"); j >= 0 {
			raw = raw[:j]
		}
		raw = strings.TrimSpace(raw)
	}

	if start := strings.Index(raw, "["); start >= 0 {
		if end := strings.LastIndex(raw, "]"); end > start {
			var tags []string
			if err := json.Unmarshal([]byte(raw[start:end+1]), &tags); err == nil {
				return normalizeTags(tags)
			}
		}
	}

	return normalizeTags(strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == '\n'
	}))
}
