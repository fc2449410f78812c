// Package cloud implements the cloud half of the hybrid damage pipeline: a
// client for an Anthropic-style messages API that sends one photo plus a
// fixed instruction prompt and parses the loosely-structured reply into a
// DamageAnalysis.
package cloud

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cardamage/damage-analyzer/pkg/types"
)

// Config holds configuration for the cloud client.
type Config struct {
	Endpoint   string        // messages endpoint URL
	Model      string        // model identifier sent in the request
	APIVersion string        // value of the anthropic-version header
	MaxTokens  int           // response token budget
	Timeout    time.Duration // applied when the caller's context has no deadline
}

// DefaultConfig returns the configuration used by New.
func DefaultConfig() Config {
	return Config{
		Endpoint:   "https://api.anthropic.com/v1/messages",
		Model:      "claude-3-5-sonnet-20241022",
		APIVersion: "2023-06-01",
		MaxTokens:  1000,
		Timeout:    60 * time.Second,
	}
}

// Client calls the remote multimodal model.
type Client struct {
	config     Config
	httpClient *http.Client
}

// New creates a Client with default configuration.
func New() *Client {
	return NewWithConfig(DefaultConfig())
}

// NewWithConfig creates a Client with custom configuration. Zero-valued
// fields fall back to their defaults.
func NewWithConfig(config Config) *Client {
	defaults := DefaultConfig()
	if config.Endpoint == "" {
		config.Endpoint = defaults.Endpoint
	}
	if config.Model == "" {
		config.Model = defaults.Model
	}
	if config.APIVersion == "" {
		config.APIVersion = defaults.APIVersion
	}
	if config.MaxTokens <= 0 {
		config.MaxTokens = defaults.MaxTokens
	}
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	return &Client{
		config:     config,
		httpClient: &http.Client{},
	}
}

// Wire types for the messages API. Only the fields the pipeline consumes are
// modeled; the response may carry more.
type messageRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	Messages  []message `json:"messages"`
}

type message struct {
	Role    string         `json:"role"`
	Content []contentBlock `json:"content"`
}

type contentBlock struct {
	Type   string       `json:"type"`
	Text   string       `json:"text,omitempty"`
	Source *imageSource `json:"source,omitempty"`
}

type imageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type messageResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

// Analyze sends a JPEG-encoded photo to the model and returns the parsed
// damage estimate. Transport, auth, rate-limit and other remote failures are
// reported through the package error taxonomy; a malformed-but-present reply
// body degrades through the parse chain instead of failing.
func (c *Client) Analyze(ctx context.Context, imageJPEG []byte, credential string) (types.DamageAnalysis, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.Timeout)
		defer cancel()
	}

	payload := messageRequest{
		Model:     c.config.Model,
		MaxTokens: c.config.MaxTokens,
		Messages: []message{
			{
				Role: "user",
				Content: []contentBlock{
					{Type: "text", Text: analysisPrompt},
					{Type: "image", Source: &imageSource{
						Type:      "base64",
						MediaType: "image/jpeg",
						Data:      base64.StdEncoding.EncodeToString(imageJPEG),
					}},
				},
			},
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return types.DamageAnalysis{}, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.Endpoint, bytes.NewReader(body))
	if err != nil {
		return types.DamageAnalysis{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", credential)
	req.Header.Set("anthropic-version", c.config.APIVersion)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return types.DamageAnalysis{}, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	if err := statusError(resp.StatusCode); err != nil {
		io.Copy(io.Discard, resp.Body)
		return types.DamageAnalysis{}, err
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return types.DamageAnalysis{}, fmt.Errorf("%w: %v", ErrTransport, err)
	}

	var decoded messageResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return types.DamageAnalysis{}, fmt.Errorf("%w: %v", ErrUnparsable, err)
	}
	if len(decoded.Content) == 0 || decoded.Content[0].Text == "" {
		return types.DamageAnalysis{}, fmt.Errorf("%w: empty content", ErrUnparsable)
	}

	return ParseAnalysis(decoded.Content[0].Text), nil
}

// statusError maps a non-2xx HTTP status onto the error taxonomy.
func statusError(status int) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("%w: status %d", ErrAuth, status)
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("%w: status %d", ErrRateLimited, status)
	default:
		return fmt.Errorf("%w: status %d", ErrRemote, status)
	}
}
