// Package ollama talks to a local Ollama server through its chat endpoint.
package ollama

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/codesearch/internal/core/domain"
)

type Client struct {
	baseURL      string
	defaultModel string
	numCtx       int
	httpClient   *http.Client
}

type Option func(*Client)

// WithNumCtx sets the context window requested per call. Ollama otherwise truncates
// prompts to its own default.
func WithNumCtx(n int) Option {
	return func(c *Client) { c.numCtx = n }
}

func New(baseURL, defaultModel string, opts ...Option) *Client {
	c := &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		defaultModel: defaultModel,
		httpClient:   &http.Client{Timeout: 10 * time.Minute},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string         `json:"model"`
	Messages []chatMessage  `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  map[string]any `json:"options,omitempty"`
}

type chatResponse struct {
	Message chatMessage `json:"message"`
}

func (c *Client) Complete(ctx context.Context, req domain.CompletionRequest) (string, error) {
	model := req.Model
	if strings.TrimSpace(model) == "" {
		model = c.defaultModel
	}

	payload := chatRequest{Model: model, Stream: false}
	if req.System != "" {
		payload.Messages = append(payload.Messages, chatMessage{Role: "system", Content: req.System})
	}
	payload.Messages = append(payload.Messages, chatMessage{Role: "user", Content: req.Prompt})
	if c.numCtx > 0 {
		payload.Options = map[string]any{"num_ctx": c.numCtx}
	}

	var resp chatResponse
	if err := c.postJSON(ctx, "/api/chat", payload, &resp, "chat"); err != nil {
		return "", wrapTemporaryIfNeeded("ollama chat", err)
	}
	text := strings.TrimSpace(resp.Message.Content)
	if text == "" {
		return "", errors.New("ollama chat: empty response")
	}
	return text, nil
}
