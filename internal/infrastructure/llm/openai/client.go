// Package openai serves completions from any OpenAI-compatible chat endpoint.
package openai

import (
	"context"
	"errors"
	"net"
	"strings"

	gopenai "github.com/sashabaranov/go-openai"

	"github.com/kirillkom/codesearch/internal/core/domain"
	"github.com/kirillkom/codesearch/internal/infrastructure/resilience"
)

type Client struct {
	api          *gopenai.Client
	defaultModel string
}

// New builds a client. An empty baseURL targets api.openai.com.
func New(apiKey, baseURL, defaultModel string) *Client {
	cfg := gopenai.DefaultConfig(apiKey)
	if strings.TrimSpace(baseURL) != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	return &Client{
		api:          gopenai.NewClientWithConfig(cfg),
		defaultModel: defaultModel,
	}
}

func (c *Client) Complete(ctx context.Context, req domain.CompletionRequest) (string, error) {
	model := req.Model
	if strings.TrimSpace(model) == "" {
		model = c.defaultModel
	}

	var messages []gopenai.ChatCompletionMessage
	if req.System != "" {
		messages = append(messages, gopenai.ChatCompletionMessage{Role: gopenai.ChatMessageRoleSystem, Content: req.System})
	}
	messages = append(messages, gopenai.ChatCompletionMessage{Role: gopenai.ChatMessageRoleUser, Content: req.Prompt})

	resp, err := c.api.CreateChatCompletion(ctx, gopenai.ChatCompletionRequest{
		Model:    model,
		Messages: messages,
	})
	if err != nil {
		return "", classify(err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai chat: no choices in response")
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", errors.New("openai chat: empty response")
	}
	return text, nil
}

func classify(err error) error {
	var apiErr *gopenai.APIError
	if errors.As(err, &apiErr) {
		if resilience.RetryableStatus(apiErr.HTTPStatusCode) {
			return domain.WrapError(domain.ErrTemporary, "openai chat", err)
		}
		return err
	}
	var reqErr *gopenai.RequestError
	if errors.As(err, &reqErr) {
		if resilience.RetryableStatus(reqErr.HTTPStatusCode) {
			return domain.WrapError(domain.ErrTemporary, "openai chat", err)
		}
		return err
	}
	var netErr net.Error
	if errors.As(err, &netErr) && !errors.Is(err, context.Canceled) {
		return domain.WrapError(domain.ErrTemporary, "openai chat", err)
	}
	return err
}
