// Package anthropic serves completions from the Anthropic Messages API.
package anthropic

import (
	"context"
	"errors"
	"net"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/kirillkom/codesearch/internal/core/domain"
	"github.com/kirillkom/codesearch/internal/infrastructure/resilience"
)

const defaultMaxTokens = 4096

type Client struct {
	api          sdk.Client
	defaultModel string
	maxTokens    int64
}

// New builds a client. Retries are left to the resilience layer, so the SDK's own
// retry loop is disabled.
func New(apiKey, baseURL, defaultModel string, maxTokens int) *Client {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if strings.TrimSpace(baseURL) != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	return &Client{
		api:          sdk.NewClient(opts...),
		defaultModel: defaultModel,
		maxTokens:    int64(maxTokens),
	}
}

func (c *Client) Complete(ctx context.Context, req domain.CompletionRequest) (string, error) {
	model := req.Model
	if strings.TrimSpace(model) == "" {
		model = c.defaultModel
	}

	params := sdk.MessageNewParams{
		Model:     sdk.Model(model),
		MaxTokens: c.maxTokens,
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(req.Prompt)),
		},
	}
	if req.System != "" {
		params.System = []sdk.TextBlockParam{{Text: req.System}}
	}

	message, err := c.api.Messages.New(ctx, params)
	if err != nil {
		return "", classify(err)
	}

	var b strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	text := strings.TrimSpace(b.String())
	if text == "" {
		return "", errors.New("anthropic messages: empty response")
	}
	return text, nil
}

func classify(err error) error {
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		// 529 is Anthropic's overloaded status.
		if resilience.RetryableStatus(apiErr.StatusCode) || apiErr.StatusCode == 529 {
			return domain.WrapError(domain.ErrTemporary, "anthropic messages", err)
		}
		return err
	}
	var netErr net.Error
	if errors.As(err, &netErr) && !errors.Is(err, context.Canceled) {
		return domain.WrapError(domain.ErrTemporary, "anthropic messages", err)
	}
	return err
}
