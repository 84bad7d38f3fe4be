package claude

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"doc-reader/internal/completion"
	apperrors "doc-reader/internal/errors"
)

const defaultMaxTokens = 1024

// Client implements completion.Completer on Anthropic's Messages API.
type Client struct {
	client    anthropic.Client
	maxTokens int64
}

func New(apiKey, baseURL string) *Client {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}

	return &Client{
		client:    anthropic.NewClient(opts...),
		maxTokens: defaultMaxTokens,
	}
}

func (c *Client) CompleteVision(ctx context.Context, req completion.VisionRequest) (string, error) {
	return c.complete(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: c.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(
				anthropic.NewTextBlock(req.Prompt),
				anthropic.NewImageBlockBase64("image/jpeg", req.ImageBase64),
			),
		},
	})
}

func (c *Client) CompleteText(ctx context.Context, req completion.TextRequest) (string, error) {
	return c.complete(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: c.maxTokens,
		System:    []anthropic.TextBlockParam{{Text: req.System}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	})
}

func (c *Client) complete(ctx context.Context, params anthropic.MessageNewParams) (string, error) {
	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			switch apiErr.StatusCode {
			case http.StatusUnauthorized, http.StatusForbidden:
				return "", fmt.Errorf("anthropic authentication failed: %w: %w", apperrors.ErrPermanentFailure, err)
			case http.StatusBadRequest:
				return "", fmt.Errorf("anthropic invalid input (400): %w: %w", apperrors.ErrPermanentFailure, err)
			}
		}
		return "", fmt.Errorf("anthropic message failed: %w", err)
	}

	for _, block := range msg.Content {
		if text, ok := block.AsAny().(anthropic.TextBlock); ok {
			return text.Text, nil
		}
	}

	return "", completion.ErrEmptyResponse
}
