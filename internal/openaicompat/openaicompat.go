// Package openaicompat talks to OpenAI-style chat completion endpoints, including
// ZhipuAI's GLM models which expose the same wire format.
package openaicompat

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"

	"doc-reader/internal/completion"
	apperrors "doc-reader/internal/errors"
)

type Options struct {
	APIKey  string
	BaseURL string

	// RawBase64 sends the bare base64 string as the image URL, which is what GLM-4V
	// expects. OpenAI itself needs a data URL.
	RawBase64 bool

	HTTPClient *http.Client
}

type Client struct {
	client    *openai.Client
	rawBase64 bool
}

func New(opts Options) *Client {
	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = strings.TrimSuffix(opts.BaseURL, "/")
	}
	if opts.HTTPClient != nil {
		cfg.HTTPClient = opts.HTTPClient
	}

	return &Client{client: openai.NewClientWithConfig(cfg), rawBase64: opts.RawBase64}
}

func (c *Client) CompleteVision(ctx context.Context, req completion.VisionRequest) (string, error) {
	imageURL := req.ImageBase64
	if !c.rawBase64 {
		imageURL = "data:image/jpeg;base64," + req.ImageBase64
	}

	return c.complete(ctx, openai.ChatCompletionRequest{
		Model: req.Model,
		Messages: []openai.ChatCompletionMessage{{
			Role: openai.ChatMessageRoleUser,
			MultiContent: []openai.ChatMessagePart{
				{
					Type: openai.ChatMessagePartTypeText,
					Text: req.Prompt,
				},
				{
					Type:     openai.ChatMessagePartTypeImageURL,
					ImageURL: &openai.ChatMessageImageURL{URL: imageURL},
				},
			},
		}},
	})
}

func (c *Client) CompleteText(ctx context.Context, req completion.TextRequest) (string, error) {
	return c.complete(ctx, openai.ChatCompletionRequest{
		Model: req.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.System},
			{Role: openai.ChatMessageRoleUser, Content: req.Prompt},
		},
	})
}

func (c *Client) complete(ctx context.Context, req openai.ChatCompletionRequest) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", classify(err)
	}
	if len(resp.Choices) == 0 {
		return "", completion.ErrEmptyResponse
	}
	return resp.Choices[0].Message.Content, nil
}

// classify marks rejections that will never succeed as they are.
func classify(err error) error {
	status := 0

	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}

	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("chat completion authentication failed (%d): %w: %w", status, apperrors.ErrPermanentFailure, err)
	case http.StatusBadRequest:
		return fmt.Errorf("chat completion rejected the request (400): %w: %w", apperrors.ErrPermanentFailure, err)
	}

	return fmt.Errorf("chat completion failed: %w", err)
}
