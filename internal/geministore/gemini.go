package geministore

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/genai"

	"doc-reader/internal/completion"
	apperrors "doc-reader/internal/errors"
)

type GeminiClient struct {
	Client *genai.Client
}

// New creates a Gemini API client. baseURL is only set when pointing at a proxy or a test server.
func New(ctx context.Context, apiKey, baseURL string) (*GeminiClient, error) {
	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("API key error: %w", err)
	}

	return &GeminiClient{Client: client}, nil
}

func (g *GeminiClient) CompleteVision(ctx context.Context, req completion.VisionRequest) (string, error) {
	image, err := base64.StdEncoding.DecodeString(req.ImageBase64)
	if err != nil {
		return "", fmt.Errorf("gemini invalid image payload: %w", apperrors.ErrPermanentFailure)
	}

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromText(req.Prompt),
			genai.NewPartFromBytes(image, "image/jpeg"),
		}, genai.RoleUser),
	}

	return g.generate(ctx, req.Model, contents, nil)
}

func (g *GeminiClient) CompleteText(ctx context.Context, req completion.TextRequest) (string, error) {
	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(req.System, genai.RoleUser),
	}

	return g.generate(ctx, req.Model, genai.Text(req.Prompt), config)
}

func (g *GeminiClient) generate(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (string, error) {
	result, err := g.Client.Models.GenerateContent(ctx, model, contents, config)
	if err != nil {
		switch statusCode(err) {
		case http.StatusUnauthorized, http.StatusForbidden:
			return "", fmt.Errorf("gemini authentication failed: %w: %w", apperrors.ErrPermanentFailure, err)
		case http.StatusBadRequest:
			return "", fmt.Errorf("gemini invalid input (400): %w: %w", apperrors.ErrPermanentFailure, err)
		}
		return "", fmt.Errorf("gemini generate content failed: %w", err)
	}

	if len(result.Candidates) == 0 || result.Candidates[0].Content == nil {
		return "", completion.ErrEmptyResponse
	}

	return result.Text(), nil
}

func statusCode(err error) int {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return apiErrPtr.Code
	}
	return 0
}
