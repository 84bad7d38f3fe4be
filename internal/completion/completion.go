package completion

import (
	"context"
	"errors"
)

var ErrEmptyResponse = errors.New("completion returned no choices")

// VisionRequest is a single user turn holding one text block followed by one image block.
type VisionRequest struct {
	Model       string
	Prompt      string
	ImageBase64 string
}

// TextRequest carries the document in the system message and the prompt in the user message.
type TextRequest struct {
	Model  string
	System string
	Prompt string
}

type Completer interface {
	CompleteVision(ctx context.Context, req VisionRequest) (string, error)
	CompleteText(ctx context.Context, req TextRequest) (string, error)
}
