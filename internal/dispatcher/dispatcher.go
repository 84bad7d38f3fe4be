package dispatcher

import (
	"context"
	"fmt"

	"doc-reader/internal/completion"
	apperrors "doc-reader/internal/errors"
	"doc-reader/internal/models"
)

const (
	OpVision = "vision completion"
	OpText   = "text completion"
)

type Options struct {
	VisionModel  string
	TextModel    string
	SystemPrompt string
}

// Dispatcher forwards a prompt and a payload to the completion endpoint matching the payload kind.
type Dispatcher struct {
	completer completion.Completer
	opts      Options
}

func New(completer completion.Completer, opts Options) *Dispatcher {
	return &Dispatcher{completer: completer, opts: opts}
}

// Dispatch makes exactly one remote call. On any failure it returns the fixed apology
// together with a KindRemoteRequestFailed error that keeps the original cause.
func (d *Dispatcher) Dispatch(ctx context.Context, prompt string, payload models.Payload) (models.ModelResponse, error) {
	var (
		answer string
		err    error
		op     string
	)

	switch payload.Kind {
	case models.PayloadImage:
		op = OpVision
		answer, err = d.completer.CompleteVision(ctx, completion.VisionRequest{
			Model:       d.opts.VisionModel,
			Prompt:      prompt,
			ImageBase64: payload.Data,
		})

	case models.PayloadText:
		op = OpText
		answer, err = d.completer.CompleteText(ctx, completion.TextRequest{
			Model:  d.opts.TextModel,
			System: d.opts.SystemPrompt + payload.Data,
			Prompt: prompt,
		})

	default:
		op = "dispatch"
		err = fmt.Errorf("unsupported payload kind %s", payload.Kind)
	}

	if err != nil {
		return apperrors.RemoteFailureMessage, apperrors.New(apperrors.KindRemoteRequestFailed, op, err)
	}

	return models.ModelResponse(answer), nil
}
