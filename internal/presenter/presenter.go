package presenter

import (
	"fmt"
	"io"

	"doc-reader/internal/models"
)

// Present writes the response verbatim, followed by a newline.
func Present(w io.Writer, resp models.ModelResponse) error {
	if _, err := io.WriteString(w, string(resp)+"\n"); err != nil {
		return fmt.Errorf("failed to write response: %w", err)
	}
	return nil
}
