package geministore_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"doc-reader/internal/completion"
	apperrors "doc-reader/internal/errors"
	"doc-reader/internal/geministore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type part struct {
	Text       string `json:"text,omitempty"`
	InlineData *struct {
		MimeType string `json:"mimeType"`
		Data     string `json:"data"`
	} `json:"inlineData,omitempty"`
}

type content struct {
	Role  string `json:"role"`
	Parts []part `json:"parts"`
}

type generateRequest struct {
	Contents          []content `json:"contents"`
	SystemInstruction *content  `json:"systemInstruction"`
}

func setUpGemini(t *testing.T, status int, body string) (*geministore.GeminiClient, *[]generateRequest) {
	t.Helper()

	var captured []generateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, ":generateContent"), "unexpected path %s", r.URL.Path)

		raw, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		var req generateRequest
		assert.NoError(t, json.Unmarshal(raw, &req))
		captured = append(captured, req)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)

	client, err := geministore.New(context.Background(), "test-key", srv.URL)
	require.NoError(t, err)

	return client, &captured
}

func answer(text string) string {
	raw, _ := json.Marshal(text)
	return `{"candidates":[{"content":{"role":"model","parts":[{"text":` + string(raw) + `}]},"finishReason":"STOP"}]}`
}

func TestCompleteVision(t *testing.T) {
	client, captured := setUpGemini(t, http.StatusOK, answer("The image is red."))
	image := base64.StdEncoding.EncodeToString([]byte{0xff, 0xd8, 0xff})

	got, err := client.CompleteVision(context.Background(), completion.VisionRequest{
		Model:       "gemini-2.5-flash",
		Prompt:      "What color is this?",
		ImageBase64: image,
	})

	require.NoError(t, err)
	assert.Equal(t, "The image is red.", got)

	require.Len(t, *captured, 1)
	req := (*captured)[0]
	require.Len(t, req.Contents, 1)
	parts := req.Contents[0].Parts
	require.Len(t, parts, 2)
	assert.Equal(t, "What color is this?", parts[0].Text)
	require.NotNil(t, parts[1].InlineData)
	assert.Equal(t, "image/jpeg", parts[1].InlineData.MimeType)
	assert.Equal(t, image, parts[1].InlineData.Data)
	assert.Nil(t, req.SystemInstruction)
}

func TestCompleteTextUsesSystemInstruction(t *testing.T) {
	client, captured := setUpGemini(t, http.StatusOK, answer("Go, Rust"))

	got, err := client.CompleteText(context.Background(), completion.TextRequest{
		Model:  "gemini-2.5-flash",
		System: "Answer using only the following document:\n\nSkills: Go, Rust",
		Prompt: "What are the skills?",
	})

	require.NoError(t, err)
	assert.Equal(t, "Go, Rust", got)

	require.Len(t, *captured, 1)
	req := (*captured)[0]
	require.NotNil(t, req.SystemInstruction)
	require.Len(t, req.SystemInstruction.Parts, 1)
	assert.Contains(t, req.SystemInstruction.Parts[0].Text, "Skills: Go, Rust")
	require.Len(t, req.Contents, 1)
	assert.Equal(t, "What are the skills?", req.Contents[0].Parts[0].Text)
}

func TestCompleteTextPermanentFailure(t *testing.T) {
	client, _ := setUpGemini(t, http.StatusForbidden,
		`{"error":{"code":403,"message":"API key not valid","status":"PERMISSION_DENIED"}}`)

	_, err := client.CompleteText(context.Background(), completion.TextRequest{Model: "gemini-2.5-flash", System: "s", Prompt: "p"})

	require.Error(t, err)
	assert.True(t, apperrors.IsPermanent(err))
}

func TestCompleteVisionRejectsBadBase64(t *testing.T) {
	client, captured := setUpGemini(t, http.StatusOK, answer("unused"))

	_, err := client.CompleteVision(context.Background(), completion.VisionRequest{Model: "m", Prompt: "p", ImageBase64: "%%%"})

	require.Error(t, err)
	assert.Empty(t, *captured)
}
