package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	apperrors "doc-reader/internal/errors"
	"doc-reader/internal/models"
	"doc-reader/internal/normalizer"
	"doc-reader/internal/pipeline"
	"doc-reader/internal/presenter"
	"doc-reader/internal/s3"
	"doc-reader/internal/session"
)

type Sessions interface {
	NewSession(ctx context.Context) (*models.Session, error)
	Session(ctx context.Context, id uuid.UUID) (*models.Session, error)
	Upload(ctx context.Context, id uuid.UUID, file models.UploadedFile) (*models.Session, error)
	Import(ctx context.Context, id uuid.UUID, key string) (*models.Session, error)
	Ask(ctx context.Context, id uuid.UUID, prompt string) (models.ModelResponse, error)
	Close(ctx context.Context, id uuid.UUID) error
	Activity(ctx context.Context, id uuid.UUID) (*pipeline.Activity, error)
}

type APIHandler struct {
	sessions       Sessions
	maxUploadBytes int64
	logger         *slog.Logger
}

func NewAPIHandler(sessions Sessions, maxUploadBytes int64, logger *slog.Logger) *APIHandler {
	if logger == nil {
		logger = slog.Default()
	}

	return &APIHandler{
		sessions:       sessions,
		maxUploadBytes: maxUploadBytes,
		logger:         logger.With("component", "api"),
	}
}

type sessionView struct {
	ID          uuid.UUID           `json:"id"`
	State       models.SessionState `json:"state"`
	PayloadKind *models.PayloadKind `json:"payload_kind,omitempty"`
	FileName    string              `json:"file_name,omitempty"`
	LastPrompt  string              `json:"last_prompt,omitempty"`
	UpdatedAt   time.Time           `json:"updated_at"`

	// set only when a submissions ledger is configured
	Submissions   *int           `json:"submissions,omitempty"`
	LastStatus    *models.Status `json:"last_status,omitempty"`
	LastErrorKind *string        `json:"last_error_kind,omitempty"`
}

func newSessionView(s *models.Session) sessionView {
	view := sessionView{
		ID:         s.ID,
		State:      s.State,
		LastPrompt: s.LastPrompt,
		UpdatedAt:  s.UpdatedAt,
	}
	if s.Payload != nil {
		kind := s.Payload.Kind
		view.PayloadKind = &kind
		view.FileName = s.Payload.Source
	}
	return view
}

type importRequest struct {
	Key string `json:"key"`
}

type promptRequest struct {
	Prompt string `json:"prompt"`
}

func (h *APIHandler) HandleCreateSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.sessions.NewSession(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, newSessionView(sess))
}

func (h *APIHandler) HandleGetSession(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}

	sess, err := h.sessions.Session(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	view := newSessionView(sess)

	activity, err := h.sessions.Activity(r.Context(), id)
	if err != nil {
		h.logger.Warn("failed to load session activity", "session", id, "error", err)
	}
	if activity != nil {
		view.Submissions = &activity.Submissions
		if activity.Last != nil {
			view.LastStatus = &activity.Last.Status
			view.LastErrorKind = activity.Last.ErrorKind
		}
	}

	h.writeJSON(w, http.StatusOK, view)
}

func (h *APIHandler) HandleUploadFile(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}

	if h.maxUploadBytes > 0 {
		// leave room for the multipart envelope around the file itself
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+1<<16)
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			http.Error(w, "File is too large.", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "An error occurred upon retrieving the file.", http.StatusBadRequest)
		return
	}
	defer file.Close()

	if h.maxUploadBytes > 0 && header.Size > h.maxUploadBytes {
		http.Error(w, "File is too large.", http.StatusRequestEntityTooLarge)
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "An error occurred upon retrieving the file.", http.StatusBadRequest)
		return
	}

	sess, err := h.sessions.Upload(r.Context(), id, models.UploadedFile{
		Name:      header.Filename,
		MediaType: header.Header.Get("Content-Type"),
		Data:      data,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, newSessionView(sess))
}

func (h *APIHandler) HandleImportFile(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}

	var req importRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(&req); err != nil || strings.TrimSpace(req.Key) == "" {
		http.Error(w, "Request body must be a JSON object with a non-empty \"key\".", http.StatusBadRequest)
		return
	}

	sess, err := h.sessions.Import(r.Context(), id, req.Key)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, newSessionView(sess))
}

// HandlePrompt answers with the model's text as-is. A failed remote call still yields 200 with
// the fixed apology, exactly what the console prints.
func (h *APIHandler) HandlePrompt(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}

	prompt, err := readPrompt(r)
	if err != nil {
		http.Error(w, "Could not read the prompt.", http.StatusBadRequest)
		return
	}

	resp, err := h.sessions.Ask(r.Context(), id, prompt)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if err := presenter.Present(w, resp); err != nil {
		h.logger.Warn("failed to write answer", "session", id, "error", err)
	}
}

func (h *APIHandler) HandleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}

	if err := h.sessions.Close(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, "ok")
}

func readPrompt(r *http.Request) (string, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	switch mediaType {
	case "application/x-www-form-urlencoded", "multipart/form-data":
		if err := r.ParseMultipartForm(1 << 20); err != nil && !errors.Is(err, http.ErrNotMultipart) {
			return "", err
		}
		return r.FormValue("prompt"), nil

	default:
		var req promptRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
			return "", err
		}
		return req.Prompt, nil
	}
}

func (h *APIHandler) sessionID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "Invalid session id format", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

func (h *APIHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var maxErr *http.MaxBytesError

	switch {
	case errors.Is(err, session.ErrNotFound):
		http.Error(w, "Session not found.", http.StatusNotFound)

	case errors.Is(err, pipeline.ErrEmptyPrompt), errors.Is(err, normalizer.ErrEmptyFile):
		http.Error(w, err.Error(), http.StatusBadRequest)

	case errors.Is(err, pipeline.ErrNoPayload), errors.Is(err, pipeline.ErrSessionBusy):
		http.Error(w, err.Error(), http.StatusConflict)

	case errors.Is(err, pipeline.ErrImportUnavailable):
		http.Error(w, err.Error(), http.StatusNotImplemented)

	case errors.Is(err, normalizer.ErrUnsupportedMediaType):
		http.Error(w, err.Error(), http.StatusUnsupportedMediaType)

	case errors.Is(err, s3.ErrObjectTooLarge), errors.As(err, &maxErr):
		http.Error(w, "File is too large.", http.StatusRequestEntityTooLarge)

	case apperrors.KindOf(err) == apperrors.KindPayloadConversionFailed:
		http.Error(w, normalizer.FailureMessage(err), http.StatusUnprocessableEntity)

	default:
		h.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		http.Error(w, "An error occurred while processing your request.", http.StatusInternalServerError)
	}
}

func (h *APIHandler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Warn("failed to encode response", "error", err)
	}
}
