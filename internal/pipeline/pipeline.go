package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "doc-reader/internal/errors"
	"doc-reader/internal/models"
	"doc-reader/internal/session"
)

var (
	ErrNoPayload         = errors.New("upload a file before asking a question")
	ErrEmptyPrompt       = errors.New("prompt is empty")
	ErrSessionBusy       = errors.New("session is already answering a prompt")
	ErrImportUnavailable = errors.New("object store import is not configured")
)

type Normalizer interface {
	Normalize(file models.UploadedFile) (models.Payload, error)
}

type Dispatcher interface {
	Dispatch(ctx context.Context, prompt string, payload models.Payload) (models.ModelResponse, error)
}

// SubmissionLedger keeps one row per answered prompt. It never holds prompts or content.
type SubmissionLedger interface {
	Record(ctx context.Context, sub *models.Submission) error
	CountBySession(ctx context.Context, sessionID uuid.UUID) (int, error)
	LatestBySession(ctx context.Context, sessionID uuid.UUID) (*models.Submission, error)
}

type FileDownloader interface {
	Download(ctx context.Context, bucket, key string, maxBytes int64) ([]byte, string, error)
}

type Options struct {
	// Ledger and Files are optional.
	Ledger         SubmissionLedger
	Files          FileDownloader
	Bucket         string
	MaxUploadBytes int64
	Logger         *slog.Logger
}

// Service runs Normalizer -> Dispatcher on explicit session state. Presenting the
// response is left to the surface.
type Service struct {
	sessions   session.Store
	normalizer Normalizer
	dispatcher Dispatcher
	opts       Options
	logger     *slog.Logger
	now        func() time.Time

	mu   sync.Mutex
	busy map[uuid.UUID]struct{}
}

func New(sessions session.Store, normalizer Normalizer, dispatcher Dispatcher, opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		sessions:   sessions,
		normalizer: normalizer,
		dispatcher: dispatcher,
		opts:       opts,
		logger:     logger.With("component", "pipeline"),
		now:        time.Now,
		busy:       make(map[uuid.UUID]struct{}),
	}
}

func (s *Service) NewSession(ctx context.Context) (*models.Session, error) {
	sess, err := models.NewSession(s.now().UTC())
	if err != nil {
		return nil, err
	}

	if err := s.sessions.Save(ctx, sess); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	s.logger.Info("session created", "session", sess.ID)
	return sess, nil
}

func (s *Service) Session(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	return s.sessions.Get(ctx, id)
}

// Activity is the ledger's view of a session.
type Activity struct {
	Submissions int
	Last        *models.Submission
}

// Activity returns nil without an error when no ledger is configured.
func (s *Service) Activity(ctx context.Context, id uuid.UUID) (*Activity, error) {
	if s.opts.Ledger == nil {
		return nil, nil
	}

	count, err := s.opts.Ledger.CountBySession(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to count submissions: %w", err)
	}

	last, err := s.opts.Ledger.LatestBySession(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load latest submission: %w", err)
	}

	return &Activity{Submissions: count, Last: last}, nil
}

// Close deletes the session. A session with a prompt or upload in flight is busy and stays.
func (s *Service) Close(ctx context.Context, id uuid.UUID) error {
	if !s.acquire(id) {
		return ErrSessionBusy
	}
	defer s.release(id)

	if err := s.sessions.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	s.logger.Info("session closed", "session", id)
	return nil
}

// Upload replaces the session's payload with the one derived from file. When conversion
// fails the previous payload is dropped as well, so no later prompt can be answered against it.
func (s *Service) Upload(ctx context.Context, id uuid.UUID, file models.UploadedFile) (*models.Session, error) {
	if !s.acquire(id) {
		return nil, ErrSessionBusy
	}
	defer s.release(id)

	sess, err := s.sessions.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	payload, err := s.normalizer.Normalize(file)
	if err != nil {
		if apperrors.KindOf(err) == apperrors.KindPayloadConversionFailed {
			s.logger.Warn("payload conversion failed",
				"session", id, "file", file.Name, "kind", apperrors.KindOf(err).String(), "error", err)

			sess.Payload = nil
			sess.State = models.StateAwaitingUpload
			sess.UpdatedAt = s.now().UTC()
			if saveErr := s.sessions.Save(ctx, sess); saveErr != nil {
				s.logger.Error("failed to reset session after conversion failure", "session", id, "error", saveErr)
			}
		}
		return nil, err
	}

	sess.Payload = &payload
	sess.State = models.StateAwaitingPrompt
	sess.UpdatedAt = s.now().UTC()

	if err := s.sessions.Save(ctx, sess); err != nil {
		return nil, fmt.Errorf("failed to store payload: %w", err)
	}

	s.logger.Info("payload ready", "session", id, "file", file.Name, "payload_kind", payload.Kind.String(), "size", len(payload.Data))
	return sess, nil
}

// Import fetches key from the configured bucket and uploads it into the session.
func (s *Service) Import(ctx context.Context, id uuid.UUID, key string) (*models.Session, error) {
	if s.opts.Files == nil {
		return nil, ErrImportUnavailable
	}

	data, contentType, err := s.opts.Files.Download(ctx, s.opts.Bucket, key, s.opts.MaxUploadBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to import %s: %w", key, err)
	}

	return s.Upload(ctx, id, models.UploadedFile{
		Name:      path.Base(key),
		MediaType: contentType,
		Data:      data,
	})
}

// Ask answers prompt against the session's latest payload. Remote failures come back as the
// fixed apology with a nil error; they are logged with their cause and recorded in the ledger.
func (s *Service) Ask(ctx context.Context, id uuid.UUID, prompt string) (models.ModelResponse, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", ErrEmptyPrompt
	}

	if !s.acquire(id) {
		return "", ErrSessionBusy
	}
	defer s.release(id)

	sess, err := s.sessions.Get(ctx, id)
	if err != nil {
		return "", err
	}
	if sess.Payload == nil {
		return "", ErrNoPayload
	}

	sess.State = models.StateDispatching
	sess.LastPrompt = prompt
	sess.UpdatedAt = s.now().UTC()
	if err := s.sessions.Save(ctx, sess); err != nil {
		return "", fmt.Errorf("failed to update session: %w", err)
	}

	resp, dispatchErr := s.dispatcher.Dispatch(ctx, prompt, *sess.Payload)

	// bookkeeping must survive a client that went away mid-request
	bookkeeping := context.WithoutCancel(ctx)

	if dispatchErr != nil {
		s.logFailure(id, sess.Payload.Kind, dispatchErr)
	}
	s.record(bookkeeping, sess, dispatchErr)

	sess.State = models.StateAwaitingPrompt
	sess.UpdatedAt = s.now().UTC()
	if err := s.sessions.Save(bookkeeping, sess); err != nil {
		s.logger.Error("failed to update session after dispatch", "session", id, "error", err)
	}

	return resp, nil
}

func (s *Service) logFailure(id uuid.UUID, kind models.PayloadKind, err error) {
	attrs := []any{
		"session", id,
		"payload_kind", kind.String(),
		"kind", apperrors.KindOf(err).String(),
		"permanent", apperrors.IsPermanent(err),
		"error", err,
	}

	if errors.Is(err, context.Canceled) {
		s.logger.Info("completion cancelled by client", attrs...)
		return
	}
	s.logger.Warn("completion failed", attrs...)
}

func (s *Service) record(ctx context.Context, sess *models.Session, dispatchErr error) {
	if s.opts.Ledger == nil {
		return
	}

	id, err := uuid.NewV7()
	if err != nil {
		s.logger.Error("failed to generate submission id", "error", err)
		return
	}

	sub := &models.Submission{
		ID:          id,
		SessionID:   sess.ID,
		PayloadKind: sess.Payload.Kind,
		Status:      models.StatusCompleted,
		CreatedAt:   s.now().UTC(),
	}
	if dispatchErr != nil {
		kind := apperrors.KindOf(dispatchErr).String()
		sub.Status = models.StatusFailed
		sub.ErrorKind = &kind
	}

	if err := s.opts.Ledger.Record(ctx, sub); err != nil {
		s.logger.Error("failed to record submission", "session", sess.ID, "error", err)
	}
}

func (s *Service) acquire(id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.busy[id]; ok {
		return false
	}
	s.busy[id] = struct{}{}
	return true
}

func (s *Service) release(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.busy, id)
}
