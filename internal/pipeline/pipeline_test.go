package pipeline

import (
	"context"
	"errors"
	"image/color"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"doc-reader/internal/completion"
	"doc-reader/internal/dispatcher"
	apperrors "doc-reader/internal/errors"
	"doc-reader/internal/fixtures"
	"doc-reader/internal/models"
	"doc-reader/internal/normalizer"
	"doc-reader/internal/session"
	"doc-reader/mocks"
)

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func newTestService(t *testing.T, completer completion.Completer, opts Options) *Service {
	t.Helper()

	opts.Logger = quietLogger
	return New(
		session.NewMemoryStore(time.Hour),
		normalizer.New(true),
		dispatcher.New(completer, dispatcher.Options{
			VisionModel:  "glm-4v",
			TextModel:    "glm-4",
			SystemPrompt: "Answer using only the following document:\n\n",
		}),
		opts,
	)
}

func TestImageUploadAndAsk(t *testing.T) {
	ctx := context.Background()
	completer := new(mocks.MockCompleter)
	completer.On("CompleteVision", mock.Anything, mock.MatchedBy(func(req completion.VisionRequest) bool {
		return req.Model == "glm-4v" && req.Prompt == "What color is this?" && req.ImageBase64 != ""
	})).Return("The image is solid red.", nil).Once()

	svc := newTestService(t, completer, Options{})

	sess, err := svc.NewSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.StateAwaitingUpload, sess.State)

	sess, err = svc.Upload(ctx, sess.ID, models.UploadedFile{
		Name:      "red.jpg",
		MediaType: models.MediaTypeJPEG,
		Data:      fixtures.JPEG(64, 64, color.RGBA{R: 255, A: 255}),
	})
	require.NoError(t, err)
	require.NotNil(t, sess.Payload)
	assert.Equal(t, models.PayloadImage, sess.Payload.Kind)
	assert.Equal(t, models.StateAwaitingPrompt, sess.State)

	resp, err := svc.Ask(ctx, sess.ID, "What color is this?")
	require.NoError(t, err)
	assert.Equal(t, models.ModelResponse("The image is solid red."), resp)

	stored, err := svc.Session(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StateAwaitingPrompt, stored.State)
	assert.Equal(t, "What color is this?", stored.LastPrompt)

	completer.AssertExpectations(t)
}

func TestDocumentUploadAndAsk(t *testing.T) {
	ctx := context.Background()
	completer := new(mocks.MockCompleter)
	completer.On("CompleteText", mock.Anything, completion.TextRequest{
		Model:  "glm-4",
		System: "Answer using only the following document:\n\nName: Jane Doe\nSkills: Go, Rust",
		Prompt: "What are the skills?",
	}).Return("Go and Rust.", nil).Once()

	ledger := new(mocks.MockLedger)
	ledger.On("Record", mock.Anything, mock.MatchedBy(func(sub *models.Submission) bool {
		return sub.Status == models.StatusCompleted && sub.PayloadKind == models.PayloadText && sub.ErrorKind == nil
	})).Return(nil).Once()

	svc := newTestService(t, completer, Options{Ledger: ledger})

	sess, err := svc.NewSession(ctx)
	require.NoError(t, err)

	_, err = svc.Upload(ctx, sess.ID, models.UploadedFile{
		Name: "resume.pdf",
		Data: fixtures.PDF("Name: Jane Doe\nSkills: Go, Rust"),
	})
	require.NoError(t, err)

	resp, err := svc.Ask(ctx, sess.ID, "What are the skills?")
	require.NoError(t, err)
	assert.Equal(t, models.ModelResponse("Go and Rust."), resp)

	completer.AssertExpectations(t)
	ledger.AssertExpectations(t)
}

func TestRemoteFailureReturnsFallback(t *testing.T) {
	ctx := context.Background()
	completer := new(mocks.MockCompleter)
	completer.On("CompleteVision", mock.Anything, mock.Anything).
		Return("", errors.New("401 invalid api key")).Once()

	ledger := new(mocks.MockLedger)
	ledger.On("Record", mock.Anything, mock.MatchedBy(func(sub *models.Submission) bool {
		return sub.Status == models.StatusFailed &&
			sub.ErrorKind != nil && *sub.ErrorKind == "remote_request_failed"
	})).Return(nil).Once()

	svc := newTestService(t, completer, Options{Ledger: ledger})

	sess, err := svc.NewSession(ctx)
	require.NoError(t, err)
	_, err = svc.Upload(ctx, sess.ID, models.UploadedFile{
		Name:      "photo.jpg",
		MediaType: models.MediaTypeJPEG,
		Data:      fixtures.JPEG(8, 8, color.White),
	})
	require.NoError(t, err)

	resp, err := svc.Ask(ctx, sess.ID, "Describe it")
	require.NoError(t, err)
	assert.Equal(t, models.ModelResponse(apperrors.RemoteFailureMessage), resp)

	ledger.AssertExpectations(t)
}

func TestLedgerFailureDoesNotAffectAnswer(t *testing.T) {
	ctx := context.Background()
	completer := new(mocks.MockCompleter)
	completer.On("CompleteVision", mock.Anything, mock.Anything).Return("white", nil).Once()

	ledger := new(mocks.MockLedger)
	ledger.On("Record", mock.Anything, mock.Anything).Return(errors.New("db down")).Once()

	svc := newTestService(t, completer, Options{Ledger: ledger})
	sess, err := svc.NewSession(ctx)
	require.NoError(t, err)
	_, err = svc.Upload(ctx, sess.ID, models.UploadedFile{
		MediaType: models.MediaTypeJPEG,
		Data:      fixtures.JPEG(8, 8, color.White),
	})
	require.NoError(t, err)

	resp, err := svc.Ask(ctx, sess.ID, "color?")
	require.NoError(t, err)
	assert.Equal(t, models.ModelResponse("white"), resp)
}

func TestAskWithoutPayload(t *testing.T) {
	ctx := context.Background()
	completer := new(mocks.MockCompleter)
	svc := newTestService(t, completer, Options{})

	sess, err := svc.NewSession(ctx)
	require.NoError(t, err)

	_, err = svc.Ask(ctx, sess.ID, "anything?")
	assert.ErrorIs(t, err, ErrNoPayload)
	completer.AssertNotCalled(t, "CompleteVision", mock.Anything, mock.Anything)
	completer.AssertNotCalled(t, "CompleteText", mock.Anything, mock.Anything)
}

func TestAskValidation(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, new(mocks.MockCompleter), Options{})

	_, err := svc.Ask(ctx, uuid.New(), "  \n")
	assert.ErrorIs(t, err, ErrEmptyPrompt)

	_, err = svc.Ask(ctx, uuid.New(), "hello")
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestFailedUploadDropsPreviousPayload(t *testing.T) {
	ctx := context.Background()
	completer := new(mocks.MockCompleter)
	svc := newTestService(t, completer, Options{})

	sess, err := svc.NewSession(ctx)
	require.NoError(t, err)
	_, err = svc.Upload(ctx, sess.ID, models.UploadedFile{
		MediaType: models.MediaTypeJPEG,
		Data:      fixtures.JPEG(8, 8, color.White),
	})
	require.NoError(t, err)

	_, err = svc.Upload(ctx, sess.ID, models.UploadedFile{
		Name:      "broken.jpg",
		MediaType: models.MediaTypeJPEG,
		Data:      []byte("not a jpeg"),
	})
	require.Error(t, err)
	assert.Equal(t, apperrors.KindPayloadConversionFailed, apperrors.KindOf(err))

	stored, err := svc.Session(ctx, sess.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.Payload)
	assert.Equal(t, models.StateAwaitingUpload, stored.State)

	_, err = svc.Ask(ctx, sess.ID, "color?")
	assert.ErrorIs(t, err, ErrNoPayload)
}

func TestUnsupportedUploadKeepsPreviousPayload(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, new(mocks.MockCompleter), Options{})

	sess, err := svc.NewSession(ctx)
	require.NoError(t, err)
	_, err = svc.Upload(ctx, sess.ID, models.UploadedFile{
		MediaType: models.MediaTypeJPEG,
		Data:      fixtures.JPEG(8, 8, color.White),
	})
	require.NoError(t, err)

	_, err = svc.Upload(ctx, sess.ID, models.UploadedFile{
		Name:      "notes.txt",
		MediaType: "text/plain",
		Data:      []byte("plain text"),
	})
	assert.ErrorIs(t, err, normalizer.ErrUnsupportedMediaType)

	stored, err := svc.Session(ctx, sess.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.Payload)
	assert.Equal(t, models.PayloadImage, stored.Payload.Kind)
}

func TestLatestUploadWins(t *testing.T) {
	ctx := context.Background()
	completer := new(mocks.MockCompleter)
	completer.On("CompleteText", mock.Anything, mock.MatchedBy(func(req completion.TextRequest) bool {
		return req.System == "Answer using only the following document:\n\nsecond"
	})).Return("second", nil).Once()

	svc := newTestService(t, completer, Options{})
	sess, err := svc.NewSession(ctx)
	require.NoError(t, err)

	for _, text := range []string{"first", "second"} {
		_, err = svc.Upload(ctx, sess.ID, models.UploadedFile{
			MediaType: models.MediaTypePDF,
			Data:      fixtures.PDF(text),
		})
		require.NoError(t, err)
	}

	resp, err := svc.Ask(ctx, sess.ID, "which one?")
	require.NoError(t, err)
	assert.Equal(t, models.ModelResponse("second"), resp)
	completer.AssertExpectations(t)
}

func TestConcurrentAskIsRejected(t *testing.T) {
	ctx := context.Background()
	started := make(chan struct{})
	unblock := make(chan struct{})

	completer := new(mocks.MockCompleter)
	completer.On("CompleteVision", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) {
			close(started)
			<-unblock
		}).
		Return("done", nil).Once()

	svc := newTestService(t, completer, Options{})
	sess, err := svc.NewSession(ctx)
	require.NoError(t, err)
	_, err = svc.Upload(ctx, sess.ID, models.UploadedFile{
		MediaType: models.MediaTypeJPEG,
		Data:      fixtures.JPEG(8, 8, color.White),
	})
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		resp, err := svc.Ask(ctx, sess.ID, "first")
		assert.NoError(t, err)
		assert.Equal(t, models.ModelResponse("done"), resp)
	}()

	<-started
	_, err = svc.Ask(ctx, sess.ID, "second")
	assert.ErrorIs(t, err, ErrSessionBusy)

	_, err = svc.Upload(ctx, sess.ID, models.UploadedFile{
		MediaType: models.MediaTypeJPEG,
		Data:      fixtures.JPEG(8, 8, color.Black),
	})
	assert.ErrorIs(t, err, ErrSessionBusy)

	stored, err := svc.Session(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StateDispatching, stored.State)

	close(unblock)
	wg.Wait()
	completer.AssertExpectations(t)
}

func TestImport(t *testing.T) {
	ctx := context.Background()
	files := new(mocks.MockFileDownloader)
	files.On("Download", mock.Anything, "uploads", "docs/resume.pdf", int64(1<<20)).
		Return(fixtures.PDF("Name: Jane Doe"), "application/pdf", nil).Once()

	svc := newTestService(t, new(mocks.MockCompleter), Options{
		Files:          files,
		Bucket:         "uploads",
		MaxUploadBytes: 1 << 20,
	})
	sess, err := svc.NewSession(ctx)
	require.NoError(t, err)

	sess, err = svc.Import(ctx, sess.ID, "docs/resume.pdf")
	require.NoError(t, err)
	require.NotNil(t, sess.Payload)
	assert.Equal(t, models.PayloadText, sess.Payload.Kind)
	assert.Equal(t, "Name: Jane Doe", sess.Payload.Data)
	assert.Equal(t, "resume.pdf", sess.Payload.Source)
	files.AssertExpectations(t)
}

func TestImportErrors(t *testing.T) {
	ctx := context.Background()

	svc := newTestService(t, new(mocks.MockCompleter), Options{})
	_, err := svc.Import(ctx, uuid.New(), "a.pdf")
	assert.ErrorIs(t, err, ErrImportUnavailable)

	cause := errors.New("NoSuchKey")
	files := new(mocks.MockFileDownloader)
	files.On("Download", mock.Anything, "uploads", "missing.pdf", int64(0)).Return(nil, "", cause).Once()

	svc = newTestService(t, new(mocks.MockCompleter), Options{Files: files, Bucket: "uploads"})
	_, err = svc.Import(ctx, uuid.New(), "missing.pdf")
	assert.ErrorIs(t, err, cause)
}

func TestCloseRemovesSession(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, new(mocks.MockCompleter), Options{})

	sess, err := svc.NewSession(ctx)
	require.NoError(t, err)
	require.NoError(t, svc.Close(ctx, sess.ID))

	_, err = svc.Session(ctx, sess.ID)
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestCloseWhileAskInFlight(t *testing.T) {
	ctx := context.Background()
	started := make(chan struct{})
	unblock := make(chan struct{})

	completer := new(mocks.MockCompleter)
	completer.On("CompleteVision", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) {
			close(started)
			<-unblock
		}).
		Return("done", nil).Once()

	svc := newTestService(t, completer, Options{})
	sess, err := svc.NewSession(ctx)
	require.NoError(t, err)
	_, err = svc.Upload(ctx, sess.ID, models.UploadedFile{
		MediaType: models.MediaTypeJPEG,
		Data:      fixtures.JPEG(8, 8, color.White),
	})
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := svc.Ask(ctx, sess.ID, "color?")
		assert.NoError(t, err)
	}()

	<-started
	assert.ErrorIs(t, svc.Close(ctx, sess.ID), ErrSessionBusy)

	close(unblock)
	<-done

	require.NoError(t, svc.Close(ctx, sess.ID))
	_, err = svc.Session(ctx, sess.ID)
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestActivity(t *testing.T) {
	ctx := context.Background()
	id := uuid.New()

	svc := newTestService(t, new(mocks.MockCompleter), Options{})
	activity, err := svc.Activity(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, activity)

	errorKind := "remote_request_failed"
	last := &models.Submission{ID: uuid.New(), SessionID: id, Status: models.StatusFailed, ErrorKind: &errorKind}

	ledger := new(mocks.MockLedger)
	ledger.On("CountBySession", mock.Anything, id).Return(2, nil).Once()
	ledger.On("LatestBySession", mock.Anything, id).Return(last, nil).Once()

	svc = newTestService(t, new(mocks.MockCompleter), Options{Ledger: ledger})
	activity, err = svc.Activity(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, activity)
	assert.Equal(t, 2, activity.Submissions)
	assert.Equal(t, last, activity.Last)

	ledger = new(mocks.MockLedger)
	ledger.On("CountBySession", mock.Anything, id).Return(0, errors.New("db down")).Once()

	svc = newTestService(t, new(mocks.MockCompleter), Options{Ledger: ledger})
	_, err = svc.Activity(ctx, id)
	assert.Error(t, err)
	ledger.AssertNotCalled(t, "LatestBySession", mock.Anything, mock.Anything)
}
