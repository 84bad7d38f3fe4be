package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/google/uuid"

	"doc-reader/internal/config"
	"doc-reader/internal/dispatcher"
	apperrors "doc-reader/internal/errors"
	"doc-reader/internal/models"
	"doc-reader/internal/normalizer"
	"doc-reader/internal/pipeline"
	"doc-reader/internal/presenter"
	"doc-reader/internal/providers"
	"doc-reader/internal/session"
)

const uploadCommand = ":upload "

func main() {
	err := mainImpl()
	if err != nil {
		fmt.Fprintln(os.Stderr, config.HaltMessage(err))
		os.Exit(1)
	}
}

func mainImpl() error {
	verbose := flag.Bool("v", false, "log pipeline events to stderr")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [-v] <file.jpg|file.pdf>\n", filepath.Base(os.Args[0]))
		flag.PrintDefaults()
	}
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	if flag.NArg() != 1 {
		flag.Usage()
		return errors.New("exactly one file is required")
	}

	logOut := io.Discard
	if *verbose {
		logOut = os.Stderr
	}
	logger := slog.New(slog.NewJSONHandler(logOut, nil))
	slog.SetDefault(logger)

	ctx := context.Background()

	completer, err := providers.NewCompleter(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to create %s client: %w", cfg.Provider, err)
	}

	svc := pipeline.New(
		session.NewMemoryStore(0),
		normalizer.New(cfg.AcceptsPDF()),
		dispatcher.New(completer, dispatcher.Options{
			VisionModel:  cfg.VisionModel,
			TextModel:    cfg.TextModel,
			SystemPrompt: cfg.SystemPrompt,
		}),
		pipeline.Options{MaxUploadBytes: cfg.MaxUploadBytes, Logger: logger},
	)

	sess, err := svc.NewSession(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = svc.Close(ctx, sess.ID)
	}()

	upload(ctx, svc, sess.ID, flag.Arg(0), cfg.MaxUploadBytes)

	rl, err := readline.New("> ")
	if err != nil {
		return err
	}
	defer func() {
		_ = rl.Close()
	}()

	for {
		line, err := rl.Readline()
		if err != nil { // io.EOF or interrupt
			break
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, uploadCommand) {
			upload(ctx, svc, sess.ID, strings.TrimSpace(strings.TrimPrefix(line, uploadCommand)), cfg.MaxUploadBytes)
			continue
		}

		resp, err := svc.Ask(ctx, sess.ID, line)
		if err != nil {
			fmt.Println(err)
			continue
		}
		if err := presenter.Present(os.Stdout, resp); err != nil {
			return err
		}
	}
	return nil
}

// upload reads path and replaces the session payload. Failures are printed, never fatal, so the
// user can try another file.
func upload(ctx context.Context, svc *pipeline.Service, id uuid.UUID, path string, maxBytes int64) {
	file, err := readFile(path, maxBytes)
	if err != nil {
		fmt.Println(err)
		return
	}

	if _, err := svc.Upload(ctx, id, file); err != nil {
		if apperrors.KindOf(err) == apperrors.KindPayloadConversionFailed {
			fmt.Println(normalizer.FailureMessage(err))
			return
		}
		fmt.Println(err)
		return
	}

	fmt.Printf("Loaded %s. Ask a question, or %s<file> to switch files.\n", filepath.Base(path), uploadCommand)
}

func readFile(path string, maxBytes int64) (models.UploadedFile, error) {
	info, err := os.Stat(path)
	if err != nil {
		return models.UploadedFile{}, fmt.Errorf("failed to open file: %w", err)
	}
	if maxBytes > 0 && info.Size() > maxBytes {
		return models.UploadedFile{}, fmt.Errorf("%s is larger than %d bytes", path, maxBytes)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return models.UploadedFile{}, fmt.Errorf("failed to read file: %w", err)
	}

	return models.UploadedFile{
		Name:      filepath.Base(path),
		MediaType: mime.TypeByExtension(strings.ToLower(filepath.Ext(path))),
		Data:      data,
	}, nil
}
