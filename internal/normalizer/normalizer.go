package normalizer

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	apperrors "doc-reader/internal/errors"
	"doc-reader/internal/models"
)

const (
	OpImage = "normalize image"
	OpPDF   = "normalize pdf"
)

var (
	ErrUnsupportedMediaType = errors.New("only JPEG images and PDF documents are accepted")
	ErrEmptyFile            = errors.New("uploaded file is empty")
)

// Normalizer turns an uploaded file into a model-ready payload.
type Normalizer struct {
	acceptPDF bool
}

func New(acceptPDF bool) *Normalizer {
	return &Normalizer{acceptPDF: acceptPDF}
}

// Normalize returns a base64 JPEG payload for images and an extracted-text payload for PDFs.
// Conversion failures are KindPayloadConversionFailed errors and never come with a partial payload.
func (n *Normalizer) Normalize(file models.UploadedFile) (models.Payload, error) {
	if len(file.Data) == 0 {
		return models.Payload{}, ErrEmptyFile
	}

	mediaType, err := n.MediaType(file)
	if err != nil {
		return models.Payload{}, err
	}

	switch mediaType {
	case models.MediaTypeJPEG:
		encoded, err := EncodeJPEGBase64(file.Data)
		if err != nil {
			return models.Payload{}, apperrors.New(apperrors.KindPayloadConversionFailed, OpImage, err)
		}
		return models.Payload{Kind: models.PayloadImage, Data: encoded, Source: file.Name}, nil

	case models.MediaTypePDF:
		text, err := ExtractText(file.Data)
		if err != nil {
			return models.Payload{}, apperrors.New(apperrors.KindPayloadConversionFailed, OpPDF, err)
		}
		return models.Payload{Kind: models.PayloadText, Data: text, Source: file.Name}, nil
	}

	return models.Payload{}, ErrUnsupportedMediaType
}

// MediaType settles on image/jpeg or application/pdf. A specific declared type must agree with
// what the content sniffs as; an inconclusive sniff (corrupt or truncated data) defers to the
// declared type so the file fails later as a conversion error.
func (n *Normalizer) MediaType(file models.UploadedFile) (string, error) {
	declared := canonical(file.MediaType)
	sniffed := canonical(http.DetectContentType(file.Data))

	mediaType := declared
	if generic(declared) {
		mediaType = sniffed
	} else if conclusive(sniffed) && sniffed != declared {
		return "", fmt.Errorf("%w: declared %q but content is %q", ErrUnsupportedMediaType, declared, sniffed)
	}

	if mediaType == "application/octet-stream" {
		mediaType = canonical(mime.TypeByExtension(strings.ToLower(filepath.Ext(file.Name))))
	}

	switch mediaType {
	case models.MediaTypeJPEG:
		return mediaType, nil
	case models.MediaTypePDF:
		if !n.acceptPDF {
			return "", fmt.Errorf("%w: PDF uploads are disabled", ErrUnsupportedMediaType)
		}
		return mediaType, nil
	}

	return "", fmt.Errorf("%w: got %q", ErrUnsupportedMediaType, mediaType)
}

// generic reports whether a declared type says nothing about the content. Object stores label
// unknown uploads binary/octet-stream.
func generic(declared string) bool {
	return declared == "" || declared == "application/octet-stream" || declared == "binary/octet-stream"
}

// conclusive reports whether a sniffed type identifies a binary format. Text and unknown
// bytes say nothing about what the file was meant to be.
func conclusive(sniffed string) bool {
	return sniffed != "application/octet-stream" && !strings.HasPrefix(sniffed, "text/")
}

func canonical(mediaType string) string {
	if mediaType == "" {
		return ""
	}
	parsed, _, err := mime.ParseMediaType(mediaType)
	if err != nil {
		return "application/octet-stream"
	}
	if parsed == "image/jpg" || parsed == "image/pjpeg" {
		return models.MediaTypeJPEG
	}
	return parsed
}

// EncodeJPEGBase64 decodes the image, re-encodes it as JPEG in memory and returns the
// standard base64 form of the result.
func EncodeJPEGBase64(data []byte) (string, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to decode image: %w", err)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpeg.DefaultQuality}); err != nil {
		return "", fmt.Errorf("failed to encode image as jpeg: %w", err)
	}

	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// FailureMessage picks the fixed user-facing message for a conversion error.
func FailureMessage(err error) string {
	var e *apperrors.Error
	if errors.As(err, &e) && e.Op == OpPDF {
		return apperrors.DocumentConversionMessage
	}
	return apperrors.ImageConversionMessage
}
