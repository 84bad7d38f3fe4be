package errors

import (
	"errors"
	"fmt"
)

// indicates an unrecoverable error
var ErrPermanentFailure = errors.New("permanent failure, do not retry")

// Messages shown to the user. The underlying cause never reaches the output surface.
const (
	RemoteFailureMessage      = "Cannot Parse Image Right Now. Please Try Later."
	ImageConversionMessage    = "Something went wrong during image processing. Please Try Later."
	DocumentConversionMessage = "Something went wrong during document processing. Please Try Later."
)

type Kind int

const (
	KindUnknown Kind = iota
	KindConfigurationMissing
	KindPayloadConversionFailed
	KindRemoteRequestFailed
)

func (k Kind) String() string {
	switch k {
	case KindConfigurationMissing:
		return "configuration_missing"
	case KindPayloadConversionFailed:
		return "payload_conversion_failed"
	case KindRemoteRequestFailed:
		return "remote_request_failed"
	default:
		return "unknown"
	}
}

// Error keeps the kind and the original cause of a terminal failure so it can be
// logged and asserted on, while callers only ever show the fixed message.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsPermanent reports whether the remote side rejected the request outright
// (bad credentials, malformed input).
func IsPermanent(err error) bool {
	return errors.Is(err, ErrPermanentFailure)
}
