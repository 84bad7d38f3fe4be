package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Status int

const (
	StatusUnknown Status = iota
	StatusCompleted
	StatusFailed
)

// Submission is the audit trail of one answered prompt. It never holds the prompt,
// the payload or the answer.
type Submission struct {
	ID uuid.UUID `json:"id" db:"id"`

	SessionID uuid.UUID `json:"session_id" db:"session_id"`

	PayloadKind PayloadKind `json:"payload_kind" db:"payload_kind"`

	Status Status `json:"status" db:"status"`

	ErrorKind *string `json:"error_kind,omitempty" db:"error_kind"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

func (s Status) String() string {
	switch s {
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func StringToStatus(s string) (Status, error) {
	switch s {
	case "completed":
		return StatusCompleted, nil
	case "failed":
		return StatusFailed, nil
	default:
		return StatusUnknown, fmt.Errorf("unknown submission status %q", s)
	}
}
