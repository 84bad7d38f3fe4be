package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type SessionState int

// a new session waits for its first upload
const (
	StateIdle SessionState = iota
	StateAwaitingUpload
	StateAwaitingPrompt
	StateDispatching
)

type Session struct {
	ID uuid.UUID `json:"id"`

	State SessionState `json:"state"`

	Payload *Payload `json:"payload,omitempty"`

	LastPrompt string `json:"last_prompt,omitempty"`

	CreatedAt time.Time `json:"created_at"`

	UpdatedAt time.Time `json:"updated_at"`
}

func NewSession(now time.Time) (*Session, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session id: %w", err)
	}
	return &Session{
		ID:        id,
		State:     StateAwaitingUpload,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingUpload:
		return "awaiting_upload"
	case StateAwaitingPrompt:
		return "awaiting_prompt"
	case StateDispatching:
		return "dispatching"
	default:
		return "unknown"
	}
}

func StringToSessionState(s string) (SessionState, error) {
	switch s {
	case "idle":
		return StateIdle, nil
	case "awaiting_upload":
		return StateAwaitingUpload, nil
	case "awaiting_prompt":
		return StateAwaitingPrompt, nil
	case "dispatching":
		return StateDispatching, nil
	default:
		return StateIdle, fmt.Errorf("unknown session state %q", s)
	}
}

func (s SessionState) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *SessionState) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	state, err := StringToSessionState(str)
	if err != nil {
		return err
	}
	*s = state
	return nil
}
