package valkeydb

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/valkey-io/valkey-go"

	"doc-reader/internal/models"
	"doc-reader/internal/session"
)

const keyPrefix = "session:"

type ValkeyClient struct {
	Client valkey.Client
	ttl    time.Duration
}

func New(ctx context.Context, address string, password string, ttl time.Duration) (*ValkeyClient, error) {
	client, err := valkey.NewClient(valkey.ClientOption{
		InitAddress: []string{address},
		Password:    password,
	})
	if err != nil {
		return nil, fmt.Errorf("unable to create Valkey client: %w", err)
	}

	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("unable to ping Valkey: %w", err)
	}

	return &ValkeyClient{Client: client, ttl: ttl}, nil
}

func (v *ValkeyClient) Close() {
	v.Client.Close()
}

// Save stores the session as JSON and refreshes its expiry.
func (v *ValkeyClient) Save(ctx context.Context, s *models.Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("unable to encode session %s: %w", s.ID, err)
	}

	var cmd valkey.Completed
	if v.ttl > 0 {
		cmd = v.Client.B().Set().Key(sessionKey(s.ID)).Value(string(data)).PxMilliseconds(v.ttl.Milliseconds()).Build()
	} else {
		cmd = v.Client.B().Set().Key(sessionKey(s.ID)).Value(string(data)).Build()
	}

	if err := v.Client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("unable to save session %s: %w", s.ID, err)
	}

	return nil
}

func (v *ValkeyClient) Get(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	cmd := v.Client.B().Get().Key(sessionKey(id)).Build()

	raw, err := v.Client.Do(ctx, cmd).ToString()
	if valkey.IsValkeyNil(err) {
		return nil, session.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("unable to load session %s: %w", id, err)
	}

	var s models.Session
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return nil, fmt.Errorf("session %s holds invalid data: %w", id, err)
	}

	return &s, nil
}

func (v *ValkeyClient) Delete(ctx context.Context, id uuid.UUID) error {
	cmd := v.Client.B().Del().Key(sessionKey(id)).Build()

	if err := v.Client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("unable to delete session %s: %w", id, err)
	}

	return nil
}

func sessionKey(id uuid.UUID) string {
	return keyPrefix + id.String()
}
