package postgresdb

import (
	"context"
	"errors"
	"fmt"

	"doc-reader/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
	CREATE TABLE IF NOT EXISTS submissions (
		id           UUID PRIMARY KEY,
		session_id   UUID NOT NULL,
		payload_kind TEXT NOT NULL,
		status       TEXT NOT NULL,
		error_kind   TEXT,
		created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`

const sessionIndex = `
	CREATE INDEX IF NOT EXISTS submissions_session_idx ON submissions (session_id, created_at DESC)`

type Store struct {
	Pool *pgxpool.Pool
}

func New(ctx context.Context, connString string) (*Store, error) {
	if connString == "" {
		return nil, fmt.Errorf("ERROR: database connection string is required")
	}

	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("ERROR: invalid database connection string: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("ERROR: unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ERROR: unable to ping database: %w", err)
	}

	return &Store{Pool: pool}, nil
}

func (s *Store) Close() {
	s.Pool.Close()
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.Pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ERROR: unable to create submissions table: %w", err)
	}
	if _, err := s.Pool.Exec(ctx, sessionIndex); err != nil {
		return fmt.Errorf("ERROR: unable to create submissions index: %w", err)
	}
	return nil
}

// Record appends one prompt outcome to the ledger.
func (s *Store) Record(ctx context.Context, sub *models.Submission) error {

	sql := `
		INSERT INTO submissions (id, session_id, payload_kind, status, error_kind, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		`

	_, err := s.Pool.Exec(
		ctx,
		sql,
		sub.ID,
		sub.SessionID,
		sub.PayloadKind.String(),
		sub.Status.String(),
		sub.ErrorKind,
		sub.CreatedAt,
	)

	if err != nil {
		return fmt.Errorf("ERROR: unable to record submission %s: %w", sub.ID, err)
	}

	return nil
}

// LatestBySession returns the most recent submission of a session, or nil when it has not
// submitted anything yet.
func (s *Store) LatestBySession(ctx context.Context, sessionID uuid.UUID) (*models.Submission, error) {

	var sub models.Submission

	// convert to string before sending back
	var kindString, statusString string

	sql := `
        SELECT id, session_id, payload_kind, status, error_kind, created_at
        FROM submissions
        WHERE session_id = $1
        ORDER BY created_at DESC, id DESC
        LIMIT 1
        `

	err := s.Pool.QueryRow(
		ctx,
		sql,
		sessionID,
	).Scan(
		&sub.ID,
		&sub.SessionID,
		&kindString,
		&statusString,
		&sub.ErrorKind,
		&sub.CreatedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ERROR: Failed to retrieve submission with error: %w", err)
	}

	sub.PayloadKind, err = models.StringToPayloadKind(kindString)
	if err != nil {
		return nil, fmt.Errorf("ERROR: database contains invalid payload kind: %w", err)
	}

	sub.Status, err = models.StringToStatus(statusString)
	if err != nil {
		return nil, fmt.Errorf("ERROR: database contains invalid submission status: %w", err)
	}

	return &sub, nil
}

// CountBySession returns how many prompts a session has submitted.
func (s *Store) CountBySession(ctx context.Context, sessionID uuid.UUID) (int, error) {
	var n int
	err := s.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM submissions WHERE session_id = $1`, sessionID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("ERROR: unable to count submissions: %w", err)
	}
	return n, nil
}
