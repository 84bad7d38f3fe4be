package mocks

import (
	"context"

	"doc-reader/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

type MockLedger struct {
	mock.Mock
}

func (m *MockLedger) Record(ctx context.Context, sub *models.Submission) error {
	args := m.Called(ctx, sub)
	return args.Error(0)
}

func (m *MockLedger) CountBySession(ctx context.Context, sessionID uuid.UUID) (int, error) {
	args := m.Called(ctx, sessionID)
	return args.Int(0), args.Error(1)
}

func (m *MockLedger) LatestBySession(ctx context.Context, sessionID uuid.UUID) (*models.Submission, error) {
	args := m.Called(ctx, sessionID)

	var sub *models.Submission
	if s := args.Get(0); s != nil {
		sub = s.(*models.Submission)
	}
	return sub, args.Error(1)
}
