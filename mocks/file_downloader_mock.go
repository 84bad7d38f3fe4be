package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
)

type MockFileDownloader struct {
	mock.Mock
}

func (m *MockFileDownloader) Download(ctx context.Context, bucket, key string, maxBytes int64) ([]byte, string, error) {
	args := m.Called(ctx, bucket, key, maxBytes)

	var data []byte
	if b := args.Get(0); b != nil {
		data = b.([]byte)
	}
	return data, args.String(1), args.Error(2)
}
