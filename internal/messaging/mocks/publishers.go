package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"storyreel-server/internal/messaging"
)

// Mock TaskPublisher
type TaskPublisher struct {
	mock.Mock
}

func (m *TaskPublisher) PublishGenerationTask(ctx context.Context, payload messaging.GenerationTaskPayload) error {
	args := m.Called(ctx, payload)
	return args.Error(0)
}

// Mock ClientUpdatePublisher
type ClientUpdatePublisher struct {
	mock.Mock
}

func (m *ClientUpdatePublisher) PublishClientUpdate(ctx context.Context, payload messaging.ClientUpdatePayload) error {
	args := m.Called(ctx, payload)
	return args.Error(0)
}
