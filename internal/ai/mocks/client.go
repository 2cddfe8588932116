package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"storyreel-server/internal/ai"
)

// Mock Client
type Client struct {
	mock.Mock
}

func (m *Client) CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, ai.UsageInfo, error) {
	args := m.Called(ctx, systemPrompt, userPrompt)
	usage, _ := args.Get(1).(ai.UsageInfo)
	return args.String(0), usage, args.Error(2)
}
func (m *Client) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, ai.UsageInfo, error) {
	args := m.Called(ctx, systemPrompt, userPrompt)
	usage, _ := args.Get(1).(ai.UsageInfo)
	return args.String(0), usage, args.Error(2)
}
func (m *Client) Speech(ctx context.Context, voice, text string) ([]byte, error) {
	args := m.Called(ctx, voice, text)
	data, _ := args.Get(0).([]byte)
	return data, args.Error(1)
}
