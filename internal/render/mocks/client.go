package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"storyreel-server/internal/render"
)

// Mock Client
type Client struct {
	mock.Mock
}

func (m *Client) TextToImage(ctx context.Context, req render.TextToImageRequest) (*render.Result, error) {
	args := m.Called(ctx, req)
	res, _ := args.Get(0).(*render.Result)
	return res, args.Error(1)
}
func (m *Client) ImageToImage(ctx context.Context, req render.ImageToImageRequest) (*render.Result, error) {
	args := m.Called(ctx, req)
	res, _ := args.Get(0).(*render.Result)
	return res, args.Error(1)
}
func (m *Client) Upscale(ctx context.Context, image []byte, factor int) (*render.Result, error) {
	args := m.Called(ctx, image, factor)
	res, _ := args.Get(0).(*render.Result)
	return res, args.Error(1)
}
