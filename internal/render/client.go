package render

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"storyreel-server/internal/models"
)

// Client - клиент HTTP API провайдера рендеринга изображений.
type Client interface {
	// TextToImage генерирует изображение по текстовому промпту.
	TextToImage(ctx context.Context, req TextToImageRequest) (*Result, error)
	// ImageToImage генерирует изображение на основе базового изображения и промпта.
	ImageToImage(ctx context.Context, req ImageToImageRequest) (*Result, error)
	// Upscale увеличивает изображение в scale раз.
	Upscale(ctx context.Context, image []byte, scale int) (*Result, error)
}

// TextToImageRequest - параметры запроса text-to-image.
type TextToImageRequest struct {
	Prompt string `json:"prompt"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
}

// ImageToImageRequest - параметры запроса image-to-image.
type ImageToImageRequest struct {
	Prompt string
	Image  []byte
	Width  int
	Height int
}

// Result - результат генерации: байты изображения и флаг модерации.
type Result struct {
	Image  []byte
	Width  int
	Height int
	NSFW   bool
}

// apiResponse - JSON-ответ провайдера. Изображение приходит в base64.
type apiResponse struct {
	Image  string `json:"image"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	NSFW   bool   `json:"nsfw"`
}

type httpClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *zap.Logger
}

var _ Client = (*httpClient)(nil)

// NewClient создает клиент провайдера рендеринга.
func NewClient(baseURL, apiKey string, timeout time.Duration, logger *zap.Logger) Client {
	return &httpClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
		logger:  logger.Named("RenderClient"),
	}
}

func (c *httpClient) TextToImage(ctx context.Context, req TextToImageRequest) (*Result, error) {
	return c.call(ctx, "/v1/generate", req)
}

func (c *httpClient) ImageToImage(ctx context.Context, req ImageToImageRequest) (*Result, error) {
	payload := struct {
		Prompt string `json:"prompt"`
		Image  string `json:"image"`
		Width  int    `json:"width,omitempty"`
		Height int    `json:"height,omitempty"`
	}{
		Prompt: req.Prompt,
		Image:  base64.StdEncoding.EncodeToString(req.Image),
		Width:  req.Width,
		Height: req.Height,
	}
	return c.call(ctx, "/v1/edit", payload)
}

func (c *httpClient) Upscale(ctx context.Context, image []byte, scale int) (*Result, error) {
	payload := struct {
		Image string `json:"image"`
		Scale int    `json:"scale"`
	}{
		Image: base64.StdEncoding.EncodeToString(image),
		Scale: scale,
	}
	return c.call(ctx, "/v1/upscale", payload)
}

// call - выполняет POST запрос к API и декодирует ответ.
func (c *httpClient) call(ctx context.Context, path string, payload any) (*Result, error) {
	log := c.logger.With(zap.String("endpoint", path))

	reqBodyBytes, err := json.Marshal(payload)
	if err != nil {
		log.Error("Failed to marshal render API request payload", zap.Error(err))
		return nil, fmt.Errorf("%w: marshal request payload: %v", models.ErrImageGenerationFailed, err)
	}

	endpointURL := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpointURL, bytes.NewReader(reqBodyBytes))
	if err != nil {
		log.Error("Failed to create render API request", zap.String("url", endpointURL), zap.Error(err))
		return nil, fmt.Errorf("%w: create request: %v", models.ErrImageGenerationFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	log.Debug("Sending request to render API")
	resp, err := c.client.Do(req)
	if err != nil {
		log.Error("Failed to execute render API request", zap.Error(err))
		return nil, fmt.Errorf("%w: http request failed: %v", models.ErrImageGenerationFailed, err)
	}
	defer resp.Body.Close()

	bodyBytes, readErr := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		log.Error("Render API returned non-OK status",
			zap.Int("status_code", resp.StatusCode),
			zap.ByteString("response_body", bodyBytes),
		)
		return nil, fmt.Errorf("%w: API returned status %d: %s", models.ErrImageGenerationFailed, resp.StatusCode, string(bodyBytes))
	}

	if readErr != nil {
		log.Error("Failed to read render API response body", zap.Error(readErr))
		return nil, fmt.Errorf("%w: read response body: %v", models.ErrImageGenerationFailed, readErr)
	}

	var apiResp apiResponse
	if err := json.Unmarshal(bodyBytes, &apiResp); err != nil {
		log.Error("Failed to decode render API response", zap.Error(err))
		return nil, fmt.Errorf("%w: decode response: %v", models.ErrImageGenerationFailed, err)
	}

	imageData, err := base64.StdEncoding.DecodeString(apiResp.Image)
	if err != nil {
		log.Error("Failed to decode render API image payload", zap.Error(err))
		return nil, fmt.Errorf("%w: decode image payload: %v", models.ErrImageGenerationFailed, err)
	}
	if len(imageData) == 0 {
		return nil, fmt.Errorf("%w: empty image in response", models.ErrImageGenerationFailed)
	}

	log.Debug("Render API call successful", zap.Int("image_bytes", len(imageData)))
	return &Result{Image: imageData, Width: apiResp.Width, Height: apiResp.Height, NSFW: apiResp.NSFW}, nil
}
