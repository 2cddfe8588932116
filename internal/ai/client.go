package ai

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/pkoukk/tiktoken-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	openaigo "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"storyreel-server/internal/models"
)

var (
	aiRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storyreel_ai_requests_total",
			Help: "Total number of requests to the AI API.",
		},
		[]string{"model", "kind", "status"},
	)
	aiRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "storyreel_ai_request_duration_seconds",
			Help:    "Histogram of AI API request durations.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"model", "kind"},
	)
	aiTotalTokens = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "storyreel_ai_total_tokens",
			Help:    "Histogram of total token counts (prompt + completion).",
			Buckets: prometheus.LinearBuckets(350, 350, 20),
		},
		[]string{"model"},
	)
)

// UsageInfo содержит информацию об использовании токенов.
type UsageInfo struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Client — интерфейс чат-комплишенов и TTS.
type Client interface {
	// CompleteJSON выполняет запрос в json-режиме и возвращает сырой
	// JSON-ответ модели.
	CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, UsageInfo, error)
	// Complete выполняет обычный текстовый запрос.
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, UsageInfo, error)
	// Speech синтезирует речь для строки озвучки.
	Speech(ctx context.Context, voice, text string) ([]byte, error)
}

// Config — настройки клиента AI.
type Config struct {
	APIKey          string
	BaseURL         string
	Model           string
	TTSModel        string
	Timeout         time.Duration
	MaxRetries      int
	MaxPromptTokens int
}

// Compile-time check to ensure openAIClient implements Client
var _ Client = (*openAIClient)(nil)

type openAIClient struct {
	client          *openaigo.Client
	model           string
	ttsModel        string
	timeout         time.Duration
	maxRetries      int
	maxPromptTokens int
	logger          *zap.Logger
}

// NewClient creates an OpenAI-compatible chat/TTS client.
// BaseURL позволяет использовать OpenRouter и совместимые прокси.
func NewClient(cfg Config, logger *zap.Logger) Client {
	clientConfig := openaigo.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}

	return &openAIClient{
		client:          openaigo.NewClientWithConfig(clientConfig),
		model:           cfg.Model,
		ttsModel:        cfg.TTSModel,
		timeout:         timeout,
		maxRetries:      maxRetries,
		maxPromptTokens: cfg.MaxPromptTokens,
		logger:          logger.Named("AIClient"),
	}
}

// countPromptTokens оценивает размер промпта локально. Используется как
// предохранитель до отправки запроса и как fallback, когда провайдер
// не возвращает usage.
func (c *openAIClient) countPromptTokens(systemPrompt, userPrompt string) int {
	tke, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return 0
	}
	return len(tke.Encode(systemPrompt, nil, nil)) + len(tke.Encode(userPrompt, nil, nil))
}

func (c *openAIClient) complete(ctx context.Context, kind, systemPrompt, userPrompt string, jsonMode bool) (string, UsageInfo, error) {
	usage := UsageInfo{}

	if strings.TrimSpace(systemPrompt) == "" {
		aiRequestsTotal.With(prometheus.Labels{"model": c.model, "kind": kind, "status": "error"}).Inc()
		return "", usage, fmt.Errorf("empty system prompt")
	}

	promptTokens := c.countPromptTokens(systemPrompt, userPrompt)
	if c.maxPromptTokens > 0 && promptTokens > c.maxPromptTokens {
		aiRequestsTotal.With(prometheus.Labels{"model": c.model, "kind": kind, "status": "error_too_long"}).Inc()
		return "", usage, fmt.Errorf("prompt too long: %d tokens (limit %d)", promptTokens, c.maxPromptTokens)
	}

	request := openaigo.ChatCompletionRequest{
		Model: c.model,
		Messages: []openaigo.ChatCompletionMessage{
			{Role: openaigo.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openaigo.ChatMessageRoleUser, Content: userPrompt},
		},
	}
	if jsonMode {
		request.ResponseFormat = &openaigo.ChatCompletionResponseFormat{
			Type: openaigo.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	var lastErr error
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
		startTime := time.Now()
		resp, err := c.client.CreateChatCompletion(reqCtx, request)
		duration := time.Since(startTime)
		cancel()

		if err != nil {
			lastErr = err
			aiRequestsTotal.With(prometheus.Labels{"model": c.model, "kind": kind, "status": "error"}).Inc()
			c.logger.Warn("AI request failed",
				zap.String("kind", kind),
				zap.Int("attempt", attempt),
				zap.Duration("duration", duration),
				zap.Error(err))
			if ctx.Err() != nil {
				return "", usage, ctx.Err()
			}
			// Экспоненциальная задержка между попытками
			select {
			case <-time.After(time.Duration(attempt) * 2 * time.Second):
			case <-ctx.Done():
				return "", usage, ctx.Err()
			}
			continue
		}

		if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
			lastErr = fmt.Errorf("empty response from AI API")
			aiRequestsTotal.With(prometheus.Labels{"model": c.model, "kind": kind, "status": "error_empty_response"}).Inc()
			continue
		}

		aiRequestsTotal.With(prometheus.Labels{"model": c.model, "kind": kind, "status": "success"}).Inc()
		aiRequestDuration.With(prometheus.Labels{"model": c.model, "kind": kind}).Observe(duration.Seconds())

		if resp.Usage.TotalTokens > 0 {
			usage.PromptTokens = resp.Usage.PromptTokens
			usage.CompletionTokens = resp.Usage.CompletionTokens
			usage.TotalTokens = resp.Usage.TotalTokens
		} else {
			// Провайдер не вернул usage, используем локальную оценку
			usage.PromptTokens = promptTokens
			usage.TotalTokens = promptTokens
		}
		aiTotalTokens.With(prometheus.Labels{"model": c.model}).Observe(float64(usage.TotalTokens))

		c.logger.Debug("AI request completed",
			zap.String("kind", kind),
			zap.Duration("duration", duration),
			zap.Int("totalTokens", usage.TotalTokens))

		return resp.Choices[0].Message.Content, usage, nil
	}

	return "", usage, fmt.Errorf("ai request failed after %d attempts: %w", c.maxRetries, lastErr)
}

func (c *openAIClient) CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, UsageInfo, error) {
	return c.complete(ctx, "json", systemPrompt, userPrompt, true)
}

func (c *openAIClient) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, UsageInfo, error) {
	return c.complete(ctx, "text", systemPrompt, userPrompt, false)
}

// Speech синтезирует озвучку строки указанным голосом.
func (c *openAIClient) Speech(ctx context.Context, voice, text string) ([]byte, error) {
	if !models.ValidVoice(voice) {
		return nil, models.ErrInvalidVoice
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	startTime := time.Now()
	resp, err := c.client.CreateSpeech(reqCtx, openaigo.CreateSpeechRequest{
		Model: openaigo.SpeechModel(c.ttsModel),
		Input: text,
		Voice: openaigo.SpeechVoice(voice),
	})
	duration := time.Since(startTime)

	if err != nil {
		aiRequestsTotal.With(prometheus.Labels{"model": c.ttsModel, "kind": "tts", "status": "error"}).Inc()
		return nil, fmt.Errorf("%w: %v", models.ErrVoiceoverFailed, err)
	}
	defer resp.Close()

	data, err := io.ReadAll(resp)
	if err != nil {
		aiRequestsTotal.With(prometheus.Labels{"model": c.ttsModel, "kind": "tts", "status": "error"}).Inc()
		return nil, fmt.Errorf("%w: failed to read audio stream: %v", models.ErrVoiceoverFailed, err)
	}

	aiRequestsTotal.With(prometheus.Labels{"model": c.ttsModel, "kind": "tts", "status": "success"}).Inc()
	aiRequestDuration.With(prometheus.Labels{"model": c.ttsModel, "kind": "tts"}).Observe(duration.Seconds())

	return data, nil
}
