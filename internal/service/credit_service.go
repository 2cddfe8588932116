package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"storyreel-server/internal/interfaces"
	"storyreel-server/internal/models"
)

// PaymentWebhookEvent — тело вебхука платежного провайдера.
type PaymentWebhookEvent struct {
	Event  string `json:"event"`
	UserID string `json:"user_id"`
	PackID string `json:"pack_id"`
}

// CreditService defines the interface for credit balances and purchases.
type CreditService interface {
	GetBalance(ctx context.Context, userID uuid.UUID) (*models.Credits, error)
	// HandlePaymentWebhook проверяет HMAC-подпись тела и зачисляет
	// пакет кредитов. Невалидная подпись — models.ErrUnauthorized.
	HandlePaymentWebhook(ctx context.Context, body []byte, signature string) error
	// GrantInitial создает стартовый баланс нового пользователя.
	GrantInitial(ctx context.Context, userID uuid.UUID, amount int) error
}

type creditServiceImpl struct {
	pool          *pgxpool.Pool
	creditsRepo   interfaces.CreditsRepository
	webhookSecret string
	logger        *zap.Logger
}

// NewCreditService creates a new instance of CreditService.
func NewCreditService(pool *pgxpool.Pool, creditsRepo interfaces.CreditsRepository, webhookSecret string, logger *zap.Logger) CreditService {
	return &creditServiceImpl{
		pool:          pool,
		creditsRepo:   creditsRepo,
		webhookSecret: webhookSecret,
		logger:        logger.Named("CreditService"),
	}
}

func (s *creditServiceImpl) GetBalance(ctx context.Context, userID uuid.UUID) (*models.Credits, error) {
	credits, err := s.creditsRepo.Get(ctx, s.pool, userID)
	if err != nil {
		return nil, err
	}
	return credits, nil
}

func (s *creditServiceImpl) HandlePaymentWebhook(ctx context.Context, body []byte, signature string) error {
	if !verifySignature(s.webhookSecret, body, signature) {
		s.logger.Warn("Payment webhook rejected, invalid signature")
		return models.ErrUnauthorized
	}

	var event PaymentWebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		s.logger.Error("Error decoding payment webhook body", zap.Error(err))
		return fmt.Errorf("error decoding webhook body: %w", err)
	}
	log := s.logger.With(zap.String("event", event.Event), zap.String("userID", event.UserID), zap.String("packID", event.PackID))

	if event.Event != "payment.completed" {
		log.Info("Payment webhook ignored, unsupported event")
		return nil
	}

	userID, err := uuid.Parse(event.UserID)
	if err != nil {
		return fmt.Errorf("invalid user_id in webhook: %w", err)
	}
	amount, ok := models.CreditPacks[event.PackID]
	if !ok {
		return fmt.Errorf("unknown credit pack %q", event.PackID)
	}

	if err := s.creditsRepo.Add(ctx, s.pool, userID, amount); err != nil {
		log.Error("Error crediting pack", zap.Error(err))
		return fmt.Errorf("error crediting pack: %w", err)
	}
	log.Info("Credit pack applied", zap.Int("amount", amount))
	return nil
}

func (s *creditServiceImpl) GrantInitial(ctx context.Context, userID uuid.UUID, amount int) error {
	if err := s.creditsRepo.Add(ctx, s.pool, userID, amount); err != nil {
		s.logger.Error("Error granting initial credits", zap.String("userID", userID.String()), zap.Error(err))
		return fmt.Errorf("error granting initial credits: %w", err)
	}
	return nil
}

// verifySignature сравнивает hex HMAC-SHA256 тела с подписью из заголовка.
func verifySignature(secret string, body []byte, signature string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
