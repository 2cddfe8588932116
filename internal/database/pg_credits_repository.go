package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"storyreel-server/internal/interfaces"
	"storyreel-server/internal/models"
)

// Compile-time check to ensure pgCreditsRepository implements CreditsRepository
var _ interfaces.CreditsRepository = (*pgCreditsRepository)(nil)

type pgCreditsRepository struct {
	logger *zap.Logger
}

// NewPgCreditsRepository creates a new PostgreSQL-backed CreditsRepository.
func NewPgCreditsRepository(logger *zap.Logger) interfaces.CreditsRepository {
	return &pgCreditsRepository{logger: logger.Named("PgCreditsRepo")}
}

func (r *pgCreditsRepository) Get(ctx context.Context, q interfaces.DBTX, userID uuid.UUID) (*models.Credits, error) {
	query := `SELECT user_id, remaining, updated_at FROM credits WHERE user_id = $1`
	credits := &models.Credits{}
	err := q.QueryRow(ctx, query, userID).Scan(&credits.UserID, &credits.Remaining, &credits.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNoCreditRecord
		}
		r.logger.Error("Failed to get credits", zap.Error(err), zap.String("userID", userID.String()))
		return nil, fmt.Errorf("failed to get credits: %w", err)
	}
	return credits, nil
}

// Consume списывает amount одним условным UPDATE: проверка баланса и
// декремент атомарны, Remaining не может уйти в минус даже при гонке.
func (r *pgCreditsRepository) Consume(ctx context.Context, q interfaces.DBTX, userID uuid.UUID, amount int) error {
	query := `UPDATE credits SET remaining = remaining - $2, updated_at = now()
		WHERE user_id = $1 AND remaining >= $2`
	tag, err := q.Exec(ctx, query, userID, amount)
	if err != nil {
		r.logger.Error("Failed to consume credits", zap.Error(err), zap.String("userID", userID.String()), zap.Int("amount", amount))
		return fmt.Errorf("failed to consume credits: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Различаем отсутствие записи и нехватку баланса
		var exists bool
		if err := q.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM credits WHERE user_id = $1)`, userID).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check credit record: %w", err)
		}
		if !exists {
			return models.ErrNoCreditRecord
		}
		r.logger.Info("Insufficient credits", zap.String("userID", userID.String()), zap.Int("amount", amount))
		return models.ErrInsufficientCredits
	}
	return nil
}

func (r *pgCreditsRepository) Add(ctx context.Context, q interfaces.DBTX, userID uuid.UUID, amount int) error {
	query := `INSERT INTO credits (user_id, remaining) VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET remaining = credits.remaining + $2, updated_at = now()`
	if _, err := q.Exec(ctx, query, userID, amount); err != nil {
		r.logger.Error("Failed to add credits", zap.Error(err), zap.String("userID", userID.String()), zap.Int("amount", amount))
		return fmt.Errorf("failed to add credits: %w", err)
	}
	r.logger.Info("Credits added", zap.String("userID", userID.String()), zap.Int("amount", amount))
	return nil
}
