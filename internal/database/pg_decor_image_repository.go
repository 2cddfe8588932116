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

// Compile-time check to ensure pgDecorImageRepository implements DecorImageRepository
var _ interfaces.DecorImageRepository = (*pgDecorImageRepository)(nil)

type pgDecorImageRepository struct {
	logger *zap.Logger
}

// NewPgDecorImageRepository creates a new PostgreSQL-backed DecorImageRepository.
func NewPgDecorImageRepository(logger *zap.Logger) interfaces.DecorImageRepository {
	return &pgDecorImageRepository{logger: logger.Named("PgDecorImageRepo")}
}

const decorColumns = `id, user_id, state, original_ref, original_url, decorated_ref, decorated_url, settings, error, created_at, updated_at`

func scanDecorImage(row pgx.Row) (*models.DecorImage, error) {
	img := &models.DecorImage{}
	err := row.Scan(
		&img.ID, &img.UserID, &img.State, &img.OriginalRef, &img.OriginalURL,
		&img.DecoratedRef, &img.DecoratedURL, &img.Settings, &img.Error,
		&img.CreatedAt, &img.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return img, nil
}

func (r *pgDecorImageRepository) Create(ctx context.Context, q interfaces.DBTX, img *models.DecorImage) error {
	query := `INSERT INTO decor_images (user_id, state, original_ref, original_url, settings)
		VALUES ($1, $2, $3, $4, $5) RETURNING id, created_at, updated_at`
	err := q.QueryRow(ctx, query, img.UserID, img.State, img.OriginalRef, img.OriginalURL, img.Settings).
		Scan(&img.ID, &img.CreatedAt, &img.UpdatedAt)
	if err != nil {
		r.logger.Error("Failed to create decor image", zap.Error(err), zap.String("userID", img.UserID.String()))
		return fmt.Errorf("failed to create decor image: %w", err)
	}
	return nil
}

func (r *pgDecorImageRepository) GetByID(ctx context.Context, q interfaces.DBTX, id uuid.UUID) (*models.DecorImage, error) {
	img, err := scanDecorImage(q.QueryRow(ctx, `SELECT `+decorColumns+` FROM decor_images WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrDecorImageNotFound
		}
		r.logger.Error("Failed to get decor image", zap.Error(err), zap.String("decorImageID", id.String()))
		return nil, fmt.Errorf("failed to get decor image: %w", err)
	}
	return img, nil
}

func (r *pgDecorImageRepository) ListByUserID(ctx context.Context, q interfaces.DBTX, userID uuid.UUID, limit int) ([]*models.DecorImage, error) {
	query := `SELECT ` + decorColumns + ` FROM decor_images WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`
	rows, err := q.Query(ctx, query, userID, limit)
	if err != nil {
		r.logger.Error("Failed to list decor images", zap.Error(err), zap.String("userID", userID.String()))
		return nil, fmt.Errorf("failed to list decor images: %w", err)
	}
	defer rows.Close()

	var images []*models.DecorImage
	for rows.Next() {
		img, err := scanDecorImage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan decor image row: %w", err)
		}
		images = append(images, img)
	}
	return images, rows.Err()
}

// TransitionState меняет состояние условным UPDATE из expected.
// Ноль затронутых строк означает гонку или недопустимый переход.
func (r *pgDecorImageRepository) TransitionState(ctx context.Context, q interfaces.DBTX, id uuid.UUID, expected, next models.DecorState) error {
	query := `UPDATE decor_images SET state = $3, error = NULL, updated_at = now()
		WHERE id = $1 AND state = $2`
	tag, err := q.Exec(ctx, query, id, expected, next)
	if err != nil {
		r.logger.Error("Failed to transition decor state", zap.Error(err), zap.String("decorImageID", id.String()))
		return fmt.Errorf("failed to transition decor state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := q.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM decor_images WHERE id = $1)`, id).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check decor image: %w", err)
		}
		if !exists {
			return models.ErrDecorImageNotFound
		}
		return models.ErrInvalidImageState
	}
	return nil
}

func (r *pgDecorImageRepository) SetGenerated(ctx context.Context, q interfaces.DBTX, id uuid.UUID, decoratedRef, decoratedURL string) error {
	query := `UPDATE decor_images SET state = 'generated', decorated_ref = $2, decorated_url = $3, error = NULL, updated_at = now()
		WHERE id = $1`
	tag, err := q.Exec(ctx, query, id, decoratedRef, decoratedURL)
	if err != nil {
		r.logger.Error("Failed to set decor image generated", zap.Error(err), zap.String("decorImageID", id.String()))
		return fmt.Errorf("failed to set decor image generated: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrDecorImageNotFound
	}
	return nil
}

// SetError возвращает запись в состояние state с текстом ошибки:
// терминальная ошибка всегда снимает "generating".
func (r *pgDecorImageRepository) SetError(ctx context.Context, q interfaces.DBTX, id uuid.UUID, state models.DecorState, errDetails string) error {
	query := `UPDATE decor_images SET state = $2, error = $3, updated_at = now() WHERE id = $1`
	tag, err := q.Exec(ctx, query, id, state, errDetails)
	if err != nil {
		return fmt.Errorf("failed to set decor image error: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrDecorImageNotFound
	}
	return nil
}

func (r *pgDecorImageRepository) ClearDecorated(ctx context.Context, q interfaces.DBTX, id uuid.UUID) error {
	query := `UPDATE decor_images SET decorated_ref = NULL, decorated_url = NULL, updated_at = now() WHERE id = $1`
	if _, err := q.Exec(ctx, query, id); err != nil {
		return fmt.Errorf("failed to clear decorated refs: %w", err)
	}
	return nil
}

func (r *pgDecorImageRepository) Delete(ctx context.Context, q interfaces.DBTX, id uuid.UUID) error {
	tag, err := q.Exec(ctx, `DELETE FROM decor_images WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete decor image: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrDecorImageNotFound
	}
	return nil
}
