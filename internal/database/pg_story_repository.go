package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"storyreel-server/internal/interfaces"
	"storyreel-server/internal/models"
)

// Compile-time check to ensure pgStoryRepository implements StoryRepository
var _ interfaces.StoryRepository = (*pgStoryRepository)(nil)

type pgStoryRepository struct {
	logger *zap.Logger
}

// NewPgStoryRepository creates a new PostgreSQL-backed StoryRepository.
func NewPgStoryRepository(logger *zap.Logger) interfaces.StoryRepository {
	return &pgStoryRepository{logger: logger.Named("PgStoryRepo")}
}

const storyColumns = `id, user_id, title, script, status, generation_status, generation_error, format, style_prompt, context, generation_id, created_at, updated_at`

func scanStory(row pgx.Row) (*models.Story, error) {
	story := &models.Story{}
	err := row.Scan(
		&story.ID, &story.UserID, &story.Title, &story.Script,
		&story.Status, &story.GenerationStatus, &story.GenerationError,
		&story.Format, &story.StylePrompt, &story.Context,
		&story.GenerationID, &story.CreatedAt, &story.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return story, nil
}

func (r *pgStoryRepository) Create(ctx context.Context, q interfaces.DBTX, story *models.Story) error {
	query := `INSERT INTO stories (user_id, title, script, status) VALUES ($1, $2, $3, $4) RETURNING id, created_at, updated_at`
	err := q.QueryRow(ctx, query, story.UserID, story.Title, story.Script, story.Status).
		Scan(&story.ID, &story.CreatedAt, &story.UpdatedAt)
	if err != nil {
		r.logger.Error("Failed to create story", zap.Error(err), zap.String("userID", story.UserID.String()))
		return fmt.Errorf("failed to create story: %w", err)
	}
	return nil
}

func (r *pgStoryRepository) GetByID(ctx context.Context, q interfaces.DBTX, id uuid.UUID) (*models.Story, error) {
	query := `SELECT ` + storyColumns + ` FROM stories WHERE id = $1`
	story, err := scanStory(q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrStoryNotFound
		}
		r.logger.Error("Failed to get story", zap.Error(err), zap.String("storyID", id.String()))
		return nil, fmt.Errorf("failed to get story: %w", err)
	}
	return story, nil
}

func (r *pgStoryRepository) ListByUserID(ctx context.Context, q interfaces.DBTX, userID uuid.UUID, status *models.StoryStatus) ([]*models.Story, error) {
	query := `SELECT ` + storyColumns + ` FROM stories WHERE user_id = $1`
	args := []any{userID}
	if status != nil {
		query += ` AND status = $2`
		args = append(args, *status)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list stories", zap.Error(err), zap.String("userID", userID.String()))
		return nil, fmt.Errorf("failed to list stories: %w", err)
	}
	defer rows.Close()

	var stories []*models.Story
	for rows.Next() {
		story, err := scanStory(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan story row: %w", err)
		}
		stories = append(stories, story)
	}
	return stories, rows.Err()
}

func (r *pgStoryRepository) UpdateFields(ctx context.Context, q interfaces.DBTX, id uuid.UUID, title, script, stylePrompt *string, format *models.StoryFormat) error {
	query := `UPDATE stories SET
		title = COALESCE($2, title),
		script = COALESCE($3, script),
		style_prompt = COALESCE($4, style_prompt),
		format = COALESCE($5, format),
		updated_at = now()
	WHERE id = $1`
	tag, err := q.Exec(ctx, query, id, title, script, stylePrompt, format)
	if err != nil {
		r.logger.Error("Failed to update story fields", zap.Error(err), zap.String("storyID", id.String()))
		return fmt.Errorf("failed to update story fields: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrStoryNotFound
	}
	return nil
}

func (r *pgStoryRepository) UpdateStatus(ctx context.Context, q interfaces.DBTX, id uuid.UUID, status models.StoryStatus) error {
	tag, err := q.Exec(ctx, `UPDATE stories SET status = $2, updated_at = now() WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("failed to update story status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrStoryNotFound
	}
	return nil
}

func (r *pgStoryRepository) Delete(ctx context.Context, q interfaces.DBTX, id uuid.UUID) error {
	tag, err := q.Exec(ctx, `DELETE FROM stories WHERE id = $1`, id)
	if err != nil {
		r.logger.Error("Failed to delete story", zap.Error(err), zap.String("storyID", id.String()))
		return fmt.Errorf("failed to delete story: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrStoryNotFound
	}
	return nil
}

// StartGeneration стампует новую эпоху и переводит историю в processing.
// Параллельный вызов просто перезапишет эпоху: финализирует только
// задача с актуальным generation_id.
func (r *pgStoryRepository) StartGeneration(ctx context.Context, q interfaces.DBTX, id uuid.UUID, generationID string) error {
	query := `UPDATE stories SET
		generation_status = 'processing',
		generation_error = NULL,
		generation_id = $2,
		updated_at = now()
	WHERE id = $1`
	tag, err := q.Exec(ctx, query, id, generationID)
	if err != nil {
		r.logger.Error("Failed to start generation", zap.Error(err), zap.String("storyID", id.String()))
		return fmt.Errorf("failed to start generation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrStoryNotFound
	}
	return nil
}

func (r *pgStoryRepository) SetContext(ctx context.Context, q interfaces.DBTX, id uuid.UUID, contextJSON json.RawMessage) error {
	tag, err := q.Exec(ctx, `UPDATE stories SET context = $2, updated_at = now() WHERE id = $1`, id, contextJSON)
	if err != nil {
		return fmt.Errorf("failed to set story context: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrStoryNotFound
	}
	return nil
}

// FinalizeGeneration пишет терминальный статус условным UPDATE по эпохе.
// Ноль затронутых строк означает, что эпоха устарела и результат
// должен быть отброшен.
func (r *pgStoryRepository) FinalizeGeneration(ctx context.Context, q interfaces.DBTX, id uuid.UUID, generationID string, status models.GenerationStatus, errDetails *string) error {
	query := `UPDATE stories SET
		generation_status = $3,
		generation_error = $4,
		updated_at = now()
	WHERE id = $1 AND generation_id = $2`
	tag, err := q.Exec(ctx, query, id, generationID, status, errDetails)
	if err != nil {
		r.logger.Error("Failed to finalize generation", zap.Error(err), zap.String("storyID", id.String()))
		return fmt.Errorf("failed to finalize generation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		r.logger.Info("Finalize skipped, generation superseded",
			zap.String("storyID", id.String()),
			zap.String("generationID", generationID))
		return models.ErrStaleGeneration
	}
	return nil
}

func (r *pgStoryRepository) SetGenerationStatus(ctx context.Context, q interfaces.DBTX, id uuid.UUID, status models.GenerationStatus, errDetails *string) error {
	query := `UPDATE stories SET generation_status = $2, generation_error = $3, updated_at = now() WHERE id = $1`
	tag, err := q.Exec(ctx, query, id, status, errDetails)
	if err != nil {
		return fmt.Errorf("failed to set generation status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrStoryNotFound
	}
	return nil
}

func (r *pgStoryRepository) UpdateScript(ctx context.Context, q interfaces.DBTX, id uuid.UUID, script string) error {
	tag, err := q.Exec(ctx, `UPDATE stories SET script = $2, updated_at = now() WHERE id = $1`, id, script)
	if err != nil {
		return fmt.Errorf("failed to update story script: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrStoryNotFound
	}
	return nil
}
