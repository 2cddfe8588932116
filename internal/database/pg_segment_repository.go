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

// Compile-time check to ensure pgSegmentRepository implements SegmentRepository
var _ interfaces.SegmentRepository = (*pgSegmentRepository)(nil)

type pgSegmentRepository struct {
	logger *zap.Logger
}

// NewPgSegmentRepository creates a new PostgreSQL-backed SegmentRepository.
func NewPgSegmentRepository(logger *zap.Logger) interfaces.SegmentRepository {
	return &pgSegmentRepository{logger: logger.Named("PgSegmentRepo")}
}

const segmentColumns = `id, story_id, "order", text, is_generating, error, selected_version_id, structured_text`

func scanSegment(row pgx.Row) (*models.Segment, error) {
	segment := &models.Segment{}
	var structuredText []byte
	err := row.Scan(
		&segment.ID, &segment.StoryID, &segment.Order, &segment.Text,
		&segment.IsGenerating, &segment.Error, &segment.SelectedVersionID,
		&structuredText,
	)
	if err != nil {
		return nil, err
	}
	if len(structuredText) > 0 {
		if err := json.Unmarshal(structuredText, &segment.StructuredText); err != nil {
			return nil, fmt.Errorf("failed to unmarshal structured text: %w", err)
		}
	}
	return segment, nil
}

func (r *pgSegmentRepository) Create(ctx context.Context, q interfaces.DBTX, segment *models.Segment) error {
	query := `INSERT INTO segments (story_id, "order", text, is_generating) VALUES ($1, $2, $3, $4) RETURNING id`
	err := q.QueryRow(ctx, query, segment.StoryID, segment.Order, segment.Text, segment.IsGenerating).Scan(&segment.ID)
	if err != nil {
		r.logger.Error("Failed to create segment",
			zap.Error(err),
			zap.String("storyID", segment.StoryID.String()),
			zap.Int("order", segment.Order))
		return fmt.Errorf("failed to create segment: %w", err)
	}
	return nil
}

func (r *pgSegmentRepository) GetByID(ctx context.Context, q interfaces.DBTX, id uuid.UUID) (*models.Segment, error) {
	query := `SELECT ` + segmentColumns + ` FROM segments WHERE id = $1`
	segment, err := scanSegment(q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrSegmentNotFound
		}
		r.logger.Error("Failed to get segment", zap.Error(err), zap.String("segmentID", id.String()))
		return nil, fmt.Errorf("failed to get segment: %w", err)
	}
	return segment, nil
}

func (r *pgSegmentRepository) ListByStoryID(ctx context.Context, q interfaces.DBTX, storyID uuid.UUID) ([]*models.Segment, error) {
	query := `SELECT ` + segmentColumns + ` FROM segments WHERE story_id = $1 ORDER BY "order" ASC`
	rows, err := q.Query(ctx, query, storyID)
	if err != nil {
		r.logger.Error("Failed to list segments", zap.Error(err), zap.String("storyID", storyID.String()))
		return nil, fmt.Errorf("failed to list segments: %w", err)
	}
	defer rows.Close()

	var segments []*models.Segment
	for rows.Next() {
		segment, err := scanSegment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan segment row: %w", err)
		}
		segments = append(segments, segment)
	}
	return segments, rows.Err()
}

func (r *pgSegmentRepository) UpdateText(ctx context.Context, q interfaces.DBTX, id uuid.UUID, text string) error {
	tag, err := q.Exec(ctx, `UPDATE segments SET text = $2 WHERE id = $1`, id, text)
	if err != nil {
		return fmt.Errorf("failed to update segment text: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrSegmentNotFound
	}
	return nil
}

func (r *pgSegmentRepository) SetGenerating(ctx context.Context, q interfaces.DBTX, id uuid.UUID, generating bool) error {
	tag, err := q.Exec(ctx, `UPDATE segments SET is_generating = $2 WHERE id = $1`, id, generating)
	if err != nil {
		return fmt.Errorf("failed to set segment generating flag: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrSegmentNotFound
	}
	return nil
}

func (r *pgSegmentRepository) SetGenerationResult(ctx context.Context, q interfaces.DBTX, id uuid.UUID, errDetails *string) error {
	tag, err := q.Exec(ctx, `UPDATE segments SET is_generating = FALSE, error = $2 WHERE id = $1`, id, errDetails)
	if err != nil {
		return fmt.Errorf("failed to set segment generation result: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrSegmentNotFound
	}
	return nil
}

// SetSelectedVersion выбирает версию, снимает флаг генерации и чистит
// ошибку: успешная генерация всегда заканчивается этим вызовом.
func (r *pgSegmentRepository) SetSelectedVersion(ctx context.Context, q interfaces.DBTX, id uuid.UUID, versionID uuid.UUID) error {
	query := `UPDATE segments SET selected_version_id = $2, is_generating = FALSE, error = NULL WHERE id = $1`
	tag, err := q.Exec(ctx, query, id, versionID)
	if err != nil {
		r.logger.Error("Failed to set selected version", zap.Error(err), zap.String("segmentID", id.String()))
		return fmt.Errorf("failed to set selected version: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrSegmentNotFound
	}
	return nil
}

func (r *pgSegmentRepository) SetStructuredText(ctx context.Context, q interfaces.DBTX, id uuid.UUID, lines []models.StructuredTextLine) error {
	data, err := json.Marshal(lines)
	if err != nil {
		return fmt.Errorf("failed to marshal structured text: %w", err)
	}
	tag, err := q.Exec(ctx, `UPDATE segments SET structured_text = $2 WHERE id = $1`, id, data)
	if err != nil {
		return fmt.Errorf("failed to set structured text: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrSegmentNotFound
	}
	return nil
}

func (r *pgSegmentRepository) Delete(ctx context.Context, q interfaces.DBTX, id uuid.UUID) error {
	tag, err := q.Exec(ctx, `DELETE FROM segments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete segment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrSegmentNotFound
	}
	return nil
}

func (r *pgSegmentRepository) MaxOrder(ctx context.Context, q interfaces.DBTX, storyID uuid.UUID) (int, error) {
	var maxOrder int
	err := q.QueryRow(ctx, `SELECT COALESCE(MAX("order"), -1) FROM segments WHERE story_id = $1`, storyID).Scan(&maxOrder)
	if err != nil {
		return 0, fmt.Errorf("failed to get max segment order: %w", err)
	}
	return maxOrder, nil
}

func (r *pgSegmentRepository) ShiftOrdersAfter(ctx context.Context, q interfaces.DBTX, storyID uuid.UUID, order int) error {
	query := `UPDATE segments SET "order" = "order" - 1 WHERE story_id = $1 AND "order" > $2`
	if _, err := q.Exec(ctx, query, storyID, order); err != nil {
		return fmt.Errorf("failed to shift segment orders: %w", err)
	}
	return nil
}

// Reorder присваивает плотные order по позиции id в списке. Выполняется
// в два прохода через отрицательные значения, чтобы не споткнуться об
// уникальный индекс (story_id, "order").
func (r *pgSegmentRepository) Reorder(ctx context.Context, q interfaces.DBTX, storyID uuid.UUID, ids []uuid.UUID) error {
	for i, id := range ids {
		tag, err := q.Exec(ctx,
			`UPDATE segments SET "order" = $3 WHERE id = $1 AND story_id = $2`,
			id, storyID, -(i + 1))
		if err != nil {
			return fmt.Errorf("failed to reorder segment %s: %w", id, err)
		}
		if tag.RowsAffected() == 0 {
			return models.ErrSegmentNotFound
		}
	}
	if _, err := q.Exec(ctx,
		`UPDATE segments SET "order" = -("order") - 1 WHERE story_id = $1 AND "order" < 0`,
		storyID); err != nil {
		return fmt.Errorf("failed to finalize segment reorder: %w", err)
	}
	return nil
}

func (r *pgSegmentRepository) DeleteByStoryID(ctx context.Context, q interfaces.DBTX, storyID uuid.UUID) error {
	if _, err := q.Exec(ctx, `DELETE FROM segments WHERE story_id = $1`, storyID); err != nil {
		return fmt.Errorf("failed to delete segments by story: %w", err)
	}
	return nil
}
