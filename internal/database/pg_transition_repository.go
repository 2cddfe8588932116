package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"storyreel-server/internal/interfaces"
	"storyreel-server/internal/models"
)

// Compile-time check to ensure pgTransitionRepository implements TransitionRepository
var _ interfaces.TransitionRepository = (*pgTransitionRepository)(nil)

type pgTransitionRepository struct {
	logger *zap.Logger
}

// NewPgTransitionRepository creates a new PostgreSQL-backed TransitionRepository.
func NewPgTransitionRepository(logger *zap.Logger) interfaces.TransitionRepository {
	return &pgTransitionRepository{logger: logger.Named("PgTransitionRepo")}
}

func (r *pgTransitionRepository) Upsert(ctx context.Context, q interfaces.DBTX, transition *models.Transition) error {
	query := `INSERT INTO transitions (story_id, after_segment_id, type, duration_ms)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (after_segment_id) DO UPDATE SET type = $3, duration_ms = $4
		RETURNING id`
	err := q.QueryRow(ctx, query,
		transition.StoryID, transition.AfterSegmentID, transition.Type, transition.DurationMs,
	).Scan(&transition.ID)
	if err != nil {
		r.logger.Error("Failed to upsert transition",
			zap.Error(err),
			zap.String("afterSegmentID", transition.AfterSegmentID.String()))
		return fmt.Errorf("failed to upsert transition: %w", err)
	}
	return nil
}

// DeleteByAfterSegmentID удаляет переход: "cut" это отсутствие записи,
// поэтому отсутствие удаляемой строки не считается ошибкой.
func (r *pgTransitionRepository) DeleteByAfterSegmentID(ctx context.Context, q interfaces.DBTX, afterSegmentID uuid.UUID) error {
	if _, err := q.Exec(ctx, `DELETE FROM transitions WHERE after_segment_id = $1`, afterSegmentID); err != nil {
		return fmt.Errorf("failed to delete transition: %w", err)
	}
	return nil
}

func (r *pgTransitionRepository) ListByStoryID(ctx context.Context, q interfaces.DBTX, storyID uuid.UUID) ([]*models.Transition, error) {
	query := `SELECT t.id, t.story_id, t.after_segment_id, t.type, t.duration_ms
		FROM transitions t
		JOIN segments s ON s.id = t.after_segment_id
		WHERE t.story_id = $1
		ORDER BY s."order" ASC`
	rows, err := q.Query(ctx, query, storyID)
	if err != nil {
		r.logger.Error("Failed to list transitions", zap.Error(err), zap.String("storyID", storyID.String()))
		return nil, fmt.Errorf("failed to list transitions: %w", err)
	}
	defer rows.Close()

	var transitions []*models.Transition
	for rows.Next() {
		t := &models.Transition{}
		if err := rows.Scan(&t.ID, &t.StoryID, &t.AfterSegmentID, &t.Type, &t.DurationMs); err != nil {
			return nil, fmt.Errorf("failed to scan transition row: %w", err)
		}
		transitions = append(transitions, t)
	}
	return transitions, rows.Err()
}
