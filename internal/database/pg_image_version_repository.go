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

// Compile-time check to ensure pgImageVersionRepository implements ImageVersionRepository
var _ interfaces.ImageVersionRepository = (*pgImageVersionRepository)(nil)

type pgImageVersionRepository struct {
	logger *zap.Logger
}

// NewPgImageVersionRepository creates a new PostgreSQL-backed ImageVersionRepository.
func NewPgImageVersionRepository(logger *zap.Logger) interfaces.ImageVersionRepository {
	return &pgImageVersionRepository{logger: logger.Named("PgImageVersionRepo")}
}

func (r *pgImageVersionRepository) Create(ctx context.Context, q interfaces.DBTX, version *models.ImageVersion) error {
	query := `INSERT INTO image_versions (segment_id, user_id, prompt, image_ref, preview_ref, source)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING id, created_at`
	err := q.QueryRow(ctx, query,
		version.SegmentID, version.UserID, version.Prompt,
		version.ImageRef, version.PreviewRef, version.Source,
	).Scan(&version.ID, &version.CreatedAt)
	if err != nil {
		r.logger.Error("Failed to create image version",
			zap.Error(err),
			zap.String("segmentID", version.SegmentID.String()))
		return fmt.Errorf("failed to create image version: %w", err)
	}
	return nil
}

func (r *pgImageVersionRepository) GetByID(ctx context.Context, q interfaces.DBTX, id uuid.UUID) (*models.ImageVersion, error) {
	query := `SELECT id, segment_id, user_id, prompt, image_ref, preview_ref, source, created_at
		FROM image_versions WHERE id = $1`
	version := &models.ImageVersion{}
	err := q.QueryRow(ctx, query, id).Scan(
		&version.ID, &version.SegmentID, &version.UserID, &version.Prompt,
		&version.ImageRef, &version.PreviewRef, &version.Source, &version.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrVersionNotFound
		}
		r.logger.Error("Failed to get image version", zap.Error(err), zap.String("versionID", id.String()))
		return nil, fmt.Errorf("failed to get image version: %w", err)
	}
	return version, nil
}

func (r *pgImageVersionRepository) ListBySegmentID(ctx context.Context, q interfaces.DBTX, segmentID uuid.UUID) ([]*models.ImageVersion, error) {
	query := `SELECT id, segment_id, user_id, prompt, image_ref, preview_ref, source, created_at
		FROM image_versions WHERE segment_id = $1 ORDER BY created_at DESC`
	rows, err := q.Query(ctx, query, segmentID)
	if err != nil {
		r.logger.Error("Failed to list image versions", zap.Error(err), zap.String("segmentID", segmentID.String()))
		return nil, fmt.Errorf("failed to list image versions: %w", err)
	}
	defer rows.Close()

	var versions []*models.ImageVersion
	for rows.Next() {
		version := &models.ImageVersion{}
		if err := rows.Scan(
			&version.ID, &version.SegmentID, &version.UserID, &version.Prompt,
			&version.ImageRef, &version.PreviewRef, &version.Source, &version.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan image version row: %w", err)
		}
		versions = append(versions, version)
	}
	return versions, rows.Err()
}

func (r *pgImageVersionRepository) SetPreviewRef(ctx context.Context, q interfaces.DBTX, id uuid.UUID, previewRef string) error {
	tag, err := q.Exec(ctx, `UPDATE image_versions SET preview_ref = $2 WHERE id = $1`, id, previewRef)
	if err != nil {
		r.logger.Error("Failed to set preview ref", zap.Error(err), zap.String("versionID", id.String()))
		return fmt.Errorf("failed to set preview ref: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrVersionNotFound
	}
	return nil
}

func (r *pgImageVersionRepository) DeleteBySegmentID(ctx context.Context, q interfaces.DBTX, segmentID uuid.UUID) error {
	if _, err := q.Exec(ctx, `DELETE FROM image_versions WHERE segment_id = $1`, segmentID); err != nil {
		return fmt.Errorf("failed to delete image versions by segment: %w", err)
	}
	return nil
}
