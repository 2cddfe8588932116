package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"storyreel-server/internal/interfaces"
	"storyreel-server/internal/messaging"
	"storyreel-server/internal/models"
	"storyreel-server/internal/storage"
)

const decorListLimit = 50

// DecorService defines the interface for the image decoration pipeline.
type DecorService interface {
	// Upload сохраняет исходное изображение и создает запись пайплайна
	// в состоянии uploaded.
	Upload(ctx context.Context, userID uuid.UUID, data []byte, contentType string, settings json.RawMessage) (*models.DecorImage, error)
	Get(ctx context.Context, id, userID uuid.UUID) (*models.DecorImage, error)
	List(ctx context.Context, userID uuid.UUID) ([]*models.DecorImage, error)
	// StartDecoration списывает кредиты, переводит запись в generating
	// и ставит задачу декорирования. baseImage выбирает исходник или
	// текущий декор как базу регенерации.
	StartDecoration(ctx context.Context, id, userID uuid.UUID, baseImage models.DecorBaseImage) error
	Delete(ctx context.Context, id, userID uuid.UUID) error
}

type decorServiceImpl struct {
	pool        *pgxpool.Pool
	txHelper    interfaces.TxManager
	decorRepo   interfaces.DecorImageRepository
	creditsRepo interfaces.CreditsRepository
	publisher   messaging.TaskPublisher
	store       storage.Store
	logger      *zap.Logger
}

// NewDecorService creates a new instance of DecorService.
func NewDecorService(
	pool *pgxpool.Pool,
	txHelper interfaces.TxManager,
	decorRepo interfaces.DecorImageRepository,
	creditsRepo interfaces.CreditsRepository,
	publisher messaging.TaskPublisher,
	store storage.Store,
	logger *zap.Logger,
) DecorService {
	return &decorServiceImpl{
		pool:        pool,
		txHelper:    txHelper,
		decorRepo:   decorRepo,
		creditsRepo: creditsRepo,
		publisher:   publisher,
		store:       store,
		logger:      logger.Named("DecorService"),
	}
}

func (s *decorServiceImpl) getOwned(ctx context.Context, id, userID uuid.UUID) (*models.DecorImage, error) {
	img, err := s.decorRepo.GetByID(ctx, s.pool, id)
	if err != nil {
		return nil, err
	}
	if img.UserID != userID {
		return nil, models.ErrForbidden
	}
	return img, nil
}

func (s *decorServiceImpl) Upload(ctx context.Context, userID uuid.UUID, data []byte, contentType string, settings json.RawMessage) (*models.DecorImage, error) {
	log := s.logger.With(zap.String("userID", userID.String()))

	ref, err := s.store.Save(ctx, data, contentType)
	if err != nil {
		log.Error("Error saving decor original", zap.Error(err))
		return nil, fmt.Errorf("error saving decor original: %w", err)
	}

	img := &models.DecorImage{
		UserID:      userID,
		State:       models.DecorUploading,
		OriginalRef: ref,
		OriginalURL: s.store.URL(ref),
		Settings:    settings,
	}
	if err := s.decorRepo.Create(ctx, s.pool, img); err != nil {
		log.Error("Error creating decor record", zap.Error(err))
		if delErr := s.store.Delete(ctx, ref); delErr != nil {
			log.Error("Error deleting orphaned blob", zap.String("ref", ref), zap.Error(delErr))
		}
		return nil, fmt.Errorf("error creating decor record: %w", err)
	}

	// Blob уже на месте, запись сразу переходит в uploaded.
	if err := s.decorRepo.TransitionState(ctx, s.pool, img.ID, models.DecorUploading, models.DecorUploaded); err != nil {
		log.Error("Error marking decor image uploaded", zap.String("decorImageID", img.ID.String()), zap.Error(err))
		return nil, fmt.Errorf("error marking decor image uploaded: %w", err)
	}
	img.State = models.DecorUploaded
	log.Info("Decor image uploaded", zap.String("decorImageID", img.ID.String()))
	return img, nil
}

func (s *decorServiceImpl) Get(ctx context.Context, id, userID uuid.UUID) (*models.DecorImage, error) {
	return s.getOwned(ctx, id, userID)
}

func (s *decorServiceImpl) List(ctx context.Context, userID uuid.UUID) ([]*models.DecorImage, error) {
	return s.decorRepo.ListByUserID(ctx, s.pool, userID, decorListLimit)
}

func (s *decorServiceImpl) StartDecoration(ctx context.Context, id, userID uuid.UUID, baseImage models.DecorBaseImage) error {
	log := s.logger.With(zap.String("decorImageID", id.String()), zap.String("baseImage", string(baseImage)))

	if baseImage != models.DecorBaseOriginal && baseImage != models.DecorBaseDecorated {
		return models.ErrInvalidImageState
	}

	img, err := s.getOwned(ctx, id, userID)
	if err != nil {
		return err
	}

	var from models.DecorState
	switch img.State {
	case models.DecorUploaded:
		from = models.DecorUploaded
		if baseImage == models.DecorBaseDecorated {
			return models.ErrInvalidImageState
		}
	case models.DecorGenerated:
		from = models.DecorGenerated
		if baseImage == models.DecorBaseDecorated && img.DecoratedRef == nil {
			return models.ErrInvalidImageState
		}
	default:
		return models.ErrInvalidImageState
	}

	err = s.txHelper.WithTransaction(ctx, func(ctx context.Context, tx interfaces.DBTX) error {
		if err := s.creditsRepo.Consume(ctx, tx, userID, models.CostImageGeneration); err != nil {
			return err
		}
		return s.decorRepo.TransitionState(ctx, tx, id, from, models.DecorGenerating)
	})
	if err != nil {
		if errors.Is(err, models.ErrInsufficientCredits) || errors.Is(err, models.ErrNoCreditRecord) {
			log.Warn("Decoration rejected, not enough credits")
			return err
		}
		if errors.Is(err, models.ErrInvalidImageState) {
			log.Warn("Decoration rejected, concurrent state change")
			return err
		}
		log.Error("Error starting decoration", zap.Error(err))
		return fmt.Errorf("error starting decoration: %w", err)
	}

	// Регенерация от исходника делает прежний декор мусором сразу.
	// Регенерация от декора сохраняет его до записи нового результата.
	if baseImage == models.DecorBaseOriginal && img.DecoratedRef != nil {
		oldRef := *img.DecoratedRef
		if err := s.decorRepo.ClearDecorated(ctx, s.pool, id); err != nil {
			log.Error("Error clearing stale decorated refs", zap.Error(err))
		} else if err := s.store.Delete(ctx, oldRef); err != nil {
			log.Error("Error deleting stale decorated blob", zap.String("ref", oldRef), zap.Error(err))
		}
	}

	payload := messaging.GenerationTaskPayload{
		TaskID:       uuid.New().String(),
		TaskType:     messaging.TaskDecorateImage,
		UserID:       userID.String(),
		DecorImageID: id.String(),
		BaseImage:    string(baseImage),
	}
	if err := s.publisher.PublishGenerationTask(ctx, payload); err != nil {
		log.Error("Error publishing decoration task", zap.Error(err))
		// Возврат в исходное состояние, задача не была поставлена.
		if stErr := s.decorRepo.SetError(ctx, s.pool, id, from, "failed to queue generation task"); stErr != nil {
			log.Error("Error resetting decor state after publish failure", zap.Error(stErr))
		}
		return fmt.Errorf("error publishing decoration task: %w", err)
	}
	log.Info("Decoration task published", zap.String("taskID", payload.TaskID))
	return nil
}

func (s *decorServiceImpl) Delete(ctx context.Context, id, userID uuid.UUID) error {
	log := s.logger.With(zap.String("decorImageID", id.String()))

	img, err := s.getOwned(ctx, id, userID)
	if err != nil {
		return err
	}
	if err := s.decorRepo.Delete(ctx, s.pool, id); err != nil {
		log.Error("Error deleting decor record", zap.Error(err))
		return fmt.Errorf("error deleting decor record: %w", err)
	}

	if err := s.store.Delete(ctx, img.OriginalRef); err != nil {
		log.Error("Error deleting original blob", zap.String("ref", img.OriginalRef), zap.Error(err))
	}
	if img.DecoratedRef != nil {
		if err := s.store.Delete(ctx, *img.DecoratedRef); err != nil {
			log.Error("Error deleting decorated blob", zap.String("ref", *img.DecoratedRef), zap.Error(err))
		}
	}
	log.Info("Decor image deleted")
	return nil
}
