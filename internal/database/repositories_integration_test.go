package database_test // Используем _test пакет для изоляции

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"storyreel-server/internal/database"
	"storyreel-server/internal/interfaces"
	"storyreel-server/internal/models"
)

// RepositoryTestSuite гоняет репозитории против настоящего PostgreSQL
// в контейнере, с реальными миграциями.
type RepositoryTestSuite struct {
	suite.Suite
	ctx         context.Context
	pgContainer *postgres.PostgresContainer
	pool        *pgxpool.Pool
	txHelper    *database.TransactionHelper

	storyRepo   interfaces.StoryRepository
	segmentRepo interfaces.SegmentRepository
	creditsRepo interfaces.CreditsRepository

	logger *zap.Logger
}

func (s *RepositoryTestSuite) SetupSuite() {
	s.ctx = context.Background()
	s.logger = zap.NewNop()
	var err error

	s.pgContainer, err = postgres.Run(s.ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("storyreel_test"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(5*time.Minute),
		),
	)
	require.NoError(s.T(), err, "Failed to start postgres container")

	connStr, err := s.pgContainer.ConnectionString(s.ctx, "sslmode=disable")
	require.NoError(s.T(), err, "Failed to get postgres connection string")

	s.pool, err = pgxpool.New(s.ctx, connStr)
	require.NoError(s.T(), err, "Failed to connect to test postgres")

	require.NoError(s.T(), database.ApplyMigrations(s.pool, s.logger), "Failed to apply migrations")

	s.txHelper = database.NewTransactionHelper(s.pool, s.logger)
	s.storyRepo = database.NewPgStoryRepository(s.logger)
	s.segmentRepo = database.NewPgSegmentRepository(s.logger)
	s.creditsRepo = database.NewPgCreditsRepository(s.logger)
}

func (s *RepositoryTestSuite) TearDownSuite() {
	if s.pool != nil {
		s.pool.Close()
	}
	if s.pgContainer != nil {
		_ = s.pgContainer.Terminate(s.ctx)
	}
}

// createUser вставляет строку в users напрямую. Таблицей владеет
// сервис аутентификации, приложение пользователей не создает.
func (s *RepositoryTestSuite) createUser() uuid.UUID {
	id := uuid.New()
	_, err := s.pool.Exec(s.ctx,
		`INSERT INTO users (id, email) VALUES ($1, $2)`,
		id, id.String()+"@test.local")
	require.NoError(s.T(), err)
	return id
}

func (s *RepositoryTestSuite) createStory(userID uuid.UUID) *models.Story {
	format := models.FormatVertical
	story := &models.Story{
		UserID: userID,
		Title:  "Хроники маяка",
		Script: "Смотритель маяка находит бутылку с письмом.",
		Status: models.StoryStatusDraft,
		Format: &format,
	}
	require.NoError(s.T(), s.storyRepo.Create(s.ctx, s.pool, story))
	return story
}

func TestRepositoryTestSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration tests in short mode")
	}
	suite.Run(t, new(RepositoryTestSuite))
}

func (s *RepositoryTestSuite) TestCreditsLifecycle() {
	t := s.T()
	userID := s.createUser()

	// Записи еще нет.
	_, err := s.creditsRepo.Get(s.ctx, s.pool, userID)
	require.ErrorIs(t, err, models.ErrNoCreditRecord)

	err = s.creditsRepo.Consume(s.ctx, s.pool, userID, 10)
	require.ErrorIs(t, err, models.ErrNoCreditRecord)

	// Add создает запись и пополняет.
	require.NoError(t, s.creditsRepo.Add(s.ctx, s.pool, userID, 50))
	credits, err := s.creditsRepo.Get(s.ctx, s.pool, userID)
	require.NoError(t, err)
	require.Equal(t, 50, credits.Remaining)

	// Списание в пределах баланса.
	require.NoError(t, s.creditsRepo.Consume(s.ctx, s.pool, userID, 30))
	credits, err = s.creditsRepo.Get(s.ctx, s.pool, userID)
	require.NoError(t, err)
	require.Equal(t, 20, credits.Remaining)

	// Списание сверх баланса не меняет остаток.
	err = s.creditsRepo.Consume(s.ctx, s.pool, userID, 100)
	require.ErrorIs(t, err, models.ErrInsufficientCredits)
	credits, err = s.creditsRepo.Get(s.ctx, s.pool, userID)
	require.NoError(t, err)
	require.Equal(t, 20, credits.Remaining)
}

func (s *RepositoryTestSuite) TestStoryGenerationEpoch() {
	t := s.T()
	userID := s.createUser()
	story := s.createStory(userID)

	require.NoError(t, s.storyRepo.StartGeneration(s.ctx, s.pool, story.ID, "gen-1"))
	loaded, err := s.storyRepo.GetByID(s.ctx, s.pool, story.ID)
	require.NoError(t, err)
	require.Equal(t, models.GenerationProcessing, loaded.GenerationStatus)
	require.NotNil(t, loaded.GenerationID)
	require.Equal(t, "gen-1", *loaded.GenerationID)

	// Новая эпоха вытесняет старую.
	require.NoError(t, s.storyRepo.StartGeneration(s.ctx, s.pool, story.ID, "gen-2"))

	// Финализация устаревшей эпохи отклоняется и не трогает статус.
	err = s.storyRepo.FinalizeGeneration(s.ctx, s.pool, story.ID, "gen-1", models.GenerationCompleted, nil)
	require.ErrorIs(t, err, models.ErrStaleGeneration)
	loaded, err = s.storyRepo.GetByID(s.ctx, s.pool, story.ID)
	require.NoError(t, err)
	require.Equal(t, models.GenerationProcessing, loaded.GenerationStatus)

	// Актуальная эпоха финализируется.
	require.NoError(t, s.storyRepo.FinalizeGeneration(s.ctx, s.pool, story.ID, "gen-2", models.GenerationCompleted, nil))
	loaded, err = s.storyRepo.GetByID(s.ctx, s.pool, story.ID)
	require.NoError(t, err)
	require.Equal(t, models.GenerationCompleted, loaded.GenerationStatus)
}

func (s *RepositoryTestSuite) TestSegmentOrdering() {
	t := s.T()
	userID := s.createUser()
	story := s.createStory(userID)

	var ids []uuid.UUID
	for i, text := range []string{"Рассвет над морем", "Шторм", "Находка"} {
		segment := &models.Segment{StoryID: story.ID, Order: i, Text: text}
		require.NoError(t, s.segmentRepo.Create(s.ctx, s.pool, segment))
		ids = append(ids, segment.ID)
	}

	maxOrder, err := s.segmentRepo.MaxOrder(s.ctx, s.pool, story.ID)
	require.NoError(t, err)
	require.Equal(t, 2, maxOrder)

	// Переставляем: последний становится первым.
	require.NoError(t, s.segmentRepo.Reorder(s.ctx, s.pool, story.ID, []uuid.UUID{ids[2], ids[0], ids[1]}))
	segments, err := s.segmentRepo.ListByStoryID(s.ctx, s.pool, story.ID)
	require.NoError(t, err)
	require.Len(t, segments, 3)
	require.Equal(t, "Находка", segments[0].Text)
	require.Equal(t, "Рассвет над морем", segments[1].Text)
	require.Equal(t, "Шторм", segments[2].Text)
	for i, segment := range segments {
		require.Equal(t, i, segment.Order)
	}

	// После удаления среднего ShiftOrdersAfter уплотняет нумерацию.
	require.NoError(t, s.segmentRepo.Delete(s.ctx, s.pool, segments[1].ID))
	require.NoError(t, s.segmentRepo.ShiftOrdersAfter(s.ctx, s.pool, story.ID, segments[1].Order))
	segments, err = s.segmentRepo.ListByStoryID(s.ctx, s.pool, story.ID)
	require.NoError(t, err)
	require.Len(t, segments, 2)
	require.Equal(t, 0, segments[0].Order)
	require.Equal(t, 1, segments[1].Order)
}

func (s *RepositoryTestSuite) TestTransactionRollback() {
	t := s.T()
	userID := s.createUser()
	require.NoError(t, s.creditsRepo.Add(s.ctx, s.pool, userID, 100))

	rollbackErr := errors.New("forced rollback")
	err := s.txHelper.WithTransaction(s.ctx, func(ctx context.Context, tx interfaces.DBTX) error {
		if err := s.creditsRepo.Consume(ctx, tx, userID, 40); err != nil {
			return err
		}
		return rollbackErr
	})
	require.ErrorIs(t, err, rollbackErr)

	credits, err := s.creditsRepo.Get(s.ctx, s.pool, userID)
	require.NoError(t, err)
	require.Equal(t, 100, credits.Remaining, "rolled back consume must not change the balance")
}

func (s *RepositoryTestSuite) TestMergePipelineStructuredText() {
	t := s.T()
	userID := s.createUser()
	story := s.createStory(userID)
	segment := &models.Segment{StoryID: story.ID, Order: 0, Text: "Диалог у маяка"}
	require.NoError(t, s.segmentRepo.Create(s.ctx, s.pool, segment))

	voice := "alloy"
	ref := "voiceovers/line-1.mp3"
	lines := []models.StructuredTextLine{
		{LineID: "line-1", Type: models.LineNarration, Text: "Ночь опустилась на берег.", Voice: &voice, VoiceoverRef: &ref},
		{LineID: "line-2", Type: models.LineDialogue, Text: "Кто здесь?", CharacterName: strPtrDB("Смотритель")},
	}
	require.NoError(t, s.segmentRepo.SetStructuredText(s.ctx, s.pool, segment.ID, lines))

	loaded, err := s.segmentRepo.GetByID(s.ctx, s.pool, segment.ID)
	require.NoError(t, err)
	require.Len(t, loaded.StructuredText, 2)
	require.Equal(t, models.LineNarration, loaded.StructuredText[0].Type)
	require.NotNil(t, loaded.StructuredText[0].VoiceoverRef)
	require.Equal(t, ref, *loaded.StructuredText[0].VoiceoverRef)
	require.Nil(t, loaded.StructuredText[1].VoiceoverRef)
}

func strPtrDB(s string) *string { return &s }
