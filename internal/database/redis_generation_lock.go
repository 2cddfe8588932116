package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"storyreel-server/internal/interfaces"
	"storyreel-server/internal/models"
)

// Compile-time check to ensure redisGenerationLock implements GenerationLock
var _ interfaces.GenerationLock = (*redisGenerationLock)(nil)

// TTL страхует от вечно висящей блокировки при падении воркера.
const generationLockTTL = 30 * time.Minute

type redisGenerationLock struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisGenerationLock creates a new Redis-backed GenerationLock.
func NewRedisGenerationLock(client *redis.Client, logger *zap.Logger) interfaces.GenerationLock {
	return &redisGenerationLock{
		client: client,
		logger: logger.Named("RedisGenLock"),
	}
}

func lockKey(userID uuid.UUID) string {
	return fmt.Sprintf("gen_lock:%s", userID.String())
}

// Acquire захватывает блокировку через SETNX. Значением ключа служит
// generationID, чтобы Release не снимал чужую блокировку.
func (l *redisGenerationLock) Acquire(ctx context.Context, userID uuid.UUID, generationID string) error {
	ok, err := l.client.SetNX(ctx, lockKey(userID), generationID, generationLockTTL).Result()
	if err != nil {
		return fmt.Errorf("failed to acquire generation lock: %w", err)
	}
	if !ok {
		l.logger.Warn("Generation lock already held",
			zap.String("userID", userID.String()),
			zap.String("generationID", generationID))
		return models.ErrUserHasActiveGeneration
	}
	return nil
}

// Release снимает блокировку, только если она принадлежит generationID.
func (l *redisGenerationLock) Release(ctx context.Context, userID uuid.UUID, generationID string) error {
	// Проверка владельца и удаление должны быть атомарны
	const script = `
if redis.call("get", KEYS[1]) == ARGV[1] then
    return redis.call("del", KEYS[1])
end
return 0`
	released, err := l.client.Eval(ctx, script, []string{lockKey(userID)}, generationID).Int()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("failed to release generation lock: %w", err)
	}
	if released == 0 {
		l.logger.Debug("Generation lock not released (superseded or expired)",
			zap.String("userID", userID.String()),
			zap.String("generationID", generationID))
	}
	return nil
}
