package redisstate

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisStateRepository 是 StateRepository 接口的 Redis 实现
type RedisStateRepository struct {
	client *redis.Client
	// Redis key 前缀，方便多实例共用同一个 Redis
	keyPrefix string
}

// NewRedisStateRepository 创建 RedisStateRepository 实例
func NewRedisStateRepository(client *redis.Client, keyPrefix string) *RedisStateRepository {
	if client == nil {
		panic("redis client cannot be nil for RedisStateRepository")
	}
	if keyPrefix == "" {
		keyPrefix = "vr:" // 默认前缀 "vr:" (voiceroom)
	}
	return &RedisStateRepository{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

// --- Key Generation Helpers ---

func (r *RedisStateRepository) provisionGuardKey(communityID, participantID string) string {
	return fmt.Sprintf("%sprovision:%s:%s", r.keyPrefix, communityID, participantID)
}

// --- StateRepository Interface Implementation ---

// AcquireProvisionGuard 通过 SETNX 获取供给互斥标记。
// 已被占用时返回 false，表示同一参与者的供给正在进行或刚刚完成。
func (r *RedisStateRepository) AcquireProvisionGuard(ctx context.Context, communityID, participantID string, ttl time.Duration) (bool, error) {
	key := r.provisionGuardKey(communityID, participantID)
	ok, err := r.client.SetNX(ctx, key, 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis: acquire provision guard %s: %w", key, err)
	}
	return ok, nil
}

// ReleaseProvisionGuard 删除供给互斥标记。
func (r *RedisStateRepository) ReleaseProvisionGuard(ctx context.Context, communityID, participantID string) error {
	key := r.provisionGuardKey(communityID, participantID)
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis: release provision guard %s: %w", key, err)
	}
	return nil
}
