package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisClient はRedisBackendが必要とするコマンドの部分集合。
// *redis.Clientが満たす。
type RedisClient interface {
	HGet(ctx context.Context, key, field string) *redis.StringCmd
	HSet(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	HDel(ctx context.Context, key string, fields ...string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
}

// RedisBackend はRedisのハッシュにセッションを保持するBackend。
// キーは "storefront:session:<id>"、書き込みのたびにTTLを延長する。
type RedisBackend struct {
	client RedisClient
	ttl    time.Duration
}

// NewRedisBackend はRedisBackendを生成する。
func NewRedisBackend(client RedisClient, ttl time.Duration) *RedisBackend {
	return &RedisBackend{client: client, ttl: ttl}
}

// NewRedisClient はRedisクライアントを生成し、疎通確認を行う。
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

func redisKey(sessionID string) string {
	return fmt.Sprintf("storefront:session:%s", sessionID)
}

// Get は値を取得する。
func (b *RedisBackend) Get(ctx context.Context, sessionID, key string) (string, bool, error) {
	v, err := b.client.HGet(ctx, redisKey(sessionID), key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis HGET failed: %w", err)
	}
	return v, true, nil
}

// Set は値を保存し、セッションのTTLを延長する。
func (b *RedisBackend) Set(ctx context.Context, sessionID, key, value string) error {
	k := redisKey(sessionID)
	if err := b.client.HSet(ctx, k, key, value).Err(); err != nil {
		return fmt.Errorf("redis HSET failed: %w", err)
	}
	if err := b.client.Expire(ctx, k, b.ttl).Err(); err != nil {
		return fmt.Errorf("redis EXPIRE failed: %w", err)
	}
	return nil
}

// Delete は指定キーを削除する。
func (b *RedisBackend) Delete(ctx context.Context, sessionID string, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := b.client.HDel(ctx, redisKey(sessionID), keys...).Err(); err != nil {
		return fmt.Errorf("redis HDEL failed: %w", err)
	}
	return nil
}

// compile-time interface check
var (
	_ Backend     = (*RedisBackend)(nil)
	_ RedisClient = (*redis.Client)(nil)
)
