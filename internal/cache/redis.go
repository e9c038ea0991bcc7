package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/xiushen/internal/logger"
)

func warnRedis(op, key string, err error) {
	logger.Warnf("redis %s failed key=%s err=%v", op, key, err)
}

// RedisStore 基于 go-redis 实现 Store，用于多实例部署。
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore 依据连接参数构造 RedisStore，并做一次快速连通性探测。
// 探测失败不视为错误，调用方可按需回退到内存实现。
func NewRedisStore(addr, password string, db int) (*RedisStore, bool) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := client.Ping(ctx).Err()

	return &RedisStore{client: client}, err == nil
}

// Get 实现 Store。
func (r *RedisStore) Get(ctx context.Context, key string) (string, bool) {
	value, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			warnRedis("get", key, err)
		}
		return "", false
	}
	return value, true
}

// Set 实现 Store。
func (r *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		warnRedis("set", key, err)
		return err
	}
	return nil
}

// SetNX 实现 Store。
func (r *RedisStore) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	ok, err := r.client.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		warnRedis("setnx", key, err)
		return false, err
	}
	return ok, nil
}

// Delete 实现 Store。
func (r *RedisStore) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, key).Err(); err != nil {
		warnRedis("del", key, err)
		return err
	}
	return nil
}
