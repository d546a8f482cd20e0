package dedup

import (
	"context"
	"fmt"
	"time"

	rediskey "shop_backend/pkg/redis"

	rd "github.com/redis/go-redis/v9"
)

// Store 是防重记录的最小 KV 接口。Get 对不存在的 key 返回空串。
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

// RedisStore 生产环境实现。
type RedisStore struct {
	client *rd.Client
}

func NewRedisStore(client *rd.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, error) {
	v, err := s.client.Get(ctx, key).Result()
	if err == rd.Nil {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return v, nil
}

func (s *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return s.client.Set(ctx, key, value, ttl).Err()
}

// Service 跨消费者的幂等防护：key 为「聚合名-载荷ID」，值为最近一次
// 处理成功的 occurred_on。检查与落记录是分离的两步：取件时 IsDuplicate，
// 处理成功后才 MarkProcessed。进死信的消息不留记录，回流原主题后能
// 重新拿到完整的重试周期。两步之间没有原子性，同一事件并发投递可能
// 双双通过检查，属于已知留存的局限，不升级为强锁。
type Service struct {
	store Store
	ttl   time.Duration
}

func NewService(store Store, ttl time.Duration) *Service {
	return &Service{store: store, ttl: ttl}
}

// IsDuplicate 只读判定事件是否重复或被更新版本取代：
// - 无记录：返回 false（首次见到）。
// - 记录早于来件：返回 false（视为新版本）。
// - 记录等于或晚于来件：返回 true。
func (s *Service) IsDuplicate(ctx context.Context, aggregateName, payloadID string, occurredOn time.Time) (bool, error) {
	key := rediskey.EventValidationKey(aggregateName, payloadID)

	stored, err := s.store.Get(ctx, key)
	if err != nil {
		return false, fmt.Errorf("dedup get %s: %w", key, err)
	}
	if stored == "" {
		return false, nil
	}
	last, err := time.Parse(time.RFC3339Nano, stored)
	if err != nil {
		// 解析不了的旧值当作不存在，下次 MarkProcessed 覆盖。
		return false, nil
	}
	return !last.Before(occurredOn), nil
}

// MarkProcessed 处理成功后记录本次 occurred_on（last-write-wins）。
func (s *Service) MarkProcessed(ctx context.Context, aggregateName, payloadID string, occurredOn time.Time) error {
	key := rediskey.EventValidationKey(aggregateName, payloadID)
	if err := s.store.Set(ctx, key, occurredOn.UTC().Format(time.RFC3339Nano), s.ttl); err != nil {
		return fmt.Errorf("dedup set %s: %w", key, err)
	}
	return nil
}
