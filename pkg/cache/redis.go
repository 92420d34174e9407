package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"hotel-booking/pkg/utils"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

const (
	idempotencyPrefix = "idempotency:"
	inFlightMarker    = "in-flight"
)

// StoredResponse is a completed response kept for replay to a retried request.
type StoredResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
}

// ClaimResult reports the outcome of claiming an idempotency key. When
// Claimed is false, Stored is set if the original request already finished
// and nil while it is still in flight.
type ClaimResult struct {
	Claimed bool
	Stored  *StoredResponse
}

func NewRedisClient(ctx context.Context, config utils.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return rdb, nil
}

type RedisIdempotencyStore struct {
	rdb *redis.Client
}

func NewRedisIdempotencyStore(rdb *redis.Client) *RedisIdempotencyStore {
	return &RedisIdempotencyStore{rdb: rdb}
}

func (s *RedisIdempotencyStore) Claim(ctx context.Context, key string, ttl time.Duration) (ClaimResult, error) {
	ok, err := s.rdb.SetNX(ctx, idempotencyPrefix+key, inFlightMarker, ttl).Result()
	if err != nil {
		return ClaimResult{}, fmt.Errorf("claim idempotency key: %w", err)
	}
	if ok {
		return ClaimResult{Claimed: true}, nil
	}

	raw, err := s.rdb.Get(ctx, idempotencyPrefix+key).Result()
	if errors.Is(err, redis.Nil) || raw == inFlightMarker {
		return ClaimResult{}, nil
	}
	if err != nil {
		return ClaimResult{}, fmt.Errorf("read idempotency key: %w", err)
	}

	var stored StoredResponse
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		return ClaimResult{}, fmt.Errorf("decode stored response: %w", err)
	}
	return ClaimResult{Stored: &stored}, nil
}

func (s *RedisIdempotencyStore) Save(ctx context.Context, key string, resp StoredResponse, ttl time.Duration) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	if err := s.rdb.Set(ctx, idempotencyPrefix+key, data, ttl).Err(); err != nil {
		return fmt.Errorf("store response: %w", err)
	}
	return nil
}

func (s *RedisIdempotencyStore) Release(ctx context.Context, key string) error {
	if err := s.rdb.Del(ctx, idempotencyPrefix+key).Err(); err != nil {
		return fmt.Errorf("release idempotency key: %w", err)
	}
	return nil
}
