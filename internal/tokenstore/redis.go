package tokenstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// keyPrefix — префикс ключей токенов в Redis.
const keyPrefix = "sm:token:"

// RedisStore — токены в Redis с TTL. Общие для всех реплик сервиса.
type RedisStore struct {
	rdb    *goredis.Client
	ttl    time.Duration
	random io.Reader
}

// NewRedisStore подключается к Redis по URL (redis://host:port/db) и проверяет связь.
func NewRedisStore(ctx context.Context, redisURL string, ttl time.Duration) (*RedisStore, error) {
	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("некорректный SM_REDIS_URL: %w", err)
	}

	rdb := goredis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping Redis: %w", err)
	}

	return &RedisStore{rdb: rdb, ttl: ttl, random: defaultRandom()}, nil
}

// Issue выдаёт токен (SET NX EX).
func (s *RedisStore) Issue(ctx context.Context, userID string) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("пустой user_id")
	}
	token, err := newToken(s.random)
	if err != nil {
		return "", err
	}

	ok, err := s.rdb.SetNX(ctx, keyPrefix+token, userID, s.ttl).Result()
	if err != nil {
		return "", fmt.Errorf("сохранение токена в Redis: %w", err)
	}
	if !ok {
		return "", fmt.Errorf("коллизия токена")
	}
	return token, nil
}

// Resolve возвращает user_id владельца токена.
func (s *RedisStore) Resolve(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", ErrUnknownToken
	}
	userID, err := s.rdb.Get(ctx, keyPrefix+token).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return "", ErrUnknownToken
		}
		return "", fmt.Errorf("чтение токена из Redis: %w", err)
	}
	return userID, nil
}

// Revoke удаляет токен.
func (s *RedisStore) Revoke(ctx context.Context, token string) error {
	if err := s.rdb.Del(ctx, keyPrefix+token).Err(); err != nil {
		return fmt.Errorf("удаление токена из Redis: %w", err)
	}
	return nil
}

// Ping проверяет доступность Redis (для readiness).
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// Close закрывает клиент Redis.
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}
