package tokenstore

import (
	"context"
	"fmt"

	"github.com/bigkaa/goartstore/share-module/internal/config"
)

// memoryCapacity — максимум живых токенов in-memory бэкенда.
const memoryCapacity = 10000

// FromConfig создаёт хранилище по SM_TOKEN_STORE.
// Для "none" возвращает nil: непрозрачные токены не принимаются.
func FromConfig(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.TokenStore {
	case config.TokenStoreNone:
		return nil, nil
	case config.TokenStoreMemory:
		return NewMemoryStore(memoryCapacity, cfg.TokenTTL), nil
	case config.TokenStoreRedis:
		return NewRedisStore(ctx, cfg.RedisURL, cfg.TokenTTL)
	default:
		return nil, fmt.Errorf("неизвестное хранилище токенов: %s", cfg.TokenStore)
	}
}
