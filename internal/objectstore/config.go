package objectstore

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bigkaa/goartstore/share-module/internal/config"
)

// FromConfig создаёт бэкенд по SM_STORAGE_BACKEND, обёрнутый circuit breaker.
func FromConfig(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*BreakerStore, error) {
	var (
		backend Store
		err     error
	)

	switch cfg.StorageBackend {
	case config.StorageBackendDir:
		backend, err = NewDirStore(cfg.StorageDir)
	case config.StorageBackendMinio:
		backend, err = NewMinioStore(ctx, cfg.S3Endpoint, cfg.S3AccessKey, cfg.S3SecretKey, cfg.S3Bucket)
	case config.StorageBackendHTTP:
		backend, err = NewHTTPStore(cfg.StorageHTTPURL, cfg.StorageHTTPToken, cfg.StorageCACertPath,
			cfg.StorageTimeout, logger)
	default:
		return nil, fmt.Errorf("неизвестный бэкенд хранилища: %s", cfg.StorageBackend)
	}
	if err != nil {
		return nil, fmt.Errorf("бэкенд %s: %w", cfg.StorageBackend, err)
	}

	return NewBreakerStore(backend, cfg.StorageBackend, cfg.StorageBreakerTimeout, logger), nil
}
