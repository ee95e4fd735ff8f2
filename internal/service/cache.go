// Пакет service — бизнес-логика Share Module.
// CatalogCache — LRU-кэш каталога файлов с TTL поверх FileRepository.
// Обёртка над hashicorp/golang-lru/v2/expirable; параллельные промахи
// по одному file_id объединяются через singleflight.
package service

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/singleflight"

	"github.com/bigkaa/goartstore/share-module/internal/domain/model"
	"github.com/bigkaa/goartstore/share-module/internal/repository"
)

// lookupTimeout ограничивает общий запрос в БД при промахе кэша.
const lookupTimeout = 10 * time.Second

// Prometheus-метрики кэша.
var (
	cacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sm_catalog_cache_hits_total",
		Help: "Общее количество попаданий в LRU-кэш каталога файлов.",
	})
	cacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sm_catalog_cache_misses_total",
		Help: "Общее количество промахов LRU-кэша каталога файлов.",
	})
)

// FileCatalog — источник метаданных файлов для расшаривания и скачивания.
type FileCatalog interface {
	// GetFile возвращает файл или repository.ErrNotFound.
	GetFile(ctx context.Context, fileID string) (*model.FileItem, error)
	// MarkDeleted помечает файл удалённым (содержимое пропало из хранилища).
	MarkDeleted(ctx context.Context, fileID string) error
}

// CatalogCache — кэширующий FileCatalog.
// Каждый экземпляр сервиса имеет собственный in-memory кэш.
type CatalogCache struct {
	files repository.FileRepository
	cache *expirable.LRU[string, *model.FileItem]
	group singleflight.Group
}

// NewCatalogCache создаёт кэш каталога.
// maxSize — максимальное количество записей в кэше.
// ttl — время жизни записи после добавления.
func NewCatalogCache(files repository.FileRepository, maxSize int, ttl time.Duration) *CatalogCache {
	return &CatalogCache{
		files: files,
		cache: expirable.NewLRU[string, *model.FileItem](maxSize, nil, ttl),
	}
}

// GetFile возвращает файл из кэша или из БД.
// Отсутствующие файлы не кэшируются.
func (c *CatalogCache) GetFile(ctx context.Context, fileID string) (*model.FileItem, error) {
	if item, ok := c.cache.Get(fileID); ok {
		cacheHitsTotal.Inc()
		return item, nil
	}
	cacheMissesTotal.Inc()

	// Запрос общий для всех ожидающих: отмена первого вызвавшего
	// не должна обрывать его для остальных.
	ch := c.group.DoChan(fileID, func() (interface{}, error) {
		lookupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), lookupTimeout)
		defer cancel()
		item, err := c.files.GetByID(lookupCtx, fileID)
		if err != nil {
			return nil, err
		}
		c.cache.Add(fileID, item)
		return item, nil
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*model.FileItem), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// MarkDeleted помечает файл удалённым в БД и инвалидирует кэш.
func (c *CatalogCache) MarkDeleted(ctx context.Context, fileID string) error {
	defer c.cache.Remove(fileID)
	return c.files.MarkDeleted(ctx, fileID)
}

// Invalidate удаляет запись из кэша.
func (c *CatalogCache) Invalidate(fileID string) {
	c.cache.Remove(fileID)
}

// Len возвращает текущее количество записей в кэше.
func (c *CatalogCache) Len() int {
	return c.cache.Len()
}
