// download.go — скачивание файла сессии из объектного хранилища.
// Pipeline: права участника → объект по storage_key → счётчик скачиваний.
// Ленивая очистка каталога, если хранилище сообщает об отсутствии объекта.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/goartstore/share-module/internal/domain/model"
	"github.com/bigkaa/goartstore/share-module/internal/objectstore"
)

// Prometheus-метрики download.
var (
	downloadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sm_downloads_total",
		Help: "Общее количество запросов на скачивание файлов сессий (по статусу).",
	}, []string{"status"})

	downloadDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sm_download_duration_seconds",
		Help:    "Длительность скачивания (от запроса до закрытия потока).",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
	})

	downloadBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sm_download_bytes_total",
		Help: "Общее количество переданных байт при скачивании.",
	})

	activeDownloads = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sm_active_downloads",
		Help: "Количество активных скачиваний.",
	})

	lazyCleanupTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sm_lazy_cleanup_total",
		Help: "Количество операций lazy cleanup (объект не найден в хранилище).",
	})
)

// Download — открытый поток файла сессии. Вызывающий код обязан вызвать Close.
type Download struct {
	SharedFile  *model.SharedFile
	FileName    string
	ContentType string
	// Size — размер в байтах (-1, если неизвестен)
	Size int64

	body      io.ReadCloser
	start     time.Time
	written   int64
	closeOnce sync.Once
}

// Read читает содержимое и учитывает переданные байты.
func (d *Download) Read(p []byte) (int, error) {
	n, err := d.body.Read(p)
	d.written += int64(n)
	return n, err
}

// Close закрывает поток и фиксирует метрики скачивания.
func (d *Download) Close() error {
	var err error
	d.closeOnce.Do(func() {
		err = d.body.Close()
		activeDownloads.Dec()
		downloadDuration.Observe(time.Since(d.start).Seconds())
		downloadBytesTotal.Add(float64(d.written))
	})
	return err
}

// OpenSharedFile открывает файл сессии для скачивания участником.
// Счётчик скачиваний увеличивается только после успешного открытия объекта.
//
// Pipeline:
//  1. Проверить членство и принадлежность файла сессии
//  2. Открыть объект по storage_key
//  3. Объекта нет → lazy cleanup (файл каталога помечается удалённым)
//  4. Увеличить download_count
func (s *SessionService) OpenSharedFile(ctx context.Context, sessionID, sharedFileID, userID string) (*Download, error) {
	start := time.Now()

	// 1. Права
	shared, err := s.GetSharedFile(ctx, sessionID, sharedFileID, userID)
	if err != nil {
		downloadsTotal.WithLabelValues("not_found").Inc()
		return nil, err
	}

	// 2. Объект
	obj, err := s.objects.Open(ctx, shared.StorageKey)
	if err != nil {
		switch {
		case errors.Is(err, objectstore.ErrNotFound):
			// 3. Lazy cleanup
			s.logger.Warn("Объект не найден в хранилище, выполняется lazy cleanup",
				slog.String("shared_file_id", shared.ID),
				slog.String("file_id", shared.FileID),
				slog.String("storage_key", shared.StorageKey),
			)
			s.lazyCleanup(ctx, shared.FileID)
			downloadsTotal.WithLabelValues("lazy_cleanup").Inc()
			return nil, ErrFileContentMissing
		case errors.Is(err, objectstore.ErrUnavailable):
			downloadsTotal.WithLabelValues("storage_unavailable").Inc()
			return nil, ErrStorageUnavailable
		default:
			downloadsTotal.WithLabelValues("storage_error").Inc()
			return nil, fmt.Errorf("открытие объекта %s: %w", shared.StorageKey, err)
		}
	}

	// 4. Счётчик
	updated, err := s.IncrementDownloadCount(ctx, sessionID, sharedFileID, userID)
	if err != nil {
		_ = obj.Body.Close()
		downloadsTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	downloadsTotal.WithLabelValues("success").Inc()

	s.logger.Debug("Скачивание начато",
		slog.String("shared_file_id", updated.ID),
		slog.String("user_id", userID),
		slog.Int64("download_count", updated.DownloadCount),
	)

	dl := NewDownload(updated, obj)
	dl.start = start
	return dl, nil
}

// NewDownload оборачивает открытый объект. Тип содержимого и размер берутся
// из снимка метаданных, при их отсутствии — из ответа хранилища.
func NewDownload(shared *model.SharedFile, obj *objectstore.Object) *Download {
	contentType := shared.ContentType
	if contentType == "" {
		contentType = obj.ContentType
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	size := obj.Size
	if size < 0 {
		size = shared.FileSize
	}

	activeDownloads.Inc()
	return &Download{
		SharedFile:  shared,
		FileName:    shared.FileName,
		ContentType: contentType,
		Size:        size,
		body:        obj.Body,
		start:       time.Now(),
	}
}

// lazyCleanup помечает файл каталога удалённым и инвалидирует кэш.
func (s *SessionService) lazyCleanup(ctx context.Context, fileID string) {
	lazyCleanupTotal.Inc()

	if err := s.catalog.MarkDeleted(ctx, fileID); err != nil {
		s.logger.Error("Ошибка lazy cleanup: не удалось пометить файл как удалённый",
			slog.String("file_id", fileID),
			slog.String("error", err.Error()),
		)
		return
	}

	s.logger.Info("Lazy cleanup завершён: файл помечен как удалённый",
		slog.String("file_id", fileID),
	)
}
