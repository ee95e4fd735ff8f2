// sweeper.go — фоновая деактивация истёкших сессий и удаление старых
// неактивных сессий (retention).
//
// Истечение сессии проверяется лениво при входе по коду; sweeper лишь
// сокращает окно, в течение которого истёкшая сессия видна как active.
// Как и ленивое истечение, публикует session_expired для каждой сессии.
// Запускается как горутина с периодическим тикером (SM_SWEEP_INTERVAL).
package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/goartstore/share-module/internal/domain/model"
	"github.com/bigkaa/goartstore/share-module/internal/repository"
)

// Prometheus метрики sweeper
var (
	sweepRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sm_sweep_runs_total",
		Help: "Общее количество запусков sweeper",
	})

	sweepDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sm_sweep_duration_seconds",
		Help:    "Длительность выполнения sweeper в секундах",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
	})
)

// SweepResult — результат одного запуска sweeper.
type SweepResult struct {
	// Deactivated — количество деактивированных истёкших сессий
	Deactivated int64
	// Purged — количество удалённых неактивных сессий
	Purged int64
	// Errors — количество ошибок фаз
	Errors   int
	Duration time.Duration
}

// ExpirySweeper — фоновая очистка сессий.
type ExpirySweeper struct {
	sessions  repository.SessionRepository
	events    EventPublisher
	clock     clockwork.Clock
	interval  time.Duration
	retention time.Duration
	logger    *slog.Logger

	mu     sync.Mutex // защита от параллельного запуска RunOnce
	cancel context.CancelFunc
	done   chan struct{}
}

// NewExpirySweeper создаёт sweeper.
// retention — возраст неактивной сессии, после которого она удаляется (0 — не удалять).
// events может быть nil — события тогда не публикуются.
func NewExpirySweeper(
	sessions repository.SessionRepository,
	events EventPublisher,
	clock clockwork.Clock,
	interval time.Duration,
	retention time.Duration,
	logger *slog.Logger,
) *ExpirySweeper {
	if events == nil {
		events = noopPublisher{}
	}
	return &ExpirySweeper{
		sessions:  sessions,
		events:    events,
		clock:     clock,
		interval:  interval,
		retention: retention,
		logger:    logger.With(slog.String("component", "sweeper")),
	}
}

// Start запускает фоновую горутину с периодическим тикером.
func (sw *ExpirySweeper) Start(ctx context.Context) {
	swCtx, cancel := context.WithCancel(ctx)
	sw.cancel = cancel
	sw.done = make(chan struct{})

	go sw.run(swCtx)

	sw.logger.Info("Sweeper запущен",
		slog.String("interval", sw.interval.String()),
		slog.String("retention", sw.retention.String()),
	)
}

// Stop останавливает фоновый процесс и дожидается его завершения.
func (sw *ExpirySweeper) Stop() {
	if sw.cancel == nil {
		return
	}
	sw.cancel()
	<-sw.done
	sw.logger.Info("Sweeper остановлен")
}

func (sw *ExpirySweeper) run(ctx context.Context) {
	defer close(sw.done)

	// Первый запуск — сразу после старта
	sw.RunOnce(ctx)

	ticker := sw.clock.NewTicker(sw.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			sw.RunOnce(ctx)
		}
	}
}

// RunOnce выполняет один цикл.
//
// Порядок обработки:
//  1. Деактивация активных сессий с expires_at < now
//  2. Удаление неактивных сессий старше retention (каскадно с участниками и файлами)
func (sw *ExpirySweeper) RunOnce(ctx context.Context) *SweepResult {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	start := time.Now()
	result := &SweepResult{}
	now := sw.clock.Now().UTC()

	// Фаза 1: истёкшие сессии
	expired, err := sw.sessions.DeactivateExpired(ctx, now)
	if err != nil {
		result.Errors++
		sw.logger.Error("Sweeper: ошибка деактивации истёкших сессий",
			slog.String("error", err.Error()),
		)
	} else {
		result.Deactivated = int64(len(expired))
		sessionDeactivationsTotal.WithLabelValues("swept").Add(float64(len(expired)))
		for _, id := range expired {
			sw.events.Publish(model.SessionEvent{
				Type:      model.EventSessionExpired,
				SessionID: id,
				At:        now,
			})
		}
	}

	// Фаза 2: retention
	if sw.retention > 0 {
		n, err := sw.sessions.DeleteInactiveBefore(ctx, now.Add(-sw.retention))
		if err != nil {
			result.Errors++
			sw.logger.Error("Sweeper: ошибка удаления старых сессий",
				slog.String("error", err.Error()),
			)
		} else {
			result.Purged = n
			sessionsPurgedTotal.Add(float64(n))
		}
	}

	result.Duration = time.Since(start)
	sweepRunsTotal.Inc()
	sweepDurationSeconds.Observe(result.Duration.Seconds())

	sw.logger.Info("Sweeper завершён",
		slog.Int64("deactivated", result.Deactivated),
		slog.Int64("purged", result.Purged),
		slog.Int("errors", result.Errors),
		slog.Duration("duration", result.Duration),
	)
	return result
}
