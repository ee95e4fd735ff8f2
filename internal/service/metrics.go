package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus-метрики жизненного цикла сессий.
var (
	sessionsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sm_sessions_created_total",
		Help: "Количество созданных сессий.",
	})

	sessionJoinsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sm_session_joins_total",
		Help: "Попытки входа в сессию по коду (по результату).",
	}, []string{"result"})

	sessionDeactivationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sm_session_deactivations_total",
		Help: "Количество деактивированных сессий (по причине: expired, ended, swept).",
	}, []string{"reason"})

	sessionsPurgedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sm_sessions_purged_total",
		Help: "Количество удалённых неактивных сессий (retention).",
	})

	codeConflictsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sm_session_code_conflicts_total",
		Help: "Конфликты уникальности кода при вставке сессии.",
	})

	filesSharedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sm_files_shared_total",
		Help: "Количество новых файлов, добавленных в сессии.",
	})

	filesRemovedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sm_files_removed_total",
		Help: "Количество файлов, удалённых из сессий.",
	})
)
