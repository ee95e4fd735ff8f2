// metrics.go — Prometheus HTTP метрики для Share Module.
// Регистрирует метрики: sm_http_requests_total, sm_http_request_duration_seconds.
// Нормализация путей предотвращает взрывной рост кардинальности.
package middleware

import (
	"bufio"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP метрики Share Module
var (
	// httpRequestsTotal — общее количество HTTP-запросов.
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sm_http_requests_total",
			Help: "Общее количество HTTP-запросов к Share Module",
		},
		[]string{"method", "path", "status"},
	)

	// httpRequestDuration — гистограмма длительности HTTP-запросов.
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sm_http_request_duration_seconds",
			Help:    "Длительность HTTP-запросов к Share Module в секундах",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// MetricsMiddleware возвращает HTTP middleware для сбора Prometheus метрик.
// Записывает количество запросов и длительность для каждого endpoint.
func MetricsMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Нормализуем путь для лейблов метрик
			// (заменяем UUID на {id} для предотвращения кардинальности)
			normalizedPath := normalizePath(r.URL.Path)

			wrapped := newMetricsResponseWriter(w)
			next.ServeHTTP(wrapped, r)

			duration := time.Since(start).Seconds()
			status := strconv.Itoa(wrapped.statusCode)

			method := normalizeMethod(r.Method)
			httpRequestsTotal.WithLabelValues(method, normalizedPath, status).Inc()
			httpRequestDuration.WithLabelValues(method, normalizedPath).Observe(duration)
		})
	}
}

// metricsResponseWriter — обёртка для перехвата статус-кода.
type metricsResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func newMetricsResponseWriter(w http.ResponseWriter) *metricsResponseWriter {
	return &metricsResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *metricsResponseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Unwrap позволяет http.ResponseController получить доступ к оригинальному ResponseWriter.
func (rw *metricsResponseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Hijack — см. responseWriter.Hijack.
func (rw *metricsResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	conn, brw, err := http.NewResponseController(rw.ResponseWriter).Hijack()
	if err == nil {
		rw.statusCode = http.StatusSwitchingProtocols
	}
	return conn, brw, err
}

// Метки для путей вне маршрутов API.
const (
	otherPathLabel    = "/other"
	otherSegmentLabel = "{other}"
)

// routeLiterals — фиксированные сегменты маршрутов под /api/v1/sessions/.
var routeLiterals = map[string]bool{
	"files":        true,
	"participants": true,
	"leave":        true,
	"end":          true,
	"events":       true,
	"download":     true,
}

// normalizePath приводит путь к конечному набору меток: UUID-сегменты
// заменяются на {id}, прочие сегменты вне маршрутов на {other},
// пути вне API на /other. Запросы без токена проходят через этот
// middleware, поэтому метка не может зависеть от произвольного ввода.
// /api/v1/sessions/a1b2c3d4-.../files → /api/v1/sessions/{id}/files
// /api/v1/sessions/a1b2.../files/e5f6.../download → /api/v1/sessions/{id}/files/{id}/download
func normalizePath(path string) string {
	// Статические пути — возвращаем как есть
	switch path {
	case "/health/live", "/health/ready", "/metrics", "/api/v1/tokens",
		"/api/v1/sessions", "/api/v1/sessions/", "/api/v1/sessions/join":
		return path
	}

	const sessionsPrefix = "/api/v1/sessions/"
	if !strings.HasPrefix(path, sessionsPrefix) {
		return otherPathLabel
	}

	segments := strings.Split(path[len(sessionsPrefix):], "/")
	// Глубже /{id}/files/{id}/download маршрутов нет
	if len(segments) > 4 {
		return sessionsPrefix + otherSegmentLabel
	}
	for i, seg := range segments {
		switch {
		case uuid.Validate(seg) == nil:
			segments[i] = "{id}"
		case routeLiterals[seg]:
		default:
			segments[i] = otherSegmentLabel
		}
	}
	return sessionsPrefix + strings.Join(segments, "/")
}

// normalizeMethod ограничивает метку method стандартными методами HTTP.
func normalizeMethod(method string) string {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodPost, http.MethodPut,
		http.MethodPatch, http.MethodDelete, http.MethodOptions:
		return method
	}
	return "OTHER"
}
