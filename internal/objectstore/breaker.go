package objectstore

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sony/gobreaker"
)

var breakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Name: "sm_objectstore_breaker_state",
	Help: "Состояние circuit breaker объектного хранилища (0=closed, 1=half-open, 2=open).",
}, []string{"backend"})

// BreakerStore оборачивает Store circuit breaker.
// ErrNotFound и отмена контекста не считаются отказом хранилища.
type BreakerStore struct {
	next Store
	cb   *gobreaker.CircuitBreaker
}

// NewBreakerStore создаёт обёртку. timeout — время в состоянии open
// до пробного запроса.
func NewBreakerStore(next Store, name string, timeout time.Duration, logger *slog.Logger) *BreakerStore {
	log := logger.With(slog.String("component", "objectstore_breaker"))
	breakerState.WithLabelValues(name).Set(float64(gobreaker.StateClosed))

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     timeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.Requests >= 3 && float64(c.TotalFailures)/float64(c.Requests) >= 0.6
		},
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, ErrNotFound) ||
				errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			breakerState.WithLabelValues(name).Set(float64(to))
			log.Warn("Circuit breaker сменил состояние",
				slog.String("backend", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		},
	})

	return &BreakerStore{next: next, cb: cb}
}

// Open вызывает нижележащее хранилище через circuit breaker.
func (s *BreakerStore) Open(ctx context.Context, key string) (*Object, error) {
	res, err := s.cb.Execute(func() (interface{}, error) {
		return s.next.Open(ctx, key)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, ErrUnavailable
		}
		return nil, err
	}
	return res.(*Object), nil
}

// State возвращает текущее состояние breaker.
func (s *BreakerStore) State() gobreaker.State {
	return s.cb.State()
}

// CheckReady отражает состояние breaker для проверки readiness.
func (s *BreakerStore) CheckReady() (status, message string) {
	switch state := s.cb.State(); state {
	case gobreaker.StateClosed:
		return "ok", "хранилище доступно"
	case gobreaker.StateHalfOpen:
		return "degraded", "пробные запросы после серии ошибок"
	default:
		return "fail", "circuit breaker разомкнут: " + state.String()
	}
}
