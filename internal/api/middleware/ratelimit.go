// ratelimit.go — ограничение частоты запросов на пользователя (token bucket).
// Применяется к входу в сессию по коду: перебор кодов упирается в лимит.
package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/time/rate"

	apierrors "github.com/bigkaa/goartstore/share-module/internal/api/errors"
)

var rateLimitedTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "sm_http_rate_limited_total",
	Help: "Количество запросов, отклонённых ограничителем частоты.",
})

// Неактивные лимитеры вытесняются через limiterIdleTTL.
const (
	limiterIdleTTL  = 10 * time.Minute
	limiterMaxUsers = 10000
)

// RateLimiter хранит отдельный token bucket на каждого пользователя.
type RateLimiter struct {
	mu       sync.Mutex
	limiters *expirable.LRU[string, *rate.Limiter]
	rate     rate.Limit
	burst    int
}

// NewRateLimiter создаёт ограничитель: perSecond — устойчивая частота,
// burst — допустимый всплеск.
func NewRateLimiter(perSecond float64, burst int) *RateLimiter {
	return &RateLimiter{
		limiters: expirable.NewLRU[string, *rate.Limiter](limiterMaxUsers, nil, limiterIdleTTL),
		rate:     rate.Limit(perSecond),
		burst:    burst,
	}
}

// Allow списывает токен из bucket'а ключа.
func (l *RateLimiter) Allow(key string) bool {
	l.mu.Lock()
	limiter, ok := l.limiters.Get(key)
	if !ok {
		limiter = rate.NewLimiter(l.rate, l.burst)
	}
	// Add продлевает TTL записи при каждом обращении
	l.limiters.Add(key, limiter)
	l.mu.Unlock()

	return limiter.Allow()
}

// Middleware возвращает HTTP middleware. Ключ — user_id из контекста,
// для неаутентифицированных запросов — remote_addr.
func (l *RateLimiter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := UserIDFromContext(r.Context())
			if key == "" {
				key = r.RemoteAddr
			}

			if !l.Allow(key) {
				rateLimitedTotal.Inc()
				w.Header().Set("Retry-After", strconv.Itoa(l.retryAfterSeconds()))
				apierrors.RateLimited(w, "Слишком много попыток, повторите позже")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func (l *RateLimiter) retryAfterSeconds() int {
	if l.rate <= 0 {
		return 1
	}
	secs := int(1 / float64(l.rate))
	if secs < 1 {
		secs = 1
	}
	return secs
}
