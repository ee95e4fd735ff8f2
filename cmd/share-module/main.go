// main.go — точка входа Share Module.
// Сессии обмена файлами: создание, вход по коду, расшаривание и скачивание.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/jackc/pgx/v5/stdlib"
	"github.com/jonboulle/clockwork"

	"github.com/bigkaa/goartstore/share-module/internal/api/handlers"
	"github.com/bigkaa/goartstore/share-module/internal/api/middleware"
	"github.com/bigkaa/goartstore/share-module/internal/api/openapi"
	"github.com/bigkaa/goartstore/share-module/internal/config"
	"github.com/bigkaa/goartstore/share-module/internal/database"
	"github.com/bigkaa/goartstore/share-module/internal/events"
	"github.com/bigkaa/goartstore/share-module/internal/objectstore"
	"github.com/bigkaa/goartstore/share-module/internal/repository"
	"github.com/bigkaa/goartstore/share-module/internal/server"
	"github.com/bigkaa/goartstore/share-module/internal/service"
	"github.com/bigkaa/goartstore/share-module/internal/tokenstore"
)

func main() {
	// 1. Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Ошибка загрузки конфигурации", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. Настройка логирования
	logger := config.SetupLogger(cfg)
	logger.Info("Share Module запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
		slog.String("session_ttl", cfg.SessionTTL.String()),
	)

	// 3. Применение миграций БД
	logger.Info("Применение миграций БД...")
	if err := database.Migrate(cfg, logger); err != nil {
		logger.Error("Ошибка миграций БД", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 4. Подключение к PostgreSQL (pgxpool)
	ctx := context.Background()
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		logger.Error("Ошибка подключения к PostgreSQL", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	// 4.1 Адаптер pgxpool → *sql.DB для topologymetrics (connection pool mode)
	pgDB := stdlib.OpenDBFromPool(pool)
	defer pgDB.Close()

	// 5. Repositories и каталог файлов
	repos := repository.NewRepos(pool)
	txRunner := repository.NewTxRunner(pool)
	catalog := service.NewCatalogCache(repos.Files, cfg.CatalogCacheSize, cfg.CatalogCacheTTL)

	// 6. Объектное хранилище (через circuit breaker)
	objects, err := objectstore.FromConfig(ctx, cfg, logger)
	if err != nil {
		logger.Error("Ошибка инициализации объектного хранилища", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("Объектное хранилище инициализировано",
		slog.String("backend", cfg.StorageBackend),
	)

	// 7. Хранилище непрозрачных токенов
	tokens, err := tokenstore.FromConfig(ctx, cfg)
	if err != nil {
		logger.Error("Ошибка инициализации хранилища токенов", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if tokens != nil {
		defer tokens.Close()
	}

	// 8. Events hub и сервис сессий
	hub := events.NewHub(cfg.EventsMaxClients, logger)
	sessionSvc := service.NewSessionService(
		repos, txRunner, catalog, objects, hub,
		clockwork.NewRealClock(), cfg.SessionTTL, logger,
	)

	// 9. Фоновая деактивация просроченных сессий (опционально)
	var sweeper *service.ExpirySweeper
	if cfg.SweepInterval > 0 {
		sweeper = service.NewExpirySweeper(repos.Sessions, hub, clockwork.NewRealClock(),
			cfg.SweepInterval, cfg.Retention, logger)
		sweeper.Start(ctx)
	} else {
		logger.Info("Фоновая очистка сессий отключена (SM_SWEEP_INTERVAL=0)")
	}

	// 10. Аутентификация: JWT и/или непрозрачные токены
	var resolvers []middleware.IdentityResolver
	if cfg.JWTJWKSURL != "" {
		jwtAuth, err := middleware.NewJWTAuth(
			cfg.JWTJWKSURL,
			cfg.JWTCACertPath,
			cfg.JWTIssuer,
			cfg.JWKSClientTimeout,
			cfg.JWKSRefreshInterval,
			cfg.JWTLeeway,
			logger,
		)
		if err != nil {
			logger.Error("Ошибка инициализации JWT middleware", slog.String("error", err.Error()))
			os.Exit(1)
		}
		resolvers = append(resolvers, jwtAuth)
		logger.Info("JWT-аутентификация включена",
			slog.String("jwks_url", cfg.JWTJWKSURL),
			slog.String("issuer", cfg.JWTIssuer),
		)
	}
	if tokens != nil {
		resolvers = append(resolvers, middleware.NewTokenResolver(tokens))
		logger.Info("Аутентификация по токенам включена", slog.String("store", cfg.TokenStore))
	}
	authenticator := middleware.NewAuthenticator(logger, resolvers...)

	validator, err := openapi.NewValidator(logger)
	if err != nil {
		logger.Error("Ошибка загрузки OpenAPI-контракта", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 11. Readiness checkers
	healthHandler := handlers.NewHealthHandler(database.NewReadinessChecker(pool))
	healthHandler.AddCheck("object_storage", objects, false)
	if cfg.JWTJWKSURL != "" {
		jwksChecker, err := middleware.NewJWKSReadinessChecker(cfg.JWTJWKSURL, cfg.JWTCACertPath, 3*time.Second)
		if err != nil {
			logger.Error("Ошибка создания JWKS readiness checker", slog.String("error", err.Error()))
			os.Exit(1)
		}
		healthHandler.AddCheck("jwks", jwksChecker, false)
	}
	if redisTokens, ok := tokens.(*tokenstore.RedisStore); ok {
		healthHandler.AddCheck("redis", handlers.ReadinessFunc(func() (string, string) {
			pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			if err := redisTokens.Ping(pingCtx); err != nil {
				return "fail", "Redis недоступен: " + err.Error()
			}
			return "ok", "подключение активно"
		}), true)
	}

	// 12. API handler
	apiHandler := handlers.NewAPIHandler(sessionSvc, hub, tokens, healthHandler, logger)

	// 13. topologymetrics — мониторинг зависимостей
	var httpDeps []service.HTTPDependency
	if cfg.JWTJWKSURL != "" {
		httpDeps = append(httpDeps, service.HTTPDependency{Name: "idp-jwks", URL: cfg.JWTJWKSURL, Critical: true})
	}
	if cfg.StorageBackend == config.StorageBackendHTTP {
		httpDeps = append(httpDeps, service.HTTPDependency{
			Name: "storage-element", URL: cfg.StorageHTTPURL, HealthPath: "/health/ready",
		})
	}
	dephealthSvc, dephealthErr := service.NewDephealthService(
		"share-module",
		cfg.DephealthGroup,
		pgDB,
		cfg.DatabaseURL("postgres"),
		httpDeps,
		cfg.DephealthCheckInterval,
		cfg.DephealthIsEntry,
		logger,
	)
	if dephealthErr != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", dephealthErr.Error()),
		)
		dephealthSvc = nil
	} else if startErr := dephealthSvc.Start(ctx); startErr != nil {
		logger.Warn("Ошибка запуска topologymetrics", slog.String("error", startErr.Error()))
	} else {
		logger.Info("topologymetrics запущен",
			slog.String("group", cfg.DephealthGroup),
			slog.String("check_interval", cfg.DephealthCheckInterval.String()),
		)
	}

	// 14. Создание и запуск HTTP-сервера
	joinLimiter := middleware.NewRateLimiter(cfg.JoinRate, cfg.JoinBurst)
	srv := server.New(cfg, logger, apiHandler,
		server.RouterOptions{JoinMiddlewares: []func(http.Handler) http.Handler{joinLimiter.Middleware()}},
		middleware.RequestLogger(logger),
		middleware.MetricsMiddleware(),
		server.AuthWithExclusions(authenticator.Middleware(), "/health/", "/metrics"),
		validator.Middleware(),
	)
	if err := srv.Run(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 15. Graceful shutdown фоновых задач
	logger.Info("Останавливаем фоновые задачи...")
	if sweeper != nil {
		sweeper.Stop()
	}
	hub.Stop()
	if dephealthSvc != nil {
		dephealthSvc.Stop()
	}

	logger.Info("Share Module остановлен")
}
