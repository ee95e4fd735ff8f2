// Пакет server — HTTP-сервер Share Module с graceful shutdown.
// Без TLS — HTTP внутри кластера, TLS termination на API Gateway.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/go-chi/chi/v5"

	"github.com/bigkaa/goartstore/share-module/internal/config"
)

// ServerInterface — обработчики маршрутов Share Module.
// Реализуется handlers.APIHandler.
type ServerInterface interface {
	HealthLive(w http.ResponseWriter, r *http.Request)
	HealthReady(w http.ResponseWriter, r *http.Request)
	GetMetrics(w http.ResponseWriter, r *http.Request)

	CreateSession(w http.ResponseWriter, r *http.Request)
	JoinSession(w http.ResponseWriter, r *http.Request)
	GetSession(w http.ResponseWriter, r *http.Request)
	ListParticipants(w http.ResponseWriter, r *http.Request)
	LeaveSession(w http.ResponseWriter, r *http.Request)
	EndSession(w http.ResponseWriter, r *http.Request)
	SessionEvents(w http.ResponseWriter, r *http.Request)

	ShareFile(w http.ResponseWriter, r *http.Request)
	ListSharedFiles(w http.ResponseWriter, r *http.Request)
	GetSharedFile(w http.ResponseWriter, r *http.Request)
	RemoveSharedFile(w http.ResponseWriter, r *http.Request)
	DownloadSharedFile(w http.ResponseWriter, r *http.Request)

	IssueToken(w http.ResponseWriter, r *http.Request)
}

// RouterOptions — middleware отдельных маршрутов.
type RouterOptions struct {
	// JoinMiddlewares применяются только к входу по коду (ограничение частоты).
	JoinMiddlewares []func(http.Handler) http.Handler
}

// Server — HTTP-сервер Share Module.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *config.Config
}

// New создаёт новый HTTP-сервер с настроенными routes и middleware.
// middlewares — общие middleware (metrics, logging, auth, validation),
// добавляются в порядке переданного среза.
func New(
	cfg *config.Config,
	logger *slog.Logger,
	handler ServerInterface,
	opts RouterOptions,
	middlewares ...func(http.Handler) http.Handler,
) *Server {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      NewRouter(handler, opts, middlewares...),
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
		cfg:        cfg,
	}
}

// NewRouter собирает chi-роутер со всеми маршрутами API.
func NewRouter(si ServerInterface, opts RouterOptions, middlewares ...func(http.Handler) http.Handler) chi.Router {
	router := chi.NewRouter()

	// Применяем переданные middleware
	for _, mw := range middlewares {
		router.Use(mw)
	}

	router.Get("/health/live", si.HealthLive)
	router.Get("/health/ready", si.HealthReady)
	router.Get("/metrics", si.GetMetrics)

	router.Post("/api/v1/tokens", si.IssueToken)

	router.Route("/api/v1/sessions", func(r chi.Router) {
		r.Post("/", si.CreateSession)
		r.With(opts.JoinMiddlewares...).Post("/join", si.JoinSession)

		r.Route("/{session_id}", func(r chi.Router) {
			r.Get("/", si.GetSession)
			r.Get("/participants", si.ListParticipants)
			r.Post("/leave", si.LeaveSession)
			r.Post("/end", si.EndSession)
			r.Get("/events", si.SessionEvents)

			r.Get("/files", si.ListSharedFiles)
			r.Post("/files", si.ShareFile)
			r.Get("/files/{shared_file_id}", si.GetSharedFile)
			r.Delete("/files/{shared_file_id}", si.RemoveSharedFile)
			r.Get("/files/{shared_file_id}/download", si.DownloadSharedFile)
		})
	})

	return router
}

// AuthWithExclusions оборачивает middleware, пропуская указанные пути.
// Запросы к путям, начинающимся с любого из excludePrefixes, проходят без middleware.
func AuthWithExclusions(mw func(http.Handler) http.Handler, excludePrefixes ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		wrapped := mw(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Проверяем, начинается ли путь с исключённого префикса
			for _, prefix := range excludePrefixes {
				if strings.HasPrefix(r.URL.Path, prefix) {
					next.ServeHTTP(w, r)
					return
				}
			}

			wrapped.ServeHTTP(w, r)
		})
	}
}

// Run запускает сервер и ожидает сигнала завершения (SIGINT, SIGTERM).
// При получении сигнала выполняется graceful shutdown.
func (s *Server) Run() error {
	// Канал для ошибок сервера
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP-сервер запущен",
			slog.String("addr", s.httpServer.Addr),
		)

		err := s.httpServer.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// Ожидание сигнала завершения
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		s.logger.Info("Получен сигнал завершения", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ошибка HTTP-сервера: %w", err)
		}
	}

	return s.Shutdown()
}

// Shutdown останавливает приём запросов и ждёт завершения текущих
// в пределах ShutdownTimeout.
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Выполняется graceful shutdown...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("ошибка при graceful shutdown: %w", err)
	}

	s.logger.Info("HTTP-сервер остановлен")
	return nil
}
