// handler.go — основной обработчик API Share Module.
// Связывает HTTP-маршруты с SessionService, переводит ошибки
// бизнес-логики в единый формат ответа.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/oapi-codegen/runtime"
	openapi_types "github.com/oapi-codegen/runtime/types"

	apierrors "github.com/bigkaa/goartstore/share-module/internal/api/errors"
	"github.com/bigkaa/goartstore/share-module/internal/api/middleware"
	"github.com/bigkaa/goartstore/share-module/internal/domain/model"
	"github.com/bigkaa/goartstore/share-module/internal/service"
)

// SessionManager — операции над сессиями, доступные через API.
// Реализуется *service.SessionService.
type SessionManager interface {
	CreateSession(ctx context.Context, creatorID string) (*model.Session, error)
	JoinSession(ctx context.Context, code, userID string) (*model.Session, error)
	GetSession(ctx context.Context, sessionID, userID string) (*model.Session, error)
	ShareFile(ctx context.Context, sessionID, fileID, userID string) (*model.SharedFile, error)
	ListSharedFiles(ctx context.Context, sessionID, userID string) ([]*model.SharedFile, error)
	ListParticipants(ctx context.Context, sessionID, userID string) ([]*model.Participant, error)
	LeaveSession(ctx context.Context, sessionID, userID string) error
	GetSharedFile(ctx context.Context, sessionID, sharedFileID, userID string) (*model.SharedFile, error)
	RemoveSharedFile(ctx context.Context, sessionID, sharedFileID, userID string) error
	EndSession(ctx context.Context, sessionID, userID string) error
	OpenSharedFile(ctx context.Context, sessionID, sharedFileID, userID string) (*service.Download, error)
}

// EventStream — подписка websocket-соединения на события сессии.
// Реализуется *events.Hub.
type EventStream interface {
	Serve(sessionID string, conn *websocket.Conn) error
}

// TokenIssuer выдаёт непрозрачные токены. Реализуется tokenstore.Store.
type TokenIssuer interface {
	Issue(ctx context.Context, userID string) (string, error)
}

// APIHandler — основной обработчик API Share Module.
type APIHandler struct {
	sessions SessionManager
	events   EventStream
	tokens   TokenIssuer
	health   *HealthHandler
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewAPIHandler создаёт основной обработчик API.
// events может быть nil — подписка на события тогда недоступна (404).
// tokens может быть nil — выдача токенов недоступна (404).
func NewAPIHandler(
	sessions SessionManager,
	events EventStream,
	tokens TokenIssuer,
	health *HealthHandler,
	logger *slog.Logger,
) *APIHandler {
	return &APIHandler{
		sessions: sessions,
		events:   events,
		tokens:   tokens,
		health:   health,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Доступ проверяется по Bearer-токену, а не по cookie
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger: logger.With(slog.String("component", "api_handler")),
	}
}

// --- Health endpoints (делегируются в HealthHandler) ---

// HealthLive — проверка liveness.
func (h *APIHandler) HealthLive(w http.ResponseWriter, r *http.Request) {
	h.health.HealthLive(w, r)
}

// HealthReady — проверка readiness.
func (h *APIHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	h.health.HealthReady(w, r)
}

// GetMetrics — Prometheus метрики.
func (h *APIHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.health.GetMetrics(w, r)
}

// --- Вспомогательные функции ---

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// currentUser возвращает аутентифицированного пользователя или пишет 401.
func currentUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := middleware.UserIDFromContext(r.Context())
	if userID == "" {
		apierrors.Unauthorized(w, "Требуется аутентификация")
		return "", false
	}
	return userID, true
}

// pathUUID связывает UUID-параметр пути. При ошибке пишет 400.
func pathUUID(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	var id openapi_types.UUID
	err := runtime.BindStyledParameterWithOptions("simple", name, chi.URLParam(r, name), &id,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
	if err != nil {
		apierrors.ValidationError(w, fmt.Sprintf("Некорректный параметр %s", name))
		return "", false
	}
	return id.String(), true
}

// errorMessages — сообщения для клиента по конкретным ошибкам сервиса.
var errorMessages = []struct {
	err error
	msg string
}{
	{service.ErrSessionNotFound, "Сессия не найдена"},
	{service.ErrSessionExpired, "Срок действия сессии истёк"},
	{service.ErrSessionInactive, "Сессия завершена"},
	{service.ErrCreatorCannotLeave, "Создатель не может покинуть сессию"},
	{service.ErrFileNotFound, "Файл не найден"},
	{service.ErrSharedFileNotFound, "Файл сессии не найден"},
	{service.ErrFileContentMissing, "Содержимое файла отсутствует в хранилище"},
	{service.ErrOnlyCreator, "Только создатель может завершить сессию"},
	{service.ErrOnlySharerOrCreator, "Удалить файл может только расшаривший его или создатель сессии"},
}

func messageFor(err error, fallback string) string {
	for _, m := range errorMessages {
		if errors.Is(err, m.err) {
			return m.msg
		}
	}
	return fallback
}

// writeServiceError переводит ошибку сервисного слоя в HTTP-ответ.
// op — описание операции для лога.
func (h *APIHandler) writeServiceError(w http.ResponseWriter, r *http.Request, err error, op string) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		apierrors.NotFound(w, messageFor(err, "Не найдено"))
	case errors.Is(err, service.ErrInvalidState):
		apierrors.InvalidState(w, messageFor(err, "Операция недопустима в текущем состоянии сессии"))
	case errors.Is(err, service.ErrNotAuthorized):
		apierrors.Forbidden(w, messageFor(err, "Недостаточно прав"))
	case errors.Is(err, service.ErrStorageUnavailable):
		apierrors.StorageUnavailable(w, "Хранилище файлов временно недоступно")
	case errors.Is(err, context.Canceled):
		// Клиент ушёл, отвечать некому
		h.logger.Debug("Запрос отменён клиентом", slog.String("op", op))
	default:
		h.logger.Error("Ошибка обработки запроса",
			slog.String("op", op),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		apierrors.InternalError(w, "Внутренняя ошибка сервера")
	}
}
