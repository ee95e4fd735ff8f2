// sessions.go — обработчики жизненного цикла сессии:
// создание, вход по коду, просмотр, участники, выход, завершение, события.
package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/oapi-codegen/runtime"

	apierrors "github.com/bigkaa/goartstore/share-module/internal/api/errors"
	"github.com/bigkaa/goartstore/share-module/internal/domain/model"
)

// SessionResponse — представление сессии в API.
type SessionResponse struct {
	ID        string     `json:"id"`
	Code      string     `json:"code"`
	CreatorID string     `json:"creator_id"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Active    bool       `json:"active"`
}

// ParticipantResponse — участник сессии.
type ParticipantResponse struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id"`
	JoinedAt  time.Time `json:"joined_at"`
}

func toSessionResponse(s *model.Session) SessionResponse {
	return SessionResponse{
		ID:        s.ID,
		Code:      s.Code,
		CreatorID: s.CreatorID,
		CreatedAt: s.CreatedAt,
		ExpiresAt: s.ExpiresAt,
		Active:    s.Active,
	}
}

// CreateSession — POST /api/v1/sessions.
func (h *APIHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	session, err := h.sessions.CreateSession(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, r, err, "create_session")
		return
	}
	writeJSON(w, http.StatusCreated, toSessionResponse(session))
}

// JoinSession — POST /api/v1/sessions/join?code=K.
func (h *APIHandler) JoinSession(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	var code string
	if err := runtime.BindQueryParameter("form", true, true, "code", r.URL.Query(), &code); err != nil {
		apierrors.ValidationError(w, "Некорректный параметр code")
		return
	}

	session, err := h.sessions.JoinSession(r.Context(), code, userID)
	if err != nil {
		h.writeServiceError(w, r, err, "join_session")
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(session))
}

// GetSession — GET /api/v1/sessions/{session_id}.
func (h *APIHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	sessionID, ok := pathUUID(w, r, "session_id")
	if !ok {
		return
	}

	session, err := h.sessions.GetSession(r.Context(), sessionID, userID)
	if err != nil {
		h.writeServiceError(w, r, err, "get_session")
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(session))
}

// ListParticipants — GET /api/v1/sessions/{session_id}/participants.
func (h *APIHandler) ListParticipants(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	sessionID, ok := pathUUID(w, r, "session_id")
	if !ok {
		return
	}

	participants, err := h.sessions.ListParticipants(r.Context(), sessionID, userID)
	if err != nil {
		h.writeServiceError(w, r, err, "list_participants")
		return
	}

	resp := make([]ParticipantResponse, 0, len(participants))
	for _, p := range participants {
		resp = append(resp, ParticipantResponse{
			ID:        p.ID,
			SessionID: p.SessionID,
			UserID:    p.UserID,
			JoinedAt:  p.JoinedAt,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// LeaveSession — POST /api/v1/sessions/{session_id}/leave.
func (h *APIHandler) LeaveSession(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	sessionID, ok := pathUUID(w, r, "session_id")
	if !ok {
		return
	}

	if err := h.sessions.LeaveSession(r.Context(), sessionID, userID); err != nil {
		h.writeServiceError(w, r, err, "leave_session")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// EndSession — POST /api/v1/sessions/{session_id}/end.
func (h *APIHandler) EndSession(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	sessionID, ok := pathUUID(w, r, "session_id")
	if !ok {
		return
	}

	if err := h.sessions.EndSession(r.Context(), sessionID, userID); err != nil {
		h.writeServiceError(w, r, err, "end_session")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SessionEvents — GET /api/v1/sessions/{session_id}/events.
// Переключает соединение на websocket только для участника сессии.
func (h *APIHandler) SessionEvents(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	sessionID, ok := pathUUID(w, r, "session_id")
	if !ok {
		return
	}
	if h.events == nil {
		apierrors.NotFound(w, "Подписка на события отключена")
		return
	}

	if _, err := h.sessions.GetSession(r.Context(), sessionID, userID); err != nil {
		h.writeServiceError(w, r, err, "session_events")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrader уже ответил клиенту
		h.logger.Debug("Ошибка websocket upgrade",
			slog.String("session_id", sessionID),
			slog.String("error", err.Error()),
		)
		return
	}
	// Таймауты HTTP-сервера не распространяются на подписку
	_ = conn.SetReadDeadline(time.Time{})

	if err := h.events.Serve(sessionID, conn); err != nil {
		h.logger.Warn("Подписка на события отклонена",
			slog.String("session_id", sessionID),
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, err.Error()))
		_ = conn.Close()
	}
}
