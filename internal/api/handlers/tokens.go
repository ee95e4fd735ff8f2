// tokens.go — выдача непрозрачных токенов пользователю, вошедшему по JWT.
package handlers

import (
	"log/slog"
	"net/http"

	apierrors "github.com/bigkaa/goartstore/share-module/internal/api/errors"
	"github.com/bigkaa/goartstore/share-module/internal/api/middleware"
)

// TokenResponse — выданный токен.
type TokenResponse struct {
	Token     string `json:"token"`
	TokenType string `json:"token_type"`
}

// IssueToken — POST /api/v1/tokens.
// Токен выдаётся только по JWT: непрозрачным токеном новый не получить,
// иначе отзыв токена можно было бы обойти.
func (h *APIHandler) IssueToken(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	if h.tokens == nil {
		apierrors.NotFound(w, "Выдача токенов отключена")
		return
	}
	if middleware.IsOpaqueToken(r.Context()) {
		apierrors.Forbidden(w, "Новый токен выдаётся только по JWT")
		return
	}

	token, err := h.tokens.Issue(r.Context(), userID)
	if err != nil {
		h.logger.Error("Ошибка выдачи токена",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		apierrors.InternalError(w, "Не удалось выдать токен")
		return
	}

	writeJSON(w, http.StatusCreated, TokenResponse{Token: token, TokenType: "Bearer"})
}
