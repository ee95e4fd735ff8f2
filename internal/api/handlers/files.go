// files.go — обработчики файлов сессии: расшаривание, список,
// просмотр, скачивание, удаление из сессии.
package handlers

import (
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/oapi-codegen/runtime"
	openapi_types "github.com/oapi-codegen/runtime/types"

	apierrors "github.com/bigkaa/goartstore/share-module/internal/api/errors"
	"github.com/bigkaa/goartstore/share-module/internal/domain/model"
)

// SharedFileResponse — файл сессии в API. Ключ хранилища наружу не отдаётся.
type SharedFileResponse struct {
	ID             string    `json:"id"`
	SessionID      string    `json:"session_id"`
	FileID         string    `json:"file_id"`
	SharedByUserID string    `json:"shared_by_user_id"`
	SharedAt       time.Time `json:"shared_at"`
	DownloadCount  int64     `json:"download_count"`
	FileName       string    `json:"file_name"`
	FileSize       int64     `json:"file_size"`
	ContentType    string    `json:"content_type"`
}

func toSharedFileResponse(f *model.SharedFile) SharedFileResponse {
	return SharedFileResponse{
		ID:             f.ID,
		SessionID:      f.SessionID,
		FileID:         f.FileID,
		SharedByUserID: f.SharedByUserID,
		SharedAt:       f.SharedAt,
		DownloadCount:  f.DownloadCount,
		FileName:       f.FileName,
		FileSize:       f.FileSize,
		ContentType:    f.ContentType,
	}
}

// ShareFile — POST /api/v1/sessions/{session_id}/files?file_id=F.
func (h *APIHandler) ShareFile(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	sessionID, ok := pathUUID(w, r, "session_id")
	if !ok {
		return
	}

	var fileID openapi_types.UUID
	if err := runtime.BindQueryParameter("form", true, true, "file_id", r.URL.Query(), &fileID); err != nil {
		apierrors.ValidationError(w, "Некорректный параметр file_id")
		return
	}

	shared, err := h.sessions.ShareFile(r.Context(), sessionID, fileID.String(), userID)
	if err != nil {
		h.writeServiceError(w, r, err, "share_file")
		return
	}
	writeJSON(w, http.StatusOK, toSharedFileResponse(shared))
}

// ListSharedFiles — GET /api/v1/sessions/{session_id}/files.
func (h *APIHandler) ListSharedFiles(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	sessionID, ok := pathUUID(w, r, "session_id")
	if !ok {
		return
	}

	files, err := h.sessions.ListSharedFiles(r.Context(), sessionID, userID)
	if err != nil {
		h.writeServiceError(w, r, err, "list_shared_files")
		return
	}

	resp := make([]SharedFileResponse, 0, len(files))
	for _, f := range files {
		resp = append(resp, toSharedFileResponse(f))
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetSharedFile — GET /api/v1/sessions/{session_id}/files/{shared_file_id}.
func (h *APIHandler) GetSharedFile(w http.ResponseWriter, r *http.Request) {
	userID, sessionID, sharedFileID, ok := sharedFileParams(w, r)
	if !ok {
		return
	}

	shared, err := h.sessions.GetSharedFile(r.Context(), sessionID, sharedFileID, userID)
	if err != nil {
		h.writeServiceError(w, r, err, "get_shared_file")
		return
	}
	writeJSON(w, http.StatusOK, toSharedFileResponse(shared))
}

// RemoveSharedFile — DELETE /api/v1/sessions/{session_id}/files/{shared_file_id}.
func (h *APIHandler) RemoveSharedFile(w http.ResponseWriter, r *http.Request) {
	userID, sessionID, sharedFileID, ok := sharedFileParams(w, r)
	if !ok {
		return
	}

	if err := h.sessions.RemoveSharedFile(r.Context(), sessionID, sharedFileID, userID); err != nil {
		h.writeServiceError(w, r, err, "remove_shared_file")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DownloadSharedFile — GET /api/v1/sessions/{session_id}/files/{shared_file_id}/download.
// Счётчик скачиваний увеличивается до начала передачи тела.
func (h *APIHandler) DownloadSharedFile(w http.ResponseWriter, r *http.Request) {
	userID, sessionID, sharedFileID, ok := sharedFileParams(w, r)
	if !ok {
		return
	}

	dl, err := h.sessions.OpenSharedFile(r.Context(), sessionID, sharedFileID, userID)
	if err != nil {
		h.writeServiceError(w, r, err, "download_shared_file")
		return
	}
	defer dl.Close()

	w.Header().Set("Content-Type", dl.ContentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{
		"filename": dl.FileName,
	}))
	if dl.Size >= 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(dl.Size, 10))
	}
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, dl); err != nil {
		// Заголовки уже отправлены, остаётся только залогировать
		h.logger.Warn("Передача файла прервана",
			slog.String("shared_file_id", sharedFileID),
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
	}
}

// sharedFileParams связывает пользователя и оба UUID пути.
func sharedFileParams(w http.ResponseWriter, r *http.Request) (userID, sessionID, sharedFileID string, ok bool) {
	if userID, ok = currentUser(w, r); !ok {
		return
	}
	if sessionID, ok = pathUUID(w, r, "session_id"); !ok {
		return
	}
	sharedFileID, ok = pathUUID(w, r, "shared_file_id")
	return
}
