package openapi

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validID = "0b8f5a34-5d7e-4e8c-9a51-2f1c3f7a9b10"

func TestDocument_LoadsAndValidates(t *testing.T) {
	doc, err := Document()
	require.NoError(t, err)

	for _, path := range []string{
		"/api/v1/tokens",
		"/api/v1/sessions",
		"/api/v1/sessions/join",
		"/api/v1/sessions/{session_id}",
		"/api/v1/sessions/{session_id}/files/{shared_file_id}/download",
		"/api/v1/sessions/{session_id}/events",
	} {
		assert.NotNil(t, doc.Paths.Find(path), "путь %s отсутствует в контракте", path)
	}
}

func newTestValidator(t *testing.T) http.Handler {
	t.Helper()
	v, err := NewValidator(slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return v.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
}

func TestValidator(t *testing.T) {
	handler := newTestValidator(t)

	tests := []struct {
		name   string
		method string
		target string
		status int
	}{
		{"корректный get", http.MethodGet, "/api/v1/sessions/" + validID, http.StatusTeapot},
		{"session_id не UUID", http.MethodGet, "/api/v1/sessions/not-a-uuid/files", http.StatusBadRequest},
		{"join с кодом", http.MethodPost, "/api/v1/sessions/join?code=ab12cd34", http.StatusTeapot},
		{"join без кода", http.MethodPost, "/api/v1/sessions/join", http.StatusBadRequest},
		{"share без file_id", http.MethodPost, "/api/v1/sessions/" + validID + "/files", http.StatusBadRequest},
		{"share с плохим file_id", http.MethodPost, "/api/v1/sessions/" + validID + "/files?file_id=42", http.StatusBadRequest},
		{"share корректный", http.MethodPost, "/api/v1/sessions/" + validID + "/files?file_id=" + validID, http.StatusTeapot},
		{"download", http.MethodGet, "/api/v1/sessions/" + validID + "/files/" + validID + "/download", http.StatusTeapot},
		{"путь вне контракта", http.MethodGet, "/not/in/contract", http.StatusTeapot},
		{"health", http.MethodGet, "/health/live", http.StatusTeapot},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.target, nil))
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			if tt.status == http.StatusBadRequest {
				assert.Contains(t, rec.Body.String(), "VALIDATION_ERROR")
			}
		})
	}
}
