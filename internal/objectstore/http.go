package objectstore

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

// HTTPStore — объекты во внешнем Storage Element, доступном по HTTP.
// Формат запроса: GET {baseURL}/api/v1/files/{key}/download.
type HTTPStore struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewHTTPStore создаёт HTTP-бэкенд.
// caCertPath — путь к CA-сертификату для TLS (пустая строка — стандартный пул).
// token — статический Bearer-токен (пустая строка — без авторизации).
func NewHTTPStore(baseURL, token, caCertPath string, timeout time.Duration, logger *slog.Logger) (*HTTPStore, error) {
	transport := &http.Transport{
		MaxIdleConnsPerHost: 10,
	}

	if caCertPath != "" {
		tlsConfig, err := buildTLSConfig(caCertPath)
		if err != nil {
			return nil, fmt.Errorf("загрузка CA-сертификата хранилища: %w", err)
		}
		transport.TLSClientConfig = tlsConfig
		logger.Info("CA-сертификат хранилища добавлен в пул доверия",
			slog.String("ca_cert", caCertPath),
		)
	}

	return &HTTPStore{
		baseURL: normalizeURL(baseURL),
		token:   token,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		logger: logger.With(slog.String("component", "http_objectstore")),
	}, nil
}

// Open выполняет streaming-запрос объекта. 404 превращается в ErrNotFound.
func (s *HTTPStore) Open(ctx context.Context, key string) (*Object, error) {
	reqURL := fmt.Sprintf("%s/api/v1/files/%s/download", s.baseURL, url.PathEscape(key))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("создание запроса download: %w", err)
	}
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.httpClient.Do(req) //nolint:gosec // G704: URL из конфигурации
	if err != nil {
		return nil, fmt.Errorf("запрос download к %s: %w", s.baseURL, err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
		// Body закрывает вызывающий код
		return &Object{
			Body:        resp.Body,
			Size:        resp.ContentLength,
			ContentType: resp.Header.Get("Content-Type"),
		}, nil
	case http.StatusNotFound:
		drain(resp.Body)
		return nil, ErrNotFound
	default:
		drain(resp.Body)
		s.logger.Warn("Хранилище вернуло неожиданный статус",
			slog.String("key", key),
			slog.Int("status", resp.StatusCode),
		)
		return nil, fmt.Errorf("хранилище вернуло статус %d для объекта %s", resp.StatusCode, key)
	}
}

func drain(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 64<<10))
	_ = body.Close()
}

// buildTLSConfig создаёт TLS-конфигурацию с кастомным CA-сертификатом.
func buildTLSConfig(caCertPath string) (*tls.Config, error) {
	caCert, err := os.ReadFile(caCertPath)
	if err != nil {
		return nil, fmt.Errorf("чтение CA-сертификата: %w", err)
	}

	caCertPool, err := x509.SystemCertPool()
	if err != nil {
		caCertPool = x509.NewCertPool()
	}
	if !caCertPool.AppendCertsFromPEM(caCert) {
		return nil, fmt.Errorf("файл %s не содержит PEM-сертификатов", caCertPath)
	}

	return &tls.Config{
		RootCAs:    caCertPool,
		MinVersion: tls.VersionTLS12,
	}, nil
}

// normalizeURL убирает trailing slash из URL.
func normalizeURL(rawURL string) string {
	return strings.TrimRight(rawURL, "/")
}
