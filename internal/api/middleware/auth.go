// auth.go — аутентификация запросов Share Module.
// Bearer-токен разрешается в user_id цепочкой резолверов:
// JWT (подпись через JWKS, claim sub) и непрозрачные токены из tokenstore.
// Авторизация (участник / создатель / автор файла) выполняется в сервисном слое.
package middleware

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/MicahParks/jwkset"
	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"

	apierrors "github.com/bigkaa/goartstore/share-module/internal/api/errors"
	"github.com/bigkaa/goartstore/share-module/internal/tokenstore"
)

// ErrInvalidCredentials — резолвер не признал токен.
// Цепочка переходит к следующему резолверу.
var ErrInvalidCredentials = errors.New("невалидные учётные данные")

// contextKey — тип для ключей контекста (избегаем коллизий).
type contextKey string

const (
	// ContextKeyUserID — идентификатор аутентифицированного пользователя.
	ContextKeyUserID contextKey = "user_id"
	// ContextKeyOpaqueToken — запрос аутентифицирован непрозрачным токеном.
	ContextKeyOpaqueToken contextKey = "opaque_token"
)

// IdentityResolver разрешает Bearer-токен в идентификатор пользователя.
type IdentityResolver interface {
	// ResolveIdentity возвращает user_id или ошибку, оборачивающую ErrInvalidCredentials.
	// Прочие ошибки означают недоступность источника идентичности.
	ResolveIdentity(ctx context.Context, credential string) (string, error)
}

// --- JWT ---

// JWTAuth — проверка JWT через JWKS Identity Provider.
type JWTAuth struct {
	jwks      keyfunc.Keyfunc
	logger    *slog.Logger
	issuer    string
	jwtLeeway time.Duration
}

// NewJWTAuth создаёт JWT-резолвер с JWKS Identity Provider.
// jwksURL — URL к JWKS endpoint.
// caCertPath — опциональный путь к CA-сертификату для TLS.
// issuer — ожидаемый issuer JWT (может быть пустым — issuer не проверяется).
// jwksClientTimeout — таймаут HTTP-клиента JWKS.
// jwksRefreshInterval — интервал обновления JWKS-ключей.
// jwtLeeway — допустимое отклонение времени при проверке JWT.
func NewJWTAuth(
	jwksURL string,
	caCertPath string,
	issuer string,
	jwksClientTimeout time.Duration,
	jwksRefreshInterval time.Duration,
	jwtLeeway time.Duration,
	logger *slog.Logger,
) (*JWTAuth, error) {
	// HTTP-клиент для JWKS (с кастомным CA или стандартный)
	httpClient := &http.Client{Timeout: jwksClientTimeout}
	if caCertPath != "" {
		var err error
		httpClient, err = httpClientWithCA(caCertPath, jwksClientTimeout)
		if err != nil {
			return nil, fmt.Errorf("загрузка CA-сертификата %s: %w", caCertPath, err)
		}
		logger.Info("CA-сертификат для JWKS добавлен в пул доверия",
			slog.String("ca_cert", caCertPath),
		)
	}

	// JWKS Storage с фоновым обновлением.
	// NoErrorReturnFirstHTTPReq — стартуем даже если IdP ещё недоступен.
	storage, err := jwkset.NewStorageFromHTTP(jwksURL, jwkset.HTTPClientStorageOptions{
		Client:                    httpClient,
		NoErrorReturnFirstHTTPReq: true,
		RefreshInterval:           jwksRefreshInterval,
		RefreshErrorHandler: func(_ context.Context, err error) {
			logger.Error("Ошибка обновления JWKS",
				slog.String("error", err.Error()),
				slog.String("url", jwksURL),
			)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("создание JWKS storage: %w", err)
	}

	k, err := keyfunc.New(keyfunc.Options{
		Storage: storage,
	})
	if err != nil {
		return nil, fmt.Errorf("создание keyfunc: %w", err)
	}

	return NewJWTAuthWithKeyfunc(k, issuer, jwtLeeway, logger), nil
}

// NewJWTAuthWithKeyfunc создаёт JWT-резолвер с предоставленной keyfunc.
// Используется в тестах для подстановки mock JWKS.
func NewJWTAuthWithKeyfunc(kf keyfunc.Keyfunc, issuer string, jwtLeeway time.Duration, logger *slog.Logger) *JWTAuth {
	return &JWTAuth{
		jwks:      kf,
		logger:    logger.With(slog.String("component", "jwt_auth")),
		issuer:    issuer,
		jwtLeeway: jwtLeeway,
	}
}

// httpClientWithCA создаёт HTTP-клиент с кастомным CA-сертификатом.
func httpClientWithCA(caCertPath string, timeout time.Duration) (*http.Client, error) {
	caCert, err := os.ReadFile(caCertPath)
	if err != nil {
		return nil, err
	}

	caCertPool, err := x509.SystemCertPool()
	if err != nil {
		caCertPool = x509.NewCertPool()
	}
	caCertPool.AppendCertsFromPEM(caCert)

	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				RootCAs: caCertPool,
			},
		},
	}, nil
}

// ResolveIdentity валидирует подпись (RS256), exp и issuer, возвращает sub.
// Строки, не похожие на JWT, отклоняются без разбора.
func (j *JWTAuth) ResolveIdentity(ctx context.Context, tokenString string) (string, error) {
	if strings.Count(tokenString, ".") != 2 {
		return "", ErrInvalidCredentials
	}

	claims := &jwt.RegisteredClaims{}
	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(j.jwtLeeway),
	}
	if j.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(j.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, claims, j.jwks.KeyfuncCtx(ctx), parserOpts...)
	if err != nil {
		j.logger.Debug("JWT валидация не пройдена", slog.String("error", err.Error()))
		return "", fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
	}
	if !token.Valid {
		return "", ErrInvalidCredentials
	}

	subject, err := claims.GetSubject()
	if err != nil || subject == "" {
		return "", fmt.Errorf("%w: отсутствует sub в токене", ErrInvalidCredentials)
	}
	return subject, nil
}

// --- Непрозрачные токены ---

// TokenResolver разрешает токены, выданные tokenstore.
type TokenResolver struct {
	store tokenstore.Store
}

// NewTokenResolver создаёт резолвер поверх хранилища токенов.
func NewTokenResolver(store tokenstore.Store) *TokenResolver {
	return &TokenResolver{store: store}
}

// ResolveIdentity возвращает user_id, за которым закреплён токен.
func (t *TokenResolver) ResolveIdentity(ctx context.Context, token string) (string, error) {
	userID, err := t.store.Resolve(ctx, token)
	if err != nil {
		if errors.Is(err, tokenstore.ErrUnknownToken) {
			return "", ErrInvalidCredentials
		}
		return "", fmt.Errorf("хранилище токенов: %w", err)
	}
	return userID, nil
}

// --- Middleware ---

// Authenticator — middleware, требующий аутентифицированного пользователя.
type Authenticator struct {
	resolvers []IdentityResolver
	logger    *slog.Logger
}

// NewAuthenticator создаёт middleware с цепочкой резолверов.
// Резолверы опрашиваются по порядку, побеждает первый признавший токен.
func NewAuthenticator(logger *slog.Logger, resolvers ...IdentityResolver) *Authenticator {
	return &Authenticator{
		resolvers: resolvers,
		logger:    logger.With(slog.String("component", "auth")),
	}
}

// Middleware возвращает HTTP middleware аутентификации.
// Без идентичности запрос завершается 401.
func (a *Authenticator) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Извлекаем Bearer token
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				apierrors.Unauthorized(w, "Отсутствует заголовок Authorization")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				apierrors.Unauthorized(w, "Неверный формат Authorization: ожидается Bearer <token>")
				return
			}

			credential := strings.TrimSpace(parts[1])
			if credential == "" {
				apierrors.Unauthorized(w, "Пустой Bearer token")
				return
			}

			userID, res, err := a.resolve(r.Context(), credential)
			if err != nil {
				if errors.Is(err, ErrInvalidCredentials) {
					apierrors.Unauthorized(w, "Невалидный или просроченный токен")
					return
				}
				a.logger.Error("Источник идентичности недоступен",
					slog.String("error", err.Error()),
					slog.String("remote_addr", r.RemoteAddr),
				)
				apierrors.InternalError(w, "Не удалось проверить токен")
				return
			}

			ctx := WithUserID(r.Context(), userID)
			if _, ok := res.(*TokenResolver); ok {
				ctx = WithOpaqueToken(ctx)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// resolve опрашивает резолверы по порядку. Ошибка недоступности
// возвращается, только если ни один резолвер не признал токен.
func (a *Authenticator) resolve(ctx context.Context, credential string) (string, IdentityResolver, error) {
	var failure error
	for _, res := range a.resolvers {
		userID, err := res.ResolveIdentity(ctx, credential)
		if err == nil && userID != "" {
			return userID, res, nil
		}
		if err != nil && !errors.Is(err, ErrInvalidCredentials) && failure == nil {
			failure = err
		}
	}
	if failure != nil {
		return "", nil, failure
	}
	return "", nil, ErrInvalidCredentials
}

// --- Context helpers ---

// WithUserID помещает user_id в контекст.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ContextKeyUserID, userID)
}

// UserIDFromContext извлекает user_id из контекста запроса.
// Возвращает пустую строку, если пользователь не аутентифицирован.
func UserIDFromContext(ctx context.Context) string {
	userID, _ := ctx.Value(ContextKeyUserID).(string)
	return userID
}

// --- ReadinessChecker для JWKS ---

// JWKSReadinessChecker — проверка доступности Identity Provider через JWKS.
type JWKSReadinessChecker struct {
	jwksURL string
	client  *http.Client
}

// NewJWKSReadinessChecker создаёт checker доступности JWKS endpoint.
func NewJWKSReadinessChecker(jwksURL, caCertPath string, readinessTimeout time.Duration) (*JWKSReadinessChecker, error) {
	client := &http.Client{Timeout: readinessTimeout}
	if caCertPath != "" {
		var err error
		client, err = httpClientWithCA(caCertPath, readinessTimeout)
		if err != nil {
			return nil, fmt.Errorf("загрузка CA для readiness checker: %w", err)
		}
	}

	return &JWKSReadinessChecker{
		jwksURL: jwksURL,
		client:  client,
	}, nil
}

const statusFail = "fail"

// CheckReady проверяет доступность JWKS endpoint.
func (k *JWKSReadinessChecker) CheckReady() (status, message string) {
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, k.jwksURL, http.NoBody)
	if err != nil {
		return statusFail, "ошибка создания запроса: " + err.Error()
	}
	resp, err := k.client.Do(req) //nolint:gosec // G704: URL из конфигурации
	if err != nil {
		return statusFail, fmt.Sprintf("JWKS недоступен: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusFail, fmt.Sprintf("JWKS вернул статус %d", resp.StatusCode)
	}

	var jwksResp struct {
		Keys []json.RawMessage `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&jwksResp); err != nil {
		return "degraded", fmt.Sprintf("JWKS: невалидный JSON: %v", err)
	}

	if len(jwksResp.Keys) == 0 {
		return "degraded", "JWKS: нет ключей"
	}

	return "ok", fmt.Sprintf("JWKS доступен, ключей: %d", len(jwksResp.Keys))
}

// WithOpaqueToken помечает запрос как аутентифицированный непрозрачным токеном.
func WithOpaqueToken(ctx context.Context) context.Context {
	return context.WithValue(ctx, ContextKeyOpaqueToken, true)
}

// IsOpaqueToken сообщает, аутентифицирован ли запрос непрозрачным токеном.
func IsOpaqueToken(ctx context.Context) bool {
	opaque, _ := ctx.Value(ContextKeyOpaqueToken).(bool)
	return opaque
}
