// Пакет config — загрузка и валидация конфигурации Share Module
// из переменных окружения (и опционального .env файла).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Бэкенды хранилища токенов.
const (
	TokenStoreMemory = "memory"
	TokenStoreRedis  = "redis"
	TokenStoreNone   = "none"
)

// Бэкенды объектного хранилища.
const (
	StorageBackendDir   = "dir"
	StorageBackendMinio = "minio"
	StorageBackendHTTP  = "http"
)

// Config содержит все параметры конфигурации Share Module.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера (по умолчанию 8040)
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string

	// --- HTTP Server Timeouts ---

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration

	// --- PostgreSQL ---

	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string
	DBSSLMode  string

	// --- Сессии ---

	// Время жизни сессии с момента создания (по умолчанию 1h)
	SessionTTL time.Duration
	// Интервал фоновой деактивации просроченных сессий (0 — выключено)
	SweepInterval time.Duration
	// Сколько хранить неактивные сессии перед удалением (0 — не удалять)
	Retention time.Duration
	// Ограничение попыток входа по коду: запросов в секунду на пользователя
	JoinRate float64
	// Допустимый всплеск попыток входа
	JoinBurst int
	// Максимум websocket-подписчиков на одну сессию
	EventsMaxClients int

	// --- JWT (опционально) ---

	// URL JWKS endpoint. Пустой — JWT-аутентификация выключена.
	JWTJWKSURL string
	// Ожидаемый issuer (пустой — не проверяется)
	JWTIssuer string
	// Путь к CA-сертификату для JWKS
	JWTCACertPath string
	// Допустимое отклонение часов при проверке exp/nbf
	JWTLeeway time.Duration
	// Таймаут HTTP-клиента JWKS
	JWKSClientTimeout time.Duration
	// Интервал обновления JWKS
	JWKSRefreshInterval time.Duration

	// --- Хранилище непрозрачных токенов ---

	// none (по умолчанию), memory, redis.
	// memory наполняется только через POST /api/v1/tokens и требует JWT.
	TokenStore string
	// Время жизни выданного токена
	TokenTTL time.Duration
	// URL Redis (redis://host:port/db), обязателен для TokenStore=redis
	RedisURL string

	// --- Объектное хранилище ---

	// dir, minio, http
	StorageBackend string
	// Корневая директория для dir
	StorageDir string
	// Параметры MinIO / S3
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string //nolint:gosec // G101: поле конфигурации
	S3Bucket    string
	// Базовый URL и токен внешнего хранилища для http
	StorageHTTPURL    string
	StorageHTTPToken  string //nolint:gosec // G101: поле конфигурации
	StorageCACertPath string
	// Таймаут скачивания из внешнего хранилища
	StorageTimeout time.Duration
	// Время, на которое circuit breaker размыкается после серии ошибок
	StorageBreakerTimeout time.Duration

	// --- Каталог файлов ---

	CatalogCacheSize int
	CatalogCacheTTL  time.Duration

	// --- Мониторинг зависимостей ---

	DephealthGroup         string
	DephealthCheckInterval time.Duration
	DephealthIsEntry       bool

	// --- Graceful shutdown ---

	ShutdownTimeout time.Duration
}

// Load загружает конфигурацию из переменных окружения.
// Если рядом лежит .env (или файл из SM_ENV_FILE), его значения
// подставляются для незаданных переменных.
//
//nolint:gocyclo,cyclop // линейная загрузка параметров
func Load() (*Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	cfg := &Config{}
	var err error

	// --- Сервер ---

	cfg.Port, err = getEnvInt("SM_PORT", 8040)
	if err != nil {
		return nil, fmt.Errorf("SM_PORT: %w", err)
	}

	cfg.LogLevel, err = parseLogLevel(getEnvDefault("SM_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("SM_LOG_LEVEL: %w", err)
	}

	cfg.LogFormat = getEnvDefault("SM_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("SM_LOG_FORMAT: недопустимый формат %q, допустимые: json, text", cfg.LogFormat)
	}

	// --- HTTP Server Timeouts ---

	cfg.HTTPReadTimeout, err = getEnvDuration("SM_HTTP_READ_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("SM_HTTP_READ_TIMEOUT: %w", err)
	}
	cfg.HTTPWriteTimeout, err = getEnvDuration("SM_HTTP_WRITE_TIMEOUT", 5*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("SM_HTTP_WRITE_TIMEOUT: %w", err)
	}
	cfg.HTTPIdleTimeout, err = getEnvDuration("SM_HTTP_IDLE_TIMEOUT", 120*time.Second)
	if err != nil {
		return nil, fmt.Errorf("SM_HTTP_IDLE_TIMEOUT: %w", err)
	}

	// --- PostgreSQL ---

	if cfg.DBHost, err = getEnvRequired("SM_DB_HOST"); err != nil {
		return nil, err
	}
	cfg.DBPort, err = getEnvInt("SM_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("SM_DB_PORT: %w", err)
	}
	if cfg.DBName, err = getEnvRequired("SM_DB_NAME"); err != nil {
		return nil, err
	}
	if cfg.DBUser, err = getEnvRequired("SM_DB_USER"); err != nil {
		return nil, err
	}
	if cfg.DBPassword, err = getEnvRequired("SM_DB_PASSWORD"); err != nil {
		return nil, err
	}
	cfg.DBSSLMode = getEnvDefault("SM_DB_SSL_MODE", "disable")
	validSSLModes := map[string]bool{
		"disable": true, "require": true, "verify-ca": true, "verify-full": true,
	}
	if !validSSLModes[cfg.DBSSLMode] {
		return nil, fmt.Errorf("SM_DB_SSL_MODE: недопустимое значение %q, допустимые: disable, require, verify-ca, verify-full", cfg.DBSSLMode)
	}

	// --- Сессии ---

	cfg.SessionTTL, err = getEnvDurationFallback("SM_SESSION_TTL", time.Hour)
	if err != nil {
		return nil, fmt.Errorf("SM_SESSION_TTL: %w", err)
	}
	cfg.SweepInterval, err = getEnvDuration("SM_SWEEP_INTERVAL", 0)
	if err != nil {
		return nil, fmt.Errorf("SM_SWEEP_INTERVAL: %w", err)
	}
	cfg.Retention, err = getEnvDuration("SM_RETENTION", 0)
	if err != nil {
		return nil, fmt.Errorf("SM_RETENTION: %w", err)
	}
	cfg.JoinRate, err = getEnvFloat("SM_JOIN_RATE", 1)
	if err != nil {
		return nil, fmt.Errorf("SM_JOIN_RATE: %w", err)
	}
	cfg.JoinBurst, err = getEnvInt("SM_JOIN_BURST", 5)
	if err != nil {
		return nil, fmt.Errorf("SM_JOIN_BURST: %w", err)
	}
	cfg.EventsMaxClients, err = getEnvInt("SM_EVENTS_MAX_CLIENTS", 50)
	if err != nil {
		return nil, fmt.Errorf("SM_EVENTS_MAX_CLIENTS: %w", err)
	}

	// --- JWT ---

	cfg.JWTJWKSURL = getEnvDefault("SM_JWT_JWKS_URL", "")
	cfg.JWTIssuer = getEnvDefault("SM_JWT_ISSUER", "")
	cfg.JWTCACertPath = getEnvDefault("SM_JWT_CA_CERT_PATH", "")
	cfg.JWTLeeway, err = getEnvDuration("SM_JWT_LEEWAY", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("SM_JWT_LEEWAY: %w", err)
	}
	cfg.JWKSClientTimeout, err = getEnvDurationFallback("SM_JWKS_CLIENT_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("SM_JWKS_CLIENT_TIMEOUT: %w", err)
	}
	cfg.JWKSRefreshInterval, err = getEnvDurationFallback("SM_JWKS_REFRESH_INTERVAL", 15*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("SM_JWKS_REFRESH_INTERVAL: %w", err)
	}

	// --- Токены ---

	cfg.TokenStore = strings.ToLower(getEnvDefault("SM_TOKEN_STORE", TokenStoreNone))
	switch cfg.TokenStore {
	case TokenStoreMemory, TokenStoreNone:
	case TokenStoreRedis:
		if cfg.RedisURL, err = getEnvRequired("SM_REDIS_URL"); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("SM_TOKEN_STORE: недопустимое значение %q, допустимые: memory, redis, none", cfg.TokenStore)
	}
	cfg.TokenTTL, err = getEnvDurationFallback("SM_TOKEN_TTL", 24*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("SM_TOKEN_TTL: %w", err)
	}

	// Без JWT токены выдаёт только sharectl, а он работает лишь с Redis:
	// memory-хранилище в таком режиме осталось бы пустым.
	if cfg.JWTJWKSURL == "" && cfg.TokenStore != TokenStoreRedis {
		return nil, errors.New("не настроен способ аутентификации: задайте SM_JWT_JWKS_URL или SM_TOKEN_STORE=redis")
	}

	// --- Объектное хранилище ---

	cfg.StorageBackend = strings.ToLower(getEnvDefault("SM_STORAGE_BACKEND", StorageBackendDir))
	switch cfg.StorageBackend {
	case StorageBackendDir:
		cfg.StorageDir = getEnvDefault("SM_STORAGE_DIR", "/data/share")
	case StorageBackendMinio:
		for key, dst := range map[string]*string{
			"SM_S3_ENDPOINT":   &cfg.S3Endpoint,
			"SM_S3_ACCESS_KEY": &cfg.S3AccessKey,
			"SM_S3_SECRET_KEY": &cfg.S3SecretKey,
			"SM_S3_BUCKET":     &cfg.S3Bucket,
		} {
			if *dst, err = getEnvRequired(key); err != nil {
				return nil, err
			}
		}
	case StorageBackendHTTP:
		if cfg.StorageHTTPURL, err = getEnvRequired("SM_STORAGE_HTTP_URL"); err != nil {
			return nil, err
		}
		cfg.StorageHTTPURL = strings.TrimRight(cfg.StorageHTTPURL, "/")
		cfg.StorageHTTPToken = getEnvDefault("SM_STORAGE_HTTP_TOKEN", "")
		cfg.StorageCACertPath = getEnvDefault("SM_STORAGE_CA_CERT_PATH", "")
	default:
		return nil, fmt.Errorf("SM_STORAGE_BACKEND: недопустимое значение %q, допустимые: dir, minio, http", cfg.StorageBackend)
	}
	cfg.StorageTimeout, err = getEnvDurationFallback("SM_STORAGE_TIMEOUT", 5*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("SM_STORAGE_TIMEOUT: %w", err)
	}
	cfg.StorageBreakerTimeout, err = getEnvDurationFallback("SM_STORAGE_BREAKER_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("SM_STORAGE_BREAKER_TIMEOUT: %w", err)
	}

	// --- Каталог файлов ---

	cfg.CatalogCacheSize, err = getEnvInt("SM_CATALOG_CACHE_SIZE", 1000)
	if err != nil {
		return nil, fmt.Errorf("SM_CATALOG_CACHE_SIZE: %w", err)
	}
	if cfg.CatalogCacheSize <= 0 {
		return nil, fmt.Errorf("SM_CATALOG_CACHE_SIZE: значение должно быть > 0")
	}
	cfg.CatalogCacheTTL, err = getEnvDurationFallback("SM_CATALOG_CACHE_TTL", time.Minute)
	if err != nil {
		return nil, fmt.Errorf("SM_CATALOG_CACHE_TTL: %w", err)
	}

	// --- Мониторинг зависимостей ---

	cfg.DephealthGroup = getEnvDefault("SM_DEPHEALTH_GROUP", "goartstore")
	cfg.DephealthCheckInterval, err = getEnvDurationFallback("SM_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("SM_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}
	cfg.DephealthIsEntry, err = getEnvBool("DEPHEALTH_ISENTRY", false)
	if err != nil {
		return nil, fmt.Errorf("DEPHEALTH_ISENTRY: %w", err)
	}

	// --- Graceful shutdown ---

	cfg.ShutdownTimeout, err = getEnvDuration("SM_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("SM_SHUTDOWN_TIMEOUT: %w", err)
	}

	return cfg, nil
}

// DatabaseDSN возвращает строку подключения к PostgreSQL.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword, c.DBSSLMode,
	)
}

// DatabaseURL возвращает URL подключения (формат postgres://),
// используется для лейблов dephealth и golang-migrate.
func (c *Config) DatabaseURL(scheme string) string {
	return fmt.Sprintf(
		"%s://%s:%s@%s:%d/%s?sslmode=%s",
		scheme, c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode,
	)
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// loadDotEnv подгружает .env без перезаписи уже заданных переменных.
// Отсутствие файла ошибкой не считается.
func loadDotEnv() error {
	path := getEnvDefault("SM_ENV_FILE", ".env")
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("чтение %s: %w", path, err)
	}
	return nil
}

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvFloat возвращает значение float64 из переменной окружения.
func getEnvFloat(key string, defaultVal float64) (float64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, fmt.Errorf("некорректное число: %q", val)
	}
	if f <= 0 {
		return 0, fmt.Errorf("значение должно быть > 0")
	}
	return f, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 15m)", val)
	}
	if d < 0 {
		return 0, fmt.Errorf("значение не может быть отрицательным")
	}
	return d, nil
}

// getEnvDurationFallback возвращает строго положительную длительность.
// Если переменная не задана, используется fallbackVal.
func getEnvDurationFallback(key string, fallbackVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return fallbackVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 15m)", val)
	}
	if d <= 0 {
		return 0, fmt.Errorf("значение должно быть > 0")
	}
	return d, nil
}

// getEnvBool возвращает булево значение переменной окружения или значение по умолчанию.
func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("некорректное булево значение: %q (допустимые: true, false, 1, 0)", val)
	}
	return b, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}
