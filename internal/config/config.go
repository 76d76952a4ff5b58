// Пакет config — загрузка и валидация конфигурации Onboarding Module
// из переменных окружения.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Config содержит все параметры конфигурации Onboarding Module.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера (диапазон 8040-8049)
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string

	// --- HTTP Server Timeouts ---

	// Таймаут чтения HTTP-сервера (по умолчанию 30s)
	HTTPReadTimeout time.Duration
	// Таймаут записи HTTP-сервера (по умолчанию 60s)
	HTTPWriteTimeout time.Duration
	// Таймаут простоя HTTP-сервера (по умолчанию 120s)
	HTTPIdleTimeout time.Duration

	// --- PostgreSQL ---

	// Хост PostgreSQL
	DBHost string
	// Порт PostgreSQL
	DBPort int
	// Имя базы данных
	DBName string
	// Имя пользователя PostgreSQL
	DBUser string
	// Пароль пользователя PostgreSQL
	DBPassword string
	// Режим SSL: disable, require, verify-ca, verify-full
	DBSSLMode string

	// --- Auth Provider (GoTrue-совместимый) ---

	// Базовый URL Auth Provider (например, https://auth.craftlink.app)
	AuthURL string
	// URL JWKS endpoint (авто-вычисляется из AuthURL, если не задан)
	AuthJWKSURL string
	// Ожидаемый issuer JWT (пустая строка — issuer не проверяется)
	AuthIssuer string
	// Service key для административных вызовов Auth Provider (logout)
	AuthServiceKey string
	// Путь к CA-сертификату для TLS-соединений с Auth Provider (опционально)
	AuthCACertPath string
	// Таймаут HTTP-запросов к Auth Provider (logout)
	AuthTimeout time.Duration
	// Таймаут HTTP-клиента JWKS
	JWKSClientTimeout time.Duration
	// Интервал фонового обновления JWKS-ключей
	JWKSRefreshInterval time.Duration
	// Допустимое отклонение времени при проверке JWT
	JWTLeeway time.Duration

	// --- Core API ---

	// Базовый URL Core API (например, http://core-api:8080)
	CoreURL string
	// Таймаут HTTP-запросов к Core API
	CoreTimeout time.Duration
	// Путь к CA-сертификату для TLS-соединений с Core API (опционально)
	CoreCACertPath string

	// --- Кэш профилей ---

	// Максимальное количество записей LRU-кэша профилей
	ProfileCacheSize int
	// TTL записи кэша профилей
	ProfileCacheTTL time.Duration

	// --- Разрешение инвайтов ---

	// Максимальное количество попыток принятия инвайта при гонке
	// с созданием клиентского профиля
	InviteRetryMax int
	// Базовая задержка между попытками (итоговая = base * номер попытки)
	InviteRetryBaseDelay time.Duration

	// --- Уведомления ---

	// Максимальный размер очереди уведомлений одного пользователя
	NoticeBuffer int

	// --- Topologymetrics ---

	// Имя группы в метриках dephealth
	DephealthGroup string
	// Интервал проверки зависимостей
	DephealthCheckInterval time.Duration
	// Пометить зависимости лейблом isentry=yes
	DephealthIsEntry bool

	// --- Graceful shutdown ---

	// Таймаут graceful shutdown (по умолчанию 5s)
	ShutdownTimeout time.Duration
}

// DatabaseDSN возвращает строку подключения PostgreSQL.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode,
	)
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// --- Сервер ---

	// OM_PORT — порт HTTP-сервера (по умолчанию 8040)
	cfg.Port, err = getEnvInt("OM_PORT", 8040)
	if err != nil {
		return nil, fmt.Errorf("OM_PORT: %w", err)
	}
	if cfg.Port < 8040 || cfg.Port > 8049 {
		return nil, fmt.Errorf("OM_PORT: значение %d вне допустимого диапазона 8040-8049", cfg.Port)
	}

	// OM_LOG_LEVEL — уровень логирования (по умолчанию info)
	cfg.LogLevel, err = parseLogLevel(getEnvDefault("OM_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("OM_LOG_LEVEL: %w", err)
	}

	// OM_LOG_FORMAT — формат логов (по умолчанию json)
	cfg.LogFormat = getEnvDefault("OM_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("OM_LOG_FORMAT: недопустимый формат %q, допустимые: json, text", cfg.LogFormat)
	}

	// --- HTTP Server Timeouts ---

	cfg.HTTPReadTimeout, err = getEnvDuration("OM_HTTP_READ_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("OM_HTTP_READ_TIMEOUT: %w", err)
	}
	cfg.HTTPWriteTimeout, err = getEnvDuration("OM_HTTP_WRITE_TIMEOUT", 60*time.Second)
	if err != nil {
		return nil, fmt.Errorf("OM_HTTP_WRITE_TIMEOUT: %w", err)
	}
	cfg.HTTPIdleTimeout, err = getEnvDuration("OM_HTTP_IDLE_TIMEOUT", 120*time.Second)
	if err != nil {
		return nil, fmt.Errorf("OM_HTTP_IDLE_TIMEOUT: %w", err)
	}

	// --- PostgreSQL ---

	// OM_DB_HOST — обязательный
	cfg.DBHost, err = getEnvRequired("OM_DB_HOST")
	if err != nil {
		return nil, err
	}

	cfg.DBPort, err = getEnvInt("OM_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("OM_DB_PORT: %w", err)
	}

	// OM_DB_NAME — обязательный
	cfg.DBName, err = getEnvRequired("OM_DB_NAME")
	if err != nil {
		return nil, err
	}

	// OM_DB_USER — обязательный
	cfg.DBUser, err = getEnvRequired("OM_DB_USER")
	if err != nil {
		return nil, err
	}

	// OM_DB_PASSWORD — обязательный
	cfg.DBPassword, err = getEnvRequired("OM_DB_PASSWORD")
	if err != nil {
		return nil, err
	}

	cfg.DBSSLMode = getEnvDefault("OM_DB_SSL_MODE", "disable")
	switch cfg.DBSSLMode {
	case "disable", "require", "verify-ca", "verify-full":
	default:
		return nil, fmt.Errorf("OM_DB_SSL_MODE: недопустимое значение %q", cfg.DBSSLMode)
	}

	// --- Auth Provider ---

	// OM_AUTH_URL — обязательный
	cfg.AuthURL, err = getEnvRequired("OM_AUTH_URL")
	if err != nil {
		return nil, err
	}
	cfg.AuthURL = strings.TrimRight(cfg.AuthURL, "/")

	// OM_AUTH_JWKS_URL — по умолчанию <OM_AUTH_URL>/.well-known/jwks.json
	cfg.AuthJWKSURL = getEnvDefault("OM_AUTH_JWKS_URL", cfg.AuthURL+"/.well-known/jwks.json")

	// OM_AUTH_ISSUER — опциональный (пустой — issuer не проверяется)
	cfg.AuthIssuer = getEnvDefault("OM_AUTH_ISSUER", "")

	// OM_AUTH_SERVICE_KEY — опциональный (без него logout revocation пропускается)
	cfg.AuthServiceKey = getEnvDefault("OM_AUTH_SERVICE_KEY", "")

	cfg.AuthCACertPath = getEnvDefault("OM_AUTH_CA_CERT_PATH", "")

	cfg.AuthTimeout, err = getEnvDuration("OM_AUTH_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("OM_AUTH_TIMEOUT: %w", err)
	}

	cfg.JWKSClientTimeout, err = getEnvDuration("OM_JWKS_CLIENT_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("OM_JWKS_CLIENT_TIMEOUT: %w", err)
	}
	cfg.JWKSRefreshInterval, err = getEnvDuration("OM_JWKS_REFRESH_INTERVAL", 1*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("OM_JWKS_REFRESH_INTERVAL: %w", err)
	}
	cfg.JWTLeeway, err = getEnvDuration("OM_JWT_LEEWAY", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("OM_JWT_LEEWAY: %w", err)
	}

	// --- Core API ---

	// OM_CORE_URL — обязательный
	cfg.CoreURL, err = getEnvRequired("OM_CORE_URL")
	if err != nil {
		return nil, err
	}
	cfg.CoreURL = strings.TrimRight(cfg.CoreURL, "/")

	cfg.CoreTimeout, err = getEnvDuration("OM_CORE_TIMEOUT", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("OM_CORE_TIMEOUT: %w", err)
	}

	cfg.CoreCACertPath = getEnvDefault("OM_CORE_CA_CERT_PATH", "")

	// --- Кэш профилей ---

	cfg.ProfileCacheSize, err = getEnvInt("OM_PROFILE_CACHE_SIZE", 1000)
	if err != nil {
		return nil, fmt.Errorf("OM_PROFILE_CACHE_SIZE: %w", err)
	}
	if cfg.ProfileCacheSize < 1 {
		return nil, fmt.Errorf("OM_PROFILE_CACHE_SIZE: значение должно быть >= 1")
	}
	cfg.ProfileCacheTTL, err = getEnvDuration("OM_PROFILE_CACHE_TTL", 5*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("OM_PROFILE_CACHE_TTL: %w", err)
	}

	// --- Разрешение инвайтов ---
	// Значения подобраны эмпирически в исходной системе, поэтому вынесены
	// в конфигурацию, а не зашиты в код.

	cfg.InviteRetryMax, err = getEnvInt("OM_INVITE_RETRY_MAX", 3)
	if err != nil {
		return nil, fmt.Errorf("OM_INVITE_RETRY_MAX: %w", err)
	}
	if cfg.InviteRetryMax < 1 {
		return nil, fmt.Errorf("OM_INVITE_RETRY_MAX: значение должно быть >= 1")
	}
	cfg.InviteRetryBaseDelay, err = getEnvDuration("OM_INVITE_RETRY_BASE_DELAY", 500*time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("OM_INVITE_RETRY_BASE_DELAY: %w", err)
	}

	// --- Уведомления ---

	cfg.NoticeBuffer, err = getEnvInt("OM_NOTICE_BUFFER", 32)
	if err != nil {
		return nil, fmt.Errorf("OM_NOTICE_BUFFER: %w", err)
	}
	if cfg.NoticeBuffer < 1 {
		return nil, fmt.Errorf("OM_NOTICE_BUFFER: значение должно быть >= 1")
	}

	// --- Topologymetrics ---

	cfg.DephealthGroup = getEnvDefault("OM_DEPHEALTH_GROUP", "craftlink")
	cfg.DephealthCheckInterval, err = getEnvDuration("OM_DEPHEALTH_CHECK_INTERVAL", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("OM_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}
	cfg.DephealthIsEntry, err = getEnvBool("DEPHEALTH_ISENTRY", false)
	if err != nil {
		return nil, fmt.Errorf("DEPHEALTH_ISENTRY: %w", err)
	}

	// --- Graceful shutdown ---

	cfg.ShutdownTimeout, err = getEnvDuration("OM_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("OM_SHUTDOWN_TIMEOUT: %w", err)
	}

	return cfg, nil
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
