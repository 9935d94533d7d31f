// Пакет config — загрузка и валидация конфигурации Election API
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

// Драйверы хранилища.
const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// Config содержит все параметры конфигурации Election API.
// Передаётся в конструкторы явно, глобального состояния нет.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string
	// Таймаут graceful shutdown HTTP-сервера
	ShutdownTimeout time.Duration

	// --- Хранилище ---

	// Драйвер хранилища: postgres (production) или memory (разработка)
	Storage string

	// --- PostgreSQL ---

	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string
	// Режим SSL: disable, require, verify-ca, verify-full
	DBSSLMode string
	// Максимальный размер пула подключений (0 — значение pgxpool по умолчанию)
	DBMaxConns int
	// Количество повторов транзакции при транзиентных ошибках
	TxMaxRetries int

	// --- JWT ---

	// Issuer выдаваемых токенов
	JWTIssuer string
	// Audience выдаваемых токенов
	JWTAudience string
	// Время жизни токена
	JWTTTL time.Duration
	// Допустимое отклонение часов при проверке
	JWTLeeway time.Duration
	// Путь к PEM с приватным RSA-ключом (пусто — ключ генерируется при старте)
	JWTPrivateKeyPath string
	// kid ключа в JWKS
	JWTKeyID string

	// --- OTP ---

	// Время жизни OTP для входа
	OTPLoginTTL time.Duration
	// Время жизни OTP для сброса пароля
	OTPResetTTL time.Duration
	// Интервал фоновой очистки истёкших OTP
	OTPCleanupInterval time.Duration

	// --- Голосование ---

	// Значение счётчика, при достижении которого кандидат получает поздравление
	VoteMilestone int

	// --- SMTP (пусто — письма только логируются) ---

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
	SMTPFromName string

	// --- Real-time ---

	// Интервал keepalive-комментариев в SSE-потоке
	SSEKeepalive time.Duration

	// --- topologymetrics ---

	DephealthGroup         string
	DephealthCheckInterval time.Duration

	// --- Начальный администратор (опционально) ---

	AdminName     string
	AdminEmail    string
	AdminPassword string
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// --- Сервер ---

	// EL_PORT — порт HTTP-сервера (по умолчанию 8080)
	cfg.Port, err = getEnvInt("EL_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("EL_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("EL_PORT: значение %d вне допустимого диапазона 1-65535", cfg.Port)
	}

	cfg.LogLevel, err = parseLogLevel(getEnvDefault("EL_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("EL_LOG_LEVEL: %w", err)
	}

	cfg.LogFormat = getEnvDefault("EL_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("EL_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	cfg.ShutdownTimeout, err = getEnvDuration("EL_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("EL_SHUTDOWN_TIMEOUT: %w", err)
	}

	// --- Хранилище ---

	cfg.Storage = getEnvDefault("EL_STORAGE", StoragePostgres)
	if cfg.Storage != StoragePostgres && cfg.Storage != StorageMemory {
		return nil, fmt.Errorf("EL_STORAGE: недопустимое значение %q, допустимые: postgres, memory", cfg.Storage)
	}

	// --- PostgreSQL ---

	if cfg.Storage == StoragePostgres {
		if cfg.DBHost, err = getEnvRequired("EL_DB_HOST"); err != nil {
			return nil, err
		}
		if cfg.DBName, err = getEnvRequired("EL_DB_NAME"); err != nil {
			return nil, err
		}
		if cfg.DBUser, err = getEnvRequired("EL_DB_USER"); err != nil {
			return nil, err
		}
		if cfg.DBPassword, err = getEnvRequired("EL_DB_PASSWORD"); err != nil {
			return nil, err
		}
	}

	cfg.DBPort, err = getEnvInt("EL_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("EL_DB_PORT: %w", err)
	}

	cfg.DBSSLMode = getEnvDefault("EL_DB_SSL_MODE", "disable")
	validSSLModes := map[string]bool{
		"disable": true, "require": true, "verify-ca": true, "verify-full": true,
	}
	if !validSSLModes[cfg.DBSSLMode] {
		return nil, fmt.Errorf("EL_DB_SSL_MODE: недопустимое значение %q, допустимые: disable, require, verify-ca, verify-full", cfg.DBSSLMode)
	}

	cfg.DBMaxConns, err = getEnvInt("EL_DB_MAX_CONNS", 0)
	if err != nil {
		return nil, fmt.Errorf("EL_DB_MAX_CONNS: %w", err)
	}
	if cfg.DBMaxConns < 0 {
		return nil, fmt.Errorf("EL_DB_MAX_CONNS: значение %d не может быть отрицательным", cfg.DBMaxConns)
	}

	cfg.TxMaxRetries, err = getEnvInt("EL_TX_MAX_RETRIES", 3)
	if err != nil {
		return nil, fmt.Errorf("EL_TX_MAX_RETRIES: %w", err)
	}
	if cfg.TxMaxRetries < 0 || cfg.TxMaxRetries > 10 {
		return nil, fmt.Errorf("EL_TX_MAX_RETRIES: значение %d вне допустимого диапазона 0-10", cfg.TxMaxRetries)
	}

	// --- JWT ---

	cfg.JWTIssuer = getEnvDefault("EL_JWT_ISSUER", "election-api")
	cfg.JWTAudience = getEnvDefault("EL_JWT_AUDIENCE", "election-users")
	cfg.JWTKeyID = getEnvDefault("EL_JWT_KEY_ID", "election-key-1")
	cfg.JWTPrivateKeyPath = getEnvDefault("EL_JWT_PRIVATE_KEY_PATH", "")

	// EL_JWT_TTL — время жизни токена (по умолчанию 7 суток)
	cfg.JWTTTL, err = getEnvDuration("EL_JWT_TTL", 7*24*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("EL_JWT_TTL: %w", err)
	}
	if cfg.JWTTTL <= 0 {
		return nil, fmt.Errorf("EL_JWT_TTL: значение должно быть положительным")
	}

	cfg.JWTLeeway, err = getEnvDuration("EL_JWT_LEEWAY", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("EL_JWT_LEEWAY: %w", err)
	}

	// --- OTP ---

	cfg.OTPLoginTTL, err = getEnvDuration("EL_OTP_LOGIN_TTL", 10*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("EL_OTP_LOGIN_TTL: %w", err)
	}
	if cfg.OTPLoginTTL <= 0 {
		return nil, fmt.Errorf("EL_OTP_LOGIN_TTL: значение должно быть положительным")
	}
	cfg.OTPResetTTL, err = getEnvDuration("EL_OTP_RESET_TTL", 15*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("EL_OTP_RESET_TTL: %w", err)
	}
	if cfg.OTPResetTTL <= 0 {
		return nil, fmt.Errorf("EL_OTP_RESET_TTL: значение должно быть положительным")
	}
	cfg.OTPCleanupInterval, err = getEnvDuration("EL_OTP_CLEANUP_INTERVAL", 5*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("EL_OTP_CLEANUP_INTERVAL: %w", err)
	}
	if cfg.OTPCleanupInterval <= 0 {
		return nil, fmt.Errorf("EL_OTP_CLEANUP_INTERVAL: значение должно быть положительным")
	}

	// --- Голосование ---

	cfg.VoteMilestone, err = getEnvInt("EL_VOTE_MILESTONE", 6)
	if err != nil {
		return nil, fmt.Errorf("EL_VOTE_MILESTONE: %w", err)
	}
	if cfg.VoteMilestone < 1 {
		return nil, fmt.Errorf("EL_VOTE_MILESTONE: значение %d должно быть больше 0", cfg.VoteMilestone)
	}

	// --- SMTP ---

	cfg.SMTPHost = getEnvDefault("EL_SMTP_HOST", "")
	cfg.SMTPPort, err = getEnvInt("EL_SMTP_PORT", 587)
	if err != nil {
		return nil, fmt.Errorf("EL_SMTP_PORT: %w", err)
	}
	cfg.SMTPUsername = getEnvDefault("EL_SMTP_USERNAME", "")
	cfg.SMTPPassword = getEnvDefault("EL_SMTP_PASSWORD", "")
	cfg.SMTPFrom = getEnvDefault("EL_SMTP_FROM", "noreply@election.local")
	cfg.SMTPFromName = getEnvDefault("EL_SMTP_FROM_NAME", "Election")

	// --- Real-time ---

	cfg.SSEKeepalive, err = getEnvDuration("EL_SSE_KEEPALIVE", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("EL_SSE_KEEPALIVE: %w", err)
	}
	if cfg.SSEKeepalive <= 0 {
		return nil, fmt.Errorf("EL_SSE_KEEPALIVE: значение должно быть положительным")
	}

	// --- topologymetrics ---

	cfg.DephealthGroup = getEnvDefault("EL_DEPHEALTH_GROUP", "election")
	cfg.DephealthCheckInterval, err = getEnvDuration("EL_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("EL_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}
	if cfg.DephealthCheckInterval <= 0 {
		return nil, fmt.Errorf("EL_DEPHEALTH_CHECK_INTERVAL: значение должно быть положительным")
	}

	// --- Начальный администратор ---

	cfg.AdminName = getEnvDefault("EL_ADMIN_NAME", "Admin User")
	cfg.AdminEmail = getEnvDefault("EL_ADMIN_EMAIL", "")
	cfg.AdminPassword = getEnvDefault("EL_ADMIN_PASSWORD", "")
	if cfg.AdminEmail != "" && cfg.AdminPassword == "" {
		return nil, fmt.Errorf("EL_ADMIN_PASSWORD: обязателен, если задан EL_ADMIN_EMAIL")
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

// DatabaseURL возвращает URL PostgreSQL без пароля (для лейблов метрик).
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%d/%s", c.DBHost, c.DBPort, c.DBName)
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
