package config

import (
	"log/slog"
	"os"
	"testing"
	"time"
)

// setEnvs устанавливает переменные окружения на время теста.
func setEnvs(t *testing.T, envs map[string]string) {
	t.Helper()
	for k, v := range envs {
		t.Setenv(k, v)
	}
}

// minimalEnvs возвращает минимальный набор обязательных переменных.
func minimalEnvs() map[string]string {
	return map[string]string{
		"EL_DB_HOST":     "localhost",
		"EL_DB_NAME":     "election",
		"EL_DB_USER":     "election",
		"EL_DB_PASSWORD": "secret",
	}
}

// resetEnvs очищает переменные, которые могли остаться от окружения.
func resetEnvs(t *testing.T) {
	t.Helper()
	for k := range minimalEnvs() {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestLoad_MinimalConfig(t *testing.T) {
	setEnvs(t, minimalEnvs())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() вернул ошибку: %v", err)
	}

	// Проверяем значения по умолчанию
	if cfg.Port != 8080 {
		t.Errorf("Port = %d, ожидается 8080", cfg.Port)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("LogLevel = %v, ожидается Info", cfg.LogLevel)
	}
	if cfg.LogFormat != "json" {
		t.Errorf("LogFormat = %q, ожидается json", cfg.LogFormat)
	}
	if cfg.Storage != StoragePostgres {
		t.Errorf("Storage = %q, ожидается postgres", cfg.Storage)
	}
	if cfg.DBPort != 5432 {
		t.Errorf("DBPort = %d, ожидается 5432", cfg.DBPort)
	}
	if cfg.OTPCleanupInterval != 5*time.Minute {
		t.Errorf("OTPCleanupInterval = %v, ожидается 5m", cfg.OTPCleanupInterval)
	}
	if cfg.DBSSLMode != "disable" {
		t.Errorf("DBSSLMode = %q, ожидается disable", cfg.DBSSLMode)
	}
	if cfg.TxMaxRetries != 3 {
		t.Errorf("TxMaxRetries = %d, ожидается 3", cfg.TxMaxRetries)
	}
	if cfg.JWTTTL != 7*24*time.Hour {
		t.Errorf("JWTTTL = %v, ожидается 168h", cfg.JWTTTL)
	}
	if cfg.JWTIssuer != "election-api" {
		t.Errorf("JWTIssuer = %q, ожидается election-api", cfg.JWTIssuer)
	}
	if cfg.OTPLoginTTL != 10*time.Minute {
		t.Errorf("OTPLoginTTL = %v, ожидается 10m", cfg.OTPLoginTTL)
	}
	if cfg.OTPResetTTL != 15*time.Minute {
		t.Errorf("OTPResetTTL = %v, ожидается 15m", cfg.OTPResetTTL)
	}
	if cfg.VoteMilestone != 6 {
		t.Errorf("VoteMilestone = %d, ожидается 6", cfg.VoteMilestone)
	}
	if cfg.SMTPHost != "" {
		t.Errorf("SMTPHost = %q, ожидается пустая строка", cfg.SMTPHost)
	}
	if cfg.DephealthCheckInterval != 15*time.Second {
		t.Errorf("DephealthCheckInterval = %v, ожидается 15s", cfg.DephealthCheckInterval)
	}
	if cfg.ShutdownTimeout != 5*time.Second {
		t.Errorf("ShutdownTimeout = %v, ожидается 5s", cfg.ShutdownTimeout)
	}
}

func TestLoad_MemoryStorageWithoutDB(t *testing.T) {
	resetEnvs(t)
	t.Setenv("EL_STORAGE", "memory")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() вернул ошибку: %v", err)
	}
	if cfg.Storage != StorageMemory {
		t.Errorf("Storage = %q, ожидается memory", cfg.Storage)
	}
}

func TestLoad_CustomValues(t *testing.T) {
	envs := minimalEnvs()
	envs["EL_PORT"] = "9090"
	envs["EL_LOG_LEVEL"] = "debug"
	envs["EL_LOG_FORMAT"] = "text"
	envs["EL_DB_PORT"] = "5433"
	envs["EL_DB_SSL_MODE"] = "require"
	envs["EL_JWT_TTL"] = "24h"
	envs["EL_OTP_LOGIN_TTL"] = "5m"
	envs["EL_VOTE_MILESTONE"] = "10"
	envs["EL_SMTP_HOST"] = "smtp.example.com"
	envs["EL_SMTP_PORT"] = "2525"
	envs["EL_ADMIN_EMAIL"] = "root@example.com"
	envs["EL_ADMIN_PASSWORD"] = "root-pass"
	envs["EL_SHUTDOWN_TIMEOUT"] = "10s"
	setEnvs(t, envs)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() вернул ошибку: %v", err)
	}

	if cfg.Port != 9090 {
		t.Errorf("Port = %d, ожидается 9090", cfg.Port)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Errorf("LogLevel = %v, ожидается Debug", cfg.LogLevel)
	}
	if cfg.LogFormat != "text" {
		t.Errorf("LogFormat = %q, ожидается text", cfg.LogFormat)
	}
	if cfg.DBPort != 5433 {
		t.Errorf("DBPort = %d, ожидается 5433", cfg.DBPort)
	}
	if cfg.DBSSLMode != "require" {
		t.Errorf("DBSSLMode = %q, ожидается require", cfg.DBSSLMode)
	}
	if cfg.JWTTTL != 24*time.Hour {
		t.Errorf("JWTTTL = %v, ожидается 24h", cfg.JWTTTL)
	}
	if cfg.OTPLoginTTL != 5*time.Minute {
		t.Errorf("OTPLoginTTL = %v, ожидается 5m", cfg.OTPLoginTTL)
	}
	if cfg.VoteMilestone != 10 {
		t.Errorf("VoteMilestone = %d, ожидается 10", cfg.VoteMilestone)
	}
	if cfg.SMTPHost != "smtp.example.com" || cfg.SMTPPort != 2525 {
		t.Errorf("SMTP = %s:%d, ожидается smtp.example.com:2525", cfg.SMTPHost, cfg.SMTPPort)
	}
	if cfg.AdminEmail != "root@example.com" {
		t.Errorf("AdminEmail = %q, ожидается root@example.com", cfg.AdminEmail)
	}
	if cfg.ShutdownTimeout != 10*time.Second {
		t.Errorf("ShutdownTimeout = %v, ожидается 10s", cfg.ShutdownTimeout)
	}
}

func TestLoad_MissingRequired(t *testing.T) {
	requiredVars := []string{"EL_DB_HOST", "EL_DB_NAME", "EL_DB_USER", "EL_DB_PASSWORD"}

	for _, missing := range requiredVars {
		t.Run(missing, func(t *testing.T) {
			resetEnvs(t)
			envs := minimalEnvs()
			delete(envs, missing)
			setEnvs(t, envs)

			_, err := Load()
			if err == nil {
				t.Errorf("Load() не вернул ошибку при отсутствии %s", missing)
			}
		})
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"порт ниже диапазона", "EL_PORT", "0"},
		{"порт выше диапазона", "EL_PORT", "70000"},
		{"порт не число", "EL_PORT", "abc"},
		{"уровень логирования", "EL_LOG_LEVEL", "verbose"},
		{"формат логов", "EL_LOG_FORMAT", "xml"},
		{"режим SSL", "EL_DB_SSL_MODE", "prefer"},
		{"драйвер хранилища", "EL_STORAGE", "sqlite"},
		{"длительность", "EL_JWT_TTL", "abc"},
		{"нулевой TTL", "EL_JWT_TTL", "0s"},
		{"порог поздравления", "EL_VOTE_MILESTONE", "0"},
		{"интервал очистки OTP", "EL_OTP_CLEANUP_INTERVAL", "0s"},
		{"нулевой TTL кода входа", "EL_OTP_LOGIN_TTL", "0s"},
		{"отрицательный TTL кода входа", "EL_OTP_LOGIN_TTL", "-1m"},
		{"нулевой TTL кода сброса", "EL_OTP_RESET_TTL", "0s"},
		{"нулевой keepalive SSE", "EL_SSE_KEEPALIVE", "0s"},
		{"отрицательный keepalive SSE", "EL_SSE_KEEPALIVE", "-5s"},
		{"интервал topologymetrics", "EL_DEPHEALTH_CHECK_INTERVAL", "0s"},
		{"повторы транзакции", "EL_TX_MAX_RETRIES", "11"},
		{"администратор без пароля", "EL_ADMIN_EMAIL", "root@example.com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetEnvs(t)
			envs := minimalEnvs()
			envs[tt.key] = tt.value
			setEnvs(t, envs)

			_, err := Load()
			if err == nil {
				t.Errorf("Load() не вернул ошибку при %s=%q", tt.key, tt.value)
			}
		})
	}
}

func TestDatabaseDSN(t *testing.T) {
	cfg := &Config{
		DBHost:     "db.example.com",
		DBPort:     5432,
		DBName:     "election",
		DBUser:     "user",
		DBPassword: "pass",
		DBSSLMode:  "disable",
	}
	expected := "host=db.example.com port=5432 dbname=election user=user password=pass sslmode=disable"
	if dsn := cfg.DatabaseDSN(); dsn != expected {
		t.Errorf("DatabaseDSN() = %q, ожидается %q", dsn, expected)
	}
	if u := cfg.DatabaseURL(); u != "postgres://db.example.com:5432/election" {
		t.Errorf("DatabaseURL() = %q", u)
	}
}

func TestSetupLogger(t *testing.T) {
	for _, format := range []string{"json", "text"} {
		t.Run(format, func(t *testing.T) {
			cfg := &Config{
				LogLevel:  slog.LevelInfo,
				LogFormat: format,
			}
			if logger := SetupLogger(cfg); logger == nil {
				t.Error("SetupLogger() вернул nil")
			}
		})
	}
}
