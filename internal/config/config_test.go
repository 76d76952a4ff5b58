package config

import (
	"testing"
	"time"
)

// setRequiredEnv задаёт минимальный набор обязательных переменных.
func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("OM_DB_HOST", "localhost")
	t.Setenv("OM_DB_NAME", "craftlink_onboarding")
	t.Setenv("OM_DB_USER", "onboarding")
	t.Setenv("OM_DB_PASSWORD", "secret")
	t.Setenv("OM_AUTH_URL", "https://auth.craftlink.test")
	t.Setenv("OM_CORE_URL", "http://core-api:8080")
}

// TestLoad_Defaults проверяет значения по умолчанию при минимальной конфигурации.
func TestLoad_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() вернул ошибку: %v", err)
	}

	if cfg.Port != 8040 {
		t.Errorf("Port = %d, ожидался 8040", cfg.Port)
	}
	if cfg.LogFormat != "json" {
		t.Errorf("LogFormat = %q, ожидался json", cfg.LogFormat)
	}
	if cfg.InviteRetryMax != 3 {
		t.Errorf("InviteRetryMax = %d, ожидался 3", cfg.InviteRetryMax)
	}
	if cfg.InviteRetryBaseDelay != 500*time.Millisecond {
		t.Errorf("InviteRetryBaseDelay = %v, ожидалось 500ms", cfg.InviteRetryBaseDelay)
	}
	if cfg.ProfileCacheTTL != 5*time.Minute {
		t.Errorf("ProfileCacheTTL = %v, ожидалось 5m", cfg.ProfileCacheTTL)
	}
	// JWKS URL вычисляется из OM_AUTH_URL
	want := "https://auth.craftlink.test/.well-known/jwks.json"
	if cfg.AuthJWKSURL != want {
		t.Errorf("AuthJWKSURL = %q, ожидался %q", cfg.AuthJWKSURL, want)
	}
}

// TestLoad_MissingRequired проверяет ошибку при отсутствии обязательной переменной.
func TestLoad_MissingRequired(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("OM_CORE_URL", "")

	if _, err := Load(); err == nil {
		t.Fatal("Load() должен вернуть ошибку без OM_CORE_URL")
	}
}

// TestLoad_PortOutOfRange проверяет валидацию диапазона порта.
func TestLoad_PortOutOfRange(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("OM_PORT", "9000")

	if _, err := Load(); err == nil {
		t.Fatal("Load() должен вернуть ошибку для порта вне диапазона 8040-8049")
	}
}

// TestLoad_TrailingSlashTrimmed проверяет нормализацию URL (без trailing slash).
func TestLoad_TrailingSlashTrimmed(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("OM_CORE_URL", "http://core-api:8080/")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() вернул ошибку: %v", err)
	}
	if cfg.CoreURL != "http://core-api:8080" {
		t.Errorf("CoreURL = %q, trailing slash должен быть удалён", cfg.CoreURL)
	}
}

// TestLoad_InvalidRetry проверяет валидацию параметров повторов инвайта.
func TestLoad_InvalidRetry(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("OM_INVITE_RETRY_MAX", "0")

	if _, err := Load(); err == nil {
		t.Fatal("Load() должен вернуть ошибку для OM_INVITE_RETRY_MAX < 1")
	}
}

// TestDatabaseDSN проверяет сборку строки подключения PostgreSQL.
func TestDatabaseDSN(t *testing.T) {
	cfg := &Config{
		DBHost:     "db",
		DBPort:     5432,
		DBName:     "onboarding",
		DBUser:     "om",
		DBPassword: "pw",
		DBSSLMode:  "disable",
	}
	want := "postgres://om:pw@db:5432/onboarding?sslmode=disable"
	if got := cfg.DatabaseDSN(); got != want {
		t.Errorf("DatabaseDSN() = %q, ожидалось %q", got, want)
	}
}

// TestParseLogLevel проверяет разбор уровней логирования.
func TestParseLogLevel(t *testing.T) {
	cases := []struct {
		in      string
		wantErr bool
	}{
		{"debug", false},
		{"info", false},
		{"WARN", false},
		{"error", false},
		{"trace", true},
	}
	for _, tc := range cases {
		if _, err := parseLogLevel(tc.in); (err != nil) != tc.wantErr {
			t.Errorf("parseLogLevel(%q): err = %v, wantErr = %v", tc.in, err, tc.wantErr)
		}
	}
}
