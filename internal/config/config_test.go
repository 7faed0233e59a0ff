package config

import (
	"log/slog"
	"testing"
	"time"
)

var envKeys = []string{
	"APP_ENV", "LOG_LEVEL", "HTTP_ADDR", "STATIC_DIR",
	"DATASET_PATH", "DATASET_TITLE", "DATASET_WATCH",
	"DB_DRIVER", "DB_DSN", "SQLITE_PATH", "DB_MAX_OPEN_CONNS", "DB_MAX_IDLE_CONNS", "DB_CONN_MAX_LIFETIME", "DB_LOG_SQL",
	"LLM_PROVIDER", "LLM_BASE_URL", "LLM_MODEL", "LLM_API_KEY", "LLM_TIMEOUT",
	"MAP_CONFIG_PATH", "SESSION_SECRET", "SESSION_IDLE_TIMEOUT",
	"MQTT_BROKER", "MQTT_PORT", "MQTT_CLIENT_ID", "MQTT_TOPIC",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func TestLoadFromEnv_Defaults(t *testing.T) {
	clearEnv(t)

	got, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v, want nil", err)
	}

	if got.AppEnv != "dev" {
		t.Errorf("AppEnv = %q, want %q", got.AppEnv, "dev")
	}
	if got.LogLevel != slog.LevelInfo {
		t.Errorf("LogLevel = %v, want %v", got.LogLevel, slog.LevelInfo)
	}
	if got.HTTPAddr != ":8080" {
		t.Errorf("HTTPAddr = %q, want %q", got.HTTPAddr, ":8080")
	}
	if got.Driver != "sqlite3" {
		t.Errorf("Driver = %q, want sqlite3", got.Driver)
	}
	if got.MaxOpenConns != 1 || got.MaxIdleConns != 1 {
		t.Errorf("pool = %d/%d, want 1/1", got.MaxOpenConns, got.MaxIdleConns)
	}
	if got.LLMProvider != "openai" || got.LLMModel != "llama3-70b-8192" {
		t.Errorf("LLM = %s/%s, want openai/llama3-70b-8192", got.LLMProvider, got.LLMModel)
	}
	if got.LLMBaseURL != "https://api.groq.com/openai/v1" {
		t.Errorf("LLMBaseURL = %q", got.LLMBaseURL)
	}
	if got.LLMTimeout != 60*time.Second {
		t.Errorf("LLMTimeout = %v, want 60s", got.LLMTimeout)
	}
	if len(got.SessionSecret) == 0 {
		t.Error("SessionSecret is empty; want a generated secret in dev")
	}
	if got.MQTTEnabled() {
		t.Error("MQTTEnabled() = true, want false without MQTT_BROKER")
	}
	if got.MQTTTopic != "spi/stations/+/readings" {
		t.Errorf("MQTTTopic = %q", got.MQTTTopic)
	}
	if got.DatasetTitle != "Jordan Standardized Precipitation Index" {
		t.Errorf("DatasetTitle = %q", got.DatasetTitle)
	}
}

func TestLoadFromEnv_AppEnv_Valid(t *testing.T) {
	tests := []struct {
		name   string
		appEnv string
		want   string
	}{
		{name: "dev", appEnv: "dev", want: "dev"},
		{name: "dev with whitespace", appEnv: "  dev  ", want: "dev"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv("APP_ENV", tt.appEnv)

			got, err := LoadFromEnv()
			if err != nil {
				t.Fatalf("LoadFromEnv() error = %v, want nil", err)
			}
			if got.AppEnv != tt.want {
				t.Errorf("AppEnv = %q, want %q", got.AppEnv, tt.want)
			}
		})
	}
}

func TestLoadFromEnv_Prod_RequiresSessionSecret(t *testing.T) {
	clearEnv(t)
	t.Setenv("APP_ENV", "prod")

	if _, err := LoadFromEnv(); err == nil {
		t.Fatal("LoadFromEnv() error = nil, want error without SESSION_SECRET")
	}

	t.Setenv("SESSION_SECRET", "s3cret")
	got, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v, want nil", err)
	}
	if string(got.SessionSecret) != "s3cret" {
		t.Errorf("SessionSecret = %q, want s3cret", got.SessionSecret)
	}
}

func TestLoadFromEnv_Invalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{name: "app env", key: "APP_ENV", val: "staging"},
		{name: "uppercase app env", key: "APP_ENV", val: "DEV"},
		{name: "log level", key: "LOG_LEVEL", val: "loud"},
		{name: "driver", key: "DB_DRIVER", val: "postgres"},
		{name: "max open conns", key: "DB_MAX_OPEN_CONNS", val: "many"},
		{name: "conn lifetime", key: "DB_CONN_MAX_LIFETIME", val: "forever"},
		{name: "log sql", key: "DB_LOG_SQL", val: "maybe"},
		{name: "dataset watch", key: "DATASET_WATCH", val: "sometimes"},
		{name: "llm provider", key: "LLM_PROVIDER", val: "hal9000"},
		{name: "llm timeout", key: "LLM_TIMEOUT", val: "-1s"},
		{name: "session idle timeout", key: "SESSION_IDLE_TIMEOUT", val: "0s"},
		{name: "mqtt port", key: "MQTT_PORT", val: "eighteen"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.val)

			if _, err := LoadFromEnv(); err == nil {
				t.Fatalf("LoadFromEnv() with %s=%q error = nil, want non-nil", tt.key, tt.val)
			}
		})
	}
}

func TestLoadFromEnv_Gemini(t *testing.T) {
	clearEnv(t)
	t.Setenv("LLM_PROVIDER", "Gemini")
	t.Setenv("LLM_API_KEY", "k")

	got, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v, want nil", err)
	}
	if got.LLMProvider != "gemini" {
		t.Errorf("LLMProvider = %q, want gemini", got.LLMProvider)
	}
	if got.LLMModel != "gemini-2.0-flash" {
		t.Errorf("LLMModel = %q", got.LLMModel)
	}
	if got.LLMBaseURL != "" {
		t.Errorf("LLMBaseURL = %q, want empty", got.LLMBaseURL)
	}
}

func TestLoadFromEnv_MQTT(t *testing.T) {
	clearEnv(t)
	t.Setenv("MQTT_BROKER", "broker.local")
	t.Setenv("MQTT_PORT", "1884")

	got, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v, want nil", err)
	}
	if !got.MQTTEnabled() {
		t.Error("MQTTEnabled() = false, want true")
	}
	if got.MQTTPort != 1884 {
		t.Errorf("MQTTPort = %d, want 1884", got.MQTTPort)
	}
}

func TestParseLogLevel_Valid(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want slog.Level
	}{
		{name: "debug", in: "debug", want: slog.LevelDebug},
		{name: "info", in: "info", want: slog.LevelInfo},
		{name: "warn", in: "warn", want: slog.LevelWarn},
		{name: "warning", in: "warning", want: slog.LevelWarn},
		{name: "error", in: "error", want: slog.LevelError},
		{name: "case insensitive", in: "DeBuG", want: slog.LevelDebug},
		{name: "trims whitespace", in: "  warn \n", want: slog.LevelWarn},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseLogLevel(tt.in)
			if err != nil {
				t.Fatalf("parseLogLevel(%q) error = %v, want nil", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("parseLogLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseLogLevel_Invalid(t *testing.T) {
	for _, in := range []string{"", "nope", "warns", "1"} {
		got, err := parseLogLevel(in)
		if err == nil {
			t.Fatalf("parseLogLevel(%q) error = nil, want non-nil", in)
		}
		if got != slog.LevelInfo {
			t.Errorf("parseLogLevel(%q) = %v, want %v on error", in, got, slog.LevelInfo)
		}
	}
}
