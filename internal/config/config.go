package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AppEnv   string
	LogLevel slog.Level
	HTTPAddr string

	// StaticDir is the absolute path to the directory served at /static/.
	// Set via STATIC_DIR (relative paths are resolved against the process working directory at startup).
	StaticDir string

	DatasetPath  string
	DatasetTitle string
	DatasetWatch bool

	Driver          string
	DSN             string
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	LogSQL          bool

	LLMProvider string
	LLMBaseURL  string
	LLMModel    string
	LLMAPIKey   string
	LLMTimeout  time.Duration

	MapConfigPath string

	SessionSecret      []byte
	SessionIdleTimeout time.Duration

	// MQTTBroker empty disables live ingest.
	MQTTBroker   string
	MQTTPort     int
	MQTTClientID string
	MQTTTopic    string
}

// MQTTEnabled reports whether live reading ingest is configured.
func (c Config) MQTTEnabled() bool { return c.MQTTBroker != "" }

// LoadFromEnv reads the configuration from the environment. A .env file in
// the working directory is applied first when present; real environment
// variables take precedence over it.
func LoadFromEnv() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	appEnv := envString("APP_ENV", "dev")
	switch appEnv {
	case "dev", "prod":
	default:
		return Config{}, fmt.Errorf("invalid APP_ENV %q (allowed: dev, prod)", appEnv)
	}

	level, err := parseLogLevel(envString("LOG_LEVEL", "info"))
	if err != nil {
		return Config{}, err
	}

	staticDir, err := filepath.Abs(envString("STATIC_DIR", "static"))
	if err != nil {
		return Config{}, fmt.Errorf("STATIC_DIR %q: %w", os.Getenv("STATIC_DIR"), err)
	}

	datasetWatch, err := envBool("DATASET_WATCH", false)
	if err != nil {
		return Config{}, err
	}

	driver := envString("DB_DRIVER", "sqlite3")
	switch driver {
	case "sqlite3", "sqlite":
	default:
		return Config{}, fmt.Errorf("invalid DB_DRIVER %q (allowed: sqlite3, sqlite)", driver)
	}
	maxOpenConns, err := envInt("DB_MAX_OPEN_CONNS", 1)
	if err != nil {
		return Config{}, err
	}
	maxIdleConns, err := envInt("DB_MAX_IDLE_CONNS", 1)
	if err != nil {
		return Config{}, err
	}
	connMaxLifetime, err := envDuration("DB_CONN_MAX_LIFETIME", 0)
	if err != nil {
		return Config{}, err
	}
	logSQL, err := envBool("DB_LOG_SQL", false)
	if err != nil {
		return Config{}, err
	}

	provider := strings.ToLower(envString("LLM_PROVIDER", "openai"))
	var baseURL, model string
	switch provider {
	case "openai":
		baseURL = envString("LLM_BASE_URL", "https://api.groq.com/openai/v1")
		model = envString("LLM_MODEL", "llama3-70b-8192")
	case "gemini":
		baseURL = envString("LLM_BASE_URL", "")
		model = envString("LLM_MODEL", "gemini-2.0-flash")
	default:
		return Config{}, fmt.Errorf("invalid LLM_PROVIDER %q (allowed: openai, gemini)", provider)
	}
	llmTimeout, err := envDuration("LLM_TIMEOUT", 60*time.Second)
	if err != nil {
		return Config{}, err
	}
	if llmTimeout <= 0 {
		return Config{}, fmt.Errorf("LLM_TIMEOUT must be positive, got %v", llmTimeout)
	}

	secret := envString("SESSION_SECRET", "")
	if secret == "" {
		if appEnv == "prod" {
			return Config{}, errors.New("SESSION_SECRET is required when APP_ENV=prod")
		}
		secret, err = randomSecret()
		if err != nil {
			return Config{}, fmt.Errorf("generate session secret: %w", err)
		}
	}
	idleTimeout, err := envDuration("SESSION_IDLE_TIMEOUT", 2*time.Hour)
	if err != nil {
		return Config{}, err
	}
	if idleTimeout <= 0 {
		return Config{}, fmt.Errorf("SESSION_IDLE_TIMEOUT must be positive, got %v", idleTimeout)
	}

	mqttPort, err := envInt("MQTT_PORT", 1883)
	if err != nil {
		return Config{}, err
	}

	return Config{
		AppEnv:             appEnv,
		LogLevel:           level,
		HTTPAddr:           envString("HTTP_ADDR", ":8080"),
		StaticDir:          staticDir,
		DatasetPath:        envString("DATASET_PATH", "dataset/SPI/Jordan Standardized Precipitation Index.csv"),
		DatasetTitle:       envString("DATASET_TITLE", "Jordan Standardized Precipitation Index"),
		DatasetWatch:       datasetWatch,
		Driver:             driver,
		DSN:                envString("DB_DSN", ""),
		Path:               envString("SQLITE_PATH", "data/spi.db"),
		MaxOpenConns:       maxOpenConns,
		MaxIdleConns:       maxIdleConns,
		ConnMaxLifetime:    connMaxLifetime,
		LogSQL:             logSQL,
		LLMProvider:        provider,
		LLMBaseURL:         baseURL,
		LLMModel:           model,
		LLMAPIKey:          envString("LLM_API_KEY", ""),
		LLMTimeout:         llmTimeout,
		MapConfigPath:      envString("MAP_CONFIG_PATH", ""),
		SessionSecret:      []byte(secret),
		SessionIdleTimeout: idleTimeout,
		MQTTBroker:         envString("MQTT_BROKER", ""),
		MQTTPort:           mqttPort,
		MQTTClientID:       envString("MQTT_CLIENT_ID", "spi-dashboard"),
		MQTTTopic:          envString("MQTT_TOPIC", "spi/stations/+/readings"),
	}, nil
}

func envString(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envInt(key string, def int) (int, error) {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	return n, nil
}

func envBool(key string, def bool) (bool, error) {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	return b, nil
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	return d, nil
}

func randomSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL %q (allowed: debug, info, warn, error)", s)
	}
}
