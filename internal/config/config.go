package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

type Config struct {
	AppHost  string
	HTTPPort string
	AppEnv   string
	LogLevel string

	// StoreDriver is postgres (default) or memory for local development.
	StoreDriver string
	UploadDir   string
	// MaxUploadBytes caps a single image upload.
	MaxUploadBytes int64

	Classifier struct {
		URL     string
		Timeout time.Duration
	}
	Advisory struct {
		WebhookURL string
		Timeout    time.Duration
	}
	Auth struct {
		JWTSecret string
		// TrustCallerHeader accepts X-Caller-Id set by the gateway.
		TrustCallerHeader bool
		TokenTTL          time.Duration
	}
	Kafka struct {
		Brokers       string
		TopicRequests string
	}

	DB struct {
		Host     string
		Port     string
		User     string
		Password string
		Database string
		SSLMode  string
	}
}

// Load reads .env (or ../.env) and the environment.
func Load() (*Config, error) {
	_ = godotenv.Load(".env")
	_ = godotenv.Load("../.env")

	cfg := &Config{
		AppHost:     getEnv("APP_HOST", "0.0.0.0"),
		HTTPPort:    firstEnv("APP_PORT", "HTTP_PORT", "8098"),
		AppEnv:      getEnv("APP_ENV", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		StoreDriver: strings.ToLower(getEnv("STORE_DRIVER", StoreDriverPostgres)),
		UploadDir:   getEnv("UPLOAD_DIR", "uploads"),
	}
	var err error
	if cfg.MaxUploadBytes, err = getInt64("MAX_UPLOAD_BYTES", 10<<20); err != nil {
		return nil, err
	}
	cfg.Classifier.URL = strings.TrimRight(getEnv("CLASSIFIER_URL", "http://localhost:5000"), "/")
	if cfg.Classifier.Timeout, err = getDuration("CLASSIFIER_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	cfg.Advisory.WebhookURL = getEnv("ADVISORY_WEBHOOK_URL", "")
	if cfg.Advisory.Timeout, err = getDuration("ADVISORY_TIMEOUT", 20*time.Second); err != nil {
		return nil, err
	}
	cfg.Auth.JWTSecret = getEnv("AUTH_JWT_SECRET", "")
	if cfg.Auth.TrustCallerHeader, err = getBool("AUTH_TRUST_CALLER_HEADER", false); err != nil {
		return nil, err
	}
	if cfg.Auth.TokenTTL, err = getDuration("AUTH_TOKEN_TTL", 24*time.Hour); err != nil {
		return nil, err
	}
	cfg.Kafka.Brokers = getEnv("KAFKA_BROKERS", "")
	cfg.Kafka.TopicRequests = getEnv("KAFKA_TOPIC_REQUESTS", "support.requests")

	cfg.DB.Host = getEnv("DB_HOST", "localhost")
	cfg.DB.Port = getEnv("DB_PORT", "5432")
	cfg.DB.User = getEnv("DB_USER", "postgres")
	cfg.DB.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.DB.Database = getEnv("DB_DATABASE", "agri_support")
	cfg.DB.SSLMode = getEnv("DB_SSLMODE", "disable")
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.StoreDriver {
	case StoreDriverPostgres:
		if c.DB.Host == "" || c.DB.Database == "" {
			return errors.New("config: DB_HOST and DB_DATABASE are required")
		}
		if c.AppEnv == "production" && c.DB.Password == "" {
			return errors.New("config: in production DB_PASSWORD is required")
		}
	case StoreDriverMemory:
		if c.AppEnv == "production" {
			return errors.New("config: STORE_DRIVER=memory is not allowed in production")
		}
	default:
		return fmt.Errorf("config: unknown STORE_DRIVER %q", c.StoreDriver)
	}
	if c.Auth.JWTSecret == "" && !c.Auth.TrustCallerHeader {
		return errors.New("config: AUTH_JWT_SECRET or AUTH_TRUST_CALLER_HEADER=true is required")
	}
	if c.UploadDir == "" {
		return errors.New("config: UPLOAD_DIR is required")
	}
	if c.MaxUploadBytes <= 0 {
		return errors.New("config: MAX_UPLOAD_BYTES must be positive")
	}
	for key, d := range map[string]time.Duration{
		"CLASSIFIER_TIMEOUT": c.Classifier.Timeout,
		"ADVISORY_TIMEOUT":   c.Advisory.Timeout,
		"AUTH_TOKEN_TTL":     c.Auth.TokenTTL,
	} {
		if d <= 0 {
			return fmt.Errorf("config: %s must be positive, got %s", key, d)
		}
	}
	return nil
}

func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host, c.DB.Port, c.DB.User, c.DB.Password, c.DB.Database, c.DB.SSLMode)
}

func (c *Config) DatabaseURL() string {
	pass := url.QueryEscape(c.DB.Password)
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DB.User, pass, c.DB.Host, c.DB.Port, c.DB.Database, c.DB.SSLMode)
}

func (c *Config) Addr() string {
	return c.AppHost + ":" + c.HTTPPort
}

func firstEnv(keysAndDef ...string) string {
	if len(keysAndDef) == 0 {
		return ""
	}
	def := keysAndDef[len(keysAndDef)-1]
	for _, k := range keysAndDef[:len(keysAndDef)-1] {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return def
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return d, nil
}

func getInt64(key string, def int64) (int64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return n, nil
}

func getBool(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("config: %s: %w", key, err)
	}
	return b, nil
}
