package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

var ErrMissingJWTSecret = errors.New("JWT_SECRET is required")

type Config struct {
	Addr        string
	Env         string
	LogLevel    string
	DatabaseURL string
	JWTSecret   string
	// SSOSecret verifies GeekBase tokens; empty means JWTSecret is used.
	SSOSecret  string
	TokenTTL   time.Duration
	CORSOrigin string

	MeiliURL       string
	MeiliMasterKey string

	// Redis - optional, logout revocation is disabled without it
	RedisURL string

	// MinIO - optional, backups answer 503 without an endpoint
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool

	MigrateLegacyFolders bool
}

func (c Config) Production() bool {
	return c.Env == "production"
}

func (c Config) SSOVerificationSecret() string {
	if c.SSOSecret != "" {
		return c.SSOSecret
	}
	return c.JWTSecret
}

// Load reads the environment, after loading .env from the working directory
// when one exists. Variables already set in the environment win.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Addr:        getenv("API_ADDR", ":5000"),
		Env:         getenv("NOTEGEEK_ENV", "development"),
		LogLevel:    getenv("LOG_LEVEL", "info"),
		DatabaseURL: getenv("DATABASE_URL", "mongodb://localhost:27017/notegeek"),
		JWTSecret:   os.Getenv("JWT_SECRET"),
		SSOSecret:   os.Getenv("GEEKBASE_SSO_SECRET"),
		TokenTTL:    time.Duration(getenvInt("TOKEN_TTL_HOURS", 720)) * time.Hour,
		CORSOrigin:  getenv("CORS_ORIGIN", "*"),

		MeiliURL:       os.Getenv("MEILI_URL"),
		MeiliMasterKey: os.Getenv("MEILI_MASTER_KEY"),

		RedisURL: os.Getenv("REDIS_URL"),

		MinioEndpoint:  os.Getenv("MINIO_ENDPOINT"),
		MinioAccessKey: os.Getenv("MINIO_ACCESS_KEY"),
		MinioSecretKey: os.Getenv("MINIO_SECRET_KEY"),
		MinioBucket:    getenv("MINIO_BUCKET", "notegeek-backups"),
		MinioUseSSL:    getenvBool("MINIO_USE_SSL", false),

		MigrateLegacyFolders: getenvBool("MIGRATE_LEGACY_FOLDERS", true),
	}
	if strings.TrimSpace(cfg.JWTSecret) == "" {
		return cfg, ErrMissingJWTSecret
	}
	return cfg, nil
}

func getenv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func getenvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}
