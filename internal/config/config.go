package config

import (
	"os"
	"strconv"
	"time"

	"github.com/docker/go-units"
	"golang.org/x/crypto/bcrypt"
)

// DatabaseConfig holds PostgreSQL database connection settings.
type DatabaseConfig struct {
	Host               string
	Port               string
	User               string
	Password           string
	Name               string
	SSLMode            string
	MaxOpenConns       int
	MaxIdleConns       int
	ConnMaxLifetimeSec int
}

// MinIOConfig holds object storage settings for MinIO.
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// RetrievalConfig tunes the download strategy chain.
type RetrievalConfig struct {
	AttemptTimeout time.Duration
	TempLinkTTL    time.Duration
	ShareLinkTTL   time.Duration
}

// DocumentConfig holds upload and versioning limits.
type DocumentConfig struct {
	MaxUploadSize    string
	ChainMaxAttempts int
	PinHashCost      int
	TaskConcurrency  int
}

// MaxUploadBytes parses MaxUploadSize ("100MB", "1GiB", ...). Invalid values fall back to 100MB.
func (c DocumentConfig) MaxUploadBytes() int64 {
	size, err := units.FromHumanSize(c.MaxUploadSize)
	if err != nil || size <= 0 {
		return 100 * units.MB
	}
	return size
}

// AppConfig is the centralized configuration struct for the application.
// It is populated from environment variables. Sensitive values are not hardcoded.
type AppConfig struct {
	AppHost        string
	Port           string
	Timezone       string
	LogLevel       string
	JWTSecret      string
	MetadataDriver string
	Database       DatabaseConfig
	MinIO          MinIOConfig
	Retrieval      RetrievalConfig
	Documents      DocumentConfig
}

// Location resolves the configured timezone used for log timestamps, defaulting to UTC.
func (c *AppConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Load reads configuration from environment variables.
// A .env file can be auto-loaded by importing: _ "github.com/joho/godotenv/autoload"
// This function does not require a .env file; real environment variables take precedence.
func Load() *AppConfig {
	return &AppConfig{
		AppHost:        getEnv("APP_HOST", "localhost:8080"),
		Port:           getEnv("PORT", "8080"),
		Timezone:       getEnv("APP_TIMEZONE", "UTC"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		JWTSecret:      getEnv("JWT_SECRET", ""),
		MetadataDriver: getEnv("METADATA_DRIVER", "postgres"),
		Database: DatabaseConfig{
			Host:               getEnv("DB_HOST", ""),
			Port:               getEnv("DB_PORT", "5432"),
			User:               getEnv("DB_USER", ""),
			Password:           getEnv("DB_PASSWORD", ""),
			Name:               getEnv("DB_NAME", ""),
			SSLMode:            getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:       getEnvInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:       getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetimeSec: getEnvInt("DB_CONN_MAX_LIFETIME_SEC", 300),
		},
		MinIO: MinIOConfig{
			Endpoint:  getEnv("MINIO_ENDPOINT", ""),
			AccessKey: getEnv("MINIO_ACCESS_KEY", ""),
			SecretKey: getEnv("MINIO_SECRET_KEY", ""),
			Bucket:    getEnv("MINIO_BUCKET", ""),
			UseSSL:    getEnvBool("MINIO_USE_SSL", false),
		},
		Retrieval: RetrievalConfig{
			AttemptTimeout: getEnvDuration("RETRIEVAL_ATTEMPT_TIMEOUT", 15*time.Second),
			TempLinkTTL:    getEnvDuration("RETRIEVAL_TEMP_LINK_TTL", 5*time.Minute),
			ShareLinkTTL:   getEnvDuration("RETRIEVAL_SHARE_LINK_TTL", 15*time.Minute),
		},
		Documents: DocumentConfig{
			MaxUploadSize:    getEnv("MAX_UPLOAD_SIZE", "100MB"),
			ChainMaxAttempts: getEnvInt("CHAIN_MAX_ATTEMPTS", 3),
			PinHashCost:      getEnvInt("PIN_HASH_COST", bcrypt.DefaultCost),
			TaskConcurrency:  getEnvInt("TASK_CONCURRENCY", 16),
		},
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err == nil {
			return i
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err == nil && d > 0 {
			return d
		}
	}
	return def
}
