package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	AWS           AWSConfig
	Transcription TranscriptionConfig
	Livebook      LivebookConfig
	Pipeline      PipelineConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string
	ReadTimeout        int
	WriteTimeout       int
	CORSAllowedOrigins string // comma-separated, or "*" for all
	EmbeddedWorker     bool   // run the transcription worker inside the server process
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL      string // if set, used as-is
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// AWSConfig holds AWS credentials and the media bucket.
type AWSConfig struct {
	Region               string
	AccessKeyID          string
	SecretAccessKey      string
	MediaBucket          string
	PresignExpireMinutes int
}

// TranscriptionConfig holds speech-to-text provider settings.
type TranscriptionConfig struct {
	BaseURL        string
	APIKey         string
	TimeoutSeconds int // per-call bound on the provider request
}

// LivebookConfig holds the external livebook generator settings.
type LivebookConfig struct {
	GeneratorURL  string // default notification target; overridable per palestra
	WebhookSecret string // HS256 secret for inbound completion callbacks; empty disables validation
}

// PipelineConfig holds intake and polling limits.
type PipelineConfig struct {
	MaxUploadBytes  int64
	PollIntervalSec int
	PollMaxAttempts int
}

// DSN returns the PostgreSQL connection string.
// If DatabaseConfig.URL is set (DATABASE_URL env), it is used as-is.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "8080"),
			ReadTimeout:        getEnvInt("READ_TIMEOUT_SEC", 30),
			WriteTimeout:       getEnvInt("WRITE_TIMEOUT_SEC", 30),
			CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000"),
			EmbeddedWorker:     getEnv("EMBEDDED_WORKER", "true") == "true",
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", "postgres://localhost:5432/livebooks?sslmode=disable"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "livebooks"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		AWS: AWSConfig{
			Region:               getEnv("AWS_REGION", "us-east-1"),
			AccessKeyID:          getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey:      getEnv("AWS_SECRET_ACCESS_KEY", ""),
			MediaBucket:          getEnv("AWS_S3_MEDIA_BUCKET", "livebooks-media-bucket"),
			PresignExpireMinutes: getEnvInt("AWS_PRESIGN_EXPIRE_MINUTES", 15),
		},
		Transcription: TranscriptionConfig{
			BaseURL:        getEnv("TRANSCRIPTION_API_URL", "https://api.transcription.example.com"),
			APIKey:         getEnv("TRANSCRIPTION_API_KEY", ""),
			TimeoutSeconds: getEnvInt("TRANSCRIPTION_TIMEOUT_SEC", 300),
		},
		Livebook: LivebookConfig{
			GeneratorURL:  getEnv("LIVEBOOK_GENERATOR_URL", ""),
			WebhookSecret: getEnv("LIVEBOOK_WEBHOOK_SECRET", ""),
		},
		Pipeline: PipelineConfig{
			MaxUploadBytes:  getEnvInt64("MAX_UPLOAD_BYTES", 500*1024*1024),
			PollIntervalSec: getEnvInt("POLL_INTERVAL_SEC", 5),
			PollMaxAttempts: getEnvInt("POLL_MAX_ATTEMPTS", 120),
		},
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}
