package config

import (
	"errors"
	"os"
	"strconv"
	"time"
)

type AWSConfig struct {
	Region          string
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
}

func (c *AWSConfig) Validate() error {
	if c.Region == "" {
		return errors.New("AWS_REGION is required")
	}
	if c.AccountID == "" {
		return errors.New("AWS_ACCOUNT_ID is required")
	}
	return nil
}

func (c *AWSConfig) ValidateSecrets() error {
	if c.AccessKeyID == "" || c.SecretAccessKey == "" {
		return errors.New("aws credentials are not set")
	}
	return nil
}

type RedisConfig struct {
	HOST string
}

type ServiceConfig struct {
	HTTPAddr                      string
	UploadsBucket                 string
	FilesTableName                string
	UploadsNotificationsQueueName string
	AnalysisURL                   string
	AnalysisAPIKey                string
}

// UploadConfig bounds the in-memory upload state.
type UploadConfig struct {
	SignedURLTTL    time.Duration
	MaxSessions     int
	MaxChunkUploads int
	ChunkTTL        time.Duration
	SweepInterval   time.Duration
}

type Config struct {
	Env         string
	Tracing     bool
	TracingAddr string

	AWSConfig     *AWSConfig
	RedisConfig   *RedisConfig
	ServiceConfig *ServiceConfig
	UploadConfig  *UploadConfig
}

func LoadConfig() Config {
	return Config{
		Env:         getEnv("APP_ENV", "development"),
		Tracing:     getEnvBool("TRACING_ENABLED", false),
		TracingAddr: getEnv("TRACING_ADDR", "localhost:4317"),

		AWSConfig: &AWSConfig{
			Region:          getEnv("AWS_REGION", "us-east-1"),
			AccountID:       getEnv("AWS_ACCOUNT_ID", ""),
			AccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
		},
		RedisConfig: &RedisConfig{
			HOST: getEnv("REDIS_HOST", ""),
		},
		ServiceConfig: &ServiceConfig{
			HTTPAddr:                      getEnv("UPLOADS_HTTP_ADDR", ":8084"),
			UploadsBucket:                 getEnv("UPLOADS_BUCKET", "nanostudio-uploads"),
			FilesTableName:                getEnv("FILES_TABLE_NAME", "files"),
			UploadsNotificationsQueueName: getEnv("UPLOADS_NOTIFICATIONS_QUEUE", "uploads-notifications"),
			AnalysisURL:                   getEnv("ANALYSIS_URL", ""),
			AnalysisAPIKey:                getEnv("ANALYSIS_API_KEY", ""),
		},
		UploadConfig: &UploadConfig{
			SignedURLTTL:    getEnvDuration("SIGNED_URL_TTL", time.Hour),
			MaxSessions:     getEnvInt("MAX_UPLOAD_SESSIONS", 10000),
			MaxChunkUploads: getEnvInt("MAX_CHUNK_UPLOADS", 1000),
			ChunkTTL:        getEnvDuration("CHUNK_UPLOAD_TTL", time.Hour),
			SweepInterval:   getEnvDuration("UPLOAD_SWEEP_INTERVAL", time.Minute),
		},
	}
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
