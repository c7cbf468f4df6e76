package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App        AppConfig
	Database   DatabaseConfig
	Session    SessionConfig
	Storage    StorageConfig
	HumanCheck HumanCheckConfig
	Tracing    TracingConfig
}

type AppConfig struct {
	Port               string
	BaseURL            string
	Environment        string
	LogFilePath        string
	RealtimeLogPath    string
	CorsAllowedOrigins string
	NatsURL            string
	RedisURL           string
	InstanceID         string
}

type DatabaseConfig struct {
	Connection string
}

// SessionConfig holds the timing rules of a drawing session.
type SessionConfig struct {
	TimeLimit            time.Duration
	ThumbnailInterval    time.Duration
	ThumbnailMinGap      time.Duration
	ArchiveLockTTL       time.Duration
	MaxUploadBytes       int64
	ReaperInterval       time.Duration
	ReaperGrace          time.Duration
	PresenceHeartbeatTTL time.Duration
}

type StorageConfig struct {
	Driver        string // "s3" or "local"
	LocalRoot     string
	PublicBaseURL string
	SigningSecret string
	S3            S3Config
}

type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
	PublicBaseURL   string // CDN or bucket website in front of the bucket
}

type HumanCheckConfig struct {
	Provider    string // "turnstile" or "static"
	SecretKey   string
	VerifyURL   string
	StaticToken string
}

// TracingConfig controls the OTLP exporter. Tracing stays off unless Enabled.
type TracingConfig struct {
	Enabled     bool
	Endpoint    string
	ServiceName string
	SampleRatio float64
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, usage system environment")
	}

	baseURL := getEnv("APP_BASE_URL", "http://localhost:3000")

	return &Config{
		App: AppConfig{
			Port:               getEnv("APP_PORT", "3000"),
			BaseURL:            baseURL,
			Environment:        getEnv("GO_ENV", "development"),
			LogFilePath:        getEnv("LOG_FILE_PATH", "logs/app.log"),
			RealtimeLogPath:    getEnv("REALTIME_LOG_PATH", "logs/realtime.log"),
			CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),
			NatsURL:            getEnv("NATS_URL", "nats://localhost:4222"),
			RedisURL:           getEnv("REDIS_URL", "redis://localhost:6379"),
			InstanceID:         getEnv("INSTANCE_ID", ""),
		},
		Database: DatabaseConfig{
			Connection: getEnv("DB_CONNECTION_STRING", ""),
		},
		Session: SessionConfig{
			TimeLimit:            time.Duration(getEnvAsInt("SESSION_TIME_LIMIT_MINUTES", 60)) * time.Minute,
			ThumbnailInterval:    time.Duration(getEnvAsInt("THUMBNAIL_INTERVAL_MINUTES", 5)) * time.Minute,
			ThumbnailMinGap:      time.Duration(getEnvAsInt("THUMBNAIL_MIN_INTERVAL_SECONDS", 60)) * time.Second,
			ArchiveLockTTL:       time.Duration(getEnvAsInt("ARCHIVE_LOCK_EXPIRY_MINUTES", 5)) * time.Minute,
			MaxUploadBytes:       getEnvAsInt64("MAX_UPLOAD_BYTES", 10*1024*1024),
			ReaperInterval:       time.Duration(getEnvAsInt("REAPER_INTERVAL_SECONDS", 60)) * time.Second,
			ReaperGrace:          time.Duration(getEnvAsInt("REAPER_GRACE_MINUTES", 2)) * time.Minute,
			PresenceHeartbeatTTL: time.Duration(getEnvAsInt("PRESENCE_TTL_SECONDS", 60)) * time.Second,
		},
		Storage: StorageConfig{
			Driver:        getEnv("STORAGE_DRIVER", "local"),
			LocalRoot:     getEnv("STORAGE_LOCAL_ROOT", "./uploads"),
			PublicBaseURL: getEnv("STORAGE_PUBLIC_BASE_URL", baseURL+"/api/storage"),
			SigningSecret: getEnv("STORAGE_SIGNING_SECRET", "dev-signing-secret"),
			S3: S3Config{
				Bucket:          getEnv("S3_BUCKET", "paintroom"),
				Region:          getEnv("S3_REGION", "ap-northeast-1"),
				Endpoint:        getEnv("S3_ENDPOINT", ""),
				AccessKeyID:     getEnv("S3_ACCESS_KEY_ID", ""),
				SecretAccessKey: getEnv("S3_SECRET_ACCESS_KEY", ""),
				UsePathStyle:    getEnv("S3_USE_PATH_STYLE", "false") == "true",
				PublicBaseURL:   getEnv("S3_PUBLIC_BASE_URL", ""),
			},
		},
		HumanCheck: HumanCheckConfig{
			Provider:    getEnv("HUMAN_CHECK_PROVIDER", "turnstile"),
			SecretKey:   getEnv("TURNSTILE_SECRET_KEY", ""),
			VerifyURL:   getEnv("TURNSTILE_VERIFY_URL", "https://challenges.cloudflare.com/turnstile/v0/siteverify"),
			StaticToken: getEnv("HUMAN_CHECK_STATIC_TOKEN", ""),
		},
		Tracing: TracingConfig{
			Enabled:     getEnv("OTEL_ENABLED", "false") == "true",
			Endpoint:    getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318"),
			ServiceName: getEnv("OTEL_SERVICE_NAME", "paintroom-backend"),
			SampleRatio: getEnvAsFloat("OTEL_SAMPLE_RATIO", 1),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsInt64(key string, fallback int64) int64 {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseInt(strValue, 10, 64); err == nil {
		return value
	}
	return fallback
}

func getEnvAsFloat(key string, fallback float64) float64 {
	if value, err := strconv.ParseFloat(getEnv(key, ""), 64); err == nil {
		return value
	}
	return fallback
}
