package config

import (
	"log/slog"
	"os"
	"strconv"
	"time"
)

type R2 struct {
	AccountID  string
	AccessKey  string
	SecretKey  string
	BucketName string
	PublicURL  string
}

type Log struct {
	Level  string
	Format string
	Output string
	File   string
}

type Config struct {
	PostgresURI string
	RedisURI    string
	AppEnv      string

	DispatchMode       string
	SchedulerInterval  time.Duration
	SchedulerBatchSize int

	TokenRefreshInterval    time.Duration
	TokenRefreshWindow      time.Duration
	YoutubeRefreshThreshold time.Duration
	YoutubeChunkSize        int

	GoogleClientID     string
	GoogleClientSecret string
	TiktokClientKey    string
	TiktokClientSecret string
	TiktokPrivacyLevel string

	APIRateLimit int

	FFmpegPath  string
	FFprobePath string

	R2  R2
	Log Log

	TokenSecret    string
	SecretKey      string
	OperatorAPIKey string
	OperatorAddr   string
	SentryDSN      string
}

const (
	DispatchInline = "inline"
	DispatchQueue  = "queue"
)

func LoadConfig() *Config {
	return &Config{
		PostgresURI: getEnv("POSTGRES_URI", ""),
		RedisURI:    getEnv("REDIS_URI", "localhost:6379"),
		AppEnv:      getEnv("APP_ENV", "development"),

		DispatchMode:       getEnv("DISPATCH_MODE", DispatchInline),
		SchedulerInterval:  getDuration("SCHEDULER_INTERVAL", 60*time.Second),
		SchedulerBatchSize: getInt("SCHEDULER_BATCH_SIZE", 50),

		TokenRefreshInterval:    getDuration("TOKEN_REFRESH_INTERVAL", 10*time.Minute),
		TokenRefreshWindow:      getDuration("TOKEN_REFRESH_WINDOW", 30*time.Minute),
		YoutubeRefreshThreshold: getDuration("YOUTUBE_REFRESH_THRESHOLD", 5*time.Minute),
		YoutubeChunkSize:        getInt("YOUTUBE_CHUNK_SIZE", 8*1024*1024),

		GoogleClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
		TiktokClientKey:    getEnv("TIKTOK_CLIENT_KEY", ""),
		TiktokClientSecret: getEnv("TIKTOK_CLIENT_SECRET", ""),
		TiktokPrivacyLevel: getEnv("TIKTOK_PRIVACY_LEVEL", "SELF_ONLY"),

		APIRateLimit: getInt("API_RATE_LIMIT", 5),

		FFmpegPath:  getEnv("FFMPEG_PATH", "ffmpeg"),
		FFprobePath: getEnv("FFPROBE_PATH", "ffprobe"),

		R2: R2{
			AccountID:  getEnv("R2_ACCOUNT_ID", ""),
			AccessKey:  getEnv("R2_ACCESS_KEY", ""),
			SecretKey:  getEnv("R2_SECRET_KEY", ""),
			BucketName: getEnv("R2_BUCKET_NAME", ""),
			PublicURL:  getEnv("R2_PUBLIC_URL", ""),
		},
		Log: Log{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
			Output: getEnv("LOG_OUTPUT", "stdout"),
			File:   getEnv("LOG_FILE", "logs/postflow.log"),
		},

		TokenSecret:    getEnv("TOKEN_SECRET", ""),
		SecretKey:      getEnv("SECRET_KEY", ""),
		OperatorAPIKey: getEnv("OPERATOR_API_KEY", ""),
		OperatorAddr:   getEnv("OPERATOR_ADDR", ":3000"),
		SentryDSN:      getEnv("SENTRY_DSN", ""),
	}
}

// R2Enabled reports whether enough R2 settings are present to build a client.
func (c *Config) R2Enabled() bool {
	return c.R2.AccountID != "" && c.R2.AccessKey != "" && c.R2.SecretKey != "" && c.R2.BucketName != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		slog.Warn("invalid duration, using default", "key", key, "value", value)
		return defaultValue
	}
	return d
}

func getInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil || n <= 0 {
		slog.Warn("invalid integer, using default", "key", key, "value", value)
		return defaultValue
	}
	return n
}
