package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// minJWTSecretLength はHS256署名鍵として受け付ける最小バイト数。
const minJWTSecretLength = 32

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// App
	AppEnv   string
	LogLevel string

	// Database
	DatabaseURL string

	// Token
	JWTSecret       string
	SessionTokenTTL time.Duration
	VerifyTokenTTL  time.Duration
	ResetTokenTTL   time.Duration
	BcryptCost      int

	// Rate Limit
	RateLimitGeneral int
	RateLimitAuth    int
	RedisURL         string

	// Mail
	MailAPIURL   string
	MailAPIKey   string
	MailFrom     string
	MailFromName string
	MailTimeout  time.Duration

	// Media
	S3Bucket        string
	S3Region        string
	S3Endpoint      string
	S3PublicBaseURL string
	UploadMaxSize   int64

	// Worker
	ReconcileInterval time.Duration
	// WorkerMetricsPort はworkerプロセスが/metricsを公開するポート。
	WorkerMetricsPort string

	// Server
	ServerPort string
	BaseURL    string

	// CORS
	CORSAllowedOrigin string
}

// IsDevelopment は開発環境で起動しているかを返す。
// 開発環境では予期しないエラーの詳細をレスポンスに含める。
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.JWTSecret = os.Getenv("JWT_SECRET")
	if cfg.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}

	cfg.BaseURL = os.Getenv("BASE_URL")
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	if len(cfg.JWTSecret) < minJWTSecretLength {
		return nil, fmt.Errorf("JWT_SECRET must be at least %d bytes", minJWTSecretLength)
	}

	// Optional fields with defaults
	cfg.AppEnv = getEnvString("APP_ENV", "production")
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.SessionTokenTTL = getEnvDuration("JWT_SESSION_TTL", 30*24*time.Hour)
	cfg.VerifyTokenTTL = getEnvDuration("JWT_VERIFY_TTL", 24*time.Hour)
	cfg.ResetTokenTTL = getEnvDuration("JWT_RESET_TTL", 10*time.Minute)
	cfg.BcryptCost = getEnvInt("BCRYPT_COST", 12)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitAuth = getEnvInt("RATE_LIMIT_AUTH", 10)
	cfg.RedisURL = getEnvString("REDIS_URL", "")
	cfg.MailAPIURL = getEnvString("MAIL_API_URL", "")
	cfg.MailAPIKey = getEnvString("MAIL_API_KEY", "")
	cfg.MailFrom = getEnvString("MAIL_FROM", "no-reply@friendsplace.local")
	cfg.MailFromName = getEnvString("MAIL_FROM_NAME", "Friendsplace")
	cfg.MailTimeout = getEnvDuration("MAIL_TIMEOUT", 10*time.Second)
	cfg.S3Bucket = getEnvString("S3_BUCKET", "")
	cfg.S3Region = getEnvString("S3_REGION", "us-east-1")
	cfg.S3Endpoint = getEnvString("S3_ENDPOINT", "")
	cfg.S3PublicBaseURL = getEnvString("S3_PUBLIC_BASE_URL", "")
	cfg.UploadMaxSize = getEnvInt64("UPLOAD_MAX_SIZE", 10485760)
	cfg.ReconcileInterval = getEnvDuration("RECONCILE_INTERVAL", 15*time.Minute)
	cfg.WorkerMetricsPort = getEnvString("WORKER_METRICS_PORT", "9091")
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
