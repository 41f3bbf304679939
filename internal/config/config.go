package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// 通知の送信手段。
const (
	NotifyBackendLog  = "log"
	NotifyBackendSMTP = "smtp"
	NotifyBackendAMQP = "amqp"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Security
	SecretKey  string // 削除トークンのHMAC鍵
	BcryptCost int

	// Frontend
	FrontendURL string

	// Session
	SessionMaxAge          int
	SessionCleanupInterval time.Duration

	// Account actions
	AccountRequestTTL   time.Duration
	DeletionTokenExpiry time.Duration // 0以下ならすべての削除トークンを期限切れとして扱う
	EmailConfirmExpiry  time.Duration // 登録確認トークンの有効期間

	// Notification
	NotifyBackend    string
	SMTPHost         string
	SMTPPort         int
	SMTPUsername     string
	SMTPPassword     string
	DefaultFromEmail string
	AMQPURL          string
	MailQueue        string

	// Redis
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Rate Limit
	RateLimitGeneral        int // req/min
	RateLimitAccountActions int // req/hour

	// Server
	ServerPort string

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS
	CORSAllowedOrigin string
}

// LoadDotEnv は.envファイルの値を環境変数に取り込む。
// 既に設定済みの環境変数は上書きしない。ファイルが存在しない場合は何もしない。
func LoadDotEnv(filenames ...string) error {
	if len(filenames) == 0 {
		filenames = []string{".env"}
	}
	for _, name := range filenames {
		if err := godotenv.Load(name); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", name, err)
		}
	}
	return nil
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合は不足分をまとめてエラーとして返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.SecretKey = os.Getenv("SECRET_KEY")
	if cfg.SecretKey == "" {
		missing = append(missing, "SECRET_KEY")
	}

	cfg.FrontendURL = strings.TrimRight(os.Getenv("FRONTEND_URL"), "/")
	if cfg.FrontendURL == "" {
		missing = append(missing, "FRONTEND_URL")
	}

	cfg.NotifyBackend = strings.ToLower(getEnvString("NOTIFY_BACKEND", NotifyBackendLog))
	cfg.SMTPHost = os.Getenv("SMTP_HOST")
	cfg.AMQPURL = os.Getenv("AMQP_URL")
	switch cfg.NotifyBackend {
	case NotifyBackendLog:
	case NotifyBackendSMTP:
		if cfg.SMTPHost == "" {
			missing = append(missing, "SMTP_HOST")
		}
	case NotifyBackendAMQP:
		if cfg.AMQPURL == "" {
			missing = append(missing, "AMQP_URL")
		}
	default:
		return nil, fmt.Errorf("unsupported NOTIFY_BACKEND: %q", cfg.NotifyBackend)
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.BcryptCost = getEnvInt("BCRYPT_COST", 0)
	cfg.SessionMaxAge = getEnvInt("SESSION_MAX_AGE", 86400)
	cfg.SessionCleanupInterval = getEnvDuration("SESSION_CLEANUP_INTERVAL", time.Hour)
	cfg.AccountRequestTTL = getEnvDuration("ACCOUNT_REQUEST_TTL", 24*time.Hour)
	cfg.DeletionTokenExpiry = time.Duration(getEnvInt("PROFILE_DELETION_TOKEN_EXPIRY", 86400)) * time.Second
	cfg.EmailConfirmExpiry = time.Duration(getEnvInt("EMAIL_CONFIRMATION_EXPIRY", 259200)) * time.Second
	cfg.SMTPPort = getEnvInt("SMTP_PORT", 25)
	cfg.SMTPUsername = os.Getenv("SMTP_USERNAME")
	cfg.SMTPPassword = os.Getenv("SMTP_PASSWORD")
	cfg.DefaultFromEmail = getEnvString("DEFAULT_FROM_EMAIL", "noreply@booklog.local")
	cfg.MailQueue = getEnvString("MAIL_QUEUE", "mail.outbound")
	cfg.RedisAddr = os.Getenv("REDIS_ADDR")
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	cfg.RedisDB = getEnvInt("REDIS_DB", 0)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitAccountActions = getEnvInt("RATE_LIMIT_ACCOUNT_ACTIONS", 10)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CookieSecure = strings.HasPrefix(cfg.FrontendURL, "https://")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", cfg.FrontendURL)

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
