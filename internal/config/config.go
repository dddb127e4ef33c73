package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// News
	NewsPageSize int

	// Account
	BcryptCost int

	// Import
	FetchTimeout time.Duration
	FetchMaxSize int64

	// Prune
	PruneRetentionDays int           // 0の場合、serve中の定期削除を行わない
	PruneInterval      time.Duration

	// Metrics
	PushgatewayURL string // import/pruneの結果を送るPushgateway。空の場合は送らない

	// Rate Limit
	RateLimitGeneral int // req/min/client

	// Logging
	LogLevel slog.Level

	// Server
	ServerPort string

	// CORS
	CORSAllowedOrigin string

	// Client
	APIBaseURL    string
	ClientTimeout time.Duration
}

// LoadDotEnv はカレントディレクトリの.envファイルを環境変数に読み込む。
// ファイルが存在しない場合は何もしない。既存の環境変数は上書きしない。
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	var existing []string
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			existing = append(existing, p)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	if err := godotenv.Load(existing...); err != nil {
		return fmt.Errorf("failed to load env file: %w", err)
	}
	return nil
}

// Load は環境変数からサーバー用のConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := LoadClient()

	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	return cfg, nil
}

// LoadClient はDB接続を必要としないコマンド（read, register, login）向けの設定を読み込む。
// 必須項目はなく、すべてデフォルト値を持つ。
func LoadClient() *Config {
	cfg := &Config{}

	cfg.NewsPageSize = getEnvInt("NEWS_PAGE_SIZE", 5)
	if cfg.NewsPageSize <= 0 {
		cfg.NewsPageSize = 5
	}
	cfg.BcryptCost = getEnvInt("BCRYPT_COST", 10)
	cfg.FetchTimeout = getEnvDuration("FETCH_TIMEOUT", 10*time.Second)
	cfg.FetchMaxSize = getEnvInt64("FETCH_MAX_SIZE", 5242880)
	cfg.PruneRetentionDays = getEnvInt("PRUNE_RETENTION_DAYS", 0)
	if cfg.PruneRetentionDays < 0 {
		cfg.PruneRetentionDays = 0
	}
	cfg.PruneInterval = getEnvDuration("PRUNE_INTERVAL", 24*time.Hour)
	if cfg.PruneInterval <= 0 {
		cfg.PruneInterval = 24 * time.Hour
	}
	cfg.PushgatewayURL = getEnvString("PUSHGATEWAY_URL", "")
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.LogLevel = parseLevel(getEnvString("LOG_LEVEL", "info"))
	cfg.ServerPort = getEnvString("SERVER_PORT", "5000")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "*")
	cfg.APIBaseURL = strings.TrimRight(getEnvString("API_BASE_URL", "http://127.0.0.1:5000"), "/")
	cfg.ClientTimeout = getEnvDuration("CLIENT_TIMEOUT", 10*time.Second)

	return cfg
}

// parseLevel はLOG_LEVELの文字列をslog.Levelに変換する。
// 不明な値はInfoとして扱う。
func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
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
