package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// ストアドライバ
const (
	StoreFile     = "file"
	StorePostgres = "postgres"
)

// 監査ログのシンク
const (
	SinkFile     = "file"
	SinkPostgres = "postgres"
	SinkNATS     = "nats"
	SinkRedis    = "redis"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Server
	ServerPort     string
	MaxConnections int
	StaticDir      string

	// Data
	DataDir     string
	LogDir      string
	UsersFile   string
	PlayersFile string
	StateFile   string

	// Persistence
	StoreDriver string
	DatabaseURL string

	// Audit
	AuditSinks    []string
	NATSURL       string
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Auction
	CloseInterval time.Duration

	// Identity
	AllowIdentityOverride bool
	TrustForwardedFor     bool

	// Rate Limit
	RateLimitIntents int

	// CORS
	CORSAllowedOrigin string

	// Logging
	LogLevel string
}

// Load は環境変数からConfigを読み込む。
// 不正な組み合わせ（未知のドライバ・シンク、URLのないPostgreSQLなど）の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.ServerPort = getEnvString("SERVER_PORT", "3000")
	cfg.MaxConnections = getEnvInt("MAX_CONNECTIONS", 1000)
	cfg.StaticDir = getEnvString("STATIC_DIR", "public")

	cfg.DataDir = getEnvString("DATA_DIR", "data")
	cfg.LogDir = getEnvString("LOG_DIR", "logs")
	cfg.UsersFile = getEnvString("USERS_FILE", filepath.Join(cfg.DataDir, "users.json"))
	cfg.PlayersFile = getEnvString("PLAYERS_FILE", filepath.Join(cfg.DataDir, "players.json"))
	cfg.StateFile = getEnvString("STATE_FILE", filepath.Join(cfg.DataDir, "state.json"))

	cfg.StoreDriver = strings.ToLower(getEnvString("STORE_DRIVER", StoreFile))
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")

	cfg.AuditSinks = getEnvList("AUDIT_SINKS", []string{SinkFile})
	cfg.NATSURL = getEnvString("NATS_URL", "nats://localhost:4222")
	cfg.RedisAddr = getEnvString("REDIS_ADDR", "localhost:6379")
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	cfg.RedisDB = getEnvInt("REDIS_DB", 0)

	cfg.CloseInterval = getEnvDuration("CLOSE_INTERVAL", time.Second)
	cfg.AllowIdentityOverride = getEnvBool("ALLOW_IDENTITY_OVERRIDE", true)
	cfg.TrustForwardedFor = getEnvBool("TRUST_FORWARDED_FOR", true)
	cfg.RateLimitIntents = getEnvInt("RATE_LIMIT_INTENTS", 20)
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "*")
	cfg.LogLevel = strings.ToLower(getEnvString("LOG_LEVEL", "info"))

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// HasSink は指定の監査シンクが有効かを返す。
func (c *Config) HasSink(name string) bool {
	for _, s := range c.AuditSinks {
		if s == name {
			return true
		}
	}
	return false
}

// NeedsDatabase はPostgreSQL接続が必要な設定かを返す。
func (c *Config) NeedsDatabase() bool {
	return c.StoreDriver == StorePostgres || c.HasSink(SinkPostgres)
}

func (c *Config) validate() error {
	var problems []string

	switch c.StoreDriver {
	case StoreFile, StorePostgres:
	default:
		problems = append(problems, fmt.Sprintf("unknown STORE_DRIVER %q", c.StoreDriver))
	}

	for _, s := range c.AuditSinks {
		switch s {
		case SinkFile, SinkPostgres, SinkNATS, SinkRedis:
		default:
			problems = append(problems, fmt.Sprintf("unknown audit sink %q", s))
		}
	}

	if c.NeedsDatabase() && c.DatabaseURL == "" {
		problems = append(problems, "DATABASE_URL is required for the postgres store or audit sink")
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		problems = append(problems, fmt.Sprintf("unknown LOG_LEVEL %q", c.LogLevel))
	}

	if c.CloseInterval <= 0 {
		problems = append(problems, "CLOSE_INTERVAL must be positive")
	}
	if c.RateLimitIntents <= 0 {
		problems = append(problems, "RATE_LIMIT_INTENTS must be positive")
	}
	if c.MaxConnections <= 0 {
		problems = append(problems, "MAX_CONNECTIONS must be positive")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
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

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
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

// getEnvList はカンマ区切りの値を小文字・重複なしのリストとして返す。
func getEnvList(key string, defaultVal []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	seen := make(map[string]bool)
	var out []string
	for _, part := range strings.Split(v, ",") {
		p := strings.ToLower(strings.TrimSpace(part))
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}
