// Package config loads runtime settings from environment variables. The
// resulting Config is passed to constructors; nothing reads os.Getenv later.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type Config struct {
	Env            string
	Port           string
	DatabaseURL    string
	StoreDriver    string
	AllowedOrigins string
	LogLevel       string

	JWTSecret    string
	JWTTTL       time.Duration
	BcryptCost   int
	GatewayToken string

	RedisAddr           string
	RedisPassword       string
	RedisDB             int
	LeaderboardCacheTTL time.Duration

	RabbitMQURL        string
	EventsExchange     string
	EventRelayInterval time.Duration
	EventMaxAttempts   int

	LevelRecalcInterval time.Duration
	DefaultLevelSpan    int64

	UploadDir   string
	MaxFileSize int64

	CloudflareAccountID string
	R2AccessKeyID       string
	R2AccessKeySecret   string
	R2BucketName        string
	CDNBaseURL          string
}

// R2Enabled reports whether every credential needed for Cloudflare R2 is present.
func (c Config) R2Enabled() bool {
	return c.CloudflareAccountID != "" && c.R2AccessKeyID != "" &&
		c.R2AccessKeySecret != "" && c.R2BucketName != ""
}

// Load reads the environment. Missing required keys and malformed numbers or
// durations are returned as errors rather than replaced by defaults.
func Load() (Config, error) {
	l := loader{}
	cfg := Config{
		Env:            l.str("APP_ENV", "development"),
		Port:           l.str("PORT", "5000"),
		DatabaseURL:    l.str("DATABASE_URL", ""),
		StoreDriver:    strings.ToLower(l.str("STORE_DRIVER", DriverPostgres)),
		AllowedOrigins: l.str("ALLOWED_ORIGINS", "*"),
		LogLevel:       l.str("LOG_LEVEL", "info"),

		JWTSecret:    l.str("JWT_SECRET", ""),
		JWTTTL:       l.dur("JWT_TTL", 7*24*time.Hour),
		BcryptCost:   l.int("BCRYPT_COST", 12),
		GatewayToken: l.str("GATEWAY_TOKEN", ""),

		RedisAddr:           l.str("REDIS_ADDR", ""),
		RedisPassword:       l.str("REDIS_PASSWORD", ""),
		RedisDB:             l.int("REDIS_DB", 0),
		LeaderboardCacheTTL: l.dur("LEADERBOARD_CACHE_TTL", 500*time.Millisecond),

		RabbitMQURL:        l.str("RABBITMQ_URL", ""),
		EventsExchange:     l.str("EVENTS_EXCHANGE", "challengequest.events"),
		EventRelayInterval: l.dur("EVENT_RELAY_INTERVAL", 5*time.Second),
		EventMaxAttempts:   l.int("EVENT_MAX_ATTEMPTS", 10),

		LevelRecalcInterval: l.dur("LEVEL_RECALC_INTERVAL", time.Hour),
		DefaultLevelSpan:    int64(l.int("DEFAULT_LEVEL_SPAN", 1000)),

		UploadDir:   l.str("UPLOAD_DIR", "uploads"),
		MaxFileSize: int64(l.int("MAX_FILE_SIZE", 5*1024*1024)),

		CloudflareAccountID: l.str("CLOUDFLARE_ACCOUNT_ID", ""),
		R2AccessKeyID:       l.str("R2_ACCESS_KEY_ID", ""),
		R2AccessKeySecret:   l.str("R2_ACCESS_KEY_SECRET", ""),
		R2BucketName:        l.str("R2_BUCKET_NAME", ""),
		CDNBaseURL:          l.str("CDN_BASE_URL", ""),
	}
	if l.err != nil {
		return Config{}, l.err
	}

	switch cfg.StoreDriver {
	case DriverPostgres:
		if cfg.DatabaseURL == "" {
			return Config{}, fmt.Errorf("missing required env var: DATABASE_URL")
		}
	case DriverMemory:
	default:
		return Config{}, fmt.Errorf("invalid STORE_DRIVER %q", cfg.StoreDriver)
	}
	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("missing required env var: JWT_SECRET")
	}
	if cfg.DefaultLevelSpan <= 0 {
		return Config{}, fmt.Errorf("DEFAULT_LEVEL_SPAN must be positive")
	}
	return cfg, nil
}

// loader keeps the first parse error so Load can read every key in one pass.
type loader struct {
	err error
}

func (l *loader) str(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func (l *loader) int(key string, def int) int {
	s := l.str(key, "")
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil && l.err == nil {
		l.err = fmt.Errorf("invalid int for %s: %q", key, s)
	}
	return n
}

func (l *loader) dur(key string, def time.Duration) time.Duration {
	s := l.str(key, "")
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil && l.err == nil {
		l.err = fmt.Errorf("invalid duration for %s: %q", key, s)
	}
	return d
}
