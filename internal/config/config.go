package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config collects every knob the bot reads from the environment.
type Config struct {
	BotToken string
	AdminIDs []int64

	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string

	PostgresDSN string

	SessionTTL time.Duration
	CacheTTL   time.Duration
	PageSize   int

	FanoutWorkers        int
	FanoutMaxRetries     int
	FanoutAttemptTimeout time.Duration

	RemindUnreportedSpec string
	RemindLateSpec       string
	DeadlineWarningSpec  string
	TaskSyncSpec         string

	TaskSourceURL   string
	TaskSourceToken string
}

// Load reads config.env if present, then the environment. Only the bot
// token is mandatory.
func Load() (*Config, error) {
	_ = godotenv.Load("config.env")

	cfg := &Config{
		BotToken:             os.Getenv("BOT_TOKEN"),
		RedisHost:            envOr("REDIS_HOST", "localhost"),
		RedisPort:            envOr("REDIS_PORT", "6379"),
		RedisPassword:        os.Getenv("REDIS_PASSWORD"),
		RedisDB:              envInt("REDIS_DB", 0),
		RedisPrefix:          envOr("REDIS_PREFIX", "report_bot"),
		PostgresDSN:          os.Getenv("POSTGRES_DSN"),
		SessionTTL:           envDuration("SESSION_TTL", 24*time.Hour),
		CacheTTL:             envDuration("CACHE_TTL", 5*time.Minute),
		PageSize:             envInt("SELECTION_PAGE_SIZE", 5),
		FanoutWorkers:        envInt("FANOUT_WORKERS", 4),
		FanoutMaxRetries:     envInt("FANOUT_MAX_RETRIES", 3),
		FanoutAttemptTimeout: envDuration("FANOUT_ATTEMPT_TIMEOUT", 10*time.Second),
		RemindUnreportedSpec: os.Getenv("REMIND_UNREPORTED_CRON"),
		RemindLateSpec:       os.Getenv("REMIND_LATE_CRON"),
		DeadlineWarningSpec:  os.Getenv("DEADLINE_WARNING_CRON"),
		TaskSyncSpec:         os.Getenv("TASK_SYNC_SPEC"),
		TaskSourceURL:        os.Getenv("TASK_SOURCE_URL"),
		TaskSourceToken:      os.Getenv("TASK_SOURCE_TOKEN"),
	}

	if cfg.BotToken == "" {
		return nil, fmt.Errorf("BOT_TOKEN is not set")
	}

	ids, err := parseAdminIDs(os.Getenv("ADMIN_IDS"))
	if err != nil {
		return nil, err
	}
	cfg.AdminIDs = ids

	return cfg, nil
}

func (c *Config) RedisAddr() string {
	return c.RedisHost + ":" + c.RedisPort
}

func parseAdminIDs(raw string) ([]int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	ids := make([]int64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		id, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("ADMIN_IDS: bad entry %q: %w", p, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
