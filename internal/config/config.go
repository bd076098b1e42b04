package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sujalbistaa/stickyboard/internal/moderation"
)

// Config is centralized process configuration, read once at startup.
type Config struct {
	Port        string
	DatabaseURL string
	AdminToken  string
	CORSOrigin  string
	LogLevel    string

	RateLimitBackend string
	RedisURL         string
	RedisPrefix      string

	AutoRejectThreshold int
	BlockLinks          bool
	Policies            map[moderation.PolicyName]moderation.Policy

	InteractionRPS   float64
	InteractionBurst int
}

const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

func Load() (Config, error) {
	policies := moderation.DefaultPolicies()
	var err error
	set := func(name moderation.PolicyName, limitKey string, cooldownKey string) {
		p := policies[name]
		p.Limit, err = envInt(limitKey, p.Limit, err)
		if cooldownKey != "" {
			p.Cooldown, err = envDuration(cooldownKey, p.Cooldown, err)
		}
		policies[name] = p
	}
	set(moderation.PolicyMessage, "MESSAGE_DAILY_LIMIT", "MESSAGE_COOLDOWN")
	set(moderation.PolicyComment, "COMMENT_LIMIT", "")
	set(moderation.PolicyCommentPerMessage, "COMMENT_PER_MESSAGE_LIMIT", "")
	set(moderation.PolicyViolationReport, "REPORT_HOURLY_LIMIT", "")

	cfg := Config{
		Port:             envString("PORT", "8080"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		AdminToken:       os.Getenv("X_ADMIN_TOKEN"),
		CORSOrigin:       envString("CORS_ORIGIN", "*"),
		LogLevel:         envString("LOG_LEVEL", "info"),
		RateLimitBackend: strings.ToLower(envString("RATE_LIMIT_BACKEND", BackendMemory)),
		RedisURL:         os.Getenv("REDIS_URL"),
		RedisPrefix:      envString("REDIS_PREFIX", "stickyboard:"),
		BlockLinks:       envBool("BLOCK_LINKS", false),
		Policies:         policies,
	}
	cfg.AutoRejectThreshold, err = envInt("AUTO_REJECT_THRESHOLD", moderation.DefaultAutoRejectThreshold, err)
	cfg.InteractionRPS, err = envFloat("INTERACTION_RPS", 2, err)
	cfg.InteractionBurst, err = envInt("INTERACTION_BURST", 5, err)
	if err != nil {
		return Config{}, err
	}

	if cfg.AdminToken == "" {
		return Config{}, fmt.Errorf("X_ADMIN_TOKEN must be set")
	}
	switch cfg.RateLimitBackend {
	case BackendMemory, BackendRedis:
	default:
		return Config{}, fmt.Errorf("RATE_LIMIT_BACKEND must be %q or %q, got %q", BackendMemory, BackendRedis, cfg.RateLimitBackend)
	}
	if cfg.AutoRejectThreshold < 1 {
		return Config{}, fmt.Errorf("AUTO_REJECT_THRESHOLD must be at least 1")
	}
	for name, p := range cfg.Policies {
		if p.Limit < 1 {
			return Config{}, fmt.Errorf("rate limit for %s must be at least 1", name)
		}
	}
	return cfg, nil
}

func envString(name, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		return v
	}
	return fallback
}

func envBool(name string, fallback bool) bool {
	raw := strings.TrimSpace(strings.ToLower(os.Getenv(name)))
	if raw == "" {
		return fallback
	}
	switch raw {
	case "1", "true", "t", "yes", "y", "on":
		return true
	case "0", "false", "f", "no", "n", "off":
		return false
	default:
		return fallback
	}
}

// The env* parsers below keep the first error seen so Load can report it
// after reading everything.

func envInt(name string, fallback int, prev error) (int, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" || prev != nil {
		return fallback, prev
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback, fmt.Errorf("%s: %w", name, err)
	}
	return v, nil
}

func envFloat(name string, fallback float64, prev error) (float64, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" || prev != nil {
		return fallback, prev
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fallback, fmt.Errorf("%s: %w", name, err)
	}
	return v, nil
}

func envDuration(name string, fallback time.Duration, prev error) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" || prev != nil {
		return fallback, prev
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return fallback, fmt.Errorf("%s: %w", name, err)
	}
	return v, nil
}
