package config

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"

	"github.com/neomorfeo/rehome/internal/domain"
)

// Config is the process configuration, read from the environment.
type Config struct {
	Port         string `env:"PORT,default=8080"`
	DatabasePath string `env:"DATABASE_PATH,default=rehome.db"`
	Store        string `env:"STORE,default=sqlite"` // "sqlite" or "memory"

	ModerationPolicy string `env:"MODERATION_POLICY,default=manual_review"`
	ModeratorIDs     string `env:"MODERATOR_IDS"` // comma-separated actor ids

	Notifier     string `env:"NOTIFIER,default=log"` // "river", "redis" or "log"
	RedisAddr    string `env:"REDIS_ADDR,default=localhost:6379"`
	RedisChannel string `env:"REDIS_CHANNEL,default=rehome.notifications"`

	LogLevel  string `env:"LOG_LEVEL,default=info"`
	LogFormat string `env:"LOG_FORMAT,default=text"` // "text" or "json"

	RetryDelay time.Duration `env:"RETRY_DELAY,default=5ms"`
}

// Load reads an optional dotenv file and decodes the environment into a
// Config. Variables already set in the environment win over the file.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return Config{}, fmt.Errorf("loading env file %s: %w", envFile, err)
		}
	}

	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return Config{}, fmt.Errorf("decoding environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects values outside their enumerations.
func (c Config) Validate() error {
	var errs []error
	check := func(name, value string, allowed ...string) {
		if !slices.Contains(allowed, value) {
			errs = append(errs, fmt.Errorf("%s: %q is not one of %s", name, value, strings.Join(allowed, ", ")))
		}
	}
	check("STORE", c.Store, "sqlite", "memory")
	check("MODERATION_POLICY", c.ModerationPolicy, string(domain.PolicyAutoApprove), string(domain.PolicyManualReview))
	check("NOTIFIER", c.Notifier, "river", "redis", "log")
	check("LOG_LEVEL", strings.ToLower(c.LogLevel), "debug", "info", "warn", "error")
	check("LOG_FORMAT", c.LogFormat, "text", "json")
	if c.Notifier == "river" && c.Store != "sqlite" {
		errs = append(errs, errors.New("NOTIFIER: river needs STORE=sqlite for its job table"))
	}
	if c.RetryDelay <= 0 {
		errs = append(errs, fmt.Errorf("RETRY_DELAY: must be positive, got %s", c.RetryDelay))
	}
	if c.Port == "" {
		errs = append(errs, errors.New("PORT: must not be empty"))
	}
	return errors.Join(errs...)
}

// Moderators returns the configured moderator ids.
func (c Config) Moderators() []string {
	var ids []string
	for _, id := range strings.Split(c.ModeratorIDs, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// Policy returns the moderation policy for new listings.
func (c Config) Policy() domain.ModerationPolicy {
	return domain.ModerationPolicy(c.ModerationPolicy)
}

// Level returns the slog level named by LogLevel.
func (c Config) Level() slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return l
}
