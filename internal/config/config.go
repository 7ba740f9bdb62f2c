// Package config loads server configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Port string `env:"PORT" envDefault:"8080"`

	DatabaseURL string `env:"DATABASE_URL,required"`

	// RedisAddr enables the per-game turn lock when set.
	RedisAddr string `env:"REDIS_ADDR"`
	RedisDB   int    `env:"REDIS_DB" envDefault:"0"`

	OpenAIAPIKey string `env:"OPENAI_API_KEY,required"`
	OpenAIBase   string `env:"OPENAI_BASE_URL"`

	// FastModel serves lane 1, DeliberateModel lane 2. ThinkingBudget is the
	// reasoning dial for lane 2; lane 1 always runs with budget 0.
	FastModel       string `env:"DM_FAST_MODEL" envDefault:"gpt-4o-mini"`
	DeliberateModel string `env:"DM_DELIBERATE_MODEL" envDefault:"o4-mini"`
	ThinkingBudget  int    `env:"DM_THINKING_BUDGET" envDefault:"1024"`

	GenerateTimeout time.Duration `env:"GENERATE_TIMEOUT" envDefault:"60s"`

	TokenExpire time.Duration `env:"TOKEN_EXPIRE_TIME" envDefault:"24h"`
}

// Load parses the process environment into a Config.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse config from env: %w", err)
	}
	if cfg.ThinkingBudget <= 0 {
		return Config{}, fmt.Errorf("DM_THINKING_BUDGET must be positive, got %d", cfg.ThinkingBudget)
	}
	return cfg, nil
}
