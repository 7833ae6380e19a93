// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type ServerConfig struct {
	Port int `yaml:"port"`
	// StreamWriteTimeout bounds one SSE relay; 0 disables.
	StreamWriteTimeout time.Duration `yaml:"stream_write_timeout"`
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int    `yaml:"max_conns"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

type AIConfig struct {
	OpenAIKey          string `yaml:"openai_key"`
	OpenAIBaseURL      string `yaml:"openai_base_url"`
	GeminiKey          string `yaml:"gemini_key"`
	GeminiURL          string `yaml:"gemini_url"`
	DefaultModel       string `yaml:"default_model"`
	HistoryTokenBudget int    `yaml:"history_token_budget"`
}

type WorkerConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"` // scheduler tick
	StaleAfter   time.Duration `yaml:"stale_after"`   // processing -> stale cutoff
	BatchSize    int           `yaml:"batch_size"`    // max jobs per tick
	Workers      int           `yaml:"workers"`       // pool size
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

type ToolsConfig struct {
	WebSearchEndpoint string   `yaml:"web_search_endpoint"`
	Enabled           []string `yaml:"enabled"` // nil = all registered
}

type SecurityConfig struct {
	EncryptionKey string `yaml:"encryption_key"`
}

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	AI       AIConfig       `yaml:"ai"`
	Worker   WorkerConfig   `yaml:"worker"`
	Auth     AuthConfig     `yaml:"auth"`
	Tools    ToolsConfig    `yaml:"tools"`
	Security SecurityConfig `yaml:"security"`

	Runtime RuntimeConfig `yaml:"-"`
}

func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	// defaults
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = 10
	}
	cfg.Redis.TTL = normalizeTTL(cfg.Redis.TTL)
	if cfg.AI.DefaultModel == "" {
		cfg.AI.DefaultModel = "gpt-4o-mini"
	}
	if cfg.AI.HistoryTokenBudget <= 0 {
		cfg.AI.HistoryTokenBudget = 8000
	}
	if cfg.Worker.PollInterval <= 0 {
		cfg.Worker.PollInterval = 10 * time.Second
	}
	if cfg.Worker.StaleAfter <= 0 {
		cfg.Worker.StaleAfter = 5 * time.Minute
	}
	if cfg.Worker.BatchSize <= 0 {
		cfg.Worker.BatchSize = 10
	}
	if cfg.Worker.Workers <= 0 {
		cfg.Worker.Workers = 4
	}

	// Minimal validation
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}
	if cfg.Redis.URL == "" {
		return nil, errors.New("redis.url is required")
	}
	if cfg.Auth.JWTSecret == "" && !dev {
		return nil, errors.New("auth.jwt_secret is required outside dev mode")
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}

func normalizeTTL(d time.Duration) time.Duration {
	if d <= 0 {
		return time.Hour
	}
	return d
}
