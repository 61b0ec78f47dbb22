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

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type ServerConfig struct {
	Port       int           `yaml:"port"`
	JWTSecret  string        `yaml:"jwt_secret"`
	SessionTTL time.Duration `yaml:"session_ttl"`
	// SendRateLimit caps user messages per window (0 disables).
	SendRateLimit  int           `yaml:"send_rate_limit"`
	SendRateWindow time.Duration `yaml:"send_rate_window"`
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	PoolSize int    `yaml:"pool_size"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

type AIConfig struct {
	Provider        string        `yaml:"provider"`   // gemini | openai
	GeminiURL       string        `yaml:"gemini_url"` // optional override
	OpenAIURL       string        `yaml:"openai_url"` // optional override
	DefaultModel    string        `yaml:"default_model"`
	MaxOutputTokens int           `yaml:"max_output_tokens"`
	ConcurrentLimit int           `yaml:"concurrent_limit"` // max concurrent AI calls
	RetryAttempts   int           `yaml:"retry_attempts"`   // transient-overload retries
	RetryBaseDelay  time.Duration `yaml:"retry_base_delay"`
}

type MemoryConfig struct {
	// RecentTurns is the number of user+assistant pairs sent verbatim.
	RecentTurns int `yaml:"recent_turns"`
	// SummaryThreshold is the unsummarized message count that triggers
	// background summarization (pairs * 2).
	SummaryThreshold int `yaml:"summary_threshold"`
	// LorebookCap bounds active lorebook entries per request.
	LorebookCap int `yaml:"lorebook_cap"`
	// Workers sizes the background summarization pool.
	Workers int `yaml:"workers"`
}

type SecurityConfig struct {
	EncryptionKey string `yaml:"encryption_key"`
}

type Config struct {
	Log      LogConfig      `yaml:"log"`
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	AI       AIConfig       `yaml:"ai"`
	Memory   MemoryConfig   `yaml:"memory"`
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
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.SessionTTL <= 0 {
		cfg.Server.SessionTTL = 24 * time.Hour
	}
	if cfg.Server.SendRateWindow <= 0 {
		cfg.Server.SendRateWindow = time.Minute
	}
	if cfg.Database.PoolSize <= 0 {
		cfg.Database.PoolSize = 10
	}
	cfg.Redis.TTL = normalizeTTL(cfg.Redis.TTL)
	if cfg.AI.Provider == "" {
		cfg.AI.Provider = "gemini"
	}
	if cfg.AI.DefaultModel == "" {
		cfg.AI.DefaultModel = "gemini-2.0-flash"
	}
	if cfg.AI.MaxOutputTokens <= 0 {
		cfg.AI.MaxOutputTokens = 2048
	}
	if cfg.AI.ConcurrentLimit <= 0 {
		cfg.AI.ConcurrentLimit = 16
	}
	if cfg.AI.RetryAttempts <= 0 {
		cfg.AI.RetryAttempts = 3
	}
	if cfg.AI.RetryBaseDelay <= 0 {
		cfg.AI.RetryBaseDelay = 500 * time.Millisecond
	}
	if cfg.Memory.RecentTurns <= 0 {
		cfg.Memory.RecentTurns = 10
	}
	if cfg.Memory.SummaryThreshold <= 0 {
		cfg.Memory.SummaryThreshold = cfg.Memory.RecentTurns * 2
	}
	if cfg.Memory.LorebookCap <= 0 {
		cfg.Memory.LorebookCap = 3
	}
	if cfg.Memory.Workers <= 0 {
		cfg.Memory.Workers = 4
	}

	// Minimal validation
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}
	if cfg.Redis.URL == "" {
		return nil, errors.New("redis.url is required")
	}
	if cfg.Server.JWTSecret == "" {
		return nil, errors.New("server.jwt_secret is required")
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
