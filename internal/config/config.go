// File: internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type RedisConfig struct {
	URL             string        `yaml:"url"`
	Password        string        `yaml:"password"`
	DB              int           `yaml:"db"`
	ConversationTTL time.Duration `yaml:"conversation_ttl"`
}

type DatabaseConfig struct {
	URL string `yaml:"url"`
}

type RunPodConfig struct {
	APIKey    string            `yaml:"api_key"`
	BaseURL   string            `yaml:"base_url"`
	Endpoints map[string]string `yaml:"endpoints"` // model name -> endpoint ID
}

type GroqConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

type LimitsConfig struct {
	ChatPerWindow      int           `yaml:"chat_per_window"`
	Window             time.Duration `yaml:"window"`
	ConcurrentUpstream int           `yaml:"concurrent_upstream"` // max concurrent AI calls
}

type DefaultsConfig struct {
	Model       string  `yaml:"model"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
}

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
	Redis    RedisConfig    `yaml:"redis"`
	Database DatabaseConfig `yaml:"database"`
	RunPod   RunPodConfig   `yaml:"runpod"`
	Groq     GroqConfig     `yaml:"groq"`
	Limits   LimitsConfig   `yaml:"limits"`
	Defaults DefaultsConfig `yaml:"defaults"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig reads the YAML file and applies env overrides and defaults.
// A missing file is not fatal: every store and provider degrades to
// "not configured" instead of failing startup, so the gateway can run on
// env vars alone.
func LoadConfig(path string, dev bool) (*Config, error) {
	var cfg Config
	b, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	case os.IsNotExist(err):
		// env-only startup
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Secrets and connection strings may come from the environment. Env
	// wins over the file so deployments can rotate keys without edits.
	overrideString(&cfg.RunPod.APIKey, "RUNPOD_API_KEY")
	overrideString(&cfg.Groq.APIKey, "GROQ_API_KEY")
	overrideString(&cfg.Redis.URL, "REDIS_URL")
	overrideString(&cfg.Database.URL, "DATABASE_URL")
	if v := os.Getenv("PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = p
		}
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
	if cfg.Redis.ConversationTTL <= 0 {
		cfg.Redis.ConversationTTL = time.Hour
	}
	if cfg.RunPod.BaseURL == "" {
		cfg.RunPod.BaseURL = "https://api.runpod.ai/v2"
	}
	if cfg.Groq.BaseURL == "" {
		cfg.Groq.BaseURL = "https://api.groq.com/openai/v1"
	}
	if cfg.Groq.Model == "" {
		cfg.Groq.Model = "llama-3.1-8b-instant"
	}
	if cfg.Limits.ChatPerWindow <= 0 {
		cfg.Limits.ChatPerWindow = 60
	}
	if cfg.Limits.Window <= 0 {
		cfg.Limits.Window = time.Minute
	}
	if cfg.Limits.ConcurrentUpstream <= 0 {
		cfg.Limits.ConcurrentUpstream = 16
	}
	if cfg.Defaults.Model == "" {
		cfg.Defaults.Model = "llama3"
	}
	if cfg.Defaults.MaxTokens <= 0 {
		cfg.Defaults.MaxTokens = 1024
	}
	if cfg.Defaults.Temperature <= 0 {
		cfg.Defaults.Temperature = 0.7
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}

func overrideString(dst *string, env string) {
	if v := os.Getenv(env); v != "" {
		*dst = v
	}
}
