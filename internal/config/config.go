// Package config loads server configuration from YAML with environment
// variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server         ServerConfig         `yaml:"server"`
	Anthropic      AnthropicConfig      `yaml:"anthropic"`
	Agent          AgentConfig          `yaml:"agent"`
	Tools          ToolsConfig          `yaml:"tools"`
	Storage        StorageConfig        `yaml:"storage"`
	RateLimit      RateLimitConfig      `yaml:"rate_limit"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

type ServerConfig struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	MaxBodyBytes int64  `yaml:"max_body_bytes"`
}

type AnthropicConfig struct {
	APIKey     string `yaml:"api_key"`
	Model      string `yaml:"model"`
	TitleModel string `yaml:"title_model"`
	MaxTokens  int    `yaml:"max_tokens"`
}

type AgentConfig struct {
	MaxIterations int `yaml:"max_iterations"`
}

type ToolsConfig struct {
	OpenWeatherMapKey  string `yaml:"openweathermap_api_key"`
	TavilyKey          string `yaml:"tavily_api_key"`
	GoogleClientID     string `yaml:"google_client_id"`
	GoogleClientSecret string `yaml:"google_client_secret"`
	GoogleTokenFile    string `yaml:"google_token_file"`
	Timezone           string `yaml:"timezone"`
}

// StorageConfig selects the session store backend. Backend "memory" keeps
// sessions in-process; "dynamodb" persists them.
type StorageConfig struct {
	Backend  string         `yaml:"backend"`
	DynamoDB DynamoDBConfig `yaml:"dynamodb"`
}

type DynamoDBConfig struct {
	EndpointURL     string `yaml:"endpoint_url"`
	TableName       string `yaml:"table_name"`
	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

type CircuitBreakerConfig struct {
	MaxFailures     int `yaml:"max_failures"`
	ResetTimeoutSec int `yaml:"reset_timeout_sec"`
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			MaxBodyBytes: 1 * 1024 * 1024, // 1MB
		},
		Anthropic: AnthropicConfig{
			Model:      "claude-sonnet-4-20250514",
			TitleModel: "claude-3-haiku-20240307",
			MaxTokens:  4096,
		},
		Agent: AgentConfig{
			MaxIterations: 10,
		},
		Tools: ToolsConfig{
			GoogleTokenFile: "token.json",
			Timezone:        "Asia/Seoul",
		},
		Storage: StorageConfig{
			Backend: "dynamodb",
			DynamoDB: DynamoDBConfig{
				EndpointURL:     "http://localhost:8000",
				TableName:       "skyplanner_sessions",
				Region:          "ap-northeast-2",
				AccessKeyID:     "local",
				SecretAccessKey: "local",
			},
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 20,
			Burst:             40,
		},
		CircuitBreaker: CircuitBreakerConfig{
			MaxFailures:     5,
			ResetTimeoutSec: 30,
		},
	}
}

// Load reads config from the given path, falling back to default locations.
// Environment variables override YAML values.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	paths := []string{path}
	if path == "" {
		paths = []string{
			"./config.yaml",
			filepath.Join(homeDir(), ".config", "skyplanner", "config.yaml"),
		}
	}

	var loaded bool
	for _, p := range paths {
		if p == "" {
			continue
		}
		data, err := os.ReadFile(p)
		if err != nil {
			continue
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", p, err)
		}
		loaded = true
		break
	}

	if !loaded && path != "" {
		return nil, fmt.Errorf("config file not found: %s", path)
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SKYPLANNER_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("SKYPLANNER_SERVER_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = n
		}
	}
	if v := os.Getenv("SKYPLANNER_SERVER_MAX_BODY_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Server.MaxBodyBytes = n
		}
	}
	if v := envOrFile("SKYPLANNER_ANTHROPIC_API_KEY"); v != "" {
		cfg.Anthropic.APIKey = v
	}
	if v := os.Getenv("SKYPLANNER_ANTHROPIC_MODEL"); v != "" {
		cfg.Anthropic.Model = v
	}
	if v := os.Getenv("SKYPLANNER_ANTHROPIC_TITLE_MODEL"); v != "" {
		cfg.Anthropic.TitleModel = v
	}
	if v := os.Getenv("SKYPLANNER_ANTHROPIC_MAX_TOKENS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Anthropic.MaxTokens = n
		}
	}
	if v := os.Getenv("SKYPLANNER_AGENT_MAX_ITERATIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Agent.MaxIterations = n
		}
	}
	if v := envOrFile("SKYPLANNER_OPENWEATHERMAP_API_KEY"); v != "" {
		cfg.Tools.OpenWeatherMapKey = v
	}
	if v := envOrFile("SKYPLANNER_TAVILY_API_KEY"); v != "" {
		cfg.Tools.TavilyKey = v
	}
	if v := envOrFile("SKYPLANNER_GOOGLE_CLIENT_ID"); v != "" {
		cfg.Tools.GoogleClientID = v
	}
	if v := envOrFile("SKYPLANNER_GOOGLE_CLIENT_SECRET"); v != "" {
		cfg.Tools.GoogleClientSecret = v
	}
	if v := os.Getenv("SKYPLANNER_GOOGLE_TOKEN_FILE"); v != "" {
		cfg.Tools.GoogleTokenFile = v
	}
	if v := os.Getenv("SKYPLANNER_TOOLS_TIMEZONE"); v != "" {
		cfg.Tools.Timezone = v
	}
	if v := os.Getenv("SKYPLANNER_STORAGE_BACKEND"); v != "" {
		cfg.Storage.Backend = v
	}
	if v := os.Getenv("SKYPLANNER_DYNAMODB_ENDPOINT_URL"); v != "" {
		cfg.Storage.DynamoDB.EndpointURL = v
	}
	if v := os.Getenv("SKYPLANNER_DYNAMODB_TABLE_NAME"); v != "" {
		cfg.Storage.DynamoDB.TableName = v
	}
	if v := os.Getenv("SKYPLANNER_DYNAMODB_REGION"); v != "" {
		cfg.Storage.DynamoDB.Region = v
	}
	if v := envOrFile("SKYPLANNER_DYNAMODB_ACCESS_KEY_ID"); v != "" {
		cfg.Storage.DynamoDB.AccessKeyID = v
	}
	if v := envOrFile("SKYPLANNER_DYNAMODB_SECRET_ACCESS_KEY"); v != "" {
		cfg.Storage.DynamoDB.SecretAccessKey = v
	}
	if v := os.Getenv("SKYPLANNER_RATELIMIT_RPS"); v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.RateLimit.RequestsPerSecond = n
		}
	}
	if v := os.Getenv("SKYPLANNER_RATELIMIT_BURST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RateLimit.Burst = n
		}
	}
	if v := os.Getenv("SKYPLANNER_CB_MAX_FAILURES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.CircuitBreaker.MaxFailures = n
		}
	}
	if v := os.Getenv("SKYPLANNER_CB_RESET_TIMEOUT_SEC"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.CircuitBreaker.ResetTimeoutSec = n
		}
	}
}

// Addr returns the listen address string.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// Validate checks required configuration.
func (c *Config) Validate() error {
	if c.Anthropic.APIKey == "" {
		return fmt.Errorf("missing required config: anthropic.api_key")
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Agent.MaxIterations <= 0 {
		return fmt.Errorf("agent.max_iterations must be positive, got %d", c.Agent.MaxIterations)
	}
	switch c.Storage.Backend {
	case "memory":
	case "dynamodb":
		if c.Storage.DynamoDB.TableName == "" {
			return fmt.Errorf("storage.dynamodb.table_name is required")
		}
	default:
		return fmt.Errorf("storage.backend must be memory or dynamodb, got %q", c.Storage.Backend)
	}
	return nil
}

func homeDir() string {
	home, _ := os.UserHomeDir()
	return home
}

// envOrFile returns the value of envKey, or reads from the file at
// envKey+"_FILE". This supports secrets mounted at /run/secrets/<name>.
func envOrFile(envKey string) string {
	if v := os.Getenv(envKey); v != "" {
		return v
	}
	if path := os.Getenv(envKey + "_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			return strings.TrimSpace(string(data))
		}
	}
	return ""
}
