package config

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
)

// Config is the top-level configuration structure.
type Config struct {
	Server    ServerConfig     `json:"server"`
	Providers []ProviderConfig `json:"providers"`
	Sim       SimConfig        `json:"sim"`
	Database  DatabaseConfig   `json:"database"`
	Gateway   GatewayConfig    `json:"gateway"`
	PriceFeed PriceFeedConfig  `json:"pricefeed"`
	TownFile  string           `json:"town_file"`
}

type ServerConfig struct {
	Port     int    `json:"port"`
	LogLevel string `json:"log_level"`
}

type ProviderConfig struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Name     string `json:"name"`
	Endpoint string `json:"endpoint"`
	APIKey   string `json:"api_key"`
	Model    string `json:"model"`
}

// SimConfig tunes the simulation loop and the generation gate.
type SimConfig struct {
	TickMS            int       `json:"tick_ms"`
	Speed             int       `json:"speed"`
	MaxAgents         int       `json:"max_agents"`
	EnableReflections bool      `json:"enable_reflections"`
	LLM               LLMConfig `json:"llm"`
}

type LLMConfig struct {
	MaxConcurrent int `json:"max_concurrent"`
	MinSpacingMS  int `json:"min_spacing_ms"`
	TimeoutS      int `json:"timeout_s"`
}

type DatabaseConfig struct {
	Postgres PostgresConfig `json:"postgres"`
	Redis    RedisConfig    `json:"redis"`
}

type PostgresConfig struct {
	DSN string `json:"dsn"`
}

type RedisConfig struct {
	URL string `json:"url"`
}

type GatewayConfig struct {
	Discord DiscordGatewayConfig `json:"discord"`
	Slack   SlackGatewayConfig   `json:"slack"`
}

type DiscordGatewayConfig struct {
	Enabled  bool   `json:"enabled"`
	BotToken string `json:"bot_token"`
	Channel  string `json:"channel"`
}

type SlackGatewayConfig struct {
	Enabled  bool   `json:"enabled"`
	BotToken string `json:"bot_token"`
	Channel  string `json:"channel"`
}

type PriceFeedConfig struct {
	Enabled   bool   `json:"enabled"`
	IntervalS int    `json:"interval_s"`
	FeedID    string `json:"feed_id"`
}

// envVarRe matches ${VAR} and ${VAR:default} patterns.
var envVarRe = regexp.MustCompile(`\$\{(\w+)(?::([^}]*))?\}`)

// Load reads a JSON config file and substitutes environment variable references.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	// Substitute ${VAR} and ${VAR:default} with environment values.
	resolved := envVarRe.ReplaceAllStringFunc(string(data), func(match string) string {
		parts := envVarRe.FindStringSubmatch(match)
		name := parts[1]
		defaultVal := parts[2]
		if v := os.Getenv(name); v != "" {
			return v
		}
		return defaultVal
	})

	var cfg Config
	if err := json.Unmarshal([]byte(resolved), &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return &cfg, nil
}
