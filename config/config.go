// Package config loads the server configuration from a YAML file with
// ${ENV} expansion and applies defaults.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type (
	// Config is the full server configuration.
	Config struct {
		Server   Server   `yaml:"server"`
		Model    Model    `yaml:"model"`
		Chat     Chat     `yaml:"chat"`
		Store    Store    `yaml:"store"`
		Blob     Blob     `yaml:"blob"`
		Search   Search   `yaml:"search"`
		Memory   Memory   `yaml:"memory"`
		TurnLock TurnLock `yaml:"turnlock"`
	}

	// Server configures the HTTP listener.
	Server struct {
		Addr string `yaml:"addr"`
	}

	// Model selects and configures the generation provider.
	Model struct {
		// Provider is "openai" or "anthropic".
		Provider string `yaml:"provider"`
		// Name is the provider model identifier.
		Name string `yaml:"name"`
		// Label is recorded on generated response variants.
		Label string `yaml:"label"`
		// Service attributes model failures in error markers.
		Service string `yaml:"service"`
		APIKey  string `yaml:"api_key"`
		// BaseURL overrides the provider endpoint (OpenAI-compatible only).
		BaseURL string `yaml:"base_url"`
	}

	// Chat tunes turn behavior.
	Chat struct {
		SystemPrompt string `yaml:"system_prompt"`
		// RecentMessages caps how many prior messages feed the turn context.
		RecentMessages int `yaml:"recent_messages"`
		// MaxToolRounds bounds tool-call rounds per turn.
		MaxToolRounds int     `yaml:"max_tool_rounds"`
		Temperature   float32 `yaml:"temperature"`
	}

	// Store selects the persistence backend.
	Store struct {
		// Driver is "inmem" or "mongo".
		Driver   string `yaml:"driver"`
		MongoURI string `yaml:"mongo_uri"`
		Database string `yaml:"database"`
	}

	// Blob configures the S3 uploader. Empty bucket disables uploads.
	Blob struct {
		Bucket        string `yaml:"bucket"`
		Prefix        string `yaml:"prefix"`
		PublicBaseURL string `yaml:"public_base_url"`
	}

	// Search configures the Tavily backend. Empty key disables web search.
	Search struct {
		TavilyAPIKey string `yaml:"tavily_api_key"`
	}

	// Memory selects the user-memory backend. An empty driver disables the
	// feature.
	Memory struct {
		// Driver is "", "inmem" or "mem0".
		Driver     string `yaml:"driver"`
		Mem0APIKey string `yaml:"mem0_api_key"`
		// Mem0BaseURL overrides the Mem0 API root.
		Mem0BaseURL string `yaml:"mem0_base_url"`
	}

	// TurnLock selects the turn-lock backend.
	TurnLock struct {
		// Driver is "inmem" or "redis".
		Driver    string `yaml:"driver"`
		RedisAddr string `yaml:"redis_addr"`
	}
)

// Defaults applied by Load when the file leaves fields unset.
const (
	DefaultAddr           = ":8080"
	DefaultRecentMessages = 6
	DefaultMaxToolRounds  = 3
	DefaultTemperature    = 0.7
	DefaultModelLabel     = "Gemini 2.5 Flash"
)

// Load reads path, expands ${ENV} references and applies defaults. An empty
// path yields the defaults alone.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = DefaultAddr
	}
	if c.Model.Provider == "" {
		c.Model.Provider = "openai"
	}
	if c.Model.Label == "" {
		c.Model.Label = DefaultModelLabel
	}
	if c.Model.Service == "" {
		c.Model.Service = "gemini"
	}
	if c.Chat.RecentMessages == 0 {
		c.Chat.RecentMessages = DefaultRecentMessages
	}
	if c.Chat.MaxToolRounds == 0 {
		c.Chat.MaxToolRounds = DefaultMaxToolRounds
	}
	if c.Chat.Temperature == 0 {
		c.Chat.Temperature = DefaultTemperature
	}
	if c.Store.Driver == "" {
		c.Store.Driver = "inmem"
	}
	if c.Store.Database == "" {
		c.Store.Database = "t4chat"
	}
	if c.TurnLock.Driver == "" {
		c.TurnLock.Driver = "inmem"
	}
}

func (c *Config) validate() error {
	switch c.Model.Provider {
	case "openai", "anthropic":
	default:
		return fmt.Errorf("config: unknown model provider %q", c.Model.Provider)
	}
	switch c.Store.Driver {
	case "inmem", "mongo":
	default:
		return fmt.Errorf("config: unknown store driver %q", c.Store.Driver)
	}
	if c.Store.Driver == "mongo" && c.Store.MongoURI == "" {
		return fmt.Errorf("config: store.mongo_uri is required for the mongo driver")
	}
	switch c.Memory.Driver {
	case "", "inmem", "mem0":
	default:
		return fmt.Errorf("config: unknown memory driver %q", c.Memory.Driver)
	}
	if c.Memory.Driver == "mem0" && c.Memory.Mem0APIKey == "" {
		return fmt.Errorf("config: memory.mem0_api_key is required for the mem0 driver")
	}
	switch c.TurnLock.Driver {
	case "inmem", "redis":
	default:
		return fmt.Errorf("config: unknown turnlock driver %q", c.TurnLock.Driver)
	}
	if c.TurnLock.Driver == "redis" && c.TurnLock.RedisAddr == "" {
		return fmt.Errorf("config: turnlock.redis_addr is required for the redis driver")
	}
	return nil
}
