package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/michaelbrown/augment/internal/agent"
	"github.com/michaelbrown/augment/internal/tools"
)

type LLMConfig struct {
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
	Model   string `mapstructure:"model"`
}

type AgentConfig struct {
	MaxCycles    int    `mapstructure:"max_cycles"`
	SystemPrompt string `mapstructure:"system_prompt"`
	ContextFile  string `mapstructure:"context_file"`
	ProfilesDir  string `mapstructure:"profiles_dir"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type StorageConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	DBPath  string `mapstructure:"db_path"`
}

type Config struct {
	LLM         LLMConfig            `mapstructure:"llm"`
	Agent       AgentConfig          `mapstructure:"agent"`
	Log         LogConfig            `mapstructure:"log"`
	Server      ServerConfig         `mapstructure:"server"`
	Storage     StorageConfig        `mapstructure:"storage"`
	ToolServers []tools.ServerConfig `mapstructure:"tool_servers"`
}

// Load reads augment.yaml from path, or from ./ and $HOME/.augment when path
// is empty. A missing file is only an error when path was given explicitly.
// OPENAI_API_KEY, OPENAI_BASE_URL and AUGMENT_MODEL override the file.
func Load(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("augment")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.augment")
	}

	home := os.Getenv("HOME")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("agent.max_cycles", agent.DefaultMaxCycles)
	v.SetDefault("agent.profiles_dir", filepath.Join(home, ".augment", "profiles"))
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("server.port", 8080)
	v.SetDefault("storage.enabled", true)
	v.SetDefault("storage.db_path", filepath.Join(home, ".augment", "augment.db"))

	v.BindEnv("llm.api_key", "OPENAI_API_KEY")
	v.BindEnv("llm.base_url", "OPENAI_BASE_URL")
	v.BindEnv("llm.model", "AUGMENT_MODEL")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.LLM.APIKey = tools.ExpandEnv(cfg.LLM.APIKey)
	cfg.LLM.BaseURL = tools.ExpandEnv(cfg.LLM.BaseURL)
	cfg.LLM.Model = tools.ExpandEnv(cfg.LLM.Model)

	// Tool servers are enabled unless the entry says otherwise.
	raw, _ := v.Get("tool_servers").([]any)
	for i := range cfg.ToolServers {
		cfg.ToolServers[i].Enabled = true
		if i < len(raw) {
			if entry, ok := raw[i].(map[string]any); ok {
				if enabled, ok := entry["enabled"].(bool); ok {
					cfg.ToolServers[i].Enabled = enabled
				}
			}
		}
	}

	return &cfg, nil
}

// Validate checks the settings the backend cannot run without.
func (c *Config) Validate() error {
	var errs []error
	if c.LLM.APIKey == "" {
		errs = append(errs, errors.New("llm.api_key is not set (OPENAI_API_KEY)"))
	}
	if c.LLM.BaseURL == "" {
		errs = append(errs, errors.New("llm.base_url is not set (OPENAI_BASE_URL)"))
	}
	for i, s := range c.ToolServers {
		if s.Name == "" {
			errs = append(errs, fmt.Errorf("tool_servers[%d]: name is required", i))
		}
		if s.Command == "" {
			errs = append(errs, fmt.Errorf("tool_servers[%d]: command is required", i))
		}
	}
	return errors.Join(errs...)
}

// Servers returns the named tool servers in the order given. With no names
// it returns every configured server.
func (c *Config) Servers(names []string) ([]tools.ServerConfig, error) {
	if len(names) == 0 {
		return c.ToolServers, nil
	}
	byName := make(map[string]tools.ServerConfig, len(c.ToolServers))
	for _, s := range c.ToolServers {
		byName[s.Name] = s
	}
	selected := make([]tools.ServerConfig, 0, len(names))
	for _, name := range names {
		s, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("unknown tool server: %s", name)
		}
		selected = append(selected, s)
	}
	return selected, nil
}

// SeedContext returns the contents of agent.context_file, or "" when unset.
func (c *Config) SeedContext() (string, error) {
	if c.Agent.ContextFile == "" {
		return "", nil
	}
	data, err := os.ReadFile(c.Agent.ContextFile)
	if err != nil {
		return "", fmt.Errorf("reading context file: %w", err)
	}
	return string(data), nil
}
