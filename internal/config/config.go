package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// FileName is the config file looked up in a directory.
const FileName = "collab.yml"

// Config models collab.yml.
type Config struct {
	API struct {
		BaseURL string        `yaml:"base_url"`
		Timeout time.Duration `yaml:"timeout"`
	} `yaml:"api"`
	Session struct {
		// Path overrides the session file location; empty means the XDG default.
		Path string `yaml:"path"`
	} `yaml:"session"`
	Log struct {
		Level    string `yaml:"level"`
		Encoding string `yaml:"encoding"`
	} `yaml:"log"`
	Workflow struct {
		StrictTransitions bool `yaml:"strict_transitions"`
	} `yaml:"workflow"`
	Server struct {
		Addr      string          `yaml:"addr"`
		BasePath  string          `yaml:"base_path"`
		Workspace string          `yaml:"workspace"`
		TokenTTL  time.Duration   `yaml:"token_ttl"`
		Webhooks  []WebhookConfig `yaml:"webhooks,omitempty"`
	} `yaml:"server"`
}

// WebhookConfig is one outbound receiver of server events.
type WebhookConfig struct {
	URL     string        `yaml:"url"`
	Events  []string      `yaml:"events,omitempty"`
	Secret  string        `yaml:"secret,omitempty"`
	Enabled *bool         `yaml:"enabled,omitempty"`
	Timeout time.Duration `yaml:"timeout,omitempty"`
}

// Active reports whether the hook should receive deliveries.
func (w WebhookConfig) Active() bool {
	return strings.TrimSpace(w.URL) != "" && (w.Enabled == nil || *w.Enabled)
}

// Default returns the built-in configuration.
func Default() *Config {
	var cfg Config
	cfg.API.BaseURL = "http://127.0.0.1:8080/api"
	cfg.API.Timeout = 10 * time.Second
	cfg.Log.Level = "warn"
	cfg.Log.Encoding = "console"
	cfg.Server.Addr = "127.0.0.1:8080"
	cfg.Server.BasePath = "/api"
	cfg.Server.Workspace = "."
	cfg.Server.TokenTTL = 24 * time.Hour
	return &cfg
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("config.api.base_url is required")
	}
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("config.api.base_url must be an http(s) URL, got %q", c.API.BaseURL)
	}
	if c.API.Timeout <= 0 {
		return fmt.Errorf("config.api.timeout must be positive")
	}
	switch strings.ToLower(c.Log.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config.log.level must be one of debug, info, warn, error")
	}
	switch c.Log.Encoding {
	case "", "console", "json":
	default:
		return fmt.Errorf("config.log.encoding must be 'console' or 'json'")
	}
	if c.Server.Addr == "" {
		return fmt.Errorf("config.server.addr is required")
	}
	if c.Server.BasePath != "" && !strings.HasPrefix(c.Server.BasePath, "/") {
		return fmt.Errorf("config.server.base_path must start with '/'")
	}
	if c.Server.TokenTTL <= 0 {
		return fmt.Errorf("config.server.token_ttl must be positive")
	}
	for i, hook := range c.Server.Webhooks {
		u, err := url.Parse(hook.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("config.server.webhooks[%d].url must be an http(s) URL", i)
		}
		if hook.Timeout < 0 {
			return fmt.Errorf("config.server.webhooks[%d].timeout must not be negative", i)
		}
	}
	return nil
}

// Path returns the config file path for a directory.
func Path(dir string) string {
	if dir == "" {
		dir = "."
	}
	return filepath.Join(dir, FileName)
}

// LoadOptional reads dir/collab.yml over the defaults; a missing file yields
// the defaults.
func LoadOptional(dir string) (*Config, error) {
	cfg, err := FromFile(Path(dir))
	if os.IsNotExist(err) {
		return Default(), nil
	}
	return cfg, err
}

// FromYAML parses raw YAML over the defaults and validates the result.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// YAML renders the config as it would be written to collab.yml.
func (c *Config) YAML() (string, error) {
	out, err := yaml.Marshal(c)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
