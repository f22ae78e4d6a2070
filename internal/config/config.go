package config

import (
	"bytes"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"jobledger/internal/logger"
)

// Config models jobledger.yml.
type Config struct {
	Server struct {
		Addr     string `yaml:"addr"`
		BasePath string `yaml:"base_path"`
	} `yaml:"server"`
	Auth struct {
		ProfileHeader      string `yaml:"profile_header"`
		AllowProfileHeader bool   `yaml:"allow_profile_header"`
		JWTSecret          string `yaml:"jwt_secret"`
	} `yaml:"auth"`
	Log struct {
		Level  string `yaml:"level"`
		Pretty bool   `yaml:"pretty"`
	} `yaml:"log"`
	Reports struct {
		DefaultClientLimit int `yaml:"default_client_limit"`
	} `yaml:"reports"`
	Webhooks []Webhook `yaml:"webhooks"`
}

type Webhook struct {
	URL     string   `yaml:"url"`
	Events  []string `yaml:"events"`
	Secret  string   `yaml:"secret"`
	Enabled *bool    `yaml:"enabled"`
}

func (w Webhook) IsEnabled() bool {
	return w.Enabled == nil || *w.Enabled
}

// Wants reports whether the hook subscribes to the event type. No filter means all events.
func (w Webhook) Wants(evtType string) bool {
	if len(w.Events) == 0 {
		return true
	}
	for _, e := range w.Events {
		if e == evtType || e == "*" {
			return true
		}
	}
	return false
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Server.Addr) == "" {
		return fmt.Errorf("config.server.addr is required")
	}
	if c.Server.BasePath != "" && !strings.HasPrefix(c.Server.BasePath, "/") {
		return fmt.Errorf("config.server.base_path must start with /")
	}
	if c.Auth.ProfileHeader == "" {
		return fmt.Errorf("config.auth.profile_header is required")
	}
	if !c.Auth.AllowProfileHeader && c.Auth.JWTSecret == "" {
		return fmt.Errorf("config.auth: enable allow_profile_header or set jwt_secret")
	}
	if c.Reports.DefaultClientLimit < 1 {
		return fmt.Errorf("config.reports.default_client_limit must be at least 1")
	}
	switch strings.ToLower(c.Log.Level) {
	case "", "trace", "debug", "info", "warn", "warning", "error", "disabled", "off":
	default:
		return fmt.Errorf("config.log.level %q not recognised", c.Log.Level)
	}
	for i, h := range c.Webhooks {
		u, err := url.Parse(h.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("webhook %d: url must be absolute http(s)", i)
		}
		for _, e := range h.Events {
			if e == "" {
				return fmt.Errorf("webhook %d: empty event type", i)
			}
		}
	}
	return nil
}

// LogOptions maps the log section onto logger options.
func (c *Config) LogOptions() logger.Options {
	return logger.Options{Level: c.Log.Level, Pretty: c.Log.Pretty}
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "jobledger.yml")
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with jl config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional falls back to Default when the file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the built-in configuration.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(DefaultTemplate)).Decode(&cfg)
	return &cfg
}

// FromYAML parses YAML on top of the defaults and validates the result.
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

const DefaultTemplate = `server:
  addr: 127.0.0.1:3001
  base_path: ""

auth:
  profile_header: profile_id
  allow_profile_header: true
  jwt_secret: ""

log:
  level: info
  pretty: false

reports:
  default_client_limit: 2

webhooks: []
`
