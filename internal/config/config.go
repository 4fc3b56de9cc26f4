// Package config handles configuration parsing for shelltabs.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/acolita/shelltabs/internal/adapters/realfs"
	"github.com/acolita/shelltabs/internal/ports"
	"gopkg.in/yaml.v3"
)

// Auth modes accepted for a server.
const (
	AuthPassword = "password"
	AuthKey      = "key"
)

// DefaultConfigPath returns $XDG_CONFIG_HOME/shelltabs/config.yaml, falling
// back to ~/.config/shelltabs/config.yaml.
func DefaultConfigPath(fsys ports.FileSystem) string {
	dir := fsys.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := fsys.UserHomeDir()
		if err != nil {
			return ""
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "shelltabs", "config.yaml")
}

// Config represents the top-level configuration.
type Config struct {
	Servers    []ServerConfig   `yaml:"servers"`
	Connection ConnectionConfig `yaml:"connection"`
	Secrets    SecretsConfig    `yaml:"secrets"`
	Cache      CacheConfig      `yaml:"cache"`
	Assist     AssistConfig     `yaml:"assist"`
	Templates  TemplatesConfig  `yaml:"templates"`
	Events     EventsConfig     `yaml:"events"`
	Recording  RecordingConfig  `yaml:"recording"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ServerConfig is a named connection profile.
type ServerConfig struct {
	Name string     `yaml:"name"`
	Host string     `yaml:"host"`
	Port int        `yaml:"port"`
	User string     `yaml:"user"`
	Auth AuthConfig `yaml:"auth"`
}

// AuthConfig selects how a server authenticates.
type AuthConfig struct {
	Type          string `yaml:"type"`           // "password" or "key"
	SecretRef     string `yaml:"secret_ref"`     // secret store account holding the password
	KeyPath       string `yaml:"key_path"`       // private key file, ~/ allowed
	PassphraseRef string `yaml:"passphrase_ref"` // secret store account holding the key passphrase
}

// ConnectionConfig tunes transport and shell setup.
type ConnectionConfig struct {
	ReadyTimeout      time.Duration `yaml:"ready_timeout"`
	KeepaliveInterval time.Duration `yaml:"keepalive_interval"`
	Term              string        `yaml:"term"`
	Cols              int           `yaml:"cols"`
	Rows              int           `yaml:"rows"`
	KnownHosts        string        `yaml:"known_hosts"`
	InsecureHostKey   bool          `yaml:"insecure_host_key"` // skip host key verification entirely
	UseAgent          bool          `yaml:"use_agent"`         // also offer ssh-agent identities
}

// SecretsConfig names the secret store entries.
type SecretsConfig struct {
	Service       string `yaml:"service"`
	APIKeyService string `yaml:"api_key_service"`
	APIKeyAccount string `yaml:"api_key_account"`
}

// CacheConfig bounds the command generation cache.
type CacheConfig struct {
	Path       string        `yaml:"path"`
	MaxEntries int           `yaml:"max_entries"`
	MaxAge     time.Duration `yaml:"max_age"`
}

// AssistConfig points at an OpenAI-compatible chat completions API.
type AssistConfig struct {
	Enabled          bool          `yaml:"enabled"`
	BaseURL          string        `yaml:"base_url"`
	ChatPath         string        `yaml:"chat_path"`
	Model            string        `yaml:"model"`
	Timeout          time.Duration `yaml:"timeout"`
	DiagnoseFailures bool          `yaml:"diagnose_failures"`
}

// TemplatesConfig lists extra task template files (doublestar globs).
type TemplatesConfig struct {
	Paths []string `yaml:"paths"`
}

// EventsConfig enables publishing tab events to NATS.
type EventsConfig struct {
	NATSURL       string `yaml:"nats_url"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

// RecordingConfig enables asciicast recording of tab output.
type RecordingConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// LoggingConfig defines logging settings.
type LoggingConfig struct {
	Level    string `yaml:"level"`
	Sanitize bool   `yaml:"sanitize"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Connection: ConnectionConfig{
			ReadyTimeout:      20 * time.Second,
			KeepaliveInterval: 30 * time.Second,
			Term:              "xterm-256color",
			Cols:              80,
			Rows:              24,
		},
		Secrets: SecretsConfig{
			Service:       "shelltabs",
			APIKeyService: "shelltabs-apikey",
			APIKeyAccount: "user-api-key",
		},
		Cache: CacheConfig{
			MaxEntries: 100,
			MaxAge:     30 * 24 * time.Hour,
		},
		Assist: AssistConfig{
			Enabled:          true,
			BaseURL:          "https://api.deepseek.com",
			ChatPath:         "/chat/completions",
			Model:            "deepseek-chat",
			Timeout:          2 * time.Minute,
			DiagnoseFailures: true,
		},
		Events: EventsConfig{
			SubjectPrefix: "shelltabs.tabs",
		},
		Logging: LoggingConfig{
			Level:    "info",
			Sanitize: true,
		},
	}
}

// Load reads path over the defaults. An empty path or a missing file yields
// the defaults. An optional FileSystem can be passed for testing.
func Load(path string, fsys ...ports.FileSystem) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := fileSystem(fsys).ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	return cfg, nil
}

// Validate fills zero values with defaults and rejects broken server profiles.
func (c *Config) Validate() error {
	def := DefaultConfig()
	if c.Connection.ReadyTimeout <= 0 {
		c.Connection.ReadyTimeout = def.Connection.ReadyTimeout
	}
	if c.Connection.Term == "" {
		c.Connection.Term = def.Connection.Term
	}
	if c.Connection.Cols <= 0 {
		c.Connection.Cols = def.Connection.Cols
	}
	if c.Connection.Rows <= 0 {
		c.Connection.Rows = def.Connection.Rows
	}
	if c.Secrets.Service == "" {
		c.Secrets.Service = def.Secrets.Service
	}
	if c.Secrets.APIKeyService == "" {
		c.Secrets.APIKeyService = def.Secrets.APIKeyService
	}
	if c.Secrets.APIKeyAccount == "" {
		c.Secrets.APIKeyAccount = def.Secrets.APIKeyAccount
	}
	if c.Cache.MaxEntries <= 0 {
		c.Cache.MaxEntries = def.Cache.MaxEntries
	}
	if c.Cache.MaxAge <= 0 {
		c.Cache.MaxAge = def.Cache.MaxAge
	}
	if c.Events.SubjectPrefix == "" {
		c.Events.SubjectPrefix = def.Events.SubjectPrefix
	}

	seen := make(map[string]bool, len(c.Servers))
	for i := range c.Servers {
		s := &c.Servers[i]
		if s.Name == "" {
			return fmt.Errorf("server %d: name is required", i)
		}
		if seen[s.Name] {
			return fmt.Errorf("server %q: duplicate name", s.Name)
		}
		seen[s.Name] = true
		if s.Host == "" || s.User == "" {
			return fmt.Errorf("server %q: host and user are required", s.Name)
		}
		if s.Port == 0 {
			s.Port = 22
		}
		switch s.Auth.Type {
		case AuthPassword, AuthKey:
		case "":
			return fmt.Errorf("server %q: auth type is required", s.Name)
		default:
			return fmt.Errorf("server %q: unsupported auth type %q", s.Name, s.Auth.Type)
		}
	}
	return nil
}

// FindServer returns the profile called name.
func (c *Config) FindServer(name string) (ServerConfig, bool) {
	for _, s := range c.Servers {
		if s.Name == name {
			return s, true
		}
	}
	return ServerConfig{}, false
}

// AddServer adds a profile. Names must be unique.
func (c *Config) AddServer(server ServerConfig) error {
	if _, ok := c.FindServer(server.Name); ok {
		return fmt.Errorf("server %q already exists", server.Name)
	}
	c.Servers = append(c.Servers, server)
	return nil
}

// Save writes the configuration to path. An optional FileSystem can be
// passed for testing.
func Save(cfg *Config, path string, fsys ...ports.FileSystem) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	f := fileSystem(fsys)
	if err := f.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	return f.WriteFile(path, data, 0644)
}

func fileSystem(fsys []ports.FileSystem) ports.FileSystem {
	if len(fsys) > 0 && fsys[0] != nil {
		return fsys[0]
	}
	return realfs.New()
}
