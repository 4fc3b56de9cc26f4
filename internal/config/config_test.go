package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/acolita/shelltabs/internal/testing/fakes/fakefs"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Connection.ReadyTimeout != 20*time.Second {
		t.Errorf("ReadyTimeout = %v, want 20s", cfg.Connection.ReadyTimeout)
	}
	if cfg.Cache.MaxEntries != 100 || cfg.Cache.MaxAge != 30*24*time.Hour {
		t.Errorf("Cache = %+v", cfg.Cache)
	}
	if cfg.Secrets.APIKeyAccount != "user-api-key" {
		t.Errorf("APIKeyAccount = %q", cfg.Secrets.APIKeyAccount)
	}
	if !cfg.Logging.Sanitize {
		t.Error("Logging.Sanitize = false, want true")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestDefaultConfigPath(t *testing.T) {
	fsys := fakefs.New()
	if got := DefaultConfigPath(fsys); got != "/home/test/.config/shelltabs/config.yaml" {
		t.Errorf("DefaultConfigPath() = %q", got)
	}
	fsys.SetEnv("XDG_CONFIG_HOME", "/xdg")
	if got := DefaultConfigPath(fsys); got != "/xdg/shelltabs/config.yaml" {
		t.Errorf("DefaultConfigPath() with XDG = %q", got)
	}
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load("/nonexistent/config.yaml", fakefs.New())
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Connection.Term != "xterm-256color" {
		t.Errorf("Term = %q, want default", cfg.Connection.Term)
	}
}

func TestLoad_OverridesDefaults(t *testing.T) {
	fsys := fakefs.New()
	fsys.AddFile("/etc/shelltabs.yaml", []byte(`
servers:
  - name: prod
    host: prod.example.com
    user: deploy
    auth:
      type: key
      key_path: ~/.ssh/id_ed25519
connection:
  ready_timeout: 5s
cache:
  max_entries: 10
`), 0644)

	cfg, err := Load("/etc/shelltabs.yaml", fsys)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error: %v", err)
	}

	if cfg.Connection.ReadyTimeout != 5*time.Second {
		t.Errorf("ReadyTimeout = %v, want 5s", cfg.Connection.ReadyTimeout)
	}
	if cfg.Connection.Rows != 24 {
		t.Errorf("Rows = %d, want default 24", cfg.Connection.Rows)
	}
	if cfg.Cache.MaxEntries != 10 {
		t.Errorf("MaxEntries = %d, want 10", cfg.Cache.MaxEntries)
	}
	srv, ok := cfg.FindServer("prod")
	if !ok {
		t.Fatal("FindServer(prod) not found")
	}
	if srv.Port != 22 || srv.Auth.KeyPath != "~/.ssh/id_ed25519" {
		t.Errorf("server = %+v", srv)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	fsys := fakefs.New()
	fsys.AddFile("/bad.yaml", []byte(":::invalid:::yaml{{{"), 0644)
	if _, err := Load("/bad.yaml", fsys); err == nil {
		t.Fatal("Load() expected parse error")
	}
}

func TestValidate_Servers(t *testing.T) {
	tests := []struct {
		name    string
		server  ServerConfig
		wantErr string
	}{
		{"missing name", ServerConfig{Host: "h", User: "u", Auth: AuthConfig{Type: AuthKey}}, "name is required"},
		{"missing host", ServerConfig{Name: "a", User: "u", Auth: AuthConfig{Type: AuthKey}}, "host and user"},
		{"missing auth", ServerConfig{Name: "a", Host: "h", User: "u"}, "auth type is required"},
		{"bad auth", ServerConfig{Name: "a", Host: "h", User: "u", Auth: AuthConfig{Type: "kerberos"}}, "unsupported auth type"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Servers = []ServerConfig{tt.server}
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestAddServerAndSave(t *testing.T) {
	fsys := fakefs.New()
	cfg := DefaultConfig()
	srv := ServerConfig{Name: "lab", Host: "10.0.0.5", Port: 2222, User: "root", Auth: AuthConfig{Type: AuthPassword, SecretRef: "lab-root"}}

	if err := cfg.AddServer(srv); err != nil {
		t.Fatalf("AddServer() error: %v", err)
	}
	if err := cfg.AddServer(srv); err == nil {
		t.Error("AddServer() duplicate should fail")
	}

	path := "/home/test/.config/shelltabs/config.yaml"
	if err := Save(cfg, path, fsys); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	loaded, err := Load(path, fsys)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	got, ok := loaded.FindServer("lab")
	if !ok || got != srv {
		t.Errorf("round trip server = %+v, want %+v", got, srv)
	}
}

func TestWatcher_Reload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("logging:\n  level: info\n"), 0644); err != nil {
		t.Fatal(err)
	}

	changed := make(chan *Config, 4)
	w, err := NewWatcher(path, func(c *Config) { changed <- c })
	if err != nil {
		t.Fatalf("NewWatcher() error: %v", err)
	}
	defer w.Close()

	if err := os.WriteFile(path, []byte("logging:\n  level: debug\n"), 0644); err != nil {
		t.Fatal(err)
	}

	deadline := time.After(5 * time.Second)
	for {
		select {
		case c := <-changed:
			if c.Logging.Level == "debug" {
				if w.Config().Logging.Level != "debug" {
					t.Error("Config() not updated")
				}
				if err := w.Close(); err != nil {
					t.Errorf("Close() error: %v", err)
				}
				return
			}
		case <-deadline:
			t.Fatal("no reload observed")
		}
	}
}
