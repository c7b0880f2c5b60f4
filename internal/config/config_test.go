package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_AppliesDefaults(t *testing.T) {
	path := writeConfig(t, "")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := cfg.Server.ListenAddrOrDefault(); got != ":8787" {
		t.Errorf("ListenAddrOrDefault() = %q, want :8787", got)
	}
	if got := cfg.Hooks.TimeoutOrDefault(); got != 30 {
		t.Errorf("TimeoutOrDefault() = %d, want 30", got)
	}
}

func TestLoad_ReadsConfiguredValues(t *testing.T) {
	path := writeConfig(t, `
[server]
listen_addr = ":9000"

[hooks]
timeout_seconds = 15
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := cfg.Server.ListenAddrOrDefault(); got != ":9000" {
		t.Errorf("ListenAddrOrDefault() = %q, want :9000", got)
	}
	if got := cfg.Hooks.TimeoutOrDefault(); got != 15 {
		t.Errorf("TimeoutOrDefault() = %d, want 15", got)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestLoad_EmptyPath(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Error("expected error for empty config path")
	}
}

func TestLoad_RejectsNegativeHookTimeout(t *testing.T) {
	path := writeConfig(t, `
[hooks]
timeout_seconds = -1
`)
	if _, err := Load(path); err == nil {
		t.Error("expected validation error for negative hooks.timeout_seconds")
	}
}

func TestLoad_EnvOverridesListenAddr(t *testing.T) {
	path := writeConfig(t, `
[server]
listen_addr = ":9000"
`)
	t.Setenv("TRONRUN_LISTEN_ADDR", ":9999")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := cfg.Server.ListenAddrOrDefault(); got != ":9999" {
		t.Errorf("ListenAddrOrDefault() = %q, want :9999 from env override", got)
	}
}

func TestStorageConfig_PathOrDefault(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	explicit := StorageConfig{Path: "/tmp/custom.db"}
	if got, err := explicit.PathOrDefault(); err != nil || got != "/tmp/custom.db" {
		t.Errorf("PathOrDefault() = (%q, %v), want /tmp/custom.db", got, err)
	}

	defaulted := StorageConfig{}
	got, err := defaulted.PathOrDefault()
	if err != nil {
		t.Fatalf("PathOrDefault: %v", err)
	}
	if filepath.Base(got) != "events.db" {
		t.Errorf("PathOrDefault() = %q, want a path ending in events.db", got)
	}
}

func TestCredentials_GetAndSetAPIKey(t *testing.T) {
	var creds Credentials
	if got := creds.GetAPIKey("anthropic"); got != "" {
		t.Errorf("GetAPIKey on empty Credentials = %q, want empty", got)
	}

	creds.SetAPIKey("anthropic", "sk-test")
	if got := creds.GetAPIKey("anthropic"); got != "sk-test" {
		t.Errorf("GetAPIKey(\"anthropic\") = %q, want sk-test", got)
	}
	if got := creds.GetAPIKey("codex"); got != "" {
		t.Errorf("GetAPIKey(\"codex\") = %q, want empty", got)
	}
}

func TestLoadCredentials_MissingFileReturnsEmpty(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	creds, err := LoadCredentials()
	if err != nil {
		t.Fatalf("LoadCredentials: %v", err)
	}
	if creds.GetAPIKey("anthropic") != "" {
		t.Errorf("expected no credentials, got %q", creds.GetAPIKey("anthropic"))
	}
}

func TestSaveAndLoadCredentials_RoundTrip(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	creds := &Credentials{}
	creds.SetAPIKey("gemini", "gm-key")
	if err := SaveCredentials(creds); err != nil {
		t.Fatalf("SaveCredentials: %v", err)
	}

	loaded, err := LoadCredentials()
	if err != nil {
		t.Fatalf("LoadCredentials: %v", err)
	}
	if got := loaded.GetAPIKey("gemini"); got != "gm-key" {
		t.Errorf("GetAPIKey(\"gemini\") = %q, want gm-key", got)
	}
}
