package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yml"))
	if err != nil {
		t.Fatalf("Load of missing file failed: %v", err)
	}
	if cfg.ClientID != "" {
		t.Errorf("ClientID = %q, want empty", cfg.ClientID)
	}
	if cfg.CloudEnabled() {
		t.Error("CloudEnabled should be false without a client id")
	}
	if cfg.DebounceMs != DefaultDebounceMs {
		t.Errorf("DebounceMs = %d, want %d", cfg.DebounceMs, DefaultDebounceMs)
	}
	if cfg.PullIntervalSeconds != DefaultPullIntervalSeconds {
		t.Errorf("PullIntervalSeconds = %d, want %d", cfg.PullIntervalSeconds, DefaultPullIntervalSeconds)
	}
	if cfg.Language != DefaultLanguage {
		t.Errorf("Language = %q, want %q", cfg.Language, DefaultLanguage)
	}
}

func TestLoadFullConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	content := `client_id: client-123.apps.example.com
language: ru
debounce_ms: 500
pull_interval_seconds: 30
log_level: debug
log_file: /tmp/bible365.log
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.ClientID != "client-123.apps.example.com" {
		t.Errorf("ClientID = %q", cfg.ClientID)
	}
	if !cfg.CloudEnabled() {
		t.Error("CloudEnabled should be true")
	}
	if cfg.Language != "ru" {
		t.Errorf("Language = %q, want ru", cfg.Language)
	}
	if cfg.DebounceMs != 500 {
		t.Errorf("DebounceMs = %d, want 500", cfg.DebounceMs)
	}
	if cfg.PullIntervalSeconds != 30 {
		t.Errorf("PullIntervalSeconds = %d, want 30", cfg.PullIntervalSeconds)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
}

func TestLoadPartialConfigKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte("client_id: abc\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.ClientID != "abc" {
		t.Errorf("ClientID = %q, want abc", cfg.ClientID)
	}
	if cfg.DebounceMs != DefaultDebounceMs {
		t.Errorf("DebounceMs = %d, want default", cfg.DebounceMs)
	}
}

func TestLoadMalformedConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte("client_id: [unclosed\n"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(path); err == nil {
		t.Error("Load of malformed yaml expected error")
	}
}
