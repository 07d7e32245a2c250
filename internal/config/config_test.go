package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestDefaultClientConfig(t *testing.T) {
	cfg := DefaultClientConfig()
	if cfg.SessionTTL != 7*24*time.Hour {
		t.Errorf("SessionTTL = %v, want 7 days", cfg.SessionTTL)
	}
	if cfg.SweepInterval != time.Minute {
		t.Errorf("SweepInterval = %v, want 1m", cfg.SweepInterval)
	}
	want := []string{"/my-gallery", "/upload", "/generate"}
	if !reflect.DeepEqual(cfg.ProtectedPaths, want) {
		t.Errorf("ProtectedPaths = %v, want %v", cfg.ProtectedPaths, want)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server: https://visium.example.com/
log_level: debug
sweep_interval: 30s
session_ttl: 48h
protected_paths: ["/upload"]
upload:
  bucket: images
  endpoint: http://localhost:9000
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("VISIUM_SERVER", "")

	cfg, err := Load(path, true)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.BaseURL() != "https://visium.example.com" {
		t.Errorf("BaseURL() = %q", cfg.BaseURL())
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q", cfg.LogLevel)
	}
	if cfg.SweepInterval != 30*time.Second {
		t.Errorf("SweepInterval = %v", cfg.SweepInterval)
	}
	if cfg.SessionTTL != 48*time.Hour {
		t.Errorf("SessionTTL = %v", cfg.SessionTTL)
	}
	if !reflect.DeepEqual(cfg.ProtectedPaths, []string{"/upload"}) {
		t.Errorf("ProtectedPaths = %v", cfg.ProtectedPaths)
	}
	if cfg.Upload.Bucket != "images" || cfg.Upload.Endpoint != "http://localhost:9000" {
		t.Errorf("Upload = %+v", cfg.Upload)
	}
	// Unset keys keep their defaults.
	if cfg.Upload.Region != "us-east-1" {
		t.Errorf("Upload.Region = %q, want default", cfg.Upload.Region)
	}
	if cfg.PollInterval != 500*time.Millisecond {
		t.Errorf("PollInterval = %v, want default", cfg.PollInterval)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope.yaml")

	if _, err := Load(missing, false); err != nil {
		t.Errorf("optional missing file should not error: %v", err)
	}
	if _, err := Load(missing, true); err == nil {
		t.Error("required missing file should error")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("server: [unclosed"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path, true); err == nil {
		t.Error("expected parse error")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("VISIUM_SERVER", "http://env.example:8000")
	t.Setenv("VISIUM_STATE", "/tmp/visium-env.db")
	t.Setenv("VISIUM_LOG_FORMAT", "json")

	cfg, err := Load("", false)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server != "http://env.example:8000" {
		t.Errorf("Server = %q", cfg.Server)
	}
	if cfg.StatePath != "/tmp/visium-env.db" {
		t.Errorf("StatePath = %q", cfg.StatePath)
	}
	if cfg.LogFormat != "json" {
		t.Errorf("LogFormat = %q", cfg.LogFormat)
	}
}

func TestValidate(t *testing.T) {
	cfg := DefaultClientConfig()
	cfg.Server = "ftp://nope"
	cfg.SweepInterval = 0
	cfg.RateLimit = -1

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"http(s) URL", "sweep_interval", "rate_limit"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("expected %q in %v", want, err)
		}
	}
}
