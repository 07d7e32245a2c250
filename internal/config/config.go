// Package config loads visium client settings from a YAML file, the
// environment and defaults, in increasing order of precedence below flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ClientConfig holds configuration for the visium client.
type ClientConfig struct {
	Server    string `yaml:"server"`     // Backend base URL
	StatePath string `yaml:"state_path"` // SQLite state file (default ~/.visium/state.db)
	LogLevel  string `yaml:"log_level"`  // debug, info, warn, error
	LogFormat string `yaml:"log_format"` // text, json

	SessionTTL     time.Duration `yaml:"session_ttl"`     // Lifetime of a new session
	SweepInterval  time.Duration `yaml:"sweep_interval"`  // Expiry sweep period
	PollInterval   time.Duration `yaml:"poll_interval"`   // Storage change poll period
	RequestTimeout time.Duration `yaml:"request_timeout"` // Per-request HTTP timeout

	RateLimit float64 `yaml:"rate_limit"` // Requests per second, 0 disables
	RateBurst int     `yaml:"rate_burst"`

	ProtectedPaths []string `yaml:"protected_paths"` // Views that require a session

	Upload UploadConfig `yaml:"upload"`
}

// UploadConfig configures object storage for local image uploads.
type UploadConfig struct {
	Bucket        string `yaml:"bucket"`
	Region        string `yaml:"region"`
	Endpoint      string `yaml:"endpoint"`        // Optional S3-compatible endpoint
	PublicBaseURL string `yaml:"public_base_url"` // Optional; overrides the URL returned by the upload
	Prefix        string `yaml:"prefix"`
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Server:         "http://127.0.0.1:8000",
		StatePath:      defaultStatePath(),
		LogLevel:       "info",
		LogFormat:      "text",
		SessionTTL:     7 * 24 * time.Hour,
		SweepInterval:  time.Minute,
		PollInterval:   500 * time.Millisecond,
		RequestTimeout: 30 * time.Second,
		RateBurst:      1,
		ProtectedPaths: []string{"/my-gallery", "/upload", "/generate"},
		Upload: UploadConfig{
			Region: "us-east-1",
			Prefix: "uploads/",
		},
	}
}

func defaultStatePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "visium-state.db"
	}
	return filepath.Join(home, ".visium", "state.db")
}

// DefaultPath returns the default config file location (~/.visium/config.yaml).
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".visium", "config.yaml")
}

// Load reads the config file at path over the defaults, then applies
// environment overrides. A missing file is not an error unless required.
func Load(path string, required bool) (ClientConfig, error) {
	cfg := DefaultClientConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist) && !required:
		default:
			return cfg, fmt.Errorf("read config: %w", err)
		}
	}

	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *ClientConfig) {
	if v := os.Getenv("VISIUM_SERVER"); v != "" {
		cfg.Server = v
	}
	if v := os.Getenv("VISIUM_STATE"); v != "" {
		cfg.StatePath = v
	}
	if v := os.Getenv("VISIUM_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("VISIUM_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
	if v := os.Getenv("VISIUM_UPLOAD_BUCKET"); v != "" {
		cfg.Upload.Bucket = v
	}
}

// Validate checks that the configuration is usable.
func (c ClientConfig) Validate() error {
	var problems []string
	if c.Server == "" {
		problems = append(problems, "server is required")
	} else if !strings.HasPrefix(c.Server, "http://") && !strings.HasPrefix(c.Server, "https://") {
		problems = append(problems, fmt.Sprintf("server %q must be an http(s) URL", c.Server))
	}
	if c.StatePath == "" {
		problems = append(problems, "state_path is required")
	}
	if c.SessionTTL <= 0 {
		problems = append(problems, "session_ttl must be positive")
	}
	if c.SweepInterval <= 0 {
		problems = append(problems, "sweep_interval must be positive")
	}
	if c.PollInterval <= 0 {
		problems = append(problems, "poll_interval must be positive")
	}
	if c.RateLimit < 0 {
		problems = append(problems, "rate_limit must not be negative")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// BaseURL returns the server URL without a trailing slash.
func (c ClientConfig) BaseURL() string {
	return strings.TrimRight(c.Server, "/")
}
