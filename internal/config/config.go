package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and socket configuration.
type Paths struct {
	DataDir       string `toml:"data_dir"`
	LogDir        string `toml:"log_dir"`
	TemplatesFile string `toml:"templates_file"`
	SocketPath    string `toml:"socket_path"`
}

// Monitor contains Task Scheduler settings.
type Monitor struct {
	MinPollInterval     int  `toml:"min_poll_interval"`
	DefaultPollInterval int  `toml:"default_poll_interval"`
	MaxPollInterval     int  `toml:"max_poll_interval"`
	Workers             int  `toml:"workers"`
	FailureThreshold    int  `toml:"failure_threshold"`
	PollsPerHour        int  `toml:"polls_per_hour"`
	RetryBaseSeconds    int  `toml:"retry_base_seconds"`
	RetryMaxSeconds     int  `toml:"retry_max_seconds"`
	MinContentLength    int  `toml:"min_content_length"`
	MaxContentLength    int  `toml:"max_content_length"`
	FilterSpam          bool `toml:"filter_spam"`
}

// Dispatch contains Reply Dispatcher settings.
type Dispatch struct {
	DrainInterval      int    `toml:"drain_interval"`
	BatchSize          int    `toml:"batch_size"`
	Workers            int    `toml:"workers"`
	MaxAttempts        int    `toml:"max_attempts"`
	BackoffBaseSeconds int    `toml:"backoff_base_seconds"`
	BackoffMaxSeconds  int    `toml:"backoff_max_seconds"`
	FallbackReply      string `toml:"fallback_reply"`
	StyleHint          string `toml:"style_hint"`
	MaxReplyLength     int    `toml:"max_reply_length"`
}

// RateLimit contains per-account outbound reply budgets.
type RateLimit struct {
	HourlyCap int            `toml:"hourly_cap"`
	Accounts  map[string]int `toml:"accounts"`
}

// AI contains the reply composer connection settings.
type AI struct {
	Enabled        bool   `toml:"enabled"`
	Provider       string `toml:"provider"`
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	Referer        string `toml:"referer"`
	Title          string `toml:"title"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Bridge contains the platform bridge endpoint used for sessions, fetch and send.
type Bridge struct {
	URL            string `toml:"url"`
	Token          string `toml:"token"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Rule is one classifier rule. Rules are evaluated in declaration order.
type Rule struct {
	Category string   `toml:"category"`
	Keywords []string `toml:"keywords"`
	Patterns []string `toml:"patterns"`
	Priority int      `toml:"priority"`
	Mode     string   `toml:"mode"`
}

// Classifier contains the category rule table and template selection policy.
type Classifier struct {
	TemplateTieBreak string `toml:"template_tie_break"`
	Rules            []Rule `toml:"rules"`
}

// Dedup contains dedup index retention settings.
type Dedup struct {
	RetentionDays int `toml:"retention_days"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic          string `toml:"ntfy_topic"`
	RequestTimeout     int    `toml:"request_timeout"`
	TaskFailures       bool   `toml:"task_failures"`
	SessionInvalid     bool   `toml:"session_invalid"`
	ReplyFailures      bool   `toml:"reply_failures"`
	DedupWindowSeconds int    `toml:"dedup_window_seconds"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for murmur.
//
// Configuration sections by subsystem:
//   - Paths: data, log and template locations plus the control socket
//   - Monitor: task polling floor, worker pool and failure handling
//   - Dispatch: drain cadence, retry policy and reply composition
//   - RateLimit: per-account hourly reply caps
//   - AI: composer backend settings
//   - Bridge: platform bridge endpoint
//   - Classifier: category rule table and template tie-break
//   - Dedup: seen-content retention
//   - Notifications: ntfy push notification settings
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Monitor       Monitor       `toml:"monitor"`
	Dispatch      Dispatch      `toml:"dispatch"`
	RateLimit     RateLimit     `toml:"rate_limit"`
	AI            AI            `toml:"ai"`
	Bridge        Bridge        `toml:"bridge"`
	Classifier    Classifier    `toml:"classifier"`
	Dedup         Dedup         `toml:"dedup"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		// Rules from the file replace the built-in table rather than extending it.
		cfg.Classifier.Rules = nil
		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("murmur.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if dir := filepath.Dir(c.Paths.SocketPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create socket directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the SQLite database location.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "murmur.db")
}

// LockPath returns the daemon lock file location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "murmurd.lock")
}

// PIDPath returns the file murmurd writes its process ID to.
func (c *Config) PIDPath() string {
	return filepath.Join(c.Paths.DataDir, "murmurd.pid")
}

// MinPollInterval returns the configured polling floor.
func (c *Config) MinPollInterval() time.Duration {
	return time.Duration(c.Monitor.MinPollInterval) * time.Second
}

// DrainInterval returns the delay between dispatcher drain passes.
func (c *Config) DrainInterval() time.Duration {
	return time.Duration(c.Dispatch.DrainInterval) * time.Second
}

// ComposerTimeout returns the bound applied to a single AI compose call.
func (c *Config) ComposerTimeout() time.Duration {
	return time.Duration(c.AI.TimeoutSeconds) * time.Second
}

// AccountCap returns the hourly reply cap for an account, honouring overrides.
func (c *Config) AccountCap(accountID string) int {
	if limit, ok := c.RateLimit.Accounts[accountID]; ok && limit > 0 {
		return limit
	}
	return c.RateLimit.HourlyCap
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
