package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"murmur/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("MURMUR_BRIDGE_TOKEN", "bridge-secret")
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantData := filepath.Join(tempHome, ".local", "share", "murmur")
	if cfg.Paths.DataDir != wantData {
		t.Fatalf("unexpected data dir: got %q want %q", cfg.Paths.DataDir, wantData)
	}
	if cfg.Paths.SocketPath != filepath.Join(wantData, "murmurd.sock") {
		t.Fatalf("unexpected socket path: %q", cfg.Paths.SocketPath)
	}
	if cfg.DatabasePath() != filepath.Join(wantData, "murmur.db") {
		t.Fatalf("unexpected database path: %q", cfg.DatabasePath())
	}
	if cfg.Bridge.Token != "bridge-secret" {
		t.Fatalf("expected bridge token from env, got %q", cfg.Bridge.Token)
	}
	if cfg.RateLimit.HourlyCap != 10 {
		t.Fatalf("expected default hourly cap 10, got %d", cfg.RateLimit.HourlyCap)
	}
	if cfg.Monitor.MinPollInterval != 60 {
		t.Fatalf("expected default poll floor 60, got %d", cfg.Monitor.MinPollInterval)
	}
	if len(cfg.Classifier.Rules) != len(config.DefaultRules()) {
		t.Fatalf("expected built-in rules, got %d", len(cfg.Classifier.Rules))
	}
	if cfg.AI.Enabled {
		t.Fatal("expected AI composer disabled by default")
	}
}

func TestLoadCustomConfigReplacesRules(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	configPath := filepath.Join(t.TempDir(), "murmur.toml")
	payload := `
[paths]
data_dir = "~/data"

[rate_limit]
hourly_cap = 4

[rate_limit.accounts]
"acct-a" = 2

[[classifier.rules]]
category = "Gratitude"
keywords = [" 谢谢 ", ""]
priority = 5
`
	if err := os.WriteFile(configPath, []byte(payload), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != configPath {
		t.Fatalf("expected config to resolve to %q, got %q (exists=%v)", configPath, resolved, exists)
	}
	if cfg.Paths.DataDir != filepath.Join(tempHome, "data") {
		t.Fatalf("unexpected data dir: %q", cfg.Paths.DataDir)
	}
	if len(cfg.Classifier.Rules) != 1 {
		t.Fatalf("expected file rules to replace defaults, got %d rules", len(cfg.Classifier.Rules))
	}
	rule := cfg.Classifier.Rules[0]
	if len(rule.Keywords) != 1 || rule.Keywords[0] != "谢谢" {
		t.Fatalf("expected trimmed keywords, got %#v", rule.Keywords)
	}
	if rule.Mode != config.ModeTemplate {
		t.Fatalf("expected default mode template, got %q", rule.Mode)
	}
	if got := cfg.AccountCap("acct-a"); got != 2 {
		t.Fatalf("expected override cap 2, got %d", got)
	}
	if got := cfg.AccountCap("acct-b"); got != 4 {
		t.Fatalf("expected global cap 4, got %d", got)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{
			name:   "poll floor",
			mutate: func(c *config.Config) { c.Monitor.MinPollInterval = 0 },
			want:   "monitor.min_poll_interval",
		},
		{
			name:   "default interval below floor",
			mutate: func(c *config.Config) { c.Monitor.DefaultPollInterval = 10 },
			want:   "monitor.default_poll_interval",
		},
		{
			name:   "hourly cap",
			mutate: func(c *config.Config) { c.RateLimit.HourlyCap = 0 },
			want:   "rate_limit.hourly_cap",
		},
		{
			name:   "empty fallback",
			mutate: func(c *config.Config) { c.Dispatch.FallbackReply = "" },
			want:   "dispatch.fallback_reply",
		},
		{
			name: "ai without key",
			mutate: func(c *config.Config) {
				c.AI.Enabled = true
				c.AI.APIKey = ""
			},
			want: "ai.api_key",
		},
		{
			name: "unknown category",
			mutate: func(c *config.Config) {
				c.Classifier.Rules = []config.Rule{{Category: "Weather", Keywords: []string{"rain"}, Priority: 1, Mode: config.ModeTemplate}}
			},
			want: "classifier.rules[0].category",
		},
		{
			name: "bad pattern",
			mutate: func(c *config.Config) {
				c.Classifier.Rules = []config.Rule{{Category: "Spam", Patterns: []string{"("}, Priority: 1, Mode: config.ModeTemplate}}
			},
			want: "classifier.rules[0].patterns",
		},
		{
			name:   "tie break",
			mutate: func(c *config.Config) { c.Classifier.TemplateTieBreak = "random" },
			want:   "classifier.template_tie_break",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("expected validation error containing %q", tc.want)
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error mentioning %q, got %v", tc.want, err)
			}
		})
	}
}

func TestDefaultConfigValidates(t *testing.T) {
	cfg := config.Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestCreateSampleRoundTrips(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample returned error: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	var decoded config.Config
	if err := toml.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("sample config is not valid TOML: %v", err)
	}
	if decoded.RateLimit.HourlyCap != 10 {
		t.Fatalf("expected sample hourly cap 10, got %d", decoded.RateLimit.HourlyCap)
	}
	if _, _, _, err := config.Load(path); err != nil {
		t.Fatalf("sample config should load: %v", err)
	}
}
