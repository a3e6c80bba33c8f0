package testsupport

import (
	"path/filepath"
	"testing"

	"murmur/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// The poll floor is lowered to one second so scheduler tests run quickly.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.TemplatesFile = filepath.Join(base, "templates.yaml")
	cfgVal.Paths.SocketPath = filepath.Join(base, "data", "murmurd.sock")
	cfgVal.Monitor.MinPollInterval = 1
	cfgVal.Monitor.DefaultPollInterval = 1
	cfgVal.Monitor.PollsPerHour = 0
	cfgVal.Monitor.RetryBaseSeconds = 1
	cfgVal.Monitor.RetryMaxSeconds = 2
	cfgVal.Bridge.URL = "http://127.0.0.1:0"
	cfgVal.Notifications.NtfyTopic = ""

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}
	for _, opt := range opts {
		opt(builder)
	}
	return builder.cfg
}

// WithHourlyCap sets the default per-account reply cap.
func WithHourlyCap(limit int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.RateLimit.HourlyCap = limit
	}
}

// WithBatchSize sets how many due records a drain pass loads per account.
func WithBatchSize(size int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Dispatch.BatchSize = size
	}
}

// WithMonitorLimits sets the scheduler worker bound and hourly poll budget.
func WithMonitorLimits(workers, pollsPerHour int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Monitor.Workers = workers
		b.cfg.Monitor.PollsPerHour = pollsPerHour
	}
}

// WithMaxAttempts sets the dispatcher's send attempt budget.
func WithMaxAttempts(attempts int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Dispatch.MaxAttempts = attempts
	}
}

// WithAI enables the composer with the given provider and endpoint.
func WithAI(provider, baseURL string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.AI.Enabled = true
		b.cfg.AI.Provider = provider
		b.cfg.AI.BaseURL = baseURL
		b.cfg.AI.APIKey = "test-key"
		if b.cfg.AI.Model == "" {
			b.cfg.AI.Model = "test-model"
		}
	}
}

// WithBridgeURL points the platform bridge at a test server.
func WithBridgeURL(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Bridge.URL = url
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
