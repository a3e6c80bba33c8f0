package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeAI()
	c.normalizeBridge()
	c.normalizeDispatch()
	c.normalizeClassifier()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.TemplatesFile) != "" {
		if c.Paths.TemplatesFile, err = expandPath(c.Paths.TemplatesFile); err != nil {
			return fmt.Errorf("paths.templates_file: %w", err)
		}
	}
	if strings.TrimSpace(c.Paths.SocketPath) == "" {
		c.Paths.SocketPath = filepath.Join(c.Paths.DataDir, defaultSocketName)
	}
	if c.Paths.SocketPath, err = expandPath(c.Paths.SocketPath); err != nil {
		return fmt.Errorf("paths.socket_path: %w", err)
	}
	return nil
}

func (c *Config) normalizeAI() {
	c.AI.Provider = strings.ToLower(strings.TrimSpace(c.AI.Provider))
	if c.AI.Provider == "" {
		c.AI.Provider = defaultAIProvider
	}
	c.AI.APIKey = strings.TrimSpace(c.AI.APIKey)
	if c.AI.APIKey == "" {
		if value, ok := os.LookupEnv("MURMUR_AI_API_KEY"); ok {
			c.AI.APIKey = strings.TrimSpace(value)
		}
	}
	c.AI.BaseURL = strings.TrimSpace(c.AI.BaseURL)
	c.AI.Model = strings.TrimSpace(c.AI.Model)
	if c.AI.Provider == ProviderGemini && (c.AI.Model == "" || c.AI.Model == defaultAIModel) {
		c.AI.Model = defaultGeminiModel
	}
	if c.AI.Provider == ProviderOpenRouter {
		if c.AI.BaseURL == "" {
			c.AI.BaseURL = defaultAIBaseURL
		}
		if c.AI.Model == "" {
			c.AI.Model = defaultAIModel
		}
	}
	if c.AI.TimeoutSeconds <= 0 {
		c.AI.TimeoutSeconds = defaultAITimeoutSeconds
	}
}

func (c *Config) normalizeBridge() {
	c.Bridge.URL = strings.TrimRight(strings.TrimSpace(c.Bridge.URL), "/")
	c.Bridge.Token = strings.TrimSpace(c.Bridge.Token)
	if c.Bridge.Token == "" {
		if value, ok := os.LookupEnv("MURMUR_BRIDGE_TOKEN"); ok {
			c.Bridge.Token = strings.TrimSpace(value)
		}
	}
	if c.Bridge.TimeoutSeconds <= 0 {
		c.Bridge.TimeoutSeconds = defaultBridgeTimeout
	}
}

func (c *Config) normalizeDispatch() {
	c.Dispatch.FallbackReply = strings.TrimSpace(c.Dispatch.FallbackReply)
	c.Dispatch.StyleHint = strings.TrimSpace(c.Dispatch.StyleHint)
	if c.Dispatch.StyleHint == "" {
		c.Dispatch.StyleHint = defaultStyleHint
	}
	if c.Dispatch.BatchSize <= 0 {
		c.Dispatch.BatchSize = defaultDrainBatchSize
	}
}

func (c *Config) normalizeClassifier() {
	c.Classifier.TemplateTieBreak = strings.ToLower(strings.TrimSpace(c.Classifier.TemplateTieBreak))
	if c.Classifier.TemplateTieBreak == "" {
		c.Classifier.TemplateTieBreak = defaultTemplateTieBreak
	}
	if len(c.Classifier.Rules) == 0 {
		c.Classifier.Rules = DefaultRules()
	}
	for i := range c.Classifier.Rules {
		rule := &c.Classifier.Rules[i]
		rule.Category = strings.TrimSpace(rule.Category)
		rule.Mode = strings.ToLower(strings.TrimSpace(rule.Mode))
		if rule.Mode == "" {
			rule.Mode = ModeTemplate
		}
		rule.Keywords = trimNonEmpty(rule.Keywords)
		rule.Patterns = trimNonEmpty(rule.Patterns)
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.NtfyTopic == "" {
		if value, ok := os.LookupEnv("MURMUR_NTFY_TOPIC"); ok {
			c.Notifications.NtfyTopic = strings.TrimSpace(value)
		}
	}
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func trimNonEmpty(values []string) []string {
	out := values[:0]
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
