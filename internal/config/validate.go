package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var knownCategories = map[string]struct{}{
	"LegalConsultation": {},
	"Gratitude":         {},
	"Challenge":         {},
	"Spam":              {},
	"Other":             {},
}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateMonitor(); err != nil {
		return err
	}
	if err := c.validateDispatch(); err != nil {
		return err
	}
	if err := c.validateRateLimit(); err != nil {
		return err
	}
	if err := c.validateAI(); err != nil {
		return err
	}
	if err := c.validateBridge(); err != nil {
		return err
	}
	if err := c.validateClassifier(); err != nil {
		return err
	}
	if err := c.validateDedup(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateMonitor() error {
	m := c.Monitor
	if m.MinPollInterval <= 0 {
		return errors.New("monitor.min_poll_interval must be positive")
	}
	if m.MaxPollInterval < m.MinPollInterval || m.MaxPollInterval > maxAllowedPollInterval {
		return fmt.Errorf("monitor.max_poll_interval must be between monitor.min_poll_interval and %d", maxAllowedPollInterval)
	}
	if m.DefaultPollInterval < m.MinPollInterval || m.DefaultPollInterval > m.MaxPollInterval {
		return errors.New("monitor.default_poll_interval must be between monitor.min_poll_interval and monitor.max_poll_interval")
	}
	if m.Workers <= 0 {
		return errors.New("monitor.workers must be positive")
	}
	if m.FailureThreshold <= 0 {
		return errors.New("monitor.failure_threshold must be positive")
	}
	if m.PollsPerHour < 0 {
		return errors.New("monitor.polls_per_hour must be >= 0")
	}
	if m.RetryBaseSeconds <= 0 {
		return errors.New("monitor.retry_base_seconds must be positive")
	}
	if m.RetryMaxSeconds < m.RetryBaseSeconds {
		return errors.New("monitor.retry_max_seconds must be >= monitor.retry_base_seconds")
	}
	if m.MinContentLength < 0 {
		return errors.New("monitor.min_content_length must be >= 0")
	}
	if m.MaxContentLength > 0 && m.MaxContentLength < m.MinContentLength {
		return errors.New("monitor.max_content_length must be 0 or >= monitor.min_content_length")
	}
	return nil
}

func (c *Config) validateDispatch() error {
	d := c.Dispatch
	if d.DrainInterval <= 0 {
		return errors.New("dispatch.drain_interval must be positive")
	}
	if d.Workers <= 0 {
		return errors.New("dispatch.workers must be positive")
	}
	if d.MaxAttempts <= 0 || d.MaxAttempts > maxAllowedDispatchAttempts {
		return fmt.Errorf("dispatch.max_attempts must be between 1 and %d", maxAllowedDispatchAttempts)
	}
	if d.BackoffBaseSeconds <= 0 {
		return errors.New("dispatch.backoff_base_seconds must be positive")
	}
	if d.BackoffMaxSeconds < d.BackoffBaseSeconds {
		return errors.New("dispatch.backoff_max_seconds must be >= dispatch.backoff_base_seconds")
	}
	if d.FallbackReply == "" {
		return errors.New("dispatch.fallback_reply must be set")
	}
	if d.MaxReplyLength < minAllowedReplyLength || d.MaxReplyLength > maxAllowedReplyLength {
		return fmt.Errorf("dispatch.max_reply_length must be between %d and %d", minAllowedReplyLength, maxAllowedReplyLength)
	}
	return nil
}

func (c *Config) validateRateLimit() error {
	if c.RateLimit.HourlyCap <= 0 {
		return errors.New("rate_limit.hourly_cap must be positive")
	}
	for account, limit := range c.RateLimit.Accounts {
		if strings.TrimSpace(account) == "" {
			return errors.New("rate_limit.accounts keys must be non-empty")
		}
		if limit <= 0 {
			return fmt.Errorf("rate_limit.accounts.%s must be positive", account)
		}
	}
	return nil
}

func (c *Config) validateAI() error {
	if !c.AI.Enabled {
		return nil
	}
	switch c.AI.Provider {
	case ProviderOpenRouter:
		if c.AI.BaseURL == "" {
			return errors.New("ai.base_url must be set when ai.provider is openrouter")
		}
	case ProviderGemini:
	default:
		return fmt.Errorf("ai.provider: unsupported value %q", c.AI.Provider)
	}
	if c.AI.APIKey == "" {
		return errors.New("ai.api_key must be set when ai.enabled is true (or set MURMUR_AI_API_KEY)")
	}
	if c.AI.Model == "" {
		return errors.New("ai.model must be set when ai.enabled is true")
	}
	return nil
}

func (c *Config) validateBridge() error {
	url := c.Bridge.URL
	if url == "" {
		return errors.New("bridge.url must be set")
	}
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return fmt.Errorf("bridge.url must be an http(s) URL, got %q", url)
	}
	return nil
}

func (c *Config) validateClassifier() error {
	switch c.Classifier.TemplateTieBreak {
	case TieBreakRecent, TieBreakPriority:
	default:
		return fmt.Errorf("classifier.template_tie_break: unsupported value %q", c.Classifier.TemplateTieBreak)
	}
	for i, rule := range c.Classifier.Rules {
		if _, ok := knownCategories[rule.Category]; !ok {
			return fmt.Errorf("classifier.rules[%d].category: unsupported value %q", i, rule.Category)
		}
		if rule.Category == "Other" {
			return fmt.Errorf("classifier.rules[%d]: Other is reserved for unmatched content", i)
		}
		if len(rule.Keywords) == 0 && len(rule.Patterns) == 0 {
			return fmt.Errorf("classifier.rules[%d] must declare keywords or patterns", i)
		}
		if rule.Priority <= 0 {
			return fmt.Errorf("classifier.rules[%d].priority must be positive", i)
		}
		if rule.Mode != ModeTemplate && rule.Mode != ModeAI {
			return fmt.Errorf("classifier.rules[%d].mode: unsupported value %q", i, rule.Mode)
		}
		for _, pattern := range rule.Patterns {
			if _, err := regexp.Compile(pattern); err != nil {
				return fmt.Errorf("classifier.rules[%d].patterns: %w", i, err)
			}
		}
	}
	return nil
}

func (c *Config) validateDedup() error {
	if c.Dedup.RetentionDays < 0 {
		return errors.New("dedup.retention_days must be >= 0")
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if c.Notifications.DedupWindowSeconds < 0 {
		return errors.New("notifications.dedup_window_seconds must be >= 0")
	}
	return nil
}

func (c *Config) validateLogging() error {
	if c.Logging.RetentionDays < 0 {
		return errors.New("logging.retention_days must be >= 0")
	}
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}
