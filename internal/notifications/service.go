package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"murmur/internal/config"
)

const userAgent = "murmur/0.1.0"

// Service defines the notification surface exposed to pipeline components.
type Service interface {
	NotifyTaskFailed(ctx context.Context, taskID int64, accountID, reason string) error
	NotifySessionInvalid(ctx context.Context, accountID string, taskID int64) error
	NotifyReplyFailed(ctx context.Context, recordID, accountID, lastError string) error
	NotifyError(ctx context.Context, err error, context string) error
	TestNotification(ctx context.Context) error
}

// Option customizes the ntfy-backed service.
type Option func(*ntfyService)

// WithHTTPClient overrides the HTTP client used to reach ntfy.
func WithHTTPClient(client *http.Client) Option {
	return func(n *ntfyService) {
		if client != nil {
			n.client = client
		}
	}
}

// WithClock overrides the clock used for repeat suppression.
func WithClock(now func() time.Time) Option {
	return func(n *ntfyService) {
		if now != nil {
			n.now = now
		}
	}
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config, opts ...Option) Service {
	if cfg == nil {
		return noopService{}
	}
	settings := cfg.Notifications
	topic := strings.TrimSpace(settings.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(settings.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	svc := &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
		settings: settings,
		window:   time.Duration(settings.DedupWindowSeconds) * time.Second,
		now:      time.Now,
		recent:   make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
	// key identifies repeats of the same condition; empty disables suppression.
	key string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
	settings config.Notifications
	window   time.Duration
	now      func() time.Time

	mu     sync.Mutex
	recent map[string]time.Time
}

func (n *ntfyService) NotifyTaskFailed(ctx context.Context, taskID int64, accountID, reason string) error {
	if !n.settings.TaskFailures {
		return nil
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "unknown error"
	}
	return n.send(ctx, payload{
		title:    "murmur - Task Failed",
		message:  fmt.Sprintf("Task %d (%s) stopped polling: %s", taskID, strings.TrimSpace(accountID), reason),
		tags:     []string{"murmur", "task", "failed"},
		priority: "high",
		key:      fmt.Sprintf("task-failed:%d", taskID),
	})
}

func (n *ntfyService) NotifySessionInvalid(ctx context.Context, accountID string, taskID int64) error {
	if !n.settings.SessionInvalid {
		return nil
	}
	accountID = strings.TrimSpace(accountID)
	return n.send(ctx, payload{
		title:    "murmur - Session Invalid",
		message:  fmt.Sprintf("Account %s needs re-authentication (task %d failed)", accountID, taskID),
		tags:     []string{"murmur", "session", "login"},
		priority: "high",
		key:      "session-invalid:" + accountID,
	})
}

func (n *ntfyService) NotifyReplyFailed(ctx context.Context, recordID, accountID, lastError string) error {
	if !n.settings.ReplyFailures {
		return nil
	}
	lastError = strings.TrimSpace(lastError)
	if lastError == "" {
		lastError = "unknown error"
	}
	return n.send(ctx, payload{
		title:   "murmur - Reply Failed",
		message: fmt.Sprintf("Reply %s for %s gave up: %s", strings.TrimSpace(recordID), strings.TrimSpace(accountID), lastError),
		tags:    []string{"murmur", "reply", "failed"},
		key:     "reply-failed:" + strings.TrimSpace(accountID),
	})
}

func (n *ntfyService) NotifyError(ctx context.Context, err error, contextLabel string) error {
	if err == nil {
		return nil
	}
	label := strings.TrimSpace(contextLabel)
	message := err.Error()
	if label != "" {
		message = fmt.Sprintf("%s: %s", label, message)
	}
	return n.send(ctx, payload{
		title:    "murmur - Error",
		message:  message,
		tags:     []string{"murmur", "error"},
		priority: "high",
		key:      "error:" + label,
	})
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	return n.send(ctx, payload{
		title:   "murmur - Test",
		message: "Test notification from murmur",
		tags:    []string{"murmur", "test"},
	})
}

// suppress reports whether key fired within the dedup window and otherwise
// records it.
func (n *ntfyService) suppress(key string) bool {
	if key == "" || n.window <= 0 {
		return false
	}
	now := n.now()
	n.mu.Lock()
	defer n.mu.Unlock()
	for k, at := range n.recent {
		if now.Sub(at) >= n.window {
			delete(n.recent, k)
		}
	}
	if _, ok := n.recent[key]; ok {
		return true
	}
	n.recent[key] = now
	return false
}

func (n *ntfyService) forget(key string) {
	if key == "" {
		return
	}
	n.mu.Lock()
	delete(n.recent, key)
	n.mu.Unlock()
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}
	if n.suppress(data.key) {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		n.forget(data.key)
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		n.forget(data.key)
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		n.forget(data.key)
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyTaskFailed(context.Context, int64, string, string) error   { return nil }
func (noopService) NotifySessionInvalid(context.Context, string, int64) error       { return nil }
func (noopService) NotifyReplyFailed(context.Context, string, string, string) error { return nil }
func (noopService) NotifyError(context.Context, error, string) error                { return nil }
func (noopService) TestNotification(context.Context) error                          { return nil }
