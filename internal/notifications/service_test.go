package notifications_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"murmur/internal/config"
	"murmur/internal/notifications"
)

type capture struct {
	mu       sync.Mutex
	requests []captured
}

type captured struct {
	title    string
	tags     string
	priority string
	body     string
}

func (c *capture) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("read body: %v", err)
		}
		c.mu.Lock()
		c.requests = append(c.requests, captured{
			title:    r.Header.Get("Title"),
			tags:     r.Header.Get("Tags"),
			priority: r.Header.Get("Priority"),
			body:     string(body),
		})
		c.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}
}

func (c *capture) all() []captured {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]captured(nil), c.requests...)
}

func newConfig(topic string) *config.Config {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = topic
	cfg.Notifications.DedupWindowSeconds = 600
	return &cfg
}

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	svc := notifications.NewService(newConfig(""))
	if err := svc.NotifyTaskFailed(context.Background(), 1, "acct-a", "boom"); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
	if err := notifications.NewService(nil).TestNotification(context.Background()); err != nil {
		t.Fatalf("expected nil config to yield noop, got %v", err)
	}
}

func TestNtfyServiceFormatsPayloads(t *testing.T) {
	tests := []struct {
		name           string
		send           func(notifications.Service) error
		expectTitle    string
		expectMessage  string
		expectTags     string
		expectPriority string
	}{
		{
			name: "task failed",
			send: func(s notifications.Service) error {
				return s.NotifyTaskFailed(context.Background(), 7, "acct-a", "fetch failed 5 times")
			},
			expectTitle:    "murmur - Task Failed",
			expectMessage:  "Task 7 (acct-a) stopped polling: fetch failed 5 times",
			expectTags:     "murmur,task,failed",
			expectPriority: "high",
		},
		{
			name: "session invalid",
			send: func(s notifications.Service) error {
				return s.NotifySessionInvalid(context.Background(), "acct-b", 3)
			},
			expectTitle:    "murmur - Session Invalid",
			expectMessage:  "Account acct-b needs re-authentication (task 3 failed)",
			expectTags:     "murmur,session,login",
			expectPriority: "high",
		},
		{
			name: "reply failed",
			send: func(s notifications.Service) error {
				return s.NotifyReplyFailed(context.Background(), "r-1", "acct-c", "send failed")
			},
			expectTitle:   "murmur - Reply Failed",
			expectMessage: "Reply r-1 for acct-c gave up: send failed",
			expectTags:    "murmur,reply,failed",
		},
		{
			name: "generic error",
			send: func(s notifications.Service) error {
				return s.NotifyError(context.Background(), errors.New("disk full"), "housekeeping")
			},
			expectTitle:    "murmur - Error",
			expectMessage:  "housekeeping: disk full",
			expectTags:     "murmur,error",
			expectPriority: "high",
		},
		{
			name:          "test notification",
			send:          func(s notifications.Service) error { return s.TestNotification(context.Background()) },
			expectTitle:   "murmur - Test",
			expectMessage: "Test notification from murmur",
			expectTags:    "murmur,test",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var rec capture
			server := httptest.NewServer(rec.handler(t))
			defer server.Close()

			svc := notifications.NewService(newConfig(server.URL))
			if err := tt.send(svc); err != nil {
				t.Fatalf("send: %v", err)
			}
			got := rec.all()
			if len(got) != 1 {
				t.Fatalf("expected 1 request, got %d", len(got))
			}
			req := got[0]
			if req.title != tt.expectTitle {
				t.Fatalf("title = %q, want %q", req.title, tt.expectTitle)
			}
			if req.body != tt.expectMessage {
				t.Fatalf("body = %q, want %q", req.body, tt.expectMessage)
			}
			if req.tags != tt.expectTags {
				t.Fatalf("tags = %q, want %q", req.tags, tt.expectTags)
			}
			if req.priority != tt.expectPriority {
				t.Fatalf("priority = %q, want %q", req.priority, tt.expectPriority)
			}
		})
	}
}

func TestRepeatedAlertsSuppressedWithinWindow(t *testing.T) {
	var rec capture
	server := httptest.NewServer(rec.handler(t))
	defer server.Close()

	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	svc := notifications.NewService(newConfig(server.URL), notifications.WithClock(func() time.Time { return now }))

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := svc.NotifySessionInvalid(ctx, "acct-a", 1); err != nil {
			t.Fatalf("notify: %v", err)
		}
	}
	if err := svc.NotifySessionInvalid(ctx, "acct-b", 2); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if got := len(rec.all()); got != 2 {
		t.Fatalf("expected one alert per account, got %d", got)
	}

	now = now.Add(11 * time.Minute)
	if err := svc.NotifySessionInvalid(ctx, "acct-a", 1); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if got := len(rec.all()); got != 3 {
		t.Fatalf("expected alert after window elapsed, got %d", got)
	}
}

func TestDisabledAlertClassesAreSilent(t *testing.T) {
	var rec capture
	server := httptest.NewServer(rec.handler(t))
	defer server.Close()

	cfg := newConfig(server.URL)
	cfg.Notifications.TaskFailures = false
	cfg.Notifications.ReplyFailures = false
	svc := notifications.NewService(cfg)

	ctx := context.Background()
	if err := svc.NotifyTaskFailed(ctx, 1, "acct-a", "x"); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if err := svc.NotifyReplyFailed(ctx, "r", "acct-a", "x"); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if got := len(rec.all()); got != 0 {
		t.Fatalf("expected no requests, got %d", got)
	}
}

func TestServerErrorIsReportedAndNotSuppressed(t *testing.T) {
	var calls int
	var mu sync.Mutex
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		mu.Lock()
		calls++
		mu.Unlock()
		http.Error(w, "topic locked", http.StatusForbidden)
	}))
	defer server.Close()

	svc := notifications.NewService(newConfig(server.URL))
	err := svc.NotifyTaskFailed(context.Background(), 4, "acct-a", "boom")
	if err == nil || !strings.Contains(err.Error(), "403") {
		t.Fatalf("expected 403 error, got %v", err)
	}
	if err := svc.NotifyTaskFailed(context.Background(), 4, "acct-a", "boom"); err == nil {
		t.Fatal("expected second attempt to reach the server")
	}
	mu.Lock()
	defer mu.Unlock()
	if calls != 2 {
		t.Fatalf("expected 2 calls, got %d", calls)
	}
}
