package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"murmur/internal/config"
	"murmur/internal/platform"
	"murmur/internal/services"
)

const (
	defaultTimeout  = 30 * time.Second
	maxResponseSize = 8 << 20
	sessionHeader   = "X-Session-ID"
)

// HTTPDoer describes the HTTP client used by the bridge client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client is the platform bridge HTTP client.
type Client struct {
	baseURL string
	token   string
	client  HTTPDoer
}

// NewFromConfig builds a client from the bridge config section.
func NewFromConfig(cfg *config.Config) *Client {
	timeout := defaultTimeout
	if cfg.Bridge.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.Bridge.TimeoutSeconds) * time.Second
	}
	return New(cfg.Bridge.URL, cfg.Bridge.Token, &http.Client{Timeout: timeout})
}

// New constructs a client for the bridge at baseURL.
func New(baseURL, token string, client HTTPDoer) *Client {
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		token:   strings.TrimSpace(token),
		client:  client,
	}
}

type validateResponse struct {
	SessionID string    `json:"session_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Validate checks that the account's session is logged in.
func (c *Client) Validate(ctx context.Context, accountID string) (platform.Session, error) {
	var resp validateResponse
	endpoint := c.endpoint("sessions", accountID, "validate")
	if err := c.do(ctx, http.MethodPost, endpoint, "", nil, &resp, services.ErrFetchTransient, "validate"); err != nil {
		return platform.Session{}, err
	}
	if resp.SessionID == "" {
		return platform.Session{}, services.Wrap(services.ErrSessionInvalid, "bridge", "validate",
			fmt.Sprintf("no session for account %s", accountID), nil)
	}
	return platform.Session{AccountID: accountID, ID: resp.SessionID, ExpiresAt: resp.ExpiresAt}, nil
}

type contentItem struct {
	SourceID  string    `json:"source_id"`
	Author    string    `json:"author"`
	Body      string    `json:"body"`
	Timestamp time.Time `json:"timestamp"`
	Kind      string    `json:"kind"`
	ParentID  string    `json:"parent_id"`
}

type contentResponse struct {
	Items  []contentItem `json:"items"`
	Cursor string        `json:"cursor"`
}

// FetchSince returns content newer than the watermark, oldest first.
func (c *Client) FetchSince(ctx context.Context, sess platform.Session, since platform.Watermark, keywords []string) (platform.Batch, error) {
	query := url.Values{}
	if !since.At.IsZero() {
		query.Set("since", since.At.UTC().Format(time.RFC3339Nano))
	}
	if since.Cursor != "" {
		query.Set("cursor", since.Cursor)
	}
	for _, kw := range keywords {
		query.Add("keyword", kw)
	}
	endpoint := c.endpoint("accounts", sess.AccountID, "content")
	if encoded := query.Encode(); encoded != "" {
		endpoint += "?" + encoded
	}

	var resp contentResponse
	if err := c.do(ctx, http.MethodGet, endpoint, sess.ID, nil, &resp, services.ErrFetchTransient, "fetch"); err != nil {
		return platform.Batch{}, err
	}

	batch := platform.Batch{Cursor: resp.Cursor, Items: make([]platform.ContentItem, 0, len(resp.Items))}
	for _, raw := range resp.Items {
		if strings.TrimSpace(raw.SourceID) == "" {
			continue
		}
		kind := platform.ContentKind(raw.Kind)
		if !kind.Valid() {
			kind = platform.KindComment
		}
		batch.Items = append(batch.Items, platform.ContentItem{
			SourceID:  raw.SourceID,
			AccountID: sess.AccountID,
			Author:    raw.Author,
			Body:      raw.Body,
			Timestamp: raw.Timestamp.UTC(),
			Kind:      kind,
			ParentID:  raw.ParentID,
		})
	}
	sort.SliceStable(batch.Items, func(i, j int) bool {
		return batch.Items[i].Timestamp.Before(batch.Items[j].Timestamp)
	})
	return batch, nil
}

type replyRequest struct {
	SourceID string `json:"source_id"`
	Kind     string `json:"kind"`
	ParentID string `json:"parent_id,omitempty"`
	Author   string `json:"author,omitempty"`
	Text     string `json:"text"`
}

type replyResponse struct {
	ReplyID string `json:"reply_id"`
}

// Send posts a reply and returns the platform reply identifier.
func (c *Client) Send(ctx context.Context, sess platform.Session, target platform.ReplyTarget, text string) (string, error) {
	body := replyRequest{
		SourceID: target.SourceID,
		Kind:     string(target.Kind),
		ParentID: target.ParentID,
		Author:   target.Author,
		Text:     text,
	}
	var resp replyResponse
	endpoint := c.endpoint("accounts", sess.AccountID, "replies")
	if err := c.do(ctx, http.MethodPost, endpoint, sess.ID, body, &resp, services.ErrSendFailed, "send"); err != nil {
		return "", err
	}
	return resp.ReplyID, nil
}

// Health verifies the bridge is reachable.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, c.baseURL+"/v1/health", "", nil, nil, services.ErrFetchTransient, "health")
}

func (c *Client) endpoint(collection, accountID, action string) string {
	return fmt.Sprintf("%s/v1/%s/%s/%s", c.baseURL, collection, url.PathEscape(accountID), action)
}

func (c *Client) do(ctx context.Context, method, endpoint, sessionID string, payload, out any, failure error, op string) error {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("bridge %s: encode body: %w", op, err)
		}
		body = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("bridge %s: build request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if sessionID != "" {
		req.Header.Set(sessionHeader, sessionID)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return services.Wrap(failure, "bridge", op, "request failed", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return services.Wrap(failure, "bridge", op, "read body", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return services.Wrap(services.ErrSessionInvalid, "bridge", op,
			fmt.Sprintf("http %d: %s", resp.StatusCode, snippet(data)), nil)
	case resp.StatusCode >= http.StatusMultipleChoices:
		return services.Wrap(failure, "bridge", op,
			fmt.Sprintf("http %d: %s", resp.StatusCode, snippet(data)), nil)
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return services.Wrap(failure, "bridge", op, "decode response", err)
	}
	return nil
}

func snippet(data []byte) string {
	text := strings.Join(strings.Fields(string(data)), " ")
	if runes := []rune(text); len(runes) > 200 {
		text = string(runes[:200]) + "..."
	}
	if text == "" {
		return "<empty>"
	}
	return text
}
