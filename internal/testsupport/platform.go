package testsupport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"murmur/internal/platform"
	"murmur/internal/services"
)

// SentReply is one reply accepted by FakePlatform.
type SentReply struct {
	AccountID string
	Target    platform.ReplyTarget
	Text      string
	ReplyID   string
}

// FakePlatform implements the session provider, fetcher and sender contracts
// in memory. Queued batches are handed out in order; once the queue for an
// account is empty the standing batch (if any) is returned on every fetch.
type FakePlatform struct {
	mu         sync.Mutex
	queued     map[string][]platform.Batch
	standing   map[string]platform.Batch
	invalid    map[string]bool
	fetchErrs  map[string]error
	sendErrs   []error
	sent       []SentReply
	fetchCalls map[string]int
	watermarks map[string][]platform.Watermark

	// FetchHook runs at the start of every fetch, outside the fake's lock.
	// Tests use it to block a cycle mid-flight.
	FetchHook func(ctx context.Context, accountID string)
}

// NewFakePlatform returns an empty fake.
func NewFakePlatform() *FakePlatform {
	return &FakePlatform{
		queued:     make(map[string][]platform.Batch),
		standing:   make(map[string]platform.Batch),
		invalid:    make(map[string]bool),
		fetchErrs:  make(map[string]error),
		fetchCalls: make(map[string]int),
		watermarks: make(map[string][]platform.Watermark),
	}
}

// QueueBatch appends a one-shot batch for account.
func (f *FakePlatform) QueueBatch(accountID string, items ...platform.ContentItem) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queued[accountID] = append(f.queued[accountID], platform.Batch{Items: items})
}

// SetStandingBatch makes every later fetch for account return items.
func (f *FakePlatform) SetStandingBatch(accountID string, items ...platform.ContentItem) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.standing[accountID] = platform.Batch{Items: items}
}

// InvalidateSession makes Validate fail for account until restored.
func (f *FakePlatform) InvalidateSession(accountID string, invalid bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalid[accountID] = invalid
}

// FailFetches makes fetches for account return err; nil clears it.
func (f *FakePlatform) FailFetches(accountID string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.fetchErrs, accountID)
		return
	}
	f.fetchErrs[accountID] = err
}

// FailNextSends queues errors returned by the next sends, one per call.
func (f *FakePlatform) FailNextSends(errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sendErrs = append(f.sendErrs, errs...)
}

// Sent returns the replies accepted so far.
func (f *FakePlatform) Sent() []SentReply {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]SentReply(nil), f.sent...)
}

// FetchCalls reports how many fetches reached the fake for account.
func (f *FakePlatform) FetchCalls(accountID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetchCalls[accountID]
}

// Watermarks returns the watermark passed to each fetch for account.
func (f *FakePlatform) Watermarks(accountID string) []platform.Watermark {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]platform.Watermark(nil), f.watermarks[accountID]...)
}

// Validate implements platform.SessionProvider.
func (f *FakePlatform) Validate(ctx context.Context, accountID string) (platform.Session, error) {
	if err := ctx.Err(); err != nil {
		return platform.Session{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.invalid[accountID] {
		return platform.Session{}, services.Wrap(services.ErrSessionInvalid, "fake", "validate", accountID, nil)
	}
	return platform.Session{AccountID: accountID, ID: "sess-" + accountID}, nil
}

// FetchSince implements platform.Fetcher.
func (f *FakePlatform) FetchSince(ctx context.Context, sess platform.Session, since platform.Watermark, _ []string) (platform.Batch, error) {
	if hook := f.FetchHook; hook != nil {
		hook(ctx, sess.AccountID)
	}
	if err := ctx.Err(); err != nil {
		return platform.Batch{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchCalls[sess.AccountID]++
	f.watermarks[sess.AccountID] = append(f.watermarks[sess.AccountID], since)
	if err := f.fetchErrs[sess.AccountID]; err != nil {
		return platform.Batch{}, err
	}
	if queue := f.queued[sess.AccountID]; len(queue) > 0 {
		batch := queue[0]
		f.queued[sess.AccountID] = queue[1:]
		return batch, nil
	}
	return f.standing[sess.AccountID], nil
}

// Send implements platform.Sender.
func (f *FakePlatform) Send(ctx context.Context, sess platform.Session, target platform.ReplyTarget, text string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sendErrs) > 0 {
		err := f.sendErrs[0]
		f.sendErrs = f.sendErrs[1:]
		if err != nil {
			return "", err
		}
	}
	id := fmt.Sprintf("reply-%d", len(f.sent)+1)
	f.sent = append(f.sent, SentReply{AccountID: sess.AccountID, Target: target, Text: text, ReplyID: id})
	return id, nil
}

// FakeComposer implements platform.Composer with a fixed answer. A positive
// Delay blocks until the delay passes or the context ends.
type FakeComposer struct {
	Text  string
	Err   error
	Delay time.Duration

	mu    sync.Mutex
	calls int
}

// Compose implements platform.Composer.
func (c *FakeComposer) Compose(ctx context.Context, _ string, _ string, _ int) (string, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	if c.Delay > 0 {
		timer := time.NewTimer(c.Delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return "", services.Wrap(services.ErrTimeout, "fake", "compose", "", ctx.Err())
		case <-timer.C:
		}
	}
	if c.Err != nil {
		return "", c.Err
	}
	return c.Text, nil
}

// Calls reports how many times Compose ran.
func (c *FakeComposer) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// Item builds a comment for account with the given source ID and body.
func Item(accountID, sourceID, body string, at time.Time) platform.ContentItem {
	return platform.ContentItem{
		SourceID:  sourceID,
		AccountID: accountID,
		Author:    "user-" + sourceID,
		Body:      body,
		Timestamp: at,
		Kind:      platform.KindComment,
	}
}
