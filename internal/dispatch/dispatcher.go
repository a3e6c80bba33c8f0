package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"murmur/internal/backoff"
	"murmur/internal/classifier"
	"murmur/internal/config"
	"murmur/internal/logging"
	"murmur/internal/notifications"
	"murmur/internal/platform"
	"murmur/internal/ratelimit"
	"murmur/internal/services"
	"murmur/internal/session"
	"murmur/internal/store"
	"murmur/internal/templates"
)

// TemplateLookup resolves template IDs against the active catalog.
type TemplateLookup interface {
	Get(id string) (templates.Template, bool)
}

// Deps bundles the collaborators a Dispatcher drives. Composer may be nil
// when AI composition is disabled.
type Deps struct {
	Store     *store.Store
	Guard     *session.Guard
	Sender    platform.Sender
	Composer  platform.Composer
	Templates TemplateLookup
	Limiter   *ratelimit.Limiter
	Notifier  notifications.Service
	Logger    *slog.Logger
}

// Option customizes a Dispatcher.
type Option func(*Dispatcher)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) {
		if now != nil {
			d.now = now
		}
	}
}

// WithComposeTimeout overrides ai.timeout_seconds.
func WithComposeTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.composeTimeout = timeout
		}
	}
}

// Dispatcher owns the reply lifecycle after classification.
type Dispatcher struct {
	store     *store.Store
	guard     *session.Guard
	sender    platform.Sender
	composer  platform.Composer
	templates TemplateLookup
	limiter   *ratelimit.Limiter
	notifier  notifications.Service
	logger    *slog.Logger
	now       func() time.Time

	retry          backoff.Policy
	maxAttempts    int
	workers        int
	batchSize      int
	composeTimeout time.Duration
	fallback       string
	styleHint      string
	maxLength      int

	drainMu   sync.Mutex
	lastMu    sync.RWMutex
	lastDrain *DrainSummary
}

// New constructs a dispatcher from config.
func New(cfg *config.Config, deps Deps, opts ...Option) *Dispatcher {
	logger := deps.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	notifier := deps.Notifier
	if notifier == nil {
		notifier = notifications.NewService(nil)
	}
	d := &Dispatcher{
		store:     deps.Store,
		guard:     deps.Guard,
		sender:    deps.Sender,
		composer:  deps.Composer,
		templates: deps.Templates,
		limiter:   deps.Limiter,
		notifier:  notifier,
		logger:    logging.NewComponentLogger(logger, "dispatch"),
		now:       time.Now,
		retry: backoff.Policy{
			Base: time.Duration(cfg.Dispatch.BackoffBaseSeconds) * time.Second,
			Max:  time.Duration(cfg.Dispatch.BackoffMaxSeconds) * time.Second,
		},
		maxAttempts:    max(cfg.Dispatch.MaxAttempts, 1),
		workers:        max(cfg.Dispatch.Workers, 1),
		batchSize:      cfg.Dispatch.BatchSize,
		composeTimeout: cfg.ComposerTimeout(),
		fallback:       cfg.Dispatch.FallbackReply,
		styleHint:      cfg.Dispatch.StyleHint,
		maxLength:      cfg.Dispatch.MaxReplyLength,
	}
	if d.limiter == nil {
		d.limiter = ratelimit.New(ratelimit.KindReply, nil, func(string) int { return 0 })
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Submit records a pending reply for item. Spam is recorded as skipped and
// never sent. A second submission for the same source yields
// services.ErrDuplicateReply.
func (d *Dispatcher) Submit(ctx context.Context, item classifier.Item) (*store.ReplyRecord, error) {
	now := d.now().UTC()
	rec := &store.ReplyRecord{
		SourceID:        item.SourceID,
		TaskID:          item.TaskID,
		AccountID:       item.AccountID,
		Author:          item.Author,
		SourceText:      item.Body,
		Kind:            item.Kind,
		ParentID:        item.ParentID,
		Category:        string(item.Category),
		MatchedKeywords: item.MatchedKeywords,
		TemplateID:      item.TemplateID,
		Priority:        item.Priority,
		Mode:            item.Mode,
		Status:          store.ReplyPending,
		CreatedAt:       now,
		NextAttemptAt:   now,
	}
	if item.Category == classifier.Spam {
		rec.Status = store.ReplySkipped
		rec.LastError = "classified as spam"
	}
	if err := d.store.InsertReply(ctx, rec); err != nil {
		return nil, err
	}
	logging.WithContext(services.WithRecordID(ctx, rec.ID), d.logger).Debug("reply queued",
		logging.String(logging.FieldSourceID, rec.SourceID),
		logging.String(logging.FieldEventType, "reply_queued"),
		logging.String("category", rec.Category),
		logging.String("status", string(rec.Status)),
		logging.Int("priority", rec.Priority),
	)
	return rec, nil
}

// Retry moves a failed record back to pending with a fresh attempt budget.
func (d *Dispatcher) Retry(ctx context.Context, id string) (*store.ReplyRecord, error) {
	rec, err := d.store.RetryReply(ctx, id, d.now().UTC())
	if err != nil {
		return nil, err
	}
	d.logger.Info("reply requeued by operator",
		logging.String(logging.FieldRecordID, rec.ID),
		logging.String(logging.FieldAccountID, rec.AccountID),
		logging.String(logging.FieldEventType, "reply_retry"),
	)
	return rec, nil
}

// List returns records newest first, optionally filtered by status.
func (d *Dispatcher) List(ctx context.Context, statuses ...store.ReplyStatus) ([]*store.ReplyRecord, error) {
	return d.store.ListReplies(ctx, store.ReplyFilter{Statuses: statuses})
}

// History returns the audit trail of a record.
func (d *Dispatcher) History(ctx context.Context, id string) ([]store.ReplyEvent, error) {
	rec, err := d.store.GetReply(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, services.Wrap(services.ErrNotFound, "dispatch", "history", fmt.Sprintf("reply %s", id), nil)
	}
	return d.store.ReplyHistory(ctx, id)
}

// LastDrain returns the summary of the most recent drain pass, if any.
func (d *Dispatcher) LastDrain() *DrainSummary {
	d.lastMu.RLock()
	defer d.lastMu.RUnlock()
	if d.lastDrain == nil {
		return nil
	}
	summary := *d.lastDrain
	return &summary
}
