// Package ratelimit provides the per-account token bucket that governs
// outbound replies and inbound polling.
//
// Each account owns a bucket whose capacity is the hourly cap and which
// refills continuously at cap per hour. A trailing log of send times caps
// the number of committed actions in any rolling hour, so a bucket that
// refilled mid-hour still cannot exceed the cap. State is persisted after
// every mutation so a restart does not hand out a fresh budget.
package ratelimit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"murmur/internal/logging"
	"murmur/internal/services"
	"murmur/internal/store"
)

// Kinds of limiter sharing the rate_windows table.
const (
	KindReply = "reply"
	KindPoll  = "poll"
)

const window = time.Hour

// Store persists limiter windows.
type Store interface {
	LoadRateWindow(ctx context.Context, kind, accountID string) (*store.RateWindow, error)
	SaveRateWindow(ctx context.Context, window store.RateWindow) error
}

// CapFunc returns the hourly cap for an account. A cap <= 0 disables limiting.
type CapFunc func(accountID string) int

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		if now != nil {
			l.now = now
		}
	}
}

// WithLogger sets the limiter logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Limiter) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// Limiter hands out per-account send reservations.
type Limiter struct {
	kind   string
	store  Store
	capFor CapFunc
	now    func() time.Time
	logger *slog.Logger

	mu      sync.Mutex
	buckets map[string]*bucket
}

type bucket struct {
	mu          sync.Mutex
	loaded      bool
	cap         int
	tokens      float64
	refilledAt  time.Time
	windowStart time.Time
	sentCount   int
	sends       []time.Time
	reserved    int
}

// Window is a point-in-time view of one account's limiter.
type Window struct {
	AccountID    string
	Cap          int
	Tokens       float64
	SentLastHour int
	Reserved     int
	WindowStart  time.Time
}

// New constructs a limiter of the given kind. store may be nil for an
// in-memory limiter.
func New(kind string, st Store, capFor CapFunc, opts ...Option) *Limiter {
	l := &Limiter{
		kind:    kind,
		store:   st,
		capFor:  capFor,
		now:     time.Now,
		logger:  logging.NewNop(),
		buckets: make(map[string]*bucket),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = logging.NewComponentLogger(l.logger, "ratelimit").With(logging.String("limiter", kind))
	return l
}

// TryAcquire reserves one unit for accountID without blocking. The caller
// must follow a true result with Commit or Release.
func (l *Limiter) TryAcquire(ctx context.Context, accountID string) bool {
	limit := l.capFor(accountID)
	if limit <= 0 {
		return true
	}
	b, err := l.bucket(ctx, accountID)
	if err != nil {
		l.logger.Warn("rate window unavailable; denying",
			logging.String(logging.FieldAccountID, accountID),
			logging.Error(err),
		)
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	now := l.now()
	b.advance(now, limit)
	if b.tokens < 1 || len(b.sends)+b.reserved >= b.cap {
		return false
	}
	b.tokens--
	b.reserved++
	l.persist(ctx, accountID, b, now)
	return true
}

// Commit records that a reserved action happened.
func (l *Limiter) Commit(ctx context.Context, accountID string) {
	limit := l.capFor(accountID)
	if limit <= 0 {
		return
	}
	b, err := l.bucket(ctx, accountID)
	if err != nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	now := l.now()
	b.advance(now, limit)
	if b.reserved > 0 {
		b.reserved--
	}
	b.sends = append(b.sends, now)
	b.sentCount++
	l.persist(ctx, accountID, b, now)
}

// Release returns an unused reservation to the bucket.
func (l *Limiter) Release(ctx context.Context, accountID string) {
	limit := l.capFor(accountID)
	if limit <= 0 {
		return
	}
	b, err := l.bucket(ctx, accountID)
	if err != nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	now := l.now()
	b.advance(now, limit)
	if b.reserved > 0 {
		b.reserved--
		b.tokens = min(float64(b.cap), b.tokens+1)
	}
	l.persist(ctx, accountID, b, now)
}

// Allow reserves and commits in one step. Pollers use it since a poll
// cannot be undone once attempted.
func (l *Limiter) Allow(ctx context.Context, accountID string) bool {
	if !l.TryAcquire(ctx, accountID) {
		return false
	}
	l.Commit(ctx, accountID)
	return true
}

// Snapshot reports the current state for accountID.
func (l *Limiter) Snapshot(ctx context.Context, accountID string) (Window, error) {
	limit := l.capFor(accountID)
	b, err := l.bucket(ctx, accountID)
	if err != nil {
		return Window{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if limit > 0 {
		b.advance(l.now(), limit)
	}
	return Window{
		AccountID:    accountID,
		Cap:          limit,
		Tokens:       b.tokens,
		SentLastHour: len(b.sends),
		Reserved:     b.reserved,
		WindowStart:  b.windowStart,
	}, nil
}

func (l *Limiter) bucket(ctx context.Context, accountID string) (*bucket, error) {
	l.mu.Lock()
	b, ok := l.buckets[accountID]
	if !ok {
		b = &bucket{}
		l.buckets[accountID] = b
	}
	l.mu.Unlock()

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.loaded {
		return b, nil
	}
	now := l.now()
	limit := l.capFor(accountID)
	b.cap = limit
	b.tokens = float64(limit)
	b.refilledAt = now
	b.windowStart = now
	if l.store != nil {
		saved, err := l.store.LoadRateWindow(ctx, l.kind, accountID)
		if err != nil {
			return nil, services.Wrap(services.ErrFetchTransient, "ratelimit", "load window", accountID, err)
		}
		if saved != nil {
			b.cap = saved.Cap
			b.tokens = saved.Tokens
			b.refilledAt = saved.RefilledAt
			b.windowStart = saved.WindowStart
			b.sentCount = saved.SentCount
			b.sends = append([]time.Time(nil), saved.Sends...)
		}
	}
	b.loaded = true
	return b, nil
}

// advance refills tokens for elapsed time, drops sends older than the
// rolling window and rolls the hourly counter. Caller holds b.mu.
func (b *bucket) advance(now time.Time, limit int) {
	if limit != b.cap {
		b.cap = limit
	}
	if elapsed := now.Sub(b.refilledAt); elapsed > 0 {
		b.tokens += elapsed.Hours() * float64(b.cap)
		b.refilledAt = now
	}
	if b.tokens > float64(b.cap) {
		b.tokens = float64(b.cap)
	}

	cutoff := now.Add(-window)
	keep := b.sends[:0]
	for _, at := range b.sends {
		if at.After(cutoff) {
			keep = append(keep, at)
		}
	}
	b.sends = keep

	if now.Sub(b.windowStart) >= window {
		b.windowStart = now
		b.sentCount = 0
	}
}

func (l *Limiter) persist(ctx context.Context, accountID string, b *bucket, now time.Time) {
	if l.store == nil {
		return
	}
	err := l.store.SaveRateWindow(ctx, store.RateWindow{
		Kind:        l.kind,
		AccountID:   accountID,
		Cap:         b.cap,
		Tokens:      b.tokens,
		RefilledAt:  b.refilledAt,
		SentCount:   b.sentCount,
		WindowStart: b.windowStart,
		Sends:       b.sends,
		UpdatedAt:   now,
	})
	if err != nil {
		l.logger.Warn("persist rate window failed",
			logging.String(logging.FieldAccountID, accountID),
			logging.Error(err),
		)
	}
}
