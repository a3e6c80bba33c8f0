// Package session serializes access to each account's platform session.
//
// Only one operation may run against an account at a time, whether it is a
// scheduler fetch or a dispatcher send. Callers for the same account queue
// behind one another; different accounts proceed in parallel.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"murmur/internal/logging"
	"murmur/internal/platform"
	"murmur/internal/services"
)

// Op runs with a validated session while the account lock is held.
type Op func(ctx context.Context, sess platform.Session) error

// Guard provides scoped, exclusive session acquisition per account.
type Guard struct {
	provider platform.SessionProvider
	logger   *slog.Logger

	mu    sync.Mutex
	locks map[string]chan struct{}
}

// NewGuard wraps a session provider.
func NewGuard(provider platform.SessionProvider, logger *slog.Logger) *Guard {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Guard{
		provider: provider,
		logger:   logging.NewComponentLogger(logger, "session"),
		locks:    make(map[string]chan struct{}),
	}
}

// WithSession acquires the account lock, validates the session and runs op.
// The lock is released when op returns, including on panic.
func (g *Guard) WithSession(ctx context.Context, accountID string, op Op) error {
	release, err := g.acquire(ctx, accountID)
	if err != nil {
		return err
	}
	defer release()

	sess, err := g.provider.Validate(ctx, accountID)
	if err != nil {
		if !errors.Is(err, services.ErrSessionInvalid) && !errors.Is(err, services.ErrFetchTransient) {
			err = services.Wrap(services.ErrFetchTransient, "session", "validate", accountID, err)
		}
		return err
	}
	if !sess.ExpiresAt.IsZero() && !sess.ExpiresAt.After(time.Now()) {
		return services.Wrap(services.ErrSessionInvalid, "session", "validate",
			fmt.Sprintf("session for %s expired at %s", accountID, sess.ExpiresAt.Format(time.RFC3339)), nil)
	}
	return op(ctx, sess)
}

// Busy reports whether an operation currently holds the account lock.
func (g *Guard) Busy(accountID string) bool {
	ch := g.lockFor(accountID)
	return len(ch) == 1
}

func (g *Guard) acquire(ctx context.Context, accountID string) (func(), error) {
	ch := g.lockFor(accountID)
	select {
	case ch <- struct{}{}:
		return func() { <-ch }, nil
	default:
	}
	g.logger.Debug("waiting for account session", logging.String(logging.FieldAccountID, accountID))
	select {
	case ch <- struct{}{}:
		return func() { <-ch }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (g *Guard) lockFor(accountID string) chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	ch, ok := g.locks[accountID]
	if !ok {
		ch = make(chan struct{}, 1)
		g.locks[accountID] = ch
	}
	return ch
}
