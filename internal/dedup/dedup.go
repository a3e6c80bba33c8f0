// Package dedup tracks which platform source IDs have already entered the
// pipeline. An ID is processed once Record returns, regardless of what
// happens to it downstream.
package dedup

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"murmur/internal/logging"
)

const stripeCount = 64

// Backend persists the seen set.
type Backend interface {
	HasSeen(ctx context.Context, sourceID string) (bool, error)
	MarkSeen(ctx context.Context, sourceID string, taskID int64, at time.Time) (bool, error)
	PruneSeen(ctx context.Context, before time.Time) (int64, error)
	SeenSince(ctx context.Context, since time.Time) ([]string, error)
}

// Index is a persisted set of source IDs fronted by an in-memory cache.
// Operations on one source ID are serialized by a striped lock.
type Index struct {
	backend Backend
	logger  *slog.Logger
	now     func() time.Time

	stripes [stripeCount]sync.Mutex

	mu    sync.RWMutex
	known map[string]struct{}
}

// New constructs an index over the backend.
func New(backend Backend, logger *slog.Logger) *Index {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Index{
		backend: backend,
		logger:  logging.NewComponentLogger(logger, "dedup"),
		now:     time.Now,
		known:   make(map[string]struct{}),
	}
}

// Warm loads IDs first seen at or after since into memory.
func (i *Index) Warm(ctx context.Context, since time.Time) error {
	ids, err := i.backend.SeenSince(ctx, since)
	if err != nil {
		return fmt.Errorf("warm dedup index: %w", err)
	}
	i.mu.Lock()
	for _, id := range ids {
		i.known[id] = struct{}{}
	}
	i.mu.Unlock()
	i.logger.Debug("dedup index warmed", logging.Int("entries", len(ids)))
	return nil
}

// Seen reports whether sourceID was already recorded.
func (i *Index) Seen(ctx context.Context, sourceID string) (bool, error) {
	if i.cached(sourceID) {
		return true, nil
	}
	lock := i.stripe(sourceID)
	lock.Lock()
	defer lock.Unlock()

	seen, err := i.backend.HasSeen(ctx, sourceID)
	if err != nil {
		return false, fmt.Errorf("dedup seen %s: %w", sourceID, err)
	}
	if seen {
		i.remember(sourceID)
	}
	return seen, nil
}

// Record inserts sourceID. It returns false when the ID was already present,
// in which case nothing changes.
func (i *Index) Record(ctx context.Context, sourceID string, taskID int64) (bool, error) {
	lock := i.stripe(sourceID)
	lock.Lock()
	defer lock.Unlock()

	if i.cached(sourceID) {
		return false, nil
	}
	inserted, err := i.backend.MarkSeen(ctx, sourceID, taskID, i.now())
	if err != nil {
		return false, fmt.Errorf("dedup record %s: %w", sourceID, err)
	}
	i.remember(sourceID)
	return inserted, nil
}

// Prune drops entries first seen before the cutoff. The in-memory cache is
// cleared and refills lazily from the backend.
func (i *Index) Prune(ctx context.Context, before time.Time) (int64, error) {
	removed, err := i.backend.PruneSeen(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("dedup prune: %w", err)
	}
	i.mu.Lock()
	i.known = make(map[string]struct{})
	i.mu.Unlock()
	if removed > 0 {
		i.logger.Info("dedup entries pruned",
			logging.Int64("removed", removed),
			logging.Time("before", before),
			logging.String(logging.FieldEventType, "dedup_pruned"),
		)
	}
	return removed, nil
}

// Size returns the number of cached IDs.
func (i *Index) Size() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.known)
}

func (i *Index) cached(sourceID string) bool {
	i.mu.RLock()
	defer i.mu.RUnlock()
	_, ok := i.known[sourceID]
	return ok
}

func (i *Index) remember(sourceID string) {
	i.mu.Lock()
	i.known[sourceID] = struct{}{}
	i.mu.Unlock()
}

func (i *Index) stripe(sourceID string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(sourceID))
	return &i.stripes[h.Sum32()%stripeCount]
}
