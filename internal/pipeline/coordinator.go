package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"murmur/internal/classifier"
	"murmur/internal/config"
	"murmur/internal/dedup"
	"murmur/internal/dispatch"
	"murmur/internal/logging"
	"murmur/internal/notifications"
	"murmur/internal/platform"
	"murmur/internal/ratelimit"
	"murmur/internal/scheduler"
	"murmur/internal/session"
	"murmur/internal/store"
	"murmur/internal/templates"
)

// Deps carries the external collaborators. Composer may be nil when AI
// composition is disabled; Notifier defaults to the configured ntfy service.
type Deps struct {
	Store    *store.Store
	Sessions platform.SessionProvider
	Fetcher  platform.Fetcher
	Sender   platform.Sender
	Composer platform.Composer
	Notifier notifications.Service
	Logger   *slog.Logger
}

// Coordinator owns the pipeline components and their background loops.
type Coordinator struct {
	cfg      *config.Config
	store    *store.Store
	logger   *slog.Logger
	notifier notifications.Service

	catalog    *templates.Catalog
	classifier *classifier.Classifier
	dedup      *dedup.Index
	guard      *session.Guard
	replies    *ratelimit.Limiter
	polls      *ratelimit.Limiter
	dispatcher *dispatch.Dispatcher
	scheduler  *scheduler.Scheduler

	mu        sync.Mutex
	running   bool
	startedAt time.Time
	cancel    context.CancelFunc
	cron      *cron.Cron
	wg        sync.WaitGroup

	houseMu       sync.Mutex
	lastHousekeep *HousekeepingResult
}

// New builds every pipeline component from cfg.
func New(cfg *config.Config, deps Deps) (*Coordinator, error) {
	if cfg == nil || deps.Store == nil {
		return nil, errors.New("pipeline requires config and store")
	}
	if deps.Sessions == nil || deps.Fetcher == nil || deps.Sender == nil {
		return nil, errors.New("pipeline requires session provider, fetcher and sender")
	}
	logger := deps.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	notifier := deps.Notifier
	if notifier == nil {
		notifier = notifications.NewService(cfg)
	}

	catalog, err := templates.Load(cfg.Paths.TemplatesFile, logger)
	if err != nil {
		return nil, fmt.Errorf("load templates: %w", err)
	}
	cls, err := classifier.New(cfg.Classifier, catalog)
	if err != nil {
		return nil, fmt.Errorf("build classifier: %w", err)
	}

	c := &Coordinator{
		cfg:        cfg,
		store:      deps.Store,
		logger:     logging.NewComponentLogger(logger, "pipeline"),
		notifier:   notifier,
		catalog:    catalog,
		classifier: cls,
		dedup:      dedup.New(deps.Store, logger),
		guard:      session.NewGuard(deps.Sessions, logger),
		replies:    ratelimit.New(ratelimit.KindReply, deps.Store, cfg.AccountCap, ratelimit.WithLogger(logger)),
	}
	if cfg.Monitor.PollsPerHour > 0 {
		perHour := cfg.Monitor.PollsPerHour
		c.polls = ratelimit.New(ratelimit.KindPoll, deps.Store, func(string) int { return perHour }, ratelimit.WithLogger(logger))
	}

	c.dispatcher = dispatch.New(cfg, dispatch.Deps{
		Store:     deps.Store,
		Guard:     c.guard,
		Sender:    deps.Sender,
		Composer:  deps.Composer,
		Templates: catalog,
		Limiter:   c.replies,
		Notifier:  notifier,
		Logger:    logger,
	})
	c.scheduler = scheduler.New(cfg, scheduler.Deps{
		Store:       deps.Store,
		Guard:       c.guard,
		Fetcher:     deps.Fetcher,
		Dedup:       c.dedup,
		Classifier:  cls,
		Submitter:   c.dispatcher,
		PollLimiter: c.polls,
		Notifier:    notifier,
		Logger:      logger,
	})
	return c, nil
}

// Start resumes running tasks and launches the background loops.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return errors.New("pipeline already running")
	}

	if days := c.cfg.Dedup.RetentionDays; days > 0 {
		if err := c.dedup.Warm(ctx, time.Now().AddDate(0, 0, -days)); err != nil {
			c.logger.Warn("dedup warm-up failed; continuing with a cold cache", logging.Error(err))
		}
	}
	resumed, err := c.scheduler.Resume(ctx)
	if err != nil {
		return fmt.Errorf("resume tasks: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	cronLog := cronLogger{logger: logging.NewComponentLogger(c.logger, "cron")}
	sched := cron.New(
		cron.WithLogger(cronLog),
		cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
	)
	drainSpec := fmt.Sprintf("@every %s", c.cfg.DrainInterval())
	if _, err := sched.AddFunc(drainSpec, func() { c.runDrain(runCtx) }); err != nil {
		cancel()
		return fmt.Errorf("schedule drain: %w", err)
	}
	if _, err := sched.AddFunc("@hourly", func() { c.Housekeep(runCtx) }); err != nil {
		cancel()
		return fmt.Errorf("schedule housekeeping: %w", err)
	}

	c.wg.Add(2)
	go func() {
		defer c.wg.Done()
		c.scheduler.Run(runCtx)
	}()
	go func() {
		defer c.wg.Done()
		if err := c.catalog.Watch(runCtx); err != nil {
			logging.WarnWithContext(c.logger, "template watcher unavailable; edits need a restart", "templates_watch_failed",
				logging.Error(err),
				logging.String("path", c.catalog.Path()),
			)
		}
	}()
	sched.Start()

	c.cron = sched
	c.cancel = cancel
	c.running = true
	c.startedAt = time.Now()
	c.logger.Info("pipeline started",
		logging.String(logging.FieldEventType, "pipeline_start"),
		logging.Int("resumed_tasks", resumed),
		logging.Int("templates", c.catalog.Len()),
		logging.Duration("drain_interval", c.cfg.DrainInterval()),
	)
	return nil
}

// Stop halts cron, waits for an in-flight drain, then stops the scheduler
// loop and waits for in-flight cycles.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	sched, cancel := c.cron, c.cancel
	c.running = false
	c.cron = nil
	c.cancel = nil
	c.mu.Unlock()

	<-sched.Stop().Done()
	cancel()
	c.wg.Wait()
	c.logger.Info("pipeline stopped", logging.String(logging.FieldEventType, "pipeline_stop"))
}

// Running reports whether the background loops are active.
func (c *Coordinator) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

func (c *Coordinator) runDrain(ctx context.Context) {
	if _, err := c.dispatcher.Drain(ctx); err != nil && ctx.Err() == nil {
		logging.WarnWithContext(c.logger, "drain pass failed", "drain_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check database access"),
		)
	}
}

// HousekeepingResult reports one housekeeping pass.
type HousekeepingResult struct {
	RanAt       time.Time
	SeenPruned  int64
	LogsRemoved int
}

// Housekeep prunes expired dedup entries and old log files.
func (c *Coordinator) Housekeep(ctx context.Context) HousekeepingResult {
	now := time.Now()
	result := HousekeepingResult{RanAt: now}
	if days := c.cfg.Dedup.RetentionDays; days > 0 {
		pruned, err := c.dedup.Prune(ctx, now.AddDate(0, 0, -days))
		if err != nil {
			logging.WarnWithContext(c.logger, "dedup prune failed", "dedup_prune_failed", logging.Error(err))
		}
		result.SeenPruned = pruned
	}
	result.LogsRemoved = logging.CleanupOldLogs(c.logger, now, c.cfg.Logging.RetentionDays, logging.RetentionTarget{
		Dir:     c.cfg.Paths.LogDir,
		Pattern: "murmurd*.log",
		Exclude: []string{filepath.Join(c.cfg.Paths.LogDir, logging.LogFileName)},
	})
	c.houseMu.Lock()
	c.lastHousekeep = &result
	c.houseMu.Unlock()
	if result.SeenPruned > 0 || result.LogsRemoved > 0 {
		c.logger.Info("housekeeping complete",
			logging.String(logging.FieldEventType, "housekeeping"),
			logging.Int64("seen_pruned", result.SeenPruned),
			logging.Int("logs_removed", result.LogsRemoved),
		)
	}
	return result
}
