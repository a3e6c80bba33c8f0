package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"murmur/internal/backoff"
	"murmur/internal/classifier"
	"murmur/internal/config"
	"murmur/internal/dedup"
	"murmur/internal/logging"
	"murmur/internal/notifications"
	"murmur/internal/platform"
	"murmur/internal/ratelimit"
	"murmur/internal/services"
	"murmur/internal/session"
	"murmur/internal/store"
)

// Submitter accepts classified items for reply.
type Submitter interface {
	Submit(ctx context.Context, item classifier.Item) (*store.ReplyRecord, error)
}

// TaskConfig is an operator request for a new monitor task. Zero values take
// the monitor defaults: PollInterval uses monitor.default_poll_interval,
// MinLength and MaxLength use the configured content bounds and a nil
// FilterSpam uses monitor.filter_spam.
type TaskConfig struct {
	Name            string
	AccountID       string
	Keywords        []string
	ExcludeKeywords []string
	PollInterval    time.Duration
	MinLength       int
	MaxLength       int
	FilterSpam      *bool
}

// Deps bundles the collaborators a Scheduler drives.
type Deps struct {
	Store       *store.Store
	Guard       *session.Guard
	Fetcher     platform.Fetcher
	Dedup       *dedup.Index
	Classifier  *classifier.Classifier
	Submitter   Submitter
	PollLimiter *ratelimit.Limiter
	Notifier    notifications.Service
	Logger      *slog.Logger
}

// Scheduler owns the runnable ring of monitor tasks.
type Scheduler struct {
	cfg        config.Monitor
	store      *store.Store
	guard      *session.Guard
	fetcher    platform.Fetcher
	dedup      *dedup.Index
	classifier *classifier.Classifier
	submitter  Submitter
	polls      *ratelimit.Limiter
	notifier   notifications.Service
	logger     *slog.Logger
	retry      backoff.Policy
	sem        *semaphore.Weighted
	now        func() time.Time

	mu      sync.Mutex
	entries map[int64]*entry
	ring    []int64
	cursor  int
	wake    chan struct{}
	cycles  sync.WaitGroup
}

type entry struct {
	id       int64
	dueAt    time.Time
	inFlight bool
	stopping bool
	done     chan struct{}
}

// New constructs a scheduler. The loop does not run until Run is called.
func New(cfg *config.Config, deps Deps) *Scheduler {
	logger := deps.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	notifier := deps.Notifier
	if notifier == nil {
		notifier = notifications.NewService(nil)
	}
	workers := cfg.Monitor.Workers
	if workers <= 0 {
		workers = 1
	}
	return &Scheduler{
		cfg:        cfg.Monitor,
		store:      deps.Store,
		guard:      deps.Guard,
		fetcher:    deps.Fetcher,
		dedup:      deps.Dedup,
		classifier: deps.Classifier,
		submitter:  deps.Submitter,
		polls:      deps.PollLimiter,
		notifier:   notifier,
		logger:     logging.NewComponentLogger(logger, "scheduler"),
		retry: backoff.Policy{
			Base:   time.Duration(cfg.Monitor.RetryBaseSeconds) * time.Second,
			Max:    time.Duration(cfg.Monitor.RetryMaxSeconds) * time.Second,
			Jitter: 0.1,
		},
		sem:     semaphore.NewWeighted(int64(workers)),
		now:     time.Now,
		entries: make(map[int64]*entry),
		wake:    make(chan struct{}, 1),
	}
}

// CreateTask validates and persists a new task in the created state.
func (s *Scheduler) CreateTask(ctx context.Context, req TaskConfig) (*store.Task, error) {
	spec, err := s.normalizeTask(req)
	if err != nil {
		return nil, err
	}
	task, err := s.store.CreateTask(ctx, spec)
	if err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	s.logger.Info("task created",
		logging.Int64(logging.FieldTaskID, task.ID),
		logging.String(logging.FieldAccountID, task.AccountID),
		logging.String(logging.FieldEventType, "task_created"),
		logging.Int("keywords", len(task.Keywords)),
		logging.Duration("poll_interval", task.PollInterval),
	)
	return task, nil
}

func (s *Scheduler) normalizeTask(req TaskConfig) (store.TaskSpec, error) {
	invalid := func(msg string) error {
		return services.Wrap(services.ErrInvalidConfig, "scheduler", "create task", msg, nil)
	}

	account := strings.TrimSpace(req.AccountID)
	if account == "" {
		return store.TaskSpec{}, invalid("account id is required")
	}
	keywords := cleanKeywords(req.Keywords)
	if len(keywords) == 0 {
		return store.TaskSpec{}, invalid("at least one keyword is required")
	}

	interval := req.PollInterval
	if interval == 0 {
		interval = time.Duration(s.cfg.DefaultPollInterval) * time.Second
	}
	floor := time.Duration(s.cfg.MinPollInterval) * time.Second
	ceiling := time.Duration(s.cfg.MaxPollInterval) * time.Second
	if interval < floor {
		return store.TaskSpec{}, invalid(fmt.Sprintf("poll interval %s is below the %s floor", interval, floor))
	}
	if ceiling > 0 && interval > ceiling {
		return store.TaskSpec{}, invalid(fmt.Sprintf("poll interval %s exceeds the %s ceiling", interval, ceiling))
	}

	minLen, maxLen := req.MinLength, req.MaxLength
	if minLen < 0 || maxLen < 0 {
		return store.TaskSpec{}, invalid("content length bounds must be >= 0")
	}
	if minLen == 0 {
		minLen = s.cfg.MinContentLength
	}
	if maxLen == 0 {
		maxLen = s.cfg.MaxContentLength
	}
	if maxLen > 0 && maxLen < minLen {
		return store.TaskSpec{}, invalid("max length must be >= min length")
	}

	filterSpam := s.cfg.FilterSpam
	if req.FilterSpam != nil {
		filterSpam = *req.FilterSpam
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = fmt.Sprintf("%s: %s", account, strings.Join(keywords, ", "))
	}

	return store.TaskSpec{
		Name:            name,
		AccountID:       account,
		Keywords:        keywords,
		ExcludeKeywords: cleanKeywords(req.ExcludeKeywords),
		PollInterval:    interval.Truncate(time.Second),
		MinLength:       minLen,
		MaxLength:       maxLen,
		FilterSpam:      filterSpam,
	}, nil
}

// cleanKeywords trims, drops empties and removes duplicates, keeping order.
func cleanKeywords(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// Start moves a created, stopped or failed task to running and schedules its
// first cycle immediately.
func (s *Scheduler) Start(ctx context.Context, id int64) error {
	task, err := s.requireTask(ctx, id, "start")
	if err != nil {
		return err
	}
	if task.Status == store.TaskRunning {
		return services.Wrap(services.ErrInvalidState, "scheduler", "start", fmt.Sprintf("task %d is already running", id), nil)
	}
	if err := s.store.SetTaskStatus(ctx, id, store.TaskRunning, ""); err != nil {
		return err
	}
	s.enqueue(id, s.now())
	s.logger.Info("task started",
		logging.Int64(logging.FieldTaskID, id),
		logging.String(logging.FieldAccountID, task.AccountID),
		logging.String(logging.FieldEventType, "task_started"),
		logging.String("previous_status", string(task.Status)),
	)
	return nil
}

// Stop halts a running task. When a cycle is in flight Stop waits for it to
// finish, watermark write included, before persisting the stopped status.
func (s *Scheduler) Stop(ctx context.Context, id int64) error {
	task, err := s.requireTask(ctx, id, "stop")
	if err != nil {
		return err
	}
	if task.Status != store.TaskRunning {
		return services.Wrap(services.ErrInvalidState, "scheduler", "stop", fmt.Sprintf("task %d is %s", id, task.Status), nil)
	}

	if done := s.detach(id); done != nil {
		s.logger.Debug("waiting for in-flight cycle", logging.Int64(logging.FieldTaskID, id))
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err := s.markStopped(ctx, id); err != nil {
		return err
	}
	s.logger.Info("task stopped",
		logging.Int64(logging.FieldTaskID, id),
		logging.String(logging.FieldAccountID, task.AccountID),
		logging.String(logging.FieldEventType, "task_stopped"),
	)
	return nil
}

// Delete stops the task if needed and removes it. Reply records survive.
func (s *Scheduler) Delete(ctx context.Context, id int64) error {
	task, err := s.requireTask(ctx, id, "delete")
	if err != nil {
		return err
	}
	if task.Status == store.TaskRunning {
		if err := s.Stop(ctx, id); err != nil {
			return err
		}
	}
	s.remove(id)
	if err := s.store.DeleteTask(ctx, id); err != nil {
		return err
	}
	s.logger.Info("task deleted",
		logging.Int64(logging.FieldTaskID, id),
		logging.String(logging.FieldEventType, "task_deleted"),
	)
	return nil
}

// Resume puts every persisted running task back on the ring. It is called
// once at startup and returns the number of tasks resumed.
func (s *Scheduler) Resume(ctx context.Context) (int, error) {
	tasks, err := s.store.ListTasks(ctx, store.TaskRunning)
	if err != nil {
		return 0, fmt.Errorf("resume tasks: %w", err)
	}
	now := s.now()
	for _, task := range tasks {
		s.enqueue(task.ID, now)
	}
	if len(tasks) > 0 {
		s.logger.Info("resumed running tasks",
			logging.Int("count", len(tasks)),
			logging.String(logging.FieldEventType, "tasks_resumed"),
		)
	}
	return len(tasks), nil
}

// Get returns a task or ErrNotFound.
func (s *Scheduler) Get(ctx context.Context, id int64) (*store.Task, error) {
	return s.requireTask(ctx, id, "get")
}

// List returns tasks, optionally filtered by status.
func (s *Scheduler) List(ctx context.Context, statuses ...store.TaskStatus) ([]*store.Task, error) {
	return s.store.ListTasks(ctx, statuses...)
}

// Stats reports the runnable ring size and cycles currently in flight.
func (s *Scheduler) Stats() (runnable, inFlight int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		if e.inFlight {
			inFlight++
		}
	}
	return len(s.entries), inFlight
}

func (s *Scheduler) requireTask(ctx context.Context, id int64, op string) (*store.Task, error) {
	task, err := s.store.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, services.Wrap(services.ErrNotFound, "scheduler", op, fmt.Sprintf("task %d", id), nil)
	}
	return task, nil
}

// markStopped persists stopped unless the task already left running, for
// example because its final cycle failed it.
func (s *Scheduler) markStopped(ctx context.Context, id int64) error {
	task, err := s.store.GetTask(ctx, id)
	if err != nil || task == nil || task.Status != store.TaskRunning {
		return err
	}
	return s.store.SetTaskStatus(ctx, id, store.TaskStopped, "")
}
