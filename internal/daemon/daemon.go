package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"

	"github.com/gofrs/flock"

	"murmur/internal/config"
	"murmur/internal/logging"
	"murmur/internal/notifications"
	"murmur/internal/pipeline"
	"murmur/internal/store"
)

// Daemon owns the pipeline lifecycle and enforces single-instance execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *store.Store
	pipeline *pipeline.Coordinator
	notifier notifications.Service
	logPath  string

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	Pipeline     pipeline.Status
	DatabasePath string
	LockFilePath string
	LogPath      string
}

// New constructs a daemon around an already-built pipeline.
func New(cfg *config.Config, st *store.Store, coord *pipeline.Coordinator, logger *slog.Logger, logPath string) (*Daemon, error) {
	if cfg == nil || st == nil || coord == nil {
		return nil, errors.New("daemon requires config, store, and pipeline")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	lockPath := cfg.LockPath()
	return &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    st,
		pipeline: coord,
		notifier: notifications.NewService(cfg),
		logPath:  logPath,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}, nil
}

// Start acquires the daemon lock and launches the pipeline.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another murmurd instance is already running")
	}

	if err := d.pipeline.Start(ctx); err != nil {
		_ = d.lock.Unlock()
		return fmt.Errorf("start pipeline: %w", err)
	}

	d.running.Store(true)
	d.logger.Info("murmur daemon started",
		logging.String(logging.FieldEventType, "daemon_start"),
		logging.String("lock", d.lockPath),
	)
	return nil
}

// Stop halts the pipeline and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	d.pipeline.Stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("murmur daemon stopped", logging.String(logging.FieldEventType, "daemon_stop"))
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Running reports whether the pipeline is active.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

// Pipeline exposes the coordinator for operator commands.
func (d *Daemon) Pipeline() *pipeline.Coordinator {
	return d.pipeline
}

// LogPath returns the path to the daemon log file.
func (d *Daemon) LogPath() string {
	return d.logPath
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) (Status, error) {
	snapshot, err := d.pipeline.Status(ctx)
	if err != nil {
		return Status{}, err
	}
	return Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		Pipeline:     snapshot,
		DatabasePath: d.cfg.DatabasePath(),
		LockFilePath: d.lockPath,
		LogPath:      d.logPath,
	}, nil
}

// TestNotification sends a test alert using the current configuration.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if strings.TrimSpace(d.cfg.Notifications.NtfyTopic) == "" {
		return false, "ntfy topic not configured", nil
	}
	if err := d.notifier.TestNotification(ctx); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}
