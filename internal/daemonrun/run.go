// Package daemonrun assembles and runs the murmurd process.
package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"murmur/internal/config"
	"murmur/internal/daemon"
	"murmur/internal/ipc"
	"murmur/internal/logging"
	"murmur/internal/notifications"
	"murmur/internal/pipeline"
	"murmur/internal/preflight"
	"murmur/internal/services/bridge"
	"murmur/internal/services/composer"
	"murmur/internal/store"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel string
}

// Run starts murmurd and blocks until SIGINT/SIGTERM or cmdCtx is done.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}
	if level := strings.TrimSpace(opts.LogLevel); level != "" {
		cfg.Logging.Level = level
	}
	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	logPath := filepath.Join(cfg.Paths.LogDir, logging.LogFileName)

	logging.CleanupOldLogs(logger, time.Now(), cfg.Logging.RetentionDays,
		logging.RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: "murmurd*.log", Exclude: []string{logPath}},
	)
	pidPath := cfg.PIDPath()
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	logPreflight(signalCtx, logger, cfg)

	st, err := store.Open(cfg)
	if err != nil {
		logger.Error("open store", logging.Error(err))
		return err
	}

	ai, err := composer.FromConfig(signalCtx, cfg)
	if err != nil {
		_ = st.Close()
		return fmt.Errorf("build composer: %w", err)
	}
	platformClient := bridge.NewFromConfig(cfg)
	notifier := notifications.NewService(cfg)

	deps := pipeline.Deps{
		Store:    st,
		Sessions: platformClient,
		Fetcher:  platformClient,
		Sender:   platformClient,
		Notifier: notifier,
		Logger:   logger,
	}
	if ai != nil {
		deps.Composer = ai
	}
	coord, err := pipeline.New(cfg, deps)
	if err != nil {
		_ = st.Close()
		return fmt.Errorf("build pipeline: %w", err)
	}

	d, err := daemon.New(cfg, st, coord, logger, logPath)
	if err != nil {
		_ = st.Close()
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	ipcServer, err := ipc.NewServer(signalCtx, cfg.Paths.SocketPath, d, logger)
	if err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	if err := d.Start(signalCtx); err != nil {
		logging.WarnWithContext(logger, "daemon start failed", "daemon_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check configuration and database access, then run murmur start"),
			logging.String(logging.FieldImpact, "no tasks are polled until the daemon is started"),
		)
		_ = notifier.NotifyError(signalCtx, err, "daemon start")
	}

	<-signalCtx.Done()
	logger.Info("murmur daemon shutting down")
	return nil
}

func logPreflight(ctx context.Context, logger *slog.Logger, cfg *config.Config) {
	for _, result := range preflight.RunAll(ctx, cfg) {
		if result.Passed {
			logger.Info("preflight check passed",
				logging.String(logging.FieldEventType, "preflight"),
				logging.String("check", result.Name),
				logging.String("detail", result.Detail),
			)
			continue
		}
		logging.WarnWithContext(logger, "preflight check failed", "preflight_failed",
			logging.String("check", result.Name),
			logging.String("detail", result.Detail),
		)
	}
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}
