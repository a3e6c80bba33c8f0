package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"murmur/internal/config"
	"murmur/internal/services/bridge"
	"murmur/internal/templates"
)

// HealthChecker is anything that can probe its own backend.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// CheckHealth runs a single-attempt health probe with a 30-second timeout.
func CheckHealth(ctx context.Context, name string, checker HealthChecker) Result {
	checkCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := checker.HealthCheck(checkCtx); err != nil {
		return Result{Name: name, Detail: summarizeError(err)}
	}
	return Result{Name: name, Passed: true, Detail: "API reachable"}
}

// CheckBridge verifies the platform bridge answers its health endpoint.
func CheckBridge(ctx context.Context, cfg *config.Config) Result {
	const name = "Platform bridge"

	if cfg.Bridge.URL == "" {
		return Result{Name: name, Detail: "missing url"}
	}
	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := bridge.NewFromConfig(cfg).Health(checkCtx); err != nil {
		return Result{Name: name, Detail: summarizeError(err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (reachable)", cfg.Bridge.URL)}
}

// CheckTemplates verifies the template catalog parses.
func CheckTemplates(path string) Result {
	const name = "Reply templates"

	catalog, err := templates.Load(path, nil)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", path, err)}
	}
	if catalog.Len() == 0 {
		return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (no templates; AI and fallback only)", path)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (%d templates)", path, catalog.Len())}
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

func summarizeError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "health check timed out (service unresponsive)"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "health check timed out (service unreachable)"
	}
	return err.Error()
}
