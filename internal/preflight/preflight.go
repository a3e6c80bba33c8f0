package preflight

import (
	"context"

	"murmur/internal/config"
	"murmur/internal/services/composer"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes all applicable preflight checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
		CheckTemplates(cfg.Paths.TemplatesFile),
		CheckBridge(ctx, cfg),
	}

	if cfg.AI.Enabled {
		results = append(results, CheckComposer(ctx, cfg))
	}
	return results
}

// CheckComposer builds the configured AI backend and runs its health check.
func CheckComposer(ctx context.Context, cfg *config.Config) Result {
	name := "AI composer (" + cfg.AI.Provider + ")"
	c, err := composer.FromConfig(ctx, cfg)
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	if c == nil {
		return Result{Name: name, Passed: true, Detail: "Disabled"}
	}
	return CheckHealth(ctx, name, c)
}
