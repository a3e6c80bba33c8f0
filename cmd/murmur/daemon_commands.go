package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"murmur/internal/daemonctl"
	"murmur/internal/ipc"
)

const (
	startWaitTimeout = 10 * time.Second
	stopGracePeriod  = 5 * time.Second
)

func newDaemonCommands(ctx *commandContext) []*cobra.Command {
	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start murmurd and the monitoring pipeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			// A reachable daemon needs no executable; resolution errors only
			// matter once a launch is attempted.
			exe, resolveErr := daemonExecutable()
			result, err := daemonctl.EnsureStarted(ctx.socketPath(), exe, daemonLaunchOptions(ctx), startWaitTimeout)
			if err != nil {
				if resolveErr != nil {
					return resolveErr
				}
				return err
			}
			if result.Launched {
				fmt.Fprintln(stdout, "Daemon not running, launching...")
			}
			printStartResult(stdout, result)
			return nil
		},
	}

	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the pipeline and terminate murmurd",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			result, err := daemonctl.StopAndTerminate(ctx.socketPath(), ctx.configValue(), stopGracePeriod)
			if errors.Is(err, daemonctl.ErrDaemonNotRunning) {
				fmt.Fprintln(stdout, "Daemon is not running")
				return nil
			}
			if err != nil {
				return err
			}
			printStopResult(stdout, result)
			return nil
		},
	}

	restartCmd := &cobra.Command{
		Use:   "restart",
		Short: "Restart murmurd",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			exe, err := daemonExecutable()
			if err != nil {
				return err
			}
			result, err := daemonctl.Restart(ctx.socketPath(), ctx.configValue(), exe, daemonLaunchOptions(ctx), stopGracePeriod, startWaitTimeout)
			if err != nil {
				return err
			}
			if result.WasRunning {
				printStopResult(stdout, result.Stop)
			} else {
				fmt.Fprintln(stdout, "Daemon was not running")
			}
			printStartResult(stdout, result.Start)
			return nil
		},
	}

	var statusJSON bool
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon, task and reply status",
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := daemonctl.BuildStatusSnapshot(cmd.Context(), ctx.socketPath(), ctx.configValue())
			if err != nil {
				return err
			}
			if statusJSON {
				return writeJSON(cmd, snap)
			}
			renderStatus(cmd.OutOrStdout(), snap, shouldColorize(cmd.OutOrStdout()))
			return nil
		},
	}
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Output as JSON")

	drainCmd := &cobra.Command{
		Use:   "drain",
		Short: "Run one dispatcher pass immediately",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Drain()
				if err != nil {
					return err
				}
				s := resp.Summary
				fmt.Fprintf(cmd.OutOrStdout(), "Drain %s: due=%d sent=%d deferred=%d retrying=%d failed=%d fallbacks=%d (%dms)\n",
					s.CorrelationID, s.Due, s.Sent, s.Deferred, s.Retrying, s.Failed, s.Fallbacks, s.DurationMS)
				return nil
			})
		},
	}

	return []*cobra.Command{startCmd, stopCmd, restartCmd, statusCmd, drainCmd}
}

func daemonExecutable() (string, error) {
	self, err := os.Executable()
	if err != nil {
		self = ""
	}
	return daemonctl.ResolveExecutable(self)
}

func daemonLaunchOptions(ctx *commandContext) daemonctl.LaunchOptions {
	return daemonctl.LaunchOptions{
		SocketPath: ctx.socketPath(),
		ConfigPath: ctx.configPath(),
	}
}

func printStartResult(out io.Writer, result daemonctl.StartResult) {
	switch result.State {
	case daemonctl.StartStateStarted:
		fmt.Fprintln(out, "Daemon started")
	case daemonctl.StartStateAlreadyRunning:
		fmt.Fprintln(out, "Daemon already running")
	default:
		if msg := strings.TrimSpace(result.Message); msg != "" {
			fmt.Fprintln(out, msg)
			return
		}
		fmt.Fprintln(out, "Start request sent")
	}
}

func printStopResult(out io.Writer, result daemonctl.StopResult) {
	if result.StopAcknowledged {
		fmt.Fprintln(out, "Pipeline stopped")
	} else {
		fmt.Fprintln(out, "Stop request sent")
	}
	if result.Terminated && result.PID > 0 {
		fmt.Fprintf(out, "Terminated daemon process (pid %d)\n", result.PID)
	}
	fmt.Fprintln(out, "Daemon stopped")
}

func renderStatus(out io.Writer, snap daemonctl.Snapshot, colorize bool) {
	status := snap.Status
	if status == nil {
		status = &ipc.StatusResponse{}
	}

	fmt.Fprintln(out, renderSectionHeader("Daemon", colorize))
	switch {
	case !snap.Reachable:
		fmt.Fprintln(out, renderStatusLine("murmurd", statusWarn, "not running", colorize))
	case status.Running:
		detail := fmt.Sprintf("pid %d", status.PID)
		if !status.StartedAt.IsZero() {
			detail += ", up " + time.Since(status.StartedAt).Truncate(time.Second).String()
		}
		fmt.Fprintln(out, renderStatusLine("murmurd", statusOK, detail, colorize))
	default:
		fmt.Fprintln(out, renderStatusLine("murmurd", statusWarn, fmt.Sprintf("pid %d, pipeline stopped", status.PID), colorize))
	}
	fmt.Fprintln(out, renderStatusLine("Database", statusInfo, status.DatabasePath, colorize))
	if status.LogPath != "" {
		fmt.Fprintln(out, renderStatusLine("Log", statusInfo, status.LogPath, colorize))
	}
	fmt.Fprintln(out)

	fmt.Fprintln(out, renderSectionHeader("Checks", colorize))
	for _, check := range snap.Checks {
		kind := statusOK
		if !check.Passed {
			kind = statusError
		}
		fmt.Fprintln(out, renderStatusLine(check.Name, kind, check.Detail, colorize))
	}
	fmt.Fprintln(out)

	fmt.Fprintln(out, renderSectionHeader("Tasks", colorize))
	fmt.Fprintln(out, renderCounts(status.TaskStats, "created", "running", "stopped", "failed"))
	if snap.Reachable {
		fmt.Fprintf(out, "  runnable=%d in_flight=%d seen_cached=%d templates=%d\n",
			status.RunnableTasks, status.InFlightCycles, status.SeenCached, status.Templates)
	}
	fmt.Fprintln(out)

	fmt.Fprintln(out, renderSectionHeader("Replies", colorize))
	fmt.Fprintln(out, renderCounts(status.ReplyStats, "pending", "sent", "failed", "skipped"))
	if d := status.LastDrain; d != nil {
		fmt.Fprintf(out, "  last drain %s: sent=%d deferred=%d retrying=%d failed=%d\n",
			d.StartedAt.Local().Format(time.DateTime), d.Sent, d.Deferred, d.Retrying, d.Failed)
	}

	if len(status.ReplyWindows) > 0 {
		fmt.Fprintln(out)
		fmt.Fprintln(out, renderSectionHeader("Rate Limits", colorize))
		rows := make([][]string, 0, len(status.ReplyWindows))
		for _, w := range status.ReplyWindows {
			rows = append(rows, []string{
				w.AccountID,
				fmt.Sprintf("%d/%d", w.SentLastHour, w.Cap),
				fmt.Sprintf("%.1f", w.Tokens),
				fmt.Sprintf("%d", w.Reserved),
			})
		}
		fmt.Fprintln(out, renderTable([]column{
			{Header: "Account"},
			{Header: "Sent/Cap", Right: true},
			{Header: "Tokens", Right: true},
			{Header: "Reserved", Right: true},
		}, rows))
	}
}

// renderCounts lists the known statuses in order, then any others.
func renderCounts(counts map[string]int, order ...string) string {
	parts := make([]string, 0, len(counts)+len(order))
	known := make(map[string]struct{}, len(order))
	for _, key := range order {
		known[key] = struct{}{}
		parts = append(parts, fmt.Sprintf("%s=%d", key, counts[key]))
	}
	var extra []string
	for key := range counts {
		if _, ok := known[key]; !ok {
			extra = append(extra, key)
		}
	}
	sort.Strings(extra)
	for _, key := range extra {
		parts = append(parts, fmt.Sprintf("%s=%d", key, counts[key]))
	}
	return "  " + strings.Join(parts, " ")
}
