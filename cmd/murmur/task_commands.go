package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"murmur/internal/ipc"
)

func newTaskCommand(ctx *commandContext) *cobra.Command {
	taskCmd := &cobra.Command{
		Use:   "task",
		Short: "Manage monitor tasks",
	}
	taskCmd.AddCommand(newTaskCreateCommand(ctx))
	taskCmd.AddCommand(newTaskActionCommand(ctx, "start", "Start polling a task", (*ipc.Client).TaskStart))
	taskCmd.AddCommand(newTaskActionCommand(ctx, "stop", "Stop polling a task", (*ipc.Client).TaskStop))
	taskCmd.AddCommand(newTaskActionCommand(ctx, "delete", "Delete a task", (*ipc.Client).TaskDelete))
	taskCmd.AddCommand(newTaskListCommand(ctx))
	return taskCmd
}

func newTaskCreateCommand(ctx *commandContext) *cobra.Command {
	var (
		req          ipc.TaskCreateRequest
		interval     time.Duration
		noSpamFilter bool
		asJSON       bool
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register a keyword monitor for an account",
		RunE: func(cmd *cobra.Command, args []string) error {
			req.AccountID = strings.TrimSpace(req.AccountID)
			if req.AccountID == "" {
				return &exitError{code: exitUsage, err: fmt.Errorf("--account is required")}
			}
			if len(req.Keywords) == 0 {
				return &exitError{code: exitUsage, err: fmt.Errorf("at least one --keyword is required")}
			}
			if interval > 0 {
				req.PollIntervalSeconds = int(interval / time.Second)
				if req.PollIntervalSeconds == 0 {
					req.PollIntervalSeconds = 1
				}
			}
			if noSpamFilter {
				off := false
				req.FilterSpam = &off
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.TaskCreate(req)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, resp.Task)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created task %d for %s (%s)\n", resp.Task.ID, resp.Task.AccountID, resp.Task.Status)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&req.Name, "name", "", "Display name for the task")
	cmd.Flags().StringVar(&req.AccountID, "account", "", "Account to monitor")
	cmd.Flags().StringArrayVarP(&req.Keywords, "keyword", "k", nil, "Keyword to match (repeatable)")
	cmd.Flags().StringArrayVar(&req.ExcludeKeywords, "exclude", nil, "Keyword that suppresses a match (repeatable)")
	cmd.Flags().DurationVar(&interval, "interval", 0, "Poll interval (defaults to monitor.default_poll_interval)")
	cmd.Flags().IntVar(&req.MinLength, "min-length", 0, "Minimum content length in characters")
	cmd.Flags().IntVar(&req.MaxLength, "max-length", 0, "Maximum content length in characters")
	cmd.Flags().BoolVar(&noSpamFilter, "no-spam-filter", false, "Keep spam-classified items instead of dropping them")
	cmd.Flags().BoolVar(&req.Start, "start", false, "Start polling immediately")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newTaskActionCommand(ctx *commandContext, use, short string, action func(*ipc.Client, int64) (*ipc.TaskActionResponse, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseTaskID(args[0])
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := action(client, id)
				if err != nil {
					return err
				}
				if msg := strings.TrimSpace(resp.Message); msg != "" {
					fmt.Fprintln(cmd.OutOrStdout(), msg)
				}
				return nil
			})
		},
	}
}

func newTaskListCommand(ctx *commandContext) *cobra.Command {
	var statuses []string
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.TaskList(statuses)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, resp.Tasks)
				}
				if len(resp.Tasks) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No tasks")
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTaskTable(resp.Tasks))
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVarP(&statuses, "status", "s", nil, "Filter by status (created, running, stopped, failed)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func renderTaskTable(tasks []ipc.Task) string {
	rows := make([][]string, 0, len(tasks))
	for _, task := range tasks {
		lastPoll := "-"
		if task.LastPollAt != nil {
			lastPoll = task.LastPollAt.Local().Format(time.DateTime)
		}
		rows = append(rows, []string{
			strconv.FormatInt(task.ID, 10),
			task.AccountID,
			task.Status,
			strings.Join(task.Keywords, ","),
			(time.Duration(task.PollIntervalSeconds) * time.Second).String(),
			lastPoll,
			strconv.FormatInt(task.ItemsSeen, 10),
			strconv.FormatInt(task.RepliesQueued, 10),
			task.LastError,
		})
	}
	return renderTable([]column{
		{Header: "ID", Right: true},
		{Header: "Account"},
		{Header: "Status"},
		{Header: "Keywords", MaxWidth: 32},
		{Header: "Interval", Right: true},
		{Header: "Last Poll"},
		{Header: "Seen", Right: true},
		{Header: "Queued", Right: true},
		{Header: "Error", MaxWidth: 40},
	}, rows)
}

func parseTaskID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, &exitError{code: exitUsage, err: fmt.Errorf("invalid task id %q", raw)}
	}
	return id, nil
}
