package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"murmur/internal/ipc"
)

func newReplyCommand(ctx *commandContext) *cobra.Command {
	replyCmd := &cobra.Command{
		Use:   "reply",
		Short: "Inspect and retry queued replies",
	}
	replyCmd.AddCommand(newReplyListCommand(ctx))
	replyCmd.AddCommand(newReplyRetryCommand(ctx))
	replyCmd.AddCommand(newReplyHistoryCommand(ctx))
	return replyCmd
}

func newReplyListCommand(ctx *commandContext) *cobra.Command {
	var statuses []string
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List reply records",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.ReplyList(statuses)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, resp.Replies)
				}
				if len(resp.Replies) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No replies")
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderReplyTable(resp.Replies))
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVarP(&statuses, "status", "s", nil, "Filter by status (pending, sent, failed, skipped)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newReplyRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <id>",
		Short: "Requeue a failed reply",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := strings.TrimSpace(args[0])
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.ReplyRetry(id)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Reply %s requeued (%s)\n", resp.Reply.ID, resp.Reply.Status)
				return nil
			})
		},
	}
}

func newReplyHistoryCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "history <id>",
		Short: "Show status transitions of a reply",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := strings.TrimSpace(args[0])
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.ReplyHistory(id)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, resp.Events)
				}
				rows := make([][]string, 0, len(resp.Events))
				for _, event := range resp.Events {
					rows = append(rows, []string{
						event.CreatedAt.Local().Format(time.DateTime),
						event.Status,
						strconv.Itoa(event.Attempts),
						event.Message,
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable([]column{
					{Header: "When"},
					{Header: "Status"},
					{Header: "Attempts", Right: true},
					{Header: "Message", MaxWidth: 60},
				}, rows))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func renderReplyTable(replies []ipc.Reply) string {
	rows := make([][]string, 0, len(replies))
	for _, reply := range replies {
		rows = append(rows, []string{
			reply.ID,
			strconv.FormatInt(reply.TaskID, 10),
			reply.AccountID,
			reply.Category,
			reply.Status,
			strconv.Itoa(reply.Attempts),
			reply.SourceText,
			reply.Text,
			reply.LastError,
		})
	}
	return renderTable([]column{
		{Header: "ID"},
		{Header: "Task", Right: true},
		{Header: "Account"},
		{Header: "Category"},
		{Header: "Status"},
		{Header: "Tries", Right: true},
		{Header: "Comment", MaxWidth: 30},
		{Header: "Reply", MaxWidth: 30},
		{Header: "Error", MaxWidth: 30},
	}, rows)
}
