package cli

import (
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tedkulp/n3rdbot/internal/domain"
)

type statsRow struct {
	Username       string `json:"username"`
	UserID         string `json:"user_id,omitempty"`
	WatchedSeconds int64  `json:"watched_seconds"`
	MessageCount   int64  `json:"message_count"`
}

func toStatsRow(s domain.UserStats) statsRow {
	return statsRow{
		Username:       s.Username,
		UserID:         s.UserID,
		WatchedSeconds: s.WatchedSeconds,
		MessageCount:   s.MessageCount,
	}
}

func newStatsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "stats <username>",
		Short: "Show watch time and message count for a viewer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			username := strings.ToLower(args[0])
			return opts.withBackend(cmd, func(b *Backend) error {
				s, err := b.Stats.Get(cmd.Context(), username)
				if errors.Is(err, domain.ErrUserNotFound) {
					return fmt.Errorf("no stats recorded for %s", username)
				}
				if err != nil {
					return fmt.Errorf("stats: %w", err)
				}

				row := toStatsRow(*s)
				return opts.render(cmd.OutOrStdout(), row, func(tw *tabwriter.Writer) {
					fmt.Fprintf(tw, "username\t%s\n", row.Username)
					fmt.Fprintf(tw, "user id\t%s\n", row.UserID)
					fmt.Fprintf(tw, "watched\t%s\n", formatSeconds(row.WatchedSeconds))
					fmt.Fprintf(tw, "messages\t%d\n", row.MessageCount)
				})
			})
		},
	}
}

func newTopCmd(opts *options) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "top",
		Short: "List viewers by watch time",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if limit < 1 {
				return errors.New("-n must be at least 1")
			}
			return opts.withBackend(cmd, func(b *Backend) error {
				top, err := b.Stats.Top(cmd.Context(), limit)
				if err != nil {
					return fmt.Errorf("top: %w", err)
				}

				rows := make([]statsRow, 0, len(top))
				for _, s := range top {
					rows = append(rows, toStatsRow(s))
				}
				return opts.render(cmd.OutOrStdout(), rows, func(tw *tabwriter.Writer) {
					fmt.Fprintln(tw, "#\tUSERNAME\tWATCHED\tMESSAGES")
					for i, r := range rows {
						fmt.Fprintf(tw, "%d\t%s\t%s\t%d\n", i+1, r.Username, formatSeconds(r.WatchedSeconds), r.MessageCount)
					}
				})
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Number of viewers to show")
	return cmd
}
