package cli

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

type actionRow struct {
	ID           string    `json:"id"`
	Channel      string    `json:"channel"`
	Username     string    `json:"username"`
	UserID       string    `json:"user_id,omitempty"`
	Action       string    `json:"action"`
	WarningCount int64     `json:"warning_count"`
	Threshold    int       `json:"threshold"`
	Reason       string    `json:"reason,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

func newActionsCmd(opts *options) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "actions",
		Short: "List recent moderation actions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if limit < 1 {
				return errors.New("-n must be at least 1")
			}
			return opts.withBackend(cmd, func(b *Backend) error {
				actions, err := b.Actions.ListRecent(cmd.Context(), limit)
				if err != nil {
					return fmt.Errorf("list actions: %w", err)
				}

				rows := make([]actionRow, 0, len(actions))
				for _, a := range actions {
					rows = append(rows, actionRow{
						ID:           a.ID.String(),
						Channel:      a.Channel,
						Username:     a.Username,
						UserID:       a.UserID,
						Action:       string(a.Action),
						WarningCount: a.WarningCount,
						Threshold:    a.Threshold,
						Reason:       a.Reason,
						CreatedAt:    a.CreatedAt,
					})
				}
				return opts.render(cmd.OutOrStdout(), rows, func(tw *tabwriter.Writer) {
					fmt.Fprintln(tw, "TIME\tCHANNEL\tUSER\tACTION\tWARNINGS")
					for _, r := range rows {
						fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d/%d\n",
							r.CreatedAt.Format(time.DateTime), r.Channel, r.Username, r.Action, r.WarningCount, r.Threshold)
					}
				})
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of actions to show")
	return cmd
}
