package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

type warningRow struct {
	UserID   string `json:"user_id"`
	Warnings int64  `json:"warnings"`
}

func newWarningsCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "warnings",
		Short: "Inspect or clear a viewer's warning counter",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get <user-id>",
		Short: "Show the warnings issued in the current window",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withBackend(cmd, func(b *Backend) error {
				ledger, err := b.warnings()
				if err != nil {
					return err
				}
				n, err := ledger.Current(cmd.Context(), args[0])
				if err != nil {
					return fmt.Errorf("read warnings: %w", err)
				}

				row := warningRow{UserID: args[0], Warnings: n}
				return opts.render(cmd.OutOrStdout(), row, func(tw *tabwriter.Writer) {
					fmt.Fprintf(tw, "%s\t%d\n", row.UserID, row.Warnings)
				})
			})
		},
	}, &cobra.Command{
		Use:   "reset <user-id>",
		Short: "Clear the warning counter",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withBackend(cmd, func(b *Backend) error {
				ledger, err := b.warnings()
				if err != nil {
					return err
				}
				if err := ledger.Reset(cmd.Context(), args[0]); err != nil {
					return fmt.Errorf("reset warnings: %w", err)
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "warnings cleared for %s\n", args[0])
				return err
			})
		},
	})
	return cmd
}
