package cli

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/tedkulp/n3rdbot/internal/domain"
)

type blacklistRow struct {
	ID        int64     `json:"id"`
	Pattern   string    `json:"pattern"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

func newBlacklistCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "blacklist",
		Short: "Manage blacklisted patterns",
	}
	cmd.AddCommand(newBlacklistListCmd(opts), newBlacklistAddCmd(opts), newBlacklistDisableCmd(opts))
	return cmd
}

func newBlacklistListCmd(opts *options) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List blacklist entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withBackend(cmd, func(b *Backend) error {
				list := b.Blacklist.ListActive
				if all {
					list = b.Blacklist.List
				}
				entries, err := list(cmd.Context())
				if err != nil {
					return fmt.Errorf("list blacklist: %w", err)
				}

				rows := make([]blacklistRow, 0, len(entries))
				for _, e := range entries {
					rows = append(rows, blacklistRow(e))
				}
				return opts.render(cmd.OutOrStdout(), rows, func(tw *tabwriter.Writer) {
					fmt.Fprintln(tw, "ID\tACTIVE\tPATTERN")
					for _, r := range rows {
						fmt.Fprintf(tw, "%d\t%t\t%s\n", r.ID, r.Active, r.Pattern)
					}
				})
			})
		},
	}

	cmd.Flags().BoolVarP(&all, "all", "a", false, "Include disabled entries")
	return cmd
}

func newBlacklistAddCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "add <pattern>",
		Short: "Add or re-enable a pattern",
		Long:  "Patterns are regular expressions matched anywhere in a message. Prefix with (?i) to ignore case.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pattern := args[0]
			if _, err := regexp.Compile(pattern); err != nil {
				return fmt.Errorf("invalid pattern: %w", err)
			}

			return opts.withBackend(cmd, func(b *Backend) error {
				entry, err := b.Blacklist.Add(cmd.Context(), pattern)
				if err != nil {
					return fmt.Errorf("add pattern: %w", err)
				}
				if err := b.invalidate(cmd.Context(), "add"); err != nil {
					return fmt.Errorf("pattern %d added but bots were not notified: %w", entry.ID, err)
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "added pattern %d\n", entry.ID)
				return err
			})
		},
	}
}

func newBlacklistDisableCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "disable <id>",
		Short: "Disable a pattern without deleting it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid id %q", args[0])
			}

			return opts.withBackend(cmd, func(b *Backend) error {
				err := b.Blacklist.SetActive(cmd.Context(), id, false)
				if errors.Is(err, domain.ErrBlacklistEntryNotFound) {
					return fmt.Errorf("no blacklist entry %d", id)
				}
				if err != nil {
					return fmt.Errorf("disable pattern: %w", err)
				}
				if err := b.invalidate(cmd.Context(), "disable"); err != nil {
					return fmt.Errorf("pattern %d disabled but bots were not notified: %w", id, err)
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "disabled pattern %d\n", id)
				return err
			})
		},
	}
}
