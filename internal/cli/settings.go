package cli

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tedkulp/n3rdbot/internal/app"
	"github.com/tedkulp/n3rdbot/internal/domain"
)

// integerSettings are read with GetInt by the moderation policy.
var integerSettings = map[string]int{
	app.SettingMaxEmotes:        app.DefaultMaxEmotes,
	app.SettingMaxLength:        app.DefaultMaxLength,
	app.SettingMaxURLs:          app.DefaultMaxURLs,
	app.SettingMaxBlacklisted:   app.DefaultMaxBlacklisted,
	app.SettingMaxWarnings:      app.DefaultMaxWarnings,
	app.SettingWarningWindowSec: app.DefaultWarningWindowSec,
}

type settingRow struct {
	Key     string `json:"key"`
	Value   string `json:"value"`
	Default bool   `json:"default"`
}

func newSettingsCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Read and change runtime settings",
	}
	cmd.AddCommand(newSettingsGetCmd(opts), newSettingsSetCmd(opts))
	return cmd
}

func newSettingsGetCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "get [key]",
		Short: "Show one setting, or all of them",
		Long:  "Without a key, lists every stored setting plus the moderation defaults still in effect.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withBackend(cmd, func(b *Backend) error {
				var rows []settingRow
				var err error
				if len(args) == 1 {
					rows, err = getSetting(cmd, b, args[0])
				} else {
					rows, err = listSettings(cmd, b)
				}
				if err != nil {
					return err
				}

				return opts.render(cmd.OutOrStdout(), rows, func(tw *tabwriter.Writer) {
					fmt.Fprintln(tw, "KEY\tVALUE\t")
					for _, r := range rows {
						suffix := ""
						if r.Default {
							suffix = "(default)"
						}
						fmt.Fprintf(tw, "%s\t%s\t%s\n", r.Key, r.Value, suffix)
					}
				})
			})
		},
	}
}

func getSetting(cmd *cobra.Command, b *Backend, key string) ([]settingRow, error) {
	v, err := b.Settings.Get(cmd.Context(), key)
	if errors.Is(err, domain.ErrSettingNotFound) {
		def, known := integerSettings[key]
		if !known {
			return nil, fmt.Errorf("setting %s is not set", key)
		}
		return []settingRow{{Key: key, Value: strconv.Itoa(def), Default: true}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get setting: %w", err)
	}
	return []settingRow{{Key: key, Value: v}}, nil
}

func listSettings(cmd *cobra.Command, b *Backend) ([]settingRow, error) {
	stored, err := b.Settings.List(cmd.Context())
	if err != nil {
		return nil, fmt.Errorf("list settings: %w", err)
	}

	rows := make([]settingRow, 0, len(stored)+len(integerSettings))
	for key, def := range integerSettings {
		if _, ok := stored[key]; !ok {
			rows = append(rows, settingRow{Key: key, Value: strconv.Itoa(def), Default: true})
		}
	}
	for key, value := range stored {
		rows = append(rows, settingRow{Key: key, Value: value})
	}
	slices.SortFunc(rows, func(a, b settingRow) int { return cmp.Compare(a.Key, b.Key) })
	return rows, nil
}

func newSettingsSetCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Store a setting; running bots pick it up on the next message",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, value := args[0], args[1]
			if _, known := integerSettings[key]; known {
				n, err := strconv.Atoi(value)
				if err != nil {
					return fmt.Errorf("%s must be an integer", key)
				}
				if n < 0 {
					return fmt.Errorf("%s must not be negative", key)
				}
			}

			return opts.withBackend(cmd, func(b *Backend) error {
				if err := b.Settings.Set(cmd.Context(), key, value); err != nil {
					return fmt.Errorf("set setting: %w", err)
				}
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", key, value)
				return err
			})
		},
	}
}
