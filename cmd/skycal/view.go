package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	appLog "skycal/internal/log"
)

func newViewCmd(flags *rootFlags) *cobra.Command {
	var (
		mode string
		date string
	)

	cmd := &cobra.Command{
		Use:   "view",
		Short: "Fetch once and print the view model as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags.configPath)
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.shutdown(ctx)

			if mode != "" {
				if _, err := a.widget.SetViewMode(mode); err != nil {
					return err
				}
			}
			if date != "" {
				d, err := time.ParseInLocation(time.DateOnly, date, cfg.Location())
				if err != nil {
					return fmt.Errorf("--date must be YYYY-MM-DD: %w", err)
				}
				a.widget.SetAnchor(d)
			}

			a.widget.LoadNames(ctx, a.router)
			report := a.coordinator.Refresh(ctx, true, a.widget.State().Anchor)
			for _, err := range report.Errors {
				appLog.Error("source failed", err)
			}
			return printView(cmd.OutOrStdout(), a)
		},
	}
	cmd.Flags().StringVar(&mode, "mode", "", "View mode: month, week-compact or week-standard")
	cmd.Flags().StringVar(&date, "date", "", "Anchor date (YYYY-MM-DD), defaults to today")
	return cmd
}

func printView(w io.Writer, a *app) error {
	v, err := a.widget.View()
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
