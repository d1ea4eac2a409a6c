package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"skycal/internal/config"
)

func newValidateCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the config file and exit non-zero if it is invalid",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(flags.configPath)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				out := cmd.ErrOrStderr()
				var joined interface{ Unwrap() []error }
				if errors.As(err, &joined) {
					for _, e := range joined.Unwrap() {
						fmt.Fprintln(out, "-", e)
					}
				} else {
					fmt.Fprintln(out, "-", err)
				}
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (%d calendars)\n", flags.configPath, len(cfg.Entities))
			return nil
		},
	}
}
