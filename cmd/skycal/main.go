package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	appLog "skycal/internal/log"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "0.1.0-dev"

// rootFlags holds the flags shared by every subcommand.
type rootFlags struct {
	configPath string
	debug      bool
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:   "skycal",
		Short: "Multi-calendar schedule widget server",
		Long: `skycal aggregates Home Assistant, ICS and Google calendars and serves
month, compact week and hour-gridded week views as JSON.`,
		SilenceUsage: true,
		Version:      version,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if flags.debug {
				appLog.SetDevelopment()
				appLog.SetLevel(appLog.LevelDebug)
			}
		},
	}
	root.SetVersionTemplate(`{{printf "skycal version %s\n" .Version}}`)

	root.PersistentFlags().StringVar(&flags.configPath, "config", "/etc/skycal/config.yaml", "Path to config file (.yaml or .toml)")
	root.PersistentFlags().BoolVar(&flags.debug, "debug", false, "Verbose console logging")

	root.AddCommand(newServeCmd(flags))
	root.AddCommand(newViewCmd(flags))
	root.AddCommand(newValidateCmd(flags))
	root.AddCommand(newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "skycal version %s\n", version)
		},
	}
}

func main() {
	defer appLog.Sync()

	if err := newRootCmd().Execute(); err != nil {
		appLog.Sync()
		os.Exit(1)
	}
}
