package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	appLog "skycal/internal/log"
	"skycal/internal/web"
)

func newServeCmd(flags *rootFlags) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server with periodic background refresh",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags.configPath)
			if err != nil {
				appLog.Error("failed to load config", err, "config_path", flags.configPath)
				return err
			}
			// CLI --listen overrides config file listen if provided.
			if listen != "" {
				cfg.Listen = listen
			}
			logEffectiveConfig(cfg)

			// Root context with cancellation on SIGINT/SIGTERM.
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg)
			if err != nil {
				appLog.Error("failed to initialize", err)
				return err
			}
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				a.shutdown(shutdownCtx)
			}()

			return serve(ctx, a)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "HTTP listen address (overrides config if set)")
	return cmd
}

func serve(ctx context.Context, a *app) error {
	// Initial load: names for the badges, then a forced refresh.
	go func() {
		a.widget.LoadNames(ctx, a.router)
		a.coordinator.Refresh(ctx, true, a.widget.State().Anchor)
	}()

	c := cron.New(cron.WithLocation(a.cfg.Location()))
	if _, err := c.AddFunc(a.cfg.RefreshCron, func() {
		a.coordinator.Refresh(ctx, false, a.widget.State().Anchor)
	}); err != nil {
		appLog.Error("invalid refresh schedule", err, "refresh", a.cfg.RefreshCron)
		return err
	}
	c.Start()
	defer func() {
		<-c.Stop().Done()
		appLog.Info("refresh scheduler stopped")
	}()

	srv := web.NewServer(a.cfg, a.widget, a.coordinator, a.metrics.Handler())
	err := srv.Run(ctx)
	if ctx.Err() != nil {
		appLog.Info("signal received, shutting down")
	}
	return err
}
