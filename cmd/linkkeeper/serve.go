package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"linkkeeper/internal/app"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, the Telegram intake and the reconcile loop",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, log, err := openApp(ctx, app.WithMemoryFallback())
		if err != nil {
			return err
		}
		defer func() {
			if err := a.Close(); err != nil {
				log.WithError(err).Error("Error closing store")
			}
		}()

		log.Info("Link keeper is running. Press Ctrl+C to exit.")
		if err := a.Serve(ctx); err != nil {
			log.WithError(err).Error("Application error")
			return err
		}
		log.Info("Link keeper shut down gracefully.")
		return nil
	},
}
