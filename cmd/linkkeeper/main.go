package main

import (
	"context"
	"fmt"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"linkkeeper/internal/app"
	"linkkeeper/internal/config"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:          "linkkeeper",
	Short:        "Save links from share targets and Telegram, read them later",
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to config.yaml (default ./configs/config.yaml)")
	rootCmd.AddCommand(serveCmd, reconcileCmd, linksCmd)
}

// openApp loads configuration and opens the app. Callers close it.
func openApp(ctx context.Context, opts ...app.Option) (*app.App, *logrus.Logger, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, nil, err
	}
	log := app.NewLogger(cfg)
	log.WithFields(logrus.Fields{
		"storage_path": cfg.Storage.Path,
		"http_addr":    cfg.HTTP.Addr,
	}).Debug("Configuration loaded successfully")

	a, err := app.New(ctx, cfg, log, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("open link keeper: %w", err)
	}
	return a, log, nil
}
