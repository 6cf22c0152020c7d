package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/wirerelay/internal/app"
	"github.com/vovakirdan/wirerelay/internal/config"
	"github.com/vovakirdan/wirerelay/internal/log"
)

var serveAddr string

// serveCmd runs the relay.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the relay server",
	Long:  "Start the mailbox, the dispatcher and the HTTP/WebSocket transport.",
	RunE: func(cmd *cobra.Command, args []string) error {
		bootLog := log.New("info", "console")
		cfg, path, err := config.Load(bootLog, configFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		cfg.UpdateFrom(config.Config{Addr: serveAddr, LogLevel: logLevel, LogFormat: logFormat})

		logger := log.New(cfg.LogLevel, cfg.LogFormat)
		logger.Info().Str("config", path).Msg("configuration loaded")

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		application, err := app.New(&cfg, logger)
		if err != nil {
			return fmt.Errorf("failed to create relay: %w", err)
		}

		if err := application.Run(ctx); err != nil {
			return fmt.Errorf("relay exited with error: %w", err)
		}
		logger.Info().Msg("relay stopped")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "HTTP listen address (overrides config)")
}
