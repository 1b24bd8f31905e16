package main

import (
	"os"
	"os/signal"
	"syscall"

	"livehub/internal/app"
	"livehub/pkg/logger"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the hub server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	zapLogger := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer func() { _ = zapLogger.Sync() }()

	hub, err := app.New(cfg, zapLogger)
	if err != nil {
		zapLogger.Sugar().Errorw("Failed to initialize livehub", "error", err)
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return hub.Run(ctx)
}
