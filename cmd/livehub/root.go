package main

import (
	"os"

	"livehub/pkg/config"

	"github.com/spf13/cobra"
)

// configPaths are tried in order when --config is not given.
var configPaths = []string{
	"configs/config.yaml",
	"/etc/livehub/config.yaml",
	"config.yaml",
}

var configPath string

var rootCmd = &cobra.Command{
	Use:           "livehub",
	Short:         "Live streaming hub: presence, chat, moderation and stream status over WebSocket",
	Long:          `WebSocket hub plus admin HTTP API. Commands: serve (default), config, token.`,
	RunE:          runServe,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.yaml")
	rootCmd.AddCommand(serveCmd, configCmd, tokenCmd)
}

func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.Load(configPath)
	}
	for _, path := range configPaths {
		if _, err := os.Stat(path); err == nil {
			return config.Load(path)
		}
	}
	// Defaults plus environment overrides.
	return config.Load("")
}
