package main

import (
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/19niel/Ultra-MIS-Ticketing-System/internal/config"
	"github.com/19niel/Ultra-MIS-Ticketing-System/internal/observability"
)

var version = "dev"

var (
	apiURL   string
	wsURL    string
	token    string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:           "helpdeskctl",
	Short:         "Operate and observe the help-desk ticket service",
	Version:       version,
	SilenceUsage:  true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&apiURL, "api", envOr("HELPDESK_API", "http://localhost:8080"),
		"REST API base URL")
	rootCmd.PersistentFlags().StringVar(&wsURL, "ws", envOr("HELPDESK_WS", "ws://localhost:8081/ws"),
		"realtime gateway URL")
	rootCmd.PersistentFlags().StringVar(&token, "token", os.Getenv("HELPDESK_TOKEN"),
		"bearer token (see `helpdeskctl token`)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func newLogger() *zap.Logger {
	logger, err := observability.NewLogger(config.LoggerConfig{Level: logLevel, Format: "console"})
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
