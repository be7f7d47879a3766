// Infinityctl is a command line client for Carrier Infinity and Bryant
// Evolution thermostats.
//
// It talks to the vendor cloud API to read zone telemetry, change
// setpoints and operating mode, and run a periodic monitor that logs
// readings to CSV or SQLite.
//
// Usage:
//
//	infinityctl [command] [flags]
//
// Running without arguments prints the current system status.
// See 'infinityctl --help' for available commands.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

const appVersion = "1.0.0"

var configPath string

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "infinityctl",
	Short: "Carrier Infinity / Bryant Evolution thermostat control",
	Long: `A command line client for Carrier Infinity and Bryant Evolution
thermostat systems.

Reads zone telemetry, changes setpoints and operating mode, and runs a
periodic monitor that logs readings to CSV or SQLite.

If no command is specified, the current status is printed.`,
	Version: appVersion,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Default behavior: print status when no subcommand provided
		return runStatus(cmd, args)
	},
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to configuration file")
}

// setupLogger configures structured logging
func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	})
	return slog.New(handler)
}
