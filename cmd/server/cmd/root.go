// Package cmd implements the service-shell command line.
package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/tbourn/go-service-shell/internal/config"
	"github.com/tbourn/go-service-shell/internal/sysutil"
)

var envFile string

var rootCmd = &cobra.Command{
	Use:   "service-shell",
	Short: "HTTP service shell with a logging, session and auth pipeline",
	Long: `service-shell runs a JSON API behind a fixed request pipeline:

  RequestLogging  correlation id, structured logs, error classification
  DBSession       one transaction per request, commit on success
  Auth            bearer token identity

Configuration is read from the environment; --env-file (or ENV_FILE)
pre-populates unset variables from a dotenv file.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "dotenv file (default: $ENV_FILE or ./.env)")
}

// setup loads the configuration and installs the global logger. The closer
// releases the log file, if any.
func setup() (config.Config, io.Closer, error) {
	if err := config.LoadEnvFile(envFile); err != nil {
		return config.Config{}, nil, fmt.Errorf("env file: %w", err)
	}
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, nil, err
	}
	closer, err := sysutil.SetupLogger(cfg)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("log file: %w", err)
	}
	return cfg, closer, nil
}

func printError(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
}
