// SPDX-License-Identifier: GPL-3.0-or-later

// Command sockpipe exercises loopback pipes on the current host.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/bassosimone/sockpipe"
	"github.com/bassosimone/sockpipe/logging"
	"github.com/spf13/cobra"
)

var (
	rootEnvFile   string
	rootLogFile   string
	rootLogFormat string
	rootLogLevel  string
)

// Set by the root command before any subcommand runs.
var (
	rootConfig *sockpipe.Config
	rootLogger *logging.Logger
)

var rootCmd = &cobra.Command{
	Use:           "sockpipe",
	Short:         "Emulate anonymous pipes over loopback TCP connections",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logger, err := newLogger()
		if err != nil {
			return err
		}
		rootLogger = logger

		rootConfig = sockpipe.NewConfig()
		env, err := readEnv(rootEnvFile)
		if err != nil {
			return err
		}
		return applyEnv(rootConfig, env)
	},
}

func newLogger() (*logging.Logger, error) {
	level, err := logging.ParseLevel(rootLogLevel)
	if err != nil {
		return nil, err
	}
	cfg := logging.NewConfig()
	cfg.Level = level
	switch rootLogFormat {
	case "text":
	case "json":
		cfg.JSON = true
	default:
		return nil, fmt.Errorf("unknown log format %q", rootLogFormat)
	}
	if rootLogFile != "" {
		cfg.Sink = logging.SinkFile
		cfg.Path = rootLogFile
		cfg.Async = true
	}
	return logging.New(cfg)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&rootEnvFile, "env-file", "", "read SOCKPIPE_* settings from this dotenv file")
	rootCmd.PersistentFlags().StringVar(&rootLogFile, "log-file", "", "append JSON logs to this file instead of stderr")
	rootCmd.PersistentFlags().StringVar(&rootLogFormat, "log-format", "text", "stderr log format: text or json")
	rootCmd.PersistentFlags().StringVar(&rootLogLevel, "log-level", "warn", "minimum log level: trace, debug, info, warn, error, critical, off")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if rootLogger != nil {
		rootLogger.Close()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "sockpipe: %s\n", err)
		os.Exit(1)
	}
}
