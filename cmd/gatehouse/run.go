package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"gatehouse-hq/gatehouse/pkg/cli"
	"gatehouse-hq/gatehouse/pkg/config"
	"gatehouse-hq/gatehouse/pkg/server"
	"gatehouse-hq/gatehouse/pkg/telemetry/logging"
)

var runFlags struct {
	logLevel  string
	logFormat string
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the reverse proxy",
	Long: `Start the reverse proxy with the specified configuration.

The proxy serves every configured application until SIGTERM or SIGINT,
draining connections within the graceful timeout. SIGHUP (or an edit of
the configuration file) reloads applications and certificates without
dropping in-flight requests.

Examples:
  # Start with the default config
  gatehouse run

  # Start with a custom config
  gatehouse run --config /etc/gatehouse/gatehouse.toml

  # Raise log verbosity for one run
  LOG_LEVEL=debug gatehouse run`,
	SilenceUsage: true,
	RunE:         runServer,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().StringVar(&runFlags.logFormat, "log-format", "", "log format (json, text)")
}

func runServer(cmd *cobra.Command, args []string) error {
	level := runFlags.logLevel
	if verbose && level == "" {
		level = "debug"
	}
	_, closeLog, err := logging.Setup(logging.Options{
		Level:  level,
		Format: runFlags.logFormat,
	})
	if err != nil {
		return cli.ConfigError(err)
	}
	defer closeLog()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return cli.ConfigError(err)
	}

	srv, err := server.New(cfgFile, cfg)
	if err != nil {
		return err
	}

	slog.Info("starting gatehouse",
		"version", Version,
		"config", cfgFile,
		"apps", len(cfg.Apps),
		"listen_port", cfg.ListenPort,
		"listen_port_tls", cfg.ListenPortTLS,
		"listen_port_h3", cfg.ListenPortH3,
	)

	ctx := cli.SetupSignalHandler()
	if err := srv.Run(ctx); err != nil {
		return fmt.Errorf("server terminated: %w", err)
	}
	return nil
}
