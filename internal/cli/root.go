/*
Package cli implements the swstarter command line.

The root command serves the API; the other commands open the same Redis-backed
analytics pipeline for one-shot inspection without starting the HTTP server.
*/
package cli

import (
	"fmt"
	"io"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"github.com/swstarter/core/internal/app"
	"github.com/swstarter/core/internal/config"
	"github.com/swstarter/core/internal/pkg/logger"
	"go.uber.org/zap"
)

// NewRootCmd builds the command tree. Running the root without a subcommand serves the API.
func NewRootCmd(version string) *cobra.Command {
	var configPath string
	root := &cobra.Command{
		Use:   "swstarter",
		Short: "Star Wars search backend with query analytics",
		Long: `swstarter proxies searches to the Star Wars API and records every served
query into an asynchronous analytics pipeline. Statistics (top queries,
average response time, popular hours) are recomputed every five minutes.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, configPath)
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultConfigPath, "Path to YAML config file")

	root.AddCommand(NewServeCmd(&configPath))
	root.AddCommand(NewStatsCmd(&configPath))
	root.AddCommand(NewQueueCmd(&configPath))
	return root
}

// openApp loads config, builds the logger and wires the application. Console output is
// left off for one-shot commands so stdout carries only their result.
func openApp(configPath string, console bool) (*app.App, *zap.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	log, err := logger.New(logger.Options{Level: cfg.LogLevel, Dir: cfg.LogDir(), Console: console})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to init logger: %w", err)
	}
	a, err := app.New(log, cfg)
	if err != nil {
		_ = log.Sync()
		return nil, nil, fmt.Errorf("failed to initialize app: %w", err)
	}
	return a, log, nil
}

func closeApp(a *app.App, log *zap.Logger) {
	if err := a.Close(); err != nil {
		log.Warn("close failed", zap.Error(err))
	}
	_ = log.Sync()
}

func writeJSON(w io.Writer, v interface{}) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%s\n", b)
	return err
}
